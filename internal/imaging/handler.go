package imaging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ayush/endpix/internal/apperr"
	"github.com/ayush/endpix/internal/httpx"
	"github.com/ayush/endpix/internal/middleware"
	"github.com/ayush/endpix/internal/models"
)

// Handler holds the /image HTTP handlers. Every route expects RequireAuth
// in front of it.
type Handler struct {
	svc      *Service
	maxBytes int64
	log      *slog.Logger
}

func NewHandler(svc *Service, maxBytes int64, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, maxBytes: maxBytes, log: log}
}

// Upload accepts a multipart "image" field.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.log, apperr.Wrap(apperr.KindUnauthorized, "Unauthorized", err))
		return
	}

	// Leave room for the multipart framing around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	file, header, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(w, r, h.log, h.tooLarge())
			return
		}
		httpx.WriteError(w, r, h.log, apperr.Validation(apperr.FieldError{Field: "image", Message: "No file uploaded"}))
		return
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		httpx.WriteError(w, r, h.log, h.tooLarge())
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		httpx.WriteError(w, r, h.log, apperr.Wrap(apperr.KindValidation, "could not read upload", err))
		return
	}
	if int64(len(data)) > h.maxBytes {
		httpx.WriteError(w, r, h.log, h.tooLarge())
		return
	}

	url, err := h.svc.Upload(r.Context(), userID, data, header.Header.Get("Content-Type"))
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Image uploaded successfully",
		"image":   url,
	})
}

// Enhance runs the caller's current image through the generative model.
func (h *Handler) Enhance(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.log, apperr.Wrap(apperr.KindUnauthorized, "Unauthorized", err))
		return
	}

	var req models.EnhanceRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}

	e, err := h.svc.Enhance(r.Context(), userID, req)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Image enhanced successfully",
		"image":   e.ResultURL,
	})
}

// History lists the caller's recent enhancements.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.log, apperr.Wrap(apperr.KindUnauthorized, "Unauthorized", err))
		return
	}

	list, err := h.svc.History(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"message":      "Enhancements fetched successfully",
		"enhancements": list,
	})
}

func (h *Handler) tooLarge() error {
	return apperr.Validation(apperr.FieldError{
		Field:   "image",
		Message: fmt.Sprintf("Image must be at most %d bytes", h.maxBytes),
	})
}
