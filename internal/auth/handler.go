package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ayush/endpix/internal/apperr"
	"github.com/ayush/endpix/internal/httpx"
	"github.com/ayush/endpix/internal/middleware"
	"github.com/ayush/endpix/internal/models"
)

// CookieOptions controls the token cookie set on login.
type CookieOptions struct {
	Secure bool
	MaxAge time.Duration
}

// Handler holds the /users HTTP handlers.
type Handler struct {
	svc    *Service
	cookie CookieOptions
	log    *slog.Logger
}

func NewHandler(svc *Service, cookie CookieOptions, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, cookie: cookie, log: log}
}

// Register stages a new identity and emails its OTP.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}

	st, err := h.svc.Register(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"newUser": st,
	})
}

// Verify promotes a staged identity and returns a token for it.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}

	res, err := h.svc.Verify(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "User verified successfully",
		"newUser": res.Identity,
		"token":   res.Token,
	})
}

// ResendOTP issues a fresh code for a pending registration.
func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req models.ResendRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}

	if err := h.svc.ResendOTP(r.Context(), req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"msg": "OTP resent successfully"})
}

// Login authenticates an identity, returns a token and sets it as a cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}

	res, err := h.svc.Login(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    res.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.cookie.MaxAge / time.Second),
	})

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"User":    res.Identity,
		"token":   res.Token,
	})
}

// GetUser returns the authenticated identity.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.currentIdentity(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "User fetched successfully",
		"user":    identity,
	})
}

// Logout clears the token cookie. Tokens are stateless, so an issued token
// stays valid until it expires.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.currentIdentity(w, r)
	if !ok {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "Logout successful",
		"user":    identity,
	})
}

func (h *Handler) currentIdentity(w http.ResponseWriter, r *http.Request) (*models.Identity, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.log, apperr.Wrap(apperr.KindUnauthorized, "Unauthorized", err))
		return nil, false
	}
	identity, err := h.svc.Profile(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return nil, false
	}
	return identity, true
}
