// Package imaging stores uploaded images and runs them through the
// generative-image API.
package imaging

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ayush/endpix/internal/apperr"
	"github.com/ayush/endpix/internal/metrics"
	"github.com/ayush/endpix/internal/models"
	"github.com/ayush/endpix/internal/store"
	"github.com/ayush/endpix/internal/validation"
)

// DefaultPrompt is used when an enhancement request has no prompt.
const DefaultPrompt = "Enhance the image quality and details. also make it's color more vibrant."

// HistoryLimit caps GET /image/history.
const HistoryLimit = 50

// allowedTypes maps accepted image MIME types to object key extensions.
var allowedTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// IdentityStore reads identities and records their current image.
type IdentityStore interface {
	IdentityByID(ctx context.Context, id string) (*models.Identity, error)
	SetImage(ctx context.Context, id, url, key string) error
}

// ObjectStore holds image bytes.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, string, error)
	Remove(ctx context.Context, key string) error
	URL(key string) string
}

// ImageTransformer turns a source image into an enhanced one.
type ImageTransformer interface {
	Transform(ctx context.Context, req TransformRequest) (*TransformResult, error)
}

// Journal records enhancement runs.
type Journal interface {
	InsertEnhancement(ctx context.Context, e *models.Enhancement) error
	ListEnhancements(ctx context.Context, userID string, limit int) ([]models.Enhancement, error)
}

// Service implements upload, enhancement and history.
type Service struct {
	identities  IdentityStore
	objects     ObjectStore
	transformer ImageTransformer
	journal     Journal
	metrics     metrics.Recorder
	log         *slog.Logger
	newID       func() string
}

func NewService(identities IdentityStore, objects ObjectStore, transformer ImageTransformer, journal Journal, rec metrics.Recorder, log *slog.Logger) *Service {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		identities:  identities,
		objects:     objects,
		transformer: transformer,
		journal:     journal,
		metrics:     rec,
		log:         log,
		newID:       uuid.NewString,
	}
}

var enhanceMessages = validation.Messages{
	"prompt":    "Prompt must be at most 200 characters",
	"style":     "Style must be one of original, hyperrealistic, anime, cyberpunk, oil_painting, watercolor, pixel_art",
	"upscaling": "Upscaling must be one of 1x, 2x, 4x, 8x",
}

const (
	msgUserNotFound = "User not found"
	msgNoImage      = "Please upload an image first"
)

// Upload stores data as the caller's current image and returns its URL.
// declaredType is the multipart part's Content-Type and may be empty.
func (s *Service) Upload(ctx context.Context, userID string, data []byte, declaredType string) (string, error) {
	if len(data) == 0 {
		return "", apperr.Validation(apperr.FieldError{Field: "image", Message: "No file uploaded"})
	}
	contentType, err := imageType(data, declaredType)
	if err != nil {
		return "", err
	}

	if _, err := s.identity(ctx, userID); err != nil {
		return "", err
	}

	key := userID + "/uploads/" + s.newID() + "." + allowedTypes[contentType]
	if err := s.objects.Upload(ctx, key, data, contentType); err != nil {
		return "", apperr.Wrap(apperr.KindUpstream, "store upload", err)
	}
	url := s.objects.URL(key)
	if err := s.setImage(ctx, userID, url, key); err != nil {
		s.removeObject(ctx, key)
		return "", err
	}

	s.log.InfoContext(ctx, "image uploaded",
		slog.String("user_id", userID),
		slog.String("key", key),
		slog.Int("bytes", len(data)),
	)
	return url, nil
}

// Enhance runs the caller's current image through the transformer, stores
// the result as the new current image and journals the run.
func (s *Service) Enhance(ctx context.Context, userID string, req models.EnhanceRequest) (e *models.Enhancement, err error) {
	start := time.Now()
	defer func() {
		outcome := metrics.OutcomeOK
		if err != nil {
			outcome = apperr.KindOf(err).String()
		}
		s.metrics.RecordEnhancement(outcome, time.Since(start))
	}()

	if err := validation.Struct(req, enhanceMessages); err != nil {
		return nil, err
	}
	if req.Prompt == "" {
		req.Prompt = DefaultPrompt
	}
	if req.Upscaling == "" {
		req.Upscaling = "1x"
	}

	identity, err := s.identity(ctx, userID)
	if err != nil {
		return nil, err
	}
	if identity.ImageKey == "" {
		return nil, apperr.Validation(apperr.FieldError{Field: "image", Message: msgNoImage})
	}

	source, sourceType, err := s.objects.Download(ctx, identity.ImageKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Validation(apperr.FieldError{Field: "image", Message: msgNoImage})
		}
		return nil, apperr.Wrap(apperr.KindUpstream, "load source image", err)
	}
	if _, ok := allowedTypes[sourceType]; !ok {
		sourceType = http.DetectContentType(source)
	}

	out, err := s.transformer.Transform(ctx, TransformRequest{
		Image:     source,
		MimeType:  sourceType,
		Prompt:    req.Prompt,
		Style:     req.Style,
		Upscaling: req.Upscaling,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "transform image", err)
	}

	ext, ok := allowedTypes[out.MimeType]
	if !ok {
		ext = "png"
	}
	key := userID + "/enhanced/" + s.newID() + "." + ext
	if err := s.objects.Upload(ctx, key, out.Image, out.MimeType); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "store enhanced image", err)
	}
	url := s.objects.URL(key)
	if err := s.setImage(ctx, userID, url, key); err != nil {
		s.removeObject(ctx, key)
		return nil, err
	}

	e = &models.Enhancement{
		UserID:    userID,
		SourceKey: identity.ImageKey,
		ResultKey: key,
		ResultURL: url,
		Prompt:    req.Prompt,
		Style:     req.Style,
		Upscaling: req.Upscaling,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.journal.InsertEnhancement(ctx, e); err != nil {
		s.log.ErrorContext(ctx, "journal enhancement failed",
			slog.String("user_id", userID),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}

	s.log.InfoContext(ctx, "image enhanced",
		slog.String("user_id", userID),
		slog.String("style", req.Style),
		slog.String("upscaling", req.Upscaling),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return e, nil
}

// History lists the caller's most recent enhancements, newest first.
func (s *Service) History(ctx context.Context, userID string) ([]models.Enhancement, error) {
	list, err := s.journal.ListEnhancements(ctx, userID, HistoryLimit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list enhancements", err)
	}
	if list == nil {
		list = []models.Enhancement{}
	}
	return list, nil
}

func (s *Service) identity(ctx context.Context, userID string) (*models.Identity, error) {
	identity, err := s.identities.IdentityByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, msgUserNotFound)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "lookup identity", err)
	}
	return identity, nil
}

func (s *Service) setImage(ctx context.Context, userID, url, key string) error {
	if err := s.identities.SetImage(ctx, userID, url, key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.KindNotFound, msgUserNotFound)
		}
		return apperr.Wrap(apperr.KindInternal, "set identity image", err)
	}
	return nil
}

// removeObject drops an object no identity points at. It runs even when
// ctx is already cancelled.
func (s *Service) removeObject(ctx context.Context, key string) {
	if err := s.objects.Remove(context.WithoutCancel(ctx), key); err != nil {
		s.log.ErrorContext(ctx, "rollback stored image failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// imageType returns the sniffed content type when both it and the declared
// type are accepted image types.
func imageType(data []byte, declared string) (string, error) {
	invalid := apperr.Validation(apperr.FieldError{
		Field:   "image",
		Message: "Only JPEG, PNG, GIF and WebP images are allowed",
	})

	sniffed := http.DetectContentType(data)
	if _, ok := allowedTypes[sniffed]; !ok {
		return "", invalid
	}
	if declared == "" {
		return sniffed, nil
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return "", invalid
	}
	if mediaType == "application/octet-stream" {
		return sniffed, nil
	}
	if _, ok := allowedTypes[mediaType]; !ok {
		return "", invalid
	}
	return sniffed, nil
}
