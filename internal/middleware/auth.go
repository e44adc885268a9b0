package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ayush/endpix/internal/apperr"
	"github.com/ayush/endpix/internal/httpx"
)

// TokenCookie is the cookie that carries the bearer token for browser clients.
const TokenCookie = "token"

// TokenVerifier resolves a bearer token to the identity id it was issued for.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type contextKey struct{}

var userIDKey contextKey

// ErrNoUser is returned when the request did not pass through RequireAuth.
var ErrNoUser = errors.New("no authenticated user in context")

// WithUserID returns a copy of ctx carrying the identity id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the identity id injected by RequireAuth.
func UserIDFromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(userIDKey).(string)
	if !ok || id == "" {
		return "", ErrNoUser
	}
	return id, nil
}

// RequireAuth validates the bearer token from the Authorization header or the
// token cookie and injects the identity id into the request context.
func RequireAuth(verifier TokenVerifier, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				httpx.WriteError(w, r, log, apperr.New(apperr.KindUnauthorized, "Unauthorized: token missing"))
				return
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				httpx.WriteError(w, r, log, apperr.Wrap(apperr.KindUnauthorized, "Unauthorized: invalid or expired token", err))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(TokenCookie); err == nil {
		return c.Value
	}
	return ""
}
