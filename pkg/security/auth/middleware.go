package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// QueryParam carries the key for clients that cannot set headers.
const QueryParam = "api_key"

// RejectFunc writes the response to an unauthenticated request.
type RejectFunc func(w http.ResponseWriter, r *http.Request, msg string)

type contextKey struct{}

// KeyID returns the identifier of the key that authenticated the request.
func KeyID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// Middleware rejects requests without an accepted key.
func Middleware(keys *KeySet, header string, reject RejectFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if reject == nil {
		reject = func(w http.ResponseWriter, r *http.Request, msg string) {
			http.Error(w, msg, http.StatusUnauthorized)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractKey(r, header)
			if key == "" {
				logger.WarnContext(r.Context(), "missing API key", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				reject(w, r, "missing API key")
				return
			}
			id, ok := keys.Validate(key)
			if !ok {
				logger.WarnContext(r.Context(), "invalid API key", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				reject(w, r, "invalid API key")
				return
			}
			logger.DebugContext(r.Context(), "API key authenticated", "key_id", id, "path", r.URL.Path)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, id)))
		})
	}
}

func extractKey(r *http.Request, header string) string {
	if header == "" {
		header = "Authorization"
	}
	if v := r.Header.Get(header); v != "" {
		if !strings.EqualFold(header, "Authorization") {
			return v
		}
		if scheme, token, ok := strings.Cut(v, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get(QueryParam)
}
