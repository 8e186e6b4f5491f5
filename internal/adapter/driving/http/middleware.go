package httphandler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ericfisherdev/gitlabpat/internal/application"
	"github.com/ericfisherdev/gitlabpat/internal/domain/model"
)

// statusWriter wraps http.ResponseWriter to capture the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code and delegates to the embedded writer.
func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs each HTTP request with method, path, status, and duration.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start).Round(time.Microsecond),
		)
	})
}

// recoveryMiddleware recovers from panics in HTTP handlers, logs the error,
// and returns a 500 response.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error("panic recovered",
					"panic", v,
					"path", r.URL.Path,
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// authMiddleware resolves a bearer API key to a principal and attaches it to
// the request context. Requests without an Authorization header continue as
// anonymous; a key that does not authenticate is rejected outright.
func authMiddleware(auth Authenticator, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r.WithContext(application.WithPrincipal(r.Context(), model.Anonymous)))
			return
		}

		scheme, key, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(key) == "" {
			writeUnauthorized(w)
			return
		}

		p, err := auth.Authenticate(r.Context(), model.NewSecret(strings.TrimSpace(key)))
		if err != nil {
			if !errors.Is(err, application.ErrUnauthenticated) {
				logger.Error("api key authentication failed", "path", r.URL.Path, "error", err)
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			writeUnauthorized(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(application.WithPrincipal(r.Context(), p)))
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="gitlabpat"`)
	writeError(w, http.StatusUnauthorized, "authentication required")
}
