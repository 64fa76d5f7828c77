package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/better-wallet/controller/internal/logger"
)

// Logging writes one access log line per request. Request headers are
// included at debug level with credentials redacted.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := NewStatusRecorder(w)

		next.ServeHTTP(rec, r)

		ctx := r.Context()
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.StatusCode,
			"bytes", rec.Bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", getIP(r),
		}

		log := logger.FromContext(ctx)
		if log.Enabled(ctx, slog.LevelDebug) {
			log.Debug("http request", append(attrs, "headers", RedactHeaders(r.Header))...)
			return
		}
		if rec.StatusCode >= http.StatusInternalServerError {
			log.Warn("http request", attrs...)
			return
		}
		log.Info("http request", attrs...)
	})
}

// Chain applies middlewares so that the first one listed is outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
