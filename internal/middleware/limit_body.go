package middleware

import (
	"net/http"
)

// DefaultMaxBodySize is the request body cap used when none is configured (1MB).
const DefaultMaxBodySize int64 = 1 << 20

// LimitBody caps request bodies at max bytes. Reads past the cap fail with
// *http.MaxBytesError, which handlers map to 413.
func LimitBody(max int64) func(http.Handler) http.Handler {
	if max <= 0 {
		max = DefaultMaxBodySize
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, max)
			next.ServeHTTP(w, r)
		})
	}
}
