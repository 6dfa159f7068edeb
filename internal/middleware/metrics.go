package middleware

import (
	"net/http"

	"github.com/dukerupert/homequest/internal/metrics"
)

// Instrument records request counts and latency labelled by the matched
// route pattern. It must wrap the ServeMux directly so r.Pattern is set
// on return.
func Instrument(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			done := m.RequestStarted()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			done(r.Method, route, rec.status)
		})
	}
}
