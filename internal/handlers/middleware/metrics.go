package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/apexrewards/pointsledger/internal/metrics"
)

// MetricsMiddleware observes request duration labelled by method and status
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			lw := &logWriter{
				ResponseWriter: w,
				data:           logData{responseStatus: http.StatusOK},
			}

			next.ServeHTTP(lw, r)

			metrics.RequestDuration.
				WithLabelValues(r.Method, strconv.Itoa(lw.data.responseStatus)).
				Observe(time.Since(start).Seconds())
		})
	}
}
