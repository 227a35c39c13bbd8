package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// AccessLog attaches a correlation-scoped logger to the request context and
// logs one line per request once the response is written.
// It must run after chi's RequestID middleware to reuse its id.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		logger := WithCorrelationID(middleware.GetReqID(r.Context()))
		ctx := logger.WithContext(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		event := logger.Info()
		if status >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
