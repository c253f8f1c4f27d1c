package telemetry

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labelzoom/edge-gateway/internal/background"
)

// Middleware records per-request timing and header metadata and enqueues a
// telemetry event after the response is produced. It is composed innermost,
// directly around the route handler, so the measured duration reflects
// handler time and the captured headers are the client-visible ones after
// outer middleware have finished mutating them.
func Middleware(emitter *Emitter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ts := time.Now()
			requestHeaders := r.Header.Clone()

			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			duration := time.Since(ts)

			// Snapshot after the handler returns: the header map is shared
			// with outer response wrappers, so mutations made while the
			// response was being written (e.g. redirect normalization) are
			// visible here.
			ev := Event{
				URL:             requestURL(r),
				RequestHeaders:  requestHeaders,
				ResponseHeaders: w.Header().Clone(),
				ResponseStatus:  wrapped.status,
				Timestamp:       ts,
				DurationMs:      float64(duration) / float64(time.Millisecond),
			}

			background.Go(r.Context(), logger, "telemetry", func(ctx context.Context) error {
				return emitter.Emit(ctx, ev)
			})
		})
	}
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// Flush forwards Flush to the underlying ResponseWriter if it supports
// http.Flusher.
func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
