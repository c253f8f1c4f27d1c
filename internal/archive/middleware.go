package archive

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/labelzoom/edge-gateway/internal/background"
	"github.com/labelzoom/edge-gateway/internal/requestid"
)

// Options configures the sampled archive logger.
type Options struct {
	Store ObjectStore
	// SampleRate is the fraction of requests to archive, in [0,1].
	SampleRate float64
	// Sample draws one value in [0,1) per request. Defaults to the global
	// PRNG; injectable so tests are deterministic.
	Sample func() float64
	Logger *slog.Logger
}

// Middleware archives a sampled fraction of conversion exchanges. When a
// request is sampled, the inbound body and the raw params query value are
// scheduled for persistence before the handler runs, and the response body
// after it. All writes are detached best-effort tasks; the response returned
// to the client is never delayed or altered by archival outcome.
func Middleware(opts Options) func(http.Handler) http.Handler {
	sample := opts.Sample
	if sample == nil {
		sample = rand.Float64
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.Store == nil || sample() >= opts.SampleRate {
				next.ServeHTTP(w, r)
				return
			}

			id := requestid.FromContext(r.Context())
			sourceFormat := formatParam(r, "sourceFormat")
			targetFormat := formatParam(r, "targetFormat")

			// Bodies are single-read streams; buffer once, then hand the
			// handler an independent reader over the same bytes.
			body, err := io.ReadAll(r.Body)
			if err != nil {
				opts.Logger.Warn("failed to buffer request body for archival",
					slog.String("request_id", id),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			params := r.URL.Query().Get("params")

			// Scheduled before the handler so the inbound body is captured
			// even if the handler fails mid-flight.
			background.Go(r.Context(), opts.Logger, "archive in", func(ctx context.Context) error {
				return opts.Store.Put(ctx, id+"/in."+sourceFormat, body, ContentType(sourceFormat))
			})
			background.Go(r.Context(), opts.Logger, "archive params", func(ctx context.Context) error {
				return opts.Store.Put(ctx, id+"/params.json", []byte(params), "application/json")
			})

			// Tee the response so the client stream and the archive copy are
			// independent consumers of the same bytes.
			capture := &captureWriter{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			out := capture.buf.Bytes()
			background.Go(r.Context(), opts.Logger, "archive out", func(ctx context.Context) error {
				return opts.Store.Put(ctx, id+"/out."+targetFormat, out, ContentType(targetFormat))
			})
		})
	}
}

func formatParam(r *http.Request, name string) string {
	if v := chi.URLParam(r, name); v != "" {
		return v
	}
	return "json"
}

// captureWriter duplicates the response body into a buffer while streaming
// it to the client.
type captureWriter struct {
	http.ResponseWriter
	buf bytes.Buffer
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	cw.buf.Write(b)
	return cw.ResponseWriter.Write(b)
}

// Flush forwards Flush to the underlying ResponseWriter if it supports
// http.Flusher.
func (cw *captureWriter) Flush() {
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
