// Package requestid generates and propagates per-request correlation ids.
// Archived bodies, telemetry events, and forwarded backend calls all share
// the same id.
package requestid

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Header carries the request id on responses and forwarded requests.
const Header = "X-LZ-Request-Id"

// ctxKey identifies the request id in a context.
type ctxKey struct{}

// New generates a request id of the form YYYY/MM/DD/HHMMSS--<uuid>. The
// timestamp prefix doubles as the directory layout for archived bodies, so
// ids sort roughly by arrival time.
func New(now time.Time) string {
	return now.UTC().Format("2006/01/02/150405") + "--" + uuid.New().String()
}

// Middleware tags each request with a fresh id, exposes it via the response
// header, and stores it in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := New(time.Now())
		ctx := context.WithValue(r.Context(), ctxKey{}, id)
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext retrieves the request id. Returns an empty string if the
// middleware is not present.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}
