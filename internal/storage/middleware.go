package storage

import (
	"context"
	"log/slog"
	"net/http"
)

// connKey identifies the request-scoped connection in a context.
type connKey struct{}

// WithConnection acquires a database connection at the start of the request
// and releases it when the chain unwinds, regardless of how downstream
// middleware exits. Handlers that need the database must be composed below
// this middleware.
func WithConnection(store *Store, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := store.Acquire(r.Context())
			if err != nil {
				logger.Error("failed to acquire database connection", slog.String("error", err.Error()))
				http.Error(w, "Service temporarily unavailable", http.StatusInternalServerError)
				return
			}
			defer conn.Close()

			ctx := context.WithValue(r.Context(), connKey{}, conn)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ConnFromContext retrieves the connection installed by WithConnection.
// Returns nil if the middleware is not present, which is a wiring error in
// the route composition rather than a request error.
func ConnFromContext(ctx context.Context) *Conn {
	c, _ := ctx.Value(connKey{}).(*Conn)
	return c
}
