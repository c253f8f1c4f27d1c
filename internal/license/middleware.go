package license

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labelzoom/edge-gateway/internal/storage"
)

// Middleware gates a route on a valid license bearer token. It must be
// composed after storage.WithConnection; running without the request
// connection is a wiring error in the route composition and surfaces as an
// internal error, not an auth failure.
func Middleware(auth *Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn := storage.ConnFromContext(r.Context())
			if conn == nil {
				logger.Error("license middleware invoked without a database connection; it must be sequenced after the connection middleware")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w)
				return
			}

			if !auth.Authenticate(r.Context(), token, conn) {
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
