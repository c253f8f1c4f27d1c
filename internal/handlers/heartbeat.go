package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/labelzoom/edge-gateway/internal/storage"
)

// Heartbeat serves liveness probes. Database probes (db-*) run a trivial
// query through the request's connection; anything else is unknown.
func Heartbeat(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		probe := chi.URLParam(r, "probe")
		if !strings.HasPrefix(probe, "db-") {
			http.Error(w, "Unknown probe", http.StatusNotFound)
			return
		}

		conn := storage.ConnFromContext(r.Context())
		if conn == nil {
			logger.Error("heartbeat handler invoked without a database connection")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		if err := conn.Ping(r.Context()); err != nil {
			logger.Error("heartbeat query failed", slog.String("error", err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}
