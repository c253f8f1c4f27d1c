package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/labelzoom/edge-gateway/internal/storage"
)

// Download redirects installer downloads to their storage URL. The special
// version "latest" resolves to the most recent enabled version in the
// database.
func Download(baseURL, product string, logger *slog.Logger) http.HandlerFunc {
	baseURL = strings.TrimRight(baseURL, "/")

	return func(w http.ResponseWriter, r *http.Request) {
		version := chi.URLParam(r, "version")
		packageName := chi.URLParam(r, "packageName")

		if version == "latest" {
			conn := storage.ConnFromContext(r.Context())
			if conn == nil {
				logger.Error("download handler invoked without a database connection")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			v, err := conn.LatestEnabledVersion(r.Context(), product)
			if errors.Is(err, storage.ErrNotFound) {
				http.Error(w, "No released version available", http.StatusNotFound)
				return
			}
			if err != nil {
				logger.Error("failed to resolve latest version", slog.String("error", err.Error()))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			version = v.String()
		}

		http.Redirect(w, r, baseURL+"/"+version+"/"+packageName, http.StatusFound)
	}
}
