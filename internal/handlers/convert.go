// Package handlers implements the gateway's locally served routes. Anything
// not handled here falls through to the backend forwarder.
package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
)

// FetchRemote serves the license-gated url-to-zpl route: it fetches the
// caller-supplied URL and streams the content back so the conversion
// pipeline can consume it. The client must be configured with a transport
// that refuses internal addresses.
func FetchRemote(client *http.Client, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := chi.URLParam(r, "*")
		if target == "" {
			http.Error(w, "Remote URL is required", http.StatusBadRequest)
			return
		}
		if unescaped, err := url.PathUnescape(target); err == nil {
			target = unescaped
		}

		u, err := url.Parse(target)
		if err != nil || !u.IsAbs() || u.Host == "" {
			http.Error(w, "Remote URL must be absolute", http.StatusBadRequest)
			return
		}

		req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, u.String(), nil)
		if err != nil {
			http.Error(w, "Remote URL must be absolute", http.StatusBadRequest)
			return
		}

		resp, err := client.Do(req)
		if err != nil {
			logger.Error("failed to fetch remote document",
				slog.String("url", u.String()),
				slog.String("error", err.Error()),
			)
			http.Error(w, "Bad Gateway", http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		for k, vv := range resp.Header {
			w.Header()[k] = vv
		}
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			logger.Warn("error streaming remote document", slog.String("error", err.Error()))
		}
	}
}
