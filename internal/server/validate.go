package server

import "net/http"

// RequireContentType rejects conversion requests that omit a Content-Type
// header. The backend needs it to decode the inbound document.
func RequireContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") == "" {
			http.Error(w, "Content-Type header is required", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireBody rejects conversion requests with no body. A negative
// ContentLength means the length is unknown (chunked transfer), which still
// counts as having a body.
func RequireBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.ContentLength == 0 {
			http.Error(w, "Request body is required", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}
