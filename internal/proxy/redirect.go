// Package proxy forwards unmatched requests to the backend origin and
// normalizes the responses that come back through the gateway.
package proxy

import (
	"net/http"
	"net/url"
	"strings"
)

// RelativeRedirects rewrites absolute redirect Locations that point at the
// gateway's own domain (or any subdomain) into relative ones, so clients
// keep talking to the gateway instead of being bounced to the origin.
// Only the Location header is touched; status and body pass through.
func RelativeRedirects(domain string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(&redirectWriter{ResponseWriter: w, domain: domain}, r)
		})
	}
}

type redirectWriter struct {
	http.ResponseWriter
	domain string
}

func (rw *redirectWriter) WriteHeader(code int) {
	if hasLocationSemantics(code) {
		if loc := rw.Header().Get("Location"); loc != "" {
			if rel, ok := RelativizeLocation(loc, rw.domain); ok {
				rw.Header().Set("Location", rel)
			}
		}
	}
	rw.ResponseWriter.WriteHeader(code)
}

// Flush forwards Flush to the underlying ResponseWriter if it supports
// http.Flusher.
func (rw *redirectWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// hasLocationSemantics reports whether the status code carries a Location
// header worth normalizing: all 3xx redirects plus 201 Created.
func hasLocationSemantics(code int) bool {
	return code == http.StatusCreated || (code >= 300 && code < 400)
}

// RelativizeLocation rewrites an absolute URL on the given domain to its
// path plus query. Returns false when the value is already relative, fails
// to parse, or points at a different domain; those pass through unchanged.
// Applying it to its own output is a no-op.
func RelativizeLocation(location, domain string) (string, bool) {
	u, err := url.Parse(location)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", false
	}

	if !matchesDomain(u.Hostname(), domain) {
		return "", false
	}

	rel := u.EscapedPath()
	if rel == "" {
		rel = "/"
	}
	if u.RawQuery != "" {
		rel += "?" + u.RawQuery
	}
	return rel, true
}

// matchesDomain reports whether host is the domain itself or any subdomain,
// case-insensitive. "notlabelzoom.net" must not match "labelzoom.net".
func matchesDomain(host, domain string) bool {
	host = strings.ToLower(host)
	domain = strings.ToLower(domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}
