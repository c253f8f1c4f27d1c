package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

const gatewayDomain = "labelzoom.net"

func TestRelativizeLocation(t *testing.T) {
	tests := []struct {
		name     string
		location string
		want     string
		rewrite  bool
	}{
		{
			name:     "absolute api subdomain",
			location: "https://api.labelzoom.net/some/path?query=value",
			want:     "/some/path?query=value",
			rewrite:  true,
		},
		{
			name:     "absolute www subdomain",
			location: "https://www.labelzoom.net/another/path",
			want:     "/another/path",
			rewrite:  true,
		},
		{
			name:     "bare domain with query",
			location: "https://labelzoom.net/path?foo=bar&baz=qux",
			want:     "/path?foo=bar&baz=qux",
			rewrite:  true,
		},
		{
			name:     "case-insensitive host",
			location: "https://API.LABELZOOM.NET/path",
			want:     "/path",
			rewrite:  true,
		},
		{
			name:     "host with port",
			location: "https://api.labelzoom.net:8443/path",
			want:     "/path",
			rewrite:  true,
		},
		{
			name:     "empty path becomes root",
			location: "https://labelzoom.net",
			want:     "/",
			rewrite:  true,
		},
		{
			name:     "relative stays untouched",
			location: "/relative/path",
			rewrite:  false,
		},
		{
			name:     "other domain stays untouched",
			location: "https://example.com/path",
			rewrite:  false,
		},
		{
			name:     "lookalike domain stays untouched",
			location: "https://notlabelzoom.net/path",
			rewrite:  false,
		},
		{
			name:     "scheme-less value stays untouched",
			location: "labelzoom.net/path",
			rewrite:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RelativizeLocation(tt.location, gatewayDomain)
			if ok != tt.rewrite {
				t.Fatalf("RelativizeLocation(%q) rewrite = %v, want %v", tt.location, ok, tt.rewrite)
			}
			if ok && got != tt.want {
				t.Errorf("RelativizeLocation(%q) = %q, want %q", tt.location, got, tt.want)
			}
		})
	}
}

func TestRelativizeLocationIsIdempotent(t *testing.T) {
	first, ok := RelativizeLocation("https://api.labelzoom.net/a/b?c=d", gatewayDomain)
	if !ok {
		t.Fatal("first pass did not rewrite")
	}
	// The output is relative, so a second pass must leave it alone.
	if _, ok := RelativizeLocation(first, gatewayDomain); ok {
		t.Errorf("second pass rewrote %q again", first)
	}
}

func TestRelativeRedirectsMiddleware(t *testing.T) {
	statuses := []int{201, 301, 302, 303, 307, 308}
	for _, status := range statuses {
		t.Run(http.StatusText(status), func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Location", "https://api.labelzoom.net/some/path?query=value")
				w.WriteHeader(status)
			})

			rec := httptest.NewRecorder()
			RelativeRedirects(gatewayDomain)(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))

			if rec.Code != status {
				t.Errorf("status = %d, want %d", rec.Code, status)
			}
			if got := rec.Header().Get("Location"); got != "/some/path?query=value" {
				t.Errorf("Location = %q, want /some/path?query=value", got)
			}
		})
	}
}

func TestRelativeRedirectsLeavesOtherResponsesAlone(t *testing.T) {
	t.Run("200 with Location-like header", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Location", "https://api.labelzoom.net/x")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"message":"OK"}`))
		})

		rec := httptest.NewRecorder()
		RelativeRedirects(gatewayDomain)(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))

		if got := rec.Header().Get("Location"); got != "https://api.labelzoom.net/x" {
			t.Errorf("Location = %q, non-redirect statuses must pass through", got)
		}
		if rec.Body.String() != `{"message":"OK"}` {
			t.Errorf("body = %q, must not be consumed", rec.Body.String())
		}
	})

	t.Run("redirect to foreign domain", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "https://example.com/path", http.StatusFound)
		})

		rec := httptest.NewRecorder()
		RelativeRedirects(gatewayDomain)(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))

		if got := rec.Header().Get("Location"); got != "https://example.com/path" {
			t.Errorf("Location = %q, foreign redirects must pass through", got)
		}
	})

	t.Run("redirect without Location", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotModified)
		})

		rec := httptest.NewRecorder()
		RelativeRedirects(gatewayDomain)(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))

		if rec.Code != http.StatusNotModified {
			t.Errorf("status = %d, want 304", rec.Code)
		}
	})
}
