package requestid

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"
)

var idPattern = regexp.MustCompile(`^\d{4}/\d{2}/\d{2}/\d{6}--[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestNewFormat(t *testing.T) {
	ts := time.Date(2026, 8, 29, 13, 45, 9, 0, time.UTC)
	id := New(ts)

	if !idPattern.MatchString(id) {
		t.Fatalf("New() = %q, does not match expected format", id)
	}
	const wantPrefix = "2026/08/29/134509--"
	if id[:len(wantPrefix)] != wantPrefix {
		t.Errorf("New() prefix = %q, want %q", id[:len(wantPrefix)], wantPrefix)
	}
}

func TestNewIsUnique(t *testing.T) {
	ts := time.Now()
	if New(ts) == New(ts) {
		t.Error("two ids from the same instant collided")
	}
}

func TestMiddleware(t *testing.T) {
	var inner string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/api/v2/convert/xml/to/zpl", nil)
	rec := httptest.NewRecorder()
	Middleware(handler).ServeHTTP(rec, req)

	if inner == "" {
		t.Fatal("request id missing from context")
	}
	if got := rec.Header().Get(Header); got != inner {
		t.Errorf("%s header = %q, want %q", Header, got, inner)
	}
	if !idPattern.MatchString(inner) {
		t.Errorf("request id %q does not match expected format", inner)
	}
}

func TestFromContextWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	if got := FromContext(req.Context()); got != "" {
		t.Errorf("FromContext() = %q, want empty", got)
	}
}
