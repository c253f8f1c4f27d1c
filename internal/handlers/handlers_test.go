package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/labelzoom/edge-gateway/internal/handlers"
	"github.com/labelzoom/edge-gateway/internal/storage"
	"github.com/labelzoom/edge-gateway/internal/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetchRemote(t *testing.T) {
	rec, cleanup := testutil.NewVCRRecorder(t, "fetch_remote")
	defer cleanup()

	router := chi.NewRouter()
	router.Get("/api/v2/convert/url/to/zpl/*", handlers.FetchRemote(testutil.VCRHTTPClient(rec), testLogger()))

	req := httptest.NewRequest("GET", "/api/v2/convert/url/to/zpl/https://www.example.com/label.xml", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %q", resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/xml" {
		t.Errorf("Content-Type = %q, want application/xml", ct)
	}
	if !strings.Contains(resp.Body.String(), "HELLO") {
		t.Errorf("body = %q, want the remote document", resp.Body.String())
	}
}

func TestFetchRemoteRejectsRelativeURL(t *testing.T) {
	router := chi.NewRouter()
	router.Get("/api/v2/convert/url/to/zpl/*", handlers.FetchRemote(http.DefaultClient, testLogger()))

	req := httptest.NewRequest("GET", "/api/v2/convert/url/to/zpl/label.xml", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.Code)
	}
}

func heartbeatRouter(t *testing.T) chi.Router {
	t.Helper()
	store, _ := testutil.NewLicenseDB(t)

	router := chi.NewRouter()
	router.With(storage.WithConnection(store, testLogger())).
		Get("/api/v2/heartbeat/{probe}", handlers.Heartbeat(testLogger()))
	return router
}

func TestHeartbeatDatabaseProbe(t *testing.T) {
	router := heartbeatRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest("GET", "/api/v2/heartbeat/db-primary", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %q", resp.Code, resp.Body.String())
	}
	if resp.Body.String() != "OK" {
		t.Errorf("body = %q, want OK", resp.Body.String())
	}
}

func TestHeartbeatUnknownProbe(t *testing.T) {
	router := heartbeatRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest("GET", "/api/v2/heartbeat/disk", nil))

	if resp.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.Code)
	}
}

func TestHeartbeatWithoutConnectionIs500(t *testing.T) {
	router := chi.NewRouter()
	router.Get("/api/v2/heartbeat/{probe}", handlers.Heartbeat(testLogger()))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest("GET", "/api/v2/heartbeat/db-primary", nil))

	if resp.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 on missing connection middleware", resp.Code)
	}
}

func downloadRouter(t *testing.T, baseURL string) chi.Router {
	t.Helper()
	store, seed := testutil.NewLicenseDB(t)

	mustExec := func(q string, args ...any) {
		t.Helper()
		if _, err := seed.Exec(q, args...); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
	mustExec(`INSERT INTO products (id, name, enabled) VALUES (1, 'LabelZoom Studio', 1)`)
	mustExec(`INSERT INTO products_variants (id, product_id, enabled) VALUES (10, 1, 1)`)
	mustExec(`INSERT INTO products_variants_versions (variant_id, major, minor, revision, enabled) VALUES (10, 3, 2, 1, 1)`)
	mustExec(`INSERT INTO products_variants_versions (variant_id, major, minor, revision, enabled) VALUES (10, 4, 0, 0, 0)`)

	router := chi.NewRouter()
	router.With(storage.WithConnection(store, testLogger())).
		Get("/api/v3/download/{version}/{packageName}", handlers.Download(baseURL, "LabelZoom Studio", testLogger()))
	return router
}

func TestDownloadLatestResolvesEnabledVersion(t *testing.T) {
	router := downloadRouter(t, "https://downloads.labelzoom.net/studio")

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest("GET", "/api/v3/download/latest/installer.exe", nil))

	if resp.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", resp.Code)
	}
	want := "https://downloads.labelzoom.net/studio/3.2.1/installer.exe"
	if got := resp.Header().Get("Location"); got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
}

func TestDownloadExplicitVersionSkipsLookup(t *testing.T) {
	// No connection middleware: explicit versions must not touch the database.
	router := chi.NewRouter()
	router.Get("/api/v3/download/{version}/{packageName}",
		handlers.Download("https://downloads.labelzoom.net/studio/", "LabelZoom Studio", testLogger()))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest("GET", "/api/v3/download/2.0.0/installer.exe", nil))

	if resp.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", resp.Code)
	}
	want := "https://downloads.labelzoom.net/studio/2.0.0/installer.exe"
	if got := resp.Header().Get("Location"); got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
}

func TestDownloadLatestWithoutReleases(t *testing.T) {
	store, _ := testutil.NewLicenseDB(t)

	router := chi.NewRouter()
	router.With(storage.WithConnection(store, testLogger())).
		Get("/api/v3/download/{version}/{packageName}",
			handlers.Download("https://downloads.labelzoom.net/studio", "LabelZoom Studio", testLogger()))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest("GET", "/api/v3/download/latest/installer.exe", nil))

	if resp.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.Code)
	}
}

var sessionKey = []byte("test-session-signing-key")

func loginRouter(t *testing.T) chi.Router {
	t.Helper()
	store, seed := testutil.NewLicenseDB(t)

	expires := time.Now().UTC().Add(time.Hour)
	if _, err := seed.Exec(
		`INSERT INTO users (id, email, login_token, login_token_expires_at) VALUES (?, ?, ?, ?)`,
		"user-42", "dev@labelzoom.net", "one-time-token", expires,
	); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	router := chi.NewRouter()
	router.With(storage.WithConnection(store, testLogger())).
		Post("/api/v3/auth/login", handlers.Login(sessionKey, 5*time.Minute, testLogger()))
	return router
}

func postLogin(t *testing.T, router chi.Router, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v3/auth/login", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestLoginIssuesSignedSession(t *testing.T) {
	router := loginRouter(t)

	resp := postLogin(t, router, `{"email":"dev@labelzoom.net","token":"one-time-token"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %q", resp.Code, resp.Body.String())
	}

	var out struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}

	tok, err := jwt.Parse([]byte(out.Token), jwt.WithKey(jwa.HS256, sessionKey))
	if err != nil {
		t.Fatalf("session token does not verify: %v", err)
	}
	if tok.Subject() != "user-42" {
		t.Errorf("subject = %q, want user-42", tok.Subject())
	}

	ttl := time.Until(out.ExpiresAt)
	if ttl <= 0 || ttl > 5*time.Minute {
		t.Errorf("expiresAt = %v, want within the next five minutes", out.ExpiresAt)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	router := loginRouter(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"wrong token", `{"email":"dev@labelzoom.net","token":"stolen"}`, http.StatusUnauthorized},
		{"unknown email", `{"email":"nobody@labelzoom.net","token":"one-time-token"}`, http.StatusUnauthorized},
		{"missing fields", `{"email":"dev@labelzoom.net"}`, http.StatusBadRequest},
		{"malformed body", `{not json`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := postLogin(t, router, tt.body); resp.Code != tt.want {
				t.Errorf("status = %d, want %d", resp.Code, tt.want)
			}
		})
	}
}

func TestLoginRejectsExpiredToken(t *testing.T) {
	store, seed := testutil.NewLicenseDB(t)

	expired := time.Now().UTC().Add(-time.Minute)
	if _, err := seed.Exec(
		`INSERT INTO users (id, email, login_token, login_token_expires_at) VALUES (?, ?, ?, ?)`,
		"user-7", "late@labelzoom.net", "stale-token", expired,
	); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	router := chi.NewRouter()
	router.With(storage.WithConnection(store, testLogger())).
		Post("/api/v3/auth/login", handlers.Login(sessionKey, 5*time.Minute, testLogger()))

	resp := postLogin(t, router, `{"email":"late@labelzoom.net","token":"stale-token"}`)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for expired token", resp.Code)
	}
}
