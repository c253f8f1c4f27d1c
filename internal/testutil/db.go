package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/labelzoom/edge-gateway/internal/storage"
)

// licenseSchema mirrors the subset of the licensing database the gateway
// reads from.
var licenseSchema = []string{
	`CREATE TABLE IF NOT EXISTS licenses (
		id TEXT NOT NULL,
		license_secret TEXT NOT NULL,
		customer_id TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS products_variants (
		id INTEGER PRIMARY KEY,
		product_id INTEGER NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS products_variants_versions (
		id INTEGER PRIMARY KEY,
		variant_id INTEGER NOT NULL,
		major INTEGER NOT NULL,
		minor INTEGER NOT NULL,
		revision INTEGER NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		login_token TEXT,
		login_token_expires_at TIMESTAMP
	)`,
}

// NewLicenseDB creates a sqlite-backed license store for tests, plus a raw
// handle on the same file for seeding rows.
func NewLicenseDB(t *testing.T) (*storage.Store, *sql.DB) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "license_test.db")

	seed, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open seed handle: %v", err)
	}
	t.Cleanup(func() { seed.Close() })

	for _, stmt := range licenseSchema {
		if _, err := seed.Exec(stmt); err != nil {
			t.Fatalf("schema statement failed: %v", err)
		}
	}

	store, err := storage.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store, seed
}
