// Package storage provides read-only access to the licensing database.
// The gateway never writes to these tables; it only authenticates licenses,
// resolves download versions, and checks login tokens.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup matches no rows.
var ErrNotFound = errors.New("storage: not found")

// Store wraps the database pool. Request-scoped connections are checked out
// via Acquire and must be released by the caller.
type Store struct {
	db *sql.DB
}

// Open connects to the database. Supported drivers: mysql (production,
// matching the upstream licensing database) and sqlite (tests).
func Open(driver, dsn string) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "sqlite" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA foreign_keys=ON;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Acquire checks a single connection out of the pool for the duration of one
// request. The caller owns the connection and must Close it on every exit
// path.
func (s *Store) Acquire(ctx context.Context) (*Conn, error) {
	c, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &Conn{conn: c}, nil
}

// Conn is a request-scoped database connection.
type Conn struct {
	conn *sql.Conn
}

// Close returns the connection to the pool.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Ping runs a trivial query, used by the heartbeat probe.
func (c *Conn) Ping(ctx context.Context) error {
	var one int
	return c.conn.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

// VerifyLicense reports whether exactly one license row matches the id and
// secret. Zero matches and duplicate matches are both unauthorized.
func (c *Conn) VerifyLicense(ctx context.Context, id, secret string) (bool, error) {
	var n int
	err := c.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM licenses WHERE id = ? AND license_secret = ?",
		id, secret,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("license lookup failed: %w", err)
	}
	return n == 1, nil
}

// CustomerForLicense resolves the customer that owns a license.
func (c *Conn) CustomerForLicense(ctx context.Context, licenseID string) (string, error) {
	var customerID string
	err := c.conn.QueryRowContext(ctx,
		"SELECT customer_id FROM licenses WHERE id = ?",
		licenseID,
	).Scan(&customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("customer lookup failed: %w", err)
	}
	return customerID, nil
}

// ProductVersion is one released version of a downloadable product.
type ProductVersion struct {
	Major    int
	Minor    int
	Revision int
}

func (v ProductVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Revision)
}

// LatestEnabledVersion resolves the most recent enabled version of the named
// product, ordered by major, minor, revision descending. Disabled products,
// variants, and versions are excluded.
func (c *Conn) LatestEnabledVersion(ctx context.Context, product string) (ProductVersion, error) {
	const query = `
SELECT pvv.major, pvv.minor, pvv.revision
FROM products_variants_versions pvv
JOIN products_variants pv ON pv.id = pvv.variant_id
JOIN products p ON p.id = pv.product_id
WHERE p.name = ?
  AND p.enabled = 1
  AND pv.enabled = 1
  AND pvv.enabled = 1
ORDER BY pvv.major DESC, pvv.minor DESC, pvv.revision DESC
LIMIT 1`

	var v ProductVersion
	err := c.conn.QueryRowContext(ctx, query, product).Scan(&v.Major, &v.Minor, &v.Revision)
	if errors.Is(err, sql.ErrNoRows) {
		return ProductVersion{}, ErrNotFound
	}
	if err != nil {
		return ProductVersion{}, fmt.Errorf("version lookup failed: %w", err)
	}
	return v, nil
}

// UserIDForLogin resolves a user id from an email and one-time login token.
// Expired tokens do not match.
func (c *Conn) UserIDForLogin(ctx context.Context, email, token string, now time.Time) (string, error) {
	var userID string
	err := c.conn.QueryRowContext(ctx,
		"SELECT id FROM users WHERE email = ? AND login_token = ? AND login_token_expires_at > ?",
		email, token, now,
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("login token lookup failed: %w", err)
	}
	return userID, nil
}
