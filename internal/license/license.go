// Package license authenticates callers against the licensing database.
package license

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/labelzoom/edge-gateway/internal/storage"
)

// tokenShape is a loose JWT-shape check: three dot-separated segments of at
// least two URL-safe characters each. Anything else is rejected before any
// decode attempt.
var tokenShape = regexp.MustCompile(`^[A-Za-z0-9_-]{2,}\.[A-Za-z0-9_-]{2,}\.[A-Za-z0-9_-]{2,}$`)

// Claims is the decoded payload of a license bearer token.
type Claims struct {
	LicenseID string
	Secret    string
	// Verified is always false: license tokens are decoded without signature
	// or expiry verification. Known gap inherited from the current licensing
	// scheme; do not rely on these claims outside the database check.
	Verified bool
}

// DecodeClaims decodes a bearer token's claims without verifying them.
func DecodeClaims(token string) (*Claims, error) {
	if !tokenShape.MatchString(token) {
		return nil, fmt.Errorf("token does not match bearer token shape")
	}

	tok, err := jwt.ParseInsecure([]byte(token))
	if err != nil {
		return nil, fmt.Errorf("failed to decode token claims: %w", err)
	}

	claims := &Claims{}
	if v, ok := tok.Get("lic"); ok {
		claims.LicenseID, _ = v.(string)
	}
	if v, ok := tok.Get("secret"); ok {
		claims.Secret, _ = v.(string)
	}
	return claims, nil
}

// Authenticator checks decoded license claims against the database.
type Authenticator struct {
	logger *slog.Logger
}

func NewAuthenticator(logger *slog.Logger) *Authenticator {
	return &Authenticator{logger: logger}
}

// Authenticate reports whether the token belongs to a valid license. A
// request is authorized iff exactly one license row matches the decoded
// (id, secret) pair. Unexpected failures (decode errors, unreachable
// database) are logged and treated as unauthenticated, never propagated.
func (a *Authenticator) Authenticate(ctx context.Context, token string, conn *storage.Conn) bool {
	claims, err := DecodeClaims(token)
	if err != nil {
		a.logger.Warn("error validating token", slog.String("error", err.Error()))
		return false
	}
	if claims.LicenseID == "" || claims.Secret == "" {
		return false
	}

	ok, err := conn.VerifyLicense(ctx, claims.LicenseID, claims.Secret)
	if err != nil {
		a.logger.Warn("error validating token", slog.String("error", err.Error()))
		return false
	}
	return ok
}
