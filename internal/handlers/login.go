package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/labelzoom/edge-gateway/internal/storage"
)

type loginRequest struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Login exchanges a one-time email token for a short-lived signed session
// token. The one-time token must exist in the users table and must not have
// expired.
func Login(signingKey []byte, ttl time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Email == "" || req.Token == "" {
			http.Error(w, "Email and token are required", http.StatusBadRequest)
			return
		}

		conn := storage.ConnFromContext(r.Context())
		if conn == nil {
			logger.Error("login handler invoked without a database connection")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		now := time.Now().UTC()
		userID, err := conn.UserIDForLogin(r.Context(), req.Email, req.Token, now)
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Invalid email or token", http.StatusUnauthorized)
			return
		}
		if err != nil {
			logger.Error("login lookup failed", slog.String("error", err.Error()))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		expiresAt := now.Add(ttl)
		tok, err := jwt.NewBuilder().
			Subject(userID).
			IssuedAt(now).
			Expiration(expiresAt).
			Build()
		if err != nil {
			logger.Error("failed to build session token", slog.String("error", err.Error()))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, signingKey))
		if err != nil {
			logger.Error("failed to sign session token", slog.String("error", err.Error()))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(loginResponse{
			Token:     string(signed),
			ExpiresAt: expiresAt,
		})
	}
}
