// Package auth resolves the identity behind a request's bearer token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/teleprompter/backend/internal/model"
)

// QueryParam carries the token for clients that cannot set headers
// (EventSource, browser WebSocket).
const QueryParam = "access_token"

// Verifier turns a credential into the user it belongs to. Every failure to
// authenticate is reported as model.ErrUnauthorized.
type Verifier interface {
	Verify(ctx context.Context, token string) (*model.User, error)
}

// UserLookup finds a user by ID.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// JWTVerifier verifies HS256 tokens whose subject is a user ID.
type JWTVerifier struct {
	secret []byte
	users  UserLookup
	clock  clockwork.Clock
}

// NewJWTVerifier creates a verifier for tokens signed with secret.
func NewJWTVerifier(secret string, users UserLookup, clock clockwork.Clock) *JWTVerifier {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &JWTVerifier{
		secret: []byte(secret),
		users:  users,
		clock:  clock,
	}
}

// Verify checks the token signature and expiry, then loads the subject.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", model.ErrUnauthorized)
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", model.ErrUnauthorized)
	}

	user, err := v.users.GetByID(ctx, claims.Subject)
	if errors.Is(err, model.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: unknown user %s", model.ErrUnauthorized, claims.Subject)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// IssueToken signs a token for userID. A zero ttl issues a token that never
// expires.
func IssueToken(secret, userID string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:  userID,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// TokenFromRequest returns the bearer token from the Authorization header,
// or the access_token query parameter when the header is absent.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get(QueryParam)
}
