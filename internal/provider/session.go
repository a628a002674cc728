package provider

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionVerifier validates HMAC-signed session tokens carried in the
// Authorization header and extracts the subject id they were issued for.
type SessionVerifier struct {
	secret []byte
	now    func() time.Time
}

// SessionOption configures a SessionVerifier.
type SessionOption func(*SessionVerifier)

// WithSessionClock sets the time source used for claim validation, for
// tests.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(v *SessionVerifier) {
		v.now = now
	}
}

// NewSessionVerifier creates a verifier for tokens signed with the given
// secret. The secret is required process configuration in remote mode.
func NewSessionVerifier(secret string, opts ...SessionOption) (*SessionVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: session signing secret is required", ErrMissingConfiguration)
	}

	v := &SessionVerifier{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// SubjectFromRequest validates the bearer session token on the request and
// returns its subject claim. All validation failures map to
// ErrInvalidSession so the boundary answers them uniformly as 401.
func (v *SessionVerifier) SubjectFromRequest(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || raw == "" {
		return "", fmt.Errorf("%w: missing bearer token", ErrInvalidSession)
	}
	return v.Subject(raw)
}

// Subject validates a raw session token and returns its subject claim.
func (v *SessionVerifier) Subject(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject claim", ErrInvalidSession)
	}
	return claims.Subject, nil
}
