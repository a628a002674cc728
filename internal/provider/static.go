package provider

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mjansen/ledgerlink/internal/credential"
)

// AccessTokenEnv is the environment variable the lazy registry default and
// StaticFromEnv read a JSON-encoded credential set from.
const AccessTokenEnv = "LEDGERLINK_CREDENTIALS"

// StaticProvider serves one fixed credential set supplied via process
// configuration. Single tenant: the subject id is ignored. It has no
// refresh capability; once the configured token expires every call fails
// with ErrExpiredCredential.
type StaticProvider struct {
	set credential.Set
	now func() time.Time
}

// Compile-time check to ensure StaticProvider implements TokenProvider
var _ TokenProvider = (*StaticProvider)(nil)

// StaticOption configures a StaticProvider.
type StaticOption func(*StaticProvider)

// WithStaticClock sets the time source, for tests.
func WithStaticClock(now func() time.Time) StaticOption {
	return func(p *StaticProvider) {
		p.now = now
	}
}

// NewStaticProvider creates a provider serving the given credential set.
// Returns error if the set has no access token.
func NewStaticProvider(set credential.Set, opts ...StaticOption) (*StaticProvider, error) {
	if set.AccessToken == "" {
		return nil, fmt.Errorf("%w: static credentials have no access token", ErrMissingConfiguration)
	}

	p := &StaticProvider{
		set: set,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// StaticFromEnv creates a provider from the AccessTokenEnv environment
// variable. Unlike NewStaticProvider it tolerates absent configuration so
// the registry's lazy default is always constructible; calls then fail
// with ErrMissingConfiguration.
func StaticFromEnv() *StaticProvider {
	p := &StaticProvider{now: time.Now}

	raw, exists := os.LookupEnv(AccessTokenEnv)
	if !exists {
		return p
	}
	set, err := credential.Decode([]byte(raw))
	if err != nil {
		return p
	}
	p.set = set
	return p
}

// AccessToken returns the configured token. The subject id is ignored
// (single tenant). Never refreshes and never calls upstream.
func (p *StaticProvider) AccessToken(ctx context.Context, subjectID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if p.set.AccessToken == "" {
		return "", fmt.Errorf("%w: %s not set", ErrMissingConfiguration, AccessTokenEnv)
	}
	if !p.set.ExpiresAt.IsZero() && p.set.Expired(p.now()) {
		return "", fmt.Errorf("%w: static token expired at %s", ErrExpiredCredential, p.set.ExpiresAt.Format(time.RFC3339))
	}
	return p.set.AccessToken, nil
}
