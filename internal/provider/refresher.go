package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/mjansen/ledgerlink/internal/credential"
	"github.com/mjansen/ledgerlink/internal/ratelimit"
	"github.com/mjansen/ledgerlink/internal/upstream"
)

const (
	// refreshTimeout bounds the token exchange call. A timeout is
	// reported as upstream.ErrUnavailable, never as success or as a
	// verdict on the existing credential.
	refreshTimeout = 30 * time.Second

	// fallbackTokenTTL is assumed when the token response carries no
	// expiry. Conservative so the refresh buffer still triggers renewal.
	fallbackTokenTTL = time.Hour
)

// Refresher owns the refresh handshake against the upstream authorization
// endpoint. It holds no storage: a refresh produces a new credential set
// and the caller decides whether to persist it.
type Refresher struct {
	conf       *oauth2.Config
	limiter    *ratelimit.Limiter
	httpClient *http.Client
	sessions   *SessionVerifier
	now        func() time.Time
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithHTTPClient sets the HTTP client used for token exchange requests.
func WithHTTPClient(client *http.Client) RefresherOption {
	return func(r *Refresher) {
		r.httpClient = client
	}
}

// WithSessionVerifier sets the verifier used to extract subject ids from
// inbound requests.
func WithSessionVerifier(v *SessionVerifier) RefresherOption {
	return func(r *Refresher) {
		r.sessions = v
	}
}

// WithRefresherClock sets the time source, for tests.
func WithRefresherClock(now func() time.Time) RefresherOption {
	return func(r *Refresher) {
		r.now = now
	}
}

// NewRefresher creates a Refresher performing refresh-token grants with the
// given client credentials against the endpoint. Every handshake passes
// limiter admission first: refreshes count against the same upstream quota
// as resource calls.
func NewRefresher(clientID, clientSecret string, endpoint oauth2.Endpoint, limiter *ratelimit.Limiter, opts ...RefresherOption) (*Refresher, error) {
	if clientID == "" {
		return nil, fmt.Errorf("%w: oauth client id is required", ErrMissingConfiguration)
	}
	if limiter == nil {
		return nil, fmt.Errorf("refresher requires a rate limiter")
	}

	r := &Refresher{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     endpoint,
		},
		limiter:    limiter,
		httpClient: &http.Client{Timeout: refreshTimeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Refresh exchanges the set's refresh token for a new credential set.
// On any failure the input set is returned unchanged semantics-wise:
// Refresh never mutates storage and never partially updates a set.
func (r *Refresher) Refresh(ctx context.Context, set credential.Set) (credential.Set, error) {
	if !set.Refreshable() {
		return credential.Set{}, fmt.Errorf("%w: subject %s", ErrNotRefreshable, set.SubjectID)
	}

	if err := r.limiter.Admit(); err != nil {
		return credential.Set{}, fmt.Errorf("refresh for subject %s: %w", set.SubjectID, err)
	}

	// oauth2 resolves its HTTP client from the context. An empty access
	// token forces TokenSource to perform the refresh grant immediately.
	oauthCtx := context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	tok, err := r.conf.TokenSource(oauthCtx, &oauth2.Token{RefreshToken: set.RefreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return credential.Set{}, fmt.Errorf("%w: subject %s: %v", ErrRefreshFailed, set.SubjectID, retrieveErr)
		}
		return credential.Set{}, fmt.Errorf("%w: refreshing subject %s: %v", upstream.ErrUnavailable, set.SubjectID, err)
	}

	fresh := credential.Set{
		SubjectID:    set.SubjectID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		Scope:        set.Scope,
	}
	// Upstreams that don't rotate refresh tokens omit them from the
	// response; keep the current one so future refreshes still work.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = set.RefreshToken
	}
	if fresh.ExpiresAt.IsZero() {
		fresh.ExpiresAt = r.now().Add(fallbackTokenTTL)
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		fresh.Scope = scope
	}

	if err := fresh.Validate(r.now()); err != nil {
		return credential.Set{}, fmt.Errorf("%w: subject %s: %v", ErrRefreshFailed, set.SubjectID, err)
	}
	return fresh, nil
}

// SubjectFromRequest extracts and validates the caller's identity from the
// request's session token. Requires a SessionVerifier.
func (r *Refresher) SubjectFromRequest(req *http.Request) (string, error) {
	if r.sessions == nil {
		return "", fmt.Errorf("%w: no session verifier configured", ErrMissingConfiguration)
	}
	return r.sessions.SubjectFromRequest(req)
}
