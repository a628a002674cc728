package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/mjansen/ledgerlink/internal/ratelimit"
)

// ErrUnavailable is returned when the upstream cannot be reached or times
// out. Retryable; distinct from an authorization failure.
var ErrUnavailable = errors.New("upstream unavailable")

// ErrNoSubject is returned when a request reaches the transport without a
// subject attached to its context.
var ErrNoSubject = errors.New("no subject associated with request")

// TokenSource supplies a valid bearer token for a subject.
// Satisfied by the token providers in internal/provider.
type TokenSource interface {
	AccessToken(ctx context.Context, subjectID string) (string, error)
}

type contextKey struct{}

// WithSubject attaches the subject id the request is made on behalf of.
func WithSubject(ctx context.Context, subjectID string) context.Context {
	return context.WithValue(ctx, contextKey{}, subjectID)
}

// SubjectFromContext returns the subject id attached by WithSubject.
func SubjectFromContext(ctx context.Context) (string, bool) {
	subjectID, ok := ctx.Value(contextKey{}).(string)
	return subjectID, ok
}

// ClampPageSize bounds a requested page size to the upstream's limits.
// Zero or negative values get the default page size.
func ClampPageSize(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

// Transport injects per-subject bearer tokens into outgoing resource API
// requests and enforces quota admission before each one.
type Transport struct {
	// Source supplies the bearer token for the request's subject.
	Source TokenSource

	// Limiter admits requests against the upstream quota.
	Limiter *ratelimit.Limiter

	// Base is the underlying transport. http.DefaultTransport if nil.
	Base http.RoundTripper
}

// Compile-time check that Transport implements http.RoundTripper.
var _ http.RoundTripper = (*Transport)(nil)

// RoundTrip resolves the subject's token, admits the request against the
// quota, and forwards it with the Authorization header replaced.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	subjectID, ok := SubjectFromContext(req.Context())
	if !ok {
		return nil, ErrNoSubject
	}

	if err := t.Limiter.Admit(); err != nil {
		return nil, err
	}

	token, err := t.Source.AccessToken(req.Context(), subjectID)
	if err != nil {
		return nil, err
	}

	newReq := req.Clone(req.Context())
	newReq.Header.Set("Authorization", "Bearer "+token)
	clampQueryPageSize(newReq)

	resp, err := t.base().RoundTrip(newReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, nil
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// clampQueryPageSize rewrites the per_page query parameter to stay within
// the upstream's pagination bounds. Requests without one are forwarded
// unchanged; the upstream applies its own default.
func clampQueryPageSize(req *http.Request) {
	q := req.URL.Query()
	raw := q.Get("per_page")
	if raw == "" {
		return
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		n = 0
	}
	q.Set("per_page", strconv.Itoa(ClampPageSize(n)))
	req.URL.RawQuery = q.Encode()
}
