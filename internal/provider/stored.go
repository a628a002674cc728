package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mjansen/ledgerlink/internal/credstore"
)

// StoredProvider serves per-subject credentials from durable storage,
// renewing them through the Refresher when they enter the refresh buffer.
//
// Refreshes are single-flighted per subject: upstreams invalidate a refresh
// token on first use, so two callers racing the same exchange would
// silently revoke each other's new tokens. Concurrent callers for one
// subject share a single refresh and its result.
type StoredProvider struct {
	store     credstore.Store
	refresher *Refresher

	group singleflight.Group
	now   func() time.Time
}

// Compile-time check to ensure StoredProvider implements TokenProvider
var _ TokenProvider = (*StoredProvider)(nil)

// StoredOption configures a StoredProvider.
type StoredOption func(*StoredProvider)

// WithStoredClock sets the time source, for tests.
func WithStoredClock(now func() time.Time) StoredOption {
	return func(p *StoredProvider) {
		p.now = now
	}
}

// NewStoredProvider creates a provider reading credential sets from store
// and refreshing them through refresher.
func NewStoredProvider(store credstore.Store, refresher *Refresher, opts ...StoredOption) *StoredProvider {
	p := &StoredProvider{
		store:     store,
		refresher: refresher,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AccessToken returns a valid access token for the subject, refreshing and
// persisting first when the stored token is within the refresh buffer.
func (p *StoredProvider) AccessToken(ctx context.Context, subjectID string) (string, error) {
	set, err := p.store.Get(ctx, subjectID)
	if err != nil {
		if errors.Is(err, credstore.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrUnknownSubject, subjectID)
		}
		return "", fmt.Errorf("loading credential set for %s: %w", subjectID, err)
	}

	if !set.NeedsRefresh(p.now()) {
		return set.AccessToken, nil
	}

	if !set.Refreshable() {
		if set.Expired(p.now()) {
			return "", fmt.Errorf("%w: subject %s has no refresh token", ErrExpiredCredential, subjectID)
		}
		// Inside the buffer but still valid, and nothing to renew with.
		return set.AccessToken, nil
	}

	token, err, shared := p.group.Do(subjectID, func() (any, error) {
		return p.refreshAndStore(ctx, subjectID)
	})
	if err != nil {
		return "", err
	}
	if shared {
		slog.DebugContext(ctx, "shared in-flight token refresh", "subject", subjectID)
	}
	return token.(string), nil
}

// refreshAndStore runs inside the per-subject single-flight section. The
// refresh uses a context detached from the triggering caller: a caller
// abandoning its request must not cancel a refresh other waiters share.
func (p *StoredProvider) refreshAndStore(ctx context.Context, subjectID string) (string, error) {
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
	defer cancel()

	// Re-read under the flight: a previous flight may have renewed the
	// set while this caller waited for the lock.
	set, err := p.store.Get(refreshCtx, subjectID)
	if err != nil {
		if errors.Is(err, credstore.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrUnknownSubject, subjectID)
		}
		return "", fmt.Errorf("loading credential set for %s: %w", subjectID, err)
	}
	if !set.NeedsRefresh(p.now()) {
		return set.AccessToken, nil
	}

	fresh, err := p.refresher.Refresh(refreshCtx, set)
	if err != nil {
		// Storage stays untouched so a later manual re-authorization
		// starts from the last known state.
		return "", err
	}

	// Persist before returning: the new token must be durable before any
	// caller acts on it.
	if err := p.store.Put(refreshCtx, fresh); err != nil {
		return "", fmt.Errorf("persisting refreshed credential set for %s: %w", subjectID, err)
	}

	slog.InfoContext(refreshCtx, "refreshed credential set",
		"subject", subjectID,
		"expires_at", fresh.ExpiresAt.Format(time.RFC3339))

	return fresh.AccessToken, nil
}
