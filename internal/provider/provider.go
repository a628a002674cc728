package provider

import (
	"context"
	"fmt"

	"github.com/mjansen/ledgerlink/internal/credential"
	"github.com/mjansen/ledgerlink/internal/credstore"
)

// TokenProvider supplies valid access tokens for the upstream API.
//
// Implementations are a closed set selected once at construction via New:
// a static provider for local mode and a stored provider (backed by a
// credential store and the OAuth refresher) for remote mode.
type TokenProvider interface {
	// AccessToken returns a valid access token for the subject,
	// refreshing transparently when the implementation supports it.
	AccessToken(ctx context.Context, subjectID string) (string, error)
}

// Mode selects which provider variant New constructs.
type Mode string

const (
	// ModeLocal serves a single fixed credential from process
	// configuration.
	ModeLocal Mode = "local"

	// ModeRemote serves per-subject credentials from durable storage,
	// refreshing them through the OAuth refresher.
	ModeRemote Mode = "remote"
)

// Options carries the dependencies New wires into the selected variant.
type Options struct {
	Mode Mode

	// Static is the fixed credential set for local mode.
	Static credential.Set

	// Store and Refresher back the remote mode provider.
	Store     credstore.Store
	Refresher *Refresher
}

// New builds the provider variant for the given mode. It never mutates the
// process-wide registry; callers pass the result to Initialize.
func New(opts Options) (TokenProvider, error) {
	switch opts.Mode {
	case ModeLocal:
		return NewStaticProvider(opts.Static)
	case ModeRemote:
		if opts.Store == nil {
			return nil, fmt.Errorf("remote mode requires a credential store")
		}
		if opts.Refresher == nil {
			return nil, fmt.Errorf("remote mode requires a refresher")
		}
		return NewStoredProvider(opts.Store, opts.Refresher), nil
	default:
		return nil, fmt.Errorf("unsupported provider mode: %s", opts.Mode)
	}
}
