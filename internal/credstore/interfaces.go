package credstore

import (
	"context"
	"errors"

	"github.com/mjansen/ledgerlink/internal/credential"
)

// ErrNotFound is returned by Get when no credential set is stored for the
// given subject.
var ErrNotFound = errors.New("no credential set stored for subject")

// Store persists credential sets keyed by subject id.
//
// Put is a full-record replace: backends must never expose a partially
// written set to a concurrent Get.
type Store interface {
	// Get returns the stored credential set for the subject.
	// Returns ErrNotFound if none is stored.
	Get(ctx context.Context, subjectID string) (credential.Set, error)

	// Put stores the credential set under its subject id, replacing any
	// existing set atomically.
	Put(ctx context.Context, set credential.Set) error

	// Delete removes the credential set for the subject. Deleting an
	// absent subject is not an error.
	Delete(ctx context.Context, subjectID string) error
}
