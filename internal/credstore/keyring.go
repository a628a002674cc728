package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/mjansen/ledgerlink/internal/credential"
)

// KeyringStore persists credential sets in OS-native credential storage
// (macOS Keychain, Windows Credential Manager, Linux Secret Service),
// one JSON-encoded entry per subject.
type KeyringStore struct {
	service string
}

// Compile-time check to ensure KeyringStore implements Store
var _ Store = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore under the given service name.
func NewKeyringStore(service string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}

	return &KeyringStore{
		service: service,
	}, nil
}

// Get returns the credential set for the subject, or ErrNotFound.
func (k *KeyringStore) Get(ctx context.Context, subjectID string) (credential.Set, error) {
	if err := ctx.Err(); err != nil {
		return credential.Set{}, err
	}

	raw, err := keyring.Get(k.service, subjectID)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return credential.Set{}, ErrNotFound
		}
		return credential.Set{}, fmt.Errorf("keyring get for subject %s: %w", subjectID, err)
	}

	set, err := credential.Decode([]byte(raw))
	if err != nil {
		return credential.Set{}, fmt.Errorf("keyring entry for subject %s: %w", subjectID, err)
	}
	return set, nil
}

// Put replaces the credential set for the subject. keyring.Set overwrites
// the whole entry, so the replace is atomic from the caller's perspective.
func (k *KeyringStore) Put(ctx context.Context, set credential.Set) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if set.SubjectID == "" {
		return fmt.Errorf("credential set has no subject id")
	}

	data, err := credential.Encode(set)
	if err != nil {
		return err
	}

	return keyring.Set(k.service, set.SubjectID, string(data))
}

// Delete removes the credential set for the subject.
func (k *KeyringStore) Delete(ctx context.Context, subjectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := keyring.Delete(k.service, subjectID); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete for subject %s: %w", subjectID, err)
	}
	return nil
}
