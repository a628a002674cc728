package credstore

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/mjansen/ledgerlink/internal/credential"
)

// MemoryStore keeps credential sets in an in-process map. Contents are lost
// on restart, so it is only suitable for local mode and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	sets map[string]credential.Set
}

// Compile-time check to ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sets: make(map[string]credential.Set),
	}
}

// NewMemoryStoreFromEnv creates a MemoryStore seeded with a single
// JSON-encoded credential set read from the given environment variable.
// Returns error if the variable is unset or does not decode.
func NewMemoryStoreFromEnv(envKey string) (*MemoryStore, error) {
	if envKey == "" {
		return nil, fmt.Errorf("environment key cannot be empty")
	}

	raw, exists := os.LookupEnv(envKey)
	if !exists {
		return nil, fmt.Errorf("environment variable %s not set", envKey)
	}

	set, err := credential.Decode([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("environment variable %s: %w", envKey, err)
	}

	s := NewMemoryStore()
	s.sets[set.SubjectID] = set
	return s, nil
}

// Get returns the credential set for the subject, or ErrNotFound.
func (m *MemoryStore) Get(ctx context.Context, subjectID string) (credential.Set, error) {
	if err := ctx.Err(); err != nil {
		return credential.Set{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	set, ok := m.sets[subjectID]
	if !ok {
		return credential.Set{}, ErrNotFound
	}
	return set, nil
}

// Put replaces the credential set for the subject.
func (m *MemoryStore) Put(ctx context.Context, set credential.Set) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if set.SubjectID == "" {
		return fmt.Errorf("credential set has no subject id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sets[set.SubjectID] = set
	return nil
}

// Delete removes the credential set for the subject.
func (m *MemoryStore) Delete(ctx context.Context, subjectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sets, subjectID)
	return nil
}
