// Package credential defines the credential set stored per subject and the
// expiry policy applied when deciding whether a stored access token may
// still be handed out.
package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RefreshBuffer is the safety margin before actual expiry at which a token
// is treated as needing renewal. Serving a token closer to expiry risks it
// expiring mid-flight of the caller's next upstream request.
const RefreshBuffer = 5 * time.Minute

// Set is one subject's authorization state against the upstream API.
// A Set with an empty RefreshToken is non-refreshable: it can expire but
// never be renewed automatically.
type Set struct {
	SubjectID    string    `json:"subject_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        string    `json:"scope,omitempty"`
}

// Validate checks the invariants required before a Set may be stored.
func (s Set) Validate(now time.Time) error {
	if s.SubjectID == "" {
		return errors.New("credential set has no subject id")
	}
	if s.AccessToken == "" {
		return errors.New("credential set has no access token")
	}
	if !s.ExpiresAt.After(now) {
		return fmt.Errorf("credential set for %s already expired at %s", s.SubjectID, s.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

// Refreshable reports whether the set carries a refresh token and may be
// renewed automatically.
func (s Set) Refreshable() bool {
	return s.RefreshToken != ""
}

// NeedsRefresh reports whether the access token is expired or within the
// refresh buffer of expiry.
func (s Set) NeedsRefresh(now time.Time) bool {
	return !now.Before(s.ExpiresAt.Add(-RefreshBuffer))
}

// Expired reports whether the access token is past its expiry.
func (s Set) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Encode serializes the set for backends that store opaque values
// (keyring, env seeding).
func Encode(s Set) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding credential set: %w", err)
	}
	return data, nil
}

// Decode deserializes a set produced by Encode. All four core fields must
// round-trip losslessly.
func Decode(data []byte) (Set, error) {
	var s Set
	if err := json.Unmarshal(data, &s); err != nil {
		return Set{}, fmt.Errorf("decoding credential set: %w", err)
	}
	return s, nil
}
