package credstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mjansen/ledgerlink/internal/credential"
)

func testSet(subjectID string) credential.Set {
	return credential.Set{
		SubjectID:    subjectID,
		AccessToken:  "access-" + subjectID,
		RefreshToken: "refresh-" + subjectID,
		ExpiresAt:    time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		Scope:        "sales_invoices",
	}
}

func assertSetEqual(t *testing.T, got, want credential.Set) {
	t.Helper()
	if got.SubjectID != want.SubjectID ||
		got.AccessToken != want.AccessToken ||
		got.RefreshToken != want.RefreshToken ||
		got.Scope != want.Scope ||
		!got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Errorf("credential set mismatch:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	want := testSet("acme")
	if err := store.Put(ctx, want); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.Get(ctx, "acme")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	assertSetEqual(t, got, want)
}

func TestMemoryStoreGetAbsent(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStorePutReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := testSet("acme")
	if err := store.Put(ctx, first); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	second := first
	second.AccessToken = "rotated"
	second.RefreshToken = "" // full replace, not field merge
	if err := store.Put(ctx, second); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.Get(ctx, "acme")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	assertSetEqual(t, got, second)
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Put(ctx, testSet("acme")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Delete(ctx, "acme"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "acme"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}

	// Deleting an absent subject is not an error
	if err := store.Delete(ctx, "acme"); err != nil {
		t.Errorf("Delete() of absent subject error = %v", err)
	}
}

func TestNewMemoryStoreFromEnv(t *testing.T) {
	want := testSet("acme")
	data, err := credential.Encode(want)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	t.Setenv("LEDGERLINK_TEST_CREDENTIALS", string(data))

	store, err := NewMemoryStoreFromEnv("LEDGERLINK_TEST_CREDENTIALS")
	if err != nil {
		t.Fatalf("NewMemoryStoreFromEnv() error = %v", err)
	}

	got, err := store.Get(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	assertSetEqual(t, got, want)
}

func TestNewMemoryStoreFromEnvErrors(t *testing.T) {
	tests := []struct {
		name   string
		envKey string
		value  string
		set    bool
	}{
		{name: "empty key", envKey: ""},
		{name: "variable not set", envKey: "LEDGERLINK_TEST_UNSET"},
		{name: "invalid payload", envKey: "LEDGERLINK_TEST_GARBAGE", value: "not-json", set: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.set {
				t.Setenv(tt.envKey, tt.value)
			}
			if _, err := NewMemoryStoreFromEnv(tt.envKey); err == nil {
				t.Error("NewMemoryStoreFromEnv() should fail")
			}
		})
	}
}
