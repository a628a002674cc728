package credstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.db")
	store, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	want := testSet("acme")
	// SQLite stores expiry at millisecond precision
	want.ExpiresAt = want.ExpiresAt.Truncate(time.Millisecond)

	if err := store.Put(ctx, want); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.Get(ctx, "acme")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	assertSetEqual(t, got, want)
}

func TestSQLiteStoreGetAbsent(t *testing.T) {
	store, _ := openTestStore(t)

	_, err := store.Get(context.Background(), "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStoreUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	first := testSet("acme")
	if err := store.Put(ctx, first); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	second := first
	second.AccessToken = "rotated"
	second.RefreshToken = "rotated-refresh"
	second.ExpiresAt = first.ExpiresAt.Add(2 * time.Hour)
	if err := store.Put(ctx, second); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.Get(ctx, "acme")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	assertSetEqual(t, got, second)
}

func TestSQLiteStoreDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	if err := store.Put(ctx, testSet("acme")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Delete(ctx, "acme"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "acme"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	store, path := openTestStore(t)

	want := testSet("acme")
	if err := store.Put(ctx, want); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore() reopen error = %v", err)
	}
	defer func() { _ = reopened.Close() }()

	got, err := reopened.Get(ctx, "acme")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	assertSetEqual(t, got, want)
}

func TestOpenSQLiteStoreEmptyPath(t *testing.T) {
	if _, err := OpenSQLiteStore("  "); err == nil {
		t.Error("OpenSQLiteStore() should fail on empty path")
	}
}
