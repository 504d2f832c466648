// Package testutil provides shared test helpers for setting up vaults and services.
package testutil

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/raido/internal/cache"
	"github.com/starford/raido/internal/linkindex"
	"github.com/starford/raido/internal/vault"
)

// TestVault creates a temporary vault directory with a vault.Provider.
func TestVault(t *testing.T) (string, vault.Provider) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := vault.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// TestCache creates a temporary SQLite snapshot store that is
// automatically cleaned up.
func TestCache(t *testing.T) *cache.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "raido-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	store, err := cache.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestIndex creates a link index over a fresh temporary vault, seeded
// with the given files (path -> content), and runs an initial rebuild.
func TestIndex(t *testing.T, files map[string]string, opts ...linkindex.Option) (string, *linkindex.Service) {
	t.Helper()
	vaultDir, store := TestVault(t)
	for path, content := range files {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(filepath.Join(vaultDir, dir), 0o755); err != nil {
				t.Fatal(err)
			}
		}
		if err := store.Write(path, []byte(content)); err != nil {
			t.Fatal(err)
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	idx := linkindex.New(store, logger, opts...)
	t.Cleanup(idx.Close)

	if _, err := idx.Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	return vaultDir, idx
}
