// Package testutil sets up the shared fixtures of component tests.
package testutil

import (
	"context"
	"raremblems/internal/bytecache"
	"testing"
)

// Cache returns an empty cache backed by an in-memory sqlite database that is
// closed when the test ends.
func Cache(t testing.TB) bytecache.SQLStore {
	store, err := bytecache.OpenSQLStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Seed stores every entry in cache, failing the test on the first error.
func Seed(t testing.TB, cache bytecache.Cache, entries map[string]string) {
	for key, value := range entries {
		err := cache.Put(context.Background(), key, []byte(value))
		if err != nil {
			t.Fatal(err)
		}
	}
}
