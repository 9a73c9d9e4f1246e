// Package bytecache is a persistent key -> bytes store used to avoid refetching
// large or rate limited resources. Entries never expire, a key always denotes the
// same logical content until the cache is cleared by hand.
package bytecache

import (
	"context"
	"errors"
	"fmt"
)

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = errors.New("bytecache: miss")

type Cache interface {
	// Get returns the bytes stored under key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores value under key, replacing whatever was there.
	Put(ctx context.Context, key string, value []byte) error
}

const ManifestIndexKey = "manifest_index.json"

// TableKey is the key of a manifest definition table, it depends on the table
// name and locale only, not on the remote content path.
func TableKey(table, locale string) string {
	return fmt.Sprintf("%s_%s.json", table, locale)
}

func RarityKey(itemHash uint32) string {
	return fmt.Sprintf("rarity_%d.json", itemHash)
}
