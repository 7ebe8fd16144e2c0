package localCache

import (
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/kilnbuild/kiln/internal/repository"
	"github.com/kilnbuild/kiln/pkg/cache"
	"github.com/kilnbuild/kiln/pkg/layer"
	"github.com/kilnbuild/kiln/pkg/registry"
)

const keyPrefix = "cache:"

type localCache struct {
	dbRepo repository.DBRepository
	store  registry.LayerStore
}

// NewLocalCache returns a badger-backed layer cache. Layer blobs live in
// the shared layer store; badger only holds the key -> layer index.
func NewLocalCache(dbRepo repository.DBRepository, store registry.LayerStore) cache.Cache {
	return &localCache{dbRepo: dbRepo, store: store}
}

func entryKey(key string) []byte {
	return []byte(keyPrefix + key)
}

func (c *localCache) Get(key string) (*layer.Layer, error) {
	var cached *layer.Layer

	err := c.dbRepo.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return cache.ErrEntryNotFound
			}
			return fmt.Errorf("failed to read cache entry: %w", err)
		}
		return item.Value(func(val []byte) error {
			var l layer.Layer
			if err := json.Unmarshal(val, &l); err != nil {
				return fmt.Errorf("failed to decode cache entry: %w", err)
			}
			cached = &l
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// An index entry whose blob is gone is a miss, not an error; the
	// caller rebuilds the layer and the entry is overwritten.
	if !c.store.Exists(cached.Digest) {
		return nil, cache.ErrEntryNotFound
	}
	return cached, nil
}

func (c *localCache) Put(key string, l layer.Layer) error {
	if !c.store.Exists(l.Digest) {
		return fmt.Errorf("layer %s: %w", registry.TruncateDigest(l.Digest, 12), registry.ErrLayerNotFound)
	}

	encoded, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	return c.dbRepo.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(key), encoded)
	})
}

func (c *localCache) List() ([]cache.Entry, error) {
	var entries []cache.Entry

	err := c.dbRepo.View(func(txn *badger.Txn) error {
		return repository.ScanPrefix(txn, []byte(keyPrefix), func(key, value []byte) error {
			var l layer.Layer
			if err := json.Unmarshal(value, &l); err != nil {
				return fmt.Errorf("failed to decode cache entry: %w", err)
			}
			entries = append(entries, cache.Entry{
				Key:   string(key[len(keyPrefix):]),
				Layer: l,
			})
			return nil
		})
	})

	return entries, err
}

func (c *localCache) Prune(inUse func(digest string) bool) (int, error) {
	entries, err := c.List()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if inUse != nil && inUse(entry.Layer.Digest) {
			continue
		}

		err := c.dbRepo.Update(func(txn *badger.Txn) error {
			return txn.Delete(entryKey(entry.Key))
		})
		if err != nil {
			return removed, fmt.Errorf("failed to remove cache entry: %w", err)
		}

		// A digest may back several keys; only delete the blob once no
		// remaining entry references it.
		if !c.digestStillIndexed(entry.Layer.Digest) {
			if err := c.store.Delete(entry.Layer.Digest); err != nil {
				return removed, err
			}
		}
		removed++
	}
	return removed, nil
}

func (c *localCache) digestStillIndexed(digest string) bool {
	entries, err := c.List()
	if err != nil {
		return true
	}
	for _, entry := range entries {
		if entry.Layer.Digest == digest {
			return true
		}
	}
	return false
}
