// Package cache defines the content-addressed layer cache. Entries are
// keyed by (step identity, step inputs, dependency layers), so a step is
// re-executed only when something it actually consumes changes.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/kilnbuild/kiln/pkg/layer"
)

// ErrEntryNotFound is returned on a cache miss.
var ErrEntryNotFound = errors.New("cache entry not found")

// Key identifies one step execution. Two builds compute the same Key only
// when the step, its inputs, and every layer it depends on are identical.
type Key struct {
	// StepID is the stable identity of the provisioning step.
	StepID string

	// Inputs is the content digest of everything the step consumes from
	// outside the layer chain (manifest fields, context files).
	Inputs string

	// Parents holds the cache keys of the layers the step depends on, in
	// declaration order of the dependency edges.
	Parents []string
}

// Digest returns the canonical cache key string.
func (k Key) Digest() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s", k.StepID, k.Inputs, strings.Join(k.Parents, "\x00"))
	return hex.EncodeToString(h.Sum(nil))
}

// Entry pairs a cache key with the layer committed under it.
type Entry struct {
	Key   string      `json:"key"`
	Layer layer.Layer `json:"layer"`
}

// Cache is the persistent layer cache. It survives across builds and is
// invalidated per key when step inputs change.
type Cache interface {
	// Get returns the layer committed under key, or ErrEntryNotFound.
	Get(key string) (*layer.Layer, error)

	// Put records a layer under key. The layer blob must already be
	// committed to the layer store.
	Put(key string, l layer.Layer) error

	// List returns all entries.
	List() ([]Entry, error)

	// Prune removes entries whose layer digest inUse rejects, deleting
	// unreferenced blobs, and returns how many entries were removed.
	Prune(inUse func(digest string) bool) (int, error)
}
