package localRegistry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kilnbuild/kiln/pkg/layer"
	"github.com/kilnbuild/kiln/pkg/registry"
)

type layerStore struct {
	rootDir string
}

// NewLayerStore returns a content-addressed layer store rooted at rootDir.
// Layers live under rootDir/layers/<digest>/.
func NewLayerStore(rootDir string) registry.LayerStore {
	return &layerStore{rootDir: rootDir}
}

func (s *layerStore) layerPath(digest string) string {
	return filepath.Join(s.rootDir, "layers", digest)
}

func (s *layerStore) Commit(srcDir string) (string, int64, error) {
	digest, size, err := layer.DigestDir(srcDir)
	if err != nil {
		return "", 0, fmt.Errorf("failed to digest layer: %w", err)
	}

	dst := s.layerPath(digest)
	if _, err := os.Stat(dst); err == nil {
		// Content-addressed: already stored, nothing to do.
		return digest, size, nil
	}

	// Stage next to the final location so the rename stays on one
	// filesystem, then move into place. A half-copied layer is never
	// visible under its digest.
	staging := dst + ".staging"
	if err := os.RemoveAll(staging); err != nil {
		return "", 0, fmt.Errorf("failed to clear staging dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create layer dir: %w", err)
	}
	if err := layer.CopyTree(srcDir, staging); err != nil {
		os.RemoveAll(staging)
		return "", 0, fmt.Errorf("failed to stage layer: %w", err)
	}
	if err := os.Rename(staging, dst); err != nil {
		os.RemoveAll(staging)
		if _, statErr := os.Stat(dst); statErr == nil {
			// Lost a race with an identical commit; theirs is as good as ours.
			return digest, size, nil
		}
		return "", 0, fmt.Errorf("failed to commit layer: %w", err)
	}
	return digest, size, nil
}

func (s *layerStore) Path(digest string) (string, error) {
	path := s.layerPath(digest)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("layer %s: %w", registry.TruncateDigest(digest, 12), registry.ErrLayerNotFound)
		}
		return "", fmt.Errorf("failed to stat layer: %w", err)
	}
	return path, nil
}

func (s *layerStore) Exists(digest string) bool {
	_, err := os.Stat(s.layerPath(digest))
	return err == nil
}

func (s *layerStore) Delete(digest string) error {
	if err := os.RemoveAll(s.layerPath(digest)); err != nil {
		return fmt.Errorf("failed to delete layer: %w", err)
	}
	return nil
}

func (s *layerStore) List() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.rootDir, "layers"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list layers: %w", err)
	}

	var digests []string
	for _, entry := range entries {
		if entry.IsDir() && filepath.Ext(entry.Name()) == "" {
			digests = append(digests, entry.Name())
		}
	}
	return digests, nil
}
