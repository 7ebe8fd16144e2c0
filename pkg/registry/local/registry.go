package localRegistry

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/kilnbuild/kiln/internal/repository"
	"github.com/kilnbuild/kiln/pkg/registry"
)

const keyPrefix = "image:"

type localRegistry struct {
	dbRepo repository.DBRepository
	store  registry.LayerStore
}

func NewLocalRegistry(rootDir string, dbRepo repository.DBRepository) registry.Registry {
	return &localRegistry{
		dbRepo: dbRepo,
		store:  NewLayerStore(rootDir),
	}
}

// NewLocalRegistryWithStore wires an existing layer store, letting the
// build cache and the registry share one blob directory.
func NewLocalRegistryWithStore(dbRepo repository.DBRepository, store registry.LayerStore) registry.Registry {
	return &localRegistry{dbRepo: dbRepo, store: store}
}

func imageKey(namespace, name string) []byte {
	return []byte(keyPrefix + namespace + "/" + name)
}

func (r *localRegistry) Get(namespace, name string) (*registry.ImageMetadata, error) {
	var metadata *registry.ImageMetadata

	err := r.withReadTx(func(txn *badger.Txn) error {
		return r.getImageMetadata(txn, namespace, name, &metadata)
	})

	return metadata, err
}

func (r *localRegistry) Push(namespace, name string, image registry.PushRequest, tag string) error {
	for _, digest := range image.Layers {
		if !r.store.Exists(digest) {
			return fmt.Errorf("layer %s: %w", registry.TruncateDigest(digest, 12), registry.ErrLayerNotFound)
		}
	}

	shortDigest := registry.TruncateDigest(image.Digest, 12)

	return r.withWriteTx(func(txn *badger.Txn) error {
		metadata, err := r.getOrCreateMetadata(txn, namespace, name)
		if err != nil {
			return fmt.Errorf("failed to get metadata: %w", err)
		}

		// A tag names exactly one version; strip it from any other.
		if tag != "" {
			registry.RemoveTagFromVersions(&metadata.Versions, tag)
		}

		if !r.versionExists(metadata, shortDigest) {
			metadata.Versions = append(metadata.Versions, registry.CreateVersionInfo(shortDigest, image, tag))
		} else if tag != "" {
			registry.AddTagToVersion(&metadata.Versions, shortDigest, tag)
		}

		return r.updateMetadata(txn, namespace, name, metadata)
	})
}

func (r *localRegistry) Pull(namespace, name, reference string) (*registry.VersionInfo, error) {
	version, digestErr := r.pullByDigest(namespace, name, reference)
	if digestErr == nil {
		return version, nil
	}

	version, tagErr := r.pullByTag(namespace, name, reference)
	if tagErr == nil {
		return version, nil
	}

	if errors.Is(tagErr, registry.ErrTagNotFound) && errors.Is(digestErr, registry.ErrDigestNotFound) {
		return nil, fmt.Errorf("%w: %s", registry.ErrInvalidReference, reference)
	}

	return nil, tagErr
}

func (r *localRegistry) ReassignTag(namespace, name, tag, newDigest string) error {
	return r.withWriteTx(func(txn *badger.Txn) error {
		var metadata *registry.ImageMetadata
		err := r.getImageMetadata(txn, namespace, name, &metadata)
		if err != nil {
			return err
		}
		if metadata == nil {
			return registry.ErrImageNotFound
		}

		shortDigest := registry.TruncateDigest(newDigest, 12)
		if !r.versionExists(metadata, shortDigest) {
			return registry.ErrDigestNotFound
		}

		registry.RemoveTagFromVersions(&metadata.Versions, tag)
		registry.AddTagToVersion(&metadata.Versions, shortDigest, tag)

		return r.updateMetadata(txn, namespace, name, metadata)
	})
}

func (r *localRegistry) DigestExists(namespace, name, digest string) (bool, error) {
	var exists bool

	err := r.withReadTx(func(txn *badger.Txn) error {
		var metadata *registry.ImageMetadata
		if err := r.getImageMetadata(txn, namespace, name, &metadata); err != nil {
			if errors.Is(err, registry.ErrImageNotFound) {
				exists = false
				return nil
			}
			return err
		}

		exists = r.versionExists(metadata, registry.TruncateDigest(digest, 12))
		return nil
	})

	return exists, err
}

func (r *localRegistry) ListAll() ([]registry.ImageMetadata, error) {
	var images []registry.ImageMetadata

	err := r.withReadTx(func(txn *badger.Txn) error {
		return repository.ScanPrefix(txn, []byte(keyPrefix), func(_, value []byte) error {
			var metadata registry.ImageMetadata
			if err := json.Unmarshal(value, &metadata); err != nil {
				return fmt.Errorf("failed to decode image metadata: %w", err)
			}
			images = append(images, metadata)
			return nil
		})
	})

	return images, err
}

func (r *localRegistry) Remove(namespace, name, reference string) error {
	return r.withWriteTx(func(txn *badger.Txn) error {
		var metadata *registry.ImageMetadata
		if err := r.getImageMetadata(txn, namespace, name, &metadata); err != nil {
			return err
		}

		if reference == "" {
			return txn.Delete(imageKey(namespace, name))
		}

		version := findVersion(metadata, reference)
		if version == nil {
			return registry.ErrVersionNotFound
		}

		kept := metadata.Versions[:0]
		for _, v := range metadata.Versions {
			if v.Hash != version.Hash {
				kept = append(kept, v)
			}
		}
		metadata.Versions = kept

		if len(metadata.Versions) == 0 {
			return txn.Delete(imageKey(namespace, name))
		}
		return r.updateMetadata(txn, namespace, name, metadata)
	})
}

func (r *localRegistry) pullByDigest(namespace, name, digest string) (*registry.VersionInfo, error) {
	var version *registry.VersionInfo

	err := r.withReadTx(func(txn *badger.Txn) error {
		var metadata *registry.ImageMetadata
		if err := r.getImageMetadata(txn, namespace, name, &metadata); err != nil {
			return err
		}

		shortDigest := registry.TruncateDigest(digest, 12)
		for i := range metadata.Versions {
			if metadata.Versions[i].Hash == shortDigest || metadata.Versions[i].FullDigest == digest {
				version = &metadata.Versions[i]
				return nil
			}
		}
		return registry.ErrDigestNotFound
	})

	return version, err
}

func (r *localRegistry) pullByTag(namespace, name, tag string) (*registry.VersionInfo, error) {
	var version *registry.VersionInfo

	err := r.withReadTx(func(txn *badger.Txn) error {
		var metadata *registry.ImageMetadata
		if err := r.getImageMetadata(txn, namespace, name, &metadata); err != nil {
			return err
		}

		for i := range metadata.Versions {
			if registry.HasTag(metadata.Versions[i].Tags, tag) {
				version = &metadata.Versions[i]
				return nil
			}
		}
		return registry.ErrTagNotFound
	})

	return version, err
}

func findVersion(metadata *registry.ImageMetadata, reference string) *registry.VersionInfo {
	shortDigest := registry.TruncateDigest(reference, 12)
	for i := range metadata.Versions {
		v := &metadata.Versions[i]
		if v.Hash == shortDigest || v.FullDigest == reference || registry.HasTag(v.Tags, reference) {
			return v
		}
	}
	return nil
}

func (r *localRegistry) getImageMetadata(txn *badger.Txn, namespace, name string, metadata **registry.ImageMetadata) error {
	item, err := txn.Get(imageKey(namespace, name))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return registry.ErrImageNotFound
		}
		return fmt.Errorf("failed to read image metadata: %w", err)
	}

	return item.Value(func(val []byte) error {
		var m registry.ImageMetadata
		if err := json.Unmarshal(val, &m); err != nil {
			return fmt.Errorf("failed to decode image metadata: %w", err)
		}
		*metadata = &m
		return nil
	})
}

func (r *localRegistry) getOrCreateMetadata(txn *badger.Txn, namespace, name string) (*registry.ImageMetadata, error) {
	var metadata *registry.ImageMetadata
	err := r.getImageMetadata(txn, namespace, name, &metadata)
	if err == nil {
		return metadata, nil
	}
	if !errors.Is(err, registry.ErrImageNotFound) {
		return nil, err
	}

	now := time.Now()
	return &registry.ImageMetadata{
		Namespace: namespace,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Versions:  []registry.VersionInfo{},
	}, nil
}

func (r *localRegistry) versionExists(metadata *registry.ImageMetadata, shortDigest string) bool {
	for _, v := range metadata.Versions {
		if v.Hash == shortDigest {
			return true
		}
	}
	return false
}

func (r *localRegistry) updateMetadata(txn *badger.Txn, namespace, name string, metadata *registry.ImageMetadata) error {
	metadata.UpdatedAt = time.Now()
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode image metadata: %w", err)
	}
	return txn.Set(imageKey(namespace, name), encoded)
}

func (r *localRegistry) withReadTx(fn func(txn *badger.Txn) error) error {
	return r.dbRepo.View(fn)
}

func (r *localRegistry) withWriteTx(fn func(txn *badger.Txn) error) error {
	return r.dbRepo.Update(fn)
}
