package services

import (
	"fmt"
	"sort"

	"github.com/kilnbuild/kiln/pkg/cache"
	"github.com/kilnbuild/kiln/pkg/layer"
	"github.com/kilnbuild/kiln/pkg/registry"
	"github.com/kilnbuild/kiln/pkg/types"
)

// ImageService defines the interface for registry-facing image operations.
type ImageService interface {
	// List returns a summary row per image version, newest first.
	List() ([]types.ImageInfo, error)

	// Inspect resolves a reference ("ns/name:tag-or-digest") to the full
	// version record.
	Inspect(ref string) (*registry.VersionInfo, error)

	// Tag points tag at the version identified by ref.
	Tag(ref, tag string) error

	// Remove deletes a tagged version, or the whole image when the
	// reference is empty.
	Remove(namespace, name, reference string) error
}

type imageService struct {
	registry registry.Registry
}

// NewImageService creates a new instance of the image service.
func NewImageService(reg registry.Registry) ImageService {
	return &imageService{registry: reg}
}

func (s *imageService) List() ([]types.ImageInfo, error) {
	images, err := s.registry.ListAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	var rows []types.ImageInfo
	for _, img := range images {
		for _, v := range img.Versions {
			rows = append(rows, types.ImageInfo{
				Namespace: img.Namespace,
				Name:      img.Name,
				Digest:    v.Hash,
				Tags:      v.Tags,
				Size:      v.Size,
				CreatedAt: v.CreatedAt,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	return rows, nil
}

func (s *imageService) Inspect(ref string) (*registry.VersionInfo, error) {
	namespace, name, reference, err := registry.ParseReference(ref)
	if err != nil {
		return nil, err
	}
	return s.registry.Pull(namespace, name, reference)
}

func (s *imageService) Tag(ref, tag string) error {
	namespace, name, reference, err := registry.ParseReference(ref)
	if err != nil {
		return err
	}

	version, err := s.registry.Pull(namespace, name, reference)
	if err != nil {
		return err
	}
	return s.registry.ReassignTag(namespace, name, tag, version.Hash)
}

func (s *imageService) Remove(namespace, name, reference string) error {
	return s.registry.Remove(namespace, name, reference)
}

// CacheService exposes layer cache maintenance.
type CacheService interface {
	// List returns every indexed layer, newest first.
	List() ([]layer.Layer, error)

	// Prune drops cache entries whose layers no registry version
	// references and returns how many were removed.
	Prune() (int, error)
}

type cacheService struct {
	cache    cache.Cache
	registry registry.Registry
}

// NewCacheService creates a new instance of the cache service.
func NewCacheService(layerCache cache.Cache, reg registry.Registry) CacheService {
	return &cacheService{cache: layerCache, registry: reg}
}

func (s *cacheService) List() ([]layer.Layer, error) {
	entries, err := s.cache.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}

	layers := make([]layer.Layer, 0, len(entries))
	for _, e := range entries {
		layers = append(layers, e.Layer)
	}
	sort.Slice(layers, func(i, j int) bool {
		return layers[i].CreatedAt.After(layers[j].CreatedAt)
	})
	return layers, nil
}

func (s *cacheService) Prune() (int, error) {
	images, err := s.registry.ListAll()
	if err != nil {
		return 0, fmt.Errorf("failed to list images: %w", err)
	}

	referenced := make(map[string]struct{})
	for _, img := range images {
		for _, v := range img.Versions {
			for _, digest := range v.Layers {
				referenced[digest] = struct{}{}
			}
		}
	}

	return s.cache.Prune(func(digest string) bool {
		_, ok := referenced[digest]
		return ok
	})
}
