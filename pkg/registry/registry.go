package registry

import "github.com/kilnbuild/kiln/pkg/types"

// Registry stores built images: their layer lists, runtime config, digests
// and tags. Layer content lives in a LayerStore; the registry only holds
// metadata and references.
type Registry interface {
	Get(namespace, name string) (*ImageMetadata, error)
	Push(namespace, name string, image PushRequest, tag string) error
	Pull(namespace, name, reference string) (*VersionInfo, error)
	ReassignTag(namespace, name, tag, newDigest string) error
	DigestExists(namespace, name, digest string) (bool, error)
	ListAll() ([]ImageMetadata, error)
	Remove(namespace, name, reference string) error
}

// PushRequest carries everything a successful build commits to the
// registry. Layers are referenced by digest; their content must already
// be committed to the layer store.
type PushRequest struct {
	Digest string
	Layers []string
	Config types.ImageConfig
	Size   int64
}
