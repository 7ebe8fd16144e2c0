package registry

import (
	"time"

	"github.com/kilnbuild/kiln/pkg/types"
)

type ImageMetadata struct {
	Namespace string        `json:"namespace"`
	Name      string        `json:"name"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Versions  []VersionInfo `json:"versions"`
}

type VersionInfo struct {
	Hash       string            `json:"hash"`
	FullDigest string            `json:"full_digest"`
	Layers     []string          `json:"layers"`
	Config     types.ImageConfig `json:"config"`
	CreatedAt  time.Time         `json:"created_at"`
	Size       int64             `json:"size"`
	Tags       []string          `json:"tags"`
}
