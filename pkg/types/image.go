package types

import "time"

// ImageConfig is the runtime configuration recorded into a built image.
// It is assembled by the provisioning steps and fixed once the image is
// pushed; instances are started from it verbatim.
type ImageConfig struct {
	// WorkDir is the working directory the entrypoint is started in.
	WorkDir string `json:"workdir"`

	// Entrypoint is the exact argv vector executed at instance start.
	// It is invoked with no additional arguments.
	Entrypoint []string `json:"entrypoint"`

	// Env holds KEY=VALUE pairs recorded by provisioning steps, such as
	// the path of an installed browser binary.
	Env []string `json:"env,omitempty"`
}

// BuildResult contains information about a successful image build.
type BuildResult struct {
	Namespace string        `json:"namespace"`
	Name      string        `json:"name"`
	Digest    string        `json:"digest"`
	Layers    []string      `json:"layers"`
	Config    ImageConfig   `json:"config"`
	Steps     int           `json:"steps"`
	CacheHits int           `json:"cache_hits"`
	Size      int64         `json:"size"`
	Duration  time.Duration `json:"duration"`
}

// ImageInfo is a summary row for list output.
type ImageInfo struct {
	Namespace string    `json:"namespace"`
	Name      string    `json:"name"`
	Digest    string    `json:"digest"`
	Tags      []string  `json:"tags"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// InstanceInfo describes a running or finished instance.
type InstanceInfo struct {
	ID        string    `json:"id"`
	Image     string    `json:"image"`
	RootFS    string    `json:"rootfs"`
	StartedAt time.Time `json:"started_at"`
}
