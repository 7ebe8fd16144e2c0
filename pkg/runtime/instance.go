// Package runtime instantiates built images. Every instance gets its own
// private root filesystem assembled from the image's layers; instances
// never share mutable state with each other or with the build cache.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	domainerrors "github.com/kilnbuild/kiln/pkg/builder/errors"
	"github.com/kilnbuild/kiln/pkg/builder/logging"
	"github.com/kilnbuild/kiln/pkg/layer"
	"github.com/kilnbuild/kiln/pkg/registry"
	"github.com/kilnbuild/kiln/pkg/types"
)

// Runner creates instances from registered images.
type Runner struct {
	registry registry.Registry
	store    registry.LayerStore
	rootDir  string
	logger   logging.Logger
}

// NewRunner creates a Runner assembling instances under rootDir.
func NewRunner(reg registry.Registry, store registry.LayerStore, rootDir string, logger logging.Logger) *Runner {
	return &Runner{
		registry: reg,
		store:    store,
		rootDir:  rootDir,
		logger:   logger,
	}
}

// Instance is one isolated instantiation of an image.
type Instance struct {
	ID        string
	Image     string
	RootFS    string
	Config    types.ImageConfig
	StartedAt time.Time

	dir string
}

// Create assembles a fresh private rootfs for the referenced image. The
// image's layers are applied in build order; later layers overlay earlier
// ones.
func (r *Runner) Create(ctx context.Context, namespace, name, reference string) (*Instance, error) {
	version, err := r.registry.Pull(namespace, name, reference)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	dir := filepath.Join(r.rootDir, id)
	rootfs := filepath.Join(dir, "rootfs")
	if err := os.MkdirAll(rootfs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create instance directory: %w", err)
	}

	for _, digest := range version.Layers {
		select {
		case <-ctx.Done():
			os.RemoveAll(dir)
			return nil, ctx.Err()
		default:
		}

		src, err := r.store.Path(digest)
		if err != nil {
			os.RemoveAll(dir)
			return nil, err
		}
		if err := layer.CopyTree(src, rootfs); err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("failed to apply layer %s: %w", registry.TruncateDigest(digest, 12), err)
		}
	}

	r.logger.Debugf("instance %s: rootfs assembled from %d layers", id, len(version.Layers))
	return &Instance{
		ID:     id,
		Image:  namespace + "/" + name + ":" + reference,
		RootFS: rootfs,
		Config: version.Config,
		dir:    dir,
	}, nil
}

// Run starts the image's entrypoint with the instance rootfs as its
// working root and waits for it to exit. The entrypoint is invoked exactly
// as declared, with no extra arguments; its exit code is returned.
func (i *Instance) Run(ctx context.Context, stdout, stderr io.Writer) (int, error) {
	if len(i.Config.Entrypoint) == 0 {
		return -1, domainerrors.New(domainerrors.DomainRuntime, domainerrors.CodeEntrypointMissing,
			"image has no entrypoint").WithImage(i.Image)
	}

	workdir := filepath.Join(i.RootFS, filepath.FromSlash(i.Config.WorkDir))
	if _, err := os.Stat(workdir); err != nil {
		return -1, domainerrors.Wrap(domainerrors.DomainRuntime, domainerrors.CodeInstanceFailed,
			"image workdir missing from rootfs", err).WithImage(i.Image)
	}

	cmd := exec.CommandContext(ctx, i.Config.Entrypoint[0], i.Config.Entrypoint[1:]...)
	cmd.Dir = workdir
	cmd.Env = append(os.Environ(), i.instanceEnv()...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	i.StartedAt = time.Now()
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, domainerrors.Wrap(domainerrors.DomainRuntime, domainerrors.CodeInstanceFailed,
		"entrypoint failed to start", err).WithImage(i.Image)
}

// instanceEnv rewrites recorded in-image paths to their location inside
// this instance's rootfs and identifies the instance to the process.
func (i *Instance) instanceEnv() []string {
	env := []string{
		"KILN_INSTANCE_ID=" + i.ID,
		"KILN_ROOTFS=" + i.RootFS,
	}
	for _, kv := range i.Config.Env {
		env = append(env, rewriteEnvPath(kv, i.RootFS))
	}
	return env
}

func rewriteEnvPath(kv, rootfs string) string {
	for idx := 0; idx < len(kv); idx++ {
		if kv[idx] == '=' {
			key, value := kv[:idx], kv[idx+1:]
			if filepath.IsAbs(value) {
				return key + "=" + filepath.Join(rootfs, filepath.FromSlash(value))
			}
			return kv
		}
	}
	return kv
}

// Info returns a summary for list output.
func (i *Instance) Info() types.InstanceInfo {
	return types.InstanceInfo{
		ID:        i.ID,
		Image:     i.Image,
		RootFS:    i.RootFS,
		StartedAt: i.StartedAt,
	}
}

// Destroy removes the instance's private filesystem.
func (i *Instance) Destroy() error {
	if err := os.RemoveAll(i.dir); err != nil {
		return fmt.Errorf("failed to remove instance %s: %w", i.ID, err)
	}
	return nil
}
