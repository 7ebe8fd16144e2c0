package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kilnbuild/kiln/pkg/builder"
	"github.com/kilnbuild/kiln/pkg/builder/config"
	"github.com/kilnbuild/kiln/pkg/manifest"
	"github.com/kilnbuild/kiln/pkg/registry"
	"github.com/kilnbuild/kiln/pkg/types"
)

// BuildService defines the interface for build-related operations
type BuildService interface {
	// Build provisions an image from a build context (a local directory
	// or a git URL) and registers it.
	Build(ctx context.Context, source string, opts BuildOptions) (*types.BuildResult, error)

	// InitManifest scaffolds a new build manifest in dir.
	InitManifest(dir, name, runtime string) error
}

// BuildOptions carries per-invocation overrides.
type BuildOptions struct {
	// Tag to assign to the built image; "latest" when empty.
	Tag string

	// InstallBrowser overrides both the manifest flag and the
	// configured default when set.
	InstallBrowser *bool

	// Platform overrides the configured target platform.
	Platform string

	// Progress receives one line per provisioning step.
	Progress builder.ProgressFunc
}

// buildService implements the BuildService interface
type buildService struct {
	cfg       *config.Config
	builder   *builder.Builder
	resolvers builder.Resolvers
	registry  registry.Registry
}

// NewBuildService creates a new instance of the build service
func NewBuildService(cfg *config.Config, b *builder.Builder, resolvers builder.Resolvers, reg registry.Registry) BuildService {
	return &buildService{
		cfg:       cfg,
		builder:   b,
		resolvers: resolvers,
		registry:  reg,
	}
}

func (s *buildService) Build(ctx context.Context, source string, opts BuildOptions) (*types.BuildResult, error) {
	dir, cleanup, err := builder.ResolveContext(ctx, source)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	m, _, err := manifest.Discover(dir)
	if err != nil {
		return nil, err
	}

	platform := s.cfg.Build.Platform
	if opts.Platform != "" {
		platform = opts.Platform
	}

	// The manifest decides whether the browser step runs; the config
	// default applies only when the manifest is silent, and an explicit
	// CLI override beats both.
	installBrowser := s.cfg.Build.InstallBrowser
	if m.Image.Browser.Install != nil {
		installBrowser = *m.Image.Browser.Install
	}
	if opts.InstallBrowser != nil {
		installBrowser = *opts.InstallBrowser
	}

	bctx := &builder.BuildContext{
		Dir:            dir,
		Manifest:       m,
		Platform:       platform,
		InstallBrowser: installBrowser,
		Resolvers:      s.resolvers,
		Progress:       opts.Progress,
	}

	result, err := s.builder.Build(ctx, bctx)
	if err != nil {
		return nil, err
	}

	tag := opts.Tag
	if tag == "" {
		tag = "latest"
	}
	namespace := result.Namespace
	if namespace == "" {
		namespace = "default"
	}

	err = s.registry.Push(namespace, result.Name, registry.PushRequest{
		Digest: result.Digest,
		Layers: result.Layers,
		Config: result.Config,
		Size:   result.Size,
	}, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to register image: %w", err)
	}

	result.Namespace = namespace
	return result, nil
}

// InitManifest scaffolds a manifest plus a starter dependency manifest.
func (s *buildService) InitManifest(dir, name, runtime string) error {
	if name == "" {
		return errors.New("image name cannot be empty")
	}

	tmpl, err := manifestTemplate(runtime)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, "kiln.yaml")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return errors.New("kiln.yaml already exists")
	}

	if err := os.WriteFile(path, []byte(fmt.Sprintf(tmpl, name)), 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	reqPath := filepath.Join(dir, "requirements.txt")
	if _, err := os.Stat(reqPath); os.IsNotExist(err) {
		if err := os.WriteFile(reqPath, []byte(starterRequirements), 0644); err != nil {
			return fmt.Errorf("failed to write requirements.txt: %w", err)
		}
	}
	return nil
}
