package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kilnbuild/kiln/pkg/browser"
	domainerrors "github.com/kilnbuild/kiln/pkg/builder/errors"
	"github.com/kilnbuild/kiln/pkg/fetch"
	"github.com/kilnbuild/kiln/pkg/layer"
	"github.com/kilnbuild/kiln/pkg/manifest"
	"github.com/kilnbuild/kiln/pkg/types"
)

// layerPath maps an absolute in-image path into a layer directory.
func layerPath(dir, imagePath string) string {
	return filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(imagePath, "/")))
}

// ImageConfig derives the image runtime configuration from the manifest.
// It is a pure function of the manifest and platform, so the entrypoint
// step can digest it as an input before anything executes.
func ImageConfig(bctx *BuildContext) types.ImageConfig {
	img := bctx.Manifest.Image

	cfg := types.ImageConfig{
		WorkDir:    img.WorkDir,
		Entrypoint: append([]string(nil), img.Entrypoint...),
	}
	if bctx.InstallBrowser {
		engine := img.BrowserEngine()
		cfg.Env = append(cfg.Env,
			browser.EnvVar(engine)+"="+browser.BinaryPath(engine, img.Browser.Revision))
	}
	return cfg
}

// baseStep materializes the pinned base runtime rootfs.
type baseStep struct {
	settings manifest.BaseSettings
}

func (s *baseStep) ID() string          { return StepBase }
func (s *baseStep) DependsOn() []string { return nil }
func (s *baseStep) Description() string {
	return fmt.Sprintf("Selecting base runtime %s:%s", s.settings.Runtime, s.settings.Version)
}

func (s *baseStep) Inputs(bctx *BuildContext) (string, error) {
	return layer.DigestBytes([]byte(s.settings.Runtime + "\x00" + s.settings.Version + "\x00" + bctx.Platform)), nil
}

func (s *baseStep) Execute(ctx context.Context, bctx *BuildContext, dir string) error {
	rc, err := bctx.Resolvers.Base.FetchBase(ctx, s.settings.Runtime, s.settings.Version, bctx.Platform)
	if err != nil {
		return domainerrors.Wrap(domainerrors.DomainFetch, domainerrors.CodeBaseUnresolved,
			fmt.Sprintf("base runtime %s:%s is unavailable", s.settings.Runtime, s.settings.Version), err)
	}
	defer rc.Close()

	if err := fetch.Untar(rc, dir); err != nil {
		return domainerrors.Wrap(domainerrors.DomainFetch, domainerrors.CodeBaseUnresolved,
			"failed to unpack base runtime", err)
	}
	return nil
}

// packagesStep installs the fixed list of OS-level packages. Any
// unresolvable package fails the whole step; there is no partial install.
type packagesStep struct {
	packages []string
}

func (s *packagesStep) ID() string          { return StepPackages }
func (s *packagesStep) DependsOn() []string { return []string{StepBase} }
func (s *packagesStep) Description() string {
	return fmt.Sprintf("Installing %d OS packages", len(s.packages))
}

func (s *packagesStep) Inputs(bctx *BuildContext) (string, error) {
	return layer.DigestBytes([]byte(bctx.Platform + "\x00" + strings.Join(s.packages, "\x00"))), nil
}

func (s *packagesStep) Execute(ctx context.Context, bctx *BuildContext, dir string) error {
	for _, name := range s.packages {
		rc, err := bctx.Resolvers.Packages.FetchPackage(ctx, name, bctx.Platform)
		if err != nil {
			return domainerrors.Wrap(domainerrors.DomainFetch, domainerrors.CodePackageUnresolved,
				fmt.Sprintf("package %s is unresolvable", name), err)
		}
		err = fetch.Untar(rc, dir)
		rc.Close()
		if err != nil {
			return domainerrors.Wrap(domainerrors.DomainFetch, domainerrors.CodePackageUnresolved,
				fmt.Sprintf("failed to unpack package %s", name), err)
		}
	}
	return nil
}

// workdirStep creates the declared working directory.
type workdirStep struct {
	path string
}

func (s *workdirStep) ID() string          { return StepWorkdir }
func (s *workdirStep) DependsOn() []string { return []string{StepBase} }
func (s *workdirStep) Description() string {
	return fmt.Sprintf("Declaring working directory %s", s.path)
}

func (s *workdirStep) Inputs(_ *BuildContext) (string, error) {
	return layer.DigestBytes([]byte(s.path)), nil
}

func (s *workdirStep) Execute(_ context.Context, _ *BuildContext, dir string) error {
	return os.MkdirAll(layerPath(dir, s.path), 0755)
}

// depsManifestStep copies the dependency manifest into the workdir, ahead
// of the source tree, so the install layer's cache key covers only this
// file. A missing manifest fails here, before any source is copied.
type depsManifestStep struct{}

func (s *depsManifestStep) ID() string          { return StepDepsManifest }
func (s *depsManifestStep) DependsOn() []string { return []string{StepWorkdir} }
func (s *depsManifestStep) Description() string {
	return "Copying dependency manifest"
}

func (s *depsManifestStep) Inputs(bctx *BuildContext) (string, error) {
	digest, err := layer.DigestFile(bctx.DependencyManifestPath())
	if err != nil {
		return "", domainerrors.Wrap(domainerrors.DomainBuild, domainerrors.CodeDepsManifestGone,
			fmt.Sprintf("dependency manifest %s is missing or unreadable", bctx.Manifest.Image.DependencyManifest()), err)
	}
	return digest, nil
}

func (s *depsManifestStep) Execute(_ context.Context, bctx *BuildContext, dir string) error {
	src := bctx.DependencyManifestPath()
	dst := filepath.Join(layerPath(dir, bctx.Manifest.Image.WorkDir), bctx.Manifest.Image.DependencyManifest())

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return domainerrors.Wrap(domainerrors.DomainBuild, domainerrors.CodeDepsManifestGone,
			"dependency manifest disappeared during build", err)
	}
	return os.WriteFile(dst, data, 0644)
}

// depsDir is where resolved dependency archives are unpacked in the image.
const depsDir = "/usr/local/lib/kiln-deps"

// depsInstallStep resolves and installs every declared dependency. The
// cache key depends only on the parsed requirements, never on the rest of
// the source tree.
type depsInstallStep struct{}

func (s *depsInstallStep) ID() string          { return StepDepsInstall }
func (s *depsInstallStep) DependsOn() []string { return []string{StepDepsManifest} }
func (s *depsInstallStep) Description() string {
	return "Installing dependencies"
}

func (s *depsInstallStep) Inputs(bctx *BuildContext) (string, error) {
	reqs, err := manifest.LoadRequirements(bctx.DependencyManifestPath())
	if err != nil {
		return "", domainerrors.Wrap(domainerrors.DomainBuild, domainerrors.CodeDepsManifestGone,
			"failed to parse dependency manifest", err)
	}

	canonical := make([]string, len(reqs))
	for i, req := range reqs {
		canonical[i] = req.String()
	}
	return layer.DigestBytes([]byte(strings.Join(canonical, "\n"))), nil
}

func (s *depsInstallStep) Execute(ctx context.Context, bctx *BuildContext, dir string) error {
	reqs, err := manifest.LoadRequirements(bctx.DependencyManifestPath())
	if err != nil {
		return err
	}

	for _, req := range reqs {
		rc, version, err := bctx.Resolvers.Dependencies.FetchDependency(ctx, req)
		if err != nil {
			return domainerrors.Wrap(domainerrors.DomainFetch, domainerrors.CodeDependencyUnresolved,
				fmt.Sprintf("dependency %s is unresolvable", req), err)
		}
		target := layerPath(dir, depsDir+"/"+req.Name+"-"+version)
		err = fetch.Untar(rc, target)
		rc.Close()
		if err != nil {
			return domainerrors.Wrap(domainerrors.DomainFetch, domainerrors.CodeDependencyUnresolved,
				fmt.Sprintf("failed to unpack dependency %s", req), err)
		}
	}
	return nil
}

// sourceStep copies the full build context into the workdir. Everything
// not matched by .kilnignore is included.
type sourceStep struct{}

func (s *sourceStep) ID() string          { return StepSource }
func (s *sourceStep) DependsOn() []string { return []string{StepWorkdir} }
func (s *sourceStep) Description() string {
	return "Copying source tree"
}

func (s *sourceStep) Inputs(bctx *BuildContext) (string, error) {
	matcher, err := newIgnoreMatcher(bctx)
	if err != nil {
		return "", err
	}
	return digestContext(bctx.Dir, matcher)
}

func (s *sourceStep) Execute(_ context.Context, bctx *BuildContext, dir string) error {
	matcher, err := newIgnoreMatcher(bctx)
	if err != nil {
		return err
	}
	return copyContext(bctx.Dir, layerPath(dir, bctx.Manifest.Image.WorkDir), matcher)
}

// browserStep provisions the pinned headless browser build. The platform
// check runs at input time so an unsupported platform fails before any
// download starts.
type browserStep struct {
	engine   string
	revision string
}

func (s *browserStep) ID() string          { return StepBrowser }
func (s *browserStep) DependsOn() []string { return []string{StepDepsInstall} }
func (s *browserStep) Description() string {
	return fmt.Sprintf("Installing %s r%s", s.engine, s.revision)
}

func (s *browserStep) Inputs(bctx *BuildContext) (string, error) {
	if !browser.Supported(bctx.Platform) {
		return "", domainerrors.ErrBrowserPlatform.WithStep(StepBrowser).WithDetails(map[string]interface{}{
			"platform": bctx.Platform,
		})
	}
	return layer.DigestBytes([]byte(s.engine + "\x00" + s.revision + "\x00" + bctx.Platform)), nil
}

func (s *browserStep) Execute(ctx context.Context, bctx *BuildContext, dir string) error {
	rc, err := bctx.Resolvers.Browser.FetchBrowser(ctx, s.engine, s.revision, bctx.Platform)
	if err != nil {
		return domainerrors.Wrap(domainerrors.DomainFetch, domainerrors.CodeBrowserUnreachable,
			fmt.Sprintf("browser %s r%s is unavailable", s.engine, s.revision), err)
	}
	defer rc.Close()

	if err := fetch.Untar(rc, layerPath(dir, browser.InstallDir(s.engine, s.revision))); err != nil {
		return domainerrors.Wrap(domainerrors.DomainFetch, domainerrors.CodeBrowserUnreachable,
			"failed to unpack browser snapshot", err)
	}
	return nil
}

// entrypointStep fixes the image runtime configuration. The config is a
// pure function of the manifest, so the layer is stable unless the
// entrypoint, workdir or browser pin changes.
type entrypointStep struct{}

func (s *entrypointStep) ID() string          { return StepEntrypoint }
func (s *entrypointStep) DependsOn() []string { return []string{StepSource} }
func (s *entrypointStep) Description() string {
	return "Declaring entry point"
}

func (s *entrypointStep) Inputs(bctx *BuildContext) (string, error) {
	encoded, err := json.Marshal(ImageConfig(bctx))
	if err != nil {
		return "", err
	}
	return layer.DigestBytes(encoded), nil
}

func (s *entrypointStep) Execute(_ context.Context, bctx *BuildContext, dir string) error {
	encoded, err := json.MarshalIndent(ImageConfig(bctx), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode image config: %w", err)
	}

	target := layerPath(dir, "/etc/kiln/image.json")
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	return os.WriteFile(target, encoded, 0644)
}

// ignoreMatcher applies .kilnignore patterns to context-relative paths.
type ignoreMatcher struct {
	patterns []string
}

func newIgnoreMatcher(bctx *BuildContext) (*ignoreMatcher, error) {
	patterns, err := bctx.IgnorePatterns()
	if err != nil {
		return nil, err
	}
	return &ignoreMatcher{patterns: patterns}, nil
}

func (m *ignoreMatcher) Skip(rel string) bool {
	rel = filepath.ToSlash(rel)

	// The version control directory and the kiln state dir never belong
	// in an image.
	if rel == ".git" || strings.HasPrefix(rel, ".git/") {
		return true
	}
	if rel == StateDirName || strings.HasPrefix(rel, StateDirName+"/") {
		return true
	}

	for _, pattern := range m.patterns {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		// A pattern matching a parent directory excludes the subtree.
		for parent := filepath.ToSlash(filepath.Dir(rel)); parent != "." && parent != "/"; parent = filepath.ToSlash(filepath.Dir(parent)) {
			if ok, _ := filepath.Match(pattern, parent); ok {
				return true
			}
		}
	}
	return false
}

func digestContext(root string, matcher *ignoreMatcher) (string, error) {
	staging, err := os.MkdirTemp("", "kiln-source-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(staging)

	if err := copyContext(root, staging, matcher); err != nil {
		return "", err
	}
	digest, _, err := layer.DigestDir(staging)
	return digest, err
}

func copyContext(root, dst string, matcher *ignoreMatcher) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return os.MkdirAll(dst, 0755)
		}
		if matcher.Skip(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&os.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			os.Remove(target)
			return os.Symlink(linkTarget, target)
		default:
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			return os.WriteFile(target, data, info.Mode().Perm())
		}
	})
}
