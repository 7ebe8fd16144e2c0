package builder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/kilnbuild/kiln/pkg/manifest"
)

// IgnoreFileName is the optional per-context filter for the source-copy
// step. Everything not matched is included.
const IgnoreFileName = ".kilnignore"

// StateDirName is the kiln state directory. When it sits inside a build
// context it is excluded from the source layer unconditionally.
const StateDirName = ".kiln"

// BaseResolver fetches the rootfs archive for a pinned base runtime.
type BaseResolver interface {
	FetchBase(ctx context.Context, runtime, version, platform string) (io.ReadCloser, error)
}

// PackageResolver fetches the archive for one OS-level package.
type PackageResolver interface {
	FetchPackage(ctx context.Context, name, platform string) (io.ReadCloser, error)
}

// DependencyResolver fetches the archive satisfying one requirement and
// reports the concrete version it resolved to.
type DependencyResolver interface {
	FetchDependency(ctx context.Context, req manifest.Requirement) (io.ReadCloser, string, error)
}

// BrowserResolver fetches a pinned browser snapshot for a platform.
type BrowserResolver interface {
	FetchBrowser(ctx context.Context, engine, revision, platform string) (io.ReadCloser, error)
}

// Resolvers bundles everything the provisioning steps download through.
type Resolvers struct {
	Base         BaseResolver
	Packages     PackageResolver
	Dependencies DependencyResolver
	Browser      BrowserResolver
}

// BuildContext carries one build's inputs: the resolved context directory,
// the parsed manifest, the target platform and the resolvers.
type BuildContext struct {
	// Dir is the build context directory.
	Dir string

	// Manifest is the validated build manifest.
	Manifest *manifest.BuildManifest

	// Platform is the target platform in os/arch form.
	Platform string

	// InstallBrowser is the effective browser flag: the manifest wins if
	// it says anything, otherwise the configured default applies.
	InstallBrowser bool

	Resolvers Resolvers

	// Progress, when set, overrides the builder's progress callback for
	// this build.
	Progress func(step, message string)
}

// DependencyManifestPath returns the requirements file location inside the
// build context.
func (c *BuildContext) DependencyManifestPath() string {
	return filepath.Join(c.Dir, c.Manifest.Image.DependencyManifest())
}

// IgnorePatterns loads .kilnignore if present. Patterns are matched with
// filepath.Match against slash-separated paths relative to the context
// root; a trailing pattern also matches everything under a matched
// directory.
func (c *BuildContext) IgnorePatterns() ([]string, error) {
	f, err := os.Open(filepath.Join(c.Dir, IgnoreFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", IgnoreFileName, err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, scanner.Err()
}

// ResolveContext turns a build source into a local directory. A local path
// is used as-is; a git URL is cloned into a temporary directory and the
// returned cleanup removes the clone.
func ResolveContext(ctx context.Context, source string) (dir string, cleanup func(), err error) {
	cleanup = func() {}

	if isGitSource(source) {
		tmp, err := os.MkdirTemp("", "kiln-context-*")
		if err != nil {
			return "", cleanup, fmt.Errorf("failed to create context dir: %w", err)
		}
		_, err = git.PlainCloneContext(ctx, tmp, false, &git.CloneOptions{
			URL:   source,
			Depth: 1,
		})
		if err != nil {
			os.RemoveAll(tmp)
			return "", cleanup, fmt.Errorf("failed to clone build context: %w", err)
		}
		return tmp, func() { os.RemoveAll(tmp) }, nil
	}

	abs, err := filepath.Abs(source)
	if err != nil {
		return "", cleanup, fmt.Errorf("failed to resolve context path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", cleanup, fmt.Errorf("build context %s: %w", source, err)
	}
	if !info.IsDir() {
		return "", cleanup, fmt.Errorf("build context %s is not a directory", source)
	}
	return abs, cleanup, nil
}

func isGitSource(source string) bool {
	return strings.HasSuffix(source, ".git") ||
		strings.HasPrefix(source, "git@") ||
		strings.HasPrefix(source, "git://") ||
		strings.HasPrefix(source, "ssh://")
}
