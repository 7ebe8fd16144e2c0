// Package manifest defines the kiln build manifest: the ordered,
// declarative description of the provisioning steps that produce an image.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

// DefaultFileNames are the manifest file names probed, in order, when a
// build is pointed at a directory.
var DefaultFileNames = []string{"kiln.yaml", "kiln.yml", "kiln.toml"}

// ErrManifestNotFound is returned when no manifest file exists in a
// build context.
var ErrManifestNotFound = errors.New("build manifest not found")

// BuildManifest is the root of a kiln.yaml / kiln.toml file.
type BuildManifest struct {
	Image ImageSettings `yaml:"image" toml:"image" validate:"required"`
}

// ImageSettings describes the image a build produces.
type ImageSettings struct {
	Namespace string `yaml:"namespace" toml:"namespace"`
	Name      string `yaml:"name" toml:"name" validate:"required"`

	Base BaseSettings `yaml:"base" toml:"base" validate:"required"`

	// WorkDir is the working directory all later file steps and the
	// entrypoint resolve against. Must be absolute.
	WorkDir string `yaml:"workdir" toml:"workdir" validate:"required"`

	// Packages is the fixed, ordered list of OS-level packages installed
	// into the base filesystem.
	Packages []string `yaml:"packages" toml:"packages" validate:"dive,required"`

	Dependencies DependencySettings `yaml:"dependencies" toml:"dependencies"`

	Browser BrowserSettings `yaml:"browser" toml:"browser"`

	// Entrypoint is the exact command executed when an instance starts.
	// Exactly one entrypoint; invoked with no arguments.
	Entrypoint []string `yaml:"entrypoint" toml:"entrypoint" validate:"required,min=1,dive,required"`
}

// BaseSettings pins the base runtime the image is layered on.
type BaseSettings struct {
	Runtime string `yaml:"runtime" toml:"runtime" validate:"required"`

	// Version must be a fixed version; floating references such as
	// "latest" are rejected so builds stay reproducible.
	Version string `yaml:"version" toml:"version" validate:"required"`
}

// DependencySettings locates the language-level dependency manifest inside
// the build context.
type DependencySettings struct {
	Manifest string `yaml:"manifest" toml:"manifest"`
}

// BrowserSettings controls the browser provisioning step.
//
// Install defaults to true: the observed recipe runs the step
// unconditionally, so the flag only makes the opt-out explicit.
type BrowserSettings struct {
	Install  *bool  `yaml:"install" toml:"install"`
	Engine   string `yaml:"engine" toml:"engine"`
	Revision string `yaml:"revision" toml:"revision"`
}

// InstallEnabled reports whether the browser step runs.
func (b BrowserSettings) InstallEnabled() bool {
	return b.Install == nil || *b.Install
}

// DefaultBrowserEngine is used when the manifest leaves the engine unset.
const DefaultBrowserEngine = "chromium"

// DependencyManifest returns the dependency manifest path relative to the
// build context, defaulting to requirements.txt.
func (s ImageSettings) DependencyManifest() string {
	if s.Dependencies.Manifest != "" {
		return s.Dependencies.Manifest
	}
	return "requirements.txt"
}

// BrowserEngine returns the browser engine name, applying the default.
func (s ImageSettings) BrowserEngine() string {
	if s.Browser.Engine != "" {
		return s.Browser.Engine
	}
	return DefaultBrowserEngine
}

var validate = validator.New()

// Validate checks the manifest structurally and semantically. Structural
// checks come from validator tags; the semantic checks enforce the
// reproducibility contract.
func (m *BuildManifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}

	version := strings.ToLower(strings.TrimSpace(m.Image.Base.Version))
	if version == "latest" || version == "" {
		return fmt.Errorf("invalid manifest: base version must be pinned, got %q", m.Image.Base.Version)
	}
	if !filepath.IsAbs(m.Image.WorkDir) {
		return fmt.Errorf("invalid manifest: workdir must be an absolute path, got %q", m.Image.WorkDir)
	}
	if m.Image.Browser.InstallEnabled() && m.Image.Browser.Revision == "" {
		return fmt.Errorf("invalid manifest: browser install requires a pinned revision")
	}
	return nil
}

// Load reads and validates a manifest from path. The format is chosen by
// file extension; YAML is the default.
func Load(path string) (*BuildManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrManifestNotFound)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m BuildManifest
	switch filepath.Ext(path) {
	case ".toml":
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest: %w", err)
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Discover probes dir for a manifest file using DefaultFileNames.
func Discover(dir string) (*BuildManifest, string, error) {
	for _, name := range DefaultFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			m, err := Load(path)
			return m, path, err
		}
	}
	return nil, "", fmt.Errorf("%s: %w", dir, ErrManifestNotFound)
}

// MarshalYaml renders the manifest as YAML.
func (m *BuildManifest) MarshalYaml() ([]byte, error) {
	return yaml.Marshal(m)
}

// MarshalToml renders the manifest as TOML.
func (m *BuildManifest) MarshalToml() ([]byte, error) {
	return toml.Marshal(m)
}
