package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Configuration constants
const (
	// DefaultConfigPath is the default path to the config file
	DefaultConfigPath = "~/.kiln/config.yaml"

	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "KILN_"
)

// Config holds all configuration for the kiln build engine
type Config struct {
	// Build options
	Build BuildConfig `koanf:"build"`

	// Layer cache options
	Cache CacheConfig `koanf:"cache"`

	// Image registry options
	Registry RegistryConfig `koanf:"registry"`

	// Instance runtime options
	Runtime RuntimeConfig `koanf:"runtime"`

	// Fetcher options
	Fetch FetchConfig `koanf:"fetch"`

	// Logging options
	Log LogConfig `koanf:"log"`
}

// BuildConfig holds build-specific configuration
type BuildConfig struct {
	// Whether the browser provisioning step runs when the manifest does
	// not say either way. Defaults to on, matching the recipe kiln is
	// modeled after.
	InstallBrowser bool `koanf:"install_browser"`

	// Target platform in os/arch form
	Platform string `koanf:"platform"`
}

// CacheConfig holds layer cache configuration
type CacheConfig struct {
	// Directory holding the cache index and layer blobs
	Dir string `koanf:"dir"`
}

// RegistryConfig holds image registry configuration
type RegistryConfig struct {
	// Directory holding the registry database
	Dir string `koanf:"dir"`
}

// RuntimeConfig holds instance runtime configuration
type RuntimeConfig struct {
	// Directory instance root filesystems are assembled under
	Dir string `koanf:"dir"`
}

// FetchConfig holds fetcher configuration
type FetchConfig struct {
	// Timeout for a single download
	Timeout time.Duration `koanf:"timeout"`

	// Mirror serving base runtime rootfs archives
	BaseURL string `koanf:"base_url"`

	// Mirror serving OS package archives
	PackageURL string `koanf:"package_url"`

	// Index serving language dependency archives
	IndexURL string `koanf:"index_url"`

	// Mirror serving pinned browser snapshot archives
	BrowserURL string `koanf:"browser_url"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	// Log level (error, info, debug)
	Level string `koanf:"level"`

	// Development enables the human-oriented console encoder
	Development bool `koanf:"development"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	kilnDir := filepath.Join(homeDir, ".kiln")

	return &Config{
		Build: BuildConfig{
			InstallBrowser: true,
			Platform:       runtime.GOOS + "/" + runtime.GOARCH,
		},
		Cache: CacheConfig{
			Dir: filepath.Join(kilnDir, "cache"),
		},
		Registry: RegistryConfig{
			Dir: filepath.Join(kilnDir, "registry"),
		},
		Runtime: RuntimeConfig{
			Dir: filepath.Join(kilnDir, "instances"),
		},
		Fetch: FetchConfig{
			Timeout:    5 * time.Minute,
			BaseURL:    "https://mirror.kilnbuild.dev/bases",
			PackageURL: "https://mirror.kilnbuild.dev/packages",
			IndexURL:   "https://mirror.kilnbuild.dev/simple",
			BrowserURL: "https://mirror.kilnbuild.dev/browsers",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from the specified path and environment variables
func LoadConfig(configPath string) (*Config, error) {
	k := koanf.New(".")

	// Set default values
	defaultConfig := DefaultConfig()
	err := k.Load(newStructProvider(defaultConfig), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	// Expand tilde in config path if needed
	expandedPath := configPath
	if strings.HasPrefix(configPath, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			expandedPath = filepath.Join(homeDir, configPath[2:])
		}
	}

	// Try to load from config file (if it exists)
	if _, err := os.Stat(expandedPath); err == nil {
		if err := k.Load(file.Provider(expandedPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Load from environment variables. Sections are single words, so only
	// the first underscore separates section from key; the rest belong to
	// the key itself (KILN_BUILD_INSTALL_BROWSER -> build.install_browser).
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Unmarshal into Config struct
	var config Config
	if err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			// Environment values arrive as strings; coerce them into the
			// typed fields (bools, durations) they address.
			WeaklyTypedInput: true,
			Result:           &config,
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// structProvider is a provider that loads configuration from a struct
type structProvider struct {
	cfg interface{}
}

// newStructProvider creates a new struct provider
func newStructProvider(cfg interface{}) *structProvider {
	return &structProvider{cfg: cfg}
}

// Read reads the configuration from the struct
func (s *structProvider) Read() (map[string]interface{}, error) {
	var out map[string]interface{}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &out,
		TagName: "koanf",
	})
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(s.cfg); err != nil {
		return nil, err
	}

	return out, nil
}

// ReadBytes is required by the Provider interface but not used for struct providers
func (s *structProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("ReadBytes not supported for struct provider")
}
