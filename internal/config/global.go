package config

import (
	"github.com/kilnbuild/kiln/pkg/builder/config"
)

// Global configuration variables
var (
	// ConfigPath is the path to the configuration file, overridable with
	// the --config flag
	ConfigPath = config.DefaultConfigPath
)
