package cmd

import (
	"fmt"
	"os"

	globalConfig "github.com/kilnbuild/kiln/internal/config"
	"github.com/kilnbuild/kiln/internal/di"
	"github.com/kilnbuild/kiln/internal/ui"
	"github.com/kilnbuild/kiln/pkg/builder/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Global state shared by commands
var (
	cfg       *config.Config
	container *di.Container
)

var rootCmd = &cobra.Command{
	Use:   "kiln",
	Short: "Kiln image provisioner",
	Long: `Kiln builds self-contained runtime images from a declarative manifest.

A kiln.yaml manifest pins a base runtime, OS packages, language dependencies
and an optional headless browser; kiln provisions each as an immutable
content-addressed layer, caches layers across builds, and registers the
result in a local image registry.

Key capabilities:
* Build images from a kiln.yaml manifest
* Reuse cached layers when a step's inputs are unchanged
* Manage built images and tags in a local registry
* Run image instances from isolated root filesystems`,
	Example: `  # Scaffold a manifest for a Python image
  kiln init my-scraper --runtime python

  # Build the image in the current directory
  kiln build

  # Build and tag it
  kiln build -t v1.0.0

  # Run an instance
  kiln run default/my-scraper:latest

  # List built images
  kiln image list

  # Use a custom config file
  kiln --config ~/.kiln/custom-config.yaml image list`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// Skip for help commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		loaded, err := config.LoadConfig(globalConfig.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded

		c, err := di.BuildContainer(cfg)
		if err != nil {
			return err
		}
		container = c

		// Check if any command in the hierarchy has a plain flag set to true
		plainFlag := false
		cmd.Flags().Visit(func(f *pflag.Flag) {
			if f.Name == "plain" && f.Value.String() == "true" {
				plainFlag = true
			}
		})

		if !plainFlag {
			ui.PrintLogo()
		}

		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
		if container != nil {
			return container.Close()
		}
		return nil
	},
}

// GetContainer returns the container built during command setup.
func GetContainer() (*di.Container, error) {
	if container == nil {
		return nil, fmt.Errorf("container not initialized")
	}
	return container, nil
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalConfig.ConfigPath, "config", "c", config.DefaultConfigPath, "Path to the configuration file")
}
