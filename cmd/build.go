package cmd

import (
	"fmt"

	"github.com/kilnbuild/kiln/internal/services"
	"github.com/kilnbuild/kiln/internal/ui/handlers"
	"github.com/kilnbuild/kiln/pkg/builder"
	"github.com/kilnbuild/kiln/pkg/types"
	"github.com/spf13/cobra"
)

var buildFlags struct {
	tag            string
	platform       string
	installBrowser bool
	noBrowser      bool
	plain          bool
}

var buildCmd = &cobra.Command{
	Use:   "build [source]",
	Short: "Build an image from a manifest",
	Long: `Build an image from a kiln.yaml manifest.

The source is a local directory or a git URL; the current directory is used
when omitted. The build runs a fixed pipeline of provisioning steps:

1. Fetches the pinned base runtime filesystem
2. Installs the OS packages the manifest lists
3. Creates the working directory
4. Installs the pinned language dependencies
5. Copies the application source
6. Installs the pinned headless browser, unless disabled
7. Records the entrypoint and runtime configuration

Each step produces an immutable content-addressed layer. A step whose
inputs and parent layers are unchanged reuses its cached layer instead of
re-running.`,
	Example: `  # Build the image in the current directory
  kiln build

  # Build from a specific directory
  kiln build ./path/to/project

  # Build from a git repository
  kiln build https://github.com/acme/scraper.git

  # Build and tag the image
  kiln build -t v1.0.0

  # Skip the browser provisioning step
  kiln build --no-browser

  # Cross-provision for another platform
  kiln build --platform linux/arm64`,
	Args:          cobra.MaximumNArgs(1),
	RunE:          runBuild,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func runBuild(cmd *cobra.Command, args []string) error {
	source := "."
	if len(args) > 0 {
		source = args[0]
	}

	c, err := GetContainer()
	if err != nil {
		return err
	}
	buildService, err := c.GetBuildService()
	if err != nil {
		return err
	}

	opts := services.BuildOptions{
		Tag:      buildFlags.tag,
		Platform: buildFlags.platform,
	}
	// --install-browser and --no-browser each force the step; when neither
	// is given the manifest and configuration decide.
	if cmd.Flags().Changed("install-browser") {
		v := buildFlags.installBrowser
		opts.InstallBrowser = &v
	}
	if buildFlags.noBrowser {
		v := false
		opts.InstallBrowser = &v
	}

	run := func(progress builder.ProgressFunc) (*types.BuildResult, error) {
		opts.Progress = progress
		return buildService.Build(cmd.Context(), source, opts)
	}

	var result *types.BuildResult
	if buildFlags.plain {
		result, err = run(func(step, message string) {
			fmt.Printf("[%s] %s\n", step, message)
		})
	} else {
		result, err = handlers.BuildWithSpinner(run)
	}
	if err != nil {
		return err
	}

	tag := buildFlags.tag
	if tag == "" {
		tag = "latest"
	}
	handlers.DisplayBuildResults(*result, []handlers.TagInfo{
		{Namespace: result.Namespace, Name: result.Name, Tag: tag},
	})
	return nil
}

func init() {
	buildCmd.Flags().StringVarP(&buildFlags.tag, "tag", "t", "", "Tag for the built image (defaults to latest)")
	buildCmd.Flags().StringVar(&buildFlags.platform, "platform", "", "Target platform in os/arch form (overrides config)")
	buildCmd.Flags().BoolVar(&buildFlags.installBrowser, "install-browser", true, "Run the browser provisioning step")
	buildCmd.Flags().BoolVar(&buildFlags.noBrowser, "no-browser", false, "Skip the browser provisioning step")
	buildCmd.Flags().BoolVar(&buildFlags.plain, "plain", false, "Plain line-per-step output instead of the spinner")

	rootCmd.AddCommand(buildCmd)
}
