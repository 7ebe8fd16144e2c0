package cmd

import (
	"fmt"
	"os"

	"github.com/kilnbuild/kiln/internal/ui"
	"github.com/kilnbuild/kiln/pkg/registry"
	"github.com/spf13/cobra"
)

var runFlags struct {
	rm    bool
	plain bool
}

var runCmd = &cobra.Command{
	Use:   "run <image>",
	Short: "Run an instance of a built image",
	Long: `Run an instance of a built image.

A fresh private root filesystem is assembled from the image's layers and
the recorded entrypoint is executed inside it, exactly as declared and
with no extra arguments. The command exits with the entrypoint's exit
code. Instances are isolated: nothing one instance writes is visible to
another.`,
	Example: `  # Run the latest build of an image
  kiln run my-scraper

  # Run a specific tag and discard the rootfs afterwards
  kiln run default/my-scraper:v1.0.0 --rm`,
	Args:          cobra.ExactArgs(1),
	RunE:          runInstance,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func runInstance(cmd *cobra.Command, args []string) error {
	namespace, name, reference, err := registry.ParseReference(args[0])
	if err != nil {
		return err
	}

	c, err := GetContainer()
	if err != nil {
		return err
	}
	runner, err := c.GetRunner()
	if err != nil {
		return err
	}

	instance, err := runner.Create(cmd.Context(), namespace, name, reference)
	if err != nil {
		return err
	}
	if runFlags.rm {
		defer instance.Destroy()
	}

	if !runFlags.plain {
		ui.PrintInfo("Instance", instance.ID)
		fmt.Println()
	}

	exitCode, err := instance.Run(cmd.Context(), os.Stdout, os.Stderr)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		if runFlags.rm {
			instance.Destroy()
		}
		// Propagate the entrypoint's exit code after cleanup.
		if container != nil {
			container.Close()
		}
		os.Exit(exitCode)
	}
	return nil
}

func init() {
	runCmd.Flags().BoolVar(&runFlags.rm, "rm", false, "Remove the instance rootfs when the entrypoint exits")
	runCmd.Flags().BoolVar(&runFlags.plain, "plain", false, "Suppress the instance banner")

	rootCmd.AddCommand(runCmd)
}
