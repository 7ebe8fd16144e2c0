package image

import (
	"fmt"
	"strings"

	"github.com/kilnbuild/kiln/internal/ui"
	"github.com/kilnbuild/kiln/pkg/registry"
	"github.com/spf13/cobra"
)

// NewImageInspectCommand creates a command to show one image version in
// detail.
func NewImageInspectCommand(provider ServiceProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <image>",
		Short: "Show an image version's layers and configuration",
		Long: `Show everything recorded for one image version: its digest, the
ordered layer digests it is assembled from, and the runtime configuration
(instances use the entrypoint, working directory and environment exactly
as shown).`,
		Example: `  # Inspect the latest version
  kiln image inspect default/my-scraper

  # Inspect a specific tag
  kiln image inspect default/my-scraper:v1.0.0`,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := provider()
			if err != nil {
				return err
			}

			version, err := service.Inspect(args[0])
			if err != nil {
				return err
			}

			ui.PrintHighlight(args[0])
			ui.PrintMetadata("Digest ›", version.FullDigest)
			ui.PrintMetadata("Size ›", formatSize(version.Size))
			ui.PrintMetadata("Created ›", version.CreatedAt.Format("2006-01-02 15:04:05"))
			if len(version.Tags) > 0 {
				ui.PrintMetadata("Tags ›", strings.Join(version.Tags, ", "))
			}
			fmt.Println()

			ui.PrintMetadata("Layers ›", "")
			for i, digest := range version.Layers {
				fmt.Printf("  %d. %s\n", i+1, registry.TruncateDigest(digest, 12))
			}
			fmt.Println()

			ui.PrintMetadata("Config ›", "")
			fmt.Printf("  workdir:    %s\n", version.Config.WorkDir)
			fmt.Printf("  entrypoint: %s\n", strings.Join(version.Config.Entrypoint, " "))
			for _, kv := range version.Config.Env {
				fmt.Printf("  env:        %s\n", kv)
			}
			return nil
		},
	}
	return cmd
}
