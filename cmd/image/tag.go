package image

import (
	"fmt"

	"github.com/kilnbuild/kiln/internal/ui"
	"github.com/spf13/cobra"
)

// NewImageTagCommand creates a command to move a tag onto a version.
func NewImageTagCommand(provider ServiceProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag <namespace/name:reference> <tag>",
		Short: "Assign a tag to an image version",
		Long: `Point a tag at the image version identified by the reference. The
reference can itself be a tag or a digest prefix. A tag names exactly one
version; assigning it removes it from the version that held it before.`,
		Example: `  # Promote a digest to latest
  kiln image tag default/my-scraper:3f8a2b91c04e latest

  # Re-point a release tag
  kiln image tag default/my-scraper:latest v1.0.0`,
		Args:          cobra.ExactArgs(2),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := provider()
			if err != nil {
				return err
			}

			if err := service.Tag(args[0], args[1]); err != nil {
				return fmt.Errorf("failed to assign tag: %w", err)
			}

			ui.PrintSuccess(fmt.Sprintf("Tag %s assigned to %s", args[1], args[0]))
			return nil
		},
	}
	return cmd
}
