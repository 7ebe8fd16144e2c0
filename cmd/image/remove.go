package image

import (
	"fmt"

	"github.com/kilnbuild/kiln/internal/ui"
	"github.com/kilnbuild/kiln/pkg/registry"
	"github.com/spf13/cobra"
)

// NewImageRemoveCommand creates a command to remove images or versions.
func NewImageRemoveCommand(provider ServiceProvider) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:     "remove <image>",
		Aliases: []string{"rm"},
		Short:   "Remove an image version or a whole image",
		Long: `Remove the referenced image version from the registry. With --all the
whole image is removed, every version and tag included. Layer blobs stay
in the cache until kiln cache prune reclaims the unreferenced ones.`,
		Example: `  # Remove one tagged version
  kiln image remove default/my-scraper:v1.0.0

  # Remove the image and all its versions
  kiln image remove default/my-scraper --all`,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			namespace, name, reference, err := registry.ParseReference(args[0])
			if err != nil {
				return fmt.Errorf("invalid image name format: %w", err)
			}
			if all {
				reference = ""
			}

			service, err := provider()
			if err != nil {
				return err
			}

			if err := service.Remove(namespace, name, reference); err != nil {
				return err
			}

			if all {
				ui.PrintSuccess(fmt.Sprintf("Removed %s/%s", namespace, name))
			} else {
				ui.PrintSuccess(fmt.Sprintf("Removed %s/%s:%s", namespace, name, reference))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove the image and every version of it")
	return cmd
}
