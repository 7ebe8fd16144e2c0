package cache

import (
	"fmt"

	"github.com/kilnbuild/kiln/internal/ui"
	"github.com/kilnbuild/kiln/internal/ui/operations"
	"github.com/spf13/cobra"
)

// NewCachePruneCommand creates a command to reclaim unreferenced layers.
func NewCachePruneCommand(provider ServiceProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove layers no image references",
		Long: `Drop cache entries whose layers are not referenced by any registered
image version, and delete the orphaned layer blobs. Layers still referenced
by an image are never touched.`,
		Example: `  # Reclaim unreferenced layers
  kiln cache prune`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := provider()
			if err != nil {
				return err
			}

			return operations.WithSpinner("Pruning cache...",
				func() (interface{}, error) {
					return service.Prune()
				},
				func(result interface{}) {
					pruned, _ := result.(int)
					ui.PrintSuccess(fmt.Sprintf("Pruned %d cache entries", pruned))
				})
		},
	}
	return cmd
}
