package cache

import (
	"fmt"

	"github.com/kilnbuild/kiln/internal/services"
	"github.com/kilnbuild/kiln/internal/ui"
	"github.com/kilnbuild/kiln/pkg/registry"
	"github.com/spf13/cobra"
)

// ServiceProvider resolves the cache service once the container is up.
type ServiceProvider func() (services.CacheService, error)

// NewCacheListCommand creates a command to list cached layers.
func NewCacheListCommand(provider ServiceProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List cached layers",
		Long: `Display every layer in the content-addressed cache, newest first.
Each row shows the provisioning step that produced the layer, the layer
digest and its size.`,
		Example: `  # Show cached layers
  kiln cache list`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := provider()
			if err != nil {
				return err
			}

			layers, err := service.List()
			if err != nil {
				return err
			}

			table := ui.NewTable([]string{"STEP", "LAYER", "SIZE", "CREATED"})
			for _, l := range layers {
				table.AddRow(
					l.StepID,
					registry.TruncateDigest(l.Digest, 12),
					formatSize(l.Size),
					l.CreatedAt.Format("2006-01-02 15:04:05"),
				)
			}
			fmt.Println(ui.RenderTable(table))
			return nil
		},
	}
	return cmd
}

func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
