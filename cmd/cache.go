package cmd

import (
	kilncache "github.com/kilnbuild/kiln/cmd/cache"
	"github.com/kilnbuild/kiln/internal/services"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the layer cache",
	Long: `Commands for working with the content-addressed layer cache.

Every provisioning step's output is kept as an immutable layer, indexed by
the step's identity, its inputs and its parent layers. Later builds reuse
layers whose index entry still matches. This command group inspects that
cache and reclaims space.`,
	Example: `  # Show cached layers
  kiln cache list

  # Drop layers no image references
  kiln cache prune`,
}

func cacheServiceProvider() (services.CacheService, error) {
	c, err := GetContainer()
	if err != nil {
		return nil, err
	}
	return c.GetCacheService()
}

func init() {
	cacheCmd.AddCommand(kilncache.NewCacheListCommand(cacheServiceProvider))
	cacheCmd.AddCommand(kilncache.NewCachePruneCommand(cacheServiceProvider))
	rootCmd.AddCommand(cacheCmd)
}
