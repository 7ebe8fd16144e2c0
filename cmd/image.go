package cmd

import (
	"github.com/kilnbuild/kiln/cmd/image"
	"github.com/kilnbuild/kiln/internal/services"
	"github.com/spf13/cobra"
)

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Manage built images",
	Long: `Commands for working with images in the local registry.

Images are the output of kiln build: an ordered list of content-addressed
layers plus the recorded runtime configuration. This command group provides
tools for managing them:
* List registered images and their tags
* Inspect an image's layers and configuration
* Move tags between image versions
* Remove images or individual tagged versions

Images have a namespace/name format and are referenced by tag or by digest
prefix.`,
	Example: `  # List all images in the registry
  kiln image list

  # Inspect a specific version
  kiln image inspect default/my-scraper:latest`,
	Aliases: []string{"img"},
}

func imageServiceProvider() (services.ImageService, error) {
	c, err := GetContainer()
	if err != nil {
		return nil, err
	}
	return c.GetImageService()
}

func init() {
	imageCmd.AddCommand(image.NewImageListCommand(imageServiceProvider))
	imageCmd.AddCommand(image.NewImageInspectCommand(imageServiceProvider))
	imageCmd.AddCommand(image.NewImageTagCommand(imageServiceProvider))
	imageCmd.AddCommand(image.NewImageRemoveCommand(imageServiceProvider))
	rootCmd.AddCommand(imageCmd)
}
