package image

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kilnbuild/kiln/internal/services"
	"github.com/kilnbuild/kiln/internal/ui"
	"github.com/kilnbuild/kiln/pkg/types"
	"github.com/spf13/cobra"
)

// ServiceProvider resolves the image service once the container is up.
type ServiceProvider func() (services.ImageService, error)

// NewImageListCommand creates a command to list registered images.
func NewImageListCommand(provider ServiceProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list [namespace/name]",
		Aliases: []string{"ls"},
		Short:   "List images in the registry",
		Long: `Display all images registered in the local registry.

If called without arguments, lists every image version. If a namespace/name
is provided, only versions of that image are shown. Each row shows:
* Repository name (namespace/name)
* Tags
* Image digest prefix
* Size

The registry contains every image kiln has built, and this command shows
what is available to run.`,
		Example: `  # List all images
  kiln image list

  # List versions of one image
  kiln image list default/my-scraper

  # List in plain format (useful for scripting)
  kiln image list --plain`,
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			plainFormat, _ := cmd.Flags().GetBool("plain")

			service, err := provider()
			if err != nil {
				return err
			}

			rows, err := service.List()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				namespace, name, err := splitRepository(args[0])
				if err != nil {
					return fmt.Errorf("invalid image name format: %w", err)
				}
				filtered := rows[:0]
				for _, row := range rows {
					if row.Namespace == namespace && row.Name == name {
						filtered = append(filtered, row)
					}
				}
				rows = filtered
			}

			if plainFormat {
				renderImageListPlain(rows)
			} else {
				renderImageList(rows)
			}
			return nil
		},
	}

	cmd.Flags().Bool("plain", false, "Output in plain, machine-readable format (useful for piping to other commands)")
	return cmd
}

func splitRepository(input string) (namespace, name string, err error) {
	parts := strings.Split(input, "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid format: expected namespace/name")
	}

	namespace = strings.TrimSpace(parts[0])
	name = strings.TrimSpace(parts[1])

	if namespace == "" || name == "" {
		return "", "", fmt.Errorf("namespace and name cannot be empty")
	}
	return namespace, name, nil
}

func renderImageListPlain(rows []types.ImageInfo) {
	const lineFormat = "%-30s\t%-15s\t%-20s\t%-10s\n"

	fmt.Printf(lineFormat, "REPOSITORY", "TAG", "IMAGE_ID", "SIZE")

	for _, row := range rows {
		repository := fmt.Sprintf("%s/%s", row.Namespace, row.Name)

		if len(row.Tags) == 0 {
			fmt.Printf(lineFormat, repository, "<none>", row.Digest, formatSize(row.Size))
			continue
		}
		sortedTags := make([]string, len(row.Tags))
		copy(sortedTags, row.Tags)
		sort.Strings(sortedTags)

		for _, tag := range sortedTags {
			fmt.Printf(lineFormat, repository, tag, row.Digest, formatSize(row.Size))
		}
	}
}

func renderImageList(rows []types.ImageInfo) {
	table := ui.NewTable([]string{"REPOSITORY", "TAG", "IMAGE ID", "SIZE"})

	for _, row := range rows {
		repository := fmt.Sprintf("%s/%s", row.Namespace, row.Name)

		if len(row.Tags) == 0 {
			table.AddRow(repository, "<none>", row.Digest, formatSize(row.Size))
			continue
		}
		sortedTags := make([]string, len(row.Tags))
		copy(sortedTags, row.Tags)
		sort.Strings(sortedTags)

		for _, tag := range sortedTags {
			table.AddRow(repository, tag, row.Digest, formatSize(row.Size))
		}
	}

	fmt.Println(ui.RenderTable(table))
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
