package cmd

import (
	"fmt"

	"github.com/kilnbuild/kiln/internal/ui"
	"github.com/kilnbuild/kiln/internal/ui/operations"
	"github.com/kilnbuild/kiln/pkg/browser"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <browser-binary>",
	Short: "Verify a provisioned browser binary",
	Long: `Launch the given browser binary headless and navigate to a blank page.

This checks that a provisioned browser layer actually works on this
machine: the binary starts, its shared libraries resolve and the DevTools
endpoint answers. No pages beyond about:blank are loaded.`,
	Example: `  # Verify a browser inside an instance rootfs
  kiln verify ~/.kiln/instances/<id>/rootfs/opt/chromium-1181205/chrome`,
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		binPath := args[0]

		return operations.WithSpinner("Launching browser...",
			func() (interface{}, error) {
				if err := browser.Verify(cmd.Context(), binPath); err != nil {
					return nil, err
				}
				return binPath, nil
			},
			func(result interface{}) {
				ui.PrintSuccess(fmt.Sprintf("Browser at %v launched headless successfully", result))
			})
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
