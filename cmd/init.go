package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/kilnbuild/kiln/internal/services"
	"github.com/kilnbuild/kiln/internal/ui"
	"github.com/kilnbuild/kiln/internal/ui/models/spinner"
	"github.com/spf13/cobra"
)

var initRuntime string

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Scaffold a new image manifest",
	Long: `Scaffold a kiln.yaml manifest and a starter dependency manifest.

The manifest pins a base runtime version, the OS packages a headless
browser needs, a browser snapshot revision and an entrypoint. Edit the
generated file to match the application before building.`,
	Example: `  # Scaffold a Python image manifest in ./my-scraper
  kiln init my-scraper --runtime python

  # Pick the runtime interactively
  kiln init my-scraper`,
	Args:          cobra.MaximumNArgs(1),
	RunE:          runInit,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func runInit(cmd *cobra.Command, args []string) error {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	if name == "" {
		return fmt.Errorf("image name is required")
	}

	if initRuntime == "" {
		options := make([]huh.Option[string], 0)
		for _, rt := range services.SupportedRuntimes() {
			options = append(options, huh.NewOption(rt, rt))
		}

		baseStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ui.InfoColor))
		theme := huh.Theme{
			Focused: huh.FieldStyles{
				Title:          baseStyle.Bold(true),
				SelectedOption: ui.Highlight,
				SelectSelector: baseStyle,
			},
		}

		selectRuntime := huh.NewSelect[string]().
			Title("Choose a base runtime").
			Options(options...).
			Value(&initRuntime)

		form := huh.NewForm(huh.NewGroup(selectRuntime))
		if err := form.WithTheme(&theme).Run(); err != nil {
			return fmt.Errorf("error during runtime selection: %w", err)
		}
	}

	dir := name
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	c, err := GetContainer()
	if err != nil {
		return err
	}
	buildService, err := c.GetBuildService()
	if err != nil {
		return err
	}

	p := tea.NewProgram(spinner.NewSpinnerModel())

	go func() {
		p.Send("Scaffolding manifest...")
		if err := buildService.InitManifest(dir, filepath.Base(name), initRuntime); err != nil {
			p.Send(fmt.Errorf("error scaffolding manifest: %w", err))
			return
		}
		p.Send(spinner.ResultMsg{Result: fmt.Sprintf("created %s/kiln.yaml", dir)})
	}()

	m, err := p.Run()
	if err != nil {
		return err
	}

	finalModel, ok := m.(spinner.SpinnerModel)
	if !ok {
		return fmt.Errorf("unexpected model type returned")
	}
	if finalModel.HasError() {
		return finalModel.GetError()
	}

	result, ok := finalModel.GetResult().(string)
	if !ok {
		return fmt.Errorf("unexpected result type")
	}
	ui.PrintSuccess(result)
	return nil
}

func init() {
	initCmd.Flags().StringVarP(&initRuntime, "runtime", "r", "", "Base runtime (python, node)")

	rootCmd.AddCommand(initCmd)
}
