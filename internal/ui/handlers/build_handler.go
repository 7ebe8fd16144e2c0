package handlers

import (
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kilnbuild/kiln/internal/ui"
	"github.com/kilnbuild/kiln/internal/ui/models/spinner"
	"github.com/kilnbuild/kiln/pkg/builder"
	"github.com/kilnbuild/kiln/pkg/registry"
	"github.com/kilnbuild/kiln/pkg/types"
)

type TagInfo struct {
	Namespace string
	Name      string
	Tag       string
}

// BuildWithSpinner runs buildOperation behind the step spinner. The
// operation receives a progress callback that advances the spinner one
// line per provisioning step.
func BuildWithSpinner(
	buildOperation func(progress builder.ProgressFunc) (*types.BuildResult, error),
) (*types.BuildResult, error) {
	spinnerModel := spinner.NewSpinnerModelWithMessage("Provisioning...")
	program := tea.NewProgram(spinnerModel)

	go func() {
		progress := func(step, message string) {
			program.Send(spinner.StepMsg{Step: fmt.Sprintf("[%s] %s", step, message)})
		}

		result, err := buildOperation(progress)
		if err != nil {
			program.Send(err)
			return
		}
		if result != nil {
			program.Send(spinner.ResultMsg{Result: *result})
		}
	}()

	model, err := program.Run()
	if err != nil {
		return nil, err
	}

	finalModel, ok := model.(spinner.SpinnerModel)
	if !ok {
		return nil, errors.New("unexpected model type returned from spinner")
	}
	if finalModel.HasError() {
		return nil, finalModel.GetError()
	}

	modelResult := finalModel.GetResult()
	result, ok := modelResult.(types.BuildResult)
	if !ok {
		return nil, errors.New("unexpected result type: expected types.BuildResult")
	}
	return &result, nil
}

// DisplayBuildResults prints the summary block after a successful build.
func DisplayBuildResults(result types.BuildResult, tags []TagInfo) {
	ui.PrintSuccess("Image built successfully")
	fmt.Println()

	ui.PrintMetadata("Tags ›", "")
	for _, tag := range tags {
		fmt.Printf("  • %s/%s:%s\n", tag.Namespace, tag.Name, tag.Tag)
	}
	ui.PrintMetadata("Digest ›", registry.TruncateDigest(result.Digest, 12))
	ui.PrintMetadata("Layers ›", fmt.Sprintf("%d (%d from cache)", result.Steps, result.CacheHits))
	fmt.Println()
	ui.PrintInfo("Build time", result.Duration.Round(time.Millisecond).String())
}
