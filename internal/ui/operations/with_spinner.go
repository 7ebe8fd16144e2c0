package operations

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kilnbuild/kiln/internal/ui/models/spinner"
)

type OperationFunc func() (interface{}, error)

type DisplayFunc func(result interface{})

// WithSpinner runs operation behind an animated spinner and hands the
// result to display once it finishes.
func WithSpinner(message string, operation OperationFunc, display DisplayFunc) error {
	spinnerModel := spinner.NewSpinnerModelWithMessage(message)
	program := tea.NewProgram(spinnerModel)

	go func() {
		result, err := operation()
		if err != nil {
			program.Send(err)
			return
		}
		program.Send(spinner.ResultMsg{Result: result})
	}()

	model, err := program.Run()
	if err != nil {
		return err
	}

	finalModel, ok := model.(spinner.SpinnerModel)
	if !ok {
		return fmt.Errorf("program finished with invalid model")
	}

	if finalModel.HasError() {
		return finalModel.GetError()
	}

	if display != nil && finalModel.HasResult() {
		display(finalModel.GetResult())
	}

	return nil
}
