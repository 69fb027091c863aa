package recovery

import (
	"errors"
	"fmt"
)

// Step names, in execution order.
const (
	StepOpenEntryPage  = "open_entry_page"
	StepAwaitSignIn    = "await_sign_in"
	StepCreateNotebook = "create_notebook"
	StepAwaitCodeCell  = "await_code_cell"
	StepInjectCell     = "inject_cell"
	StepRunCell        = "run_cell"
	StepAwaitCell      = "await_cell"
	StepReadURL        = "read_notebook_url"
)

// ErrTimeout is wrapped by waits that ran out of time while the caller's context was still live.
var ErrTimeout = errors.New("condition not met before timeout")

// StepError reports the step that aborted a run.
type StepError struct {
	Step string
	// Cell is set for the per-cell steps.
	Cell string
	Err  error
}

func (e *StepError) Error() string {
	if e.Cell != "" {
		return fmt.Sprintf("step %s (cell %s) failed: %v", e.Step, e.Cell, e.Err)
	}
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// FailedStep returns the step named by a *StepError in err's chain, or "".
func FailedStep(err error) string {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Step
	}
	return ""
}
