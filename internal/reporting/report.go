// internal/reporting/report.go
package reporting

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StepOutcome records one executed step of a run.
type StepOutcome struct {
	Name     string        `json:"name"`
	Cell     string        `json:"cell,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// Report summarizes one setup or recovery run.
type Report struct {
	RunID       string        `json:"run_id"`
	Command     string        `json:"command"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Success     bool          `json:"success"`
	NotebookURL string        `json:"notebook_url,omitempty"`
	Error       string        `json:"error,omitempty"`
	Steps       []StepOutcome `json:"steps"`
}

// NewReport starts a report for command.
func NewReport(command string) *Report {
	return &Report{
		RunID:     uuid.New().String(),
		Command:   command,
		StartedAt: time.Now().UTC(),
		Steps:     []StepOutcome{},
	}
}

// Finish stamps the end of the run. A nil err marks it successful.
func (r *Report) Finish(notebookURL string, steps []StepOutcome, err error) {
	r.FinishedAt = time.Now().UTC()
	r.NotebookURL = notebookURL
	if steps != nil {
		r.Steps = steps
	}
	r.Success = err == nil
	if err != nil {
		r.Error = err.Error()
	}
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}

// WriteReport writes r as indented JSON to path. "-" or "stdout" selects
// standard output.
func WriteReport(path string, r *Report) error {
	return WriteReportTo(path, os.Stdout, r)
}

// WriteReportTo is WriteReport with "-" and "stdout" writing to stdout.
func WriteReportTo(path string, stdout io.Writer, r *Report) (err error) {
	var w io.WriteCloser
	if path == "-" || path == "stdout" {
		w = nopWriteCloser{stdout}
	} else {
		expanded, err := expandPath(path)
		if err != nil {
			return err
		}
		f, err := os.Create(expanded)
		if err != nil {
			return fmt.Errorf("failed to create report file %s: %w", expanded, err)
		}
		w = f
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close report: %w", cerr)
		}
	}()

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}
