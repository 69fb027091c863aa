// Package recovery re-establishes the remote notebook environment through a
// fixed sequence of browser steps.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/nbwarden/internal/config"
	"github.com/xkilldash9x/nbwarden/internal/health"
	"github.com/xkilldash9x/nbwarden/internal/observability"
	"github.com/xkilldash9x/nbwarden/internal/recipe"
	"github.com/xkilldash9x/nbwarden/internal/reporting"
)

const (
	signInLogInterval = time.Minute
	screenshotTimeout = 15 * time.Second
)

// Page is the browser surface the runner drives.
type Page interface {
	Navigate(ctx context.Context, url string) error
	InnerText(ctx context.Context) (string, error)
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	SetCellSource(ctx context.Context, selector, source string) error
	CurrentURL(ctx context.Context) (string, error)
}

// Screenshotter is implemented by pages that can capture themselves.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Options configure a Runner.
type Options struct {
	Notebook config.NotebookConfig
	Waits    config.RecoveryConfig
	// ScreenshotDir receives a capture of the page when a step fails. Empty disables it.
	ScreenshotDir string
	// URLFile receives the notebook URL after a successful Recover. Empty disables it.
	URLFile string
}

// OptionsFromConfig selects the runner options from the full configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Notebook:      cfg.Notebook,
		Waits:         cfg.Recovery,
		ScreenshotDir: cfg.Reporting.ScreenshotDir,
		URLFile:       cfg.Reporting.URLFile,
	}
}

// Plan is the ordered list of cells run in the fresh notebook.
type Plan []recipe.Cell

// Result is the outcome of a run. Steps lists every step that was attempted.
type Result struct {
	NotebookURL string
	Steps       []reporting.StepOutcome
}

// Runner executes the recovery sequence against one page. It is not safe for concurrent use.
type Runner struct {
	page    Page
	plan    Plan
	opts    Options
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewRunner creates a Runner that runs plan after creating a fresh notebook.
func NewRunner(page Page, plan Plan, opts Options, metrics *observability.Metrics, logger *zap.Logger) *Runner {
	return &Runner{
		page:    page,
		plan:    plan,
		opts:    opts,
		metrics: metrics,
		logger:  logger.Named("recovery"),
	}
}

// Recover runs the sequence, records it in metrics and persists the new
// notebook URL. A run interrupted by ctx is not recorded. It satisfies the monitor's recoverer contract.
func (r *Runner) Recover(ctx context.Context) error {
	start := time.Now()
	res, err := r.Run(ctx)
	if err != nil && ctx.Err() != nil {
		// Cut short by shutdown; not a recovery outcome.
		return err
	}
	r.metrics.ObserveRecovery(time.Since(start), FailedStep(err), err)
	if err != nil {
		return err
	}

	if r.opts.URLFile != "" {
		if werr := reporting.WriteSessionURL(r.opts.URLFile, res.NotebookURL); werr != nil {
			r.logger.Warn("Could not persist notebook URL.", zap.String("path", r.opts.URLFile), zap.Error(werr))
		}
	}
	return nil
}

// Run executes every step in order and stops at the first failure, which is
// returned as a *StepError. Nothing is rolled back.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	res := &Result{Steps: make([]reporting.StepOutcome, 0, 5+3*len(r.plan))}
	r.logger.Info("Starting notebook recovery.", zap.Int("cells", len(r.plan)))

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{StepOpenEntryPage, r.openEntryPage},
		{StepAwaitSignIn, r.awaitSignIn},
		{StepCreateNotebook, r.createNotebook},
		{StepAwaitCodeCell, r.awaitCodeCell},
	}
	for _, s := range steps {
		if err := r.step(ctx, res, s.name, "", s.fn); err != nil {
			return res, err
		}
	}

	for _, cell := range r.plan {
		if err := r.step(ctx, res, StepInjectCell, cell.Name, func(ctx context.Context) error {
			return r.page.SetCellSource(ctx, r.opts.Notebook.CellSelector, cell.Source)
		}); err != nil {
			return res, err
		}
		if err := r.step(ctx, res, StepRunCell, cell.Name, func(ctx context.Context) error {
			return r.page.Click(ctx, r.opts.Notebook.RunButtonSelector, r.opts.Waits.ElementTimeout)
		}); err != nil {
			return res, err
		}
		if err := r.step(ctx, res, StepAwaitCell, cell.Name, func(ctx context.Context) error {
			return r.awaitCell(ctx, cell)
		}); err != nil {
			return res, err
		}
	}

	if err := r.step(ctx, res, StepReadURL, "", func(ctx context.Context) error {
		url, err := r.page.CurrentURL(ctx)
		if err != nil {
			return err
		}
		res.NotebookURL = url
		return nil
	}); err != nil {
		return res, err
	}

	r.logger.Info("Notebook recovery completed.", zap.String("notebook_url", res.NotebookURL))
	return res, nil
}

func (r *Runner) step(ctx context.Context, res *Result, name, cell string, fn func(context.Context) error) error {
	start := time.Now()
	log := r.logger.With(zap.String("step", name))
	if cell != "" {
		log = log.With(zap.String("cell", cell))
	}
	log.Debug("Running step.")

	err := fn(ctx)
	outcome := reporting.StepOutcome{Name: name, Cell: cell, Duration: time.Since(start)}
	if err == nil {
		res.Steps = append(res.Steps, outcome)
		return nil
	}

	outcome.Error = err.Error()
	res.Steps = append(res.Steps, outcome)
	log.Error("Recovery step failed.", zap.Duration("elapsed", outcome.Duration), zap.Error(err))
	r.captureFailure(ctx, name, cell)
	return &StepError{Step: name, Cell: cell, Err: err}
}

// captureFailure saves a screenshot of the page when configured and supported.
func (r *Runner) captureFailure(ctx context.Context, step, cell string) {
	shooter, ok := r.page.(Screenshotter)
	if !ok || r.opts.ScreenshotDir == "" || ctx.Err() != nil {
		return
	}
	shotCtx, cancel := context.WithTimeout(ctx, screenshotTimeout)
	defer cancel()

	png, err := shooter.Screenshot(shotCtx)
	if err != nil {
		r.logger.Warn("Could not capture failure screenshot.", zap.Error(err))
		return
	}
	name := step
	if cell != "" {
		name = step + "_" + cell
	}
	path, err := reporting.SaveScreenshot(r.opts.ScreenshotDir, name, png)
	if err != nil {
		r.logger.Warn("Could not save failure screenshot.", zap.Error(err))
		return
	}
	r.logger.Info("Saved failure screenshot.", zap.String("path", path))
}

func (r *Runner) openEntryPage(ctx context.Context) error {
	return r.page.Navigate(ctx, r.opts.Notebook.EntryURL)
}

func (r *Runner) signInMarkers() health.SignInMarkers {
	return health.SignInMarkers{
		Indicators: r.opts.Notebook.SignedInIndicators,
		Prompt:     r.opts.Notebook.SignInPrompt,
	}
}

// awaitSignIn returns at once when the page is already signed in. Otherwise it
// asks for a manual sign-in and polls until one of the signed-in indicators
// shows up or the sign-in prompt disappears.
func (r *Runner) awaitSignIn(ctx context.Context) error {
	markers := r.signInMarkers()
	if text, err := r.page.InnerText(ctx); err == nil && health.SignedIn(text, markers) {
		r.logger.Info("Already signed in.")
		return nil
	}

	timeout := r.opts.Waits.SignInTimeout
	if timeout == 0 {
		r.logger.Warn("Manual sign-in required. Waiting without a time limit.")
	} else {
		r.logger.Warn("Manual sign-in required. Please sign in in the browser window.", zap.Duration("timeout", timeout))
	}

	waiting := rate.Sometimes{Interval: signInLogInterval}
	err := pollUntil(ctx, timeout, r.opts.Waits.PollInterval, "sign-in", func(ctx context.Context) (bool, error) {
		text, err := r.page.InnerText(ctx)
		if err != nil {
			return false, err
		}
		if health.SignedIn(text, markers) {
			return true, nil
		}
		waiting.Do(func() { r.logger.Info("Waiting for sign-in.") })
		return false, nil
	})
	if err != nil {
		return err
	}

	r.logger.Info("Sign-in detected.")
	return sleep(ctx, r.opts.Waits.PostSignInWait)
}

// createNotebook goes through the File menu and falls back to the direct
// create URL when the menu cannot be used.
func (r *Runner) createNotebook(ctx context.Context) error {
	nb := r.opts.Notebook
	timeout := r.opts.Waits.ElementTimeout

	menuErr := r.page.Click(ctx, nb.FileMenuSelector, timeout)
	if menuErr == nil {
		menuErr = r.page.Click(ctx, nb.NewNotebookSelector, timeout)
	}
	if menuErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if nb.CreateURL == "" {
		return fmt.Errorf("file menu: %w", menuErr)
	}

	r.logger.Warn("File menu unavailable, opening the create URL instead.", zap.Error(menuErr))
	if err := r.page.Navigate(ctx, nb.CreateURL); err != nil {
		return errors.Join(fmt.Errorf("file menu: %w", menuErr), fmt.Errorf("create URL: %w", err))
	}
	return nil
}

func (r *Runner) awaitCodeCell(ctx context.Context) error {
	return r.page.WaitVisible(ctx, r.opts.Notebook.CellSelector, r.opts.Waits.CellReadyTimeout)
}

// awaitCell waits for the cell's completion marker, or for its settle time
// when it has none.
func (r *Runner) awaitCell(ctx context.Context, cell recipe.Cell) error {
	if cell.Expect == "" {
		return sleep(ctx, cell.Timeout)
	}
	return pollUntil(ctx, cell.Timeout, r.opts.Waits.PollInterval, fmt.Sprintf("marker %q", cell.Expect), func(ctx context.Context) (bool, error) {
		text, err := r.page.InnerText(ctx)
		if err != nil {
			return false, err
		}
		return strings.Contains(text, cell.Expect), nil
	})
}
