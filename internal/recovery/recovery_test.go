package recovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/nbwarden/internal/config"
	"github.com/xkilldash9x/nbwarden/internal/observability"
	"github.com/xkilldash9x/nbwarden/internal/recipe"
	"github.com/xkilldash9x/nbwarden/internal/reporting"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	fileMenu    = "//div[contains(text(), 'File')]"
	newNotebook = "//div[contains(text(), 'New notebook')]"
	cellInput   = "div.codecell-input"
	runButton   = "button.run-button"
	notebookURL = "https://colab.research.google.com/drive/fresh"
)

// fakePage is a scripted notebook. Texts are served in order, the last one
// repeating; running a cell appends its output to the page.
type fakePage struct {
	mu sync.Mutex

	texts   []string
	reads   int
	output  string
	source  string
	outputs map[string]string

	failClick    map[string]error
	failNavigate map[string]error
	failWait     error
	failURL      error

	navigations []string
	clicks      []string
	sources     []string
	shots       int
}

func newFakePage(texts ...string) *fakePage {
	if len(texts) == 0 {
		texts = []string{"File Edit View Runtime"}
	}
	return &fakePage{
		texts:        texts,
		outputs:      map[string]string{},
		failClick:    map[string]error{},
		failNavigate: map[string]error{},
	}
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigations = append(p.navigations, url)
	return p.failNavigate[url]
}

func (p *fakePage) InnerText(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.reads
	if i >= len(p.texts) {
		i = len(p.texts) - 1
	}
	p.reads++
	return p.texts[i] + p.output, nil
}

func (p *fakePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return p.failWait
}

func (p *fakePage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, selector)
	if err := p.failClick[selector]; err != nil {
		return err
	}
	if selector == runButton {
		p.output += "\n" + p.outputs[p.source]
	}
	return nil
}

func (p *fakePage) SetCellSource(ctx context.Context, selector, source string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = source
	p.sources = append(p.sources, source)
	return nil
}

func (p *fakePage) CurrentURL(ctx context.Context) (string, error) {
	return notebookURL, p.failURL
}

func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shots++
	return []byte("\x89PNG"), nil
}

func testOptions() Options {
	cfg := config.NewDefaultConfig()
	opts := OptionsFromConfig(cfg)
	opts.URLFile = ""
	opts.Waits = config.RecoveryConfig{
		SignInTimeout:    200 * time.Millisecond,
		PollInterval:     5 * time.Millisecond,
		ElementTimeout:   50 * time.Millisecond,
		CellReadyTimeout: 50 * time.Millisecond,
		PostSignInWait:   time.Millisecond,
	}
	return opts
}

func testPlan() []recipe.Cell {
	return []recipe.Cell{
		{Name: "install", Source: "!install", Expect: "INSTALLED", Timeout: 200 * time.Millisecond},
		{Name: "start", Source: "!start", Expect: "STARTED", Timeout: 200 * time.Millisecond},
	}
}

func stepNames(res *Result) []string {
	names := make([]string, 0, len(res.Steps))
	for _, s := range res.Steps {
		name := s.Name
		if s.Cell != "" {
			name += ":" + s.Cell
		}
		names = append(names, name)
	}
	return names
}

func TestRun(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("full sequence", func(t *testing.T) {
		page := newFakePage()
		page.outputs["!install"] = "INSTALLED"
		page.outputs["!start"] = "STARTED"

		res, err := NewRunner(page, testPlan(), testOptions(), nil, logger).Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, notebookURL, res.NotebookURL)
		assert.Equal(t, []string{
			StepOpenEntryPage, StepAwaitSignIn, StepCreateNotebook, StepAwaitCodeCell,
			"inject_cell:install", "run_cell:install", "await_cell:install",
			"inject_cell:start", "run_cell:start", "await_cell:start",
			StepReadURL,
		}, stepNames(res))
		assert.Equal(t, []string{"https://colab.research.google.com/"}, page.navigations)
		assert.Equal(t, []string{fileMenu, newNotebook, runButton, runButton}, page.clicks)
		assert.Equal(t, []string{"!install", "!start"}, page.sources)
	})

	t.Run("waits for manual sign-in", func(t *testing.T) {
		page := newFakePage("Sign in", "Sign in", "Sign in", "NEW NOTEBOOK")

		res, err := NewRunner(page, nil, testOptions(), nil, logger).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, notebookURL, res.NotebookURL)
		assert.GreaterOrEqual(t, page.reads, 4)
	})

	t.Run("sign-in timeout aborts", func(t *testing.T) {
		page := newFakePage("Sign in")

		res, err := NewRunner(page, testPlan(), testOptions(), nil, logger).Run(context.Background())
		var stepErr *StepError
		require.ErrorAs(t, err, &stepErr)
		assert.Equal(t, StepAwaitSignIn, stepErr.Step)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Equal(t, []string{StepOpenEntryPage, StepAwaitSignIn}, stepNames(res))
		assert.Empty(t, page.clicks, "no step after the failing one runs")
		assert.NotEmpty(t, res.Steps[1].Error)
	})

	t.Run("falls back to the create URL", func(t *testing.T) {
		page := newFakePage()
		page.failClick[newNotebook] = errors.New("not visible")

		_, err := NewRunner(page, nil, testOptions(), nil, logger).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{
			"https://colab.research.google.com/",
			"https://colab.research.google.com/notebooks/create",
		}, page.navigations)
	})

	t.Run("menu and fallback both fail", func(t *testing.T) {
		page := newFakePage()
		menuErr := errors.New("menu missing")
		page.failClick[fileMenu] = menuErr
		page.failNavigate["https://colab.research.google.com/notebooks/create"] = errors.New("net::ERR_ABORTED")

		_, err := NewRunner(page, testPlan(), testOptions(), nil, logger).Run(context.Background())
		assert.Equal(t, StepCreateNotebook, FailedStep(err))
		assert.ErrorIs(t, err, menuErr)
		assert.NotContains(t, page.clicks, runButton)
	})

	t.Run("no create URL means no fallback", func(t *testing.T) {
		page := newFakePage()
		page.failClick[fileMenu] = errors.New("menu missing")
		opts := testOptions()
		opts.Notebook.CreateURL = ""

		_, err := NewRunner(page, nil, opts, nil, logger).Run(context.Background())
		assert.Equal(t, StepCreateNotebook, FailedStep(err))
		assert.Len(t, page.navigations, 1)
	})

	t.Run("code cell never appears", func(t *testing.T) {
		page := newFakePage()
		page.failWait = context.DeadlineExceeded

		_, err := NewRunner(page, testPlan(), testOptions(), nil, logger).Run(context.Background())
		assert.Equal(t, StepAwaitCodeCell, FailedStep(err))
		assert.Empty(t, page.sources)
	})

	t.Run("missing marker fails the cell", func(t *testing.T) {
		page := newFakePage()
		page.outputs["!install"] = "INSTALLED"

		res, err := NewRunner(page, testPlan(), testOptions(), nil, logger).Run(context.Background())
		var stepErr *StepError
		require.ErrorAs(t, err, &stepErr)
		assert.Equal(t, StepAwaitCell, stepErr.Step)
		assert.Equal(t, "start", stepErr.Cell)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Contains(t, err.Error(), "cell start")
		assert.Empty(t, res.NotebookURL)
	})

	t.Run("cell without marker waits its settle time", func(t *testing.T) {
		page := newFakePage()
		plan := []recipe.Cell{{Name: "settle", Source: "!true", Timeout: 30 * time.Millisecond}}

		start := time.Now()
		res, err := NewRunner(page, plan, testOptions(), nil, logger).Run(context.Background())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
		assert.Equal(t, notebookURL, res.NotebookURL)
	})

	t.Run("reading the URL can fail", func(t *testing.T) {
		page := newFakePage()
		page.failURL = errors.New("target closed")

		_, err := NewRunner(page, nil, testOptions(), nil, logger).Run(context.Background())
		assert.Equal(t, StepReadURL, FailedStep(err))
	})

	t.Run("cancellation stops the sign-in wait", func(t *testing.T) {
		page := newFakePage("Sign in")
		opts := testOptions()
		opts.Waits.SignInTimeout = 0

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		_, err := NewRunner(page, nil, opts, nil, logger).Run(ctx)
		assert.Equal(t, StepAwaitSignIn, FailedStep(err))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, ErrTimeout)
	})

	t.Run("failure screenshot", func(t *testing.T) {
		page := newFakePage()
		page.failWait = errors.New("no cell")
		opts := testOptions()
		opts.ScreenshotDir = t.TempDir()

		_, err := NewRunner(page, nil, opts, nil, logger).Run(context.Background())
		require.Error(t, err)
		assert.Equal(t, 1, page.shots)

		entries, err := os.ReadDir(opts.ScreenshotDir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.True(t, strings.HasSuffix(entries[0].Name(), "-await_code_cell.png"))
	})
}

func TestRecover(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("success writes the URL file and metrics", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		metrics := observability.NewMetrics(reg)
		opts := testOptions()
		opts.URLFile = filepath.Join(t.TempDir(), "colab_url.txt")

		require.NoError(t, NewRunner(newFakePage(), nil, opts, metrics, logger).Recover(context.Background()))

		url, err := reporting.ReadSessionURL(opts.URLFile)
		require.NoError(t, err)
		assert.Equal(t, notebookURL, url)
		assert.Equal(t, 1, testutil.CollectAndCount(reg, "nbwarden_recoveries_total"))
	})

	t.Run("failure leaves the URL file alone", func(t *testing.T) {
		page := newFakePage()
		page.failWait = errors.New("no cell")
		opts := testOptions()
		opts.URLFile = filepath.Join(t.TempDir(), "colab_url.txt")

		err := NewRunner(page, nil, opts, observability.NewMetrics(prometheus.NewRegistry()), logger).Recover(context.Background())
		assert.Equal(t, StepAwaitCodeCell, FailedStep(err))
		_, statErr := os.Stat(opts.URLFile)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("interrupted run is not counted", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		opts := testOptions()
		opts.Waits.SignInTimeout = time.Minute

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)

		err := NewRunner(newFakePage("Sign in"), nil, opts, observability.NewMetrics(reg), logger).Recover(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, StepAwaitSignIn, FailedStep(err))
		assert.Zero(t, testutil.CollectAndCount(reg, "nbwarden_recoveries_total"))
		assert.Zero(t, testutil.CollectAndCount(reg, "nbwarden_recovery_step_failures_total"))
	})
}

func TestPollUntil(t *testing.T) {
	t.Run("transient errors are retried", func(t *testing.T) {
		calls := 0
		err := pollUntil(context.Background(), time.Second, time.Millisecond, "thing", func(context.Context) (bool, error) {
			calls++
			if calls < 3 {
				return false, errors.New("flaky")
			}
			return true, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("timeout reports the last error", func(t *testing.T) {
		err := pollUntil(context.Background(), 20*time.Millisecond, time.Millisecond, "thing", func(context.Context) (bool, error) {
			return false, errors.New("flaky")
		})
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Contains(t, err.Error(), "flaky")
	})

	t.Run("unmet condition times out", func(t *testing.T) {
		err := pollUntil(context.Background(), 20*time.Millisecond, time.Millisecond, "thing", func(context.Context) (bool, error) {
			return false, nil
		})
		assert.ErrorIs(t, err, ErrTimeout)
		assert.NotContains(t, err.Error(), "last error")
	})

	t.Run("parent cancellation is not a timeout", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)

		err := pollUntil(ctx, time.Minute, time.Millisecond, "thing", func(context.Context) (bool, error) {
			return false, errors.New("flaky")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrTimeout)
	})
}

func TestStepError(t *testing.T) {
	cause := errors.New("boom")
	err := error(&StepError{Step: StepRunCell, Cell: "install", Err: cause})

	assert.Equal(t, "step run_cell (cell install) failed: boom", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, StepRunCell, FailedStep(err))
	assert.Equal(t, "", FailedStep(cause))
	assert.Equal(t, "step await_sign_in failed: boom", (&StepError{Step: StepAwaitSignIn, Err: cause}).Error())
}
