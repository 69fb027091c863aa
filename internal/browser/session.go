// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/nbwarden/internal/config"
)

// ErrCellNotFound is returned by SetCellSource when no editable cell input matches.
var ErrCellNotFound = errors.New("code cell input not found")

// Session is the handle to one browser tab. It is owned by whoever called Open
// and must be released with Close by the same owner.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger
	cfg         config.BrowserConfig

	closeOnce sync.Once
	closeErr  error
}

// Open launches the browser and attaches to its first tab. ctx bounds the
// launch only; the browser itself lives until Close.
func Open(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	id := uuid.New().String()
	log := logger.Named("browser").With(zap.String("session_id", id))

	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), DefaultAllocatorOptions(cfg)...)

	ctxOpts := []chromedp.ContextOption{chromedp.WithErrorf(log.Sugar().Errorf)}
	if cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(log.Sugar().Debugf))
	}
	tabCtx, cancel := chromedp.NewContext(allocCtx, ctxOpts...)

	var tasks chromedp.Tasks
	if cfg.UserAgent != "" {
		tasks = append(tasks, emulation.SetUserAgentOverride(cfg.UserAgent))
	}

	// The first Run starts the browser. It must use the tab context itself, a
	// derived timeout context would tie the browser lifetime to that timeout.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tabCtx, tasks...) }()

	select {
	case err := <-started:
		if err != nil {
			cancel()
			allocCancel()
			return nil, fmt.Errorf("failed to start browser: %w", err)
		}
	case <-ctx.Done():
		cancel()
		allocCancel()
		<-started
		return nil, fmt.Errorf("browser launch aborted: %w", ctx.Err())
	}

	log.Info("Browser session opened.", zap.Bool("headless", cfg.Headless))
	return &Session{
		ctx:         tabCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		logger:      log,
		cfg:         cfg,
	}, nil
}

// Navigate loads url and waits for the load event, bounded by the navigation timeout.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.cfg.NavigationTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// InnerText returns the rendered text of the document body.
func (s *Session) InnerText(ctx context.Context) (string, error) {
	var text string
	if err := s.run(ctx, 0, chromedp.Evaluate(innerTextExpression, &text)); err != nil {
		return "", fmt.Errorf("read page text: %w", err)
	}
	return text, nil
}

// WaitVisible blocks until selector is visible or timeout elapses.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := s.run(ctx, timeout, chromedp.WaitVisible(selector, queryOption(selector))); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

// Click waits for selector to become visible, bounded by timeout, and clicks it.
func (s *Session) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if err := s.run(ctx, timeout, chromedp.Click(selector, queryOption(selector), chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

// SetCellSource replaces the text of the first cell input matching selector
// and fires an input event so the editor picks up the change.
func (s *Session) SetCellSource(ctx context.Context, selector, source string) error {
	expr, err := cellSourceExpression(selector, source)
	if err != nil {
		return err
	}
	var found bool
	if err := s.run(ctx, 0, chromedp.Evaluate(expr, &found)); err != nil {
		return fmt.Errorf("set cell source: %w", err)
	}
	if !found {
		return fmt.Errorf("%w: %q", ErrCellNotFound, selector)
	}
	return nil
}

// CurrentURL returns the location of the tab.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var location string
	if err := s.run(ctx, 0, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return location, nil
}

// Screenshot captures the full page as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, 0, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// Close shuts the browser down. It is safe to call more than once; later
// calls return the first result.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(s.ctx) }()

		select {
		case err := <-done:
			s.closeErr = err
		case <-ctx.Done():
			s.closeErr = fmt.Errorf("graceful browser shutdown: %w", ctx.Err())
		}
		// Kills the process if it is still around and removes the temporary profile.
		s.cancel()
		s.allocCancel()

		if s.closeErr != nil {
			s.logger.Warn("Browser session closed with error.", zap.Error(s.closeErr))
		} else {
			s.logger.Info("Browser session closed.")
		}
	})
	return s.closeErr
}

// run executes actions so they respect both the session lifetime and ctx.
// A positive timeout adds a deadline on top.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()

	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		defer cancelTimeout()
	}
	return chromedp.Run(runCtx, actions...)
}

// isXPath reports whether selector is an XPath expression rather than CSS.
func isXPath(selector string) bool {
	return strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(")
}

func queryOption(selector string) chromedp.QueryOption {
	if isXPath(selector) {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}
