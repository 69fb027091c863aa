package health

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PageReader loads a URL and reads back its rendered text.
type PageReader interface {
	Navigate(ctx context.Context, url string) error
	InnerText(ctx context.Context) (string, error)
}

// Checker evaluates the session by loading the target URL through a page.
type Checker struct {
	page      PageReader
	targetURL string
	markers   Markers
	timeout   time.Duration
	logger    *zap.Logger
}

// NewChecker creates a Checker. A zero timeout leaves each check bounded by its caller only.
func NewChecker(page PageReader, targetURL string, markers Markers, timeout time.Duration, logger *zap.Logger) *Checker {
	return &Checker{
		page:      page,
		targetURL: targetURL,
		markers:   markers,
		timeout:   timeout,
		logger:    logger.Named("health"),
	}
}

// Check loads the target URL and evaluates its text. An error means the page
// could not be read; callers decide how to treat it.
func (c *Checker) Check(ctx context.Context) (Status, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.page.Navigate(ctx, c.targetURL); err != nil {
		return Status{Reason: "target unreachable"}, fmt.Errorf("load target: %w", err)
	}
	text, err := c.page.InnerText(ctx)
	if err != nil {
		return Status{Reason: "page text unreadable"}, fmt.Errorf("read target: %w", err)
	}

	status := Evaluate(text, c.markers)
	c.logger.Debug("Evaluated session page.",
		zap.Bool("healthy", status.Healthy),
		zap.String("reason", status.Reason),
		zap.Int("text_length", len(text)),
	)
	return status, nil
}
