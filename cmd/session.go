// File: cmd/session.go
package cmd

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/nbwarden/internal/service"
)

const browserCloseTimeout = 15 * time.Second

// openBrowser starts the browser for every command. Overridable in tests.
var openBrowser service.SessionOpener = service.OpenBrowser

// closeSession releases s on a context of its own so it still runs after an interrupt.
func closeSession(s service.Session, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), browserCloseTimeout)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		logger.Warn("Browser did not close cleanly.", zap.Error(err))
	}
}
