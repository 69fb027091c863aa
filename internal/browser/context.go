// internal/browser/context.go
package browser

import (
	"context"
	"time"
)

// CombineContext derives a context from primary (which carries the CDP target
// values) that is also cancelled when secondary is done. Only values from
// primary are visible.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}

// valueOnlyContext keeps the parent's values but drops its deadline and cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context that inherits values from ctx but is never cancelled with it.
// The browser process is allocated under a detached context so an interrupt
// cannot tear it down before Close runs.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
