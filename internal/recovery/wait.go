package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var errNotYet = errors.New("condition not met yet")

// pollUntil evaluates cond every interval until it reports true or timeout
// elapses. A zero timeout waits until ctx ends. Errors returned by cond are
// treated as transient; the last one is reported with the timeout.
func pollUntil(ctx context.Context, timeout, interval time.Duration, what string, cond func(context.Context) (bool, error)) error {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var lastErr error
	b := backoff.WithContext(backoff.NewConstantBackOff(interval), waitCtx)
	err := backoff.Retry(func() error {
		ok, err := cond(waitCtx)
		if err != nil {
			lastErr = err
			return err
		}
		if !ok {
			return errNotYet
		}
		return nil
	}, b)
	if err == nil {
		return nil
	}

	// A constant backoff never gives up on its own, so only a context ends the wait.
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %s within %s (last error: %v)", ErrTimeout, what, timeout, lastErr)
	}
	return fmt.Errorf("%w: %s within %s", ErrTimeout, what, timeout)
}

// sleep pauses for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
