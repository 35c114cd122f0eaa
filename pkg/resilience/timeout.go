package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

// WithTimeout runs fn with a context cancelled after timeout and returns as
// soon as either finishes, so a ping stuck on a dead socket cannot stall a
// health check. Expiry yields an error matching apperrors.ErrTimeout and
// context.DeadlineExceeded; a cancelled parent yields its own error. A
// non-positive timeout runs fn directly.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(timeoutCtx) }()

	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return fmt.Errorf("%s: %w after %v: %w", name, apperrors.ErrTimeout, timeout, context.DeadlineExceeded)
	}
}
