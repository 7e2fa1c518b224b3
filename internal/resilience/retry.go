// Package resilience provides retry and circuit breaking for network and
// storage operations.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrRetriesExhausted is returned by Retry when the attempt budget ran out.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryPolicy waits a fixed Interval between failed attempts. MaxRetries
// bounds the retries after the first attempt; zero retries forever.
type RetryPolicy struct {
	Interval   time.Duration
	MaxRetries int
}

// BackOff returns the backoff schedule for the policy, stopped by ctx.
func (p RetryPolicy) BackOff(ctx context.Context) backoff.BackOffContext {
	var b backoff.BackOff = backoff.NewConstantBackOff(p.Interval)
	if p.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxRetries))
	}
	return backoff.WithContext(b, ctx)
}

// Retry calls op until it succeeds, the policy gives up or ctx is done. With
// MaxRetries = R, op runs at most R+1 times. notify, if set, is called after
// each failure that will be retried. A cancelled ctx returns ctx.Err().
func Retry(ctx context.Context, p RetryPolicy, op func(attempt int) error, notify func(err error, wait time.Duration)) error {
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		return op(attempt)
	}, p.BackOff(ctx), notify)

	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
}
