// Package poll waits for a remote operation to reach a terminal state by
// calling a check function at a fixed interval within a time budget.
package poll

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/input-output-hk/catalyst-forge-release/errors"
)

const (
	// DefaultInterval is used when Options.Interval is zero.
	DefaultInterval = 30 * time.Second

	// DefaultMaxConsecutiveErrors is used when Options.MaxConsecutiveErrors
	// is zero.
	DefaultMaxConsecutiveErrors = 3
)

// Options configures Until.
type Options struct {
	// Interval between checks.
	Interval time.Duration

	// Timeout is the total budget. Zero means no limit beyond the parent
	// context.
	Timeout time.Duration

	// MaxConsecutiveErrors ends polling after this many failed checks in a
	// row. Fewer failures are logged and retried.
	MaxConsecutiveErrors int

	// OnTick is called after every successful, non-terminal check.
	OnTick func(attempt int, elapsed time.Duration)

	// Logger receives transient check errors. Defaults to slog.Default().
	Logger *slog.Logger

	// Name labels log lines and errors.
	Name string
}

// Check inspects the remote state once. done reports a terminal state.
type Check[T any] func(ctx context.Context) (value T, done bool, err error)

var errPending = stderrors.New("not finished")

// Until calls check immediately and then every Interval until it reports
// done. It returns the last value observed together with:
//   - nil when check reported done;
//   - a CodeTimeout error when the budget ran out;
//   - the parent context's error when it was cancelled;
//   - the last check error after MaxConsecutiveErrors failures in a row.
func Until[T any](ctx context.Context, opts Options, check Check[T]) (T, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	maxErrors := opts.MaxConsecutiveErrors
	if maxErrors <= 0 {
		maxErrors = DefaultMaxConsecutiveErrors
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pollCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	attempt := 0
	consecutive := 0
	var last T

	operation := func() (T, error) {
		attempt++
		value, done, err := check(pollCtx)
		if cerr := pollCtx.Err(); cerr != nil {
			return last, backoff.Permanent(cerr)
		}
		if err != nil {
			consecutive++
			if consecutive >= maxErrors {
				return last, backoff.Permanent(err)
			}
			logger.Warn("poll check failed, retrying",
				"name", opts.Name,
				"attempt", attempt,
				"consecutive_errors", consecutive,
				"error", err)
			return last, err
		}

		consecutive = 0
		last = value
		if done {
			return value, nil
		}
		if opts.OnTick != nil {
			opts.OnTick(attempt, time.Since(start))
		}
		return value, errPending
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(interval), pollCtx)
	value, err := backoff.RetryWithData(operation, policy)
	if err == nil {
		return value, nil
	}

	if ctx.Err() != nil {
		return last, ctx.Err()
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, errPending) {
		return last, errors.WrapWithContext(err, errors.CodeTimeout, "timed out waiting for completion",
			map[string]any{"name": opts.Name, "timeout": opts.Timeout.String(), "attempts": attempt})
	}
	return last, errors.WrapWithContext(err, errors.CodeUnavailable, "status checks kept failing",
		map[string]any{"name": opts.Name, "attempts": attempt})
}
