package poll

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-release/errors"
	"github.com/input-output-hk/catalyst-forge-release/internal/logging"
)

func fastOptions() Options {
	return Options{Interval: time.Millisecond, Timeout: time.Second, Logger: logging.Discard(), Name: "test"}
}

func TestUntilImmediateDone(t *testing.T) {
	var calls int32
	v, err := Until(context.Background(), fastOptions(), func(context.Context) (string, bool, error) {
		atomic.AddInt32(&calls, 1)
		return "FINISHED", true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "FINISHED", v)
	assert.Equal(t, int32(1), calls)
}

func TestUntilEventuallyDone(t *testing.T) {
	var ticks []int
	opts := fastOptions()
	opts.OnTick = func(attempt int, _ time.Duration) { ticks = append(ticks, attempt) }

	states := []string{"NEW", "IN_PROGRESS", "IN_PROGRESS", "FINISHED"}
	i := 0
	v, err := Until(context.Background(), opts, func(context.Context) (string, bool, error) {
		s := states[i]
		i++
		return s, s == "FINISHED", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "FINISHED", v)
	assert.Equal(t, []int{1, 2, 3}, ticks)
}

func TestUntilTimeout(t *testing.T) {
	opts := fastOptions()
	opts.Timeout = 20 * time.Millisecond

	v, err := Until(context.Background(), opts, func(context.Context) (string, bool, error) {
		return "IN_PROGRESS", false, nil
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeTimeout))
	assert.Equal(t, "IN_PROGRESS", v)
}

func TestUntilTransientErrors(t *testing.T) {
	opts := fastOptions()
	opts.MaxConsecutiveErrors = 3

	i := 0
	v, err := Until(context.Background(), opts, func(context.Context) (int, bool, error) {
		i++
		switch i {
		case 1, 2, 4, 5:
			return 0, false, stderrors.New("flaky")
		case 3:
			return 3, false, nil
		default:
			return i, true, nil
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 6, v)
}

func TestUntilTooManyErrors(t *testing.T) {
	opts := fastOptions()
	opts.MaxConsecutiveErrors = 2
	boom := stderrors.New("boom")

	var calls int
	_, err := Until(context.Background(), opts, func(context.Context) (int, bool, error) {
		calls++
		return 0, false, boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, errors.CodeUnavailable, errors.GetCode(err))
	assert.Equal(t, 2, calls)
}

func TestUntilParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := fastOptions()

	calls := 0
	_, err := Until(ctx, opts, func(context.Context) (int, bool, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return 0, false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.HasCode(err, errors.CodeTimeout))
}
