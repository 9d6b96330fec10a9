package retry

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/omentrader/internal/domain"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestWait_RetriesUntilSuccess(t *testing.T) {
	c := New(func() time.Duration { return time.Millisecond }, quietLogger())

	calls := 0
	err := c.Wait(context.Background(), domain.StepCheckBalance, func(context.Context) bool {
		calls++
		return calls == 3
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWait_NoCallAfterSuccess(t *testing.T) {
	c := New(func() time.Duration { return time.Hour }, quietLogger())

	calls := 0
	err := c.Wait(context.Background(), domain.StepBuildBuy, func(context.Context) bool {
		calls++
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWait_StopsOnCancellation(t *testing.T) {
	c := New(func() time.Duration { return 5 * time.Millisecond }, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := c.Wait(ctx, domain.StepBuildSafeHash, func(context.Context) bool { return false })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWait_ReadsIntervalEachAttempt(t *testing.T) {
	reads := 0
	c := New(func() time.Duration { reads++; return 0 }, quietLogger())

	calls := 0
	require.NoError(t, c.Wait(context.Background(), domain.StepBuildClaim, func(context.Context) bool {
		calls++
		return calls == 4
	}))
	assert.Equal(t, 3, reads)
}

func TestPoll_LoopsWhileInProgress(t *testing.T) {
	c := New(nil, quietLogger())

	statuses := []domain.FetchStatus{
		domain.FetchStatusInProgress,
		domain.FetchStatusInProgress,
		domain.FetchStatusSuccess,
	}
	i := 0
	got, err := c.Poll(context.Background(), domain.StepFetchTrades, func(context.Context) domain.FetchStatus {
		s := statuses[i]
		i++
		return s
	})
	require.NoError(t, err)
	assert.Equal(t, domain.FetchStatusSuccess, got)
	assert.Equal(t, 3, i)
}

func TestPoll_ReturnsFailure(t *testing.T) {
	c := New(nil, quietLogger())
	got, err := c.Poll(context.Background(), domain.StepFetchBlock, func(context.Context) domain.FetchStatus {
		return domain.FetchStatusFail
	})
	require.NoError(t, err)
	assert.Equal(t, domain.FetchStatusFail, got)
}

func TestSleepWithContext(t *testing.T) {
	require.NoError(t, SleepWithContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepWithContext(ctx, time.Hour), context.Canceled)
}
