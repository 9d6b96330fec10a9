// Package retry drives a workflow step until it reports success. There is no
// attempt cap; the caller's context (the round timeout) is the only way out.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/omentrader/internal/domain"
)

// Condition performs one external query and reports whether it succeeded.
// A false return must already have been logged by the condition.
type Condition func(ctx context.Context) bool

// Controller re-invokes conditions with a pause between attempts. Interval is
// read before every pause so runtime parameter updates take effect mid-run.
type Controller struct {
	Interval func() time.Duration
	Logger   *slog.Logger
}

// New creates a Controller sleeping Interval() between attempts.
func New(interval func() time.Duration, logger *slog.Logger) *Controller {
	return &Controller{Interval: interval, Logger: logger.With(slog.String("component", "retry"))}
}

// Wait calls cond until it returns true. It returns ctx.Err() if the context
// ends first and never calls cond again after a success.
func (c *Controller) Wait(ctx context.Context, step domain.Step, cond Condition) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if cond(ctx) {
			return nil
		}
		d := c.interval()
		c.Logger.WarnContext(ctx, "step not ready, retrying",
			slog.String("step", string(step)),
			slog.Int("attempt", attempt),
			slog.Duration("sleep", d),
		)
		if err := SleepWithContext(ctx, d); err != nil {
			return err
		}
	}
}

// Poll calls fetch while it reports FetchStatusInProgress and returns the
// first other status. In-progress means "call again": paged sources return it
// after every page but the last, so Poll does not pause between calls. A
// fetch that is backing off must wait before it returns.
func (c *Controller) Poll(ctx context.Context, step domain.Step, fetch func(ctx context.Context) domain.FetchStatus) (domain.FetchStatus, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.FetchStatusNone, err
		}
		status := fetch(ctx)
		if status != domain.FetchStatusInProgress {
			c.Logger.DebugContext(ctx, "poll finished",
				slog.String("step", string(step)),
				slog.String("status", status.String()),
			)
			return status, nil
		}
	}
}

func (c *Controller) interval() time.Duration {
	if c.Interval == nil {
		return 0
	}
	return c.Interval()
}

// SleepWithContext sleeps for d unless ctx ends first, in which case it
// returns ctx.Err(). Non-positive durations return immediately.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
