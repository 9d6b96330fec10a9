package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/omentrader/internal/domain"
	"github.com/alanyoungcy/omentrader/internal/notify"
	"github.com/alanyoungcy/omentrader/internal/params"
)

// RedeemRunner runs one redemption workflow.
type RedeemRunner interface {
	Run(ctx context.Context, runID string, snap params.Snapshot) (domain.WorkflowResult, error)
}

// BetRunner runs one bet placement workflow.
type BetRunner interface {
	Run(ctx context.Context, runID string, req domain.BetRequest, snap params.Snapshot) (domain.WorkflowResult, error)
}

// Round drives the workflows on a schedule: redemption first, then one bet
// placement per pending decision. Every workflow run gets its own run id.
type Round struct {
	Redeem       RedeemRunner
	Bet          BetRunner
	Decisions    domain.DecisionSource // nil skips bet placement
	Locks        domain.LockManager    // nil runs unguarded
	Sink         domain.ResultSink
	Params       *params.Store
	Notifier     *notify.Notifier
	LockKey      string
	Timeout      time.Duration
	MaxDecisions int
	Logger       *slog.Logger

	newID func() string
}

func (r *Round) id() string {
	if r.newID != nil {
		return r.newID()
	}
	return uuid.NewString()
}

// Loop runs a round immediately and then every interval until ctx ends.
func (r *Round) Loop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := r.RunOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes one round. A round that exceeds Timeout is abandoned:
// the workflow in flight is dropped and nothing more is emitted. The error
// is non-nil only when ctx itself ended.
func (r *Round) RunOnce(ctx context.Context) error {
	roundID := r.id()
	log := r.Logger.With(slog.String("component", "round"), slog.String("round_id", roundID))

	rctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	if r.Locks != nil {
		unlock, err := r.Locks.Acquire(rctx, r.LockKey, r.Timeout+time.Minute)
		if errors.Is(err, domain.ErrLockHeld) {
			log.InfoContext(ctx, "another agent holds the round lock, skipping")
			return nil
		}
		if err != nil {
			log.ErrorContext(ctx, "acquire round lock", slog.String("error", err.Error()))
			r.failed(ctx, log, roundID, err)
			return nil
		}
		defer unlock()
	}

	if err := r.compose(rctx, ctx, log); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WarnContext(ctx, "round abandoned", slog.String("error", err.Error()))
		r.failed(ctx, log, roundID, err)
	}
	return nil
}

// compose runs the workflows under rctx and emits under ctx so a finished
// result still reaches the sink when the round deadline is close.
func (r *Round) compose(rctx, ctx context.Context, log *slog.Logger) error {
	res, err := r.Redeem.Run(rctx, r.id(), r.Params.Snapshot())
	if err != nil {
		return fmt.Errorf("redemption: %w", err)
	}
	r.emit(ctx, log, res)

	if r.Decisions == nil || r.Bet == nil {
		return nil
	}
	decisions, err := r.Decisions.Pending(rctx, r.MaxDecisions)
	if err != nil {
		if rctx.Err() != nil {
			return rctx.Err()
		}
		log.ErrorContext(ctx, "read pending decisions", slog.String("error", err.Error()))
		return nil
	}
	for _, req := range decisions {
		res, err := r.Bet.Run(rctx, r.id(), req, r.Params.Snapshot())
		if err != nil {
			if rctx.Err() != nil {
				return fmt.Errorf("bet %s: %w", req.ID, err)
			}
			log.WarnContext(ctx, "bet decision rejected",
				slog.String("bet_id", req.ID), slog.String("error", err.Error()))
			continue
		}
		r.emit(ctx, log, res)
	}
	return nil
}

func (r *Round) emit(ctx context.Context, log *slog.Logger, res domain.WorkflowResult) {
	if err := r.Sink.Emit(ctx, res); err != nil {
		log.ErrorContext(ctx, "emit result",
			slog.String("run_id", res.RunID),
			slog.String("workflow", string(res.Workflow)),
			slog.String("error", err.Error()))
	}
}

func (r *Round) failed(ctx context.Context, log *slog.Logger, roundID string, cause error) {
	msg := fmt.Sprintf("round %s: %v", roundID, cause)
	if err := r.Notifier.Notify(ctx, notify.EventRoundFailed, "Round failed", msg); err != nil {
		log.WarnContext(ctx, "notify round failure", slog.String("error", err.Error()))
	}
}
