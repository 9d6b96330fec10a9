package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/omentrader/internal/domain"
)

// DecisionQueue implements domain.DecisionSource on a Redis stream written
// by the upstream decision maker. The read position is kept under
// "<stream>:cursor" so a restarted agent does not bet twice.
type DecisionQueue struct {
	bus    *SignalBus
	rdb    *redis.Client
	stream string
	logger *slog.Logger
}

// NewDecisionQueue creates a queue over stream.
func NewDecisionQueue(c *Client, stream string, logger *slog.Logger) *DecisionQueue {
	return &DecisionQueue{
		bus:    NewSignalBus(c),
		rdb:    c.Underlying(),
		stream: stream,
		logger: logger.With(slog.String("component", "decision_queue")),
	}
}

func (q *DecisionQueue) cursorKey() string { return q.stream + ":cursor" }

// Pending returns up to max decisions not yet handed out and advances the
// cursor past them. Malformed entries are logged and skipped.
func (q *DecisionQueue) Pending(ctx context.Context, max int) ([]domain.BetRequest, error) {
	lastID, err := q.rdb.Get(ctx, q.cursorKey()).Result()
	if errors.Is(err, redis.Nil) {
		lastID = "0-0"
	} else if err != nil {
		return nil, fmt.Errorf("redis: decisions cursor: %w", err)
	}

	msgs, err := q.bus.StreamRead(ctx, q.stream, lastID, max)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	reqs := decodeDecisions(msgs, q.logger)
	if err := q.rdb.Set(ctx, q.cursorKey(), msgs[len(msgs)-1].ID, 0).Err(); err != nil {
		return nil, fmt.Errorf("redis: advance decisions cursor: %w", err)
	}
	return reqs, nil
}

func decodeDecisions(msgs []domain.StreamMessage, logger *slog.Logger) []domain.BetRequest {
	reqs := make([]domain.BetRequest, 0, len(msgs))
	for _, m := range msgs {
		var req domain.BetRequest
		if err := json.Unmarshal(m.Payload, &req); err != nil {
			logger.Warn("skipping malformed decision", slog.String("id", m.ID), slog.String("error", err.Error()))
			continue
		}
		if req.ID == "" {
			req.ID = m.ID
		}
		reqs = append(reqs, req)
	}
	return reqs
}

var _ domain.DecisionSource = (*DecisionQueue)(nil)
