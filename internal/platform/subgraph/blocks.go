package subgraph

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/omentrader/internal/domain"
)

const blockQuery = `
	query BlockAt($ts: BigInt!) {
		blocks(first: 1, orderBy: timestamp, orderDirection: asc, where: { timestamp_gte: $ts }) {
			id
			number
			timestamp
		}
	}
`

// BlockIndex resolves timestamps against a blocks subgraph.
type BlockIndex struct {
	client *Client
	logger *slog.Logger
	budget *retryBudget
}

// NewBlockIndex creates a block index. Rate-limited lookups are retried up
// to maxRetries times, pausing backoff first.
func NewBlockIndex(client *Client, maxRetries int, backoff time.Duration, logger *slog.Logger) *BlockIndex {
	return &BlockIndex{
		client: client,
		logger: logger.With(slog.String("component", "subgraph_blocks")),
		budget: &retryBudget{max: maxRetries, backoff: backoff},
	}
}

// BlockAt returns the first block at or after ts.
func (b *BlockIndex) BlockAt(ctx context.Context, ts time.Time) domain.BlockLookup {
	data, err := b.client.doQuery(ctx, blockQuery, map[string]any{
		"ts": strconv.FormatInt(ts.Unix(), 10),
	})
	if err != nil {
		status := b.budget.onError(ctx, err)
		b.logger.WarnContext(ctx, "block lookup failed",
			slog.Int64("timestamp", ts.Unix()),
			slog.String("status", status.String()),
			slog.String("error", err.Error()),
		)
		return domain.BlockLookup{Status: status}
	}
	b.budget.reset()

	var result struct {
		Blocks []struct {
			ID     string `json:"id"`
			Number string `json:"number"`
		} `json:"blocks"`
	}
	if err := json.Unmarshal(data, &result); err != nil || len(result.Blocks) == 0 {
		b.logger.WarnContext(ctx, "no block found for timestamp", slog.Int64("timestamp", ts.Unix()))
		return domain.BlockLookup{Status: domain.FetchStatusFail}
	}
	number, err := strconv.ParseUint(result.Blocks[0].Number, 10, 64)
	if err != nil {
		b.logger.WarnContext(ctx, "malformed block number", slog.String("number", result.Blocks[0].Number))
		return domain.BlockLookup{Status: domain.FetchStatusFail}
	}
	b.logger.DebugContext(ctx, "resolved block",
		slog.Int64("timestamp", ts.Unix()), slog.Uint64("block", number))
	return domain.BlockLookup{Number: number, Status: domain.FetchStatusSuccess}
}

var _ domain.BlockIndex = (*BlockIndex)(nil)
