package domain

import (
	"context"
	"time"
)

// TradeQuery selects the trades of one account inside a time window.
type TradeQuery struct {
	Creator  string
	From     time.Time
	To       time.Time // zero means open-ended
	PageSize int
}

// TradePage is one page of trade-history results. Cursor feeds the next call
// while Status is FetchStatusInProgress.
type TradePage struct {
	Candidates []RedeemCandidate
	Cursor     string
	Status     FetchStatus
}

// TradeSource pages through the historical trades of an account.
//
// Implementations must return trade records that do not conflict: one trade
// concludes at most one redeeming action for one market and question pair.
// The redemption workflow batches calls for several trades into a single
// transaction and does not re-check this.
//
// The caller polls again immediately after each FetchStatusInProgress page,
// so an implementation that is backing off must wait before returning that
// status.
type TradeSource interface {
	FetchTradePage(ctx context.Context, q TradeQuery, cursor string) TradePage
}

// BlockLookup is the result of a timestamp to block query.
type BlockLookup struct {
	Number uint64
	Status FetchStatus
}

// BlockIndex resolves the lowest block at or after a timestamp. As with
// TradeSource, BlockAt must wait before returning FetchStatusInProgress; the
// caller retries it without pausing.
type BlockIndex interface {
	BlockAt(ctx context.Context, ts time.Time) BlockLookup
}

// DecisionSource yields pending bet decisions made upstream.
type DecisionSource interface {
	Pending(ctx context.Context, max int) ([]BetRequest, error)
}

// ResultSink receives every terminal workflow result.
type ResultSink interface {
	Emit(ctx context.Context, res WorkflowResult) error
}
