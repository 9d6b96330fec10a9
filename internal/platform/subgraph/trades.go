package subgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/omentrader/internal/domain"
)

const tradesQuery = `
	query Trades($creator: Id!, $cursor: ID!, $after: BigInt!, $finalizedBefore: BigInt!, $first: Int!) {
		fpmmTrades(
			first: $first
			orderBy: id
			orderDirection: asc
			where: {
				type: Buy
				creator: $creator
				id_gt: $cursor
				creationTimestamp_gt: $after
				fpmm_: { answerFinalizedTimestamp_not: null, answerFinalizedTimestamp_lt: $finalizedBefore }
			}
		) {
			id
			transactionHash
			outcomeIndex
			outcomeTokensTraded
			fpmm {
				id
				collateralToken
				creationTimestamp
				currentAnswer
				answerFinalizedTimestamp
				templateId
				question { id data }
				condition { id outcomeSlotCount }
			}
		}
	}
`

// TradeSource pages through fpmmTrades of an account. Only buys on markets
// whose answer is final before TradeQuery.To are returned, so one trade maps
// to exactly one claim and redeem pair.
type TradeSource struct {
	client *Client
	logger *slog.Logger
	budget *retryBudget
}

// NewTradeSource creates a trade source. Rate-limited pages are retried up
// to maxRetries times, pausing backoff first.
func NewTradeSource(client *Client, maxRetries int, backoff time.Duration, logger *slog.Logger) *TradeSource {
	return &TradeSource{
		client: client,
		logger: logger.With(slog.String("component", "subgraph_trades")),
		budget: &retryBudget{max: maxRetries, backoff: backoff},
	}
}

type tradeRecord struct {
	ID                  string `json:"id"`
	TransactionHash     string `json:"transactionHash"`
	OutcomeIndex        string `json:"outcomeIndex"`
	OutcomeTokensTraded string `json:"outcomeTokensTraded"`
	FPMM                struct {
		ID                       string  `json:"id"`
		CollateralToken          string  `json:"collateralToken"`
		CreationTimestamp        string  `json:"creationTimestamp"`
		CurrentAnswer            *string `json:"currentAnswer"`
		AnswerFinalizedTimestamp *string `json:"answerFinalizedTimestamp"`
		TemplateID               string  `json:"templateId"`
		Question                 struct {
			ID   string `json:"id"`
			Data string `json:"data"`
		} `json:"question"`
		Condition struct {
			ID               string `json:"id"`
			OutcomeSlotCount int    `json:"outcomeSlotCount"`
		} `json:"condition"`
	} `json:"fpmm"`
}

// FetchTradePage fetches the page after cursor. Status is in-progress while
// a full page came back or a rate-limited page should be retried, success on
// the last page and fail on any other error.
func (s *TradeSource) FetchTradePage(ctx context.Context, q domain.TradeQuery, cursor string) domain.TradePage {
	first := q.PageSize
	if first <= 0 {
		first = 100
	}
	before := q.To
	if before.IsZero() {
		before = time.Now()
	}
	variables := map[string]any{
		"creator":         strings.ToLower(q.Creator),
		"cursor":          cursor,
		"after":           strconv.FormatInt(unixOrZero(q.From), 10),
		"finalizedBefore": strconv.FormatInt(before.Unix(), 10),
		"first":           first,
	}

	data, err := s.client.doQuery(ctx, tradesQuery, variables)
	if err != nil {
		status := s.budget.onError(ctx, err)
		s.logger.WarnContext(ctx, "fetch trades page failed",
			slog.String("cursor", cursor),
			slog.String("status", status.String()),
			slog.String("error", err.Error()),
		)
		return domain.TradePage{Cursor: cursor, Status: status}
	}
	s.budget.reset()

	var result struct {
		FPMMTrades []tradeRecord `json:"fpmmTrades"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		s.logger.ErrorContext(ctx, "decode trades page", slog.String("error", err.Error()))
		return domain.TradePage{Cursor: cursor, Status: domain.FetchStatusFail}
	}

	page := domain.TradePage{
		Candidates: make([]domain.RedeemCandidate, 0, len(result.FPMMTrades)),
		Cursor:     cursor,
		Status:     domain.FetchStatusSuccess,
	}
	for _, rec := range result.FPMMTrades {
		c, err := rec.candidate()
		if err != nil {
			s.logger.ErrorContext(ctx, "malformed trade record",
				slog.String("id", rec.ID), slog.String("error", err.Error()))
			return domain.TradePage{Cursor: cursor, Status: domain.FetchStatusFail}
		}
		page.Candidates = append(page.Candidates, c)
		page.Cursor = rec.ID
	}
	if len(result.FPMMTrades) == first {
		page.Status = domain.FetchStatusInProgress
	}
	return page
}

func (r tradeRecord) candidate() (domain.RedeemCandidate, error) {
	outcome, err := strconv.Atoi(r.OutcomeIndex)
	if err != nil {
		return domain.RedeemCandidate{}, fmt.Errorf("outcomeIndex: %w", err)
	}
	claimable, ok := new(big.Int).SetString(r.OutcomeTokensTraded, 10)
	if !ok {
		return domain.RedeemCandidate{}, fmt.Errorf("outcomeTokensTraded: invalid integer %q", r.OutcomeTokensTraded)
	}
	created, err := parseUnix(r.FPMM.CreationTimestamp)
	if err != nil {
		return domain.RedeemCandidate{}, fmt.Errorf("creationTimestamp: %w", err)
	}
	var finalized time.Time
	if r.FPMM.AnswerFinalizedTimestamp != nil {
		if finalized, err = parseUnix(*r.FPMM.AnswerFinalizedTimestamp); err != nil {
			return domain.RedeemCandidate{}, fmt.Errorf("answerFinalizedTimestamp: %w", err)
		}
	}
	templateID, err := strconv.ParseInt(r.FPMM.TemplateID, 10, 64)
	if err != nil {
		return domain.RedeemCandidate{}, fmt.Errorf("templateId: %w", err)
	}
	answer, err := answerIndex(r.FPMM.CurrentAnswer)
	if err != nil {
		return domain.RedeemCandidate{}, fmt.Errorf("currentAnswer: %w", err)
	}
	questionID, err := parseHash(r.FPMM.Question.ID)
	if err != nil {
		return domain.RedeemCandidate{}, fmt.Errorf("question id: %w", err)
	}
	conditionID, err := parseHash(r.FPMM.Condition.ID)
	if err != nil {
		return domain.RedeemCandidate{}, fmt.Errorf("condition id: %w", err)
	}

	return domain.RedeemCandidate{
		TransactionHash: strings.ToLower(r.TransactionHash),
		OutcomeIndex:    outcome,
		ClaimableAmount: claimable,
		FPMM: domain.FPMM{
			ID:                       common.HexToAddress(r.FPMM.ID),
			CollateralToken:          common.HexToAddress(r.FPMM.CollateralToken),
			CreationTimestamp:        created,
			CurrentAnswerIndex:       answer,
			AnswerFinalizedTimestamp: finalized,
			TemplateID:               templateID,
			Question:                 domain.Question{ID: questionID, Data: r.FPMM.Question.Data},
			Condition:                domain.Condition{ID: conditionID, OutcomeSlotCount: r.FPMM.Condition.OutcomeSlotCount},
		},
	}, nil
}

// answerIndex decodes the 32-byte hex answer. Unanswered and invalid
// answers (all bits set) map to -1.
func answerIndex(raw *string) (int, error) {
	if raw == nil || *raw == "" {
		return -1, nil
	}
	b, err := hexutil.Decode(*raw)
	if err != nil {
		return 0, err
	}
	n := new(big.Int).SetBytes(b)
	if !n.IsInt64() || n.Int64() > 1<<16 {
		return -1, nil
	}
	return int(n.Int64()), nil
}

func parseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	return common.BytesToHash(b), nil
}

func parseUnix(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(n, 0).UTC(), nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

var _ domain.TradeSource = (*TradeSource)(nil)
