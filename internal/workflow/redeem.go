package workflow

import (
	"context"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/omentrader/internal/batch"
	"github.com/alanyoungcy/omentrader/internal/contract"
	"github.com/alanyoungcy/omentrader/internal/domain"
	"github.com/alanyoungcy/omentrader/internal/params"
)

// Redemption composes [resolve?, claim, redeem] for every redeemable trade
// of the settlement account, up to the batch size.
type Redemption struct {
	*Composer
	trades domain.TradeSource
	blocks domain.BlockIndex
}

// NewRedemption creates the redemption workflow.
func NewRedemption(c *Composer, trades domain.TradeSource, blocks domain.BlockIndex) *Redemption {
	return &Redemption{Composer: c, trades: trades, blocks: blocks}
}

type redeemRun struct {
	snap       params.Snapshot
	cursor     string
	candidates []domain.RedeemCandidate
	payouts    domain.PayoutMap
	batch      *batch.Accumulator
	winnings   *big.Int
	processed  int
}

// Run executes one redemption round. The result carries no payload when no
// candidate made it into the batch. The error is non-nil only when ctx ends.
func (w *Redemption) Run(ctx context.Context, runID string, snap params.Snapshot) (domain.WorkflowResult, error) {
	st := &redeemRun{
		snap:     snap,
		batch:    batch.New(),
		winnings: new(big.Int),
	}
	log := w.logger.With(
		slog.String("run_id", runID),
		slog.String("workflow", string(domain.WorkflowRedemption)),
	)

	if err := w.discover(ctx, st, log); err != nil {
		return domain.WorkflowResult{}, err
	}

	if len(st.candidates) > 0 {
		if err := w.retry.Wait(ctx, domain.StepCheckRedeemed, w.checkRedeemed(st)); err != nil {
			return domain.WorkflowResult{}, err
		}
		pending := make([]domain.RedeemCandidate, 0, len(st.candidates))
		for _, c := range st.candidates {
			if !st.payouts.Paid(c.TransactionHash) {
				pending = append(pending, c)
			}
		}
		log.InfoContext(ctx, "filtered redeemed trades",
			slog.Int("candidates", len(st.candidates)),
			slog.Int("pending", len(pending)),
			slog.String("redeemed_total", st.payouts.Total().String()),
		)
		st.candidates = pending
	}

	for _, cand := range st.candidates {
		if snap.RedeemingBatchSize > 0 && st.batch.Len() >= snap.RedeemingBatchSize {
			break
		}
		clog := log.With(slog.String("tx_hash", cand.TxKey()), slog.String("fpmm", cand.FPMM.ID.Hex()))
		if !cand.IsWinning() {
			clog.DebugContext(ctx, "skipping losing trade",
				slog.Int("outcome_index", cand.OutcomeIndex),
				slog.Int("answer_index", cand.FPMM.CurrentAnswerIndex))
			continue
		}
		if cand.IsDust(snap.DustThreshold) {
			clog.InfoContext(ctx, "skipping dust trade", slog.String("claimable", amountString(cand.ClaimableAmount)))
			continue
		}

		var resolved bool
		if err := w.retry.Wait(ctx, domain.StepCheckResolved, w.checkResolved(cand, &resolved)); err != nil {
			return domain.WorkflowResult{}, err
		}
		needed := 2
		if !resolved {
			needed = 3
		}
		if snap.RedeemingBatchSize > 0 && st.batch.Len()+needed > snap.RedeemingBatchSize {
			clog.InfoContext(ctx, "batch full", slog.Int("entries", st.batch.Len()), slog.Int("needed", needed))
			break
		}

		if !resolved {
			if err := w.retry.Wait(ctx, domain.StepBuildResolve, w.callData(domain.StepBuildResolve, st.batch, w.addrs.RealitioProxy, func() contract.Request {
				return contract.Request{
					Kind:       contract.KindRawTransaction,
					Target:     w.addrs.RealitioProxy,
					ContractID: contract.RealitioProxy,
					Callable:   "build_resolve_tx",
					Params: map[string]any{
						"question_id":  cand.FPMM.Question.ID,
						"template_id":  cand.FPMM.TemplateID,
						"question":     cand.FPMM.Question.Data,
						"num_outcomes": cand.FPMM.Condition.OutcomeSlotCount,
					},
				}
			})); err != nil {
				return domain.WorkflowResult{}, err
			}
		}

		fromBlock, err := w.fromBlock(ctx, cand, clog)
		if err != nil {
			return domain.WorkflowResult{}, err
		}
		if err := w.retry.Wait(ctx, domain.StepBuildClaim, w.callData(domain.StepBuildClaim, st.batch, w.addrs.Realitio, func() contract.Request {
			return contract.Request{
				Kind:       contract.KindRawTransaction,
				Target:     w.addrs.Realitio,
				ContractID: contract.Realitio,
				Callable:   "build_claim_winnings",
				Params: map[string]any{
					"question_id": cand.FPMM.Question.ID,
					"from_block":  fromBlock,
				},
			}
		})); err != nil {
			return domain.WorkflowResult{}, err
		}

		if err := w.retry.Wait(ctx, domain.StepBuildRedeem, w.callData(domain.StepBuildRedeem, st.batch, w.addrs.ConditionalTokens, func() contract.Request {
			return contract.Request{
				Kind:       contract.KindRawTransaction,
				Target:     w.addrs.ConditionalTokens,
				ContractID: contract.ConditionalTokens,
				Callable:   "build_redeem_positions_tx",
				Params: map[string]any{
					"collateral_token":     cand.FPMM.CollateralToken,
					"parent_collection_id": common.Hash{},
					"condition_id":         cand.FPMM.Condition.ID,
					"index_sets":           cand.FPMM.Condition.IndexSets(),
				},
			}
		})); err != nil {
			return domain.WorkflowResult{}, err
		}

		st.winnings.Add(st.winnings, cand.ClaimableAmount)
		st.processed++
		clog.InfoContext(ctx, "trade added to redemption batch",
			slog.Bool("resolved", resolved),
			slog.String("claimable", cand.ClaimableAmount.String()),
		)
	}

	if st.processed == 0 {
		log.InfoContext(ctx, "nothing to redeem")
		res := w.result(runID, domain.WorkflowRedemption, "", "")
		res.ExpectedWinnings = new(big.Int)
		return res, nil
	}

	txHex, err := w.finalize(ctx, st.batch)
	if err != nil {
		return domain.WorkflowResult{}, err
	}
	log.InfoContext(ctx, "redemption payload ready",
		slog.Int("trades", st.processed),
		slog.Int("calls", st.batch.Len()),
		slog.String("expected_winnings", st.winnings.String()),
	)
	res := w.result(runID, domain.WorkflowRedemption, txHex, domain.SubmitterRedeem)
	res.ExpectedWinnings = st.winnings
	return res, nil
}

// discover pages through the trade history. Any page failure discards what
// was gathered: a partial history could hide already redeemed trades.
func (w *Redemption) discover(ctx context.Context, st *redeemRun, log *slog.Logger) error {
	q := domain.TradeQuery{
		Creator:  strings.ToLower(w.addrs.Safe.Hex()),
		To:       w.now().UTC(),
		PageSize: st.snap.TradesPageSize,
	}
	var found []domain.RedeemCandidate
	status, err := w.retry.Poll(ctx, domain.StepFetchTrades, func(ctx context.Context) domain.FetchStatus {
		page := w.trades.FetchTradePage(ctx, q, st.cursor)
		if page.Status == domain.FetchStatusInProgress || page.Status == domain.FetchStatusSuccess {
			found = append(found, page.Candidates...)
			st.cursor = page.Cursor
		}
		return page.Status
	})
	if err != nil {
		return err
	}
	if status != domain.FetchStatusSuccess {
		log.WarnContext(ctx, "trade history fetch failed, nothing to redeem this round",
			slog.String("status", status.String()))
		st.candidates = nil
		return nil
	}
	st.candidates = domain.DedupCandidates(found)
	log.InfoContext(ctx, "trade history fetched",
		slog.Int("trades", len(found)),
		slog.Int("unique", len(st.candidates)),
	)
	return nil
}

func (w *Redemption) checkRedeemed(st *redeemRun) func(context.Context) bool {
	return func(ctx context.Context) bool {
		n := len(st.candidates)
		collaterals := make([]common.Address, 0, n)
		parents := make([]common.Hash, 0, n)
		conditions := make([]common.Hash, 0, n)
		indexSets := make([][]*big.Int, 0, n)
		txHashes := make([]string, 0, n)
		for _, c := range st.candidates {
			collaterals = append(collaterals, c.FPMM.CollateralToken)
			parents = append(parents, common.Hash{})
			conditions = append(conditions, c.FPMM.Condition.ID)
			indexSets = append(indexSets, c.FPMM.Condition.IndexSets())
			txHashes = append(txHashes, c.TxKey())
		}
		body, ok := w.call(ctx, domain.StepCheckRedeemed, contract.Request{
			Kind:       contract.KindRawTransaction,
			Target:     w.addrs.ConditionalTokens,
			ContractID: contract.ConditionalTokens,
			Callable:   "check_redeemed",
			Params: map[string]any{
				"redeemer":              w.addrs.Safe,
				"collateral_tokens":     collaterals,
				"parent_collection_ids": parents,
				"condition_ids":         conditions,
				"index_sets":            indexSets,
				"trade_tx_hashes":       txHashes,
			},
		}, "payouts")
		if !ok {
			return false
		}
		payouts, ok := body["payouts"].(map[string]*big.Int)
		if !ok {
			return w.invalid(ctx, domain.StepCheckRedeemed, "payouts", body["payouts"])
		}
		st.payouts = domain.PayoutMap(payouts)
		return true
	}
}

func (w *Redemption) checkResolved(cand domain.RedeemCandidate, resolved *bool) func(context.Context) bool {
	return func(ctx context.Context) bool {
		body, ok := w.call(ctx, domain.StepCheckResolved, contract.Request{
			Kind:       contract.KindRawTransaction,
			Target:     w.addrs.ConditionalTokens,
			ContractID: contract.ConditionalTokens,
			Callable:   "check_resolved",
			Params:     map[string]any{"condition_id": cand.FPMM.Condition.ID},
		}, "resolved")
		if !ok {
			return false
		}
		r, ok := body["resolved"].(bool)
		if !ok {
			return w.invalid(ctx, domain.StepCheckResolved, "resolved", body["resolved"])
		}
		*resolved = r
		return true
	}
}

// fromBlock narrows the answer log scan to blocks after the market was
// created. A failed lookup falls back to scanning from the first block.
func (w *Redemption) fromBlock(ctx context.Context, cand domain.RedeemCandidate, log *slog.Logger) (uint64, error) {
	var number uint64
	status, err := w.retry.Poll(ctx, domain.StepFetchBlock, func(ctx context.Context) domain.FetchStatus {
		lookup := w.blocks.BlockAt(ctx, cand.FPMM.CreationTimestamp)
		number = lookup.Number
		return lookup.Status
	})
	if err != nil {
		return 0, err
	}
	if status != domain.FetchStatusSuccess {
		log.WarnContext(ctx, "block lookup failed, scanning answers from earliest block",
			slog.String("status", status.String()))
		return 0, nil
	}
	return number, nil
}

func amountString(n *big.Int) string {
	if n == nil {
		return "<nil>"
	}
	return n.String()
}
