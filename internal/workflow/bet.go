package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/omentrader/internal/batch"
	"github.com/alanyoungcy/omentrader/internal/contract"
	"github.com/alanyoungcy/omentrader/internal/domain"
	"github.com/alanyoungcy/omentrader/internal/params"
)

// BetPlacement composes [approve, buy] for one bet decision.
type BetPlacement struct {
	*Composer
}

// NewBetPlacement creates the bet placement workflow.
func NewBetPlacement(c *Composer) *BetPlacement {
	return &BetPlacement{Composer: c}
}

type betRun struct {
	req        domain.BetRequest
	market     common.Address
	collateral common.Address
	investment *big.Int
	balance    *big.Int
	buyAmount  *big.Int
	batch      *batch.Accumulator
}

// Run executes one bet placement. The result carries no payload when the
// settlement account cannot cover the investment. The error is non-nil only
// for a malformed request, a missing bet amount or an ended context. A
// malformed request fails before any contract call.
func (w *BetPlacement) Run(ctx context.Context, runID string, req domain.BetRequest, snap params.Snapshot) (domain.WorkflowResult, error) {
	if !common.IsHexAddress(req.MarketID) || !common.IsHexAddress(req.CollateralToken) {
		return domain.WorkflowResult{}, fmt.Errorf("workflow: bet %s: invalid market or collateral address", req.ID)
	}
	if req.OutcomeIndex < 0 {
		return domain.WorkflowResult{}, fmt.Errorf("workflow: bet %s: negative outcome index %d", req.ID, req.OutcomeIndex)
	}
	investment, err := snap.BetAmount(req.Confidence)
	if err != nil {
		return domain.WorkflowResult{}, fmt.Errorf("workflow: bet %s: %w", req.ID, err)
	}

	st := &betRun{
		req:        req,
		market:     common.HexToAddress(req.MarketID),
		collateral: common.HexToAddress(req.CollateralToken),
		investment: investment,
		batch:      batch.New(),
	}
	log := w.logger.With(
		slog.String("run_id", runID),
		slog.String("workflow", string(domain.WorkflowBetPlacement)),
		slog.String("bet_id", req.ID),
	)

	if err := w.retry.Wait(ctx, domain.StepCheckBalance, w.checkBalance(st)); err != nil {
		return domain.WorkflowResult{}, err
	}
	if st.balance.Cmp(st.investment) < 0 {
		log.InfoContext(ctx, "insufficient balance, skipping bet",
			slog.String("balance", st.balance.String()),
			slog.String("investment", st.investment.String()),
		)
		return w.result(runID, domain.WorkflowBetPlacement, "", ""), nil
	}

	if err := w.retry.Wait(ctx, domain.StepBuildApproval, w.callData(domain.StepBuildApproval, st.batch, st.collateral, func() contract.Request {
		return contract.Request{
			Kind:       contract.KindState,
			Target:     st.collateral,
			ContractID: contract.ERC20,
			Callable:   "build_approval_tx",
			Params: map[string]any{
				"spender": st.market,
				"amount":  st.investment,
			},
		}
	})); err != nil {
		return domain.WorkflowResult{}, err
	}

	if err := w.retry.Wait(ctx, domain.StepCalcBuyAmount, w.calcBuyAmount(st)); err != nil {
		return domain.WorkflowResult{}, err
	}

	if err := w.retry.Wait(ctx, domain.StepBuildBuy, w.callData(domain.StepBuildBuy, st.batch, st.market, func() contract.Request {
		return contract.Request{
			Kind:       contract.KindState,
			Target:     st.market,
			ContractID: contract.FPMM,
			Callable:   "get_buy_data",
			Params: map[string]any{
				"investment_amount":         st.investment,
				"outcome_index":             st.req.OutcomeIndex,
				"min_outcome_tokens_to_buy": st.buyAmount,
			},
		}
	})); err != nil {
		return domain.WorkflowResult{}, err
	}

	txHex, err := w.finalize(ctx, st.batch)
	if err != nil {
		return domain.WorkflowResult{}, err
	}
	log.InfoContext(ctx, "bet placement payload ready",
		slog.String("market", st.market.Hex()),
		slog.Int("outcome_index", st.req.OutcomeIndex),
		slog.String("investment", st.investment.String()),
		slog.String("min_outcome_tokens", st.buyAmount.String()),
	)
	return w.result(runID, domain.WorkflowBetPlacement, txHex, domain.SubmitterBetPlacement), nil
}

func (w *BetPlacement) checkBalance(st *betRun) func(context.Context) bool {
	return func(ctx context.Context) bool {
		body, ok := w.call(ctx, domain.StepCheckBalance, contract.Request{
			Kind:       contract.KindRawTransaction,
			Target:     st.collateral,
			ContractID: contract.ERC20,
			Callable:   "check_balance",
			Params:     map[string]any{"account": w.addrs.Safe},
		}, "balance")
		if !ok {
			return false
		}
		balance, ok := body["balance"].(*big.Int)
		if !ok {
			return w.invalid(ctx, domain.StepCheckBalance, "balance", body["balance"])
		}
		st.balance = balance
		return true
	}
}

func (w *BetPlacement) calcBuyAmount(st *betRun) func(context.Context) bool {
	return func(ctx context.Context) bool {
		body, ok := w.call(ctx, domain.StepCalcBuyAmount, contract.Request{
			Kind:       contract.KindRawTransaction,
			Target:     st.market,
			ContractID: contract.FPMM,
			Callable:   "calc_buy_amount",
			Params: map[string]any{
				"investment_amount": st.investment,
				"outcome_index":     st.req.OutcomeIndex,
			},
		}, "amount")
		if !ok {
			return false
		}
		amount, ok := body["amount"].(*big.Int)
		if !ok {
			return w.invalid(ctx, domain.StepCalcBuyAmount, "amount", body["amount"])
		}
		st.buyAmount = amount
		return true
	}
}
