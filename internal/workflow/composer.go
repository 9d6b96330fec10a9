// Package workflow composes the bet placement and redemption multisend
// transactions. Each run is strictly sequential: every external call is
// driven to success by the retry controller before the next one starts, and
// all per-run state lives in a state struct created at the start of Run.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/omentrader/internal/batch"
	"github.com/alanyoungcy/omentrader/internal/contract"
	"github.com/alanyoungcy/omentrader/internal/domain"
	"github.com/alanyoungcy/omentrader/internal/retry"
)

// SafeTxGas is the gas stipend committed to in the Safe transaction hash.
// Zero lets the Safe forward all available gas.
var SafeTxGas = big.NewInt(0)

// Addresses are the on-chain contracts the workflows talk to.
type Addresses struct {
	Safe              common.Address
	MultiSend         common.Address
	ConditionalTokens common.Address
	Realitio          common.Address
	RealitioProxy     common.Address
}

// Composer holds what both workflows share.
type Composer struct {
	caller contract.Caller
	retry  *retry.Controller
	addrs  Addresses
	agent  string
	logger *slog.Logger
	now    func() time.Time
}

// NewComposer creates a Composer. agent is the identity stamped on results.
func NewComposer(caller contract.Caller, ctrl *retry.Controller, addrs Addresses, agent string, logger *slog.Logger) *Composer {
	return &Composer{
		caller: caller,
		retry:  ctrl,
		addrs:  addrs,
		agent:  agent,
		logger: logger.With(slog.String("component", "workflow")),
		now:    time.Now,
	}
}

// call performs one contract request and checks that the response has the
// requested kind and carries every key in want. Failures are logged.
func (c *Composer) call(ctx context.Context, step domain.Step, req contract.Request, want ...string) (map[string]any, bool) {
	resp := c.caller.Call(ctx, req)
	if resp.Status != contract.StatusOK || resp.Kind != req.Kind {
		c.logger.ErrorContext(ctx, "contract call failed",
			slog.String("step", string(step)),
			slog.String("contract", req.ContractID),
			slog.String("callable", req.Callable),
			slog.String("status", string(resp.Status)),
			slog.String("expected_kind", string(req.Kind)),
			slog.String("kind", string(resp.Kind)),
			slog.String("error", resp.Err),
		)
		return nil, false
	}
	for _, k := range want {
		if v, ok := resp.Body[k]; !ok || v == nil {
			c.logger.ErrorContext(ctx, "contract response missing field",
				slog.String("step", string(step)),
				slog.String("callable", req.Callable),
				slog.String("field", k),
			)
			return nil, false
		}
	}
	return resp.Body, true
}

// invalid logs a response field of the wrong type and returns false.
func (c *Composer) invalid(ctx context.Context, step domain.Step, field string, v any) bool {
	c.logger.ErrorContext(ctx, "contract response field has unexpected type",
		slog.String("step", string(step)),
		slog.String("field", field),
		slog.String("type", fmt.Sprintf("%T", v)),
	)
	return false
}

// callData builds a condition that encodes one call and appends it to acc
// addressed to target.
func (c *Composer) callData(step domain.Step, acc *batch.Accumulator, target common.Address, req func() contract.Request) retry.Condition {
	return func(ctx context.Context) bool {
		body, ok := c.call(ctx, step, req(), "data")
		if !ok {
			return false
		}
		data, ok := body["data"].([]byte)
		if !ok {
			return c.invalid(ctx, step, "data", body["data"])
		}
		if err := acc.Append(domain.NewCallBatchEntry(target, data, nil)); err != nil {
			c.logger.ErrorContext(ctx, "append to batch", slog.String("step", string(step)), slog.String("error", err.Error()))
			return false
		}
		return true
	}
}

// settlement is the encode-and-hash tail shared by both workflows.
type settlement struct {
	multisendData []byte
	safeTxHash    string
}

// finalize seals acc, encodes it as one multisend, hashes the Safe
// transaction that delegate-calls it and renders the settlement payload.
func (c *Composer) finalize(ctx context.Context, acc *batch.Accumulator) (string, error) {
	if err := acc.Seal(); err != nil {
		return "", fmt.Errorf("workflow: finalize: %w", err)
	}
	st := &settlement{}
	txs := acc.EncodableList()

	if err := c.retry.Wait(ctx, domain.StepBuildMultisend, func(ctx context.Context) bool {
		body, ok := c.call(ctx, domain.StepBuildMultisend, contract.Request{
			Kind:       contract.KindRawTransaction,
			Target:     c.addrs.MultiSend,
			ContractID: contract.MultiSend,
			Callable:   "get_tx_data",
			Params:     map[string]any{"multi_send_txs": txs},
		}, "data")
		if !ok {
			return false
		}
		s, ok := body["data"].(string)
		if !ok {
			return c.invalid(ctx, domain.StepBuildMultisend, "data", body["data"])
		}
		data, err := hexutil.Decode(s)
		if err != nil {
			c.logger.ErrorContext(ctx, "multisend data is not hex", slog.String("error", err.Error()))
			return false
		}
		st.multisendData = data
		return true
	}); err != nil {
		return "", err
	}

	if err := c.retry.Wait(ctx, domain.StepBuildSafeHash, func(ctx context.Context) bool {
		body, ok := c.call(ctx, domain.StepBuildSafeHash, contract.Request{
			Kind:       contract.KindState,
			Target:     c.addrs.Safe,
			ContractID: contract.GnosisSafe,
			Callable:   "get_raw_safe_transaction_hash",
			Params: map[string]any{
				"to_address":  c.addrs.MultiSend,
				"value":       new(big.Int),
				"data":        st.multisendData,
				"safe_tx_gas": SafeTxGas,
				"operation":   uint8(domain.OperationDelegateCall),
			},
		}, "tx_hash")
		if !ok {
			return false
		}
		h, ok := body["tx_hash"].(string)
		if !ok || !batch.ValidSafeTxHash(h) {
			c.logger.ErrorContext(ctx, "invalid safe transaction hash",
				slog.String("tx_hash", fmt.Sprint(body["tx_hash"])))
			return false
		}
		st.safeTxHash = strings.ToLower(h)
		return true
	}); err != nil {
		return "", err
	}

	return batch.HashPayloadToHex(st.safeTxHash, new(big.Int), SafeTxGas, c.addrs.MultiSend, domain.OperationDelegateCall, st.multisendData)
}

func (c *Composer) result(runID string, kind domain.WorkflowKind, txHex, submitter string) domain.WorkflowResult {
	res := domain.WorkflowResult{
		RunID:        runID,
		Workflow:     kind,
		AgentAddress: c.agent,
		CreatedAt:    c.now().UTC(),
	}
	if txHex != "" {
		res.TxHex = &txHex
		res.Submitter = &submitter
	}
	return res
}
