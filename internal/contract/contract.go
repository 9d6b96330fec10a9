// Package contract turns semantic contract calls ("build a buy order", "what
// is this account's balance") into raw call data or read values. Every call
// goes through one request/response envelope so workflows can treat any
// contract uniformly.
package contract

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Kind is the shape of a response: a raw transaction (read values or
// encoded call data) or contract state.
type Kind string

const (
	KindRawTransaction Kind = "raw_transaction"
	KindState          Kind = "state"
)

// Status is the outcome of a call.
type Status string

const (
	StatusOK       Status = "ok"
	StatusMismatch Status = "mismatch"
	StatusError    Status = "error"
)

// Contract identifiers.
const (
	ERC20             = "erc20"
	FPMM              = "fpmm"
	MultiSend         = "multisend"
	GnosisSafe        = "gnosis_safe"
	ConditionalTokens = "conditional_tokens"
	Realitio          = "realitio"
	RealitioProxy     = "realitio_proxy"
)

// Request asks contract ContractID at Target to run Callable.
type Request struct {
	Kind       Kind
	Target     common.Address
	ContractID string
	Callable   string
	Params     map[string]any
}

// Response carries the callable's named results in Body.
type Response struct {
	Kind   Kind
	Status Status
	Body   map[string]any
	Err    string
}

// OK reports whether the response has status ok and the wanted kind.
func (r Response) OK(want Kind) bool {
	return r.Status == StatusOK && r.Kind == want
}

// Caller is the contract-call boundary used by the workflows.
type Caller interface {
	Call(ctx context.Context, req Request) Response
}

// ChainReader is the subset of *ethclient.Client the service reads with.
type ChainReader interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

type handlerFunc func(ctx context.Context, target common.Address, p params) (map[string]any, error)

type handler struct {
	kind Kind
	fn   handlerFunc
}

// Service is a Caller backed by local ABI encoding and chain reads.
type Service struct {
	chain    ChainReader
	chainID  *big.Int
	logger   *slog.Logger
	handlers map[string]handler
}

// NewService creates a Service for chainID reading through chain.
func NewService(chain ChainReader, chainID *big.Int, logger *slog.Logger) *Service {
	s := &Service{
		chain:   chain,
		chainID: new(big.Int).Set(chainID),
		logger:  logger.With(slog.String("component", "contract")),
	}
	s.handlers = map[string]handler{
		key(ERC20, "check_balance"):                         {KindRawTransaction, s.erc20CheckBalance},
		key(ERC20, "build_approval_tx"):                     {KindState, s.erc20BuildApproval},
		key(FPMM, "calc_buy_amount"):                        {KindRawTransaction, s.fpmmCalcBuyAmount},
		key(FPMM, "get_buy_data"):                           {KindState, s.fpmmBuyData},
		key(MultiSend, "get_tx_data"):                       {KindRawTransaction, s.multisendTxData},
		key(GnosisSafe, "get_raw_safe_transaction_hash"):    {KindState, s.safeTxHash},
		key(ConditionalTokens, "check_redeemed"):            {KindRawTransaction, s.ctCheckRedeemed},
		key(ConditionalTokens, "check_resolved"):            {KindRawTransaction, s.ctCheckResolved},
		key(ConditionalTokens, "build_redeem_positions_tx"): {KindRawTransaction, s.ctBuildRedeem},
		key(Realitio, "build_claim_winnings"):               {KindRawTransaction, s.realitioBuildClaim},
		key(RealitioProxy, "build_resolve_tx"):              {KindRawTransaction, s.proxyBuildResolve},
	}
	return s
}

func key(contractID, callable string) string { return contractID + "." + callable }

// Call dispatches req to the registered callable. A request whose Kind does
// not match the callable's response kind is answered with StatusMismatch.
func (s *Service) Call(ctx context.Context, req Request) Response {
	h, ok := s.handlers[key(req.ContractID, req.Callable)]
	if !ok {
		return Response{
			Kind:   req.Kind,
			Status: StatusError,
			Err:    fmt.Sprintf("unknown callable %s.%s", req.ContractID, req.Callable),
		}
	}
	if req.Kind != h.kind {
		return Response{
			Kind:   h.kind,
			Status: StatusMismatch,
			Err:    fmt.Sprintf("%s.%s answers %s, requested %s", req.ContractID, req.Callable, h.kind, req.Kind),
		}
	}

	body, err := h.fn(ctx, req.Target, params(req.Params))
	if err != nil {
		s.logger.DebugContext(ctx, "contract call failed",
			slog.String("contract", req.ContractID),
			slog.String("callable", req.Callable),
			slog.String("error", err.Error()),
		)
		return Response{Kind: h.kind, Status: StatusError, Err: err.Error()}
	}
	return Response{Kind: h.kind, Status: StatusOK, Body: body}
}

// viewUint runs a read-only call and unpacks its single uint256 result.
func (s *Service) viewUint(ctx context.Context, target common.Address, contractABI abi.ABI, method string, args ...any) (*big.Int, error) {
	callData, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	result, err := s.chain.CallContract(ctx, ethereum.CallMsg{To: &target, Data: callData}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	out, err := contractABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unpack %s: expected 1 value, got %d", method, len(out))
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", method, out[0])
	}
	return n, nil
}
