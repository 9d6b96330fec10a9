package workflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/omentrader/internal/contract"
	"github.com/alanyoungcy/omentrader/internal/domain"
	"github.com/alanyoungcy/omentrader/internal/params"
	"github.com/alanyoungcy/omentrader/internal/retry"
)

var testAddrs = Addresses{
	Safe:              common.HexToAddress("0x3333333333333333333333333333333333333333"),
	MultiSend:         common.HexToAddress("0x40A2aCCbd92BCA938b02010E17A5b8929b49130D"),
	ConditionalTokens: common.HexToAddress("0xCeAfDD6bc0bEF976fdCd1112955828E00543c0Ce"),
	Realitio:          common.HexToAddress("0x79e32aE03fb27B07C89c0c568F80287C01ca2E57"),
	RealitioProxy:     common.HexToAddress("0xAB16D643bA051C11962DA645f74632d3130c81E2"),
}

var (
	collateral = common.HexToAddress("0xe91D153E0b41518A2Ce8Dd3D7944Fa863463a97d")
	marketAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

// fakeCaller answers contract requests deterministically. Call data is the
// callable name followed by a discriminating suffix so batches can be read
// back from the multisend request.
type fakeCaller struct {
	mu       sync.Mutex
	requests []contract.Request

	balance   *big.Int
	buyAmount *big.Int
	payouts   map[string]*big.Int
	resolved  map[common.Hash]bool
	failFirst map[string]int
	wrongKind map[string]int
	msTxs     []domain.MultiSendTx
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		balance:   big.NewInt(0),
		buyAmount: big.NewInt(42),
		payouts:   map[string]*big.Int{},
		resolved:  map[common.Hash]bool{},
		failFirst: map[string]int{},
		wrongKind: map[string]int{},
	}
}

func (f *fakeCaller) Call(_ context.Context, req contract.Request) contract.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)

	if n := f.failFirst[req.Callable]; n > 0 {
		f.failFirst[req.Callable] = n - 1
		return contract.Response{Kind: req.Kind, Status: contract.StatusError, Err: "rpc unavailable"}
	}
	if n := f.wrongKind[req.Callable]; n > 0 {
		f.wrongKind[req.Callable] = n - 1
		other := contract.KindState
		if req.Kind == contract.KindState {
			other = contract.KindRawTransaction
		}
		return contract.Response{Kind: other, Status: contract.StatusOK, Body: map[string]any{"data": []byte("x")}}
	}

	ok := func(body map[string]any) contract.Response {
		return contract.Response{Kind: req.Kind, Status: contract.StatusOK, Body: body}
	}
	switch req.Callable {
	case "check_balance":
		return ok(map[string]any{"balance": new(big.Int).Set(f.balance), "wallet": big.NewInt(1)})
	case "build_approval_tx":
		return ok(map[string]any{"data": []byte("approve")})
	case "calc_buy_amount":
		return ok(map[string]any{"amount": new(big.Int).Set(f.buyAmount)})
	case "get_buy_data":
		return ok(map[string]any{"data": []byte("buy")})
	case "check_redeemed":
		out := map[string]*big.Int{}
		for _, h := range req.Params["trade_tx_hashes"].([]string) {
			if p, ok := f.payouts[h]; ok {
				out[h] = p
			}
		}
		return ok(map[string]any{"payouts": out})
	case "check_resolved":
		return ok(map[string]any{"resolved": f.resolved[req.Params["condition_id"].(common.Hash)]})
	case "build_resolve_tx":
		return ok(map[string]any{"data": []byte("resolve:" + short(req.Params["question_id"].(common.Hash)))})
	case "build_claim_winnings":
		return ok(map[string]any{"data": []byte(fmt.Sprintf("claim:%s@%d", short(req.Params["question_id"].(common.Hash)), req.Params["from_block"]))})
	case "build_redeem_positions_tx":
		return ok(map[string]any{"data": []byte("redeem:" + short(req.Params["condition_id"].(common.Hash)))})
	case "get_tx_data":
		txs := req.Params["multi_send_txs"].([]domain.MultiSendTx)
		f.msTxs = txs
		data, err := contract.PackMultiSend(txs)
		if err != nil {
			return contract.Response{Kind: req.Kind, Status: contract.StatusError, Err: err.Error()}
		}
		return ok(map[string]any{"data": hexutil.Encode(data)})
	case "get_raw_safe_transaction_hash":
		return ok(map[string]any{"tx_hash": crypto.Keccak256Hash(req.Params["data"].([]byte)).Hex()})
	}
	return contract.Response{Kind: req.Kind, Status: contract.StatusError, Err: "unknown callable"}
}

func short(h common.Hash) string {
	s := h.Hex()
	return s[len(s)-4:]
}

func (f *fakeCaller) count(callable string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Callable == callable {
			n++
		}
	}
	return n
}

// batchData returns the call data of the last encoded batch as strings.
func (f *fakeCaller) batchData() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.msTxs))
	for _, tx := range f.msTxs {
		out = append(out, string(tx.Data))
	}
	return out
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newComposer(caller contract.Caller) *Composer {
	c := NewComposer(caller, retry.New(func() time.Duration { return 0 }, quietLogger()), testAddrs, testAddrs.Safe.Hex(), quietLogger())
	c.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

func testSnapshot() params.Snapshot {
	return params.Snapshot{
		DustThreshold:      big.NewInt(1000),
		RedeemingBatchSize: 6,
		SleepTime:          0,
		TradesPageSize:     2,
		BetAmountPerThreshold: map[string]*big.Int{
			"0.8": big.NewInt(150),
		},
	}
}

func betRequest() domain.BetRequest {
	return domain.BetRequest{
		ID:              "bet-1",
		MarketID:        marketAddr.Hex(),
		CollateralToken: collateral.Hex(),
		OutcomeIndex:    1,
		Confidence:      0.8,
	}
}

func TestBetPlacement_InsufficientBalance(t *testing.T) {
	caller := newFakeCaller()
	caller.balance = big.NewInt(100)

	res, err := NewBetPlacement(newComposer(caller)).Run(context.Background(), "run-1", betRequest(), testSnapshot())
	require.NoError(t, err)
	assert.False(t, res.HasPayload())
	assert.Nil(t, res.Submitter)
	assert.Equal(t, domain.WorkflowBetPlacement, res.Workflow)
	assert.Zero(t, caller.count("build_approval_tx"))
	assert.Zero(t, caller.count("get_buy_data"))
	assert.Zero(t, caller.count("get_tx_data"))
}

func TestBetPlacement_ComposesApproveThenBuy(t *testing.T) {
	caller := newFakeCaller()
	caller.balance = big.NewInt(200)

	res, err := NewBetPlacement(newComposer(caller)).Run(context.Background(), "run-1", betRequest(), testSnapshot())
	require.NoError(t, err)
	require.True(t, res.HasPayload())
	assert.Equal(t, domain.SubmitterBetPlacement, *res.Submitter)
	assert.Equal(t, testAddrs.Safe.Hex(), res.AgentAddress)

	assert.Equal(t, []string{"approve", "buy"}, caller.batchData())
	require.Len(t, caller.msTxs, 2)
	assert.Equal(t, collateral, caller.msTxs[0].To)
	assert.Equal(t, marketAddr, caller.msTxs[1].To)
	for _, tx := range caller.msTxs {
		assert.Equal(t, domain.OperationCall, tx.Operation)
	}

	txHex := *res.TxHex
	assert.Equal(t, strings.ToLower(testAddrs.MultiSend.Hex()[2:]), txHex[192:232])
	assert.Equal(t, "01", txHex[232:234])
	assert.Equal(t, "8d80ff0a", txHex[234:242])
}

func TestBetPlacement_ApprovalAndBuyParams(t *testing.T) {
	caller := newFakeCaller()
	caller.balance = big.NewInt(150)

	_, err := NewBetPlacement(newComposer(caller)).Run(context.Background(), "run-1", betRequest(), testSnapshot())
	require.NoError(t, err)

	for _, r := range caller.requests {
		switch r.Callable {
		case "build_approval_tx":
			assert.Equal(t, contract.KindState, r.Kind)
			assert.Equal(t, marketAddr, r.Params["spender"])
			assert.Equal(t, int64(150), r.Params["amount"].(*big.Int).Int64())
		case "get_buy_data":
			assert.Equal(t, int64(42), r.Params["min_outcome_tokens_to_buy"].(*big.Int).Int64())
			assert.Equal(t, 1, r.Params["outcome_index"])
		case "check_balance":
			assert.Equal(t, contract.KindRawTransaction, r.Kind)
			assert.Equal(t, testAddrs.Safe, r.Params["account"])
		}
	}
}

func TestBetPlacement_RetriesFailedAndMismatchedSteps(t *testing.T) {
	caller := newFakeCaller()
	caller.balance = big.NewInt(200)
	caller.failFirst["check_balance"] = 2
	caller.wrongKind["build_approval_tx"] = 1

	res, err := NewBetPlacement(newComposer(caller)).Run(context.Background(), "run-1", betRequest(), testSnapshot())
	require.NoError(t, err)
	assert.True(t, res.HasPayload())
	assert.Equal(t, 3, caller.count("check_balance"))
	assert.Equal(t, 2, caller.count("build_approval_tx"))
	assert.Equal(t, []string{"approve", "buy"}, caller.batchData())
}

func TestBetPlacement_MissingBetAmount(t *testing.T) {
	caller := newFakeCaller()
	req := betRequest()
	req.Confidence = 0.3

	_, err := NewBetPlacement(newComposer(caller)).Run(context.Background(), "run-1", req, testSnapshot())
	assert.ErrorIs(t, err, domain.ErrMissingBetAmount)
	assert.Empty(t, caller.requests)
}

func TestBetPlacement_NegativeOutcomeIndex(t *testing.T) {
	caller := newFakeCaller()
	caller.balance = big.NewInt(200)
	req := betRequest()
	req.OutcomeIndex = -1

	_, err := NewBetPlacement(newComposer(caller)).Run(context.Background(), "run-1", req, testSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative outcome index")
	assert.Empty(t, caller.requests)
}

func TestBetPlacement_CancelledWhileRetrying(t *testing.T) {
	caller := newFakeCaller()
	caller.failFirst["check_balance"] = 1 << 30
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := newComposer(caller)
	c.retry = retry.New(func() time.Duration { return time.Millisecond }, quietLogger())
	_, err := NewBetPlacement(c).Run(ctx, "run-1", betRequest(), testSnapshot())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// fakeTrades serves fixed pages of candidates.
type fakeTrades struct {
	pages  [][]domain.RedeemCandidate
	failAt int // page index that fails, -1 for none
	calls  int
}

func (f *fakeTrades) FetchTradePage(_ context.Context, _ domain.TradeQuery, cursor string) domain.TradePage {
	i := 0
	if cursor != "" {
		fmt.Sscanf(cursor, "%d", &i)
	}
	f.calls++
	if i == f.failAt {
		return domain.TradePage{Status: domain.FetchStatusFail}
	}
	status := domain.FetchStatusInProgress
	if i == len(f.pages)-1 {
		status = domain.FetchStatusSuccess
	}
	return domain.TradePage{Candidates: f.pages[i], Cursor: fmt.Sprint(i + 1), Status: status}
}

type fakeBlocks struct {
	number uint64
	status domain.FetchStatus
}

func (f fakeBlocks) BlockAt(context.Context, time.Time) domain.BlockLookup {
	return domain.BlockLookup{Number: f.number, Status: f.status}
}

func candidate(n int, claimable int64) domain.RedeemCandidate {
	return domain.RedeemCandidate{
		TransactionHash: fmt.Sprintf("0x%064x", n),
		OutcomeIndex:    0,
		ClaimableAmount: big.NewInt(claimable),
		FPMM: domain.FPMM{
			ID:                 common.BigToAddress(big.NewInt(int64(1000 + n))),
			CollateralToken:    collateral,
			CreationTimestamp:  time.Unix(1_700_000_000, 0),
			CurrentAnswerIndex: 0,
			TemplateID:         2,
			Question:           domain.Question{ID: common.BigToHash(big.NewInt(int64(0xa00 + n))), Data: "q"},
			Condition:          domain.Condition{ID: common.BigToHash(big.NewInt(int64(0xc00 + n))), OutcomeSlotCount: 2},
		},
	}
}

func newRedemption(caller contract.Caller, trades domain.TradeSource) *Redemption {
	return NewRedemption(newComposer(caller), trades, fakeBlocks{number: 123, status: domain.FetchStatusSuccess})
}

func TestRedemption_MixedResolution(t *testing.T) {
	a, b, c := candidate(1, 5000), candidate(2, 5000), candidate(3, 5000)
	a.OutcomeIndex = 1 // losing
	caller := newFakeCaller()
	caller.payouts[b.TxKey()] = big.NewInt(0) // zero payout does not count as redeemed
	caller.resolved[b.FPMM.Condition.ID] = false
	caller.resolved[c.FPMM.Condition.ID] = true
	caller.payouts[strings.ToLower(candidate(9, 1).TransactionHash)] = big.NewInt(7)

	trades := &fakeTrades{pages: [][]domain.RedeemCandidate{{a, b}, {c}}, failAt: -1}
	res, err := newRedemption(caller, trades).Run(context.Background(), "run-2", testSnapshot())
	require.NoError(t, err)
	require.True(t, res.HasPayload())
	assert.Equal(t, domain.SubmitterRedeem, *res.Submitter)
	assert.Equal(t, int64(10000), res.ExpectedWinnings.Int64())

	qb := short(b.FPMM.Question.ID)
	cb := short(b.FPMM.Condition.ID)
	qc := short(c.FPMM.Question.ID)
	cc := short(c.FPMM.Condition.ID)
	assert.Equal(t, []string{
		"resolve:" + qb, "claim:" + qb + "@123", "redeem:" + cb,
		"claim:" + qc + "@123", "redeem:" + cc,
	}, caller.batchData())
	assert.Equal(t, testAddrs.RealitioProxy, caller.msTxs[0].To)
	assert.Equal(t, testAddrs.Realitio, caller.msTxs[1].To)
	assert.Equal(t, testAddrs.ConditionalTokens, caller.msTxs[2].To)
	assert.Equal(t, 2, trades.calls)
}

func TestRedemption_CheckRedeemedSendsIndexSets(t *testing.T) {
	a, b := candidate(1, 5000), candidate(2, 5000)
	b.FPMM.Condition.OutcomeSlotCount = 3
	caller := newFakeCaller()
	trades := &fakeTrades{pages: [][]domain.RedeemCandidate{{a, b}}, failAt: -1}

	_, err := newRedemption(caller, trades).Run(context.Background(), "run-2", testSnapshot())
	require.NoError(t, err)

	var found bool
	for _, r := range caller.requests {
		if r.Callable != "check_redeemed" {
			continue
		}
		found = true
		sets := r.Params["index_sets"].([][]*big.Int)
		require.Len(t, sets, 2)
		assert.Equal(t, []*big.Int{big.NewInt(1), big.NewInt(2)}, sets[0])
		assert.Equal(t, []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(4)}, sets[1])
		assert.Len(t, r.Params["trade_tx_hashes"].([]string), 2)
	}
	assert.True(t, found)
}

func TestRedemption_SkipsRedeemedAndDust(t *testing.T) {
	a, b := candidate(1, 5000), candidate(2, 10)
	caller := newFakeCaller()
	caller.payouts[a.TxKey()] = big.NewInt(5000)

	res, err := newRedemption(caller, &fakeTrades{pages: [][]domain.RedeemCandidate{{a, b}}, failAt: -1}).
		Run(context.Background(), "run-3", testSnapshot())
	require.NoError(t, err)
	assert.False(t, res.HasPayload())
	assert.Nil(t, res.Submitter)
	assert.Zero(t, res.ExpectedWinnings.Sign())
	assert.Zero(t, caller.count("check_resolved"))
	assert.Zero(t, caller.count("get_tx_data"))
}

func TestRedemption_BatchCapStopsProcessing(t *testing.T) {
	var cands []domain.RedeemCandidate
	for i := 1; i <= 5; i++ {
		cands = append(cands, candidate(i, 2000))
	}
	caller := newFakeCaller() // nothing resolved: three calls per trade

	res, err := newRedemption(caller, &fakeTrades{pages: [][]domain.RedeemCandidate{cands}, failAt: -1}).
		Run(context.Background(), "run-4", testSnapshot())
	require.NoError(t, err)
	require.True(t, res.HasPayload())
	assert.Len(t, caller.msTxs, 6)
	assert.Equal(t, int64(4000), res.ExpectedWinnings.Int64())
	assert.Equal(t, 2, caller.count("build_redeem_positions_tx"))
}

func TestRedemption_CapLeavesNoRoomForResolve(t *testing.T) {
	a, b := candidate(1, 2000), candidate(2, 2000)
	caller := newFakeCaller()
	caller.resolved[a.FPMM.Condition.ID] = true
	snap := testSnapshot()
	snap.RedeemingBatchSize = 4

	res, err := newRedemption(caller, &fakeTrades{pages: [][]domain.RedeemCandidate{{a, b}}, failAt: -1}).
		Run(context.Background(), "run-5", snap)
	require.NoError(t, err)
	assert.Len(t, caller.msTxs, 2)
	assert.Equal(t, int64(2000), res.ExpectedWinnings.Int64())
	assert.Zero(t, caller.count("build_resolve_tx"))
}

func TestRedemption_FetchFailureYieldsNothing(t *testing.T) {
	caller := newFakeCaller()
	trades := &fakeTrades{
		pages:  [][]domain.RedeemCandidate{{candidate(1, 5000)}, {candidate(2, 5000)}},
		failAt: 1,
	}
	res, err := newRedemption(caller, trades).Run(context.Background(), "run-6", testSnapshot())
	require.NoError(t, err)
	assert.False(t, res.HasPayload())
	assert.Empty(t, caller.requests)
}

func TestRedemption_DuplicateTradesCountedOnce(t *testing.T) {
	a := candidate(1, 3000)
	caller := newFakeCaller()
	caller.resolved[a.FPMM.Condition.ID] = true

	res, err := newRedemption(caller, &fakeTrades{pages: [][]domain.RedeemCandidate{{a}, {a}}, failAt: -1}).
		Run(context.Background(), "run-7", testSnapshot())
	require.NoError(t, err)
	assert.Len(t, caller.msTxs, 2)
	assert.Equal(t, int64(3000), res.ExpectedWinnings.Int64())
}

func TestRedemption_BlockLookupFailureScansFromEarliest(t *testing.T) {
	a := candidate(1, 3000)
	caller := newFakeCaller()
	caller.resolved[a.FPMM.Condition.ID] = true

	w := NewRedemption(newComposer(caller), &fakeTrades{pages: [][]domain.RedeemCandidate{{a}}, failAt: -1},
		fakeBlocks{status: domain.FetchStatusFail})
	_, err := w.Run(context.Background(), "run-8", testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, "claim:"+short(a.FPMM.Question.ID)+"@0", caller.batchData()[0])
}

func TestRedemption_RerunIsDeterministic(t *testing.T) {
	a, b := candidate(1, 5000), candidate(2, 6000)
	run := func() string {
		caller := newFakeCaller()
		caller.resolved[a.FPMM.Condition.ID] = true
		res, err := newRedemption(caller, &fakeTrades{pages: [][]domain.RedeemCandidate{{a, b}}, failAt: -1}).
			Run(context.Background(), "run-9", testSnapshot())
		require.NoError(t, err)
		require.True(t, res.HasPayload())
		return *res.TxHex
	}
	assert.Equal(t, run(), run())
}
