package domain

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Question is the oracle question backing a market.
type Question struct {
	ID   common.Hash
	Data string // the templated question text passed to the resolve call
}

// Condition is the conditional-tokens condition backing a market.
type Condition struct {
	ID               common.Hash
	OutcomeSlotCount int
}

// IndexSets returns the full partition of outcome slots, one singleton set
// per outcome (1, 2, 4, ...).
func (c Condition) IndexSets() []*big.Int {
	sets := make([]*big.Int, 0, c.OutcomeSlotCount)
	for i := 0; i < c.OutcomeSlotCount; i++ {
		sets = append(sets, new(big.Int).Lsh(big.NewInt(1), uint(i)))
	}
	return sets
}

// FPMM is a fixed-product market maker together with its current
// resolution state.
type FPMM struct {
	ID                       common.Address
	CollateralToken          common.Address
	CreationTimestamp        time.Time
	CurrentAnswerIndex       int // -1 while unanswered
	AnswerFinalizedTimestamp time.Time
	TemplateID               int64
	Question                 Question
	Condition                Condition
}

// RedeemCandidate is one historical trade of the settlement account that may
// be redeemable.
type RedeemCandidate struct {
	TransactionHash string
	OutcomeIndex    int
	ClaimableAmount *big.Int
	FPMM            FPMM
}

// TxKey returns the normalised transaction hash used as the dedup key.
func (c RedeemCandidate) TxKey() string {
	return strings.ToLower(c.TransactionHash)
}

// IsWinning reports whether the traded outcome is the market's current answer.
func (c RedeemCandidate) IsWinning() bool {
	return c.OutcomeIndex == c.FPMM.CurrentAnswerIndex
}

// IsDust reports whether the claimable amount is below threshold.
func (c RedeemCandidate) IsDust(threshold *big.Int) bool {
	if c.ClaimableAmount == nil {
		return true
	}
	if threshold == nil {
		return false
	}
	return c.ClaimableAmount.Cmp(threshold) < 0
}

// PayoutMap maps a lower-cased trade transaction hash to the payout already
// recorded on chain for it.
type PayoutMap map[string]*big.Int

// Paid reports whether a non-zero payout is recorded for txHash.
func (p PayoutMap) Paid(txHash string) bool {
	v, ok := p[strings.ToLower(txHash)]
	return ok && v != nil && v.Sign() > 0
}

// Total sums every recorded payout.
func (p PayoutMap) Total() *big.Int {
	total := new(big.Int)
	for _, v := range p {
		if v != nil {
			total.Add(total, v)
		}
	}
	return total
}

// DedupCandidates drops repeated transaction hashes, keeping the first
// occurrence and the original order.
func DedupCandidates(in []RedeemCandidate) []RedeemCandidate {
	seen := make(map[string]struct{}, len(in))
	out := make([]RedeemCandidate, 0, len(in))
	for _, c := range in {
		k := c.TxKey()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}
