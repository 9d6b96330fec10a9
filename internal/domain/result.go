package domain

import (
	"math/big"
	"time"
)

// WorkflowKind names the workflow that produced a result.
type WorkflowKind string

const (
	WorkflowBetPlacement WorkflowKind = "bet_placement"
	WorkflowRedemption   WorkflowKind = "redemption"
)

// Submitter markers tell the settlement side which path consumes a payload.
const (
	SubmitterBetPlacement = "bet_placement_round"
	SubmitterRedeem       = "redeem_round"
)

// WorkflowResult is the terminal output of one workflow run. TxHex is nil
// exactly when there is nothing to submit.
type WorkflowResult struct {
	RunID            string
	Workflow         WorkflowKind
	AgentAddress     string
	Submitter        *string
	TxHex            *string
	ExpectedWinnings *big.Int // redemption only
	CreatedAt        time.Time
}

// HasPayload reports whether the result carries a transaction to submit.
func (r WorkflowResult) HasPayload() bool {
	return r.TxHex != nil && *r.TxHex != ""
}

// BetRequest is a decision made upstream: bet on OutcomeIndex of the market
// with the given confidence.
type BetRequest struct {
	ID              string         `json:"id"`
	MarketID        string         `json:"market_id"` // FPMM address
	CollateralToken string         `json:"collateral_token"`
	OutcomeIndex    int            `json:"outcome_index"`
	Confidence      float64        `json:"confidence"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}
