package domain

// Step identifies a single external query or build step of a workflow. It is
// only used to tag log records.
type Step string

const (
	StepCheckBalance   Step = "check_balance"
	StepBuildApproval  Step = "build_approval"
	StepCalcBuyAmount  Step = "calc_buy_amount"
	StepBuildBuy       Step = "build_buy"
	StepFetchTrades    Step = "fetch_trades"
	StepCheckRedeemed  Step = "check_redeemed"
	StepCheckResolved  Step = "check_resolved"
	StepBuildResolve   Step = "build_resolve"
	StepFetchBlock     Step = "fetch_block"
	StepBuildClaim     Step = "build_claim"
	StepBuildRedeem    Step = "build_redeem"
	StepBuildMultisend Step = "build_multisend"
	StepBuildSafeHash  Step = "build_safe_hash"
)

// FetchStatus is the tri-state progress signal of a paged or polled source.
type FetchStatus int

const (
	FetchStatusNone FetchStatus = iota
	FetchStatusInProgress
	FetchStatusSuccess
	FetchStatusFail
)

func (s FetchStatus) String() string {
	switch s {
	case FetchStatusInProgress:
		return "in_progress"
	case FetchStatusSuccess:
		return "success"
	case FetchStatusFail:
		return "fail"
	default:
		return "none"
	}
}
