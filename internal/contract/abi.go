package contract

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABIJSON = `[
	{"name":"balanceOf","type":"function","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"name":"approve","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]}
]`

const fpmmABIJSON = `[
	{"name":"calcBuyAmount","type":"function","stateMutability":"view",
	 "inputs":[{"name":"investmentAmount","type":"uint256"},{"name":"outcomeIndex","type":"uint256"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"name":"buy","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"investmentAmount","type":"uint256"},{"name":"outcomeIndex","type":"uint256"},{"name":"minOutcomeTokensToBuy","type":"uint256"}],
	 "outputs":[]}
]`

const multisendABIJSON = `[
	{"name":"multiSend","type":"function","stateMutability":"payable",
	 "inputs":[{"name":"transactions","type":"bytes"}],
	 "outputs":[]}
]`

const safeABIJSON = `[
	{"name":"nonce","type":"function","stateMutability":"view",
	 "inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

const conditionalTokensABIJSON = `[
	{"name":"payoutDenominator","type":"function","stateMutability":"view",
	 "inputs":[{"name":"","type":"bytes32"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"name":"redeemPositions","type":"function","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"collateralToken","type":"address"},
		{"name":"parentCollectionId","type":"bytes32"},
		{"name":"conditionId","type":"bytes32"},
		{"name":"indexSets","type":"uint256[]"}],
	 "outputs":[]},
	{"name":"PayoutRedemption","type":"event","anonymous":false,
	 "inputs":[
		{"name":"redeemer","type":"address","indexed":true},
		{"name":"collateralToken","type":"address","indexed":true},
		{"name":"parentCollectionId","type":"bytes32","indexed":true},
		{"name":"conditionId","type":"bytes32","indexed":false},
		{"name":"indexSets","type":"uint256[]","indexed":false},
		{"name":"payout","type":"uint256","indexed":false}]}
]`

const realitioABIJSON = `[
	{"name":"claimWinnings","type":"function","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"question_id","type":"bytes32"},
		{"name":"history_hashes","type":"bytes32[]"},
		{"name":"addrs","type":"address[]"},
		{"name":"bonds","type":"uint256[]"},
		{"name":"answers","type":"bytes32[]"}],
	 "outputs":[]},
	{"name":"LogNewAnswer","type":"event","anonymous":false,
	 "inputs":[
		{"name":"answer","type":"bytes32","indexed":false},
		{"name":"question_id","type":"bytes32","indexed":true},
		{"name":"history_hash","type":"bytes32","indexed":false},
		{"name":"user","type":"address","indexed":true},
		{"name":"bond","type":"uint256","indexed":false},
		{"name":"ts","type":"uint256","indexed":false},
		{"name":"is_commitment","type":"bool","indexed":false}]}
]`

const realitioProxyABIJSON = `[
	{"name":"resolve","type":"function","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"questionId","type":"bytes32"},
		{"name":"templateId","type":"uint256"},
		{"name":"question","type":"string"},
		{"name":"numOutcomes","type":"uint256"}],
	 "outputs":[]}
]`

// Contract ABIs
var (
	erc20ABI             = mustABI(erc20ABIJSON)
	fpmmABI              = mustABI(fpmmABIJSON)
	multisendABI         = mustABI(multisendABIJSON)
	safeABI              = mustABI(safeABIJSON)
	conditionalTokensABI = mustABI(conditionalTokensABIJSON)
	realitioABI          = mustABI(realitioABIJSON)
	realitioProxyABI     = mustABI(realitioProxyABIJSON)
)

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("contract: parse ABI: " + err.Error())
	}
	return parsed
}
