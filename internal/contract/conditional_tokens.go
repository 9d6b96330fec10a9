package contract

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// redemptionKey identifies the position a PayoutRedemption event pays out.
type redemptionKey struct {
	collateral common.Address
	parent     common.Hash
	condition  common.Hash
}

// redemption is one decoded PayoutRedemption event.
type redemption struct {
	indexSets []*big.Int
	payout    *big.Int
}

// ctCheckRedeemed maps each trade transaction hash to the payout already
// redeemed by "redeemer" for the trade's position. An event counts for a trade
// only when every index set it redeemed belongs to the trade's index sets.
// Trades without a matching PayoutRedemption event are absent from the map.
func (s *Service) ctCheckRedeemed(ctx context.Context, ct common.Address, p params) (map[string]any, error) {
	redeemer, err := p.address("redeemer")
	if err != nil {
		return nil, err
	}
	collaterals, err := addressList(p, "collateral_tokens")
	if err != nil {
		return nil, err
	}
	parents, err := hashList(p, "parent_collection_ids")
	if err != nil {
		return nil, err
	}
	conditions, err := hashList(p, "condition_ids")
	if err != nil {
		return nil, err
	}
	indexSets, err := indexSetLists(p, "index_sets")
	if err != nil {
		return nil, err
	}
	txHashes, err := stringList(p, "trade_tx_hashes")
	if err != nil {
		return nil, err
	}
	n := len(txHashes)
	if len(collaterals) != n || len(parents) != n || len(conditions) != n || len(indexSets) != n {
		return nil, fmt.Errorf("conditional_tokens: check_redeemed: parameter lists differ in length")
	}
	payouts := map[string]*big.Int{}
	if len(txHashes) == 0 {
		return map[string]any{"payouts": payouts}, nil
	}

	event := conditionalTokensABI.Events["PayoutRedemption"]
	collateralTopics := make([]common.Hash, 0, len(collaterals))
	for _, c := range collaterals {
		collateralTopics = append(collateralTopics, common.BytesToHash(c.Bytes()))
	}
	logs, err := s.chain.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: big.NewInt(0),
		Addresses: []common.Address{ct},
		Topics: [][]common.Hash{
			{event.ID},
			{common.BytesToHash(redeemer.Bytes())},
			collateralTopics,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("conditional_tokens: filter PayoutRedemption: %w", err)
	}

	redeemed := make(map[redemptionKey][]redemption, len(logs))
	for _, lg := range logs {
		if len(lg.Topics) < 4 {
			continue
		}
		values, err := event.Inputs.NonIndexed().Unpack(lg.Data)
		if err != nil || len(values) != 3 {
			return nil, fmt.Errorf("conditional_tokens: decode PayoutRedemption: %v", err)
		}
		condition, ok1 := values[0].([32]byte)
		sets, ok2 := values[1].([]*big.Int)
		payout, ok3 := values[2].(*big.Int)
		if !ok1 || !ok2 || !ok3 {
			return nil, fmt.Errorf("conditional_tokens: decode PayoutRedemption: unexpected types")
		}
		k := redemptionKey{
			collateral: common.BytesToAddress(lg.Topics[2].Bytes()),
			parent:     lg.Topics[3],
			condition:  common.Hash(condition),
		}
		redeemed[k] = append(redeemed[k], redemption{indexSets: sets, payout: payout})
	}

	for i, txHash := range txHashes {
		k := redemptionKey{collateral: collaterals[i], parent: parents[i], condition: conditions[i]}
		var total *big.Int
		for _, r := range redeemed[k] {
			if !subsetOf(r.indexSets, indexSets[i]) {
				continue
			}
			if total == nil {
				total = new(big.Int)
			}
			total.Add(total, r.payout)
		}
		if total != nil {
			payouts[strings.ToLower(txHash)] = total
		}
	}
	return map[string]any{"payouts": payouts}, nil
}

// ctCheckResolved reports whether a condition has a reported payout vector.
func (s *Service) ctCheckResolved(ctx context.Context, ct common.Address, p params) (map[string]any, error) {
	condition, err := p.hash("condition_id")
	if err != nil {
		return nil, err
	}
	denominator, err := s.viewUint(ctx, ct, conditionalTokensABI, "payoutDenominator", [32]byte(condition))
	if err != nil {
		return nil, fmt.Errorf("conditional_tokens: %w", err)
	}
	return map[string]any{"resolved": denominator.Sign() > 0}, nil
}

func (s *Service) ctBuildRedeem(_ context.Context, _ common.Address, p params) (map[string]any, error) {
	collateral, err := p.address("collateral_token")
	if err != nil {
		return nil, err
	}
	parent, err := p.hash("parent_collection_id")
	if err != nil {
		return nil, err
	}
	condition, err := p.hash("condition_id")
	if err != nil {
		return nil, err
	}
	indexSets, err := p.bigInts("index_sets")
	if err != nil {
		return nil, err
	}
	data, err := conditionalTokensABI.Pack("redeemPositions", collateral, [32]byte(parent), [32]byte(condition), indexSets)
	if err != nil {
		return nil, fmt.Errorf("conditional_tokens: pack redeemPositions: %w", err)
	}
	return map[string]any{"data": data}, nil
}

func addressList(p params, name string) ([]common.Address, error) {
	v, err := p.raw(name)
	if err != nil {
		return nil, err
	}
	xs, ok := v.([]common.Address)
	if !ok {
		return nil, fmt.Errorf("parameter %q: unexpected type %T", name, v)
	}
	return xs, nil
}

func hashList(p params, name string) ([]common.Hash, error) {
	v, err := p.raw(name)
	if err != nil {
		return nil, err
	}
	xs, ok := v.([]common.Hash)
	if !ok {
		return nil, fmt.Errorf("parameter %q: unexpected type %T", name, v)
	}
	return xs, nil
}

func indexSetLists(p params, name string) ([][]*big.Int, error) {
	v, err := p.raw(name)
	if err != nil {
		return nil, err
	}
	xs, ok := v.([][]*big.Int)
	if !ok {
		return nil, fmt.Errorf("parameter %q: unexpected type %T", name, v)
	}
	return xs, nil
}

func subsetOf(sets, of []*big.Int) bool {
	for _, s := range sets {
		found := false
		for _, o := range of {
			if s.Cmp(o) == 0 {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func stringList(p params, name string) ([]string, error) {
	v, err := p.raw(name)
	if err != nil {
		return nil, err
	}
	xs, ok := v.([]string)
	if !ok {
		return nil, fmt.Errorf("parameter %q: unexpected type %T", name, v)
	}
	return xs, nil
}
