package contract

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type answerEntry struct {
	block       uint64
	index       uint
	answer      common.Hash
	historyHash common.Hash
	user        common.Address
	bond        *big.Int
}

// realitioBuildClaim encodes claimWinnings for a question from its
// LogNewAnswer history starting at "from_block" (0 or "earliest" when absent).
// Arrays run from the newest answer back to the first; each entry carries the
// history hash that preceded it, the first answer's being zero.
func (s *Service) realitioBuildClaim(ctx context.Context, realitio common.Address, p params) (map[string]any, error) {
	questionID, err := p.hash("question_id")
	if err != nil {
		return nil, err
	}
	fromBlock, err := p.optionalUint("from_block", 0)
	if err != nil {
		return nil, err
	}

	event := realitioABI.Events["LogNewAnswer"]
	logs, err := s.chain.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{realitio},
		Topics:    [][]common.Hash{{event.ID}, {questionID}},
	})
	if err != nil {
		return nil, fmt.Errorf("realitio: filter LogNewAnswer: %w", err)
	}
	if len(logs) == 0 {
		return nil, fmt.Errorf("realitio: no answers for question %s since block %d", questionID.Hex(), fromBlock)
	}

	entries := make([]answerEntry, 0, len(logs))
	for _, lg := range logs {
		e, err := decodeAnswer(lg)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].block != entries[j].block {
			return entries[i].block < entries[j].block
		}
		return entries[i].index < entries[j].index
	})

	n := len(entries)
	histories := make([][32]byte, n)
	addrs := make([]common.Address, n)
	bonds := make([]*big.Int, n)
	answers := make([][32]byte, n)
	for i := 0; i < n; i++ {
		e := entries[n-1-i]
		if n-2-i >= 0 {
			histories[i] = entries[n-2-i].historyHash
		}
		addrs[i] = e.user
		bonds[i] = e.bond
		answers[i] = e.answer
	}

	data, err := realitioABI.Pack("claimWinnings", [32]byte(questionID), histories, addrs, bonds, answers)
	if err != nil {
		return nil, fmt.Errorf("realitio: pack claimWinnings: %w", err)
	}
	return map[string]any{"data": data}, nil
}

func decodeAnswer(lg types.Log) (answerEntry, error) {
	if len(lg.Topics) < 3 {
		return answerEntry{}, fmt.Errorf("realitio: LogNewAnswer with %d topics", len(lg.Topics))
	}
	values, err := realitioABI.Events["LogNewAnswer"].Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return answerEntry{}, fmt.Errorf("realitio: decode LogNewAnswer: %w", err)
	}
	if len(values) != 5 {
		return answerEntry{}, fmt.Errorf("realitio: decode LogNewAnswer: got %d values", len(values))
	}
	answer, ok1 := values[0].([32]byte)
	history, ok2 := values[1].([32]byte)
	bond, ok3 := values[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return answerEntry{}, fmt.Errorf("realitio: decode LogNewAnswer: unexpected types")
	}
	return answerEntry{
		block:       lg.BlockNumber,
		index:       lg.Index,
		answer:      answer,
		historyHash: history,
		user:        common.BytesToAddress(lg.Topics[2].Bytes()),
		bond:        bond,
	}, nil
}

func (s *Service) proxyBuildResolve(_ context.Context, _ common.Address, p params) (map[string]any, error) {
	questionID, err := p.hash("question_id")
	if err != nil {
		return nil, err
	}
	templateID, err := p.bigInt("template_id")
	if err != nil {
		return nil, err
	}
	question, err := p.str("question")
	if err != nil {
		return nil, err
	}
	numOutcomes, err := p.bigInt("num_outcomes")
	if err != nil {
		return nil, err
	}
	data, err := realitioProxyABI.Pack("resolve", [32]byte(questionID), templateID, question, numOutcomes)
	if err != nil {
		return nil, fmt.Errorf("realitio_proxy: pack resolve: %w", err)
	}
	return map[string]any{"data": data}, nil
}
