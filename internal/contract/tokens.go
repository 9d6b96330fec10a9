package contract

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// erc20CheckBalance reads the token balance and native wallet balance of
// "account".
func (s *Service) erc20CheckBalance(ctx context.Context, token common.Address, p params) (map[string]any, error) {
	account, err := p.address("account")
	if err != nil {
		return nil, err
	}
	balance, err := s.viewUint(ctx, token, erc20ABI, "balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("erc20: %w", err)
	}
	wallet, err := s.chain.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("erc20: native balance: %w", err)
	}
	return map[string]any{"balance": balance, "wallet": wallet}, nil
}

func (s *Service) erc20BuildApproval(_ context.Context, _ common.Address, p params) (map[string]any, error) {
	spender, err := p.address("spender")
	if err != nil {
		return nil, err
	}
	amount, err := p.bigInt("amount")
	if err != nil {
		return nil, err
	}
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("erc20: pack approve: %w", err)
	}
	return map[string]any{"data": data}, nil
}

// fpmmCalcBuyAmount quotes the outcome tokens obtainable for an investment.
func (s *Service) fpmmCalcBuyAmount(ctx context.Context, market common.Address, p params) (map[string]any, error) {
	investment, err := p.bigInt("investment_amount")
	if err != nil {
		return nil, err
	}
	outcome, err := p.bigInt("outcome_index")
	if err != nil {
		return nil, err
	}
	amount, err := s.viewUint(ctx, market, fpmmABI, "calcBuyAmount", investment, outcome)
	if err != nil {
		return nil, fmt.Errorf("fpmm: %w", err)
	}
	return map[string]any{"amount": amount}, nil
}

func (s *Service) fpmmBuyData(_ context.Context, _ common.Address, p params) (map[string]any, error) {
	investment, err := p.bigInt("investment_amount")
	if err != nil {
		return nil, err
	}
	outcome, err := p.bigInt("outcome_index")
	if err != nil {
		return nil, err
	}
	minTokens, err := p.bigInt("min_outcome_tokens_to_buy")
	if err != nil {
		return nil, err
	}
	data, err := fpmmABI.Pack("buy", investment, outcome, minTokens)
	if err != nil {
		return nil, fmt.Errorf("fpmm: pack buy: %w", err)
	}
	return map[string]any{"data": data}, nil
}
