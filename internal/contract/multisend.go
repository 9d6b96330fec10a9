package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/omentrader/internal/crypto"
	"github.com/alanyoungcy/omentrader/internal/domain"
)

// PackMultiSend encodes txs in the Gnosis MultiSend packed layout:
//
//	operation (1) | to (20) | value (32) | data length (32) | data
//
// and wraps the result in a multiSend(bytes) call.
func PackMultiSend(txs []domain.MultiSendTx) ([]byte, error) {
	var packed []byte
	for _, tx := range txs {
		value := tx.Value
		if value == nil {
			value = new(big.Int)
		}
		if value.Sign() < 0 {
			return nil, fmt.Errorf("multisend: negative value for %s", tx.To.Hex())
		}
		packed = append(packed, byte(tx.Operation))
		packed = append(packed, tx.To.Bytes()...)
		packed = append(packed, common.LeftPadBytes(value.Bytes(), 32)...)
		packed = append(packed, common.LeftPadBytes(big.NewInt(int64(len(tx.Data))).Bytes(), 32)...)
		packed = append(packed, tx.Data...)
	}
	return multisendABI.Pack("multiSend", packed)
}

func (s *Service) multisendTxData(_ context.Context, _ common.Address, p params) (map[string]any, error) {
	v, err := p.raw("multi_send_txs")
	if err != nil {
		return nil, err
	}
	txs, ok := v.([]domain.MultiSendTx)
	if !ok {
		return nil, fmt.Errorf("parameter %q: unexpected type %T", "multi_send_txs", v)
	}
	data, err := PackMultiSend(txs)
	if err != nil {
		return nil, err
	}
	return map[string]any{"data": hexutil.Encode(data)}, nil
}

// safeTxHash reads the Safe's current nonce and returns the EIP-712 hash of
// the described transaction. Gas refund fields are zero.
func (s *Service) safeTxHash(ctx context.Context, safe common.Address, p params) (map[string]any, error) {
	to, err := p.address("to_address")
	if err != nil {
		return nil, err
	}
	value, err := p.bigInt("value")
	if err != nil {
		return nil, err
	}
	data, err := p.bytes("data")
	if err != nil {
		return nil, err
	}
	gas, err := p.bigInt("safe_tx_gas")
	if err != nil {
		return nil, err
	}
	op, err := p.bigInt("operation")
	if err != nil {
		return nil, err
	}
	if !op.IsUint64() || op.Uint64() > 1 {
		return nil, fmt.Errorf("gnosis_safe: invalid operation %s", op)
	}

	nonce, err := s.viewUint(ctx, safe, safeABI, "nonce")
	if err != nil {
		return nil, fmt.Errorf("gnosis_safe: %w", err)
	}

	h := crypto.SafeTxHash(s.chainID, safe, crypto.SafeTx{
		To:        to,
		Value:     value,
		Data:      data,
		Operation: uint8(op.Uint64()),
		SafeTxGas: gas,
		Nonce:     nonce,
	})
	return map[string]any{"tx_hash": h.Hex()}, nil
}
