package crypto

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes for Gnosis Safe >= 1.3.0.
// --------------------------------------------------------------------------

var (
	// EIP712Domain(uint256 chainId,address verifyingContract)
	safeDomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(uint256 chainId,address verifyingContract)"),
	)

	// SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)
	safeTxTypeHash = ethcrypto.Keccak256(
		[]byte("SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)"),
	)
)

// SafeTx holds the fields of a Safe transaction that are covered by its
// EIP-712 hash. Nil integers encode as zero.
type SafeTx struct {
	To             common.Address
	Value          *big.Int
	Data           []byte
	Operation      uint8
	SafeTxGas      *big.Int
	BaseGas        *big.Int
	GasPrice       *big.Int
	GasToken       common.Address
	RefundReceiver common.Address
	Nonce          *big.Int
}

// SafeTxHash returns the hash the Safe owners sign for tx on the Safe at
// safe, on chain chainID.
func SafeTxHash(chainID *big.Int, safe common.Address, tx SafeTx) common.Hash {
	return common.BytesToHash(eip712Hash(safeDomainSeparator(chainID, safe), safeTxStructHash(tx)))
}

// safeDomainSeparator returns keccak256(abi.encode(typeHash, chainId, safe)).
func safeDomainSeparator(chainID *big.Int, safe common.Address) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			safeDomainTypeHash,
			bigIntTo32Bytes(chainID),
			common.LeftPadBytes(safe.Bytes(), 32),
		),
	)
}

func safeTxStructHash(tx SafeTx) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			safeTxTypeHash,
			common.LeftPadBytes(tx.To.Bytes(), 32),
			bigIntTo32Bytes(tx.Value),
			ethcrypto.Keccak256(tx.Data),
			bigIntTo32Bytes(big.NewInt(int64(tx.Operation))),
			bigIntTo32Bytes(tx.SafeTxGas),
			bigIntTo32Bytes(tx.BaseGas),
			bigIntTo32Bytes(tx.GasPrice),
			common.LeftPadBytes(tx.GasToken.Bytes(), 32),
			common.LeftPadBytes(tx.RefundReceiver.Bytes(), 32),
			bigIntTo32Bytes(tx.Nonce),
		),
	)
}

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n; nil is 0.
func bigIntTo32Bytes(n *big.Int) []byte {
	if n == nil {
		return make([]byte, 32)
	}
	return common.LeftPadBytes(n.Bytes(), 32)
}

func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
