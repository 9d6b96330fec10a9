package batch

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/omentrader/internal/domain"
)

// SafeTxHashHexLen is the length of a safe transaction hash with its 0x
// prefix.
const SafeTxHashHexLen = 66

// ValidSafeTxHash reports whether h is 0x followed by 64 hex digits.
func ValidSafeTxHash(h string) bool {
	if len(h) != SafeTxHashHexLen || !strings.HasPrefix(h, "0x") {
		return false
	}
	_, err := hex.DecodeString(h[2:])
	return err == nil
}

// HashPayloadToHex renders the settlement payload
//
//	hash (32) | value (32) | safeTxGas (32) | to (20) | operation (1) | data
//
// as one lower-case hex string without 0x prefix.
func HashPayloadToHex(safeTxHash string, value, safeTxGas *big.Int, to common.Address, operation domain.Operation, data []byte) (string, error) {
	if !ValidSafeTxHash(safeTxHash) {
		return "", fmt.Errorf("batch: %w: %q", domain.ErrInvalidHash, safeTxHash)
	}
	if value == nil {
		value = new(big.Int)
	}
	if safeTxGas == nil {
		safeTxGas = new(big.Int)
	}
	if value.Sign() < 0 || safeTxGas.Sign() < 0 {
		return "", fmt.Errorf("batch: negative value or gas")
	}

	var b strings.Builder
	b.Grow(64 + 64 + 64 + 40 + 2 + 2*len(data))
	b.WriteString(strings.ToLower(safeTxHash[2:]))
	b.WriteString(hex.EncodeToString(common.LeftPadBytes(value.Bytes(), 32)))
	b.WriteString(hex.EncodeToString(common.LeftPadBytes(safeTxGas.Bytes(), 32)))
	b.WriteString(hex.EncodeToString(to.Bytes()))
	b.WriteString(hex.EncodeToString([]byte{byte(operation)}))
	b.WriteString(hex.EncodeToString(data))
	return b.String(), nil
}
