package batch

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/omentrader/internal/domain"
)

var (
	tokenAddr  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	marketAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestAccumulator_PreservesOrder(t *testing.T) {
	acc := New()
	require.NoError(t, acc.Append(domain.NewCallBatchEntry(tokenAddr, []byte{0x01}, nil)))
	require.NoError(t, acc.Append(domain.NewCallBatchEntry(marketAddr, []byte{0x02}, big.NewInt(3))))

	list := acc.EncodableList()
	require.Len(t, list, 2)
	assert.Equal(t, tokenAddr, list[0].To)
	assert.Equal(t, marketAddr, list[1].To)
	assert.Equal(t, domain.OperationCall, list[1].Operation)
	assert.Equal(t, int64(3), list[1].Value.Int64())
	assert.Zero(t, list[0].Value.Sign())
}

func TestAccumulator_AppendAfterSealFails(t *testing.T) {
	acc := New()
	require.NoError(t, acc.Append(domain.NewCallBatchEntry(tokenAddr, nil, nil)))
	require.NoError(t, acc.Seal())

	err := acc.Append(domain.NewCallBatchEntry(marketAddr, nil, nil))
	assert.ErrorIs(t, err, domain.ErrSealed)
	assert.Equal(t, 1, acc.Len())
}

func TestAccumulator_EmptyBatchCannotSeal(t *testing.T) {
	acc := New()
	assert.ErrorIs(t, acc.Seal(), domain.ErrEmptyBatch)
	assert.False(t, acc.Sealed())
}

func TestAccumulator_EntriesAreCopies(t *testing.T) {
	data := []byte{0xaa}
	acc := New()
	require.NoError(t, acc.Append(domain.NewCallBatchEntry(tokenAddr, data, nil)))
	data[0] = 0xbb

	got := acc.EncodableList()[0].Data
	assert.Equal(t, []byte{0xaa}, got)
	got[0] = 0xcc
	assert.Equal(t, []byte{0xaa}, acc.Entries()[0].Data())
}

func TestHashPayloadToHex_Layout(t *testing.T) {
	hash := "0x" + strings.Repeat("ab", 32)
	to := common.HexToAddress("0x40A2aCCbd92BCA938b02010E17A5b8929b49130D")
	data := []byte{0x8d, 0x80, 0xff, 0x0a}

	out, err := HashPayloadToHex(hash, big.NewInt(0), big.NewInt(0), to, domain.OperationDelegateCall, data)
	require.NoError(t, err)

	require.Len(t, out, 64+64+64+40+2+8)
	assert.Equal(t, strings.Repeat("ab", 32), out[:64])
	assert.Equal(t, strings.Repeat("0", 64), out[64:128])
	assert.Equal(t, strings.Repeat("0", 64), out[128:192])
	assert.Equal(t, "40a2accbd92bca938b02010e17a5b8929b49130d", out[192:232])
	assert.Equal(t, "01", out[232:234])
	assert.Equal(t, "8d80ff0a", out[234:])
	assert.NotContains(t, out, "0x")
}

func TestHashPayloadToHex_GasEncoding(t *testing.T) {
	hash := "0x" + strings.Repeat("00", 32)
	out, err := HashPayloadToHex(hash, nil, big.NewInt(0x1234), common.Address{}, domain.OperationCall, nil)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("0", 60)+"1234", out[128:192])
	assert.Equal(t, "00", out[232:234])
}

func TestHashPayloadToHex_RejectsBadHash(t *testing.T) {
	for _, h := range []string{
		"",
		strings.Repeat("ab", 32),
		"0x" + strings.Repeat("ab", 31),
		"0x" + strings.Repeat("zz", 32),
	} {
		_, err := HashPayloadToHex(h, nil, nil, common.Address{}, domain.OperationDelegateCall, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidHash, h)
	}
}
