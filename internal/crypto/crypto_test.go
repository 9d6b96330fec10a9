package crypto

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSafeTypeHashes(t *testing.T) {
	assert.Equal(t,
		"0x47e79534a245952e8b16893a336b85a3d9ea9fa8c573f3d803afb92a79469218",
		common.BytesToHash(safeDomainTypeHash).Hex())
	assert.Equal(t,
		"0xbb8310d486368db6bd6f849402fdd73ad53d316b5a4b2644ad6efe0f941286d8",
		common.BytesToHash(safeTxTypeHash).Hex())
}

func TestSafeTxHash_MatchesManualEncoding(t *testing.T) {
	safe := common.HexToAddress("0x1111111111111111111111111111111111111111")
	multisend := common.HexToAddress("0x40A2aCCbd92BCA938b02010E17A5b8929b49130D")
	data := []byte{0x8d, 0x80, 0xff, 0x0a}
	chainID := big.NewInt(100)

	got := SafeTxHash(chainID, safe, SafeTx{
		To:        multisend,
		Data:      data,
		Operation: 1,
		Nonce:     big.NewInt(7),
	})

	word := func(n int64) []byte { return common.LeftPadBytes(big.NewInt(n).Bytes(), 32) }
	addr := func(a common.Address) []byte { return common.LeftPadBytes(a.Bytes(), 32) }

	domain := ethcrypto.Keccak256(safeDomainTypeHash, word(100), addr(safe))
	structHash := ethcrypto.Keccak256(
		safeTxTypeHash,
		addr(multisend),
		word(0),
		ethcrypto.Keccak256(data),
		word(1),
		word(0), word(0), word(0),
		addr(common.Address{}), addr(common.Address{}),
		word(7),
	)
	want := ethcrypto.Keccak256([]byte{0x19, 0x01}, domain, structHash)

	assert.Equal(t, common.BytesToHash(want), got)
}

func TestSafeTxHash_NonceChangesHash(t *testing.T) {
	safe := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tx := SafeTx{To: safe, Nonce: big.NewInt(1)}
	h1 := SafeTxHash(big.NewInt(1), safe, tx)
	tx.Nonce = big.NewInt(2)
	h2 := SafeTxHash(big.NewInt(1), safe, tx)
	assert.NotEqual(t, h1, h2)
}

func TestLoadIdentity_RawKey(t *testing.T) {
	id, err := LoadIdentity(KeyConfig{RawPrivateKey: "0x" + testKey})
	require.NoError(t, err)
	assert.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", id.String())
}

func TestLoadIdentity_EncryptedFile(t *testing.T) {
	blob, err := EncryptKey(testKey, "hunter2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "agent.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	id, err := LoadIdentity(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", id.String())

	_, err = LoadIdentity(KeyConfig{EncryptedKeyPath: path, KeyPassword: "wrong"})
	assert.Error(t, err)
}

func TestLoadIdentity_NoSource(t *testing.T) {
	_, err := LoadIdentity(KeyConfig{})
	assert.Error(t, err)
}
