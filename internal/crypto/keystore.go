// Package crypto resolves the agent's key material and computes the Safe
// transaction hashes the settlement side signs.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	keystoreVersion  = 1
)

// keystoreFile is the on-disk format of an encrypted agent key.
type keystoreFile struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig says where the agent key comes from. RawPrivateKey wins over
// EncryptedKeyPath.
type KeyConfig struct {
	RawPrivateKey    string
	EncryptedKeyPath string
	KeyPassword      string
}

// Identity is the agent's signing identity. Only the address leaves this
// package; the composer never signs.
type Identity struct {
	address common.Address
}

// Address returns the checksummed agent address.
func (id Identity) Address() common.Address { return id.address }

// String returns the agent address in hex.
func (id Identity) String() string { return id.address.Hex() }

// LoadIdentity resolves the agent key from cfg and derives its address.
func LoadIdentity(cfg KeyConfig) (Identity, error) {
	keyHex, err := loadKeyHex(cfg)
	if err != nil {
		return Identity{}, err
	}
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return Identity{}, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return Identity{address: ethcrypto.PubkeyToAddress(pk.PublicKey)}, nil
}

func loadKeyHex(cfg KeyConfig) (string, error) {
	if cfg.RawPrivateKey != "" {
		k := strings.TrimPrefix(cfg.RawPrivateKey, "0x")
		if _, err := hex.DecodeString(k); err != nil {
			return "", fmt.Errorf("crypto: raw private key is not valid hex: %w", err)
		}
		return k, nil
	}
	if cfg.EncryptedKeyPath != "" {
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return "", fmt.Errorf("crypto: read keystore: %w", err)
		}
		return DecryptKey(data, cfg.KeyPassword)
	}
	return "", errors.New("crypto: no private key source configured")
}

// EncryptKey seals a hex private key with PBKDF2-HMAC-SHA256 and AES-256-GCM
// and returns the keystore JSON.
func EncryptKey(privateKeyHex, password string) ([]byte, error) {
	keyBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("crypto: expected 32-byte key, got %d bytes", len(keyBytes))
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	gcm, err := keystoreCipher(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}

	return json.MarshalIndent(keystoreFile{
		Version:    keystoreVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, keyBytes, nil)),
	}, "", "  ")
}

// DecryptKey opens keystore JSON produced by EncryptKey and returns the
// private key hex without 0x prefix.
func DecryptKey(blob []byte, password string) (string, error) {
	var f keystoreFile
	if err := json.Unmarshal(blob, &f); err != nil {
		return "", fmt.Errorf("crypto: parse keystore: %w", err)
	}
	if f.Version != keystoreVersion {
		return "", fmt.Errorf("crypto: unsupported keystore version %d", f.Version)
	}

	fields := make([][]byte, 3)
	for i, s := range []string{f.Salt, f.Nonce, f.Ciphertext} {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return "", fmt.Errorf("crypto: decode keystore field %d: %w", i, err)
		}
		fields[i] = b
	}

	gcm, err := keystoreCipher(password, fields[0])
	if err != nil {
		return "", err
	}
	plain, err := gcm.Open(nil, fields[1], fields[2], nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}
	return hex.EncodeToString(plain), nil
}

func keystoreCipher(password string, salt []byte) (cipher.AEAD, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	return gcm, nil
}
