package contract

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// params wraps the named parameters of a request with typed accessors. Each
// accessor accepts the native Go type and its common textual form.
type params map[string]any

func (p params) raw(name string) (any, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return nil, fmt.Errorf("missing parameter %q", name)
	}
	return v, nil
}

func (p params) address(name string) (common.Address, error) {
	v, err := p.raw(name)
	if err != nil {
		return common.Address{}, err
	}
	switch a := v.(type) {
	case common.Address:
		return a, nil
	case string:
		if !common.IsHexAddress(a) {
			return common.Address{}, fmt.Errorf("parameter %q: invalid address %q", name, a)
		}
		return common.HexToAddress(a), nil
	default:
		return common.Address{}, fmt.Errorf("parameter %q: unexpected type %T", name, v)
	}
}

func (p params) bigInt(name string) (*big.Int, error) {
	v, err := p.raw(name)
	if err != nil {
		return nil, err
	}
	n, err := toBig(v)
	if err != nil {
		return nil, fmt.Errorf("parameter %q: %w", name, err)
	}
	return n, nil
}

func (p params) hash(name string) (common.Hash, error) {
	v, err := p.raw(name)
	if err != nil {
		return common.Hash{}, err
	}
	h, err := toHash(v)
	if err != nil {
		return common.Hash{}, fmt.Errorf("parameter %q: %w", name, err)
	}
	return h, nil
}

func (p params) bytes(name string) ([]byte, error) {
	v, err := p.raw(name)
	if err != nil {
		return nil, err
	}
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		if b == "" || b == "0x" {
			return []byte{}, nil
		}
		out, err := hexutil.Decode(b)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("parameter %q: unexpected type %T", name, v)
	}
}

func (p params) str(name string) (string, error) {
	v, err := p.raw(name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q: unexpected type %T", name, v)
	}
	return s, nil
}

// optionalUint returns def when name is absent.
func (p params) optionalUint(name string, def uint64) (uint64, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	if s, ok := v.(string); ok && strings.EqualFold(s, "earliest") {
		return 0, nil
	}
	n, err := toBig(v)
	if err != nil {
		return 0, fmt.Errorf("parameter %q: %w", name, err)
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("parameter %q: out of range", name)
	}
	return n.Uint64(), nil
}

func (p params) bigInts(name string) ([]*big.Int, error) {
	v, err := p.raw(name)
	if err != nil {
		return nil, err
	}
	switch xs := v.(type) {
	case []*big.Int:
		return xs, nil
	case []int:
		out := make([]*big.Int, len(xs))
		for i, x := range xs {
			out[i] = big.NewInt(int64(x))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("parameter %q: unexpected type %T", name, v)
	}
}

func toBig(v any) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, fmt.Errorf("nil integer")
		}
		return new(big.Int).Set(n), nil
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case uint8:
		return big.NewInt(int64(n)), nil
	case string:
		out, ok := new(big.Int).SetString(n, 0)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", n)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected integer type %T", v)
	}
}

func toHash(v any) (common.Hash, error) {
	switch h := v.(type) {
	case common.Hash:
		return h, nil
	case [32]byte:
		return common.Hash(h), nil
	case []byte:
		if len(h) != common.HashLength {
			return common.Hash{}, fmt.Errorf("expected 32 bytes, got %d", len(h))
		}
		return common.BytesToHash(h), nil
	case string:
		b, err := hexutil.Decode(h)
		if err != nil {
			return common.Hash{}, err
		}
		if len(b) != common.HashLength {
			return common.Hash{}, fmt.Errorf("expected 32 bytes, got %d", len(b))
		}
		return common.BytesToHash(b), nil
	default:
		return common.Hash{}, fmt.Errorf("unexpected hash type %T", v)
	}
}
