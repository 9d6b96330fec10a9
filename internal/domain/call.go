package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Operation is the Safe execution mode of a transaction.
type Operation uint8

const (
	OperationCall         Operation = 0
	OperationDelegateCall Operation = 1
)

// CallBatchEntry is one call inside a multisend batch. Entries are immutable
// once created: the constructor and accessors copy the underlying buffers.
type CallBatchEntry struct {
	to    common.Address
	data  []byte
	value *big.Int
}

// NewCallBatchEntry builds an entry. A nil or negative value is stored as 0.
func NewCallBatchEntry(to common.Address, data []byte, value *big.Int) CallBatchEntry {
	v := new(big.Int)
	if value != nil && value.Sign() > 0 {
		v.Set(value)
	}
	return CallBatchEntry{
		to:    to,
		data:  append([]byte(nil), data...),
		value: v,
	}
}

// To returns the call target.
func (e CallBatchEntry) To() common.Address { return e.to }

// Data returns a copy of the call payload.
func (e CallBatchEntry) Data() []byte { return append([]byte(nil), e.data...) }

// Value returns a copy of the native value sent with the call.
func (e CallBatchEntry) Value() *big.Int {
	if e.value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(e.value)
}

// MultiSendTx is the tuple layout the multisend encoder consumes.
type MultiSendTx struct {
	Operation Operation
	To        common.Address
	Value     *big.Int
	Data      []byte
}
