// Package batch accumulates the calls of one workflow run and renders the
// final settlement payload.
package batch

import (
	"github.com/alanyoungcy/omentrader/internal/domain"
)

// Accumulator is the ordered call list of a single workflow run. Append
// order is execution order. It is not safe for concurrent use; a run owns
// its accumulator exclusively.
type Accumulator struct {
	entries []domain.CallBatchEntry
	sealed  bool
}

// New returns an empty accumulator.
func New() *Accumulator { return &Accumulator{} }

// Append adds e at the end of the batch. It fails once the batch has been
// encoded.
func (a *Accumulator) Append(e domain.CallBatchEntry) error {
	if a.sealed {
		return domain.ErrSealed
	}
	a.entries = append(a.entries, e)
	return nil
}

// Len returns the number of entries.
func (a *Accumulator) Len() int { return len(a.entries) }

// Entries returns a copy of the entries in order.
func (a *Accumulator) Entries() []domain.CallBatchEntry {
	return append([]domain.CallBatchEntry(nil), a.entries...)
}

// EncodableList returns the batch as multisend tuples. Every entry is a
// plain CALL.
func (a *Accumulator) EncodableList() []domain.MultiSendTx {
	out := make([]domain.MultiSendTx, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, domain.MultiSendTx{
			Operation: domain.OperationCall,
			To:        e.To(),
			Value:     e.Value(),
			Data:      e.Data(),
		})
	}
	return out
}

// Seal marks the batch as encoded. It returns ErrEmptyBatch for an empty
// batch, which must never be hashed.
func (a *Accumulator) Seal() error {
	if len(a.entries) == 0 {
		return domain.ErrEmptyBatch
	}
	a.sealed = true
	return nil
}

// Sealed reports whether Seal has succeeded.
func (a *Accumulator) Sealed() bool { return a.sealed }
