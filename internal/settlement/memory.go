package settlement

import (
	"context"
	"sync"

	"github.com/alanyoungcy/omentrader/internal/domain"
)

// MemoryStore is a bounded in-process domain.ResultStore used when no
// database is configured. The oldest results are dropped first.
type MemoryStore struct {
	mu      sync.RWMutex
	max     int
	results []domain.WorkflowResult
}

// NewMemoryStore keeps at most max results.
func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = 256
	}
	return &MemoryStore{max: max}
}

func (m *MemoryStore) Insert(_ context.Context, res domain.WorkflowResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, res)
	if over := len(m.results) - m.max; over > 0 {
		m.results = append(m.results[:0:0], m.results[over:]...)
	}
	return nil
}

// ListRecent returns results newest first.
func (m *MemoryStore) ListRecent(_ context.Context, opts domain.ListOpts) ([]domain.WorkflowResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.WorkflowResult
	skipped := 0
	for i := len(m.results) - 1; i >= 0; i-- {
		r := m.results[i]
		if opts.Since != nil && r.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && r.CreatedAt.After(*opts.Until) {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, r)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

var _ domain.ResultStore = (*MemoryStore)(nil)
