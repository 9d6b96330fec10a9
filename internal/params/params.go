// Package params holds the trader parameters that can be changed while the
// agent runs. Workflows take a Snapshot at the start of a run.
package params

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/omentrader/internal/domain"
)

// Names of the updatable parameters.
const (
	DustThreshold         = "dust_threshold"
	RedeemingBatchSize    = "redeeming_batch_size"
	SleepTime             = "sleep_time"
	TradesPageSize        = "trades_page_size"
	BetAmountPerThreshold = "bet_amount_per_threshold"
)

// Snapshot is an immutable view of the parameters.
type Snapshot struct {
	DustThreshold         *big.Int
	RedeemingBatchSize    int
	SleepTime             time.Duration
	TradesPageSize        int
	BetAmountPerThreshold map[string]*big.Int
}

// BetAmount maps a confidence score to the investment amount. Confidence is
// rounded to one decimal ("0.8") before lookup.
func (s Snapshot) BetAmount(confidence float64) (*big.Int, error) {
	k := ThresholdKey(confidence)
	amount, ok := s.BetAmountPerThreshold[k]
	if !ok || amount == nil {
		return nil, fmt.Errorf("params: %w %s", domain.ErrMissingBetAmount, k)
	}
	return new(big.Int).Set(amount), nil
}

// ThresholdKey formats confidence the way bet amount thresholds are keyed.
func ThresholdKey(confidence float64) string {
	return strconv.FormatFloat(math.Round(confidence*10)/10, 'f', 1, 64)
}

// Values returns the snapshot keyed by parameter name, for API responses.
func (s Snapshot) Values() map[string]any {
	return map[string]any{
		DustThreshold:         s.DustThreshold,
		RedeemingBatchSize:    s.RedeemingBatchSize,
		SleepTime:             s.SleepTime.Seconds(),
		TradesPageSize:        s.TradesPageSize,
		BetAmountPerThreshold: s.BetAmountPerThreshold,
	}
}

func (s Snapshot) clone() Snapshot {
	out := s
	if s.DustThreshold != nil {
		out.DustThreshold = new(big.Int).Set(s.DustThreshold)
	}
	out.BetAmountPerThreshold = make(map[string]*big.Int, len(s.BetAmountPerThreshold))
	for k, v := range s.BetAmountPerThreshold {
		out.BetAmountPerThreshold[k] = new(big.Int).Set(v)
	}
	return out
}

// UnknownParamError is returned by Update for a name that is not a
// parameter.
type UnknownParamError struct{ Name string }

func (e *UnknownParamError) Error() string { return "No parameter " + e.Name + "." }

func (e *UnknownParamError) Unwrap() error { return domain.ErrUnknownParam }

// Store is the live parameter set.
type Store struct {
	mu  sync.RWMutex
	cur Snapshot
}

// NewStore creates a Store holding initial.
func NewStore(initial Snapshot) *Store {
	return &Store{cur: initial.clone()}
}

// Snapshot returns a copy of the current parameters.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.clone()
}

// SleepTime returns the current retry pause.
func (s *Store) SleepTime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.SleepTime
}

// Update applies every change in updates or none of them. It returns the
// previous and new values of the changed parameters.
func (s *Store) Update(updates map[string]json.RawMessage) (old, updated map[string]any, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(updates))
	for name := range updates {
		names = append(names, name)
	}
	sort.Strings(names)

	current := s.cur.Values()
	for _, name := range names {
		if _, ok := current[name]; !ok {
			return nil, nil, &UnknownParamError{Name: name}
		}
	}

	next := s.cur.clone()
	for _, name := range names {
		if err := apply(&next, name, updates[name]); err != nil {
			return nil, nil, fmt.Errorf("params: %s: %w", name, err)
		}
	}

	nextValues := next.Values()
	old = make(map[string]any, len(names))
	updated = make(map[string]any, len(names))
	for _, name := range names {
		old[name] = current[name]
		updated[name] = nextValues[name]
	}
	s.cur = next
	return old, updated, nil
}

func apply(s *Snapshot, name string, raw json.RawMessage) error {
	switch name {
	case DustThreshold:
		n, err := decodeBig(raw)
		if err != nil {
			return err
		}
		if n.Sign() < 0 {
			return fmt.Errorf("must be >= 0")
		}
		s.DustThreshold = n
	case RedeemingBatchSize:
		n, err := decodeInt(raw)
		if err != nil {
			return err
		}
		if n < 1 {
			return fmt.Errorf("must be >= 1")
		}
		s.RedeemingBatchSize = n
	case SleepTime:
		n, err := decodeInt(raw)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("must be >= 0")
		}
		s.SleepTime = time.Duration(n) * time.Second
	case TradesPageSize:
		n, err := decodeInt(raw)
		if err != nil {
			return err
		}
		if n < 1 {
			return fmt.Errorf("must be >= 1")
		}
		s.TradesPageSize = n
	case BetAmountPerThreshold:
		var m map[string]json.RawMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		amounts := make(map[string]*big.Int, len(m))
		for k, v := range m {
			f, err := strconv.ParseFloat(k, 64)
			if err != nil {
				return fmt.Errorf("threshold %q: %w", k, err)
			}
			n, err := decodeBig(v)
			if err != nil {
				return fmt.Errorf("threshold %q: %w", k, err)
			}
			if n.Sign() < 0 {
				return fmt.Errorf("threshold %q: must be >= 0", k)
			}
			amounts[ThresholdKey(f)] = n
		}
		s.BetAmountPerThreshold = amounts
	}
	return nil
}

// decodeBig accepts a JSON integer or a decimal string.
func decodeBig(raw json.RawMessage) (*big.Int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		raw = []byte(s)
	}
	n, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %s", raw)
	}
	return n, nil
}

func decodeInt(raw json.RawMessage) (int, error) {
	n, err := decodeBig(raw)
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() || n.Int64() > math.MaxInt32 || n.Int64() < math.MinInt32 {
		return 0, fmt.Errorf("out of range")
	}
	return int(n.Int64()), nil
}
