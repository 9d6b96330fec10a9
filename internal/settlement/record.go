// Package settlement hands finished workflow results to the settlement
// side: a Redis stream and channel, the results table, an S3 archive, the
// audit log and operator notifications.
package settlement

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/alanyoungcy/omentrader/internal/domain"
)

// Record is the wire form of a WorkflowResult.
type Record struct {
	RunID            string    `json:"run_id"`
	Workflow         string    `json:"workflow"`
	AgentAddress     string    `json:"agent_address"`
	Submitter        *string   `json:"submitter"`
	TxHex            *string   `json:"tx_hex"`
	ExpectedWinnings string    `json:"expected_winnings,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewRecord converts res.
func NewRecord(res domain.WorkflowResult) Record {
	r := Record{
		RunID:        res.RunID,
		Workflow:     string(res.Workflow),
		AgentAddress: res.AgentAddress,
		Submitter:    res.Submitter,
		TxHex:        res.TxHex,
		CreatedAt:    res.CreatedAt.UTC(),
	}
	if res.ExpectedWinnings != nil {
		r.ExpectedWinnings = res.ExpectedWinnings.String()
	}
	return r
}

// Result converts r back.
func (r Record) Result() (domain.WorkflowResult, error) {
	res := domain.WorkflowResult{
		RunID:        r.RunID,
		Workflow:     domain.WorkflowKind(r.Workflow),
		AgentAddress: r.AgentAddress,
		Submitter:    r.Submitter,
		TxHex:        r.TxHex,
		CreatedAt:    r.CreatedAt,
	}
	if r.ExpectedWinnings != "" {
		n, ok := new(big.Int).SetString(r.ExpectedWinnings, 10)
		if !ok {
			return domain.WorkflowResult{}, fmt.Errorf("settlement: invalid expected_winnings %q", r.ExpectedWinnings)
		}
		res.ExpectedWinnings = n
	}
	return res, nil
}

// Encode marshals res as a Record.
func Encode(res domain.WorkflowResult) ([]byte, error) {
	return json.Marshal(NewRecord(res))
}

// ArchiveKey is the object key a result with a payload is archived under.
func ArchiveKey(res domain.WorkflowResult) string {
	t := res.CreatedAt.UTC()
	return fmt.Sprintf("payloads/%04d/%02d/%02d/%s-%s.json", t.Year(), t.Month(), t.Day(), res.RunID, res.Workflow)
}
