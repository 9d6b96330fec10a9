package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/omentrader/internal/domain"
)

// ResultStore implements domain.ResultStore on the workflow_results table.
type ResultStore struct {
	pool *pgxpool.Pool
}

// NewResultStore creates a ResultStore on pool.
func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

// Insert records res. Re-inserting the same run and workflow is a no-op.
func (s *ResultStore) Insert(ctx context.Context, res domain.WorkflowResult) error {
	const query = `
		INSERT INTO workflow_results (run_id, workflow, agent_address, submitter, tx_hex, expected_winnings, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::TEXT::NUMERIC, $7)
		ON CONFLICT (run_id, workflow) DO NOTHING`
	var winnings *string
	if res.ExpectedWinnings != nil {
		w := res.ExpectedWinnings.String()
		winnings = &w
	}
	if _, err := s.pool.Exec(ctx, query,
		res.RunID, string(res.Workflow), res.AgentAddress, res.Submitter, res.TxHex, winnings, res.CreatedAt,
	); err != nil {
		return fmt.Errorf("postgres: insert result %s/%s: %w", res.RunID, res.Workflow, err)
	}
	return nil
}

// ListRecent returns results newest first.
func (s *ResultStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.WorkflowResult, error) {
	query, args := listQuery(`
		SELECT id, run_id, workflow, agent_address, submitter, tx_hex, expected_winnings::TEXT, created_at
		FROM workflow_results WHERE TRUE`, opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list results: %w", err)
	}
	defer rows.Close()

	var out []domain.WorkflowResult
	for rows.Next() {
		var (
			id       int64
			res      domain.WorkflowResult
			workflow string
			winnings *string
		)
		if err := rows.Scan(&id, &res.RunID, &workflow, &res.AgentAddress, &res.Submitter, &res.TxHex, &winnings, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan result: %w", err)
		}
		res.Workflow = domain.WorkflowKind(workflow)
		if winnings != nil {
			n, ok := new(big.Int).SetString(*winnings, 10)
			if !ok {
				return nil, fmt.Errorf("postgres: result %d: invalid expected_winnings %q", id, *winnings)
			}
			res.ExpectedWinnings = n
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list results: %w", err)
	}
	return out, nil
}

var _ domain.ResultStore = (*ResultStore)(nil)
