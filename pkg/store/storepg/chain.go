package storepg

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/store"
	"github.com/lib/pq"
)

// chainRepo backs C13 ChainExecutor's definition lookups. Database rows are
// authoritative; pkg/chainexecutor/chainfile offers import/export to the
// legacy on-disk format as a convenience layer only (SPEC_FULL.md Open
// Question #3).
type chainRepo struct{ conn namedExecer }

type stepRow struct {
	ChainID           string         `db:"chain_id"`
	StepNumber        int            `db:"step_number"`
	AgentName         string         `db:"agent_name"`
	PromptType        string         `db:"prompt_type"`
	PromptArgs        sql.NullString `db:"prompt_args"`
	RunNextConcurrent bool           `db:"run_next_concurrent"`
}

func (row stepRow) toDomain() (*store.Step, error) {
	s := &store.Step{
		ChainID:           row.ChainID,
		StepNumber:        row.StepNumber,
		AgentName:         row.AgentName,
		PromptType:        store.PromptType(row.PromptType),
		RunNextConcurrent: row.RunNextConcurrent,
	}
	if row.PromptArgs.Valid && row.PromptArgs.String != "" {
		if err := json.Unmarshal([]byte(row.PromptArgs.String), &s.PromptArgs); err != nil {
			return nil, errx.Wrap(err, "failed to decode step prompt_args", errx.TypeInternal)
		}
	}
	return s, nil
}

func stepToRow(s store.Step) (stepRow, error) {
	row := stepRow{
		ChainID:           s.ChainID,
		StepNumber:        s.StepNumber,
		AgentName:         s.AgentName,
		PromptType:        string(s.PromptType),
		RunNextConcurrent: s.RunNextConcurrent,
	}
	if len(s.PromptArgs) > 0 {
		b, err := json.Marshal(s.PromptArgs)
		if err != nil {
			return stepRow{}, errx.Wrap(err, "failed to encode step prompt_args", errx.TypeInternal)
		}
		row.PromptArgs = sql.NullString{String: string(b), Valid: true}
	}
	return row, nil
}

func (r *chainRepo) FindByName(ctx context.Context, tenantID kernel.TenantID, name string) (*store.Chain, error) {
	var c store.Chain
	const q = `SELECT * FROM chains WHERE tenant_id = $1 AND name = $2`
	if err := r.conn.GetContext(ctx, &c, q, tenantID.String(), name); err != nil {
		if err == sql.ErrNoRows {
			return nil, errx.New("chain not found", errx.TypeNotFound)
		}
		return nil, errx.Wrap(err, "failed to find chain by name", errx.TypeInternal)
	}
	return &c, nil
}

func (r *chainRepo) Steps(ctx context.Context, chainID string) ([]*store.Step, error) {
	var rows []stepRow
	const q = `SELECT * FROM steps WHERE chain_id = $1 ORDER BY step_number ASC`
	if err := r.conn.SelectContext(ctx, &rows, q, chainID); err != nil {
		return nil, errx.Wrap(err, "failed to load chain steps", errx.TypeInternal)
	}
	out := make([]*store.Step, len(rows))
	for i, row := range rows {
		s, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func (r *chainRepo) Create(ctx context.Context, c store.Chain) error {
	const q = `INSERT INTO chains (id, tenant_id, name, created_at) VALUES (:id, :tenant_id, :name, :created_at)`
	_, err := r.conn.NamedExecContext(ctx, q, c)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return errx.New("a chain with that name already exists", errx.TypeConflict)
		}
		return errx.Wrap(err, "failed to create chain", errx.TypeInternal)
	}
	return nil
}

func (r *chainRepo) AddStep(ctx context.Context, s store.Step) error {
	row, err := stepToRow(s)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO steps (chain_id, step_number, agent_name, prompt_type, prompt_args, run_next_concurrent)
		VALUES (:chain_id, :step_number, :agent_name, :prompt_type, :prompt_args, :run_next_concurrent)
		ON CONFLICT (chain_id, step_number) DO UPDATE SET
			agent_name = EXCLUDED.agent_name,
			prompt_type = EXCLUDED.prompt_type,
			prompt_args = EXCLUDED.prompt_args,
			run_next_concurrent = EXCLUDED.run_next_concurrent`
	if _, err := r.conn.NamedExecContext(ctx, q, row); err != nil {
		return errx.Wrap(err, "failed to add chain step", errx.TypeInternal)
	}
	return nil
}

func (r *chainRepo) Delete(ctx context.Context, chainID string) error {
	const q = `DELETE FROM chains WHERE id = $1`
	res, err := r.conn.ExecContext(ctx, q, chainID)
	if err != nil {
		return errx.Wrap(err, "failed to delete chain", errx.TypeInternal)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errx.New("chain not found", errx.TypeNotFound)
	}
	return nil
}
