package storepg

import (
	"context"
	"database/sql"
	"time"

	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/store"
)

// usageRepo is the append-only ledger backing billing reconciliation (§4.5).
type usageRepo struct{ conn namedExecer }

func (r *usageRepo) Append(ctx context.Context, row store.TokenUsage) error {
	const q = `
		INSERT INTO token_usage (tenant_id, user_id, input_tokens, output_tokens, total_tokens, ts)
		VALUES (:tenant_id, :user_id, :input_tokens, :output_tokens, :total_tokens, :ts)`
	_, err := r.conn.NamedExecContext(ctx, q, row)
	if err != nil {
		return errx.Wrap(err, "failed to append token usage", errx.TypeInternal)
	}
	return nil
}

func (r *usageRepo) SumForTenant(ctx context.Context, tenantID kernel.TenantID, since time.Time) (int64, error) {
	var sum sql.NullInt64
	const q = `SELECT SUM(total_tokens) FROM token_usage WHERE tenant_id = $1 AND ts >= $2`
	if err := r.conn.GetContext(ctx, &sum, q, tenantID.String(), since); err != nil {
		return 0, errx.Wrap(err, "failed to sum token usage", errx.TypeInternal)
	}
	return sum.Int64, nil
}
