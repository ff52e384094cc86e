package storepg

import (
	"context"
	"database/sql"

	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/store"
)

type tenantRepo struct{ conn namedExecer }

type tenantRow struct {
	ID                    string         `db:"id"`
	Name                  string         `db:"name"`
	ParentID              sql.NullString `db:"parent_id"`
	AgentName             string         `db:"agent_name"`
	TokenBalance          int64          `db:"token_balance"`
	TokenBalanceUSD       float64        `db:"token_balance_usd"`
	TokensUsedTotal       int64          `db:"tokens_used_total"`
	UserLimit             int            `db:"user_limit"`
	PricingMode           string         `db:"pricing_mode"`
	LastLowBalanceWarning sql.NullTime   `db:"last_low_balance_warning"`
	TrainingData          sql.NullString `db:"training_data"`
	Status                string         `db:"status"`
	CreatedAt             sql.NullTime   `db:"created_at"`
	UpdatedAt             sql.NullTime   `db:"updated_at"`
}

func (row tenantRow) toDomain() *store.Tenant {
	t := &store.Tenant{
		ID:              kernel.NewTenantID(row.ID),
		Name:            row.Name,
		AgentName:       row.AgentName,
		TokenBalance:    row.TokenBalance,
		TokenBalanceUSD: row.TokenBalanceUSD,
		TokensUsedTotal: row.TokensUsedTotal,
		UserLimit:       row.UserLimit,
		PricingMode:     row.PricingMode,
		TrainingData:    row.TrainingData.String,
		Status:          store.TenantStatus(row.Status),
		CreatedAt:       row.CreatedAt.Time,
		UpdatedAt:       row.UpdatedAt.Time,
	}
	if row.ParentID.Valid {
		id := kernel.NewTenantID(row.ParentID.String)
		t.ParentID = &id
	}
	if row.LastLowBalanceWarning.Valid {
		t.LastLowBalanceWarning = &row.LastLowBalanceWarning.Time
	}
	return t
}

func tenantToRow(t store.Tenant) tenantRow {
	pricingMode := t.PricingMode
	if pricingMode == "" {
		pricingMode = "user"
	}
	row := tenantRow{
		ID:              t.ID.String(),
		Name:            t.Name,
		AgentName:       t.AgentName,
		TokenBalance:    t.TokenBalance,
		TokenBalanceUSD: t.TokenBalanceUSD,
		TokensUsedTotal: t.TokensUsedTotal,
		UserLimit:       t.UserLimit,
		PricingMode:     pricingMode,
		TrainingData:    sql.NullString{String: t.TrainingData, Valid: t.TrainingData != ""},
		Status:          string(t.Status),
		CreatedAt:       sql.NullTime{Time: t.CreatedAt, Valid: !t.CreatedAt.IsZero()},
		UpdatedAt:       sql.NullTime{Time: t.UpdatedAt, Valid: !t.UpdatedAt.IsZero()},
	}
	if t.ParentID != nil {
		row.ParentID = sql.NullString{String: t.ParentID.String(), Valid: true}
	}
	if t.LastLowBalanceWarning != nil {
		row.LastLowBalanceWarning = sql.NullTime{Time: *t.LastLowBalanceWarning, Valid: true}
	}
	return row
}

func (r *tenantRepo) Create(ctx context.Context, t store.Tenant) error {
	const q = `
		INSERT INTO tenants (
			id, name, parent_id, agent_name, token_balance, token_balance_usd,
			tokens_used_total, user_limit, pricing_mode, last_low_balance_warning,
			training_data, status, created_at, updated_at
		) VALUES (
			:id, :name, :parent_id, :agent_name, :token_balance, :token_balance_usd,
			:tokens_used_total, :user_limit, :pricing_mode, :last_low_balance_warning,
			:training_data, :status, :created_at, :updated_at
		)`
	_, err := r.conn.NamedExecContext(ctx, q, tenantToRow(t))
	if err != nil {
		return errx.Wrap(err, "failed to create tenant", errx.TypeInternal)
	}
	return nil
}

func (r *tenantRepo) FindByID(ctx context.Context, id kernel.TenantID) (*store.Tenant, error) {
	var row tenantRow
	const q = `SELECT * FROM tenants WHERE id = $1`
	if err := r.conn.GetContext(ctx, &row, q, id.String()); err != nil {
		if err == sql.ErrNoRows {
			return nil, errx.New("tenant not found", errx.TypeNotFound)
		}
		return nil, errx.Wrap(err, "failed to find tenant", errx.TypeInternal)
	}
	return row.toDomain(), nil
}

func (r *tenantRepo) FindChildren(ctx context.Context, parentID kernel.TenantID) ([]*store.Tenant, error) {
	var rows []tenantRow
	const q = `SELECT * FROM tenants WHERE parent_id = $1`
	if err := r.conn.SelectContext(ctx, &rows, q, parentID.String()); err != nil {
		return nil, errx.Wrap(err, "failed to find child tenants", errx.TypeInternal)
	}
	out := make([]*store.Tenant, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// Update applies the widest-parameter form of tenant mutation (SPEC_FULL.md
// Open Question #2: the two overloaded `update_company` signatures in the
// original collapse to this single call taking every mutable field). The
// balance columns (token_balance, token_balance_usd, tokens_used_total) are
// not written here; token_balance and tokens_used_total change through
// UpdateBalance.
func (r *tenantRepo) Update(ctx context.Context, t store.Tenant) error {
	const q = `
		UPDATE tenants SET
			name = :name, parent_id = :parent_id, agent_name = :agent_name,
			user_limit = :user_limit, pricing_mode = :pricing_mode,
			training_data = :training_data,
			last_low_balance_warning = :last_low_balance_warning,
			status = :status, updated_at = :updated_at
		WHERE id = :id`
	res, err := r.conn.NamedExecContext(ctx, q, tenantToRow(t))
	if err != nil {
		return errx.Wrap(err, "failed to update tenant", errx.TypeInternal)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errx.New("tenant not found", errx.TypeNotFound)
	}
	return nil
}

// UpdateBalance atomically mutates token_balance and tokens_used_total in a
// single UPDATE. The caller (pkg/billing) runs it inside a Store.WithTx
// together with the ledger insert; the row lock the UPDATE takes on the root
// tenant is held until commit, which serialises debits of one root (§5).
// No SELECT ... FOR UPDATE is issued, and the caller's balance check reads
// the root before the transaction starts.
func (r *tenantRepo) UpdateBalance(ctx context.Context, id kernel.TenantID, delta int64, tokensUsedDelta int64) error {
	const q = `
		UPDATE tenants
		SET token_balance = token_balance + $2, tokens_used_total = tokens_used_total + $3
		WHERE id = $1`
	_, err := r.conn.ExecContext(ctx, q, id.String(), delta, tokensUsedDelta)
	if err != nil {
		return errx.Wrap(err, "failed to update tenant balance", errx.TypeInternal)
	}
	return nil
}

func (r *tenantRepo) ClearParent(ctx context.Context, id kernel.TenantID) error {
	const q = `UPDATE tenants SET parent_id = NULL WHERE parent_id = $1`
	_, err := r.conn.ExecContext(ctx, q, id.String())
	if err != nil {
		return errx.Wrap(err, "failed to clear child parent pointers", errx.TypeInternal)
	}
	return nil
}

func (r *tenantRepo) Delete(ctx context.Context, id kernel.TenantID) error {
	const q = `DELETE FROM tenants WHERE id = $1`
	_, err := r.conn.ExecContext(ctx, q, id.String())
	if err != nil {
		return errx.Wrap(err, "failed to delete tenant", errx.TypeInternal)
	}
	return nil
}
