package storepg

import (
	"context"
	"database/sql"

	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/store"
)

type membershipRepo struct{ conn namedExecer }

func (r *membershipRepo) Create(ctx context.Context, m store.Membership) error {
	const q = `
		INSERT INTO memberships (user_id, tenant_id, role_id, created_at)
		VALUES (:user_id, :tenant_id, :role_id, :created_at)`
	_, err := r.conn.NamedExecContext(ctx, q, m)
	if err != nil {
		return errx.Wrap(err, "failed to create membership", errx.TypeInternal)
	}
	return nil
}

func (r *membershipRepo) Find(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID) (*store.Membership, error) {
	var m store.Membership
	const q = `SELECT user_id, tenant_id, role_id, created_at FROM memberships WHERE user_id = $1 AND tenant_id = $2`
	if err := r.conn.GetContext(ctx, &m, q, userID.String(), tenantID.String()); err != nil {
		if err == sql.ErrNoRows {
			return nil, errx.New("membership not found", errx.TypeNotFound)
		}
		return nil, errx.Wrap(err, "failed to find membership", errx.TypeInternal)
	}
	return &m, nil
}

func (r *membershipRepo) FindByUser(ctx context.Context, userID kernel.UserID) ([]*store.Membership, error) {
	var rows []store.Membership
	const q = `SELECT user_id, tenant_id, role_id, created_at FROM memberships WHERE user_id = $1`
	if err := r.conn.SelectContext(ctx, &rows, q, userID.String()); err != nil {
		return nil, errx.Wrap(err, "failed to find memberships by user", errx.TypeInternal)
	}
	out := make([]*store.Membership, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

func (r *membershipRepo) FindByTenant(ctx context.Context, tenantID kernel.TenantID) ([]*store.Membership, error) {
	var rows []store.Membership
	const q = `SELECT user_id, tenant_id, role_id, created_at FROM memberships WHERE tenant_id = $1`
	if err := r.conn.SelectContext(ctx, &rows, q, tenantID.String()); err != nil {
		return nil, errx.Wrap(err, "failed to find memberships by tenant", errx.TypeInternal)
	}
	out := make([]*store.Membership, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

func (r *membershipRepo) CountByTenant(ctx context.Context, tenantID kernel.TenantID) (int, error) {
	var n int
	const q = `SELECT COUNT(*) FROM memberships WHERE tenant_id = $1`
	if err := r.conn.GetContext(ctx, &n, q, tenantID.String()); err != nil {
		return 0, errx.Wrap(err, "failed to count memberships", errx.TypeInternal)
	}
	return n, nil
}

// UpdateRole changing a member's role invalidates the cached scope set;
// the caller (pkg/scopes) is responsible for the cache invalidation side
// effect (§3 "Changing role invalidates scope cache").
func (r *membershipRepo) UpdateRole(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID, roleID int) error {
	const q = `UPDATE memberships SET role_id = $3 WHERE user_id = $1 AND tenant_id = $2`
	res, err := r.conn.ExecContext(ctx, q, userID.String(), tenantID.String(), roleID)
	if err != nil {
		return errx.Wrap(err, "failed to update membership role", errx.TypeInternal)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errx.New("membership not found", errx.TypeNotFound)
	}
	return nil
}

func (r *membershipRepo) Delete(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID) error {
	const q = `DELETE FROM memberships WHERE user_id = $1 AND tenant_id = $2`
	_, err := r.conn.ExecContext(ctx, q, userID.String(), tenantID.String())
	if err != nil {
		return errx.Wrap(err, "failed to delete membership", errx.TypeInternal)
	}
	return nil
}
