package storepg

import (
	"context"
	"database/sql"

	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/store"
)

type invitationRepo struct{ conn namedExecer }

func (r *invitationRepo) Create(ctx context.Context, inv store.Invitation) error {
	const q = `
		INSERT INTO invitations (id, email, tenant_id, role_id, inviter_id, is_accepted, created_at)
		VALUES (:id, :email, :tenant_id, :role_id, :inviter_id, :is_accepted, :created_at)`
	_, err := r.conn.NamedExecContext(ctx, q, inv)
	if err != nil {
		return errx.Wrap(err, "failed to create invitation", errx.TypeInternal)
	}
	return nil
}

func (r *invitationRepo) FindByID(ctx context.Context, id string) (*store.Invitation, error) {
	var inv store.Invitation
	const q = `SELECT * FROM invitations WHERE id = $1`
	if err := r.conn.GetContext(ctx, &inv, q, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errx.New("invitation not found", errx.TypeNotFound)
		}
		return nil, errx.Wrap(err, "failed to find invitation", errx.TypeInternal)
	}
	return &inv, nil
}

// FindPendingByEmail backs the invitation-reactivation path of C11: an
// inactive user re-registering sees any outstanding invite to their email.
func (r *invitationRepo) FindPendingByEmail(ctx context.Context, email string) ([]*store.Invitation, error) {
	var rows []store.Invitation
	const q = `SELECT * FROM invitations WHERE email = $1 AND is_accepted = false ORDER BY created_at DESC`
	if err := r.conn.SelectContext(ctx, &rows, q, email); err != nil {
		return nil, errx.Wrap(err, "failed to find pending invitations", errx.TypeInternal)
	}
	out := make([]*store.Invitation, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

func (r *invitationRepo) FindByTenant(ctx context.Context, tenantID kernel.TenantID) ([]*store.Invitation, error) {
	var rows []store.Invitation
	const q = `SELECT * FROM invitations WHERE tenant_id = $1 ORDER BY created_at DESC`
	if err := r.conn.SelectContext(ctx, &rows, q, tenantID.String()); err != nil {
		return nil, errx.Wrap(err, "failed to find invitations by tenant", errx.TypeInternal)
	}
	out := make([]*store.Invitation, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

func (r *invitationRepo) MarkAccepted(ctx context.Context, id string) error {
	const q = `UPDATE invitations SET is_accepted = true WHERE id = $1`
	res, err := r.conn.ExecContext(ctx, q, id)
	if err != nil {
		return errx.Wrap(err, "failed to mark invitation accepted", errx.TypeInternal)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errx.New("invitation not found", errx.TypeNotFound)
	}
	return nil
}
