package storepg

import (
	"context"

	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/store"
)

// scopeRepo backs the batch prefetches C4 ScopeEngine needs to assemble a
// user's expanded scope set in one round-trip (§4.4, §4.7).
type scopeRepo struct{ conn namedExecer }

func (r *scopeRepo) DefaultScopesForRole(ctx context.Context, roleID int) ([]string, error) {
	var scopes []string
	const q = `SELECT scope FROM default_role_scopes WHERE role_id = $1`
	if err := r.conn.SelectContext(ctx, &scopes, q, roleID); err != nil {
		return nil, errx.Wrap(err, "failed to load default role scopes", errx.TypeInternal)
	}
	return scopes, nil
}

func (r *scopeRepo) CustomRolesForUser(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID) ([]store.CustomRole, error) {
	var roles []store.CustomRole
	const q = `
		SELECT cr.id, cr.tenant_id, cr.name, cr.is_active
		FROM custom_roles cr
		JOIN user_custom_roles ucr ON ucr.custom_role_id = cr.id
		WHERE ucr.user_id = $1 AND ucr.tenant_id = $2 AND cr.is_active = true`
	if err := r.conn.SelectContext(ctx, &roles, q, userID.String(), tenantID.String()); err != nil {
		return nil, errx.Wrap(err, "failed to load custom roles for user", errx.TypeInternal)
	}
	return roles, nil
}

func (r *scopeRepo) ScopesForCustomRole(ctx context.Context, customRoleID string) ([]string, error) {
	var scopes []string
	const q = `SELECT scope FROM custom_role_scopes WHERE custom_role_id = $1`
	if err := r.conn.SelectContext(ctx, &scopes, q, customRoleID); err != nil {
		return nil, errx.Wrap(err, "failed to load custom role scopes", errx.TypeInternal)
	}
	return scopes, nil
}

func (r *scopeRepo) InstalledExtensions(ctx context.Context, tenantID kernel.TenantID) ([]string, error) {
	var names []string
	const q = `SELECT DISTINCT extension_name FROM tenant_extensions WHERE tenant_id = $1`
	if err := r.conn.SelectContext(ctx, &names, q, tenantID.String()); err != nil {
		return nil, errx.Wrap(err, "failed to load installed extensions", errx.TypeInternal)
	}
	return names, nil
}
