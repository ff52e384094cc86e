// Package tenanttree is C5 TenantTree: parent/child tenant lookup,
// cycle-safe root-ancestor resolution, descendant enumeration, and the
// single source of truth for cross-tenant reach (CanAccess). Grounded on the
// visited-set cycle guard idiom the teacher uses for tree walks in
// pkg/ai/llm/memoryx's context-chain trimming, generalized to tenants.
package tenanttree

import (
	"context"
	"net/http"

	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/store"
)

var ErrRegistry = errx.NewRegistry("TENANTTREE")

var (
	CodeTenantCycle    = ErrRegistry.Register("TENANT_CYCLE", errx.TypeInternal, http.StatusInternalServerError, "tenant parent chain forms a cycle")
	CodeTenantNotFound = ErrRegistry.Register("TENANT_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "tenant not found")
)

// ErrTenantCycle reports a parent_id chain that revisits a tenant already
// seen during the walk. A dedicated error type lets callers distinguish
// "data is corrupt" from an ordinary not-found.
func ErrTenantCycle(tenantID kernel.TenantID) *errx.Error {
	return ErrRegistry.New(CodeTenantCycle).WithDetail("tenant_id", tenantID.String())
}

func ErrTenantNotFound(tenantID kernel.TenantID) *errx.Error {
	return ErrRegistry.New(CodeTenantNotFound).WithDetail("tenant_id", tenantID.String())
}

// Tree resolves tenant hierarchy questions against the store.
type Tree struct {
	tenants     store.TenantRepository
	memberships store.MembershipRepository
}

func New(tenants store.TenantRepository, memberships store.MembershipRepository) *Tree {
	return &Tree{tenants: tenants, memberships: memberships}
}

// Root walks parent_id up to the topmost ancestor. A tenant with no parent is
// its own root.
func (t *Tree) Root(ctx context.Context, tenantID kernel.TenantID) (*store.Tenant, error) {
	visited := map[kernel.TenantID]struct{}{}
	current := tenantID
	var tenant *store.Tenant
	for {
		if _, seen := visited[current]; seen {
			return nil, ErrTenantCycle(current)
		}
		visited[current] = struct{}{}

		found, err := t.tenants.FindByID(ctx, current)
		if err != nil {
			return nil, errx.Wrap(err, "failed to load tenant", errx.TypeInternal)
		}
		if found == nil {
			return nil, ErrTenantNotFound(current)
		}
		tenant = found
		if tenant.ParentID == nil {
			return tenant, nil
		}
		current = *tenant.ParentID
	}
}

// Descendants performs a cycle-safe DFS over tenantID's children, returning
// every tenant reachable below it (not including tenantID itself).
func (t *Tree) Descendants(ctx context.Context, tenantID kernel.TenantID) ([]*store.Tenant, error) {
	visited := map[kernel.TenantID]struct{}{tenantID: {}}
	var out []*store.Tenant

	var walk func(id kernel.TenantID) error
	walk = func(id kernel.TenantID) error {
		children, err := t.tenants.FindChildren(ctx, id)
		if err != nil {
			return errx.Wrap(err, "failed to load tenant children", errx.TypeInternal)
		}
		for _, child := range children {
			if _, seen := visited[child.ID]; seen {
				return ErrTenantCycle(child.ID)
			}
			visited[child.ID] = struct{}{}
			out = append(out, child)
			if err := walk(child.ID); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(tenantID); err != nil {
		return nil, err
	}
	return out, nil
}

// CanAccess is the single source of truth for cross-tenant reach: true if
// the user has a direct membership in tenantID, or an admin membership
// (role <= store.RoleTenantAdmin) in any ancestor of tenantID.
func (t *Tree) CanAccess(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID) (bool, error) {
	if m, err := t.memberships.Find(ctx, userID, tenantID); err != nil {
		var xe *errx.Error
		if !errx.As(err, &xe) || xe.Type != errx.TypeNotFound {
			return false, errx.Wrap(err, "failed to load membership", errx.TypeInternal)
		}
	} else if m != nil {
		return true, nil
	}

	visited := map[kernel.TenantID]struct{}{tenantID: {}}
	current := tenantID
	for {
		tenant, err := t.tenants.FindByID(ctx, current)
		if err != nil {
			return false, errx.Wrap(err, "failed to load tenant", errx.TypeInternal)
		}
		if tenant == nil || tenant.ParentID == nil {
			return false, nil
		}
		parentID := *tenant.ParentID
		if _, seen := visited[parentID]; seen {
			return false, ErrTenantCycle(parentID)
		}
		visited[parentID] = struct{}{}

		m, err := t.memberships.Find(ctx, userID, parentID)
		if err != nil {
			var xe *errx.Error
			if !errx.As(err, &xe) || xe.Type != errx.TypeNotFound {
				return false, errx.Wrap(err, "failed to load membership", errx.TypeInternal)
			}
			m = nil
		}
		if m != nil && m.IsAdmin() {
			return true, nil
		}
		current = parentID
	}
}
