// Package scopes is C4 ScopeEngine: resolves a user's expanded scope set for
// a tenant and matches a query scope against it with wildcard and ext:*
// precedence. Grounded on kernel.AuthContext's simple "*"/"prefix:*" matcher,
// generalized to the full ext:* precedence table and backed by C1 SharedCache
// for the expanded-set lookup.
package scopes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/flowctl/core/pkg/cache"
	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/scopematch"
	"github.com/flowctl/core/pkg/store"
	"github.com/flowctl/core/pkg/tenanttree"
)

var ErrRegistry = errx.NewRegistry("SCOPES")

var CodeForbidden = ErrRegistry.Register("FORBIDDEN", errx.TypeAuthorization, http.StatusForbidden, "missing required scope")

func ErrForbidden(scope string) *errx.Error {
	return ErrRegistry.New(CodeForbidden).WithDetail("scope", scope)
}

const expandedSetTTL = 5 * time.Minute

// Engine resolves and matches scopes for (user, tenant) pairs.
type Engine struct {
	scopeRepo   store.ScopeRepository
	memberships store.MembershipRepository
	tree        *tenanttree.Tree
	cache       cache.Cache
}

func New(scopeRepo store.ScopeRepository, memberships store.MembershipRepository, tree *tenanttree.Tree, c cache.Cache) *Engine {
	return &Engine{scopeRepo: scopeRepo, memberships: memberships, tree: tree, cache: c}
}

func cacheKey(userID kernel.UserID, tenantID kernel.TenantID) string {
	return fmt.Sprintf("user_scopes:%s:%s", userID.String(), tenantID.String())
}

// Has resolves the user's expanded scope set for tenantID and reports
// whether query is granted, honoring the full ext:* precedence table.
func (e *Engine) Has(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID, query string) (bool, error) {
	granted, err := e.expandedSet(ctx, userID, tenantID)
	if err != nil {
		return false, err
	}
	if granted.SuperAdmin {
		return true, nil
	}
	return scopematch.Matches(granted.Scopes, query), nil
}

// HasAny reports whether at least one of queries is granted.
func (e *Engine) HasAny(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID, queries ...string) (bool, error) {
	for _, q := range queries {
		ok, err := e.Has(ctx, userID, tenantID, q)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAll reports whether every query in queries is granted.
func (e *Engine) HasAll(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID, queries ...string) (bool, error) {
	for _, q := range queries {
		ok, err := e.Has(ctx, userID, tenantID, q)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Require returns ErrForbidden when query is not granted.
func (e *Engine) Require(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID, query string) error {
	ok, err := e.Has(ctx, userID, tenantID, query)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden(query)
	}
	return nil
}

// Snapshot returns the user's full expanded scope set for tenantID, for
// callers (profile hydration, PAT restriction intersection) that need the
// raw list rather than a single yes/no match.
func (e *Engine) Snapshot(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID) (scopeList []string, superAdmin bool, err error) {
	granted, err := e.expandedSet(ctx, userID, tenantID)
	if err != nil {
		return nil, false, err
	}
	return granted.Scopes, granted.SuperAdmin, nil
}

// Invalidate flushes the cached expanded set for (user, tenant). Callers
// invoke this on role change, custom-role change, or tenant-extension
// change.
func (e *Engine) Invalidate(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID) error {
	return e.cache.Delete(ctx, cacheKey(userID, tenantID))
}

// InvalidateTenant flushes every cached expanded set for tenantID, used when
// a tenant-wide change (extension install/uninstall) could affect any
// member's effective scopes.
func (e *Engine) InvalidateTenant(ctx context.Context, tenantID kernel.TenantID) error {
	return e.cache.DeletePattern(ctx, fmt.Sprintf("user_scopes:*:%s", tenantID.String()))
}

type expandedScopes struct {
	SuperAdmin bool     `json:"super_admin"`
	Scopes     []string `json:"scopes"`
}

func encodeExpandedScopes(e *expandedScopes) []byte {
	data, _ := json.Marshal(e)
	return data
}

func decodeExpandedScopes(data []byte) *expandedScopes {
	var e expandedScopes
	if err := json.Unmarshal(data, &e); err != nil {
		return &expandedScopes{}
	}
	return &e
}

func (e *Engine) expandedSet(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID) (*expandedScopes, error) {
	key := cacheKey(userID, tenantID)
	if raw, ok, err := e.cache.Get(ctx, key); err == nil && ok {
		return decodeExpandedScopes(raw), nil
	}

	membership, err := e.memberships.Find(ctx, userID, tenantID)
	if err != nil {
		var xe *errx.Error
		if !errx.As(err, &xe) || xe.Type != errx.TypeNotFound {
			return nil, errx.Wrap(err, "failed to load membership", errx.TypeInternal)
		}
		membership = nil
	}
	if membership == nil {
		// no direct membership: check ancestor-admin reach via C5.
		canAccess, err := e.tree.CanAccess(ctx, userID, tenantID)
		if err != nil {
			return nil, err
		}
		if !canAccess {
			return &expandedScopes{}, nil
		}
		membership = &store.Membership{UserID: userID, TenantID: tenantID, RoleID: store.RoleTenantAdmin}
	}

	if membership.RoleID == store.RoleSuperAdmin {
		result := &expandedScopes{SuperAdmin: true}
		_ = e.cache.Set(ctx, key, encodeExpandedScopes(result), expandedSetTTL)
		return result, nil
	}

	defaultScopes, err := e.scopeRepo.DefaultScopesForRole(ctx, membership.RoleID)
	if err != nil {
		return nil, err
	}

	all := make([]string, 0, len(defaultScopes))
	expandExt := containsExtWildcard(defaultScopes)
	for _, s := range defaultScopes {
		if expandExt && s == "ext:*" {
			continue
		}
		all = append(all, s)
	}

	if expandExt {
		installed, err := e.scopeRepo.InstalledExtensions(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		for _, name := range installed {
			all = append(all, "ext:"+name+":*")
		}
	}

	customRoles, err := e.scopeRepo.CustomRolesForUser(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	for _, cr := range customRoles {
		scopes, err := e.scopeRepo.ScopesForCustomRole(ctx, cr.ID)
		if err != nil {
			return nil, err
		}
		all = append(all, scopes...)
	}

	result := &expandedScopes{Scopes: dedupe(all)}
	_ = e.cache.Set(ctx, key, encodeExpandedScopes(result), expandedSetTTL)
	return result, nil
}

func containsExtWildcard(scopes []string) bool {
	for _, s := range scopes {
		if s == "ext:*" {
			return true
		}
	}
	return false
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

