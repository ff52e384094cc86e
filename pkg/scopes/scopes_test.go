package scopes

import (
	"context"
	"testing"

	"github.com/flowctl/core/pkg/cache/cachemem"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/store"
	"github.com/flowctl/core/pkg/store/storemem"
	"github.com/flowctl/core/pkg/tenanttree"
)

func newEngine(t *testing.T) (*Engine, *storemem.MemoryStore) {
	t.Helper()
	s := storemem.New()
	tree := tenanttree.New(s.Tenants(), s.Memberships())
	return New(s.Scopes(), s.Memberships(), tree, cachemem.New()), s
}

func TestExactAndWildcardMatch(t *testing.T) {
	ctx := context.Background()
	engine, s := newEngine(t)

	tenantID := kernel.NewTenantID("t1")
	userID := kernel.NewUserID("u1")
	if err := s.Tenants().Create(ctx, store.Tenant{ID: tenantID, Name: "t1"}); err != nil {
		t.Fatalf("Create tenant: %v", err)
	}
	if err := s.Memberships().Create(ctx, store.Membership{UserID: userID, TenantID: tenantID, RoleID: store.RoleUser}); err != nil {
		t.Fatalf("Create membership: %v", err)
	}
	s.SeedDefaultScopes(store.RoleUser, "chat:read", "billing:*")

	ok, err := engine.Has(ctx, userID, tenantID, "chat:read")
	if err != nil || !ok {
		t.Fatalf("expected exact match, ok=%v err=%v", ok, err)
	}
	ok, err = engine.Has(ctx, userID, tenantID, "billing:debit")
	if err != nil || !ok {
		t.Fatalf("expected resource:* match, ok=%v err=%v", ok, err)
	}
	ok, err = engine.Has(ctx, userID, tenantID, "chat:write")
	if err != nil || ok {
		t.Fatalf("expected no match for ungranted scope, ok=%v err=%v", ok, err)
	}
}

func TestSuperAdminShortCircuits(t *testing.T) {
	ctx := context.Background()
	engine, s := newEngine(t)
	tenantID := kernel.NewTenantID("t1")
	userID := kernel.NewUserID("root-admin")
	if err := s.Tenants().Create(ctx, store.Tenant{ID: tenantID, Name: "t1"}); err != nil {
		t.Fatalf("Create tenant: %v", err)
	}
	if err := s.Memberships().Create(ctx, store.Membership{UserID: userID, TenantID: tenantID, RoleID: store.RoleSuperAdmin}); err != nil {
		t.Fatalf("Create membership: %v", err)
	}

	ok, err := engine.Has(ctx, userID, tenantID, "anything:at:all")
	if err != nil || !ok {
		t.Fatalf("expected super admin to be granted everything, ok=%v err=%v", ok, err)
	}
}

func TestExtWildcardExpandsInstalledExtensions(t *testing.T) {
	ctx := context.Background()
	engine, s := newEngine(t)
	tenantID := kernel.NewTenantID("t1")
	userID := kernel.NewUserID("u1")
	if err := s.Tenants().Create(ctx, store.Tenant{ID: tenantID, Name: "t1"}); err != nil {
		t.Fatalf("Create tenant: %v", err)
	}
	if err := s.Memberships().Create(ctx, store.Membership{UserID: userID, TenantID: tenantID, RoleID: store.RoleUser}); err != nil {
		t.Fatalf("Create membership: %v", err)
	}
	s.SeedDefaultScopes(store.RoleUser, "ext:*")
	s.SeedExtension(tenantID, "slack")

	ok, err := engine.Has(ctx, userID, tenantID, "ext:slack:notify")
	if err != nil || !ok {
		t.Fatalf("expected ext:* expansion to cover installed extension, ok=%v err=%v", ok, err)
	}
	ok, err = engine.Has(ctx, userID, tenantID, "ext:jira:notify")
	if err != nil || ok {
		t.Fatalf("expected ext:* expansion to exclude uninstalled extension, ok=%v err=%v", ok, err)
	}
}

func TestCustomRoleScopesAreIncluded(t *testing.T) {
	ctx := context.Background()
	engine, s := newEngine(t)
	tenantID := kernel.NewTenantID("t1")
	userID := kernel.NewUserID("u1")
	if err := s.Tenants().Create(ctx, store.Tenant{ID: tenantID, Name: "t1"}); err != nil {
		t.Fatalf("Create tenant: %v", err)
	}
	if err := s.Memberships().Create(ctx, store.Membership{UserID: userID, TenantID: tenantID, RoleID: store.RoleUser}); err != nil {
		t.Fatalf("Create membership: %v", err)
	}
	s.SeedCustomRole(userID, tenantID, store.CustomRole{ID: "cr1", TenantID: tenantID, Name: "reviewer", IsActive: true}, "review:approve")

	ok, err := engine.Has(ctx, userID, tenantID, "review:approve")
	if err != nil || !ok {
		t.Fatalf("expected custom role scope, ok=%v err=%v", ok, err)
	}
}

func TestRequireReturnsForbidden(t *testing.T) {
	ctx := context.Background()
	engine, s := newEngine(t)
	tenantID := kernel.NewTenantID("t1")
	userID := kernel.NewUserID("u1")
	if err := s.Tenants().Create(ctx, store.Tenant{ID: tenantID, Name: "t1"}); err != nil {
		t.Fatalf("Create tenant: %v", err)
	}
	if err := s.Memberships().Create(ctx, store.Membership{UserID: userID, TenantID: tenantID, RoleID: store.RoleUser}); err != nil {
		t.Fatalf("Create membership: %v", err)
	}

	if err := engine.Require(ctx, userID, tenantID, "admin:*"); err == nil {
		t.Fatal("expected Require to fail for ungranted scope")
	}
}

func TestInvalidateClearsCache(t *testing.T) {
	ctx := context.Background()
	engine, s := newEngine(t)
	tenantID := kernel.NewTenantID("t1")
	userID := kernel.NewUserID("u1")
	if err := s.Tenants().Create(ctx, store.Tenant{ID: tenantID, Name: "t1"}); err != nil {
		t.Fatalf("Create tenant: %v", err)
	}
	if err := s.Memberships().Create(ctx, store.Membership{UserID: userID, TenantID: tenantID, RoleID: store.RoleUser}); err != nil {
		t.Fatalf("Create membership: %v", err)
	}
	s.SeedDefaultScopes(store.RoleUser, "chat:read")

	if _, err := engine.Has(ctx, userID, tenantID, "chat:read"); err != nil {
		t.Fatalf("Has: %v", err)
	}
	if err := engine.Invalidate(ctx, userID, tenantID); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	ok, err := engine.Has(ctx, userID, tenantID, "chat:read")
	if err != nil || !ok {
		t.Fatalf("expected re-resolution after invalidate to still grant, ok=%v err=%v", ok, err)
	}
}
