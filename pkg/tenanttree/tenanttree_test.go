package tenanttree

import (
	"context"
	"testing"

	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/store"
	"github.com/flowctl/core/pkg/store/storemem"
)

func mustCreateTenant(t *testing.T, s *storemem.MemoryStore, id string, parent *kernel.TenantID) store.Tenant {
	t.Helper()
	tenant := store.Tenant{ID: kernel.NewTenantID(id), Name: id, ParentID: parent}
	if err := s.Tenants().Create(context.Background(), tenant); err != nil {
		t.Fatalf("Create(%s): %v", id, err)
	}
	return tenant
}

func TestRootResolvesThroughChain(t *testing.T) {
	ctx := context.Background()
	s := storemem.New()
	mustCreateTenant(t, s, "root", nil)
	rootID := kernel.NewTenantID("root")
	mustCreateTenant(t, s, "mid", &rootID)
	midID := kernel.NewTenantID("mid")
	mustCreateTenant(t, s, "leaf", &midID)

	tree := New(s.Tenants(), s.Memberships())
	root, err := tree.Root(ctx, kernel.NewTenantID("leaf"))
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if root.ID != rootID {
		t.Fatalf("expected root, got %s", root.ID)
	}
}

func TestRootDetectsCycle(t *testing.T) {
	ctx := context.Background()
	s := storemem.New()
	aID := kernel.NewTenantID("a")
	bID := kernel.NewTenantID("b")
	mustCreateTenant(t, s, "a", &bID)
	mustCreateTenant(t, s, "b", &aID)

	tree := New(s.Tenants(), s.Memberships())
	if _, err := tree.Root(ctx, aID); err == nil {
		t.Fatal("expected ErrTenantCycle")
	}
}

func TestDescendantsDFS(t *testing.T) {
	ctx := context.Background()
	s := storemem.New()
	mustCreateTenant(t, s, "root", nil)
	rootID := kernel.NewTenantID("root")
	mustCreateTenant(t, s, "c1", &rootID)
	mustCreateTenant(t, s, "c2", &rootID)
	c1ID := kernel.NewTenantID("c1")
	mustCreateTenant(t, s, "gc1", &c1ID)

	tree := New(s.Tenants(), s.Memberships())
	descendants, err := tree.Descendants(ctx, rootID)
	if err != nil {
		t.Fatalf("Descendants: %v", err)
	}
	if len(descendants) != 3 {
		t.Fatalf("expected 3 descendants, got %d", len(descendants))
	}
}

func TestCanAccessDirectMembership(t *testing.T) {
	ctx := context.Background()
	s := storemem.New()
	mustCreateTenant(t, s, "t1", nil)
	userID := kernel.NewUserID("u1")
	if err := s.Memberships().Create(ctx, store.Membership{UserID: userID, TenantID: kernel.NewTenantID("t1"), RoleID: store.RoleUser}); err != nil {
		t.Fatalf("Create membership: %v", err)
	}

	tree := New(s.Tenants(), s.Memberships())
	ok, err := tree.CanAccess(ctx, userID, kernel.NewTenantID("t1"))
	if err != nil || !ok {
		t.Fatalf("expected direct access, ok=%v err=%v", ok, err)
	}
}

func TestCanAccessViaAncestorAdmin(t *testing.T) {
	ctx := context.Background()
	s := storemem.New()
	mustCreateTenant(t, s, "root", nil)
	rootID := kernel.NewTenantID("root")
	mustCreateTenant(t, s, "child", &rootID)

	userID := kernel.NewUserID("admin1")
	if err := s.Memberships().Create(ctx, store.Membership{UserID: userID, TenantID: rootID, RoleID: store.RoleTenantAdmin}); err != nil {
		t.Fatalf("Create membership: %v", err)
	}

	tree := New(s.Tenants(), s.Memberships())
	ok, err := tree.CanAccess(ctx, userID, kernel.NewTenantID("child"))
	if err != nil || !ok {
		t.Fatalf("expected ancestor-admin access, ok=%v err=%v", ok, err)
	}
}

func TestCanAccessDeniesNonAdminAncestorMembership(t *testing.T) {
	ctx := context.Background()
	s := storemem.New()
	mustCreateTenant(t, s, "root", nil)
	rootID := kernel.NewTenantID("root")
	mustCreateTenant(t, s, "child", &rootID)

	userID := kernel.NewUserID("plain-user")
	if err := s.Memberships().Create(ctx, store.Membership{UserID: userID, TenantID: rootID, RoleID: store.RoleUser}); err != nil {
		t.Fatalf("Create membership: %v", err)
	}

	tree := New(s.Tenants(), s.Memberships())
	ok, err := tree.CanAccess(ctx, userID, kernel.NewTenantID("child"))
	if err != nil {
		t.Fatalf("CanAccess: %v", err)
	}
	if ok {
		t.Fatal("expected non-admin ancestor membership to not grant access")
	}
}
