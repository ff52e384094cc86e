package patmanager

import (
	"context"
	"testing"

	"github.com/flowctl/core/pkg/cache/cachemem"
	"github.com/flowctl/core/pkg/crypto"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/scopes"
	"github.com/flowctl/core/pkg/store"
	"github.com/flowctl/core/pkg/store/storemem"
	"github.com/flowctl/core/pkg/tenanttree"
)

func newManager(t *testing.T) (*Manager, *storemem.MemoryStore) {
	t.Helper()
	s := storemem.New()
	tree := tenanttree.New(s.Tenants(), s.Memberships())
	engine := scopes.New(s.Scopes(), s.Memberships(), tree, cachemem.New())
	return New(s.PATs(), engine, crypto.NewPATHasher("agixt_", "test-master-key")), s
}

func seedUser(t *testing.T, s *storemem.MemoryStore, userID kernel.UserID, tenantID kernel.TenantID, role int, grantedScopes ...string) {
	t.Helper()
	ctx := context.Background()
	if err := s.Tenants().Create(ctx, store.Tenant{ID: tenantID, Name: tenantID.String()}); err != nil {
		t.Fatalf("Create tenant: %v", err)
	}
	if err := s.Memberships().Create(ctx, store.Membership{UserID: userID, TenantID: tenantID, RoleID: role}); err != nil {
		t.Fatalf("Create membership: %v", err)
	}
	s.SeedDefaultScopes(role, grantedScopes...)
}

func TestCreateRejectsScopeNotOwned(t *testing.T) {
	ctx := context.Background()
	m, s := newManager(t)
	userID := kernel.NewUserID("u1")
	tenantID := kernel.NewTenantID("t1")
	seedUser(t, s, userID, tenantID, store.RoleUser, "chat:read")

	_, err := m.Create(ctx, userID, tenantID, CreateRequest{Name: "tok1", Scopes: []string{"admin:*"}}, nil, nil)
	if err == nil {
		t.Fatal("expected scope-not-owned error")
	}
}

func TestCreateAndValidateRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, s := newManager(t)
	userID := kernel.NewUserID("u1")
	tenantID := kernel.NewTenantID("t1")
	seedUser(t, s, userID, tenantID, store.RoleUser, "chat:read")

	created, err := m.Create(ctx, userID, tenantID, CreateRequest{Name: "tok1", Scopes: []string{"chat:read"}}, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	validated, err := m.Validate(ctx, created.Token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if validated.UserID != userID {
		t.Fatalf("expected userID %v, got %v", userID, validated.UserID)
	}
	if len(validated.Scopes) != 1 || validated.Scopes[0] != "chat:read" {
		t.Fatalf("unexpected scopes: %v", validated.Scopes)
	}
}

func TestValidateRejectsRevoked(t *testing.T) {
	ctx := context.Background()
	m, s := newManager(t)
	userID := kernel.NewUserID("u1")
	tenantID := kernel.NewTenantID("t1")
	seedUser(t, s, userID, tenantID, store.RoleUser, "chat:read")

	created, err := m.Create(ctx, userID, tenantID, CreateRequest{Name: "tok1", Scopes: []string{"chat:read"}}, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Revoke(ctx, created.PAT.ID, userID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := m.Validate(ctx, created.Token); err == nil {
		t.Fatal("expected revoked token to fail validation")
	}
}

func TestRegenerateIssuesNewTokenSameID(t *testing.T) {
	ctx := context.Background()
	m, s := newManager(t)
	userID := kernel.NewUserID("u1")
	tenantID := kernel.NewTenantID("t1")
	seedUser(t, s, userID, tenantID, store.RoleUser, "chat:read")

	created, err := m.Create(ctx, userID, tenantID, CreateRequest{Name: "tok1", Scopes: []string{"chat:read"}}, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	regenerated, err := m.Regenerate(ctx, created.PAT.ID, userID)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if regenerated.PAT.ID != created.PAT.ID {
		t.Fatalf("expected same id across regenerate, got %s vs %s", regenerated.PAT.ID, created.PAT.ID)
	}
	if regenerated.Token == created.Token {
		t.Fatal("expected a fresh token value")
	}
	if _, err := m.Validate(ctx, created.Token); err == nil {
		t.Fatal("expected the old token to no longer validate")
	}
	if _, err := m.Validate(ctx, regenerated.Token); err != nil {
		t.Fatalf("expected the new token to validate: %v", err)
	}
}

func TestParseExpiryShorthand(t *testing.T) {
	if exp, err := ParseExpiry("7_days"); err != nil || exp == nil {
		t.Fatalf("expected 7_days to parse, exp=%v err=%v", exp, err)
	}
	if exp, err := ParseExpiry("never"); err != nil || exp != nil {
		t.Fatalf("expected never to parse to nil, exp=%v err=%v", exp, err)
	}
	if _, err := ParseExpiry("not-a-shorthand"); err == nil {
		t.Fatal("expected invalid shorthand to error")
	}
}
