package storemem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/store"
)

func errType(t *testing.T, err error) errx.Type {
	t.Helper()
	var e *errx.Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *errx.Error, got %T (%v)", err, err)
	}
	return e.Type
}

func TestUserCreateAndFind(t *testing.T) {
	ctx := context.Background()
	s := New()

	u := store.User{ID: kernel.NewUserID("u1"), Email: "a@example.com", IsActive: true, CreatedAt: time.Now()}
	if err := s.Users().Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Users().FindByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("expected id %s, got %s", u.ID, got.ID)
	}

	if err := s.Users().Create(ctx, u); err == nil {
		t.Fatal("expected conflict on duplicate email")
	} else if errType(t, err) != errx.TypeConflict {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestTenantBalanceUpdate(t *testing.T) {
	ctx := context.Background()
	s := New()

	tid := kernel.NewTenantID("t1")
	if err := s.Tenants().Create(ctx, store.Tenant{ID: tid, Name: "root", TokenBalance: 100}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.Tenants().UpdateBalance(ctx, tid, -30, 30); err != nil {
		t.Fatalf("UpdateBalance: %v", err)
	}

	got, err := s.Tenants().FindByID(ctx, tid)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.TokenBalance != 70 {
		t.Fatalf("expected balance 70, got %d", got.TokenBalance)
	}
	if got.TokensUsedTotal != 30 {
		t.Fatalf("expected tokens used 30, got %d", got.TokensUsedTotal)
	}
}

func TestMembershipAndScopeBatchPrefetch(t *testing.T) {
	ctx := context.Background()
	s := New()

	uid := kernel.NewUserID("u1")
	tid := kernel.NewTenantID("t1")

	if err := s.Memberships().Create(ctx, store.Membership{UserID: uid, TenantID: tid, RoleID: store.RoleUser}); err != nil {
		t.Fatalf("Create membership: %v", err)
	}

	s.SeedDefaultScopes(store.RoleUser, "agents:read", "chains:read")
	s.SeedCustomRole(uid, tid, store.CustomRole{ID: "cr1", TenantID: tid, Name: "reviewer", IsActive: true}, "chains:write")

	scopes, err := s.Scopes().DefaultScopesForRole(ctx, store.RoleUser)
	if err != nil || len(scopes) != 2 {
		t.Fatalf("DefaultScopesForRole: %v %v", scopes, err)
	}

	roles, err := s.Scopes().CustomRolesForUser(ctx, uid, tid)
	if err != nil || len(roles) != 1 {
		t.Fatalf("CustomRolesForUser: %v %v", roles, err)
	}

	roleScopes, err := s.Scopes().ScopesForCustomRole(ctx, roles[0].ID)
	if err != nil || len(roleScopes) != 1 || roleScopes[0] != "chains:write" {
		t.Fatalf("ScopesForCustomRole: %v %v", roleScopes, err)
	}
}

func TestPATLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	uid := kernel.NewUserID("u1")

	pat := store.PersonalAccessToken{ID: "p1", UserID: uid, Name: "ci", TokenHash: "hash1"}
	if err := s.PATs().Create(ctx, pat); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.PATs().Create(ctx, pat); err == nil {
		t.Fatal("expected conflict on duplicate name")
	}

	found, err := s.PATs().FindByHash(ctx, "hash1")
	if err != nil || found.ID != "p1" {
		t.Fatalf("FindByHash: %v %v", found, err)
	}

	if err := s.PATs().Delete(ctx, "p1", uid); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.PATs().FindByID(ctx, "p1", uid); errType(t, err) != errx.TypeNotFound {
		t.Fatalf("expected not-found after delete, got %v", err)
	}
}

func TestChainStepsOrdering(t *testing.T) {
	ctx := context.Background()
	s := New()
	tid := kernel.NewTenantID("t1")

	chain := store.Chain{ID: "c1", TenantID: tid, Name: "pipeline"}
	if err := s.Chains().Create(ctx, chain); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.Chains().AddStep(ctx, store.Step{ChainID: "c1", StepNumber: 2, AgentName: "b"}); err != nil {
		t.Fatalf("AddStep 2: %v", err)
	}
	if err := s.Chains().AddStep(ctx, store.Step{ChainID: "c1", StepNumber: 1, AgentName: "a"}); err != nil {
		t.Fatalf("AddStep 1: %v", err)
	}

	steps, err := s.Chains().Steps(ctx, "c1")
	if err != nil || len(steps) != 2 {
		t.Fatalf("Steps: %v %v", steps, err)
	}
	if steps[0].AgentName != "a" || steps[1].AgentName != "b" {
		t.Fatalf("expected steps sorted by step number, got %+v", steps)
	}
}

func TestConversationMessages(t *testing.T) {
	ctx := context.Background()
	s := New()
	tid := kernel.NewTenantID("t1")

	conv := store.Conversation{ID: "conv1", TenantID: tid, Type: store.ConversationDM, Participants: []string{"u1", "agent:bot"}}
	if err := s.Conversations().Create(ctx, conv); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !conv.HasAgentParticipant() {
		t.Fatal("expected agent participant to be detected")
	}

	if err := s.Conversations().AppendMessage(ctx, store.Message{ID: "m1", ConversationID: "conv1", Role: "user", Content: "hi"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	msgs, err := s.Conversations().Messages(ctx, "conv1")
	if err != nil || len(msgs) != 1 {
		t.Fatalf("Messages: %v %v", msgs, err)
	}
}
