package invitations

import (
	"context"
	"testing"

	"github.com/flowctl/core/pkg/billing"
	"github.com/flowctl/core/pkg/cache/cachemem"
	"github.com/flowctl/core/pkg/config"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/notifx"
	"github.com/flowctl/core/pkg/scopes"
	"github.com/flowctl/core/pkg/store"
	"github.com/flowctl/core/pkg/store/storemem"
	"github.com/flowctl/core/pkg/tenanttree"
)

type capturingNotifier struct {
	sent []notifx.EmailMessage
}

func (c *capturingNotifier) SendEmail(_ context.Context, msg notifx.EmailMessage, _ ...notifx.Option) error {
	c.sent = append(c.sent, msg)
	return nil
}

func newService(t *testing.T) (*Service, *storemem.MemoryStore, *capturingNotifier) {
	t.Helper()
	s := storemem.New()
	tree := tenanttree.New(s.Tenants(), s.Memberships())
	engine := scopes.New(s.Scopes(), s.Memberships(), tree, cachemem.New())
	notifier := &capturingNotifier{}
	gate := billing.New(s, tree, config.Billing{})
	svc := New(s, tree, engine, gate, notifier, "https://app.example.com")
	return svc, s, notifier
}

// seedTenant creates a tenant with enough seats (user_limit) to admit the
// members these tests invite — a zero-balance, zero-limit tenant is
// correctly refused by billing.Gate.CanAdmitMember, same as it would be
// refused on the Check auth-hot-path.
func seedTenant(t *testing.T, s *storemem.MemoryStore, id kernel.TenantID, agentName string) {
	t.Helper()
	if err := s.Tenants().Create(context.Background(), store.Tenant{ID: id, Name: id.String(), AgentName: agentName, UserLimit: 10}); err != nil {
		t.Fatalf("Create tenant: %v", err)
	}
}

func seedAdmin(t *testing.T, s *storemem.MemoryStore, userID kernel.UserID, tenantID kernel.TenantID) {
	t.Helper()
	s.SeedDefaultScopes(store.RoleTenantAdmin, "users:write", "users:read")
	if err := s.Users().Create(context.Background(), store.User{ID: userID, Email: userID.String() + "@example.com", IsActive: true}); err != nil {
		t.Fatalf("Create admin user: %v", err)
	}
	if err := s.Memberships().Create(context.Background(), store.Membership{UserID: userID, TenantID: tenantID, RoleID: store.RoleTenantAdmin}); err != nil {
		t.Fatalf("Create admin membership: %v", err)
	}
}

func TestIssueRequiresUsersWriteScope(t *testing.T) {
	ctx := context.Background()
	svc, s, _ := newService(t)
	tenantID := kernel.NewTenantID("t1")
	seedTenant(t, s, tenantID, "DefaultAgent")

	powerless := kernel.NewUserID("powerless")
	if err := s.Users().Create(ctx, store.User{ID: powerless, Email: "powerless@example.com", IsActive: true}); err != nil {
		t.Fatalf("Create user: %v", err)
	}
	if err := s.Memberships().Create(ctx, store.Membership{UserID: powerless, TenantID: tenantID, RoleID: store.RoleUser}); err != nil {
		t.Fatalf("Create membership: %v", err)
	}

	_, err := svc.Issue(ctx, powerless, IssueRequest{Email: "new@example.com", TenantID: tenantID, RoleID: store.RoleUser})
	if err == nil {
		t.Fatal("expected Issue to fail without users:write scope")
	}
}

func TestIssueRejectsRoleHigherThanInviter(t *testing.T) {
	ctx := context.Background()
	svc, s, _ := newService(t)
	tenantID := kernel.NewTenantID("t1")
	seedTenant(t, s, tenantID, "DefaultAgent")
	admin := kernel.NewUserID("admin")
	seedAdmin(t, s, admin, tenantID)

	_, err := svc.Issue(ctx, admin, IssueRequest{Email: "new@example.com", TenantID: tenantID, RoleID: store.RoleSuperAdmin})
	if err == nil {
		t.Fatal("expected Issue to reject an assigned role outranking the inviter")
	}
}

func TestIssueSendsEmailAndPersists(t *testing.T) {
	ctx := context.Background()
	svc, s, notifier := newService(t)
	tenantID := kernel.NewTenantID("t1")
	seedTenant(t, s, tenantID, "DefaultAgent")
	admin := kernel.NewUserID("admin")
	seedAdmin(t, s, admin, tenantID)

	inv, err := svc.Issue(ctx, admin, IssueRequest{Email: "new@example.com", TenantID: tenantID, RoleID: store.RoleUser})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if inv.IsAccepted {
		t.Fatal("new invitation should not already be accepted")
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected one invite email, got %d", len(notifier.sent))
	}
	if notifier.sent[0].To[0] != "new@example.com" {
		t.Fatalf("unexpected recipient %q", notifier.sent[0].To[0])
	}
}

func TestAcceptCreatesMembershipAndDefaultConversation(t *testing.T) {
	ctx := context.Background()
	svc, s, _ := newService(t)
	tenantID := kernel.NewTenantID("t1")
	seedTenant(t, s, tenantID, "HelperBot")
	admin := kernel.NewUserID("admin")
	seedAdmin(t, s, admin, tenantID)

	inv, err := svc.Issue(ctx, admin, IssueRequest{Email: "new@example.com", TenantID: tenantID, RoleID: store.RoleUser})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	invited := kernel.NewUserID("invited")
	if err := s.Users().Create(ctx, store.User{ID: invited, Email: "new@example.com", IsActive: true}); err != nil {
		t.Fatalf("Create invited user: %v", err)
	}

	result, err := svc.Accept(ctx, inv.ID, invited)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if result.Reactivated {
		t.Fatal("expected no reactivation for an already-active user")
	}
	if result.Membership.RoleID != store.RoleUser {
		t.Fatalf("unexpected membership role %d", result.Membership.RoleID)
	}
	if len(result.Conversation.Participants) != 2 || result.Conversation.Participants[1] != "agent:HelperBot" {
		t.Fatalf("expected default agent participant, got %v", result.Conversation.Participants)
	}
	if !result.Conversation.HasAgentParticipant() {
		t.Fatal("expected provisioned conversation to report an agent participant")
	}

	m, err := s.Memberships().Find(ctx, invited, tenantID)
	if err != nil || m == nil {
		t.Fatalf("expected membership to be persisted, err=%v", err)
	}
}

func TestAcceptReactivatesInactiveUser(t *testing.T) {
	ctx := context.Background()
	svc, s, _ := newService(t)
	tenantID := kernel.NewTenantID("t1")
	seedTenant(t, s, tenantID, "HelperBot")
	admin := kernel.NewUserID("admin")
	seedAdmin(t, s, admin, tenantID)

	inv, err := svc.Issue(ctx, admin, IssueRequest{Email: "dormant@example.com", TenantID: tenantID, RoleID: store.RoleUser})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	dormant := kernel.NewUserID("dormant")
	if err := s.Users().Create(ctx, store.User{ID: dormant, Email: "dormant@example.com", IsActive: false}); err != nil {
		t.Fatalf("Create dormant user: %v", err)
	}

	result, err := svc.Accept(ctx, inv.ID, dormant)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if !result.Reactivated {
		t.Fatal("expected dormant user to be reactivated")
	}

	u, err := s.Users().FindByID(ctx, dormant)
	if err != nil || u == nil || !u.IsActive {
		t.Fatalf("expected user to be active after acceptance, err=%v", err)
	}
}

func TestAcceptRejectsReplay(t *testing.T) {
	ctx := context.Background()
	svc, s, _ := newService(t)
	tenantID := kernel.NewTenantID("t1")
	seedTenant(t, s, tenantID, "HelperBot")
	admin := kernel.NewUserID("admin")
	seedAdmin(t, s, admin, tenantID)

	inv, err := svc.Issue(ctx, admin, IssueRequest{Email: "new@example.com", TenantID: tenantID, RoleID: store.RoleUser})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	invited := kernel.NewUserID("invited")
	if err := s.Users().Create(ctx, store.User{ID: invited, Email: "new@example.com", IsActive: true}); err != nil {
		t.Fatalf("Create invited user: %v", err)
	}

	if _, err := svc.Accept(ctx, inv.ID, invited); err != nil {
		t.Fatalf("first Accept: %v", err)
	}
	if _, err := svc.Accept(ctx, inv.ID, invited); err == nil {
		t.Fatal("expected replayed acceptance to fail")
	}
}
