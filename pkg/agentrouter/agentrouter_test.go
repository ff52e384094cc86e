package agentrouter

import (
	"context"
	"testing"

	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/logx"
	"github.com/flowctl/core/pkg/store"
	"github.com/flowctl/core/pkg/store/storemem"
	"github.com/flowctl/core/pkg/tenanttree"
)

func newRouter(t *testing.T) (*Router, *storemem.MemoryStore) {
	t.Helper()
	s := storemem.New()
	tree := tenanttree.New(s.Tenants(), s.Memberships())
	r := New(s.Tenants(), s.Memberships(), s.Conversations(), tree, logx.NewLogger(nil))
	return r, s
}

func seedMember(t *testing.T, s *storemem.MemoryStore, userID kernel.UserID, tenantID kernel.TenantID, agentName string, roleID int) {
	t.Helper()
	ctx := context.Background()
	if err := s.Tenants().Create(ctx, store.Tenant{ID: tenantID, Name: tenantID.String(), AgentName: agentName}); err != nil {
		t.Fatalf("Create tenant: %v", err)
	}
	if err := s.Memberships().Create(ctx, store.Membership{UserID: userID, TenantID: tenantID, RoleID: roleID}); err != nil {
		t.Fatalf("Create membership: %v", err)
	}
}

func TestRouteDefaultsToConversationTenantAgent(t *testing.T) {
	ctx := context.Background()
	r, s := newRouter(t)
	userID := kernel.NewUserID("u1")
	tenantID := kernel.NewTenantID("t1")
	seedMember(t, s, userID, tenantID, "DefaultAgent", store.RoleUser)

	conv := store.Conversation{ID: "c1", TenantID: tenantID, Type: store.ConversationSingle}
	result, err := r.Route(ctx, userID, conv, nil, "hello there, no mentions here")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if result.AgentName != "DefaultAgent" || result.Rerouted {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestRouteReroutesToBarewordMentionWithinTenant(t *testing.T) {
	ctx := context.Background()
	r, s := newRouter(t)
	userID := kernel.NewUserID("u1")
	tenantID := kernel.NewTenantID("t1")
	seedMember(t, s, userID, tenantID, "DefaultAgent", store.RoleUser)

	conv := store.Conversation{ID: "c1", TenantID: tenantID, Type: store.ConversationSingle}
	result, err := r.Route(ctx, userID, conv, nil, "@DefaultAgent can you help me")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !result.Rerouted || result.AgentName != "DefaultAgent" {
		t.Fatalf("expected reroute to DefaultAgent, got %+v", result)
	}
}

func TestRouteLongestMatchWins(t *testing.T) {
	ctx := context.Background()
	r, s := newRouter(t)
	userID := kernel.NewUserID("u1")
	tenantA := kernel.NewTenantID("ta")
	tenantB := kernel.NewTenantID("tb")
	seedMember(t, s, userID, tenantA, "Bot", store.RoleTenantAdmin)
	// BotHelper lives under a tenant reachable via admin-descendant reach.
	if err := s.Tenants().Update(ctx, store.Tenant{ID: tenantA, Name: "ta", AgentName: "Bot"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	childTenant := tenantB
	if err := s.Tenants().Create(ctx, store.Tenant{ID: childTenant, Name: "tb", AgentName: "BotHelper", ParentID: &tenantA}); err != nil {
		t.Fatalf("Create child tenant: %v", err)
	}

	conv := store.Conversation{ID: "c1", TenantID: childTenant, Type: store.ConversationSingle}
	result, err := r.Route(ctx, userID, conv, nil, "@BotHelper please summarize this")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if result.AgentName != "BotHelper" {
		t.Fatalf("expected longest match BotHelper, got %q", result.AgentName)
	}
}

func TestRouteStripsCrossTenantMentionWithoutRerouting(t *testing.T) {
	ctx := context.Background()
	r, s := newRouter(t)
	userID := kernel.NewUserID("u1")
	tenantA := kernel.NewTenantID("ta")
	tenantB := kernel.NewTenantID("tb")
	seedMember(t, s, userID, tenantA, "HomeAgent", store.RoleUser)
	seedMember(t, s, userID, tenantB, "Helper", store.RoleUser)

	conv := store.Conversation{ID: "c1", TenantID: tenantA, Type: store.ConversationSingle}
	result, err := r.Route(ctx, userID, conv, nil, "@Helper what's up")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if result.Rerouted {
		t.Fatal("expected no reroute for a cross-tenant mention")
	}
	if !result.CrossTenantBlocked {
		t.Fatal("expected cross-tenant mention to be flagged")
	}
	if result.AgentName != "HomeAgent" {
		t.Fatalf("expected fallback to conversation's own tenant agent, got %q", result.AgentName)
	}
	if result.Message != "what's up" {
		t.Fatalf("expected mention stripped from message, got %q", result.Message)
	}
}

func TestRouteBlocksDMWithoutAgentParticipant(t *testing.T) {
	ctx := context.Background()
	r, s := newRouter(t)
	userID := kernel.NewUserID("u1")
	tenantID := kernel.NewTenantID("t1")
	seedMember(t, s, userID, tenantID, "DefaultAgent", store.RoleUser)

	conv := store.Conversation{ID: "c1", TenantID: tenantID, Type: store.ConversationDM, Participants: []string{"u1", "u2"}}
	_, err := r.Route(ctx, userID, conv, nil, "@DefaultAgent help")
	if err == nil {
		t.Fatal("expected DM without agent participant to be rejected")
	}
}

func TestRouteAllowsDMWithAgentParticipant(t *testing.T) {
	ctx := context.Background()
	r, s := newRouter(t)
	userID := kernel.NewUserID("u1")
	tenantID := kernel.NewTenantID("t1")
	seedMember(t, s, userID, tenantID, "DefaultAgent", store.RoleUser)

	conv := store.Conversation{ID: "c1", TenantID: tenantID, Type: store.ConversationDM, Participants: []string{"u1", "agent:DefaultAgent"}}
	result, err := r.Route(ctx, userID, conv, nil, "hi there")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if result.AgentName != "DefaultAgent" {
		t.Fatalf("unexpected agent %q", result.AgentName)
	}
}

func TestRouteBlocksThreadWhoseParentIsDM(t *testing.T) {
	ctx := context.Background()
	r, s := newRouter(t)
	userID := kernel.NewUserID("u1")
	tenantID := kernel.NewTenantID("t1")
	seedMember(t, s, userID, tenantID, "DefaultAgent", store.RoleUser)

	parent := &store.Conversation{ID: "parent", TenantID: tenantID, Type: store.ConversationDM}
	conv := store.Conversation{ID: "thread1", TenantID: tenantID, Type: store.ConversationThread}
	_, err := r.Route(ctx, userID, conv, parent, "@DefaultAgent help")
	if err == nil {
		t.Fatal("expected thread-of-dm to be blocked")
	}
}
