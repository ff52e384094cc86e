package authsession

import (
	"context"
	"testing"
	"time"

	"github.com/flowctl/core/pkg/billing"
	"github.com/flowctl/core/pkg/cache/cachemem"
	"github.com/flowctl/core/pkg/config"
	"github.com/flowctl/core/pkg/crypto"
	"github.com/flowctl/core/pkg/jobx"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/patmanager"
	"github.com/flowctl/core/pkg/scopes"
	"github.com/flowctl/core/pkg/store"
	"github.com/flowctl/core/pkg/store/storemem"
	"github.com/flowctl/core/pkg/tenanttree"
)

const testMasterKey = "test-master-key"

type fakeEnqueuer struct {
	jobs []jobx.Job
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, job jobx.Job) (string, error) {
	f.jobs = append(f.jobs, job)
	return "job-1", nil
}

func (f *fakeEnqueuer) EnqueueDelayed(_ context.Context, job jobx.Job, _ time.Duration) (string, error) {
	f.jobs = append(f.jobs, job)
	return "job-1", nil
}

func newService(t *testing.T, superadminEmail string) (*Service, *storemem.MemoryStore, *fakeEnqueuer) {
	t.Helper()
	s := storemem.New()
	tree := tenanttree.New(s.Tenants(), s.Memberships())
	engine := scopes.New(s.Scopes(), s.Memberships(), tree, cachemem.New())
	hasher := crypto.NewPATHasher("agixt_", "test-master-key")
	pats := patmanager.New(s.PATs(), engine, hasher)
	gate := billing.New(s, tree, config.Billing{Paused: true})
	jwtService := crypto.NewJWTService("test-secret", "flowctl-core-test", time.Minute, time.Hour, time.Minute)
	jobs := &fakeEnqueuer{}

	svc := New(testMasterKey, superadminEmail, jwtService, pats, s.Blacklist(), s.Users(), s.Memberships(), engine, gate, cachemem.New(), jobs)
	return svc, s, jobs
}

func seedUser(t *testing.T, s *storemem.MemoryStore, userID kernel.UserID, email string, tenantID kernel.TenantID, role int, grantedScopes ...string) {
	t.Helper()
	ctx := context.Background()
	if err := s.Users().Create(ctx, store.User{ID: userID, Email: email, IsActive: true}); err != nil {
		t.Fatalf("Create user: %v", err)
	}
	if err := s.Tenants().Create(ctx, store.Tenant{ID: tenantID, Name: tenantID.String()}); err != nil {
		t.Fatalf("Create tenant: %v", err)
	}
	if err := s.Memberships().Create(ctx, store.Membership{UserID: userID, TenantID: tenantID, RoleID: role}); err != nil {
		t.Fatalf("Create membership: %v", err)
	}
	s.SeedDefaultScopes(role, grantedScopes...)
}

func TestResolveMasterKeyExactMatch(t *testing.T) {
	svc, _, _ := newService(t, "")
	ac, err := svc.Resolve(context.Background(), testMasterKey, kernel.NewTenantID("t1"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !ac.IsAdmin() {
		t.Fatal("expected master key context to be admin")
	}
	if ac.TenantID != kernel.NewTenantID("t1") {
		t.Fatalf("expected requested tenant to carry through, got %v", ac.TenantID)
	}
}

func TestResolveRejectsUnknownBearer(t *testing.T) {
	svc, _, _ := newService(t, "")
	if _, err := svc.Resolve(context.Background(), "not-a-real-token", kernel.TenantID("")); err == nil {
		t.Fatal("expected unrecognized bearer to fail")
	}
}

func TestResolvePATDelegatesToManager(t *testing.T) {
	ctx := context.Background()
	svc, s, _ := newService(t, "")
	userID := kernel.NewUserID("u1")
	tenantID := kernel.NewTenantID("t1")
	seedUser(t, s, userID, "u1@example.com", tenantID, store.RoleUser, "chat:read")

	engine := scopes.New(s.Scopes(), s.Memberships(), tenanttree.New(s.Tenants(), s.Memberships()), cachemem.New())
	pats := patmanager.New(s.PATs(), engine, crypto.NewPATHasher("agixt_", "test-master-key"))
	created, err := pats.Create(ctx, userID, tenantID, patmanager.CreateRequest{Name: "tok1", Scopes: []string{"chat:read"}}, nil, nil)
	if err != nil {
		t.Fatalf("Create PAT: %v", err)
	}

	ac, err := svc.Resolve(ctx, created.Token, tenantID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ac.UserID == nil || *ac.UserID != userID {
		t.Fatalf("expected userID %v, got %v", userID, ac.UserID)
	}
	if !ac.IsAPIKey {
		t.Fatal("expected PAT-derived context to be flagged as API key")
	}
	if len(ac.PATScopes) != 1 || ac.PATScopes[0] != "chat:read" {
		t.Fatalf("unexpected PAT scope overlay: %v", ac.PATScopes)
	}
}

func TestResolveJWTRejectsBlacklisted(t *testing.T) {
	ctx := context.Background()
	svc, s, _ := newService(t, "")
	userID := kernel.NewUserID("u1")
	tenantID := kernel.NewTenantID("t1")
	seedUser(t, s, userID, "u1@example.com", tenantID, store.RoleUser, "chat:read")

	jwtService := crypto.NewJWTService("test-secret", "flowctl-core-test", time.Minute, time.Hour, time.Minute)
	token, err := jwtService.GenerateAccessToken(crypto.Claims{UserID: userID, TenantID: tenantID, Email: "u1@example.com", Scopes: []string{"chat:read"}})
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	svc2 := &Service{
		masterKey:   svc.masterKey,
		jwtService:  jwtService,
		pats:        svc.pats,
		blacklist:   s.Blacklist(),
		users:       s.Users(),
		memberships: s.Memberships(),
		engine:      svc.engine,
		billing:     svc.billing,
		cache:       svc.cache,
		jobs:        svc.jobs,
	}

	if err := s.Blacklist().Add(ctx, token, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Blacklist.Add: %v", err)
	}
	if _, err := svc2.Resolve(ctx, token, kernel.TenantID("")); err == nil {
		t.Fatal("expected blacklisted token to fail")
	}
}

func TestResolveJWTCachesVerifiedClaims(t *testing.T) {
	ctx := context.Background()
	userID := kernel.NewUserID("u1")
	tenantID := kernel.NewTenantID("t1")

	jwtService := crypto.NewJWTService("test-secret", "flowctl-core-test", time.Minute, time.Hour, time.Minute)
	token, err := jwtService.GenerateAccessToken(crypto.Claims{UserID: userID, TenantID: tenantID, Email: "u1@example.com", Scopes: []string{"chat:read"}})
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	svc, _, _ := newService(t, "")
	svc.jwtService = jwtService

	ac1, err := svc.Resolve(ctx, token, kernel.TenantID(""))
	if err != nil {
		t.Fatalf("Resolve (miss): %v", err)
	}
	// Swap in a JWT service that would reject any token, proving the second
	// resolution is served from cache rather than re-verified.
	svc.jwtService = crypto.NewJWTService("different-secret", "flowctl-core-test", time.Minute, time.Hour, time.Minute)
	ac2, err := svc.Resolve(ctx, token, kernel.TenantID(""))
	if err != nil {
		t.Fatalf("Resolve (hit): %v", err)
	}
	if ac1.Email != ac2.Email || ac2.Email != "u1@example.com" {
		t.Fatalf("expected cached claims to match, got %v vs %v", ac1, ac2)
	}
}

func TestBuildProfileAssemblesPerTenantScopesAndPaywall(t *testing.T) {
	ctx := context.Background()
	svc, s, _ := newService(t, "")
	userID := kernel.NewUserID("u1")
	tenantID := kernel.NewTenantID("t1")
	seedUser(t, s, userID, "u1@example.com", tenantID, store.RoleUser, "chat:read")

	profile, err := svc.BuildProfile(ctx, userID)
	if err != nil {
		t.Fatalf("BuildProfile: %v", err)
	}
	if profile.Email != "u1@example.com" {
		t.Fatalf("unexpected email: %s", profile.Email)
	}
	if len(profile.Memberships) != 1 {
		t.Fatalf("expected 1 membership, got %d", len(profile.Memberships))
	}
	m := profile.Memberships[0]
	if m.TenantID != tenantID || len(m.Scopes) != 1 || m.Scopes[0] != "chat:read" {
		t.Fatalf("unexpected membership summary: %+v", m)
	}
	if !m.PaywallOK {
		t.Fatal("expected paywall to pass when billing is paused")
	}
}

func TestPostHydratePromotesSuperadminByEmail(t *testing.T) {
	ctx := context.Background()
	svc, s, _ := newService(t, "root@example.com")
	userID := kernel.NewUserID("u1")
	tenantID := kernel.NewTenantID("t1")
	seedUser(t, s, userID, "root@example.com", tenantID, store.RoleUser, "chat:read")

	ac := &kernel.AuthContext{UserID: &userID, TenantID: tenantID, Email: "root@example.com"}
	if err := svc.PostHydrate(ctx, ac); err != nil {
		t.Fatalf("PostHydrate: %v", err)
	}
	membership, err := s.Memberships().Find(ctx, userID, tenantID)
	if err != nil {
		t.Fatalf("Find membership: %v", err)
	}
	if membership.RoleID != store.RoleSuperAdmin {
		t.Fatalf("expected membership promoted to superadmin, got role %d", membership.RoleID)
	}
}

func TestPostHydrateEnqueuesStripeCheckOncePerWindow(t *testing.T) {
	ctx := context.Background()
	svc, s, jobs := newService(t, "")
	userID := kernel.NewUserID("u1")
	tenantID := kernel.NewTenantID("t1")
	seedUser(t, s, userID, "u1@example.com", tenantID, store.RoleUser, "chat:read")

	ac := &kernel.AuthContext{UserID: &userID, TenantID: tenantID, Email: "u1@example.com"}
	if err := svc.PostHydrate(ctx, ac); err != nil {
		t.Fatalf("PostHydrate (first): %v", err)
	}
	if len(jobs.jobs) != 1 {
		t.Fatalf("expected 1 enqueued job, got %d", len(jobs.jobs))
	}
	if jobs.jobs[0].Type != "stripe_subscription_check" {
		t.Fatalf("unexpected job type: %s", jobs.jobs[0].Type)
	}

	if err := svc.PostHydrate(ctx, ac); err != nil {
		t.Fatalf("PostHydrate (second): %v", err)
	}
	if len(jobs.jobs) != 1 {
		t.Fatalf("expected rate limit to suppress second enqueue, got %d jobs", len(jobs.jobs))
	}
}
