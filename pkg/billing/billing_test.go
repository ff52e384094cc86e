package billing

import (
	"context"
	"testing"

	"github.com/flowctl/core/pkg/config"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/store"
	"github.com/flowctl/core/pkg/store/storemem"
	"github.com/flowctl/core/pkg/tenanttree"
)

func newGate(t *testing.T, cfg config.Billing) (*Gate, *storemem.MemoryStore) {
	t.Helper()
	s := storemem.New()
	tree := tenanttree.New(s.Tenants(), s.Memberships())
	return New(s, tree, cfg), s
}

func TestCheckPerTokenRequiresPositiveBalance(t *testing.T) {
	ctx := context.Background()
	gate, s := newGate(t, config.Billing{TokenPricePerMillion: 10, WalletAddress: "0xabc"})
	tenantID := kernel.NewTenantID("t1")
	if err := s.Tenants().Create(ctx, store.Tenant{ID: tenantID, Name: "t1", TokenBalance: 0}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := gate.Check(ctx, tenantID); err == nil {
		t.Fatal("expected payment required for zero balance")
	}

	if err := s.Tenants().Create(ctx, store.Tenant{ID: kernel.NewTenantID("t2"), Name: "t2", TokenBalance: 100}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := gate.Check(ctx, kernel.NewTenantID("t2")); err != nil {
		t.Fatalf("expected check to pass with positive balance: %v", err)
	}
}

func TestCheckBypassedWhenBillingPaused(t *testing.T) {
	ctx := context.Background()
	gate, s := newGate(t, config.Billing{TokenPricePerMillion: 10, Paused: true})
	tenantID := kernel.NewTenantID("t1")
	if err := s.Tenants().Create(ctx, store.Tenant{ID: tenantID, Name: "t1", TokenBalance: 0}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := gate.Check(ctx, tenantID); err != nil {
		t.Fatalf("expected paused billing to bypass the check: %v", err)
	}
}

func TestDebitReducesRootBalanceAndAppendsLedger(t *testing.T) {
	ctx := context.Background()
	gate, s := newGate(t, config.Billing{TokenPricePerMillion: 10})
	rootID := kernel.NewTenantID("root")
	if err := s.Tenants().Create(ctx, store.Tenant{ID: rootID, Name: "root", TokenBalance: 1000}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	userID := kernel.NewUserID("u1")
	if err := gate.Debit(ctx, userID, rootID, 50, 25); err != nil {
		t.Fatalf("Debit: %v", err)
	}

	updated, err := s.Tenants().FindByID(ctx, rootID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if updated.TokenBalance != 925 {
		t.Fatalf("expected balance 925, got %d", updated.TokenBalance)
	}
	if updated.TokensUsedTotal != 75 {
		t.Fatalf("expected tokens used total 75, got %d", updated.TokensUsedTotal)
	}

	used, err := s.Usage().SumForTenant(ctx, rootID, updated.CreatedAt)
	if err != nil {
		t.Fatalf("SumForTenant: %v", err)
	}
	if used != 75 {
		t.Fatalf("expected ledger sum 75, got %d", used)
	}
}

func TestDebitFailsWhenBalanceInsufficient(t *testing.T) {
	ctx := context.Background()
	gate, s := newGate(t, config.Billing{TokenPricePerMillion: 10})
	rootID := kernel.NewTenantID("root")
	if err := s.Tenants().Create(ctx, store.Tenant{ID: rootID, Name: "root", TokenBalance: 10}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := gate.Debit(ctx, kernel.NewUserID("u1"), rootID, 50, 50); err == nil {
		t.Fatal("expected payment required error")
	}
}

func TestLowBalanceWarningFiresOnceUntilClear(t *testing.T) {
	ctx := context.Background()
	gate, s := newGate(t, config.Billing{LowBalanceThreshold: 100})
	rootID := kernel.NewTenantID("root")
	if err := s.Tenants().Create(ctx, store.Tenant{ID: rootID, Name: "root", TokenBalance: 50}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	tenant, _ := s.Tenants().FindByID(ctx, rootID)

	warned, err := gate.LowBalanceWarning(ctx, tenant)
	if err != nil || !warned {
		t.Fatalf("expected first warning to fire, warned=%v err=%v", warned, err)
	}

	tenant, _ = s.Tenants().FindByID(ctx, rootID)
	warned, err = gate.LowBalanceWarning(ctx, tenant)
	if err != nil || warned {
		t.Fatalf("expected repeat warning to be suppressed, warned=%v err=%v", warned, err)
	}
}
