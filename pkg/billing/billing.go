// Package billing is C6 BillingGate: pricing-mode evaluation, balance
// checks, atomic usage debit against the root ancestor tenant, and
// low-balance warnings. Grounded on the teacher's WithTx composition pattern
// (pkg/store/storepg/store.go) for the debit+ledger-insert atomicity the
// spec requires.
package billing

import (
	"context"
	"net/http"
	"time"

	"github.com/flowctl/core/pkg/config"
	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/metrics"
	"github.com/flowctl/core/pkg/store"
	"github.com/flowctl/core/pkg/tenanttree"
)

var ErrRegistry = errx.NewRegistry("BILLING")

var CodePaymentRequired = ErrRegistry.Register("PAYMENT_REQUIRED", errx.TypeBusiness, http.StatusPaymentRequired, "insufficient balance")
var CodeCapacityExceeded = ErrRegistry.Register("CAPACITY_EXCEEDED", errx.TypeBusiness, http.StatusPaymentRequired, "tenant has reached its seat, capacity, or location limit")

// ErrPaymentRequired carries the wallet address and outstanding price so a
// client can render a top-up prompt.
func ErrPaymentRequired(walletAddress string, price float64) *errx.Error {
	return ErrRegistry.New(CodePaymentRequired).
		WithDetail("wallet_address", walletAddress).
		WithDetail("price", price)
}

// ErrCapacityExceeded is raised by admission checks (CanAdmitMember,
// CanAdmitChildTenant) when a tenant is at its per_user/per_capacity/
// per_location cap and has no balance to fall back on.
func ErrCapacityExceeded() *errx.Error {
	return ErrRegistry.New(CodeCapacityExceeded)
}

// Gate evaluates the pricing mode in effect for a tenant's root ancestor and
// enforces it on the auth-hot-path and the usage-debit path.
type Gate struct {
	tenants store.TenantRepository
	usage   store.TokenUsageRepository
	withTx  func(ctx context.Context, fn func(tx store.Session) error) error
	tree    *tenanttree.Tree
	cfg     config.Billing
}

func New(s store.Store, tree *tenanttree.Tree, cfg config.Billing) *Gate {
	return &Gate{
		tenants: s.Tenants(),
		usage:   s.Usage(),
		withTx:  s.WithTx,
		tree:    tree,
		cfg:     cfg,
	}
}

// Mode is one of the four pricing modes enumerated in §4.6.
type Mode string

const (
	ModePerToken    Mode = "per_token"
	ModePerUser     Mode = "per_user"
	ModePerCapacity Mode = "per_capacity"
	ModePerLocation Mode = "per_location"
)

// ModeFor reports the pricing mode currently active for root, derived from
// its configuration. per_token is the default when token pricing is
// configured; otherwise root.PricingMode disambiguates what its UserLimit
// counts — seats (per_user), declared capacity (per_capacity), or child
// tenants (per_location) — since all three share the same UserLimit field.
func (g *Gate) ModeFor(root *store.Tenant) Mode {
	if g.cfg.TokenPricePerMillion > 0 {
		return ModePerToken
	}
	if root.UserLimit <= 0 {
		return ModePerCapacity
	}
	switch root.PricingMode {
	case "location":
		return ModePerLocation
	case "capacity":
		return ModePerCapacity
	default:
		return ModePerUser
	}
}

// Check is called on the auth-hot-path: grants access, or raises
// ErrPaymentRequired. Superadmins and membership-based requests carrying a
// superadmin role must be excluded by the caller before Check runs — Check
// itself only knows about tenant balance, not role.
func (g *Gate) Check(ctx context.Context, tenantID kernel.TenantID) error {
	if g.cfg.Paused {
		return nil
	}
	root, err := g.tree.Root(ctx, tenantID)
	if err != nil {
		return err
	}
	switch g.ModeFor(root) {
	case ModePerToken:
		if root.TokenBalance <= 0 {
			return ErrPaymentRequired(g.cfg.WalletAddress, g.cfg.TokenPricePerMillion)
		}
	case ModePerUser, ModePerCapacity, ModePerLocation:
		if root.TokenBalance <= 0 && root.UserLimit <= 0 {
			return ErrPaymentRequired(g.cfg.WalletAddress, g.cfg.TokenPricePerMillion)
		}
	}
	return nil
}

// CanAdmitMember reports whether directTenant may gain one more membership
// under the per_user/per_capacity modes, falling back to a balance check for
// any other mode.
func (g *Gate) CanAdmitMember(ctx context.Context, directTenant *store.Tenant, memberships store.MembershipRepository) (bool, error) {
	root, err := g.tree.Root(ctx, directTenant.ID)
	if err != nil {
		return false, err
	}
	switch g.ModeFor(root) {
	case ModePerUser:
		count, err := memberships.CountByTenant(ctx, directTenant.ID)
		if err != nil {
			return false, errx.Wrap(err, "failed to count tenant members", errx.TypeInternal)
		}
		if count < root.UserLimit {
			return true, nil
		}
		return root.TokenBalance > 0, nil
	case ModePerCapacity:
		return root.TokenBalance > 0 || root.UserLimit > 0, nil
	default:
		return root.TokenBalance > 0, nil
	}
}

// CanAdmitChildTenant reports whether a new child tenant may be created
// under root in per_location mode: descendants(root)+1 <= UserLimit, falling
// back to balance for any other mode.
func (g *Gate) CanAdmitChildTenant(ctx context.Context, root *store.Tenant) (bool, error) {
	if g.ModeFor(root) != ModePerLocation {
		return root.TokenBalance > 0, nil
	}
	descendants, err := g.tree.Descendants(ctx, root.ID)
	if err != nil {
		return false, err
	}
	return len(descendants)+1 <= root.UserLimit, nil
}

// CreateChildTenant admits a new child tenant under parent after confirming
// the parent's root ancestor has room under CanAdmitChildTenant, then
// persists it. This is the single enforcement point for per_location caps:
// nothing else in the codebase is allowed to call tenants.Create for a
// tenant carrying a ParentID.
func (g *Gate) CreateChildTenant(ctx context.Context, parent *store.Tenant, child store.Tenant) (*store.Tenant, error) {
	root, err := g.tree.Root(ctx, parent.ID)
	if err != nil {
		return nil, err
	}
	ok, err := g.CanAdmitChildTenant(ctx, root)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCapacityExceeded()
	}
	child.ParentID = &parent.ID
	if err := g.tenants.Create(ctx, child); err != nil {
		return nil, errx.Wrap(err, "failed to create child tenant", errx.TypeInternal)
	}
	return &child, nil
}

// Debit atomically reduces the root ancestor's token balance by the total of
// inTokens+outTokens and appends a usage ledger row referencing the direct
// tenant. In per_token mode it fails with ErrPaymentRequired if the root
// balance can't cover it; in the other modes the debit is applied without a
// balance check.
func (g *Gate) Debit(ctx context.Context, userID kernel.UserID, directTenantID kernel.TenantID, inTokens, outTokens int64) error {
	if g.cfg.Paused {
		return nil
	}
	root, err := g.tree.Root(ctx, directTenantID)
	if err != nil {
		metrics.BillingDebitsTotal.WithLabelValues("error").Inc()
		return err
	}
	total := inTokens + outTokens
	if g.ModeFor(root) == ModePerToken && root.TokenBalance < total {
		metrics.BillingDebitsTotal.WithLabelValues("payment_required").Inc()
		return ErrPaymentRequired(g.cfg.WalletAddress, g.cfg.TokenPricePerMillion)
	}

	err = g.withTx(ctx, func(tx store.Session) error {
		if err := tx.Tenants().UpdateBalance(ctx, root.ID, -total, total); err != nil {
			return errx.Wrap(err, "failed to debit tenant balance", errx.TypeInternal)
		}
		return tx.Usage().Append(ctx, store.TokenUsage{
			TenantID:     directTenantID,
			UserID:       userID,
			InputTokens:  inTokens,
			OutputTokens: outTokens,
			TotalTokens:  total,
			Timestamp:    time.Now(),
		})
	})
	if err != nil {
		metrics.BillingDebitsTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.BillingDebitsTotal.WithLabelValues("ok").Inc()
	return nil
}

// LowBalanceWarning reports true when root's balance has dropped to or below
// the configured threshold, then records the warning so Debit-driven repeat
// calls don't re-fire on every single token spent. A tenant that tops back
// up above the threshold and drops below it again always re-warns, since
// crossing the threshold is itself evidence of a fresh WarningIncrement-sized
// drop.
func (g *Gate) LowBalanceWarning(ctx context.Context, root *store.Tenant) (bool, error) {
	if root.TokenBalance > g.cfg.LowBalanceThreshold {
		if root.LastLowBalanceWarning != nil {
			updated := *root
			updated.LastLowBalanceWarning = nil
			if err := g.tenants.Update(ctx, updated); err != nil {
				return false, errx.Wrap(err, "failed to clear low balance warning", errx.TypeInternal)
			}
		}
		return false, nil
	}
	if root.LastLowBalanceWarning != nil {
		return false, nil
	}
	now := time.Now()
	updated := *root
	updated.LastLowBalanceWarning = &now
	if err := g.tenants.Update(ctx, updated); err != nil {
		return false, errx.Wrap(err, "failed to record low balance warning", errx.TypeInternal)
	}
	return true, nil
}
