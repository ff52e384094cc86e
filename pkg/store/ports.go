package store

import (
	"context"
	"time"

	"github.com/flowctl/core/pkg/kernel"
)

// UserRepository provides typed access to User rows.
type UserRepository interface {
	Create(ctx context.Context, u User) error
	FindByID(ctx context.Context, id kernel.UserID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u User) error
	SetActive(ctx context.Context, id kernel.UserID, active bool) error
}

// TenantRepository provides typed access to Tenant rows plus the tree walks
// needed by C5 TenantTree.
type TenantRepository interface {
	Create(ctx context.Context, t Tenant) error
	FindByID(ctx context.Context, id kernel.TenantID) (*Tenant, error)
	FindChildren(ctx context.Context, parentID kernel.TenantID) ([]*Tenant, error)
	Update(ctx context.Context, t Tenant) error
	UpdateBalance(ctx context.Context, id kernel.TenantID, delta int64, tokensUsedDelta int64) error
	ClearParent(ctx context.Context, id kernel.TenantID) error
	Delete(ctx context.Context, id kernel.TenantID) error
}

// MembershipRepository provides typed access to Membership rows.
type MembershipRepository interface {
	Create(ctx context.Context, m Membership) error
	Find(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID) (*Membership, error)
	FindByUser(ctx context.Context, userID kernel.UserID) ([]*Membership, error)
	FindByTenant(ctx context.Context, tenantID kernel.TenantID) ([]*Membership, error)
	CountByTenant(ctx context.Context, tenantID kernel.TenantID) (int, error)
	UpdateRole(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID, roleID int) error
	Delete(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID) error
}

// ScopeRepository provides the batch role->scope / custom-role->scope joins
// C4 ScopeEngine needs to assemble a user's expanded scope set in one
// round-trip (§4.7: "one session using JOINs and batch prefetches").
type ScopeRepository interface {
	DefaultScopesForRole(ctx context.Context, roleID int) ([]string, error)
	CustomRolesForUser(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID) ([]CustomRole, error)
	ScopesForCustomRole(ctx context.Context, customRoleID string) ([]string, error)
	InstalledExtensions(ctx context.Context, tenantID kernel.TenantID) ([]string, error)
}

// TokenBlacklistRepository tracks revoked JWTs until natural expiry.
type TokenBlacklistRepository interface {
	Add(ctx context.Context, token string, expiresAt time.Time) error
	Contains(ctx context.Context, token string) (bool, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

// PATRepository provides typed access to PersonalAccessToken rows.
type PATRepository interface {
	Create(ctx context.Context, pat PersonalAccessToken) error
	FindByID(ctx context.Context, id string, userID kernel.UserID) (*PersonalAccessToken, error)
	FindByHash(ctx context.Context, tokenHash string) (*PersonalAccessToken, error)
	FindByUser(ctx context.Context, userID kernel.UserID) ([]*PersonalAccessToken, error)
	Update(ctx context.Context, pat PersonalAccessToken) error
	UpdateLastUsed(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string, userID kernel.UserID) error
}

// UserOAuthRepository provides typed access to UserOAuth rows.
type UserOAuthRepository interface {
	Find(ctx context.Context, userID kernel.UserID, providerID string) (*UserOAuth, error)
	Upsert(ctx context.Context, row UserOAuth) error
	FindExpiringBefore(ctx context.Context, before time.Time) ([]*UserOAuth, error)
	DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error)
}

// InvitationRepository provides typed access to Invitation rows.
type InvitationRepository interface {
	Create(ctx context.Context, inv Invitation) error
	FindByID(ctx context.Context, id string) (*Invitation, error)
	FindPendingByEmail(ctx context.Context, email string) ([]*Invitation, error)
	FindByTenant(ctx context.Context, tenantID kernel.TenantID) ([]*Invitation, error)
	MarkAccepted(ctx context.Context, id string) error
}

// TokenUsageRepository is the append-only usage ledger.
type TokenUsageRepository interface {
	Append(ctx context.Context, row TokenUsage) error
	SumForTenant(ctx context.Context, tenantID kernel.TenantID, since time.Time) (int64, error)
}

// ChainRepository provides typed access to Chain/Step rows (C13).
type ChainRepository interface {
	FindByName(ctx context.Context, tenantID kernel.TenantID, name string) (*Chain, error)
	Steps(ctx context.Context, chainID string) ([]*Step, error)
	Create(ctx context.Context, c Chain) error
	AddStep(ctx context.Context, s Step) error
	Delete(ctx context.Context, chainID string) error
}

// ConversationRepository provides typed access to Conversation/Message rows.
type ConversationRepository interface {
	Find(ctx context.Context, id string) (*Conversation, error)
	Create(ctx context.Context, c Conversation) error
	AppendMessage(ctx context.Context, m Message) error
	Messages(ctx context.Context, conversationID string) ([]*Message, error)
}

// Session is a transactional unit of work. §4.2 requires three multi-row
// operations to be atomic under it: invitation acceptance, tenant deletion
// (cascading to memberships/invitations/usage/PATs/custom-roles and
// clearing child-tenant parent pointers), and billing debit + ledger
// insert.
type Session interface {
	Users() UserRepository
	Tenants() TenantRepository
	Memberships() MembershipRepository
	Scopes() ScopeRepository
	Blacklist() TokenBlacklistRepository
	PATs() PATRepository
	OAuth() UserOAuthRepository
	Invitations() InvitationRepository
	Usage() TokenUsageRepository
	Chains() ChainRepository
	Conversations() ConversationRepository
}

// Store is the top-level entry point: a Session over the default connection
// plus a WithTx helper for atomic multi-repository operations.
type Store interface {
	Session
	WithTx(ctx context.Context, fn func(tx Session) error) error
}
