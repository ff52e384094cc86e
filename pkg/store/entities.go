// Package store provides typed read/write access over the persistent
// entities of the system (C2 Store): users, tenants, memberships, roles,
// scopes, PATs, OAuth credentials, the token blacklist, billing balances and
// the usage ledger.
package store

import (
	"time"

	"github.com/flowctl/core/pkg/kernel"
)

// User is an account holder. Deletion is soft (IsActive=false); inactive
// users may not authenticate but may be reactivated by invitation
// acceptance (C11).
type User struct {
	ID        kernel.UserID `db:"id" json:"id"`
	Email     string        `db:"email" json:"email"` // unique, lowercased
	MFASeed   string        `db:"mfa_seed" json:"-"`   // base32, opaque
	IsActive  bool          `db:"is_active" json:"is_active"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// TenantStatus flags a suspended tenant (paywall/seat/admin action).
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

// Tenant ("company") forms a forest via ParentID. Billing authority is read
// from the root ancestor (§4.5/§4.6).
type Tenant struct {
	ID                    kernel.TenantID  `db:"id" json:"id"`
	Name                  string           `db:"name" json:"name"`
	ParentID              *kernel.TenantID `db:"parent_id" json:"parent_id,omitempty"`
	AgentName             string           `db:"agent_name" json:"agent_name"`
	TokenBalance          int64            `db:"token_balance" json:"token_balance"`
	TokenBalanceUSD       float64          `db:"token_balance_usd" json:"token_balance_usd"`
	TokensUsedTotal       int64            `db:"tokens_used_total" json:"tokens_used_total"`
	UserLimit             int              `db:"user_limit" json:"user_limit"`
	// PricingMode pins root.UserLimit's meaning explicitly ("user", "capacity",
	// or "location") so billing.Gate.ModeFor doesn't have to guess from
	// UserLimit alone; empty defaults to "user" for tenants created before
	// this column existed.
	PricingMode           string           `db:"pricing_mode" json:"pricing_mode,omitempty"`
	LastLowBalanceWarning *time.Time       `db:"last_low_balance_warning" json:"last_low_balance_warning,omitempty"`
	TrainingData          string           `db:"training_data" json:"training_data,omitempty"`
	Status                TenantStatus     `db:"status" json:"status"`
	CreatedAt             time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time        `db:"updated_at" json:"updated_at"`
}

func (t *Tenant) IsActive() bool { return t.Status != TenantStatusSuspended }

// Role tiers, per GLOSSARY: 0 super-admin, 1 tenant-admin, 2 company-admin,
// 3+ users/custom.
const (
	RoleSuperAdmin   = 0
	RoleTenantAdmin  = 1
	RoleCompanyAdmin = 2
	RoleUser         = 3
)

// Membership is the (user, tenant, role) tuple. At most one per (user,
// tenant).
type Membership struct {
	UserID    kernel.UserID   `db:"user_id" json:"user_id"`
	TenantID  kernel.TenantID `db:"tenant_id" json:"tenant_id"`
	RoleID    int             `db:"role_id" json:"role_id"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

func (m Membership) IsAdmin() bool { return m.RoleID <= RoleTenantAdmin }

// Role names a built-in role tier for display/config purposes.
type Role struct {
	ID   int    `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Scope is an immutable capability identifier, form `resource:action` or
// `ext:<name>[:feature]:<action>`; wildcard forms are stored verbatim and
// expanded at check time (§4.4, pkg/scopes).
type Scope struct {
	Name string `db:"name" json:"name"`
}

// DefaultRoleScope links a built-in role to a scope string (incl. wildcard
// forms) at configuration time.
type DefaultRoleScope struct {
	RoleID int    `db:"role_id" json:"role_id"`
	Scope  string `db:"scope" json:"scope"`
}

// CustomRole is a tenant-defined role assignable to users in addition to the
// built-in tier.
type CustomRole struct {
	ID       string          `db:"id" json:"id"`
	TenantID kernel.TenantID `db:"tenant_id" json:"tenant_id"`
	Name     string          `db:"name" json:"name"`
	IsActive bool            `db:"is_active" json:"is_active"`
}

// CustomRoleScope links a CustomRole to a scope string.
type CustomRoleScope struct {
	CustomRoleID string `db:"custom_role_id" json:"custom_role_id"`
	Scope        string `db:"scope" json:"scope"`
}

// UserCustomRole assigns a CustomRole to a user within a tenant.
type UserCustomRole struct {
	UserID       kernel.UserID   `db:"user_id" json:"user_id"`
	TenantID     kernel.TenantID `db:"tenant_id" json:"tenant_id"`
	CustomRoleID string          `db:"custom_role_id" json:"custom_role_id"`
}

// TenantExtension marks an extension as installed/configured for a tenant;
// used to restrict ext:* wildcard expansion (§4.4 step 3).
type TenantExtension struct {
	TenantID      kernel.TenantID `db:"tenant_id" json:"tenant_id"`
	ExtensionName string          `db:"extension_name" json:"extension_name"`
}

// TokenBlacklist holds revoked JWTs until their natural expiry, at which
// point a maintenance task purges them.
type TokenBlacklist struct {
	Token     string    `db:"token" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}

// PersonalAccessToken (PAT). The full token value is returned once at
// creation and never again retrievable; only TokenPrefix and TokenHash are
// persisted.
type PersonalAccessToken struct {
	ID          string          `db:"id" json:"id"`
	UserID      kernel.UserID   `db:"user_id" json:"user_id"`
	Name        string          `db:"name" json:"name"`
	TokenPrefix string          `db:"token_prefix" json:"token_prefix"`
	TokenHash   string          `db:"token_hash" json:"-"`
	Scopes      []string        `db:"scopes" json:"scopes"`
	AgentIDs    []string        `db:"agent_ids" json:"agent_ids"`
	CompanyIDs  []string        `db:"company_ids" json:"company_ids"`
	ExpiresAt   *time.Time      `db:"expires_at" json:"expires_at,omitempty"`
	IsRevoked   bool            `db:"is_revoked" json:"is_revoked"`
	LastUsedAt  *time.Time      `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

func (p *PersonalAccessToken) IsExpired() bool {
	return p.ExpiresAt != nil && p.ExpiresAt.Before(time.Now())
}

func (p *PersonalAccessToken) IsValid() bool {
	return !p.IsRevoked && !p.IsExpired()
}

// UserOAuth is one row per (user, provider) pair.
type UserOAuth struct {
	UserID         kernel.UserID `db:"user_id" json:"user_id"`
	ProviderID     string        `db:"provider_id" json:"provider_id"`
	AccountName    string        `db:"account_name" json:"account_name"`
	AccessToken    string        `db:"access_token" json:"-"`
	RefreshToken   string        `db:"refresh_token" json:"-"`
	TokenExpiresAt *time.Time    `db:"token_expires_at" json:"token_expires_at,omitempty"`
}

// Invitation grants a role in a tenant to an email address.
type Invitation struct {
	ID         string          `db:"id" json:"id"`
	Email      string          `db:"email" json:"email"`
	TenantID   kernel.TenantID `db:"tenant_id" json:"tenant_id"`
	RoleID     int             `db:"role_id" json:"role_id"`
	InviterID  kernel.UserID   `db:"inviter_id" json:"inviter_id"`
	IsAccepted bool            `db:"is_accepted" json:"is_accepted"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// TokenUsage is an append-only ledger row.
type TokenUsage struct {
	ID           int64           `db:"id" json:"id"`
	TenantID     kernel.TenantID `db:"tenant_id" json:"tenant_id"`
	UserID       kernel.UserID   `db:"user_id" json:"user_id"`
	InputTokens  int64           `db:"input_tokens" json:"input_tokens"`
	OutputTokens int64           `db:"output_tokens" json:"output_tokens"`
	TotalTokens  int64           `db:"total_tokens" json:"total_tokens"`
	Timestamp    time.Time       `db:"ts" json:"ts"`
}

// PromptType distinguishes how a Step is executed.
type PromptType string

const (
	PromptTypePrompt  PromptType = "Prompt"
	PromptTypeCommand PromptType = "Command"
	PromptTypeChain   PromptType = "Chain"
)

// Component is a named configuration of a model provider plus a command
// subset (structural only for this spec).
type Component struct {
	ID        string          `db:"id" json:"id"`
	TenantID  kernel.TenantID `db:"tenant_id" json:"tenant_id"`
	Name      string          `db:"name" json:"name"`
	AgentName string          `db:"agent_name" json:"agent_name"`
}

// Chain is an ordered list of parameterised Steps.
type Chain struct {
	ID        string          `db:"id" json:"id"`
	TenantID  kernel.TenantID `db:"tenant_id" json:"tenant_id"`
	Name      string          `db:"name" json:"name"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Step carries {step_number, agent_name, prompt_type, prompt_args}.
type Step struct {
	ChainID         string            `db:"chain_id" json:"chain_id"`
	StepNumber      int               `db:"step_number" json:"step_number"`
	AgentName       string            `db:"agent_name" json:"agent_name"`
	PromptType      PromptType        `db:"prompt_type" json:"prompt_type"`
	PromptArgs      map[string]string `db:"prompt_args" json:"prompt_args"`
	RunNextConcurrent bool            `db:"run_next_concurrent" json:"run_next_concurrent"`
}

// ConversationType distinguishes user-to-user DMs from agent-participating
// conversations (used by C12's DM-block rule).
type ConversationType string

const (
	ConversationSingle ConversationType = "single"
	ConversationDM     ConversationType = "dm"
	ConversationThread ConversationType = "thread"
)

// Conversation groups an ordered Message sequence.
type Conversation struct {
	ID           string           `db:"id" json:"id"`
	TenantID     kernel.TenantID  `db:"tenant_id" json:"tenant_id"`
	Type         ConversationType `db:"type" json:"type"`
	ParentID     *string          `db:"parent_id" json:"parent_id,omitempty"`
	Participants []string         `db:"participants" json:"participants"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
}

// HasAgentParticipant reports whether any participant id refers to an agent
// rather than a user — used by C12's DM-block rule. Agent participant ids
// are conventionally prefixed "agent:".
func (c Conversation) HasAgentParticipant() bool {
	for _, p := range c.Participants {
		if len(p) > 6 && p[:6] == "agent:" {
			return true
		}
	}
	return false
}

// Message is one turn of a Conversation.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	Role           string    `db:"role" json:"role"`
	Content        string    `db:"content" json:"content"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
