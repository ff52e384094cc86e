package kernel

import "github.com/flowctl/core/pkg/scopematch"

// AuthContext is the authentication context attached to every inbound
// request. It is a value type — per spec §9's redesign flag, transitional
// per-request data (a PAT's restriction lists) is carried here rather than
// mutated onto a hydrated User row.
type AuthContext struct {
	UserID   *UserID  `json:"user_id"`
	TenantID TenantID `json:"tenant_id"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Scopes   []string `json:"scopes"`
	IsAPIKey bool     `json:"is_api_key"`

	// PAT restriction overlay. Nil when the credential was not a PAT.
	// When present, the caller's effective scope set is PATScopes narrowed
	// to whatever Scopes (the user's current role grants) actually cover —
	// not a literal-string intersection, since a role grant like
	// "agents:*" must still cover a narrower PAT scope like "agents:read".
	PATScopes    []string `json:"pat_scopes,omitempty"`
	PATAgentIDs  []string `json:"pat_agent_ids,omitempty"`
	PATTenantIDs []string `json:"pat_tenant_ids,omitempty"`
}

// IsValid reports whether the context carries enough identity to authorize a
// request.
func (ac *AuthContext) IsValid() bool {
	if ac.IsAPIKey {
		return !ac.TenantID.IsEmpty()
	}
	return ac.UserID != nil && !ac.UserID.IsEmpty() && !ac.TenantID.IsEmpty()
}

// EffectiveScopes returns PATScopes filtered down to the ones Scopes
// actually grants (wildcard-aware, via pkg/scopematch — the same precedence
// table pkg/scopes.Engine.Has uses), Scopes unchanged when there is no PAT
// overlay. This is a display/audit aid; HasScope does not route through it,
// since a single narrowed list can't represent the precedence table exactly
// when a PAT scope is itself a wildcard narrower than the role's own grant
// (e.g. role "agents:read", PAT "agents:*" — the PAT's wildcard literal
// isn't "in" the role's grant, but specific queries under it can still be).
func (ac *AuthContext) EffectiveScopes() []string {
	if ac.PATScopes == nil {
		return ac.Scopes
	}
	out := make([]string, 0, len(ac.PATScopes))
	for _, s := range ac.PATScopes {
		if scopematch.Matches(ac.Scopes, s) {
			out = append(out, s)
		}
	}
	return out
}

// HasScope reports whether scope is granted both by the caller's role scopes
// and, when a PAT restriction overlay is present, by the PAT's own scopes —
// each side checked with the same wildcard precedence pkg/scopes.Engine.Has
// uses, so a PAT narrower than a wildcard role grant (the common real-world
// shape) still resolves correctly instead of being intersected away.
func (ac *AuthContext) HasScope(scope string) bool {
	if !scopematch.Matches(ac.Scopes, scope) {
		return false
	}
	if ac.PATScopes == nil {
		return true
	}
	return scopematch.Matches(ac.PATScopes, scope)
}

// IsAdmin reports super-admin or blanket admin scope.
func (ac *AuthContext) IsAdmin() bool {
	return ac.HasScope("*") || ac.HasScope("admin:*")
}

// HasAnyScope reports whether at least one of scopes is granted.
func (ac *AuthContext) HasAnyScope(scopes ...string) bool {
	for _, scope := range scopes {
		if ac.HasScope(scope) {
			return true
		}
	}
	return false
}

// HasAllScopes reports whether every scope in scopes is granted.
func (ac *AuthContext) HasAllScopes(scopes ...string) bool {
	for _, scope := range scopes {
		if !ac.HasScope(scope) {
			return false
		}
	}
	return true
}

// CanReachAgent reports whether a PAT overlay (if any) permits agentID.
func (ac *AuthContext) CanReachAgent(agentID string) bool {
	if ac.PATAgentIDs == nil {
		return true
	}
	for _, id := range ac.PATAgentIDs {
		if id == agentID {
			return true
		}
	}
	return false
}

// CanReachTenant reports whether a PAT overlay (if any) permits tenantID.
func (ac *AuthContext) CanReachTenant(tenantID string) bool {
	if ac.PATTenantIDs == nil {
		return true
	}
	for _, id := range ac.PATTenantIDs {
		if id == tenantID {
			return true
		}
	}
	return false
}

// ContextKey namespaces values stored on a context.Context.
type ContextKey string

const (
	AuthContextKey   ContextKey = "auth_context"
	TenantContextKey ContextKey = "tenant_id"
	UserContextKey   ContextKey = "user_id"
	RequestIDKey     ContextKey = "request_id"
)
