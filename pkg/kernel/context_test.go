package kernel

import "testing"

func TestHasScopeWithoutPATOverlay(t *testing.T) {
	ac := &AuthContext{Scopes: []string{"agents:*"}}
	if !ac.HasScope("agents:read") {
		t.Fatal("expected wildcard role scope to cover a narrower query")
	}
	if ac.HasScope("billing:read") {
		t.Fatal("expected unrelated scope to be denied")
	}
}

func TestHasScopePATNarrowerThanWildcardRole(t *testing.T) {
	ac := &AuthContext{
		Scopes:    []string{"agents:*"},
		PATScopes: []string{"agents:read"},
	}
	if !ac.HasScope("agents:read") {
		t.Fatal("expected a PAT scope covered by a wildcard role grant to be effective")
	}
	if ac.HasScope("agents:write") {
		t.Fatal("expected the PAT's narrower scope to still exclude agents:write")
	}
}

func TestHasScopePATCannotExceedRoleGrant(t *testing.T) {
	ac := &AuthContext{
		Scopes:    []string{"agents:read"},
		PATScopes: []string{"agents:*"},
	}
	if ac.HasScope("agents:write") {
		t.Fatal("expected a PAT wildcard to not grant more than the role itself has")
	}
	if !ac.HasScope("agents:read") {
		t.Fatal("expected the overlapping scope to remain effective")
	}
}

func TestHasScopeGlobalWildcardRole(t *testing.T) {
	ac := &AuthContext{
		Scopes:    []string{"*"},
		PATScopes: []string{"agents:read", "billing:read"},
	}
	if !ac.HasScope("agents:read") || !ac.HasScope("billing:read") {
		t.Fatal("expected a global role wildcard to cover every PAT scope")
	}
}
