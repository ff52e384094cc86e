// Package scopematch implements the §4.4 scope-precedence table shared by
// pkg/scopes (C4 ScopeEngine) and pkg/kernel.AuthContext: exact match, the
// global "*", the ext:* extension family (widest to narrowest), then the
// plain resource:* wildcard. It has no dependency on either caller so both
// can import it without a cycle.
package scopematch

import "strings"

// Matches reports whether query is granted by the set of scopes in granted.
func Matches(granted []string, query string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, g := range granted {
		set[g] = struct{}{}
	}
	has := func(s string) bool { _, ok := set[s]; return ok }

	if has(query) || has("*") {
		return true
	}

	parts := strings.Split(query, ":")
	if parts[0] == "ext" {
		switch len(parts) {
		case 3: // ext:name:action
			name, action := parts[1], parts[2]
			return has("ext:*") || has("ext:*:"+action) || has("ext:"+name+":*")
		case 4: // ext:name:feature:action
			name, feature, action := parts[1], parts[2], parts[3]
			candidates := []string{
				"ext:*",
				"ext:*:" + feature + ":" + action,
				"ext:*:*:" + action,
				"ext:" + name + ":" + feature + ":*",
				"ext:" + name + ":*:" + action,
				"ext:" + name + ":execute",
				"ext:" + name + ":read",
			}
			for _, c := range candidates {
				if has(c) {
					return true
				}
			}
			return false
		}
		return false
	}

	if len(parts) == 2 {
		return has(parts[0] + ":*")
	}
	return false
}
