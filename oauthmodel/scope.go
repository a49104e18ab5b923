package oauthmodel

import "github.com/jrsteele09/mcp-oauth-server/internal/utils"

// ScopeSet normalizes a space-delimited scope string or a scope list into a set.
func ScopeSet[S string | []string](scope S) map[string]struct{} {
	var list []string
	switch v := any(scope).(type) {
	case string:
		list = utils.SplitScopes(v)
	case []string:
		for _, s := range v {
			list = append(list, utils.SplitScopes(s)...)
		}
	}
	set := make(map[string]struct{}, len(list))
	for _, s := range list {
		set[s] = struct{}{}
	}
	return set
}

// VerifyScope reports whether the token carries the single required scope. An empty
// requirement is always satisfied.
func VerifyScope(t *Token, required string) bool {
	if t == nil {
		return false
	}
	if required == "" {
		return true
	}
	_, ok := ScopeSet(t.Scope)[required]
	return ok
}

// VerifyScope is the engine-facing form of the package function.
func (m *Model) VerifyScope(t *Token, required string) bool {
	return VerifyScope(t, required)
}
