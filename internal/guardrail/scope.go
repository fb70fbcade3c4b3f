package guardrail

import "strings"

// GlobalScope is used when neither a profile nor an account id is known.
const GlobalScope = "global"

// ScopeKey derives the guardrail scope for a profile, falling back to the
// account and then to the global default. Two profiles with different ids
// never share a scope.
func ScopeKey(profileID, accountID string) string {
	if id := strings.ToLower(strings.TrimSpace(profileID)); id != "" {
		return "profile:" + id
	}
	if id := strings.ToLower(strings.TrimSpace(accountID)); id != "" {
		return "account:" + id
	}
	return GlobalScope
}

func cooldownKey(scope, symbol string) string {
	return strings.ToLower(strings.TrimSpace(scope)) + "|" + strings.ToLower(strings.TrimSpace(symbol))
}
