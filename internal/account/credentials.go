package account

import (
	"context"
	"os"
	"strings"

	"ProfilePilot/internal/model"
)

// CredentialChecker reports whether a valid credential is stored for an account.
type CredentialChecker interface {
	HasCredential(ctx context.Context, acct model.Account) (bool, error)
}

// EnvChecker looks for <REF>_API_KEY and <REF>_API_SECRET in the environment,
// where REF is the account's credential reference (or its id).
type EnvChecker struct {
	Lookup func(string) (string, bool)
}

func (c EnvChecker) HasCredential(_ context.Context, acct model.Account) (bool, error) {
	lookup := c.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	prefix := envPrefix(acct)
	key, ok := lookup(prefix + "_API_KEY")
	if !ok || strings.TrimSpace(key) == "" {
		return false, nil
	}
	secret, ok := lookup(prefix + "_API_SECRET")
	return ok && strings.TrimSpace(secret) != "", nil
}

func envPrefix(acct model.Account) string {
	ref := acct.CredentialRef
	if ref == "" {
		ref = acct.ID
	}
	ref = strings.ToUpper(ref)
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, ref)
}

// ChainChecker accepts an account if any of its checkers does.
type ChainChecker []CredentialChecker

func (c ChainChecker) HasCredential(ctx context.Context, acct model.Account) (bool, error) {
	var firstErr error
	for _, checker := range c {
		ok, err := checker.HasCredential(ctx, acct)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, firstErr
}
