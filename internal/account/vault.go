package account

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"ProfilePilot/internal/model"

	"github.com/hashicorp/vault/api"
)

// VaultConfig locates the KV v2 secrets holding broker keys.
type VaultConfig struct {
	Address string
	Token   string
	Mount   string
	Prefix  string
}

// VaultChecker verifies that a KV v2 secret with api_key and secret_key
// exists for the account. Positive answers are cached for a short while.
type VaultChecker struct {
	client *api.Client
	cfg    VaultConfig
	ttl    time.Duration

	mu    sync.Mutex
	cache map[string]time.Time
}

// NewVaultChecker creates a Vault-backed credential checker.
func NewVaultChecker(cfg VaultConfig) (*VaultChecker, error) {
	vaultConfig := api.DefaultConfig()
	if cfg.Address != "" {
		vaultConfig.Address = cfg.Address
	}
	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	if cfg.Mount == "" {
		cfg.Mount = "secret"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "profilepilot/accounts"
	}
	return &VaultChecker{client: client, cfg: cfg, ttl: 5 * time.Minute, cache: make(map[string]time.Time)}, nil
}

func (v *VaultChecker) secretPath(acct model.Account) string {
	ref := acct.CredentialRef
	if ref == "" {
		ref = acct.ID
	}
	return fmt.Sprintf("%s/data/%s/%s", v.cfg.Mount, strings.Trim(v.cfg.Prefix, "/"), strings.ToLower(ref))
}

func (v *VaultChecker) HasCredential(ctx context.Context, acct model.Account) (bool, error) {
	path := v.secretPath(acct)

	v.mu.Lock()
	if at, ok := v.cache[path]; ok && time.Since(at) < v.ttl {
		v.mu.Unlock()
		return true, nil
	}
	v.mu.Unlock()

	secret, err := v.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return false, fmt.Errorf("failed to read credential from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return false, nil
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return false, nil
	}
	apiKey, _ := data["api_key"].(string)
	secretKey, _ := data["secret_key"].(string)
	if apiKey == "" || secretKey == "" {
		return false, nil
	}

	v.mu.Lock()
	v.cache[path] = time.Now()
	v.mu.Unlock()
	return true, nil
}
