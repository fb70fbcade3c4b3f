// Package account exposes the externally managed accounts and trading
// profiles to the core, read-only, and checks stored credentials.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"ProfilePilot/internal/model"
)

// ErrUnknownAccount is returned for an account id that is not configured.
var ErrUnknownAccount = errors.New("account: unknown account")

// Directory holds the configured accounts and profiles.
type Directory struct {
	mu       sync.RWMutex
	accounts map[string]model.Account
	ids      []string
	profiles []model.TradingProfile
}

// NewDirectory indexes accounts by id and keeps profiles in configured order.
func NewDirectory(accounts []model.Account, profiles []model.TradingProfile) (*Directory, error) {
	d := &Directory{accounts: make(map[string]model.Account, len(accounts))}
	for _, a := range accounts {
		key := strings.ToLower(strings.TrimSpace(a.ID))
		if key == "" {
			return nil, fmt.Errorf("account with empty id")
		}
		if _, dup := d.accounts[key]; dup {
			return nil, fmt.Errorf("duplicate account id %q", a.ID)
		}
		d.accounts[key] = a
		d.ids = append(d.ids, key)
	}
	d.profiles = append(d.profiles, profiles...)
	return d, nil
}

// Accounts enumerates the available accounts.
func (d *Directory) Accounts() []model.Account {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Account, 0, len(d.ids))
	for _, id := range d.ids {
		out = append(out, d.accounts[id])
	}
	return out
}

// Account looks up one account by id.
func (d *Directory) Account(_ context.Context, id string) (model.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.accounts[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return model.Account{}, fmt.Errorf("%w: %q", ErrUnknownAccount, id)
	}
	return a, nil
}

// Profiles returns a copy of the configured profiles in order.
func (d *Directory) Profiles(_ context.Context) ([]model.TradingProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.TradingProfile, len(d.profiles))
	copy(out, d.profiles)
	return out, nil
}

// ReplaceProfiles swaps the profile list, e.g. after the editor saved changes.
func (d *Directory) ReplaceProfiles(profiles []model.TradingProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles = append([]model.TradingProfile(nil), profiles...)
}
