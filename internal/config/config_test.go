package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ProfilePilot/internal/model"
)

const sampleYAML = `
planner:
  base_url: http://planner:9000
scheduler:
  interval_minutes: 0
guardrails:
  persisted_open_lookback_hours: 500
accounts:
  - id: paper-1
    equity: 10000
    max_open_positions: 3
  - id: live-1
    service: coinbase
    mode: live
profiles:
  - id: majors
    account_id: paper-1
    pair_scope: Selected
    selected_symbols: [BTC-USD, ETH-USD]
    max_trades_per_cycle: 3
    cooldown_minutes: 30
    daily_risk_stop_pct: 2
    enabled: true
  - id: wide
    account_id: paper-1
    pair_scope: All
    enabled: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaultsAndClamps(t *testing.T) {
	t.Setenv("MAX_SYMBOLS_ALL", "5")
	t.Setenv("UNIVERSE_SYMBOLS", "btc-usd, eth-usd,")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Scheduler.IntervalMinutes != 5 {
		t.Errorf("interval should default to 5, got %d", cfg.Scheduler.IntervalMinutes)
	}
	if cfg.Guardrails.PersistedOpenLookbackHours != 168 {
		t.Errorf("lookback should clamp to 168, got %d", cfg.Guardrails.PersistedOpenLookbackHours)
	}
	if cfg.Universe.MaxSymbolsAll != 5 || len(cfg.Universe.Symbols) != 2 {
		t.Errorf("env overrides not applied: %d %v", cfg.Universe.MaxSymbolsAll, cfg.Universe.Symbols)
	}
	if cfg.Paper.RefreshMinutes != 3 || cfg.Universe.FetchTimeoutSeconds != 10 {
		t.Errorf("unexpected defaults: %+v %+v", cfg.Paper, cfg.Universe)
	}
	if len(cfg.Profiles) != 2 || cfg.Profiles[0].Name != "majors" || cfg.Profiles[1].PairScope != model.PairScopeAll {
		t.Errorf("profiles not decoded: %+v", cfg.Profiles)
	}
	if cfg.Accounts[1].Mode != model.ModeLive || cfg.Accounts[0].MaxOpenPositions != 3 {
		t.Errorf("accounts not decoded: %+v", cfg.Accounts)
	}
}

func TestLoadMissingFileUsesEnv(t *testing.T) {
	t.Setenv("PLANNER_BASE_URL", "http://env-planner")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Planner.BaseURL != "http://env-planner" {
		t.Fatalf("env not applied: %q", cfg.Planner.BaseURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty profile list should be valid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"missing planner", func(c *Config) { c.Planner.BaseURL = "" }, "planner.base_url"},
		{"half telegram", func(c *Config) { c.Telegram.BotToken = "x" }, "telegram"},
		{"unknown account", func(c *Config) { c.Profiles[0].AccountID = "nope" }, "unknown account"},
		{"duplicate profile", func(c *Config) { c.Profiles[1].ID = "MAJORS" }, "duplicate id"},
		{"bad scope", func(c *Config) { c.Profiles[0].PairScope = "Some" }, "pair_scope"},
		{"selected without symbols", func(c *Config) { c.Profiles[0].SelectedSymbols = nil }, "selected_symbols"},
		{"bad mode", func(c *Config) { c.Accounts[0].Mode = "demo" }, "mode"},
		{"bad adhoc", func(c *Config) { c.AdHoc.AccountID = "ghost" }, "adhoc"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, sampleYAML))
			if err != nil {
				t.Fatal(err)
			}
			tc.mutate(cfg)
			err = cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
