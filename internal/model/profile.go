package model

import (
	"strings"
	"time"
)

// PairScope selects which symbols a profile trades.
type PairScope string

const (
	PairScopeAll      PairScope = "All"
	PairScopeSelected PairScope = "Selected"
)

// TradingProfile is an independently configured automation profile.
// It is owned by an external editor and read-only to the core.
type TradingProfile struct {
	ID                string    `yaml:"id" json:"id"`
	Name              string    `yaml:"name" json:"name"`
	AccountID         string    `yaml:"account_id" json:"account_id"`
	PairScope         PairScope `yaml:"pair_scope" json:"pair_scope"`
	SelectedSymbols   []string  `yaml:"selected_symbols" json:"selected_symbols"`
	IntervalMinutes   int       `yaml:"interval_minutes" json:"interval_minutes"`
	MaxTradesPerCycle int       `yaml:"max_trades_per_cycle" json:"max_trades_per_cycle"`
	CooldownMinutes   int       `yaml:"cooldown_minutes" json:"cooldown_minutes"`
	DailyRiskStopPct  float64   `yaml:"daily_risk_stop_pct" json:"daily_risk_stop_pct"`
	Enabled           bool      `yaml:"enabled" json:"enabled"`
}

// Interval returns the minimum re-run interval, never below one minute.
func (p TradingProfile) Interval() time.Duration {
	if p.IntervalMinutes < 1 {
		return time.Minute
	}
	return time.Duration(p.IntervalMinutes) * time.Minute
}

// AccountMode distinguishes synthetic accounts from real ones.
type AccountMode string

const (
	ModePaper AccountMode = "paper"
	ModeLive  AccountMode = "live"
)

// Account is a broker account reference as seen by the core.
type Account struct {
	ID                 string      `yaml:"id" json:"id"`
	Service            string      `yaml:"service" json:"service"`
	Mode               AccountMode `yaml:"mode" json:"mode"`
	Equity             float64     `yaml:"equity" json:"equity"`
	RiskPerTradePct    float64     `yaml:"risk_per_trade_pct" json:"risk_per_trade_pct"`
	MaxOpenPositions   int         `yaml:"max_open_positions" json:"max_open_positions"`
	ProtectiveWatchdog string      `yaml:"protective_watchdog" json:"protective_watchdog"`
	Armed              bool        `yaml:"armed" json:"armed"`
	CredentialRef      string      `yaml:"credential_ref" json:"credential_ref"`
}

// IsPaper reports whether fills on this account are synthetic.
func (a Account) IsPaper() bool {
	return a.Mode == "" || a.Mode == ModePaper
}

// BrokerKey identifies the broker adapter serving this account.
func (a Account) BrokerKey() string {
	mode := a.Mode
	if mode == "" {
		mode = ModePaper
	}
	return strings.ToLower(a.Service) + ":" + string(mode)
}

// NormalizeSymbol upper-cases and trims a trading symbol.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
