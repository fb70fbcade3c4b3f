package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"ProfilePilot/internal/model"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
	Scheduler struct {
		IntervalMinutes int  `yaml:"interval_minutes"`
		RunOnStart      bool `yaml:"run_on_start"`
	} `yaml:"scheduler"`
	Planner struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"planner"`
	Bridge struct {
		BaseURL  string   `yaml:"base_url"`
		APIKey   string   `yaml:"api_key"`
		Services []string `yaml:"services"`
	} `yaml:"bridge"`
	Universe struct {
		Symbols             []string `yaml:"symbols"`
		MaxSymbolsAll       int      `yaml:"max_symbols_all"`
		FetchTimeoutSeconds int      `yaml:"fetch_timeout_seconds"`
	} `yaml:"universe"`
	Scan struct {
		GranularityMinutes int     `yaml:"granularity_minutes"`
		LookbackMinutes    int     `yaml:"lookback_minutes"`
		UpThreshold        float64 `yaml:"up_threshold"`
		DownThreshold      float64 `yaml:"down_threshold"`
		BaseDelayMs        int     `yaml:"base_delay_ms"`
		MaxDelayMs         int     `yaml:"max_delay_ms"`
	} `yaml:"scan"`
	Guardrails struct {
		PersistedOpenLookbackHours int      `yaml:"persisted_open_lookback_hours"`
		StateFile                  string   `yaml:"state_file"`
		ProtectiveWatchdogs        []string `yaml:"protective_watchdogs"`
	} `yaml:"guardrails"`
	Paper struct {
		RefreshMinutes int `yaml:"refresh_minutes"`
	} `yaml:"paper"`
	Telemetry struct {
		RejectCategories []string `yaml:"reject_categories"`
	} `yaml:"telemetry"`
	Profiles []model.TradingProfile `yaml:"profiles"`
	Accounts []model.Account        `yaml:"accounts"`
	AdHoc    struct {
		AccountID        string   `yaml:"account_id"`
		Symbols          []string `yaml:"symbols"`
		MaxTrades        int      `yaml:"max_trades"`
		CooldownMinutes  int      `yaml:"cooldown_minutes"`
		DailyRiskStopPct float64  `yaml:"daily_risk_stop_pct"`
	} `yaml:"adhoc"`
	Database struct {
		SQLitePath  string `yaml:"sqlite_path"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Vault struct {
		Address string `yaml:"address"`
		Token   string `yaml:"token"`
		Mount   string `yaml:"mount"`
		Prefix  string `yaml:"prefix"`
	} `yaml:"vault"`
	API struct {
		Addr        string `yaml:"addr"`
		MetricsAddr string `yaml:"metrics_addr"`
	} `yaml:"api"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("LOG_LEVEL", &c.Log.Level)
	setString("PLANNER_BASE_URL", &c.Planner.BaseURL)
	setString("PLANNER_API_KEY", &c.Planner.APIKey)
	setString("BRIDGE_BASE_URL", &c.Bridge.BaseURL)
	setString("BRIDGE_API_KEY", &c.Bridge.APIKey)
	setString("TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	setString("TELEGRAM_CHAT_ID", &c.Telegram.ChatID)
	setString("HTTPS_PROXY", &c.Proxy)
	setString("SQLITE_PATH", &c.Database.SQLitePath)
	setString("POSTGRES_DSN", &c.Database.PostgresDSN)
	setString("REDIS_ADDR", &c.Redis.Addr)
	setString("REDIS_PASSWORD", &c.Redis.Password)
	setString("VAULT_ADDR", &c.Vault.Address)
	setString("VAULT_TOKEN", &c.Vault.Token)
	setString("API_ADDR", &c.API.Addr)
	setString("METRICS_ADDR", &c.API.MetricsAddr)
	setString("GUARDRAIL_STATE_FILE", &c.Guardrails.StateFile)
	setInt("SCHEDULER_INTERVAL_MINUTES", &c.Scheduler.IntervalMinutes)
	setInt("MAX_SYMBOLS_ALL", &c.Universe.MaxSymbolsAll)
	setInt("PERSISTED_OPEN_LOOKBACK_HOURS", &c.Guardrails.PersistedOpenLookbackHours)
	setInt("PAPER_REFRESH_MINUTES", &c.Paper.RefreshMinutes)
	if v := os.Getenv("RUN_ON_START"); v != "" {
		c.Scheduler.RunOnStart = v == "true" || v == "1"
	}
	if v := os.Getenv("UNIVERSE_SYMBOLS"); v != "" {
		c.Universe.Symbols = splitList(v)
	}
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Scheduler.IntervalMinutes < 1 {
		c.Scheduler.IntervalMinutes = 5
	}
	if len(c.Universe.Symbols) == 0 {
		c.Universe.Symbols = []string{"BTC-USD", "ETH-USD", "SOL-USD", "XRP-USD", "ADA-USD", "DOGE-USD",
			"AVAX-USD", "LINK-USD", "DOT-USD", "LTC-USD", "BCH-USD", "MATIC-USD"}
	}
	if c.Universe.MaxSymbolsAll <= 0 {
		c.Universe.MaxSymbolsAll = 12
	}
	if c.Universe.FetchTimeoutSeconds <= 0 {
		c.Universe.FetchTimeoutSeconds = 10
	}
	if c.Scan.GranularityMinutes <= 0 {
		c.Scan.GranularityMinutes = 60
	}
	if c.Scan.LookbackMinutes <= 0 {
		c.Scan.LookbackMinutes = 7 * 24 * 60
	}
	if c.Scan.UpThreshold == 0 {
		c.Scan.UpThreshold = 0.55
	}
	if c.Scan.DownThreshold == 0 {
		c.Scan.DownThreshold = 0.55
	}
	if c.Scan.BaseDelayMs <= 0 {
		c.Scan.BaseDelayMs = 250
	}
	if c.Scan.MaxDelayMs < c.Scan.BaseDelayMs {
		c.Scan.MaxDelayMs = 8000
	}
	if c.Guardrails.PersistedOpenLookbackHours == 0 {
		c.Guardrails.PersistedOpenLookbackHours = 24
	}
	if c.Guardrails.PersistedOpenLookbackHours < 1 {
		c.Guardrails.PersistedOpenLookbackHours = 1
	}
	if c.Guardrails.PersistedOpenLookbackHours > 168 {
		c.Guardrails.PersistedOpenLookbackHours = 168
	}
	if c.Guardrails.StateFile == "" {
		c.Guardrails.StateFile = "data/guardrail_state.json"
	}
	if c.Paper.RefreshMinutes <= 0 {
		c.Paper.RefreshMinutes = 3
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/profile_pilot.db"
	}
	if c.AdHoc.MaxTrades <= 0 {
		c.AdHoc.MaxTrades = 1
	}
	if c.AdHoc.CooldownMinutes <= 0 {
		c.AdHoc.CooldownMinutes = 60
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
	for i := range c.Profiles {
		p := &c.Profiles[i]
		if p.PairScope == "" {
			p.PairScope = model.PairScopeSelected
		}
		if p.Name == "" {
			p.Name = p.ID
		}
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Planner.BaseURL == "" {
		return fmt.Errorf("planner.base_url is required")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}

	accounts := make(map[string]bool, len(c.Accounts))
	for _, a := range c.Accounts {
		id := strings.ToLower(strings.TrimSpace(a.ID))
		if id == "" {
			return fmt.Errorf("accounts: id is required")
		}
		if accounts[id] {
			return fmt.Errorf("accounts: duplicate id %q", a.ID)
		}
		if a.Mode != "" && a.Mode != model.ModePaper && a.Mode != model.ModeLive {
			return fmt.Errorf("accounts[%s]: mode must be paper or live", a.ID)
		}
		accounts[id] = true
	}

	profiles := make(map[string]bool, len(c.Profiles))
	for _, p := range c.Profiles {
		id := strings.ToLower(strings.TrimSpace(p.ID))
		if id == "" {
			return fmt.Errorf("profiles: id is required")
		}
		if profiles[id] {
			return fmt.Errorf("profiles: duplicate id %q", p.ID)
		}
		profiles[id] = true
		if !accounts[strings.ToLower(p.AccountID)] {
			return fmt.Errorf("profiles[%s]: unknown account %q", p.ID, p.AccountID)
		}
		switch p.PairScope {
		case model.PairScopeAll:
		case model.PairScopeSelected:
			if p.Enabled && len(p.SelectedSymbols) == 0 {
				return fmt.Errorf("profiles[%s]: Selected scope needs selected_symbols", p.ID)
			}
		default:
			return fmt.Errorf("profiles[%s]: pair_scope must be All or Selected", p.ID)
		}
		if p.DailyRiskStopPct < 0 || p.DailyRiskStopPct > 100 {
			return fmt.Errorf("profiles[%s]: daily_risk_stop_pct must be within 0-100", p.ID)
		}
	}

	if c.AdHoc.AccountID != "" && !accounts[strings.ToLower(c.AdHoc.AccountID)] {
		return fmt.Errorf("adhoc.account_id: unknown account %q", c.AdHoc.AccountID)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
