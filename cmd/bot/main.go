package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ProfilePilot/internal/account"
	"ProfilePilot/internal/api"
	"ProfilePilot/internal/broker"
	"ProfilePilot/internal/config"
	"ProfilePilot/internal/execution"
	"ProfilePilot/internal/guardrail"
	"ProfilePilot/internal/logging"
	"ProfilePilot/internal/metrics"
	"ProfilePilot/internal/model"
	"ProfilePilot/internal/notifier"
	"ProfilePilot/internal/paper"
	"ProfilePilot/internal/planner"
	"ProfilePilot/internal/proposal"
	"ProfilePilot/internal/recorder"
	"ProfilePilot/internal/scheduler"
	"ProfilePilot/internal/telemetry"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	_ = godotenv.Load()

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		bootLogger := logging.New("info", true)
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Pretty)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("config validation")
	}
	logger.Info().Str("config", cfgPath).Int("profiles", len(cfg.Profiles)).Int("accounts", len(cfg.Accounts)).
		Msg("ProfilePilot starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Accounts and credentials
	dir, err := account.NewDirectory(cfg.Accounts, cfg.Profiles)
	if err != nil {
		logger.Fatal().Err(err).Msg("init account directory")
	}
	creds := account.ChainChecker{account.EnvChecker{Lookup: os.LookupEnv}}
	if cfg.Vault.Token != "" {
		vc, err := account.NewVaultChecker(account.VaultConfig{
			Address: cfg.Vault.Address,
			Token:   cfg.Vault.Token,
			Mount:   cfg.Vault.Mount,
			Prefix:  cfg.Vault.Prefix,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("vault unavailable, using environment credentials only")
		} else {
			creds = append(creds, vc)
		}
	}

	// Planner and brokers
	pl := planner.NewHTTPPlanner(cfg.Planner.BaseURL, cfg.Planner.APIKey, cfg.Proxy)
	brokers := broker.NewRegistry()
	brokers.Register(broker.AnyService, model.ModePaper, broker.NewPaperBroker(logger))
	if cfg.Bridge.BaseURL != "" {
		bridge := broker.NewBridgeBroker(cfg.Bridge.BaseURL, cfg.Bridge.APIKey, cfg.Proxy, logger)
		for _, service := range cfg.Bridge.Services {
			brokers.Register(service, model.ModeLive, bridge)
		}
	}
	logger.Info().Strs("brokers", brokers.Keys()).Msg("broker registry ready")

	// Guardrails
	ledger := guardrail.NewLedger(time.Now)
	if st, err := guardrail.LoadState(cfg.Guardrails.StateFile); err != nil {
		logger.Warn().Err(err).Str("file", cfg.Guardrails.StateFile).Msg("load guardrail state, starting fresh")
	} else {
		ledger.Restore(st)
	}
	book := paper.NewBook(time.Now, logger)

	// Recorder
	rec := openRecorder(ctx, cfg, logger)
	redisClient := openCache(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	reports := recorder.NewCachedRecorder(rec, redisClient, logger)
	defer reports.Close()

	// Cycle pipeline
	pacer := proposal.NewPacer(time.Duration(cfg.Scan.BaseDelayMs)*time.Millisecond, time.Duration(cfg.Scan.MaxDelayMs)*time.Millisecond)
	scanner := proposal.NewScanner(pl, pacer, proposal.ScanParams{
		GranularityMinutes: cfg.Scan.GranularityMinutes,
		LookbackMinutes:    cfg.Scan.LookbackMinutes,
		UpThreshold:        cfg.Scan.UpThreshold,
		DownThreshold:      cfg.Scan.DownThreshold,
	}, logger)
	aggregator := proposal.NewAggregator(pl, pacer, cfg.Scan.GranularityMinutes, logger)
	coordinator := execution.NewCoordinator(execution.Deps{
		Ledger:      ledger,
		Book:        book,
		Brokers:     brokers,
		Credentials: creds,
		History:     reports,
		Prices:      pl,
		Replanner: execution.PlannerReplanner{
			Planner:            pl,
			GranularityMinutes: cfg.Scan.GranularityMinutes,
			LookbackMinutes:    cfg.Scan.LookbackMinutes,
		},
		Now: time.Now,
	}, execution.Config{
		LookbackHours:       cfg.Guardrails.PersistedOpenLookbackHours,
		ProtectiveWatchdogs: cfg.Guardrails.ProtectiveWatchdogs,
		ReplanInterval:      time.Duration(cfg.Paper.RefreshMinutes) * time.Minute,
	}, logger)

	universe := scheduler.NewUniverse(cfg.Universe.Symbols)
	if err := universe.Load(ctx, pl, time.Duration(cfg.Universe.FetchTimeoutSeconds)*time.Second); err != nil {
		logger.Warn().Err(err).Msg("using configured symbol universe")
	}

	var notify notifier.Notifier = notifier.Nop{}
	var tg *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" {
		tg = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger)
		notify = tg
	}

	adHocAccount := cfg.AdHoc.AccountID
	if adHocAccount == "" && len(cfg.Accounts) > 0 {
		adHocAccount = cfg.Accounts[0].ID
	}

	sched := scheduler.NewScheduler(ctx, scheduler.Deps{
		Profiles:  dir,
		Accounts:  dir,
		Universe:  universe,
		Scanner:   scanner,
		Proposer:  aggregator,
		Executor:  coordinator,
		Ledger:    ledger,
		Evaluator: telemetry.NewEvaluator(telemetry.NewCategories(cfg.Telemetry.RejectCategories)),
		Reports:   reports,
		Notifier:  notify,
		Now:       time.Now,
	}, scheduler.Options{
		IntervalMinutes: cfg.Scheduler.IntervalMinutes,
		MaxSymbolsAll:   cfg.Universe.MaxSymbolsAll,
		StateFile:       cfg.Guardrails.StateFile,
		AdHoc: scheduler.AdHoc{
			AccountID:        adHocAccount,
			Symbols:          cfg.AdHoc.Symbols,
			MaxTrades:        cfg.AdHoc.MaxTrades,
			CooldownMinutes:  cfg.AdHoc.CooldownMinutes,
			DailyRiskStopPct: cfg.AdHoc.DailyRiskStopPct,
		},
	}, logger)
	if err := sched.Register(); err != nil {
		logger.Fatal().Err(err).Msg("register cycle job")
	}
	sched.Start()
	defer sched.Stop()

	if tg != nil {
		go tg.StartPolling(ctx, sched.HandleCommand)
		logger.Info().Msg("telegram polling started")
	}

	// Control API
	srv := api.NewServer(sched, book, logger)
	go func() {
		if err := srv.Start(cfg.API.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("control api stopped")
		}
	}()
	var metricsSrv *http.Server
	if cfg.API.MetricsAddr != "" {
		metricsSrv = metrics.Serve(cfg.API.MetricsAddr)
		logger.Info().Str("addr", cfg.API.MetricsAddr).Msg("metrics listener started")
	}

	if cfg.Scheduler.RunOnStart {
		logger.Info().Msg("RUN_ON_START enabled, running a cycle now")
		if err := sched.RunNow(); err != nil {
			logger.Warn().Err(err).Msg("initial cycle not started")
		}
	}

	logger.Info().Int("interval_minutes", cfg.Scheduler.IntervalMinutes).Msg("ProfilePilot is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutdown signal received, stopping...")
	sched.RequestStop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("control api shutdown")
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if err := guardrail.SaveState(cfg.Guardrails.StateFile, ledger.Snapshot()); err != nil {
		logger.Error().Err(err).Msg("save guardrail state")
	}
	logger.Info().Msg("ProfilePilot stopped")
}

// openRecorder prefers Postgres, then SQLite, then an in-memory store.
func openRecorder(ctx context.Context, cfg *config.Config, logger zerolog.Logger) recorder.Recorder {
	if cfg.Database.PostgresDSN != "" {
		pg, err := recorder.NewPostgresRecorder(ctx, cfg.Database.PostgresDSN, logger)
		if err == nil {
			return pg
		}
		logger.Warn().Err(err).Msg("init postgres recorder failed, trying sqlite")
	}
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logger)
		if err == nil {
			return sr
		}
		logger.Warn().Err(err).Msg("init sqlite recorder failed, using memory")
	}
	return recorder.NewMemoryRecorder()
}

// openCache returns nil when Redis is not configured or unreachable.
func openCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	client, err := recorder.OpenRedis(ctx, recorder.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, caching reports in process")
		return nil
	}
	return client
}
