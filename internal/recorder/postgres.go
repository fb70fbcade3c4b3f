package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ProfilePilot/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PostgresRecorder stores reports and trades in Postgres.
type PostgresRecorder struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresRecorder connects, pings and migrates.
func NewPostgresRecorder(ctx context.Context, dsn string, logger zerolog.Logger) (*PostgresRecorder, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = 4
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	r := &PostgresRecorder{pool: pool, logger: logger.With().Str("component", "recorder").Logger()}
	if err := r.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r.logger.Info().Msg("postgres recorder opened")
	return r, nil
}

func (r *PostgresRecorder) migrate(ctx context.Context) error {
	stmts := []string{
		`create table if not exists cycle_reports (
			cycle_id      text primary key,
			started_at    timestamptz not null,
			finished_at   timestamptz not null,
			status        text not null,
			processed     int not null default 0,
			executed      int not null default 0,
			failed        int not null default 0,
			gate_status   text,
			matrix_status text,
			payload       jsonb not null
		);`,
		`create index if not exists idx_reports_finished on cycle_reports(finished_at desc);`,
		`create table if not exists trade_history (
			id           text primary key,
			ts           timestamptz not null,
			account_id   text not null,
			profile_id   text,
			scope        text,
			mode         text,
			symbol       text,
			strategy     text,
			direction    int,
			quantity     double precision,
			entry        double precision,
			stop         double precision,
			target       double precision,
			exit_price   double precision,
			status       text,
			result       text,
			realized_pnl double precision,
			is_close     boolean not null default false,
			note         text
		);`,
		`create index if not exists idx_trades_account_ts on trade_history(account_id, ts);`,
	}
	for _, s := range stmts {
		if _, err := r.pool.Exec(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRecorder) SaveReport(ctx context.Context, report model.CycleTelemetry) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		insert into cycle_reports(cycle_id, started_at, finished_at, status, processed, executed, failed,
			gate_status, matrix_status, payload)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		on conflict (cycle_id) do nothing
	`,
		report.CycleID, report.StartedAt, report.FinishedAt, string(report.Status),
		report.Processed, report.Executed, report.Failed,
		report.Gate.Status, report.Matrix.Status, payload,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReportExists
	}
	return nil
}

func (r *PostgresRecorder) LatestReport(ctx context.Context) (model.CycleTelemetry, error) {
	var payload []byte
	err := r.pool.QueryRow(ctx, `select payload from cycle_reports order by finished_at desc limit 1`).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CycleTelemetry{}, ErrNoReport
	}
	if err != nil {
		return model.CycleTelemetry{}, fmt.Errorf("query latest report: %w", err)
	}
	var report model.CycleTelemetry
	if err := json.Unmarshal(payload, &report); err != nil {
		return model.CycleTelemetry{}, fmt.Errorf("decode report: %w", err)
	}
	return report, nil
}

func (r *PostgresRecorder) AppendTrade(ctx context.Context, rec model.TradeRecord) error {
	_, err := r.pool.Exec(ctx, `
		insert into trade_history(id, ts, account_id, profile_id, scope, mode, symbol, strategy, direction,
			quantity, entry, stop, target, exit_price, status, result, realized_pnl, is_close, note)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`,
		rec.ID, rec.Time, strings.ToLower(rec.AccountID), rec.ProfileID, rec.Scope, string(rec.Mode),
		rec.Symbol, rec.Strategy, int(rec.Direction),
		rec.Quantity, rec.Entry, rec.Stop, rec.Target, rec.ExitPrice,
		rec.Status, rec.Result, rec.RealizedPnL, rec.Close, rec.Note,
	)
	return err
}

func (r *PostgresRecorder) LoadTrades(ctx context.Context, accountID string, since time.Time) ([]model.TradeRecord, error) {
	rows, err := r.pool.Query(ctx, `
		select id, ts, account_id, profile_id, scope, mode, symbol, strategy, direction,
			quantity, entry, stop, target, exit_price, status, result, realized_pnl, is_close, note
		from trade_history
		where account_id = $1 and ts >= $2
		order by ts
	`, strings.ToLower(accountID), since)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []model.TradeRecord
	for rows.Next() {
		var (
			rec  model.TradeRecord
			mode string
			dir  int
		)
		if err := rows.Scan(&rec.ID, &rec.Time, &rec.AccountID, &rec.ProfileID, &rec.Scope, &mode, &rec.Symbol,
			&rec.Strategy, &dir, &rec.Quantity, &rec.Entry, &rec.Stop, &rec.Target, &rec.ExitPrice,
			&rec.Status, &rec.Result, &rec.RealizedPnL, &rec.Close, &rec.Note); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		rec.Mode = model.AccountMode(mode)
		rec.Direction = model.Direction(dir)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresRecorder) Close() error {
	r.pool.Close()
	return nil
}
