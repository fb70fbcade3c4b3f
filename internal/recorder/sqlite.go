package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ProfilePilot/internal/model"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists reports and trades to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger zerolog.Logger) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets the API read reports while a cycle writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger.With().Str("component", "recorder").Logger()}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.logger.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cycle_reports (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id      TEXT NOT NULL UNIQUE,
			started_at    INTEGER NOT NULL,
			finished_at   INTEGER NOT NULL,
			status        TEXT,
			processed     INTEGER,
			executed      INTEGER,
			failed        INTEGER,
			gate_status   TEXT,
			matrix_status TEXT,
			payload       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_finished ON cycle_reports(finished_at)`,

		`CREATE TABLE IF NOT EXISTS trade_history (
			id           TEXT PRIMARY KEY,
			timestamp    INTEGER NOT NULL,
			account_id   TEXT NOT NULL,
			profile_id   TEXT,
			scope        TEXT,
			mode         TEXT,
			symbol       TEXT,
			strategy     TEXT,
			direction    INTEGER,
			quantity     REAL,
			entry        REAL,
			stop         REAL,
			target       REAL,
			exit_price   REAL,
			status       TEXT,
			result       TEXT,
			realized_pnl REAL,
			is_close     INTEGER,
			note         TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_account_ts ON trade_history(account_id, timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) SaveReport(ctx context.Context, report model.CycleTelemetry) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM cycle_reports WHERE cycle_id = ?`, report.CycleID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check report: %w", err)
	}
	if exists > 0 {
		return ErrReportExists
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO cycle_reports
		(cycle_id, started_at, finished_at, status, processed, executed, failed, gate_status, matrix_status, payload)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		report.CycleID, report.StartedAt.UnixMilli(), report.FinishedAt.UnixMilli(), string(report.Status),
		report.Processed, report.Executed, report.Failed,
		report.Gate.Status, report.Matrix.Status, string(payload),
	)
	return err
}

func (r *SQLiteRecorder) LatestReport(ctx context.Context) (model.CycleTelemetry, error) {
	var payload string
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM cycle_reports ORDER BY finished_at DESC, id DESC LIMIT 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CycleTelemetry{}, ErrNoReport
	}
	if err != nil {
		return model.CycleTelemetry{}, fmt.Errorf("query latest report: %w", err)
	}
	var report model.CycleTelemetry
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return model.CycleTelemetry{}, fmt.Errorf("decode report: %w", err)
	}
	return report, nil
}

func (r *SQLiteRecorder) AppendTrade(ctx context.Context, rec model.TradeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT INTO trade_history
		(id, timestamp, account_id, profile_id, scope, mode, symbol, strategy, direction,
		 quantity, entry, stop, target, exit_price, status, result, realized_pnl, is_close, note)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.Time.UnixMilli(), strings.ToLower(rec.AccountID), rec.ProfileID, rec.Scope, string(rec.Mode),
		rec.Symbol, rec.Strategy, int(rec.Direction),
		rec.Quantity, rec.Entry, rec.Stop, rec.Target, rec.ExitPrice,
		rec.Status, rec.Result, nullableFloat(rec.RealizedPnL), boolInt(rec.Close), rec.Note,
	)
	return err
}

func (r *SQLiteRecorder) LoadTrades(ctx context.Context, accountID string, since time.Time) ([]model.TradeRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT
		id, timestamp, account_id, profile_id, scope, mode, symbol, strategy, direction,
		quantity, entry, stop, target, exit_price, status, result, realized_pnl, is_close, note
		FROM trade_history WHERE account_id = ? AND timestamp >= ? ORDER BY timestamp`,
		strings.ToLower(accountID), since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []model.TradeRecord
	for rows.Next() {
		var (
			rec     model.TradeRecord
			ts      int64
			mode    string
			dir     int
			pnl     sql.NullFloat64
			isClose int
		)
		if err := rows.Scan(&rec.ID, &ts, &rec.AccountID, &rec.ProfileID, &rec.Scope, &mode, &rec.Symbol,
			&rec.Strategy, &dir, &rec.Quantity, &rec.Entry, &rec.Stop, &rec.Target, &rec.ExitPrice,
			&rec.Status, &rec.Result, &pnl, &isClose, &rec.Note); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		rec.Time = time.UnixMilli(ts).UTC()
		rec.Mode = model.AccountMode(mode)
		rec.Direction = model.Direction(dir)
		rec.Close = isClose != 0
		if pnl.Valid {
			v := pnl.Float64
			rec.RealizedPnL = &v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
