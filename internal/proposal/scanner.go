// Package proposal turns market projections into ranked trade plans.
package proposal

import (
	"context"
	"errors"

	"ProfilePilot/internal/model"
	"ProfilePilot/internal/planner"

	"github.com/rs/zerolog"
)

// ScanParams are the projection parameters shared by every symbol.
type ScanParams struct {
	GranularityMinutes int
	LookbackMinutes    int
	UpThreshold        float64
	DownThreshold      float64
}

// ScanResult is the outcome of scanning a symbol list.
type ScanResult struct {
	Rows    []model.ScanRow
	Scanned int
	Failed  int
	Stopped bool
}

// Scanner calls Project once per symbol, strictly sequentially.
type Scanner struct {
	planner planner.Planner
	pacer   *Pacer
	params  ScanParams
	logger  zerolog.Logger
}

func NewScanner(p planner.Planner, pacer *Pacer, params ScanParams, logger zerolog.Logger) *Scanner {
	return &Scanner{
		planner: p,
		pacer:   pacer,
		params:  params,
		logger:  logger.With().Str("component", "scanner").Logger(),
	}
}

// Scan projects every symbol. A failing symbol is logged and skipped; a
// rate-limited symbol is retried once after the pacer backed off. stop is
// polled before each symbol.
func (s *Scanner) Scan(ctx context.Context, symbols []string, stop func() bool) ScanResult {
	var res ScanResult
	for i, symbol := range symbols {
		if stopped(ctx, stop) {
			res.Stopped = true
			return res
		}
		if i > 0 {
			if err := s.pacer.Wait(ctx); err != nil {
				res.Stopped = true
				return res
			}
		}

		rows, err := s.project(ctx, symbol)
		if errors.Is(err, planner.ErrRateLimited) {
			s.pacer.RateLimited()
			s.logger.Warn().Str("symbol", symbol).Dur("delay", s.pacer.Delay()).Msg("rate limited, backing off")
			if s.pacer.Wait(ctx) != nil {
				res.Stopped = true
				return res
			}
			rows, err = s.project(ctx, symbol)
		}
		if err != nil {
			if errors.Is(err, planner.ErrRateLimited) {
				s.pacer.RateLimited()
			}
			res.Failed++
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("scan failed, symbol skipped")
			continue
		}
		s.pacer.Success()
		res.Scanned++
		res.Rows = append(res.Rows, rows...)
		s.logger.Debug().Str("symbol", symbol).Int("rows", len(rows)).Msg("symbol scanned")
	}
	return res
}

func (s *Scanner) project(ctx context.Context, symbol string) ([]model.ScanRow, error) {
	rows, err := s.planner.Project(ctx, planner.ProjectRequest{
		Symbol:             symbol,
		GranularityMinutes: s.params.GranularityMinutes,
		LookbackMinutes:    s.params.LookbackMinutes,
		UpThreshold:        s.params.UpThreshold,
		DownThreshold:      s.params.DownThreshold,
	})
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Symbol = model.NormalizeSymbol(rows[i].Symbol)
		if rows[i].Symbol == "" {
			rows[i].Symbol = model.NormalizeSymbol(symbol)
		}
	}
	return rows, nil
}

func stopped(ctx context.Context, stop func() bool) bool {
	return ctx.Err() != nil || (stop != nil && stop())
}
