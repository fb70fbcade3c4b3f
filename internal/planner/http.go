package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"ProfilePilot/internal/model"
)

// HTTPPlanner implements Planner, Quoter and UniverseSource against the
// planner REST API.
type HTTPPlanner struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPPlanner creates a client with optional proxy support.
func NewHTTPPlanner(baseURL, apiKey, proxyURL string) *HTTPPlanner {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &HTTPPlanner{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

type projectResponse struct {
	Rows []model.ScanRow `json:"rows"`
}

type proposeResponse struct {
	Plans  []model.TradePlan `json:"plans"`
	Reason string            `json:"reason"`
}

func (p *HTTPPlanner) Project(ctx context.Context, req ProjectRequest) ([]model.ScanRow, error) {
	q := url.Values{}
	q.Set("symbol", req.Symbol)
	q.Set("granularity", fmt.Sprint(req.GranularityMinutes))
	q.Set("lookback", fmt.Sprint(req.LookbackMinutes))
	q.Set("up", fmt.Sprint(req.UpThreshold))
	q.Set("down", fmt.Sprint(req.DownThreshold))

	var resp projectResponse
	if err := p.do(ctx, http.MethodGet, "/api/v1/project?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("project %s: %w", req.Symbol, err)
	}
	return resp.Rows, nil
}

func (p *HTTPPlanner) ProposeWithDiagnostics(ctx context.Context, req ProposeRequest) (Proposal, error) {
	body := map[string]any{
		"account_id":  req.AccountID,
		"symbol":      req.Symbol,
		"granularity": req.GranularityMinutes,
		"equity":      req.Equity,
		"risk_pct":    req.RiskPct,
		"rows":        req.Rows,
	}
	var resp proposeResponse
	if err := p.do(ctx, http.MethodPost, "/api/v1/propose", body, &resp); err != nil {
		return Proposal{}, fmt.Errorf("propose %s: %w", req.Symbol, err)
	}
	return Proposal{Plans: resp.Plans, Reason: resp.Reason}, nil
}

func (p *HTTPPlanner) Price(ctx context.Context, symbol string) (float64, error) {
	var resp struct {
		Price float64 `json:"price"`
	}
	if err := p.do(ctx, http.MethodGet, "/api/v1/quote?symbol="+url.QueryEscape(symbol), nil, &resp); err != nil {
		return 0, fmt.Errorf("quote %s: %w", symbol, err)
	}
	return resp.Price, nil
}

func (p *HTTPPlanner) Universe(ctx context.Context) ([]string, error) {
	var resp struct {
		Symbols []string `json:"symbols"`
	}
	if err := p.do(ctx, http.MethodGet, "/api/v1/products", nil, &resp); err != nil {
		return nil, fmt.Errorf("universe: %w", err)
	}
	return resp.Symbols, nil
}

func (p *HTTPPlanner) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d, body: %s", resp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
