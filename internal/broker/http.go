package broker

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

	"github.com/rs/zerolog"
)

// BridgeBroker forwards validation and placement to an external order
// gateway over REST. The gateway owns the real exchange integration.
type BridgeBroker struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	logger  zerolog.Logger
}

// NewBridgeBroker creates a gateway client with optional proxy support.
func NewBridgeBroker(baseURL, apiKey, proxyURL string, logger zerolog.Logger) *BridgeBroker {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &BridgeBroker{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		logger: logger.With().Str("component", "bridge-broker").Logger(),
	}
}

// GetCapabilities asks the gateway; an unreachable gateway reports nothing supported.
func (b *BridgeBroker) GetCapabilities(ctx context.Context) Capabilities {
	var caps Capabilities
	if err := b.do(ctx, http.MethodGet, "/api/v1/capabilities", nil, &caps); err != nil {
		b.logger.Warn().Err(err).Msg("capabilities unavailable")
		return Capabilities{Notes: "gateway unavailable"}
	}
	return caps
}

func (b *BridgeBroker) ValidateTradePlan(ctx context.Context, plan model.TradePlan) (Ack, error) {
	var ack Ack
	if err := b.do(ctx, http.MethodPost, "/api/v1/orders/validate", plan, &ack); err != nil {
		return Ack{}, fmt.Errorf("validate %s: %w", plan.Symbol, err)
	}
	return ack, nil
}

func (b *BridgeBroker) PlaceOrder(ctx context.Context, plan model.TradePlan) (Ack, error) {
	var ack Ack
	if err := b.do(ctx, http.MethodPost, "/api/v1/orders", plan, &ack); err != nil {
		return Ack{}, fmt.Errorf("place %s: %w", plan.Symbol, err)
	}
	return ack, nil
}

func (b *BridgeBroker) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.APIKey)
	}
	resp, err := b.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
