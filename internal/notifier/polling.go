package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// CommandHandler is called when a user command is received.
type CommandHandler func(command string) string

type telegramUpdate struct {
	UpdateID int `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
	} `json:"message"`
}

// StartPolling long-polls Telegram for commands. Blocks until ctx is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	offset := 0
	client := &http.Client{Timeout: 35 * time.Second, Transport: t.Client.Transport}

	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("telegram polling stopped")
			return
		default:
		}

		next, err := t.poll(ctx, client, offset, handler)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Warn().Err(err).Msg("polling request failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		offset = next
	}
}

func (t *TelegramNotifier) poll(ctx context.Context, client *http.Client, offset int, handler CommandHandler) (int, error) {
	apiURL := fmt.Sprintf("%s?offset=%d&timeout=30", t.endpoint("getUpdates"), offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return offset, fmt.Errorf("create polling request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return offset, err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return offset, fmt.Errorf("read polling response: %w", err)
	}

	var result struct {
		OK     bool             `json:"ok"`
		Result []telegramUpdate `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return offset, fmt.Errorf("decode polling response: %w", err)
	}

	for _, update := range result.Result {
		offset = update.UpdateID + 1
		if update.Message == nil || update.Message.Text == "" {
			continue
		}
		text := strings.TrimSpace(update.Message.Text)
		t.logger.Info().Str("command", text).Msg("received command")
		if reply := handler(text); reply != "" {
			if err := t.Send(ctx, reply); err != nil {
				t.logger.Error().Err(err).Msg("send reply")
			}
		}
	}
	return offset, nil
}
