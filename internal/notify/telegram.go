package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// TelegramTransport posts rendered alerts to a Telegram chat via the Bot
// API. Adapted directly from the teacher's internal/notify/telegram.go —
// the POST shape is unchanged; only the message source (an AlertPayload
// instead of a free-form Notify* call) is new.
type TelegramTransport struct {
	botToken   string
	chatID     string
	httpClient *http.Client
	enabled    bool
	baseURL    string // overridable for testing
}

// NewTelegramTransport builds a transport active only when both botToken
// and chatID are non-empty.
func NewTelegramTransport(botToken, chatID string) *TelegramTransport {
	return &TelegramTransport{
		botToken:   botToken,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		enabled:    botToken != "" && chatID != "",
	}
}

// Enabled reports whether the transport is active.
func (t *TelegramTransport) Enabled() bool { return t.enabled }

// Send posts payload as a Telegram message. A disabled transport is a
// silent no-op, matching the teacher's posture for unconfigured credentials.
func (t *TelegramTransport) Send(ctx context.Context, payload AlertPayload) error {
	if !t.enabled {
		return nil
	}

	msg := render(payload, false)
	endpoint := t.baseURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	}
	vals := url.Values{"chat_id": {t.chatID}, "text": {msg}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.URL.RawQuery = vals.Encode()

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Description string `json:"description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("notify: telegram %d: %s", resp.StatusCode, body.Description)
	}
	return nil
}

// DryRunTransport renders and logs alerts without delivering them
// anywhere, tagging every payload transport=dry-run.
type DryRunTransport struct {
	Sink func(rendered string)
}

// Send renders payload with the dry-run tag and hands it to Sink (if set).
func (t *DryRunTransport) Send(ctx context.Context, payload AlertPayload) error {
	rendered := render(payload, true)
	if t.Sink != nil {
		t.Sink(rendered)
	}
	return nil
}
