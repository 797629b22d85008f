package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTelegramAPI is the Telegram Bot API base URL.
const DefaultTelegramAPI = "https://api.telegram.org"

// TelegramClient sends alerts through the Telegram Bot API.
type TelegramClient struct {
	apiURL string
	client *http.Client
}

// NewTelegramClient creates a client for the given API base URL.
// An empty apiURL uses DefaultTelegramAPI.
func NewTelegramClient(apiURL string) *TelegramClient {
	if apiURL == "" {
		apiURL = DefaultTelegramAPI
	}
	return &TelegramClient{
		apiURL: strings.TrimRight(apiURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendTelegram posts the alert text to chatID using botToken.
func (t *TelegramClient) SendTelegram(ctx context.Context, botToken, chatID string, alert Alert) error {
	if botToken == "" {
		return errors.New("telegram bot token is not configured")
	}
	if chatID == "" {
		return errors.New("telegram chat id is not configured")
	}

	body, err := json.Marshal(telegramMessage{
		ChatID: chatID,
		Text:   alert.Subject() + "\n\n" + alert.Text(),
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.New("create telegram request: malformed bot token")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// url.Error embeds the request URL, which contains the bot token.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	var result telegramResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &result)

	if resp.StatusCode != http.StatusOK || !result.OK {
		desc := result.Description
		if desc == "" {
			desc = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("telegram returned status %d: %s", resp.StatusCode, desc)
	}
	return nil
}

type telegramMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}
