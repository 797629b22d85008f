package alerts

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ogulcanaydogan/pulse/pkg/model"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Signature-256"

// WebhookPoster sends alerts to organization webhook endpoints.
type WebhookPoster struct {
	client *http.Client
	now    func() time.Time
}

// NewWebhookPoster creates a webhook poster.
func NewWebhookPoster() *WebhookPoster {
	return &WebhookPoster{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// PostWebhook sends the alert. If secret is non-empty, the body is signed with HMAC-SHA256.
func (w *WebhookPoster) PostWebhook(ctx context.Context, url, secret string, alert Alert) error {
	payload := WebhookPayload{
		Event:     model.EventAlertTriggered,
		Timestamp: w.now().Format(time.RFC3339),
		Alert:     alert,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "PULSE-Alerts/1.0")
	req.Header.Set("X-Pulse-Event", model.EventAlertTriggered)

	if secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(body, []byte(secret)))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook alert: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// WebhookPayload is the JSON body posted to webhook endpoints.
type WebhookPayload struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Alert     Alert  `json:"alert"`
}

// Sign returns the hex HMAC-SHA256 of message under key.
func Sign(message, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
