package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ogulcanaydogan/pulse/pkg/model"
)

// Alert is a triggered spend rule rendered for delivery.
type Alert struct {
	EventID     string       `json:"event_id"`
	OrgID       string       `json:"org_id"`
	OrgName     string       `json:"org_name"`
	RuleID      string       `json:"rule_id"`
	RuleName    string       `json:"rule_name,omitempty"`
	Threshold   model.Micros `json:"threshold"`
	Amount      model.Micros `json:"amount"`
	Currency    string       `json:"currency"`
	Window      string       `json:"window"`
	TriggeredAt time.Time    `json:"triggered_at"`
	Message     string       `json:"message"`
}

// Subject is the one-line summary used for email subjects and in-app titles.
func (a Alert) Subject() string {
	name := a.RuleName
	if name == "" {
		name = "Spend alert"
	}
	return fmt.Sprintf("[PULSE] %s: %s", a.OrgName, name)
}

// Text renders the plain-text body shared by email and Telegram.
func (a Alert) Text() string {
	var b strings.Builder
	b.WriteString(a.Message)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Organization: %s\n", a.OrgName)
	fmt.Fprintf(&b, "Spend: %s %s\n", a.Amount, a.Currency)
	fmt.Fprintf(&b, "Threshold: %s %s\n", a.Threshold, a.Currency)
	fmt.Fprintf(&b, "Window: %s\n", a.Window)
	fmt.Fprintf(&b, "Triggered: %s\n", a.TriggeredAt.UTC().Format("2006-01-02 15:04 MST"))
	return b.String()
}

// EmailSender delivers one alert to one recipient.
type EmailSender interface {
	SendEmail(ctx context.Context, to string, alert Alert) error
}

// TelegramSender posts an alert to a Telegram chat through a bot.
type TelegramSender interface {
	SendTelegram(ctx context.Context, botToken, chatID string, alert Alert) error
}

// WebhookSender posts a signed alert payload to an endpoint.
type WebhookSender interface {
	PostWebhook(ctx context.Context, url, secret string, alert Alert) error
}
