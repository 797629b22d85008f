package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/pulse/internal/metrics"
	"github.com/ogulcanaydogan/pulse/pkg/alerts"
	"github.com/ogulcanaydogan/pulse/pkg/fx"
	"github.com/ogulcanaydogan/pulse/pkg/model"
	"github.com/ogulcanaydogan/pulse/pkg/storage"
)

// DefaultChannelTimeout bounds one external delivery attempt.
const DefaultChannelTimeout = 10 * time.Second

// Channels are the outbound senders. A nil sender marks the channel as unconfigured.
type Channels struct {
	Email    alerts.EmailSender
	Telegram alerts.TelegramSender
	Webhook  alerts.WebhookSender
}

// DispatchResult counts successful deliveries per channel and lists failures.
type DispatchResult struct {
	SentEmail    int      `json:"sentEmail"`
	SentTelegram int      `json:"sentTelegram"`
	SentWebhook  int      `json:"sentWebhook"`
	SentInApp    int      `json:"sentInApp"`
	Errors       []string `json:"errors"`
}

func (r *DispatchResult) add(o DispatchResult) {
	r.SentEmail += o.SentEmail
	r.SentTelegram += o.SentTelegram
	r.SentWebhook += o.SentWebhook
	r.SentInApp += o.SentInApp
	r.Errors = append(r.Errors, o.Errors...)
}

// Dispatcher fans a triggered rule out to every configured channel and
// records one NotificationDelivery per attempt.
type Dispatcher struct {
	store    storage.Storage
	channels Channels
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. A zero timeout uses DefaultChannelTimeout.
func NewDispatcher(store storage.Storage, channels Channels, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultChannelTimeout
	}
	return &Dispatcher{
		store:    store,
		channels: channels,
		timeout:  timeout,
		metrics:  m,
		logger:   logger,
	}
}

// Dispatch delivers every triggered rule of org. Channel failures are
// recorded and reported, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, org *model.Organization, triggered []TriggeredRule) DispatchResult {
	// The rules are latched already and will not fire again, so delivery and its
	// bookkeeping outlive the caller. Each send is still bounded by the channel timeout.
	ctx = context.WithoutCancel(ctx)
	res := DispatchResult{Errors: []string{}}
	for _, t := range triggered {
		res.add(d.dispatchOne(ctx, org, t))
	}
	return res
}

func (d *Dispatcher) dispatchOne(ctx context.Context, org *model.Organization, t TriggeredRule) DispatchResult {
	var res DispatchResult
	alert := alerts.Alert{
		EventID:     t.Event.ID,
		OrgID:       org.ID,
		OrgName:     org.Name,
		RuleID:      t.Rule.ID,
		RuleName:    t.Rule.Name,
		Threshold:   t.Rule.Threshold,
		Amount:      t.Event.Amount,
		Currency:    fx.Base,
		Window:      WindowLabel(t.Rule.Window, t.Rule.WindowDays),
		TriggeredAt: t.Event.TriggeredAt,
		Message:     t.Event.Message,
	}

	d.sendEmail(ctx, org, alert, &res)
	d.sendTelegram(ctx, org, alert, &res)
	d.sendWebhooks(ctx, org, alert, &res)
	d.recordInApp(ctx, org, alert, &res)
	return res
}

func (d *Dispatcher) sendEmail(ctx context.Context, org *model.Organization, alert alerts.Alert, res *DispatchResult) {
	if d.channels.Email == nil {
		d.logger.Debug("email channel not configured, skipping", "org_id", org.ID, "channel", model.ChannelEmail)
		return
	}
	recipients, err := d.store.ListAlertRecipients(ctx, org.ID)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("email: list recipients: %v", err))
		return
	}
	if len(recipients) == 0 {
		d.logger.Debug("no alert recipients, skipping email", "org_id", org.ID)
		return
	}
	for _, r := range recipients {
		to := r.Email
		if d.deliver(ctx, alert, model.ChannelEmail, to, res, func(ctx context.Context) error {
			return d.channels.Email.SendEmail(ctx, to, alert)
		}) {
			res.SentEmail++
		}
	}
}

func (d *Dispatcher) sendTelegram(ctx context.Context, org *model.Organization, alert alerts.Alert, res *DispatchResult) {
	if d.channels.Telegram == nil || !org.TelegramConfigured() {
		d.logger.Debug("telegram channel not configured, skipping", "org_id", org.ID, "channel", model.ChannelTelegram)
		return
	}
	if d.deliver(ctx, alert, model.ChannelTelegram, org.TelegramChatID, res, func(ctx context.Context) error {
		return d.channels.Telegram.SendTelegram(ctx, org.TelegramBotToken, org.TelegramChatID, alert)
	}) {
		res.SentTelegram++
	}
}

func (d *Dispatcher) sendWebhooks(ctx context.Context, org *model.Organization, alert alerts.Alert, res *DispatchResult) {
	if d.channels.Webhook == nil {
		return
	}
	endpoints, err := d.store.ListWebhookEndpoints(ctx, org.ID, model.EventAlertTriggered)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("webhook: list endpoints: %v", err))
		return
	}
	for _, ep := range endpoints {
		if d.deliver(ctx, alert, model.ChannelWebhook, ep.URL, res, func(ctx context.Context) error {
			return d.channels.Webhook.PostWebhook(ctx, ep.URL, ep.Secret, alert)
		}) {
			res.SentWebhook++
		}
	}
}

func (d *Dispatcher) recordInApp(ctx context.Context, org *model.Organization, alert alerts.Alert, res *DispatchResult) {
	if d.deliver(ctx, alert, model.ChannelInApp, "", res, func(ctx context.Context) error {
		return d.store.CreateInAppNotification(ctx, &model.InAppNotification{
			OrgID:     org.ID,
			EventID:   alert.EventID,
			Title:     alert.Subject(),
			Message:   alert.Message,
			CreatedAt: alert.TriggeredAt,
		})
	}) {
		res.SentInApp++
	}
}

// deliver records a pending delivery, runs send under the channel timeout and
// moves the row to its terminal state. It reports whether send succeeded.
func (d *Dispatcher) deliver(ctx context.Context, alert alerts.Alert, channel model.Channel, target string, res *DispatchResult, send func(context.Context) error) bool {
	delivery := &model.NotificationDelivery{
		EventID: alert.EventID,
		OrgID:   alert.OrgID,
		Channel: channel,
		Target:  target,
	}
	if err := d.store.CreateDelivery(ctx, delivery); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: record delivery: %v", channel, err))
		return false
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	sendErr := send(sendCtx)
	cancel()

	status, errMsg := model.DeliverySent, ""
	if sendErr != nil {
		status, errMsg = model.DeliveryFailed, sendErr.Error()
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", channel, sendErr))
		d.logger.Warn("alert delivery failed",
			"org_id", alert.OrgID,
			"rule_id", alert.RuleID,
			"channel", channel,
			"error", sendErr,
		)
	}
	d.metrics.IncDelivery(string(channel), string(status))

	if err := d.store.FinishDelivery(ctx, delivery.ID, status, errMsg); err != nil {
		d.logger.Error("finish delivery", "org_id", alert.OrgID, "channel", channel, "error", err)
		res.Errors = append(res.Errors, fmt.Sprintf("%s: finish delivery: %v", channel, err))
	}
	return sendErr == nil
}
