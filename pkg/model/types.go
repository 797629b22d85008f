package model

import "time"

// Role is a member's role inside an organization.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleFinance Role = "finance"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleFinance, RoleManager, RoleMember:
		return true
	}
	return false
}

// ReceivesAlerts reports whether members with this role get alert emails.
func (r Role) ReceivesAlerts() bool {
	return r == RoleAdmin || r == RoleFinance || r == RoleManager
}

// Organization is a tenant with its own spend, rules and channels.
type Organization struct {
	ID               string    `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"`
	MonthlyBudget    *Micros   `json:"monthly_budget,omitempty" db:"monthly_budget"`
	TelegramBotToken string    `json:"-" db:"telegram_bot_token"`
	TelegramChatID   string    `json:"telegram_chat_id,omitempty" db:"telegram_chat_id"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// TelegramConfigured reports whether any Telegram setting is present.
func (o *Organization) TelegramConfigured() bool {
	return o.TelegramBotToken != "" || o.TelegramChatID != ""
}

// Member links a user to an organization.
type Member struct {
	OrgID     string    `json:"org_id" db:"org_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Email     string    `json:"email" db:"email"`
	Role      Role      `json:"role" db:"role"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// EventAlertTriggered is the webhook event type for a rule trigger.
const EventAlertTriggered = "alert.triggered"

// WebhookEndpoint is an outbound webhook registered by an organization.
type WebhookEndpoint struct {
	ID        string    `json:"id" db:"id"`
	OrgID     string    `json:"org_id" db:"org_id"`
	URL       string    `json:"url" db:"url"`
	Secret    string    `json:"-" db:"secret"`
	Events    []string  `json:"events" db:"events"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Subscribed reports whether the endpoint wants the given event type.
func (w *WebhookEndpoint) Subscribed(event string) bool {
	for _, e := range w.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}

// CostRecord is one line of imported or synced spend.
type CostRecord struct {
	ID         string    `json:"id" db:"id"`
	OrgID      string    `json:"org_id" db:"org_id"`
	Provider   string    `json:"provider" db:"provider"`
	Service    string    `json:"service" db:"service"`
	Amount     Micros    `json:"amount" db:"amount_micros"`
	Currency   string    `json:"currency" db:"currency"`
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// WindowKind selects how a rule's spend window is computed.
type WindowKind string

const (
	WindowTrailing    WindowKind = "trailing"
	WindowMonthToDate WindowKind = "month_to_date"
)

// AlertRule fires when spend over its window reaches the threshold.
// Triggered latches until spend falls back below the threshold.
type AlertRule struct {
	ID          string     `json:"id" db:"id"`
	OrgID       string     `json:"org_id" db:"org_id"`
	Name        string     `json:"name" db:"name"`
	Threshold   Micros     `json:"threshold" db:"threshold_micros"`
	WindowDays  int        `json:"window_days" db:"window_days"`
	Window      WindowKind `json:"window" db:"window_kind"`
	Triggered   bool       `json:"triggered" db:"triggered"`
	TriggeredAt *time.Time `json:"triggered_at,omitempty" db:"triggered_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// BudgetRuleName names the rule created for an organization's monthly budget.
const BudgetRuleName = "Monthly budget"

// BudgetRule returns the month-to-date rule that alerts when spend reaches budget.
func BudgetRule(orgID string, budget Micros) AlertRule {
	return AlertRule{
		OrgID:      orgID,
		Name:       BudgetRuleName,
		Threshold:  budget,
		WindowDays: 31,
		Window:     WindowMonthToDate,
	}
}

// AlertEvent is the append-only record of one trigger edge.
type AlertEvent struct {
	ID          string    `json:"id" db:"id"`
	OrgID       string    `json:"org_id" db:"org_id"`
	RuleID      string    `json:"rule_id" db:"rule_id"`
	TriggeredAt time.Time `json:"triggered_at" db:"triggered_at"`
	Amount      Micros    `json:"amount" db:"amount_micros"`
	Message     string    `json:"message" db:"message"`
}

// Channel is a notification transport.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelTelegram Channel = "telegram"
	ChannelWebhook  Channel = "webhook"
	ChannelInApp    Channel = "in_app"
)

// DeliveryStatus is the state of a single delivery attempt.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// NotificationDelivery records one attempt on one channel for one alert event.
type NotificationDelivery struct {
	ID        string         `json:"id" db:"id"`
	EventID   string         `json:"event_id" db:"event_id"`
	OrgID     string         `json:"org_id" db:"org_id"`
	Channel   Channel        `json:"channel" db:"channel"`
	Target    string         `json:"target,omitempty" db:"target"`
	Status    DeliveryStatus `json:"status" db:"status"`
	Error     string         `json:"error,omitempty" db:"error"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// InAppNotification is shown inside the product for an organization.
type InAppNotification struct {
	ID        string     `json:"id" db:"id"`
	OrgID     string     `json:"org_id" db:"org_id"`
	EventID   string     `json:"event_id,omitempty" db:"event_id"`
	Title     string     `json:"title" db:"title"`
	Message   string     `json:"message" db:"message"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty" db:"read_at"`
}

// RunStatus is the final state of an orchestration run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// CronRunLog is the audit row for one orchestration run.
type CronRunLog struct {
	ID            string     `json:"id" db:"id"`
	JobName       string     `json:"job_name" db:"job_name"`
	StartedAt     time.Time  `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	DurationMS    int64      `json:"duration_ms" db:"duration_ms"`
	Status        RunStatus  `json:"status" db:"status"`
	ProcessedOrgs int        `json:"processed_orgs" db:"processed_orgs"`
	Triggered     int        `json:"triggered" db:"triggered"`
	Cleared       int        `json:"cleared" db:"cleared"`
	SentEmail     int        `json:"sent_email" db:"sent_email"`
	SentTelegram  int        `json:"sent_telegram" db:"sent_telegram"`
	SentWebhook   int        `json:"sent_webhook" db:"sent_webhook"`
	SentInApp     int        `json:"sent_in_app" db:"sent_in_app"`
	ErrorsCount   int        `json:"errors_count" db:"errors_count"`
	ErrorSample   []string   `json:"error_sample,omitempty" db:"error_sample"`
}

// WindowBounds returns the inclusive time range a rule's spend is summed over.
func WindowBounds(now time.Time, kind WindowKind, days int) (start, end time.Time) {
	now = now.UTC()
	switch kind {
	case WindowMonthToDate:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		if days < 1 {
			days = 1
		}
		start = now.Add(-time.Duration(days) * 24 * time.Hour)
	}
	return start, now
}
