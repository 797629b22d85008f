package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ogulcanaydogan/pulse/pkg/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines the persistence layer for tenants, spend and the alert engine.
type Storage interface {
	// CreateOrganization persists a new organization.
	CreateOrganization(ctx context.Context, org *model.Organization) error

	// GetOrganization retrieves an organization by id.
	GetOrganization(ctx context.Context, id string) (*model.Organization, error)

	// ListOrganizations returns every organization ordered by name.
	ListOrganizations(ctx context.Context) ([]model.Organization, error)

	// ListOrganizationIDs returns the id of every organization.
	ListOrganizationIDs(ctx context.Context) ([]string, error)

	// UpsertMember adds a member or updates their email, role and active flag.
	UpsertMember(ctx context.Context, m *model.Member) error

	// GetMember retrieves one membership.
	GetMember(ctx context.Context, orgID, userID string) (*model.Member, error)

	// ListAlertRecipients returns active members whose role receives alerts.
	ListAlertRecipients(ctx context.Context, orgID string) ([]model.Member, error)

	// AddWebhookEndpoint registers an outbound webhook.
	AddWebhookEndpoint(ctx context.Context, w *model.WebhookEndpoint) error

	// ListWebhookEndpoints returns active endpoints subscribed to event.
	ListWebhookEndpoints(ctx context.Context, orgID, event string) ([]model.WebhookEndpoint, error)

	// RecordCost persists a single cost record.
	RecordCost(ctx context.Context, rec *model.CostRecord) error

	// SumCostsByCurrency sums cost amounts in [from, to] grouped by currency.
	SumCostsByCurrency(ctx context.Context, orgID string, from, to time.Time) (map[string]model.Micros, error)

	// CreateAlertRule persists a new alert rule.
	CreateAlertRule(ctx context.Context, rule *model.AlertRule) error

	// ListAlertRules returns an organization's rules ordered by creation.
	ListAlertRules(ctx context.Context, orgID string) ([]model.AlertRule, error)

	// DeleteAlertRule removes a rule. Its alert events are kept.
	DeleteAlertRule(ctx context.Context, orgID, ruleID string) error

	// TriggerRule latches a rule that is not triggered and appends the event
	// in one transaction. It reports false when the rule was already triggered.
	TriggerRule(ctx context.Context, ruleID string, event *model.AlertEvent) (bool, error)

	// ClearRule re-arms a triggered rule. It reports false when the rule was not triggered.
	ClearRule(ctx context.Context, ruleID string, at time.Time) (bool, error)

	// ListAlertEvents returns events for an organization, optionally for one rule.
	ListAlertEvents(ctx context.Context, orgID, ruleID string) ([]model.AlertEvent, error)

	// CreateDelivery inserts a pending delivery row.
	CreateDelivery(ctx context.Context, d *model.NotificationDelivery) error

	// FinishDelivery moves a pending delivery to sent or failed.
	FinishDelivery(ctx context.Context, id string, status model.DeliveryStatus, errMsg string) error

	// ListDeliveries returns the deliveries recorded for an alert event.
	ListDeliveries(ctx context.Context, eventID string) ([]model.NotificationDelivery, error)

	// CreateInAppNotification persists an in-app notification.
	CreateInAppNotification(ctx context.Context, n *model.InAppNotification) error

	// ListInAppNotifications returns the newest notifications for an organization.
	ListInAppNotifications(ctx context.Context, orgID string, limit int) ([]model.InAppNotification, error)

	// StartRunLog inserts a run log in the running state.
	StartRunLog(ctx context.Context, log *model.CronRunLog) error

	// FinishRunLog writes the final counts and status of a run.
	FinishRunLog(ctx context.Context, log *model.CronRunLog) error

	// LatestRunLog returns the most recent run for a job.
	LatestRunLog(ctx context.Context, job string) (*model.CronRunLog, error)

	// Close releases resources.
	Close() error
}
