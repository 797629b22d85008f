package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ogulcanaydogan/pulse/pkg/model"
)

const ruleColumns = `id, org_id, name, threshold_micros, window_days, window_kind, triggered, triggered_at, created_at, updated_at`

func (s *SQLite) CreateAlertRule(ctx context.Context, rule *model.AlertRule) error {
	return insertAlertRule(ctx, s.db, rule)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAlertRule(ctx context.Context, db execer, rule *model.AlertRule) error {
	if rule.Threshold <= 0 {
		return fmt.Errorf("alert rule threshold must be positive")
	}
	if rule.Window == "" {
		rule.Window = model.WindowTrailing
	}
	if rule.WindowDays < 1 {
		return fmt.Errorf("alert rule window must be at least one day")
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	_, err := db.ExecContext(ctx,
		`INSERT INTO alert_rules (`+ruleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.OrgID, rule.Name, int64(rule.Threshold), rule.WindowDays, string(rule.Window),
		rule.Triggered, nullTime(rule.TriggeredAt), rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert rule: %w", err)
	}
	return nil
}

func (s *SQLite) ListAlertRules(ctx context.Context, orgID string) ([]model.AlertRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM alert_rules WHERE org_id = ? ORDER BY created_at, id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list alert rules: %w", err)
	}
	defer rows.Close()

	var rules []model.AlertRule
	for rows.Next() {
		var r model.AlertRule
		var threshold int64
		var kind string
		var triggeredAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.OrgID, &r.Name, &threshold, &r.WindowDays, &kind,
			&r.Triggered, &triggeredAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan alert rule row: %w", err)
		}
		r.Threshold = model.Micros(threshold)
		r.Window = model.WindowKind(kind)
		if triggeredAt.Valid {
			t := triggeredAt.Time.UTC()
			r.TriggeredAt = &t
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *SQLite) DeleteAlertRule(ctx context.Context, orgID, ruleID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = ? AND org_id = ?`, ruleID, orgID)
	if err != nil {
		return fmt.Errorf("delete alert rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("alert rule %q: %w", ruleID, ErrNotFound)
	}
	return nil
}

func (s *SQLite) TriggerRule(ctx context.Context, ruleID string, event *model.AlertEvent) (bool, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.TriggeredAt.IsZero() {
		event.TriggeredAt = time.Now().UTC()
	}
	event.RuleID = ruleID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin trigger: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE alert_rules SET triggered = 1, triggered_at = ?, updated_at = ?
		 WHERE id = ? AND triggered = 0`,
		event.TriggeredAt, event.TriggeredAt, ruleID,
	)
	if err != nil {
		return false, fmt.Errorf("latch alert rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO alert_events (id, org_id, rule_id, triggered_at, amount_micros, message)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.OrgID, event.RuleID, event.TriggeredAt, int64(event.Amount), event.Message,
	)
	if err != nil {
		return false, fmt.Errorf("insert alert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit trigger: %w", err)
	}
	return true, nil
}

func (s *SQLite) ClearRule(ctx context.Context, ruleID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alert_rules SET triggered = 0, triggered_at = NULL, updated_at = ?
		 WHERE id = ? AND triggered = 1`,
		at.UTC(), ruleID,
	)
	if err != nil {
		return false, fmt.Errorf("clear alert rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *SQLite) ListAlertEvents(ctx context.Context, orgID, ruleID string) ([]model.AlertEvent, error) {
	query := `SELECT id, org_id, rule_id, triggered_at, amount_micros, message FROM alert_events WHERE org_id = ?`
	args := []any{orgID}
	if ruleID != "" {
		query += " AND rule_id = ?"
		args = append(args, ruleID)
	}
	query += " ORDER BY triggered_at, rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alert events: %w", err)
	}
	defer rows.Close()

	var events []model.AlertEvent
	for rows.Next() {
		var e model.AlertEvent
		var amount int64
		if err := rows.Scan(&e.ID, &e.OrgID, &e.RuleID, &e.TriggeredAt, &amount, &e.Message); err != nil {
			return nil, fmt.Errorf("scan alert event row: %w", err)
		}
		e.Amount = model.Micros(amount)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *SQLite) CreateDelivery(ctx context.Context, d *model.NotificationDelivery) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	d.Status = model.DeliveryPending
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_deliveries (id, event_id, org_id, channel, target, status, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, '', ?, ?)`,
		d.ID, d.EventID, d.OrgID, string(d.Channel), d.Target, string(d.Status), d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (s *SQLite) FinishDelivery(ctx context.Context, id string, status model.DeliveryStatus, errMsg string) error {
	if status != model.DeliverySent && status != model.DeliveryFailed {
		return fmt.Errorf("invalid terminal delivery status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE notification_deliveries SET status = ?, error = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending'`,
		string(status), errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("finish delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("pending delivery %q: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLite) ListDeliveries(ctx context.Context, eventID string) ([]model.NotificationDelivery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, org_id, channel, target, status, error, created_at, updated_at
		 FROM notification_deliveries WHERE event_id = ? ORDER BY created_at, rowid`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []model.NotificationDelivery
	for rows.Next() {
		var d model.NotificationDelivery
		var channel, status string
		if err := rows.Scan(&d.ID, &d.EventID, &d.OrgID, &channel, &d.Target, &status, &d.Error,
			&d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery row: %w", err)
		}
		d.Channel = model.Channel(channel)
		d.Status = model.DeliveryStatus(status)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLite) CreateInAppNotification(ctx context.Context, n *model.InAppNotification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO in_app_notifications (id, org_id, event_id, title, message, created_at, read_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.OrgID, n.EventID, n.Title, n.Message, n.CreatedAt, nullTime(n.ReadAt),
	)
	if err != nil {
		return fmt.Errorf("insert in-app notification: %w", err)
	}
	return nil
}

func (s *SQLite) ListInAppNotifications(ctx context.Context, orgID string, limit int) ([]model.InAppNotification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, org_id, event_id, title, message, created_at, read_at FROM in_app_notifications
		 WHERE org_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("list in-app notifications: %w", err)
	}
	defer rows.Close()

	var out []model.InAppNotification
	for rows.Next() {
		var n model.InAppNotification
		var readAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.OrgID, &n.EventID, &n.Title, &n.Message, &n.CreatedAt, &readAt); err != nil {
			return nil, fmt.Errorf("scan in-app notification row: %w", err)
		}
		if readAt.Valid {
			t := readAt.Time.UTC()
			n.ReadAt = &t
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *SQLite) StartRunLog(ctx context.Context, log *model.CronRunLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.StartedAt.IsZero() {
		log.StartedAt = time.Now().UTC()
	}
	log.Status = model.RunRunning

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cron_run_logs (id, job_name, started_at, status) VALUES (?, ?, ?, ?)`,
		log.ID, log.JobName, log.StartedAt, string(log.Status),
	)
	if err != nil {
		return fmt.Errorf("insert run log: %w", err)
	}
	return nil
}

func (s *SQLite) FinishRunLog(ctx context.Context, log *model.CronRunLog) error {
	sample, err := json.Marshal(nonNil(log.ErrorSample))
	if err != nil {
		return fmt.Errorf("encode error sample: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE cron_run_logs SET
		   finished_at = ?, duration_ms = ?, status = ?, processed_orgs = ?, triggered = ?, cleared = ?,
		   sent_email = ?, sent_telegram = ?, sent_webhook = ?, sent_in_app = ?, errors_count = ?, error_sample = ?
		 WHERE id = ?`,
		nullTime(log.FinishedAt), log.DurationMS, string(log.Status), log.ProcessedOrgs, log.Triggered, log.Cleared,
		log.SentEmail, log.SentTelegram, log.SentWebhook, log.SentInApp, log.ErrorsCount, string(sample),
		log.ID,
	)
	if err != nil {
		return fmt.Errorf("update run log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run log %q: %w", log.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLite) LatestRunLog(ctx context.Context, job string) (*model.CronRunLog, error) {
	var l model.CronRunLog
	var status, sample string
	var finished sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, job_name, started_at, finished_at, duration_ms, status, processed_orgs, triggered, cleared,
		        sent_email, sent_telegram, sent_webhook, sent_in_app, errors_count, error_sample
		 FROM cron_run_logs WHERE job_name = ? ORDER BY started_at DESC, rowid DESC LIMIT 1`, job,
	).Scan(&l.ID, &l.JobName, &l.StartedAt, &finished, &l.DurationMS, &status, &l.ProcessedOrgs, &l.Triggered,
		&l.Cleared, &l.SentEmail, &l.SentTelegram, &l.SentWebhook, &l.SentInApp, &l.ErrorsCount, &sample)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run log for job %q: %w", job, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get latest run log: %w", err)
	}
	l.Status = model.RunStatus(status)
	if finished.Valid {
		t := finished.Time.UTC()
		l.FinishedAt = &t
	}
	if err := json.Unmarshal([]byte(sample), &l.ErrorSample); err != nil {
		return nil, fmt.Errorf("decode error sample: %w", err)
	}
	return &l, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
