package storage

import (
	"database/sql"
	"fmt"
)

var migrations = []string{
	// Migration 1: tenants and spend
	`CREATE TABLE IF NOT EXISTS organizations (
		id                 TEXT PRIMARY KEY,
		name               TEXT NOT NULL,
		monthly_budget     INTEGER,
		telegram_bot_token TEXT NOT NULL DEFAULT '',
		telegram_chat_id   TEXT NOT NULL DEFAULT '',
		created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS members (
		org_id     TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		email      TEXT NOT NULL,
		role       TEXT NOT NULL CHECK(role IN ('admin', 'finance', 'manager', 'member')),
		active     INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (org_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS webhook_endpoints (
		id         TEXT PRIMARY KEY,
		org_id     TEXT NOT NULL,
		url        TEXT NOT NULL,
		secret     TEXT NOT NULL DEFAULT '',
		events     TEXT NOT NULL DEFAULT '',
		active     INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_webhooks_org ON webhook_endpoints(org_id);

	CREATE TABLE IF NOT EXISTS cost_records (
		id            TEXT PRIMARY KEY,
		org_id        TEXT NOT NULL,
		provider      TEXT NOT NULL,
		service       TEXT NOT NULL DEFAULT '',
		amount_micros INTEGER NOT NULL,
		currency      TEXT NOT NULL DEFAULT 'EUR',
		occurred_at   INTEGER NOT NULL,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_costs_org_time ON cost_records(org_id, occurred_at);`,

	// Migration 2: alert engine
	`CREATE TABLE IF NOT EXISTS alert_rules (
		id               TEXT PRIMARY KEY,
		org_id           TEXT NOT NULL,
		name             TEXT NOT NULL DEFAULT '',
		threshold_micros INTEGER NOT NULL CHECK(threshold_micros > 0),
		window_days      INTEGER NOT NULL DEFAULT 1 CHECK(window_days >= 1),
		window_kind      TEXT NOT NULL DEFAULT 'trailing' CHECK(window_kind IN ('trailing', 'month_to_date')),
		triggered        INTEGER NOT NULL DEFAULT 0,
		triggered_at     DATETIME,
		created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_rules_org ON alert_rules(org_id);

	CREATE TABLE IF NOT EXISTS alert_events (
		id            TEXT PRIMARY KEY,
		org_id        TEXT NOT NULL,
		rule_id       TEXT NOT NULL,
		triggered_at  DATETIME NOT NULL,
		amount_micros INTEGER NOT NULL,
		message       TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_events_org ON alert_events(org_id);
	CREATE INDEX IF NOT EXISTS idx_events_rule ON alert_events(rule_id);

	CREATE TABLE IF NOT EXISTS notification_deliveries (
		id         TEXT PRIMARY KEY,
		event_id   TEXT NOT NULL,
		org_id     TEXT NOT NULL,
		channel    TEXT NOT NULL CHECK(channel IN ('email', 'telegram', 'webhook', 'in_app')),
		target     TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL CHECK(status IN ('pending', 'sent', 'failed')),
		error      TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deliveries_event ON notification_deliveries(event_id);

	CREATE TABLE IF NOT EXISTS in_app_notifications (
		id         TEXT PRIMARY KEY,
		org_id     TEXT NOT NULL,
		event_id   TEXT NOT NULL DEFAULT '',
		title      TEXT NOT NULL,
		message    TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		read_at    DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_in_app_org ON in_app_notifications(org_id, created_at);

	CREATE TABLE IF NOT EXISTS cron_run_logs (
		id             TEXT PRIMARY KEY,
		job_name       TEXT NOT NULL,
		started_at     DATETIME NOT NULL,
		finished_at    DATETIME,
		duration_ms    INTEGER NOT NULL DEFAULT 0,
		status         TEXT NOT NULL CHECK(status IN ('running', 'success', 'partial', 'failed')),
		processed_orgs INTEGER NOT NULL DEFAULT 0,
		triggered      INTEGER NOT NULL DEFAULT 0,
		cleared        INTEGER NOT NULL DEFAULT 0,
		sent_email     INTEGER NOT NULL DEFAULT 0,
		sent_telegram  INTEGER NOT NULL DEFAULT 0,
		sent_webhook   INTEGER NOT NULL DEFAULT 0,
		sent_in_app    INTEGER NOT NULL DEFAULT 0,
		errors_count   INTEGER NOT NULL DEFAULT 0,
		error_sample   TEXT NOT NULL DEFAULT '[]'
	);

	CREATE INDEX IF NOT EXISTS idx_run_logs_job ON cron_run_logs(job_name, started_at);`,
}

// runMigrations applies pending schema migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		if err := applyMigration(db, i+1, migrations[i]); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(db *sql.DB, version int, stmt string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(stmt); err != nil {
		return fmt.Errorf("run migration %d: %w", version, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("record migration %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", version, err)
	}
	return nil
}
