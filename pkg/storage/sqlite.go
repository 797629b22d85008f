package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ogulcanaydogan/pulse/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLite implements the Storage interface using an SQLite database.
type SQLite struct {
	db *sql.DB
}

var _ Storage = (*SQLite)(nil)

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Writers are serialized on one connection. Never call s.db inside a tx.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) CreateOrganization(ctx context.Context, org *model.Organization) error {
	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if org.CreatedAt.IsZero() {
		org.CreatedAt = now
	}
	org.UpdatedAt = now

	var budget sql.NullInt64
	if org.MonthlyBudget != nil {
		budget = sql.NullInt64{Int64: int64(*org.MonthlyBudget), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create organization: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO organizations (id, name, monthly_budget, telegram_bot_token, telegram_chat_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		org.ID, org.Name, budget, org.TelegramBotToken, org.TelegramChatID, org.CreatedAt, org.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}

	// The budget is evaluated as an ordinary month-to-date rule with its own latch.
	if org.MonthlyBudget != nil {
		rule := model.BudgetRule(org.ID, *org.MonthlyBudget)
		if err := insertAlertRule(ctx, tx, &rule); err != nil {
			return fmt.Errorf("monthly budget: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit organization: %w", err)
	}
	return nil
}

const orgColumns = `id, name, monthly_budget, telegram_bot_token, telegram_chat_id, created_at, updated_at`

func scanOrganization(row interface{ Scan(...any) error }) (*model.Organization, error) {
	var o model.Organization
	var budget sql.NullInt64
	if err := row.Scan(&o.ID, &o.Name, &budget, &o.TelegramBotToken, &o.TelegramChatID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	if budget.Valid {
		b := model.Micros(budget.Int64)
		o.MonthlyBudget = &b
	}
	return &o, nil
}

func (s *SQLite) GetOrganization(ctx context.Context, id string) (*model.Organization, error) {
	o, err := scanOrganization(s.db.QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("organization %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return o, nil
}

func (s *SQLite) ListOrganizations(ctx context.Context) ([]model.Organization, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+orgColumns+` FROM organizations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []model.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organization row: %w", err)
		}
		orgs = append(orgs, *o)
	}
	return orgs, rows.Err()
}

func (s *SQLite) ListOrganizationIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM organizations ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list organization ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan organization id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLite) UpsertMember(ctx context.Context, m *model.Member) error {
	if !m.Role.Valid() {
		return fmt.Errorf("invalid role %q", m.Role)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (org_id, user_id, email, role, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(org_id, user_id) DO UPDATE SET
		   email = excluded.email,
		   role = excluded.role,
		   active = excluded.active`,
		m.OrgID, m.UserID, m.Email, string(m.Role), m.Active, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

func (s *SQLite) GetMember(ctx context.Context, orgID, userID string) (*model.Member, error) {
	var m model.Member
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT org_id, user_id, email, role, active, created_at FROM members WHERE org_id = ? AND user_id = ?`,
		orgID, userID,
	).Scan(&m.OrgID, &m.UserID, &m.Email, &role, &m.Active, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("member %q of %q: %w", userID, orgID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	m.Role = model.Role(role)
	return &m, nil
}

func (s *SQLite) ListAlertRecipients(ctx context.Context, orgID string) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT org_id, user_id, email, role, active, created_at FROM members
		 WHERE org_id = ? AND active = 1 AND role IN ('admin', 'finance', 'manager') AND email != ''
		 ORDER BY email`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list alert recipients: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		var m model.Member
		var role string
		if err := rows.Scan(&m.OrgID, &m.UserID, &m.Email, &role, &m.Active, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member row: %w", err)
		}
		m.Role = model.Role(role)
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *SQLite) AddWebhookEndpoint(ctx context.Context, w *model.WebhookEndpoint) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO webhook_endpoints (id, org_id, url, secret, events, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.OrgID, w.URL, w.Secret, strings.Join(w.Events, ","), w.Active, w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook endpoint: %w", err)
	}
	return nil
}

func (s *SQLite) ListWebhookEndpoints(ctx context.Context, orgID, event string) ([]model.WebhookEndpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, org_id, url, secret, events, active, created_at FROM webhook_endpoints
		 WHERE org_id = ? AND active = 1 ORDER BY created_at, id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list webhook endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []model.WebhookEndpoint
	for rows.Next() {
		var w model.WebhookEndpoint
		var events string
		if err := rows.Scan(&w.ID, &w.OrgID, &w.URL, &w.Secret, &events, &w.Active, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook row: %w", err)
		}
		w.Events = splitEvents(events)
		if event == "" || w.Subscribed(event) {
			endpoints = append(endpoints, w)
		}
	}
	return endpoints, rows.Err()
}

func splitEvents(s string) []string {
	var out []string
	for _, e := range strings.Split(s, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

func (s *SQLite) RecordCost(ctx context.Context, rec *model.CostRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = now
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.Currency == "" {
		rec.Currency = "EUR"
	}
	rec.Currency = strings.ToUpper(rec.Currency)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cost_records (id, org_id, provider, service, amount_micros, currency, occurred_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OrgID, rec.Provider, rec.Service, int64(rec.Amount), rec.Currency,
		rec.OccurredAt.Unix(), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cost record: %w", err)
	}
	return nil
}

func (s *SQLite) SumCostsByCurrency(ctx context.Context, orgID string, from, to time.Time) (map[string]model.Micros, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT currency, COALESCE(SUM(amount_micros), 0) FROM cost_records
		 WHERE org_id = ? AND occurred_at >= ? AND occurred_at <= ?
		 GROUP BY currency`,
		orgID, from.Unix(), to.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("sum costs: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]model.Micros)
	for rows.Next() {
		var currency string
		var total int64
		if err := rows.Scan(&currency, &total); err != nil {
			return nil, fmt.Errorf("scan cost sum: %w", err)
		}
		totals[currency] = model.Micros(total)
	}
	return totals, rows.Err()
}
