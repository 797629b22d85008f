package storage_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/pulse/pkg/model"
	"github.com/ogulcanaydogan/pulse/pkg/storage"
)

func newTestDB(t *testing.T) *storage.SQLite {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newOrg(t *testing.T, db *storage.SQLite, name string) *model.Organization {
	t.Helper()
	org := &model.Organization{Name: name}
	require.NoError(t, db.CreateOrganization(context.Background(), org))
	return org
}

func newRule(t *testing.T, db *storage.SQLite, orgID string) *model.AlertRule {
	t.Helper()
	rule := &model.AlertRule{OrgID: orgID, Name: "weekly", Threshold: model.FromUnits(100), WindowDays: 7}
	require.NoError(t, db.CreateAlertRule(context.Background(), rule))
	return rule
}

func TestSQLite_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pulse.db")
	db, err := storage.NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, db.CreateOrganization(context.Background(), &model.Organization{Name: "Acme"}))
	require.NoError(t, db.Close())

	db, err = storage.NewSQLite(path)
	require.NoError(t, err)
	defer db.Close()
	ids, err := db.ListOrganizationIDs(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestSQLite_Organizations(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	budget := model.FromUnits(500)
	acme := &model.Organization{Name: "Acme", MonthlyBudget: &budget, TelegramBotToken: "tok", TelegramChatID: "42"}
	require.NoError(t, db.CreateOrganization(ctx, acme))
	assert.NotEmpty(t, acme.ID)
	newOrg(t, db, "Beta")

	got, err := db.GetOrganization(ctx, acme.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)
	require.NotNil(t, got.MonthlyBudget)
	assert.Equal(t, budget, *got.MonthlyBudget)
	assert.Equal(t, "tok", got.TelegramBotToken)
	assert.Equal(t, "42", got.TelegramChatID)

	orgs, err := db.ListOrganizations(ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	assert.Equal(t, "Acme", orgs[0].Name)
	assert.Nil(t, orgs[1].MonthlyBudget)

	ids, err := db.ListOrganizationIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	rules, err := db.ListAlertRules(ctx, acme.ID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, model.BudgetRuleName, rules[0].Name)
	assert.Equal(t, model.WindowMonthToDate, rules[0].Window)
	assert.Equal(t, budget, rules[0].Threshold)
	assert.False(t, rules[0].Triggered)

	rules, err = db.ListAlertRules(ctx, orgs[1].ID)
	require.NoError(t, err)
	assert.Empty(t, rules)

	zero := model.Micros(0)
	assert.Error(t, db.CreateOrganization(ctx, &model.Organization{Name: "Broke", MonthlyBudget: &zero}))
	ids, err = db.ListOrganizationIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	_, err = db.GetOrganization(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSQLite_Members(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	org := newOrg(t, db, "Acme")

	members := []*model.Member{
		{OrgID: org.ID, UserID: "u1", Email: "admin@acme.test", Role: model.RoleAdmin, Active: true},
		{OrgID: org.ID, UserID: "u2", Email: "fin@acme.test", Role: model.RoleFinance, Active: true},
		{OrgID: org.ID, UserID: "u3", Email: "dev@acme.test", Role: model.RoleMember, Active: true},
		{OrgID: org.ID, UserID: "u4", Email: "old@acme.test", Role: model.RoleManager, Active: false},
	}
	for _, m := range members {
		require.NoError(t, db.UpsertMember(ctx, m))
	}

	recipients, err := db.ListAlertRecipients(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, recipients, 2)
	assert.Equal(t, "admin@acme.test", recipients[0].Email)
	assert.Equal(t, "fin@acme.test", recipients[1].Email)

	// Promote u3 and check the upsert path.
	members[2].Role = model.RoleManager
	require.NoError(t, db.UpsertMember(ctx, members[2]))
	m, err := db.GetMember(ctx, org.ID, "u3")
	require.NoError(t, err)
	assert.Equal(t, model.RoleManager, m.Role)
	assert.True(t, m.Active)

	_, err = db.GetMember(ctx, org.ID, "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = db.UpsertMember(ctx, &model.Member{OrgID: org.ID, UserID: "u9", Role: "owner"})
	assert.Error(t, err)
}

func TestSQLite_WebhookEndpoints(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	org := newOrg(t, db, "Acme")

	require.NoError(t, db.AddWebhookEndpoint(ctx, &model.WebhookEndpoint{
		OrgID: org.ID, URL: "https://a.test/hook", Secret: "s", Events: []string{model.EventAlertTriggered}, Active: true,
	}))
	require.NoError(t, db.AddWebhookEndpoint(ctx, &model.WebhookEndpoint{
		OrgID: org.ID, URL: "https://b.test/hook", Events: []string{"cost.imported"}, Active: true,
	}))
	require.NoError(t, db.AddWebhookEndpoint(ctx, &model.WebhookEndpoint{
		OrgID: org.ID, URL: "https://c.test/hook", Events: []string{model.EventAlertTriggered}, Active: false,
	}))

	subscribed, err := db.ListWebhookEndpoints(ctx, org.ID, model.EventAlertTriggered)
	require.NoError(t, err)
	require.Len(t, subscribed, 1)
	assert.Equal(t, "https://a.test/hook", subscribed[0].URL)
	assert.Equal(t, "s", subscribed[0].Secret)

	all, err := db.ListWebhookEndpoints(ctx, org.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLite_SumCostsByCurrency(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	acme := newOrg(t, db, "Acme")
	other := newOrg(t, db, "Other")

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	records := []*model.CostRecord{
		{OrgID: acme.ID, Provider: "aws", Amount: model.Micros(100_000_001), Currency: "EUR", OccurredAt: now.Add(-time.Hour)},
		{OrgID: acme.ID, Provider: "gcp", Amount: model.Micros(19_999_999), Currency: "eur", OccurredAt: now},
		{OrgID: acme.ID, Provider: "openai", Amount: model.FromUnits(10), Currency: "USD", OccurredAt: now.Add(-48 * time.Hour)},
		{OrgID: acme.ID, Provider: "aws", Amount: model.FromUnits(999), Currency: "EUR", OccurredAt: now.Add(-30 * 24 * time.Hour)},
		{OrgID: other.ID, Provider: "aws", Amount: model.FromUnits(50), Currency: "EUR", OccurredAt: now},
	}
	for _, r := range records {
		require.NoError(t, db.RecordCost(ctx, r))
	}

	totals, err := db.SumCostsByCurrency(ctx, acme.ID, now.Add(-7*24*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, map[string]model.Micros{
		"EUR": model.FromUnits(120),
		"USD": model.FromUnits(10),
	}, totals)

	empty, err := db.SumCostsByCurrency(ctx, "unknown", now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLite_AlertRules(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	org := newOrg(t, db, "Acme")

	rule := newRule(t, db, org.ID)
	assert.Equal(t, model.WindowTrailing, rule.Window)

	require.NoError(t, db.CreateAlertRule(ctx, &model.AlertRule{
		OrgID: org.ID, Name: "mtd", Threshold: model.FromUnits(1000), WindowDays: 30, Window: model.WindowMonthToDate,
	}))

	rules, err := db.ListAlertRules(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, model.FromUnits(100), rules[0].Threshold)
	assert.Equal(t, 7, rules[0].WindowDays)
	assert.False(t, rules[0].Triggered)
	assert.Nil(t, rules[0].TriggeredAt)
	assert.Equal(t, model.WindowMonthToDate, rules[1].Window)

	require.NoError(t, db.DeleteAlertRule(ctx, org.ID, rule.ID))
	assert.ErrorIs(t, db.DeleteAlertRule(ctx, org.ID, rule.ID), storage.ErrNotFound)

	assert.Error(t, db.CreateAlertRule(ctx, &model.AlertRule{OrgID: org.ID, Threshold: 0, WindowDays: 7}))
	assert.Error(t, db.CreateAlertRule(ctx, &model.AlertRule{OrgID: org.ID, Threshold: 1, WindowDays: 0}))
}

func TestSQLite_TriggerRule_Latch(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	org := newOrg(t, db, "Acme")
	rule := newRule(t, db, org.ID)

	at := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	ok, err := db.TriggerRule(ctx, rule.ID, &model.AlertEvent{OrgID: org.ID, TriggeredAt: at, Amount: model.FromUnits(120), Message: "over"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.TriggerRule(ctx, rule.ID, &model.AlertEvent{OrgID: org.ID, TriggeredAt: at.Add(time.Hour), Amount: model.FromUnits(130)})
	require.NoError(t, err)
	assert.False(t, ok)

	rules, err := db.ListAlertRules(ctx, org.ID)
	require.NoError(t, err)
	assert.True(t, rules[0].Triggered)
	require.NotNil(t, rules[0].TriggeredAt)
	assert.True(t, at.Equal(*rules[0].TriggeredAt))

	events, err := db.ListAlertEvents(ctx, org.ID, rule.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.FromUnits(120), events[0].Amount)
	assert.Equal(t, "over", events[0].Message)
}

func TestSQLite_ClearRule_Rearms(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	org := newOrg(t, db, "Acme")
	rule := newRule(t, db, org.ID)
	at := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	cleared, err := db.ClearRule(ctx, rule.ID, at)
	require.NoError(t, err)
	assert.False(t, cleared)

	_, err = db.TriggerRule(ctx, rule.ID, &model.AlertEvent{OrgID: org.ID, TriggeredAt: at})
	require.NoError(t, err)

	cleared, err = db.ClearRule(ctx, rule.ID, at.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, cleared)

	rules, err := db.ListAlertRules(ctx, org.ID)
	require.NoError(t, err)
	assert.False(t, rules[0].Triggered)
	assert.Nil(t, rules[0].TriggeredAt)

	ok, err := db.TriggerRule(ctx, rule.ID, &model.AlertEvent{OrgID: org.ID, TriggeredAt: at.Add(2 * time.Hour)})
	require.NoError(t, err)
	assert.True(t, ok)

	events, err := db.ListAlertEvents(ctx, org.ID, "")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestSQLite_TriggerRule_Concurrent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	org := newOrg(t, db, "Acme")
	rule := newRule(t, db, org.ID)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := db.TriggerRule(ctx, rule.ID, &model.AlertEvent{OrgID: org.ID, Amount: model.FromUnits(120)})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	events, err := db.ListAlertEvents(ctx, org.ID, rule.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSQLite_Deliveries(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	d := &model.NotificationDelivery{EventID: "ev1", OrgID: "org1", Channel: model.ChannelTelegram, Target: "42"}
	require.NoError(t, db.CreateDelivery(ctx, d))
	assert.Equal(t, model.DeliveryPending, d.Status)

	require.NoError(t, db.FinishDelivery(ctx, d.ID, model.DeliveryFailed, "unauthorized"))
	// Terminal rows are never moved again.
	assert.ErrorIs(t, db.FinishDelivery(ctx, d.ID, model.DeliverySent, ""), storage.ErrNotFound)
	assert.Error(t, db.FinishDelivery(ctx, d.ID, model.DeliveryPending, ""))

	list, err := db.ListDeliveries(ctx, "ev1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.DeliveryFailed, list[0].Status)
	assert.Equal(t, "unauthorized", list[0].Error)
	assert.Equal(t, model.ChannelTelegram, list[0].Channel)
}

func TestSQLite_InAppNotifications(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, db.CreateInAppNotification(ctx, &model.InAppNotification{
			OrgID: "org1", Title: "Alert", Message: "msg", CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, db.CreateInAppNotification(ctx, &model.InAppNotification{OrgID: "org2", Title: "x", Message: "y"}))

	list, err := db.ListInAppNotifications(ctx, "org1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].CreatedAt.After(list[1].CreatedAt))
	assert.Nil(t, list[0].ReadAt)
}

func TestSQLite_RunLogs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.LatestRunLog(ctx, "alerts")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	start := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	first := &model.CronRunLog{JobName: "alerts", StartedAt: start}
	require.NoError(t, db.StartRunLog(ctx, first))
	assert.Equal(t, model.RunRunning, first.Status)

	running, err := db.LatestRunLog(ctx, "alerts")
	require.NoError(t, err)
	assert.Equal(t, model.RunRunning, running.Status)
	assert.Nil(t, running.FinishedAt)
	assert.Empty(t, running.ErrorSample)

	finished := start.Add(3 * time.Second)
	first.FinishedAt = &finished
	first.DurationMS = 3000
	first.Status = model.RunPartial
	first.ProcessedOrgs = 3
	first.Triggered = 1
	first.SentEmail = 2
	first.ErrorsCount = 1
	first.ErrorSample = []string{"org b: boom"}
	require.NoError(t, db.FinishRunLog(ctx, first))

	second := &model.CronRunLog{JobName: "other", StartedAt: start.Add(time.Minute)}
	require.NoError(t, db.StartRunLog(ctx, second))

	got, err := db.LatestRunLog(ctx, "alerts")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, model.RunPartial, got.Status)
	assert.Equal(t, 3, got.ProcessedOrgs)
	assert.Equal(t, 2, got.SentEmail)
	assert.Equal(t, int64(3000), got.DurationMS)
	assert.Equal(t, []string{"org b: boom"}, got.ErrorSample)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, finished.Equal(*got.FinishedAt))

	assert.ErrorIs(t, db.FinishRunLog(ctx, &model.CronRunLog{ID: "nope", Status: model.RunSuccess}), storage.ErrNotFound)
}
