package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ogulcanaydogan/pulse/pkg/model"
)

func TestWindowBounds_Trailing(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	start, end := model.WindowBounds(now, model.WindowTrailing, 7)
	assert.Equal(t, now, end)
	assert.Equal(t, 7*24*time.Hour, end.Sub(start))
}

func TestWindowBounds_TrailingMinimumOneDay(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	start, end := model.WindowBounds(now, model.WindowTrailing, 0)
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}

func TestWindowBounds_MonthToDate(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	start, end := model.WindowBounds(now, model.WindowMonthToDate, 30)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, now, end)
}

func TestWindowBounds_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	now := time.Date(2026, 4, 1, 1, 0, 0, 0, loc)
	start, _ := model.WindowBounds(now, model.WindowMonthToDate, 0)
	assert.Equal(t, time.March, start.Month())
}

func TestRole(t *testing.T) {
	assert.True(t, model.RoleAdmin.ReceivesAlerts())
	assert.True(t, model.RoleFinance.ReceivesAlerts())
	assert.True(t, model.RoleManager.ReceivesAlerts())
	assert.False(t, model.RoleMember.ReceivesAlerts())
	assert.True(t, model.RoleMember.Valid())
	assert.False(t, model.Role("owner").Valid())
}

func TestWebhookEndpoint_Subscribed(t *testing.T) {
	w := model.WebhookEndpoint{Events: []string{"cost.imported", model.EventAlertTriggered}}
	assert.True(t, w.Subscribed(model.EventAlertTriggered))
	assert.False(t, w.Subscribed("budget.updated"))

	all := model.WebhookEndpoint{Events: []string{"*"}}
	assert.True(t, all.Subscribed(model.EventAlertTriggered))
}

func TestOrganization_TelegramConfigured(t *testing.T) {
	assert.False(t, (&model.Organization{}).TelegramConfigured())
	assert.True(t, (&model.Organization{TelegramBotToken: "x"}).TelegramConfigured())
	assert.True(t, (&model.Organization{TelegramChatID: "1"}).TelegramConfigured())
}
