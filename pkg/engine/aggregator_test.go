package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/pulse/pkg/engine"
	"github.com/ogulcanaydogan/pulse/pkg/model"
)

func TestAggregator_NoRecords(t *testing.T) {
	h := newHarness(t, nil, engine.Channels{}, 0)
	org := h.org(t, "Acme")

	spend, err := h.aggregator.AggregateSpend(context.Background(), org.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, model.Micros(0), spend)
}

func TestAggregator_TrailingWindow(t *testing.T) {
	h := newHarness(t, nil, engine.Channels{}, 0)
	org := h.org(t, "Acme")
	h.cost(t, org.ID, model.FromUnits(70), "EUR", time.Hour)
	h.cost(t, org.ID, model.FromUnits(50), "EUR", 6*24*time.Hour)
	h.cost(t, org.ID, model.FromUnits(500), "EUR", 8*24*time.Hour)

	spend, err := h.aggregator.AggregateSpend(context.Background(), org.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, model.FromUnits(120), spend)

	spend, err = h.aggregator.AggregateSpend(context.Background(), org.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, model.FromUnits(620), spend)
}

func TestAggregator_MonthToDate(t *testing.T) {
	h := newHarness(t, nil, engine.Channels{}, 0)
	org := h.org(t, "Acme")
	h.cost(t, org.ID, model.FromUnits(10), "EUR", 24*time.Hour)
	// 15 days ago falls in February.
	h.cost(t, org.ID, model.FromUnits(99), "EUR", 15*24*time.Hour)

	spend, err := h.aggregator.Spend(context.Background(), org.ID, model.WindowMonthToDate, 0)
	require.NoError(t, err)
	assert.Equal(t, model.FromUnits(10), spend)
}

func TestAggregator_ConvertsCurrencies(t *testing.T) {
	h := newHarness(t, nil, engine.Channels{}, 0)
	org := h.org(t, "Acme")
	h.cost(t, org.ID, model.FromUnits(100), "EUR", time.Hour)
	h.cost(t, org.ID, model.FromUnits(40), "USD", time.Hour)

	spend, err := h.aggregator.AggregateSpend(context.Background(), org.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, model.FromUnits(120), spend)
}

func TestAggregator_UnknownCurrency(t *testing.T) {
	h := newHarness(t, nil, engine.Channels{}, 0)
	org := h.org(t, "Acme")
	h.cost(t, org.ID, model.FromUnits(100), "JPY", time.Hour)

	_, err := h.aggregator.AggregateSpend(context.Background(), org.ID, 7)
	assert.Error(t, err)
}

func TestAggregator_UnknownOrg(t *testing.T) {
	h := newHarness(t, nil, engine.Channels{}, 0)
	_, err := h.aggregator.AggregateSpend(context.Background(), "missing", 7)
	assert.ErrorIs(t, err, engine.ErrOrgNotFound)

	_, err = h.aggregator.AggregateSpend(context.Background(), "missing", 0)
	assert.Error(t, err)
}

func TestWindowLabel(t *testing.T) {
	assert.Equal(t, "last 7 days", engine.WindowLabel(model.WindowTrailing, 7))
	assert.Equal(t, "last day", engine.WindowLabel(model.WindowTrailing, 1))
	assert.Equal(t, "month to date", engine.WindowLabel(model.WindowMonthToDate, 30))
}
