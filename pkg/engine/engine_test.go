package engine_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/pulse/internal/clock"
	"github.com/ogulcanaydogan/pulse/pkg/alerts"
	"github.com/ogulcanaydogan/pulse/pkg/engine"
	"github.com/ogulcanaydogan/pulse/pkg/fx"
	"github.com/ogulcanaydogan/pulse/pkg/model"
	"github.com/ogulcanaydogan/pulse/pkg/storage"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type harness struct {
	store        storage.Storage
	clock        *clock.Fake
	aggregator   *engine.Aggregator
	evaluator    *engine.Evaluator
	dispatcher   *engine.Dispatcher
	orchestrator *engine.Orchestrator
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newSQLite(t *testing.T) *storage.SQLite {
	t.Helper()
	db, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// newHarness wires the engine over store. A nil store uses a fresh SQLite database.
func newHarness(t *testing.T, store storage.Storage, channels engine.Channels, timeout time.Duration) *harness {
	t.Helper()
	if store == nil {
		store = newSQLite(t)
	}
	clk := clock.NewFake(testNow)
	logger := testLogger()

	rates := fx.NewConverter()
	require.NoError(t, rates.SetRate("USD", "0.5"))

	agg := engine.NewAggregator(store, rates, clk)
	eval := engine.NewEvaluator(store, agg, clk, nil, logger)
	disp := engine.NewDispatcher(store, channels, timeout, nil, logger)
	orch := engine.NewOrchestrator(store, eval, disp, engine.OrchestratorConfig{}, clk, nil, logger)
	return &harness{
		store:        store,
		clock:        clk,
		aggregator:   agg,
		evaluator:    eval,
		dispatcher:   disp,
		orchestrator: orch,
	}
}

func (h *harness) org(t *testing.T, name string) *model.Organization {
	t.Helper()
	org := &model.Organization{Name: name}
	require.NoError(t, h.store.CreateOrganization(context.Background(), org))
	return org
}

func (h *harness) rule(t *testing.T, orgID string, thresholdUnits int64, days int) *model.AlertRule {
	t.Helper()
	rule := &model.AlertRule{OrgID: orgID, Name: "spend", Threshold: model.FromUnits(thresholdUnits), WindowDays: days}
	require.NoError(t, h.store.CreateAlertRule(context.Background(), rule))
	return rule
}

func (h *harness) cost(t *testing.T, orgID string, amount model.Micros, currency string, ago time.Duration) {
	t.Helper()
	require.NoError(t, h.store.RecordCost(context.Background(), &model.CostRecord{
		OrgID:      orgID,
		Provider:   "aws",
		Service:    "ec2",
		Amount:     amount,
		Currency:   currency,
		OccurredAt: h.clock.Now().Add(-ago),
	}))
}

func (h *harness) member(t *testing.T, orgID, email string, role model.Role) {
	t.Helper()
	require.NoError(t, h.store.UpsertMember(context.Background(), &model.Member{
		OrgID: orgID, UserID: email, Email: email, Role: role, Active: true,
	}))
}

// fakeEmail records every recipient it is asked to send to.
type fakeEmail struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeEmail) SendEmail(_ context.Context, to string, _ alerts.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

func (f *fakeEmail) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}
