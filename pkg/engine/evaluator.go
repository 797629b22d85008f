package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ogulcanaydogan/pulse/internal/clock"
	"github.com/ogulcanaydogan/pulse/internal/metrics"
	"github.com/ogulcanaydogan/pulse/pkg/fx"
	"github.com/ogulcanaydogan/pulse/pkg/model"
	"github.com/ogulcanaydogan/pulse/pkg/storage"
)

// TriggeredRule pairs a rule that just latched with the event it produced.
type TriggeredRule struct {
	Rule  model.AlertRule
	Event model.AlertEvent
}

// Evaluation is the outcome of evaluating one organization's rules.
type Evaluation struct {
	TriggeredNow []TriggeredRule
	Cleared      []string
}

// TriggeredRuleIDs returns the ids of rules that triggered in this evaluation.
func (e *Evaluation) TriggeredRuleIDs() []string {
	ids := make([]string, 0, len(e.TriggeredNow))
	for _, t := range e.TriggeredNow {
		ids = append(ids, t.Rule.ID)
	}
	return ids
}

// Evaluator applies the latch transition table to an organization's rules.
//
//	triggered  spend>=threshold  action
//	false      true              latch, append event, report triggered
//	false      false             none
//	true       true              none
//	true       false             re-arm, report cleared
type Evaluator struct {
	store      storage.Storage
	aggregator *Aggregator
	clock      clock.Clock
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewEvaluator creates an evaluator.
func NewEvaluator(store storage.Storage, aggregator *Aggregator, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) *Evaluator {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Evaluator{
		store:      store,
		aggregator: aggregator,
		clock:      clk,
		metrics:    m,
		logger:     logger,
	}
}

// Evaluate checks every rule of org. A failing rule does not stop the others:
// the returned Evaluation holds every transition that was committed, and the
// error joins the per-rule failures.
func (e *Evaluator) Evaluate(ctx context.Context, org *model.Organization) (*Evaluation, error) {
	rules, err := e.store.ListAlertRules(ctx, org.ID)
	if err != nil {
		return &Evaluation{}, fmt.Errorf("list alert rules: %w", err)
	}

	result := &Evaluation{}
	var errs []error
	for _, rule := range rules {
		if err := e.evaluateRule(ctx, org, rule, result); err != nil {
			e.logger.Error("evaluate alert rule", "org_id", org.ID, "rule_id", rule.ID, "error", err)
			errs = append(errs, fmt.Errorf("rule %s: %w", rule.ID, err))
		}
	}

	e.metrics.AddTriggered(len(result.TriggeredNow))
	e.metrics.AddCleared(len(result.Cleared))
	return result, errors.Join(errs...)
}

func (e *Evaluator) evaluateRule(ctx context.Context, org *model.Organization, rule model.AlertRule, result *Evaluation) error {
	spend, err := e.aggregator.Spend(ctx, org.ID, rule.Window, rule.WindowDays)
	if err != nil {
		return err
	}
	breached := spend >= rule.Threshold
	now := e.clock.Now()

	switch {
	case breached && !rule.Triggered:
		event := model.AlertEvent{
			OrgID:       org.ID,
			TriggeredAt: now,
			Amount:      spend,
			Message:     alertMessage(org, rule, spend),
		}
		ok, err := e.store.TriggerRule(ctx, rule.ID, &event)
		if err != nil {
			return err
		}
		if !ok {
			// Another evaluator latched it first and owns the notification.
			return nil
		}
		rule.Triggered = true
		rule.TriggeredAt = &event.TriggeredAt
		result.TriggeredNow = append(result.TriggeredNow, TriggeredRule{Rule: rule, Event: event})
		e.logger.Info("alert rule triggered",
			"org_id", org.ID,
			"rule_id", rule.ID,
			"spend", spend.String(),
			"threshold", rule.Threshold.String(),
		)

	case !breached && rule.Triggered:
		ok, err := e.store.ClearRule(ctx, rule.ID, now)
		if err != nil {
			return err
		}
		if ok {
			result.Cleared = append(result.Cleared, rule.ID)
			e.logger.Info("alert rule cleared", "org_id", org.ID, "rule_id", rule.ID, "spend", spend.String())
		}
	}
	return nil
}

func alertMessage(org *model.Organization, rule model.AlertRule, spend model.Micros) string {
	return fmt.Sprintf("%s spent %s %s (%s), reaching the %s %s threshold.",
		org.Name, spend, fx.Base, WindowLabel(rule.Window, rule.WindowDays), rule.Threshold, fx.Base)
}
