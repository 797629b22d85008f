package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/ogulcanaydogan/pulse/internal/clock"
	"github.com/ogulcanaydogan/pulse/internal/metrics"
	"github.com/ogulcanaydogan/pulse/pkg/model"
	"github.com/ogulcanaydogan/pulse/pkg/storage"
)

// Defaults for OrchestratorConfig.
const (
	DefaultJobName         = "alerts"
	DefaultMaxConcurrency  = 8
	DefaultErrorSampleSize = 10
)

// RunTarget selects the organizations a run covers. The zero value means all.
type RunTarget struct {
	OrgID string
}

// AllOrgs targets every organization.
func AllOrgs() RunTarget { return RunTarget{} }

// SingleOrg targets one organization.
func SingleOrg(id string) RunTarget { return RunTarget{OrgID: id} }

// All reports whether the target is every organization.
func (t RunTarget) All() bool { return t.OrgID == "" }

// OrgRunResult is the outcome of processing one organization.
type OrgRunResult struct {
	OrgID        string   `json:"orgId"`
	OrgName      string   `json:"orgName,omitempty"`
	Triggered    int      `json:"triggered"`
	Cleared      int      `json:"cleared"`
	SentEmail    int      `json:"sentEmail"`
	SentTelegram int      `json:"sentTelegram"`
	SentWebhook  int      `json:"sentWebhook"`
	SentInApp    int      `json:"sentInApp"`
	Failed       bool     `json:"failed"`
	Errors       []string `json:"errors"`

	index int
}

// RunSummary is returned to trigger callers and persisted as a CronRunLog.
type RunSummary struct {
	RunID         string          `json:"runId"`
	Job           string          `json:"job"`
	Status        model.RunStatus `json:"status"`
	StartedAt     time.Time       `json:"startedAt"`
	DurationMS    int64           `json:"durationMs"`
	ProcessedOrgs int             `json:"processedOrgs"`
	FailedOrgs    int             `json:"failedOrgs"`
	Triggered     int             `json:"triggered"`
	Cleared       int             `json:"cleared"`
	SentEmail     int             `json:"sentEmail"`
	SentTelegram  int             `json:"sentTelegram"`
	SentWebhook   int             `json:"sentWebhook"`
	SentInApp     int             `json:"sentInApp"`
	ErrorsCount   int             `json:"errorsCount"`
	Errors        []string        `json:"errors"`
	Orgs          []OrgRunResult  `json:"-"`
}

// OrchestratorConfig tunes a run.
type OrchestratorConfig struct {
	JobName         string
	MaxConcurrency  int
	ErrorSampleSize int
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.JobName == "" {
		c.JobName = DefaultJobName
	}
	if c.MaxConcurrency < 1 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.ErrorSampleSize < 1 {
		c.ErrorSampleSize = DefaultErrorSampleSize
	}
	return c
}

// Orchestrator runs aggregation, evaluation and dispatch for each organization
// in isolation and keeps an audit log of every run.
type Orchestrator struct {
	store      storage.Storage
	evaluator  *Evaluator
	dispatcher *Dispatcher
	cfg        OrchestratorConfig
	clock      clock.Clock
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(store storage.Storage, evaluator *Evaluator, dispatcher *Dispatcher, cfg OrchestratorConfig, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Orchestrator{
		store:      store,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		cfg:        cfg.withDefaults(),
		clock:      clk,
		metrics:    m,
		logger:     logger,
	}
}

// JobName is the run log job this orchestrator writes.
func (o *Orchestrator) JobName() string { return o.cfg.JobName }

// RunAll processes every organization.
func (o *Orchestrator) RunAll(ctx context.Context) (*RunSummary, error) {
	return o.Run(ctx, AllOrgs())
}

// RunOrg processes a single organization and returns its result.
func (o *Orchestrator) RunOrg(ctx context.Context, orgID string) (*OrgRunResult, error) {
	summary, err := o.Run(ctx, SingleOrg(orgID))
	if err != nil {
		return nil, err
	}
	if len(summary.Orgs) != 1 {
		return nil, fmt.Errorf("run org %s: no result", orgID)
	}
	return &summary.Orgs[0], nil
}

// Run processes the target organizations. Per-organization failures are
// reported in the summary. An error is only returned when the run itself
// cannot start or the target organization does not exist.
func (o *Orchestrator) Run(ctx context.Context, target RunTarget) (*RunSummary, error) {
	var ids []string
	if target.All() {
		var err error
		ids, err = o.store.ListOrganizationIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list organizations: %w", err)
		}
	} else {
		if _, err := o.store.GetOrganization(ctx, target.OrgID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrOrgNotFound, target.OrgID)
			}
			return nil, err
		}
		ids = []string{target.OrgID}
	}

	runLog := &model.CronRunLog{JobName: o.cfg.JobName, StartedAt: o.clock.Now()}
	if err := o.store.StartRunLog(ctx, runLog); err != nil {
		return nil, fmt.Errorf("start run log: %w", err)
	}
	logger := o.logger.With("run_id", runLog.ID, "job", o.cfg.JobName)
	logger.Info("alert run started", "orgs", len(ids))

	results := o.processAll(ctx, ids, logger)
	summary := o.summarize(runLog, results)

	finished := o.clock.Now()
	summary.DurationMS = finished.Sub(runLog.StartedAt).Milliseconds()
	o.finishLog(ctx, runLog, summary, finished, logger)

	o.metrics.ObserveRun(string(summary.Status), finished.Sub(runLog.StartedAt))
	logger.Info("alert run finished",
		"status", summary.Status,
		"processed_orgs", summary.ProcessedOrgs,
		"triggered", summary.Triggered,
		"errors", summary.ErrorsCount,
		"duration_ms", summary.DurationMS,
	)
	return summary, nil
}

// processAll evaluates every organization concurrently and waits for all of
// them, whatever their outcome.
func (o *Orchestrator) processAll(ctx context.Context, ids []string, logger *slog.Logger) []OrgRunResult {
	p := pool.NewWithResults[OrgRunResult]().WithMaxGoroutines(o.cfg.MaxConcurrency)
	for i, id := range ids {
		p.Go(func() OrgRunResult {
			var res OrgRunResult
			var pc panics.Catcher
			pc.Try(func() { res = o.processOrg(ctx, id, logger) })
			if r := pc.Recovered(); r != nil {
				logger.Error("alert evaluation panicked", "org_id", id, "panic", r.String())
				res = OrgRunResult{OrgID: id, Failed: true, Errors: []string{fmt.Sprintf("panic: %v", r.Value)}}
			}
			res.index = i
			return res
		})
	}
	results := p.Wait()
	sort.Slice(results, func(a, b int) bool { return results[a].index < results[b].index })
	return results
}

func (o *Orchestrator) processOrg(ctx context.Context, orgID string, logger *slog.Logger) OrgRunResult {
	res := OrgRunResult{OrgID: orgID, Errors: []string{}}

	org, err := o.store.GetOrganization(ctx, orgID)
	if err != nil {
		res.Failed = true
		res.Errors = append(res.Errors, err.Error())
		logger.Error("load organization", "org_id", orgID, "error", err)
		return res
	}
	res.OrgName = org.Name

	eval, evalErr := o.evaluator.Evaluate(ctx, org)
	if evalErr != nil {
		res.Failed = true
		res.Errors = append(res.Errors, evalErr.Error())
	}
	res.Triggered = len(eval.TriggeredNow)
	res.Cleared = len(eval.Cleared)

	// Rules that latched before a sibling rule failed still get their notifications.
	if len(eval.TriggeredNow) > 0 {
		d := o.dispatcher.Dispatch(ctx, org, eval.TriggeredNow)
		res.SentEmail = d.SentEmail
		res.SentTelegram = d.SentTelegram
		res.SentWebhook = d.SentWebhook
		res.SentInApp = d.SentInApp
		res.Errors = append(res.Errors, d.Errors...)
	}
	return res
}

func (o *Orchestrator) summarize(runLog *model.CronRunLog, results []OrgRunResult) *RunSummary {
	s := &RunSummary{
		RunID:     runLog.ID,
		Job:       runLog.JobName,
		StartedAt: runLog.StartedAt,
		Errors:    []string{},
		Orgs:      results,
	}
	for _, r := range results {
		s.ProcessedOrgs++
		s.Triggered += r.Triggered
		s.Cleared += r.Cleared
		s.SentEmail += r.SentEmail
		s.SentTelegram += r.SentTelegram
		s.SentWebhook += r.SentWebhook
		s.SentInApp += r.SentInApp
		if r.Failed {
			s.FailedOrgs++
			o.metrics.IncOrgError()
		}
		label := r.OrgName
		if label == "" {
			label = r.OrgID
		}
		for _, e := range r.Errors {
			s.ErrorsCount++
			if len(s.Errors) < o.cfg.ErrorSampleSize {
				s.Errors = append(s.Errors, fmt.Sprintf("org %s: %s", label, e))
			}
		}
	}

	switch {
	case s.ErrorsCount == 0:
		s.Status = model.RunSuccess
	case s.ProcessedOrgs > 0 && s.FailedOrgs == s.ProcessedOrgs:
		s.Status = model.RunFailed
	default:
		s.Status = model.RunPartial
	}
	return s
}

func (o *Orchestrator) finishLog(ctx context.Context, runLog *model.CronRunLog, s *RunSummary, finished time.Time, logger *slog.Logger) {
	runLog.FinishedAt = &finished
	runLog.DurationMS = s.DurationMS
	runLog.Status = s.Status
	runLog.ProcessedOrgs = s.ProcessedOrgs
	runLog.Triggered = s.Triggered
	runLog.Cleared = s.Cleared
	runLog.SentEmail = s.SentEmail
	runLog.SentTelegram = s.SentTelegram
	runLog.SentWebhook = s.SentWebhook
	runLog.SentInApp = s.SentInApp
	runLog.ErrorsCount = s.ErrorsCount
	runLog.ErrorSample = s.Errors

	// The summary is still returned when the audit write fails.
	if err := o.store.FinishRunLog(context.WithoutCancel(ctx), runLog); err != nil {
		logger.Error("finish run log", "error", err)
	}
}
