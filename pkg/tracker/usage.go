// Package tracker turns individual AI API calls into priced cost records.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/pulse/internal/clock"
	"github.com/ogulcanaydogan/pulse/pkg/model"
	"github.com/ogulcanaydogan/pulse/pkg/pricing"
	"github.com/ogulcanaydogan/pulse/pkg/storage"
	"github.com/ogulcanaydogan/pulse/pkg/tokenizer"
)

// Call describes one API call to price. An empty Provider is resolved from
// the model. When InputTokens is zero and Prompt is set, input tokens are
// counted from the prompt.
type Call struct {
	OrgID      string
	Provider   string
	Model      string
	Usage      pricing.Usage
	Prompt     string
	OccurredAt time.Time
}

// UsageTracker records priced calls as cost records.
type UsageTracker struct {
	registry *pricing.Registry
	storage  storage.Storage
	clock    clock.Clock
	logger   *slog.Logger
}

// NewUsageTracker creates a usage tracker with the given dependencies.
func NewUsageTracker(registry *pricing.Registry, store storage.Storage, clk clock.Clock, logger *slog.Logger) *UsageTracker {
	if clk == nil {
		clk = clock.Real{}
	}
	return &UsageTracker{
		registry: registry,
		storage:  store,
		clock:    clk,
		logger:   logger,
	}
}

// Track prices call and stores it as a cost record in the provider's currency.
func (t *UsageTracker) Track(ctx context.Context, call Call) (*model.CostRecord, error) {
	if call.OrgID == "" || call.Model == "" {
		return nil, errors.New("organization and model are required")
	}
	if _, err := t.storage.GetOrganization(ctx, call.OrgID); err != nil {
		return nil, fmt.Errorf("load organization %s: %w", call.OrgID, err)
	}

	var (
		p   *pricing.Provider
		err error
	)
	if call.Provider != "" {
		p, err = t.registry.Get(call.Provider)
	} else {
		p, err = t.registry.FindProviderForModel(call.Model)
	}
	if err != nil {
		return nil, fmt.Errorf("calculate cost: %w", err)
	}

	usage := call.Usage
	if usage.InputTokens == 0 && call.Prompt != "" {
		n, err := tokenizer.Count(call.Prompt, p.Name(), call.Model)
		if err != nil {
			return nil, fmt.Errorf("count prompt tokens: %w", err)
		}
		usage.InputTokens = n
	}

	amount, err := p.Cost(call.Model, usage)
	if err != nil {
		return nil, fmt.Errorf("calculate cost: %w", err)
	}

	occurred := call.OccurredAt
	if occurred.IsZero() {
		occurred = t.clock.Now()
	}
	rec := &model.CostRecord{
		OrgID:      call.OrgID,
		Provider:   p.Name(),
		Service:    call.Model,
		Amount:     amount,
		Currency:   p.Currency(),
		OccurredAt: occurred,
	}
	if err := t.storage.RecordCost(ctx, rec); err != nil {
		return nil, fmt.Errorf("store cost: %w", err)
	}

	t.logger.Info("usage recorded",
		"org_id", call.OrgID,
		"provider", rec.Provider,
		"model", call.Model,
		"input_tokens", usage.InputTokens,
		"cached_input_tokens", usage.CachedInputTokens,
		"output_tokens", usage.OutputTokens,
		"amount", amount.Decimal(),
		"currency", rec.Currency,
	)
	return rec, nil
}
