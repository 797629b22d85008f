package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ogulcanaydogan/pulse/internal/clock"
	"github.com/ogulcanaydogan/pulse/pkg/fx"
	"github.com/ogulcanaydogan/pulse/pkg/model"
	"github.com/ogulcanaydogan/pulse/pkg/storage"
)

// ErrOrgNotFound is returned when a run or query targets an unknown organization.
var ErrOrgNotFound = errors.New("organization not found")

// Aggregator sums an organization's spend over a window, in EUR.
type Aggregator struct {
	store storage.Storage
	rates *fx.Converter
	clock clock.Clock
}

// NewAggregator creates an aggregator. A nil converter only accepts EUR records.
func NewAggregator(store storage.Storage, rates *fx.Converter, clk clock.Clock) *Aggregator {
	if rates == nil {
		rates = fx.NewConverter()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Aggregator{store: store, rates: rates, clock: clk}
}

// AggregateSpend returns the trailing windowDays spend of an existing organization.
func (a *Aggregator) AggregateSpend(ctx context.Context, orgID string, windowDays int) (model.Micros, error) {
	if windowDays < 1 {
		return 0, fmt.Errorf("window must be at least one day, got %d", windowDays)
	}
	if _, err := a.store.GetOrganization(ctx, orgID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrOrgNotFound, orgID)
		}
		return 0, err
	}
	return a.Spend(ctx, orgID, model.WindowTrailing, windowDays)
}

// Spend sums the organization's cost records inside the window ending now.
// Each currency subtotal is converted to EUR once. No records means zero.
func (a *Aggregator) Spend(ctx context.Context, orgID string, kind model.WindowKind, windowDays int) (model.Micros, error) {
	from, to := model.WindowBounds(a.clock.Now(), kind, windowDays)
	subtotals, err := a.store.SumCostsByCurrency(ctx, orgID, from, to)
	if err != nil {
		return 0, fmt.Errorf("aggregate spend: %w", err)
	}
	total, err := a.rates.ToEUR(subtotals)
	if err != nil {
		return 0, fmt.Errorf("aggregate spend: %w", err)
	}
	return total, nil
}

// WindowLabel describes a rule's window for humans.
func WindowLabel(kind model.WindowKind, days int) string {
	switch {
	case kind == model.WindowMonthToDate:
		return "month to date"
	case days <= 1:
		return "last day"
	default:
		return fmt.Sprintf("last %d days", days)
	}
}
