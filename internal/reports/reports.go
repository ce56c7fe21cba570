package reports

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"kitchenpos/backend/internal/domain"
	"kitchenpos/backend/internal/metrics"
	"kitchenpos/backend/internal/store"
)

const (
	ReportSales           = "sales"
	ReportIngredientUsage = "ingredient_usage"
	ReportRestock         = "restock"
	ReportExcessItems     = "excess_items"
	ReportOrderedTogether = "ordered_together"
)

// Engine runs read-only reports. Rows come back exactly as the store
// produced them; nothing is cached or retried.
type Engine struct {
	agg    store.Aggregator
	logger zerolog.Logger
}

func NewEngine(agg store.Aggregator, logger zerolog.Logger) *Engine {
	return &Engine{agg: agg, logger: logger.With().Str("component", "reports").Logger()}
}

// Sales counts, per item, the orders in [start, end] containing it. Items
// never ordered in the range are listed with a zero count.
func (e *Engine) Sales(ctx context.Context, start time.Time, end time.Time) ([]domain.SalesReportRow, error) {
	if start.After(end) {
		return []domain.SalesReportRow{}, nil
	}
	return run(ctx, e, ReportSales, func(ctx context.Context) ([]domain.SalesReportRow, error) {
		return e.agg.SalesReport(ctx, start, end)
	})
}

func (e *Engine) IngredientUsage(ctx context.Context, start time.Time, end time.Time) ([]domain.IngredientUsageRow, error) {
	if start.After(end) {
		return []domain.IngredientUsageRow{}, nil
	}
	return run(ctx, e, ReportIngredientUsage, func(ctx context.Context) ([]domain.IngredientUsageRow, error) {
		return e.agg.IngredientUsageReport(ctx, start, end)
	})
}

func (e *Engine) Restock(ctx context.Context) ([]domain.RestockRow, error) {
	return run(ctx, e, ReportRestock, e.agg.RestockReport)
}

// ExcessItems lists items that sold nothing in [start, end] against their
// ingredients' restock levels.
func (e *Engine) ExcessItems(ctx context.Context, start time.Time, end time.Time) ([]domain.Item, error) {
	if start.After(end) {
		return []domain.Item{}, nil
	}
	return run(ctx, e, ReportExcessItems, func(ctx context.Context) ([]domain.Item, error) {
		return e.agg.ExcessItemsReport(ctx, start, end)
	})
}

// OrderedTogether counts orders containing both items of a pair. A pair is
// only eligible when the lower item id also has the lexically smaller name.
func (e *Engine) OrderedTogether(ctx context.Context, start time.Time, end time.Time) ([]domain.OrderedTogetherRow, error) {
	if start.After(end) {
		return []domain.OrderedTogetherRow{}, nil
	}
	return run(ctx, e, ReportOrderedTogether, func(ctx context.Context) ([]domain.OrderedTogetherRow, error) {
		return e.agg.OrderedTogetherReport(ctx, start, end)
	})
}

func run[T any](ctx context.Context, e *Engine, report string, query func(context.Context) ([]T, error)) ([]T, error) {
	started := time.Now()
	rows, err := query(ctx)
	elapsed := time.Since(started)
	metrics.ObserveReport(report, elapsed)
	if err != nil {
		e.logger.Error().Err(err).Str("report", report).Msg("report query failed")
		return nil, err
	}
	if rows == nil {
		rows = []T{}
	}
	e.logger.Debug().Str("report", report).Int("rows", len(rows)).Dur("elapsed", elapsed).Msg("report computed")
	return rows, nil
}
