package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchenpos/backend/internal/domain"
	"kitchenpos/backend/internal/store"
	"kitchenpos/backend/internal/store/memory"
)

var (
	day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	day1 = day0.Add(24 * time.Hour)
	day2 = day1.Add(24 * time.Hour)
)

type builder struct {
	t    *testing.T
	ctx  context.Context
	repo *memory.Store
}

func newBuilder(t *testing.T) *builder {
	return &builder{t: t, ctx: context.Background(), repo: memory.New()}
}

func (b *builder) item(name string, recipe domain.DesiredLinks) int64 {
	b.t.Helper()
	item, err := b.repo.SaveItem(b.ctx, domain.Item{Name: name, Price: decimal.NewFromInt(4)})
	require.NoError(b.t, err)
	b.links(domain.LinkItemIngredient, item.ID, recipe)
	return item.ID
}

func (b *builder) ingredient(name string, stock int, restock int) int64 {
	b.t.Helper()
	ing, err := b.repo.SaveIngredient(b.ctx, domain.Ingredient{Name: name, Stock: stock, Restock: restock, Price: decimal.NewFromInt(1)})
	require.NoError(b.t, err)
	return ing.ID
}

func (b *builder) order(at time.Time, lines domain.DesiredLinks) int64 {
	b.t.Helper()
	order, err := b.repo.SaveOrder(b.ctx, domain.Order{Price: decimal.NewFromInt(10), Time: at})
	require.NoError(b.t, err)
	b.links(domain.LinkOrderItem, order.ID, lines)
	return order.ID
}

func (b *builder) links(kind domain.LinkKind, ownerID int64, desired domain.DesiredLinks) {
	b.t.Helper()
	var diff domain.LinkDiff
	for counterpart, qty := range desired {
		diff.Inserts = append(diff.Inserts, domain.Link{OwnerID: ownerID, CounterpartID: counterpart, Quantity: qty})
	}
	require.NoError(b.t, b.repo.ApplyLinkDiff(b.ctx, kind, ownerID, diff))
}

func (b *builder) engine() *Engine {
	return NewEngine(b.repo, zerolog.Nop())
}

func TestSalesIncludesUnsoldItems(t *testing.T) {
	b := newBuilder(t)
	a := b.item("A", nil)
	bb := b.item("B", nil)
	b.order(day0, domain.DesiredLinks{a: 1})
	b.order(day1, domain.DesiredLinks{a: 3})
	b.order(day2.Add(time.Hour), domain.DesiredLinks{bb: 1})

	rows, err := b.engine().Sales(b.ctx, day0, day2)
	require.NoError(t, err)
	assert.Equal(t, []domain.SalesReportRow{
		{ItemID: a, ItemName: "A", OrderCount: 2},
		{ItemID: bb, ItemName: "B", OrderCount: 0},
	}, rows)
}

func TestIngredientUsageSumsRecipeQuantityPerOrderLine(t *testing.T) {
	b := newBuilder(t)
	bun := b.ingredient("Bun", 50, 20)
	patty := b.ingredient("Patty", 50, 20)
	b.ingredient("Unused", 50, 20)
	burger := b.item("Burger", domain.DesiredLinks{bun: 1, patty: 2})
	b.order(day0, domain.DesiredLinks{burger: 3})
	b.order(day2, domain.DesiredLinks{burger: 1})
	b.order(day2.Add(time.Second), domain.DesiredLinks{burger: 1})

	rows, err := b.engine().IngredientUsage(b.ctx, day0, day2)
	require.NoError(t, err)
	assert.Equal(t, []domain.IngredientUsageRow{
		{IngredientName: "Bun", AmountUsed: 2},
		{IngredientName: "Patty", AmountUsed: 4},
	}, rows)
}

func TestRestockDeficit(t *testing.T) {
	b := newBuilder(t)
	low := b.ingredient("Lettuce", 3, 10)
	b.ingredient("Tomato", 10, 10)
	b.ingredient("Onion", 12, 10)

	rows, err := b.engine().Restock(b.ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, low, rows[0].Ingredient.ID)
	assert.Equal(t, 7, rows[0].RestockAmount)
}

func TestExcessItemsListsUnsoldItems(t *testing.T) {
	b := newBuilder(t)
	flour := b.ingredient("Flour", 100, 200)
	sugar := b.ingredient("Sugar", 100, 5)
	cake := b.item("Cake", domain.DesiredLinks{flour: 1, sugar: 1})
	bread := b.item("Bread", domain.DesiredLinks{flour: 2})
	water := b.item("Water", nil)
	b.order(day1, domain.DesiredLinks{cake: 2})
	b.order(day2.Add(time.Hour), domain.DesiredLinks{bread: 1})

	items, err := b.engine().ExcessItems(b.ctx, day0, day2)
	require.NoError(t, err)

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []int64{bread, water}, ids)
}

func TestOrderedTogetherRequiresIdAndNameOrderToAgree(t *testing.T) {
	t.Run("agreeing order is counted", func(t *testing.T) {
		b := newBuilder(t)
		burger := b.item("Burger", nil)
		fries := b.item("Fries", nil)
		b.order(day0, domain.DesiredLinks{burger: 1, fries: 1})

		rows, err := b.engine().OrderedTogether(b.ctx, day0, day1)
		require.NoError(t, err)
		assert.Equal(t, []domain.OrderedTogetherRow{{Item1Name: "Burger", Item2Name: "Fries", PairCount: 1}}, rows)
	})

	t.Run("opposite order is skipped", func(t *testing.T) {
		b := newBuilder(t)
		fries := b.item("Fries", nil)
		burger := b.item("Burger", nil)
		b.order(day0, domain.DesiredLinks{burger: 1, fries: 1})

		rows, err := b.engine().OrderedTogether(b.ctx, day0, day1)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("sorted by count then names", func(t *testing.T) {
		b := newBuilder(t)
		apple := b.item("Apple", nil)
		bagel := b.item("Bagel", nil)
		cola := b.item("Cola", nil)
		b.order(day0, domain.DesiredLinks{apple: 1, bagel: 1, cola: 1})
		b.order(day0, domain.DesiredLinks{bagel: 1, cola: 2})

		rows, err := b.engine().OrderedTogether(b.ctx, day0, day1)
		require.NoError(t, err)
		assert.Equal(t, []domain.OrderedTogetherRow{
			{Item1Name: "Bagel", Item2Name: "Cola", PairCount: 2},
			{Item1Name: "Apple", Item2Name: "Bagel", PairCount: 1},
			{Item1Name: "Apple", Item2Name: "Cola", PairCount: 1},
		}, rows)
	})
}

type recordingAggregator struct {
	store.Aggregator
	calls int
	err   error
}

func (r *recordingAggregator) SalesReport(context.Context, time.Time, time.Time) ([]domain.SalesReportRow, error) {
	r.calls++
	return nil, r.err
}

func (r *recordingAggregator) IngredientUsageReport(context.Context, time.Time, time.Time) ([]domain.IngredientUsageRow, error) {
	r.calls++
	return nil, r.err
}

func (r *recordingAggregator) ExcessItemsReport(context.Context, time.Time, time.Time) ([]domain.Item, error) {
	r.calls++
	return nil, r.err
}

func (r *recordingAggregator) OrderedTogetherReport(context.Context, time.Time, time.Time) ([]domain.OrderedTogetherRow, error) {
	r.calls++
	return nil, r.err
}

func TestReversedRangeIsEmptyWithoutQuerying(t *testing.T) {
	agg := &recordingAggregator{err: errors.New("must not be called")}
	e := NewEngine(agg, zerolog.Nop())
	ctx := context.Background()

	sales, err := e.Sales(ctx, day2, day0)
	require.NoError(t, err)
	assert.Empty(t, sales)
	assert.NotNil(t, sales)

	usage, err := e.IngredientUsage(ctx, day2, day0)
	require.NoError(t, err)
	assert.Empty(t, usage)

	excess, err := e.ExcessItems(ctx, day2, day0)
	require.NoError(t, err)
	assert.Empty(t, excess)

	pairs, err := e.OrderedTogether(ctx, day2, day0)
	require.NoError(t, err)
	assert.Empty(t, pairs)

	assert.Zero(t, agg.calls)
}

func TestStoreErrorsSurfaceUnchanged(t *testing.T) {
	boom := errors.New("connection reset")
	e := NewEngine(&recordingAggregator{err: boom}, zerolog.Nop())

	_, err := e.Sales(context.Background(), day0, day1)
	require.ErrorIs(t, err, boom)
}
