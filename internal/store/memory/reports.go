package memory

import (
	"context"
	"slices"
	"time"

	"kitchenpos/backend/internal/domain"
)

const excessSalesRatio = 0.10

func inRange(t time.Time, from time.Time, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

// ordersInRange must be called with s.mu held.
func (s *Store) ordersInRange(from time.Time, to time.Time) []domain.Order {
	orders := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if inRange(o.Time, from, to) {
			orders = append(orders, o)
		}
	}
	slices.SortFunc(orders, func(a, b domain.Order) int { return cmpInt64(a.ID, b.ID) })
	return orders
}

func (s *Store) SalesReport(_ context.Context, from time.Time, to time.Time) ([]domain.SalesReportRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[int64]int64, len(s.items))
	for _, o := range s.ordersInRange(from, to) {
		for itemID := range s.links[domain.LinkOrderItem][o.ID] {
			counts[itemID]++
		}
	}

	rows := make([]domain.SalesReportRow, 0, len(s.items))
	for _, item := range s.items {
		rows = append(rows, domain.SalesReportRow{ItemID: item.ID, ItemName: item.Name, OrderCount: counts[item.ID]})
	}
	slices.SortFunc(rows, func(a, b domain.SalesReportRow) int {
		if a.OrderCount != b.OrderCount {
			return cmpInt64(b.OrderCount, a.OrderCount)
		}
		return cmpInt64(a.ItemID, b.ItemID)
	})
	return rows, nil
}

func (s *Store) IngredientUsageReport(_ context.Context, from time.Time, to time.Time) ([]domain.IngredientUsageRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	usage := make(map[string]int64)
	for _, o := range s.ordersInRange(from, to) {
		for itemID := range s.links[domain.LinkOrderItem][o.ID] {
			for ingID, qty := range s.links[domain.LinkItemIngredient][itemID] {
				ing, ok := s.ingredients[ingID]
				if !ok {
					continue
				}
				usage[ing.Name] += int64(qty)
			}
		}
	}

	rows := make([]domain.IngredientUsageRow, 0, len(usage))
	for name, amount := range usage {
		rows = append(rows, domain.IngredientUsageRow{IngredientName: name, AmountUsed: amount})
	}
	slices.SortFunc(rows, func(a, b domain.IngredientUsageRow) int { return cmpString(a.IngredientName, b.IngredientName) })
	return rows, nil
}

func (s *Store) RestockReport(_ context.Context) ([]domain.RestockRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.RestockRow, 0)
	for _, ing := range s.ingredients {
		if ing.Stock < ing.Restock {
			rows = append(rows, domain.RestockRow{Ingredient: ing, RestockAmount: ing.Restock - ing.Stock})
		}
	}
	slices.SortFunc(rows, func(a, b domain.RestockRow) int { return cmpInt64(a.Ingredient.ID, b.Ingredient.ID) })
	return rows, nil
}

// ExcessItemsReport builds one candidate per (item, ingredient restock),
// keeps candidates whose in-range sales are below 10% of the restock level
// or that have no sales at all, takes the top-ranked candidate per item and
// finally keeps only items that sold nothing.
func (s *Store) ExcessItemsReport(_ context.Context, from time.Time, to time.Time) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sold := make(map[int64]int64)
	for _, o := range s.ordersInRange(from, to) {
		for itemID, qty := range s.links[domain.LinkOrderItem][o.ID] {
			sold[itemID] += int64(qty)
		}
	}

	type candidate struct {
		item      domain.Item
		totalSold int64
	}
	ranked := make(map[int64]candidate)
	for _, item := range s.items {
		total, hasSales := sold[item.ID]
		restocks := make([]int, 0)
		for ingID := range s.links[domain.LinkItemIngredient][item.ID] {
			if ing, ok := s.ingredients[ingID]; ok {
				restocks = append(restocks, ing.Restock)
			}
		}
		if len(restocks) == 0 {
			// An item without ingredients still yields one candidate with no
			// restock level.
			restocks = append(restocks, 0)
		}
		for _, restock := range restocks {
			below := restock > 0 && float64(total)/float64(restock) < excessSalesRatio
			if !below && hasSales {
				continue
			}
			if current, ok := ranked[item.ID]; !ok || total > current.totalSold {
				ranked[item.ID] = candidate{item: item, totalSold: total}
			}
		}
	}

	items := make([]domain.Item, 0, len(ranked))
	for _, c := range ranked {
		if c.totalSold == 0 {
			items = append(items, c.item)
		}
	}
	slices.SortFunc(items, func(a, b domain.Item) int { return cmpInt64(a.ID, b.ID) })
	return items, nil
}

func (s *Store) OrderedTogetherReport(_ context.Context, from time.Time, to time.Time) ([]domain.OrderedTogetherRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type pair struct{ first, second string }
	counts := make(map[pair]int64)
	for _, o := range s.ordersInRange(from, to) {
		ids := make([]int64, 0, len(s.links[domain.LinkOrderItem][o.ID]))
		for itemID := range s.links[domain.LinkOrderItem][o.ID] {
			if _, ok := s.items[itemID]; ok {
				ids = append(ids, itemID)
			}
		}
		slices.Sort(ids)
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				first, second := s.items[ids[i]].Name, s.items[ids[j]].Name
				// Pairs count only when id order and name order agree.
				if first < second {
					counts[pair{first, second}]++
				}
			}
		}
	}

	rows := make([]domain.OrderedTogetherRow, 0, len(counts))
	for p, n := range counts {
		rows = append(rows, domain.OrderedTogetherRow{Item1Name: p.first, Item2Name: p.second, PairCount: n})
	}
	slices.SortFunc(rows, func(a, b domain.OrderedTogetherRow) int {
		if a.PairCount != b.PairCount {
			return cmpInt64(b.PairCount, a.PairCount)
		}
		if c := cmpString(a.Item1Name, b.Item1Name); c != 0 {
			return c
		}
		return cmpString(a.Item2Name, b.Item2Name)
	})
	return rows, nil
}
