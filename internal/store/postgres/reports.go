package postgres

import (
	"context"
	"time"

	"kitchenpos/backend/internal/domain"
)

// The range predicate lives in the join so items without orders still
// produce a zero row.
const salesReportSQL = `
	SELECT i.id, i.name, COUNT(DISTINCT o.id) AS order_count
	FROM items i
	LEFT JOIN order_items oi ON oi.item_id = i.id
	LEFT JOIN orders o ON o.id = oi.order_id AND o.time BETWEEN $1 AND $2
	GROUP BY i.id, i.name
	ORDER BY order_count DESC, i.id ASC
`

const ingredientUsageSQL = `
	SELECT g.name, SUM(ii.quantity) AS amount_used
	FROM orders o
	JOIN order_items oi ON oi.order_id = o.id
	JOIN item_ingredients ii ON ii.item_id = oi.item_id
	JOIN ingredients g ON g.id = ii.ingredient_id
	WHERE o.time BETWEEN $1 AND $2
	GROUP BY g.name
	ORDER BY g.name ASC
`

const restockReportSQL = `
	SELECT ` + ingredientColumns + `, g.restock - g.stock AS restock_amount
	FROM ingredients g
	WHERE g.stock < g.restock
	ORDER BY g.id
`

const excessItemsSQL = `
	WITH item_sales AS (
		SELECT oi.item_id, SUM(oi.quantity) AS total_sold
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.time BETWEEN $1 AND $2
		GROUP BY oi.item_id
	),
	candidates AS (
		SELECT c.id, c.total_sold,
			ROW_NUMBER() OVER (PARTITION BY c.id ORDER BY c.total_sold DESC) AS rn
		FROM (
			SELECT i.id, COALESCE(s.total_sold, 0) AS total_sold
			FROM items i
			LEFT JOIN item_ingredients ii ON ii.item_id = i.id
			LEFT JOIN ingredients g ON g.id = ii.ingredient_id
			LEFT JOIN item_sales s ON s.item_id = i.id
			WHERE s.total_sold IS NULL
				OR s.total_sold::numeric / NULLIF(g.restock, 0) < 0.10
		) c
	)
	SELECT ` + itemColumns + `
	FROM candidates c
	JOIN items i ON i.id = c.id
	WHERE c.rn = 1 AND c.total_sold = 0
	ORDER BY i.id
`

const orderedTogetherSQL = `
	SELECT i1.name, i2.name, COUNT(*) AS pair_count
	FROM order_items a
	JOIN order_items b ON b.order_id = a.order_id AND a.item_id < b.item_id
	JOIN items i1 ON i1.id = a.item_id
	JOIN items i2 ON i2.id = b.item_id
	JOIN orders o ON o.id = a.order_id
	WHERE o.time BETWEEN $1 AND $2
		AND i1.name < i2.name
	GROUP BY i1.name, i2.name
	ORDER BY pair_count DESC, i1.name ASC, i2.name ASC
`

func (s *Store) SalesReport(ctx context.Context, from time.Time, to time.Time) ([]domain.SalesReportRow, error) {
	rows, err := s.db.QueryContext(ctx, salesReportSQL, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.SalesReportRow, 0, 64)
	for rows.Next() {
		var r domain.SalesReportRow
		if err := rows.Scan(&r.ItemID, &r.ItemName, &r.OrderCount); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) IngredientUsageReport(ctx context.Context, from time.Time, to time.Time) ([]domain.IngredientUsageRow, error) {
	rows, err := s.db.QueryContext(ctx, ingredientUsageSQL, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.IngredientUsageRow, 0, 32)
	for rows.Next() {
		var r domain.IngredientUsageRow
		if err := rows.Scan(&r.IngredientName, &r.AmountUsed); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) RestockReport(ctx context.Context) ([]domain.RestockRow, error) {
	rows, err := s.db.QueryContext(ctx, restockReportSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.RestockRow, 0, 16)
	for rows.Next() {
		var amount int
		ing, err := scanIngredient(rows, &amount)
		if err != nil {
			return nil, err
		}
		result = append(result, domain.RestockRow{Ingredient: ing, RestockAmount: amount})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ExcessItemsReport(ctx context.Context, from time.Time, to time.Time) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, excessItemsSQL, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 16)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) OrderedTogetherReport(ctx context.Context, from time.Time, to time.Time) ([]domain.OrderedTogetherRow, error) {
	rows, err := s.db.QueryContext(ctx, orderedTogetherSQL, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.OrderedTogetherRow, 0, 32)
	for rows.Next() {
		var r domain.OrderedTogetherRow
		if err := rows.Scan(&r.Item1Name, &r.Item2Name, &r.PairCount); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
