package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"kitchenpos/backend/internal/domain"
	"kitchenpos/backend/internal/store"
)

const itemColumns = `i.id, COALESCE(i.category_id, 0), i.name, i.price, i.size, i.gluten_free, i.vegan, i.extra_sauce, i.image_url`

const ingredientColumns = `g.id, g.name, g.stock, g.restock, g.amount_ordered, g.price, g.gluten_free, g.vegan`

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner, extra ...any) (domain.Item, error) {
	var item domain.Item
	dest := []any{&item.ID, &item.CategoryID, &item.Name, &item.Price, &item.Size, &item.GlutenFree, &item.Vegan, &item.ExtraSauce, &item.ImageURL}
	err := row.Scan(append(dest, extra...)...)
	return item, err
}

func scanIngredient(row scanner, extra ...any) (domain.Ingredient, error) {
	var ing domain.Ingredient
	dest := []any{&ing.ID, &ing.Name, &ing.Stock, &ing.Restock, &ing.AmountOrdered, &ing.Price, &ing.GlutenFree, &ing.Vegan}
	err := row.Scan(append(dest, extra...)...)
	return ing, err
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.ItemCategory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM item_categories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.ItemCategory, 0, 16)
	for rows.Next() {
		var c domain.ItemCategory
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items i ORDER BY i.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 64)
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

func (s *Store) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items i WHERE i.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if strings.TrimSpace(item.Name) == "" || item.Price.IsNegative() {
		return nil, store.ErrValidation
	}

	if item.ID == 0 {
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO items (category_id, name, price, size, gluten_free, vegan, extra_sauce, image_url)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING id
		`, nullInt64(item.CategoryID), item.Name, item.Price, item.Size, item.GlutenFree, item.Vegan, item.ExtraSauce, item.ImageURL).Scan(&item.ID)
		if err != nil {
			return nil, translate(err, false)
		}
		saved := item
		return &saved, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET category_id = $2, name = $3, price = $4, size = $5, gluten_free = $6, vegan = $7, extra_sauce = $8, image_url = $9
		WHERE id = $1
	`, item.ID, nullInt64(item.CategoryID), item.Name, item.Price, item.Size, item.GlutenFree, item.Vegan, item.ExtraSauce, item.ImageURL)
	if err != nil {
		return nil, translate(err, false)
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	saved := item
	return &saved, nil
}

// DeleteItem removes the item together with its recipe links. Items still
// referenced by orders are reported as ErrConflict.
func (s *Store) DeleteItem(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM item_ingredients WHERE item_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return translate(err, true)
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListItemsByOrder(ctx context.Context, orderID int64) ([]domain.ItemWithQuantity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`, oi.quantity
		FROM order_items oi
		JOIN items i ON i.id = oi.item_id
		WHERE oi.order_id = $1
		ORDER BY i.id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ItemWithQuantity, 0, 8)
	for rows.Next() {
		var qty int
		item, err := scanItem(rows, &qty)
		if err != nil {
			return nil, err
		}
		result = append(result, domain.ItemWithQuantity{Item: item, Quantity: qty})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ListIngredients(ctx context.Context) ([]domain.Ingredient, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ingredientColumns+` FROM ingredients g ORDER BY g.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIngredients(rows)
}

func (s *Store) GetIngredientsByIDs(ctx context.Context, ids []int64) ([]domain.Ingredient, error) {
	if len(ids) == 0 {
		return []domain.Ingredient{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ingredientColumns+`
		FROM ingredients g
		WHERE g.id IN (`+placeholders(1, len(ids))+`)
		ORDER BY g.id
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIngredients(rows)
}

func collectIngredients(rows *sql.Rows) ([]domain.Ingredient, error) {
	ingredients := make([]domain.Ingredient, 0, 32)
	for rows.Next() {
		ing, err := scanIngredient(rows)
		if err != nil {
			return nil, err
		}
		ingredients = append(ingredients, ing)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ingredients, nil
}

func (s *Store) SaveIngredient(ctx context.Context, ing domain.Ingredient) (*domain.Ingredient, error) {
	if strings.TrimSpace(ing.Name) == "" || ing.Restock < 0 || ing.Price.IsNegative() {
		return nil, store.ErrValidation
	}

	if ing.ID == 0 {
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO ingredients (name, stock, restock, amount_ordered, price, gluten_free, vegan)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING id
		`, ing.Name, ing.Stock, ing.Restock, ing.AmountOrdered, ing.Price, ing.GlutenFree, ing.Vegan).Scan(&ing.ID)
		if err != nil {
			return nil, translate(err, false)
		}
		saved := ing
		return &saved, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE ingredients
		SET name = $2, stock = $3, restock = $4, amount_ordered = $5, price = $6, gluten_free = $7, vegan = $8
		WHERE id = $1
	`, ing.ID, ing.Name, ing.Stock, ing.Restock, ing.AmountOrdered, ing.Price, ing.GlutenFree, ing.Vegan)
	if err != nil {
		return nil, translate(err, false)
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	saved := ing
	return &saved, nil
}

func (s *Store) DeleteIngredient(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ingredients WHERE id = $1`, id)
	if err != nil {
		return translate(err, true)
	}
	return expectAffected(res)
}

func (s *Store) ListIngredientsByItem(ctx context.Context, itemID int64) ([]domain.IngredientWithQuantity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ingredientColumns+`, ii.quantity
		FROM item_ingredients ii
		JOIN ingredients g ON g.id = ii.ingredient_id
		WHERE ii.item_id = $1
		ORDER BY g.id
	`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.IngredientWithQuantity, 0, 8)
	for rows.Next() {
		var qty int
		ing, err := scanIngredient(rows, &qty)
		if err != nil {
			return nil, err
		}
		result = append(result, domain.IngredientWithQuantity{Ingredient: ing, Quantity: qty})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
