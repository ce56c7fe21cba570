package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kitchenpos/backend/internal/domain"
	"kitchenpos/backend/internal/store"
)

type linkTable struct {
	table       string
	owner       string
	counterpart string
	ownerTable  string
}

var linkTables = map[domain.LinkKind]linkTable{
	domain.LinkItemIngredient: {table: "item_ingredients", owner: "item_id", counterpart: "ingredient_id", ownerTable: "items"},
	domain.LinkOrderItem:      {table: "order_items", owner: "order_id", counterpart: "item_id", ownerTable: "orders"},
}

// ownerConstraint is the default PostgreSQL name of the owner foreign key.
func (t linkTable) ownerConstraint() string {
	return t.table + "_" + t.owner + "_fkey"
}

func tableFor(kind domain.LinkKind) (linkTable, error) {
	t, ok := linkTables[kind]
	if !ok {
		return linkTable{}, fmt.Errorf("%w: unknown link kind %q", store.ErrValidation, kind)
	}
	return t, nil
}

func (s *Store) OwnerExists(ctx context.Context, kind domain.LinkKind, ownerID int64) (bool, error) {
	t, err := tableFor(kind)
	if err != nil {
		return false, err
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+t.ownerTable+` WHERE id = $1)`, ownerID).Scan(&exists)
	return exists, err
}

func (s *Store) ListLinks(ctx context.Context, kind domain.LinkKind, ownerID int64) ([]domain.Link, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %[2]s, %[3]s, quantity FROM %[1]s WHERE %[2]s = $1 ORDER BY %[3]s
	`, t.table, t.owner, t.counterpart), ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := make([]domain.Link, 0, 8)
	for rows.Next() {
		var link domain.Link
		if err := rows.Scan(&link.OwnerID, &link.CounterpartID, &link.Quantity); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return links, nil
}

func (s *Store) DeleteLinksByOwner(ctx context.Context, kind domain.LinkKind, ownerID int64) error {
	t, err := tableFor(kind)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM `+t.table+` WHERE `+t.owner+` = $1`, ownerID)
	return err
}

// ApplyLinkDiff runs the whole diff in one SERIALIZABLE transaction.
// The owner row is key-share locked first so it cannot be deleted underneath
// the diff; a missing owner is ErrNotFound. Deletes and updates must hit
// exactly one row and inserts must not collide; otherwise a concurrent writer
// got there first and ErrConflict is returned.
func (s *Store) ApplyLinkDiff(ctx context.Context, kind domain.LinkKind, ownerID int64, diff domain.LinkDiff) error {
	t, err := tableFor(kind)
	if err != nil {
		return err
	}
	if diff.IsEmpty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var locked int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM `+t.ownerTable+` WHERE id = $1 FOR KEY SHARE`, ownerID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %d", store.ErrNotFound, t.ownerTable, ownerID)
	}
	if err != nil {
		return translate(err, false)
	}

	deleteSQL := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND %s = $2`, t.table, t.owner, t.counterpart)
	for _, link := range diff.Deletes {
		res, err := tx.ExecContext(ctx, deleteSQL, ownerID, link.CounterpartID)
		if err != nil {
			return translate(err, false)
		}
		if err := expectOneRow(res, ownerID, link.CounterpartID); err != nil {
			return err
		}
	}

	updateSQL := fmt.Sprintf(`UPDATE %s SET quantity = $3 WHERE %s = $1 AND %s = $2`, t.table, t.owner, t.counterpart)
	for _, link := range diff.Updates {
		res, err := tx.ExecContext(ctx, updateSQL, ownerID, link.CounterpartID, link.Quantity)
		if err != nil {
			return translate(err, false)
		}
		if err := expectOneRow(res, ownerID, link.CounterpartID); err != nil {
			return err
		}
	}

	insertSQL := fmt.Sprintf(`INSERT INTO %s (%s, %s, quantity) VALUES ($1, $2, $3)`, t.table, t.owner, t.counterpart)
	for _, link := range diff.Inserts {
		if _, err := tx.ExecContext(ctx, insertSQL, ownerID, link.CounterpartID, link.Quantity); err != nil {
			if isForeignKeyViolation(err) && pgConstraint(err) == t.ownerConstraint() {
				return fmt.Errorf("%w: %s %d", store.ErrNotFound, t.ownerTable, ownerID)
			}
			return translate(err, false)
		}
	}

	if err := tx.Commit(); err != nil {
		return translate(err, false)
	}
	return nil
}

func expectOneRow(res sql.Result, ownerID int64, counterpartID int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return fmt.Errorf("%w: link %d->%d changed concurrently", store.ErrConflict, ownerID, counterpartID)
	}
	return nil
}
