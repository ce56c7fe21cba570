package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"kitchenpos/backend/internal/domain"
	"kitchenpos/backend/internal/store"
)

const orderColumns = `id, price, time, COALESCE(user_id, 0), status`

func scanOrder(row scanner) (domain.Order, error) {
	var o domain.Order
	if err := row.Scan(&o.ID, &o.Price, &o.Time, &o.UserID, &o.Status); err != nil {
		return o, err
	}
	o.Time = o.Time.UTC()
	return o, nil
}

func (s *Store) ListOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 128)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// SaveOrder inserts or updates an order. A zero Time defaults to now on
// insert and keeps the stored time on update.
func (s *Store) SaveOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if order.Price.IsNegative() {
		return nil, store.ErrValidation
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}

	if order.ID == 0 {
		if order.Time.IsZero() {
			order.Time = time.Now().UTC()
		}
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO orders (price, time, user_id, status)
			VALUES ($1,$2,$3,$4)
			RETURNING id
		`, order.Price, order.Time, nullInt64(order.UserID), order.Status).Scan(&order.ID)
		if err != nil {
			return nil, translate(err, false)
		}
		saved := order
		return &saved, nil
	}

	err := s.db.QueryRowContext(ctx, `
		UPDATE orders SET price = $2, time = COALESCE($3, time), user_id = $4, status = $5
		WHERE id = $1
		RETURNING time
	`, order.ID, order.Price, nullTime(order.Time), nullInt64(order.UserID), order.Status).Scan(&order.Time)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, translate(err, false)
	}
	order.Time = order.Time.UTC()
	saved := order
	return &saved, nil
}

// DeleteOrder removes the order and its lines in one transaction.
func (s *Store) DeleteOrder(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

const userColumns = `id, COALESCE(username, ''), password, email, role`

func scanUser(row scanner) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.Password, &u.Email, &u.Role)
	return u, err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, 16)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE lower(email) = lower($1)
		ORDER BY id
		LIMIT 1
	`, strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE username = lower($1)
	`, strings.TrimSpace(username)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) SaveUser(ctx context.Context, user domain.User) (*domain.User, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Email == "" && user.Username == "" {
		return nil, store.ErrValidation
	}
	if user.Role == "" {
		user.Role = domain.RoleCustomer
	}

	var err error
	if user.ID == 0 {
		err = s.db.QueryRowContext(ctx, `
			INSERT INTO users (username, password, email, role)
			VALUES ($1,$2,$3,$4)
			RETURNING id
		`, nullString(user.Username), user.Password, user.Email, user.Role).Scan(&user.ID)
	} else {
		var res sql.Result
		res, err = s.db.ExecContext(ctx, `
			UPDATE users SET username = $2, password = $3, email = $4, role = $5
			WHERE id = $1
		`, user.ID, nullString(user.Username), user.Password, user.Email, user.Role)
		if err == nil {
			err = expectAffected(res)
		}
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, translate(err, false)
	}

	saved := user
	return &saved, nil
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}
