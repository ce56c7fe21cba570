package store

import (
	"context"
	"errors"
	"time"

	"kitchenpos/backend/internal/domain"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflicting modification")
)

// LinkStore is the junction-table contract used by the reconciler.
type LinkStore interface {
	OwnerExists(ctx context.Context, kind domain.LinkKind, ownerID int64) (bool, error)
	ListLinks(ctx context.Context, kind domain.LinkKind, ownerID int64) ([]domain.Link, error)
	DeleteLinksByOwner(ctx context.Context, kind domain.LinkKind, ownerID int64) error
	// ApplyLinkDiff applies every insert, update and delete of diff as one
	// atomic unit. On error nothing of diff is visible.
	ApplyLinkDiff(ctx context.Context, kind domain.LinkKind, ownerID int64, diff domain.LinkDiff) error
}

// Aggregator runs the read-only report queries. Ranges are inclusive.
type Aggregator interface {
	SalesReport(ctx context.Context, from time.Time, to time.Time) ([]domain.SalesReportRow, error)
	IngredientUsageReport(ctx context.Context, from time.Time, to time.Time) ([]domain.IngredientUsageRow, error)
	RestockReport(ctx context.Context) ([]domain.RestockRow, error)
	ExcessItemsReport(ctx context.Context, from time.Time, to time.Time) ([]domain.Item, error)
	OrderedTogetherReport(ctx context.Context, from time.Time, to time.Time) ([]domain.OrderedTogetherRow, error)
}

type Repository interface {
	LinkStore
	Aggregator

	ListCategories(ctx context.Context) ([]domain.ItemCategory, error)

	ListItems(ctx context.Context) ([]domain.Item, error)
	GetItem(ctx context.Context, id int64) (*domain.Item, error)
	SaveItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	DeleteItem(ctx context.Context, id int64) error
	ListItemsByOrder(ctx context.Context, orderID int64) ([]domain.ItemWithQuantity, error)

	ListIngredients(ctx context.Context) ([]domain.Ingredient, error)
	GetIngredientsByIDs(ctx context.Context, ids []int64) ([]domain.Ingredient, error)
	SaveIngredient(ctx context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error)
	DeleteIngredient(ctx context.Context, id int64) error
	ListIngredientsByItem(ctx context.Context, itemID int64) ([]domain.IngredientWithQuantity, error)

	ListOrders(ctx context.Context) ([]domain.Order, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	SaveOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	DeleteOrder(ctx context.Context, id int64) error

	ListUsers(ctx context.Context) ([]domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	FindUserByUsername(ctx context.Context, username string) (*domain.User, error)
	SaveUser(ctx context.Context, user domain.User) (*domain.User, error)
	DeleteUser(ctx context.Context, id int64) error
}
