package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleCustomer = "customer"
	RoleServer   = "server"
	RoleManager  = "manager"
	RoleAdmin    = "admin"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

type ItemCategory struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Item struct {
	ID         int64           `json:"id"`
	CategoryID int64           `json:"category_id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Size       string          `json:"size"`
	GlutenFree bool            `json:"gluten_free"`
	Vegan      bool            `json:"vegan"`
	ExtraSauce bool            `json:"extra_sauce"`
	ImageURL   string          `json:"image_url"`
}

type Ingredient struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Stock         int             `json:"stock"`
	Restock       int             `json:"restock"`
	AmountOrdered int             `json:"amount_ordered"`
	Price         decimal.Decimal `json:"price"`
	GlutenFree    bool            `json:"gluten_free"`
	Vegan         bool            `json:"vegan"`
}

type Order struct {
	ID     int64           `json:"id"`
	Price  decimal.Decimal `json:"price"`
	Time   time.Time       `json:"time"`
	UserID int64           `json:"user_id"`
	Status string          `json:"status"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// LinkKind selects one of the two junction schemas. Both share the
// owner / counterpart / quantity shape.
type LinkKind string

const (
	LinkItemIngredient LinkKind = "item_ingredient"
	LinkOrderItem      LinkKind = "order_item"
)

func (k LinkKind) Valid() bool {
	return k == LinkItemIngredient || k == LinkOrderItem
}

// Link is one junction row. For LinkItemIngredient the owner is an item and
// the counterpart an ingredient; for LinkOrderItem the owner is an order and
// the counterpart an item.
type Link struct {
	OwnerID       int64 `json:"owner_id"`
	CounterpartID int64 `json:"counterpart_id"`
	Quantity      int   `json:"quantity"`
}

// DesiredLinks is the target state of an owner's links keyed by counterpart
// id. A nil map means "no mapping supplied"; an empty non-nil map means
// "remove every link".
type DesiredLinks map[int64]int

// LinkDiff is the set of mutations that turns the stored links of one owner
// into the desired state.
type LinkDiff struct {
	Inserts []Link
	Updates []Link
	Deletes []Link
}

func (d LinkDiff) IsEmpty() bool {
	return len(d.Inserts) == 0 && len(d.Updates) == 0 && len(d.Deletes) == 0
}

type ItemSaveRequest struct {
	Item
	Ingredients DesiredLinks `json:"ingredients,omitempty"`
}

type OrderSaveRequest struct {
	Order
	Items DesiredLinks `json:"items,omitempty"`
}

type UserSaveRequest struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

type IngredientWithQuantity struct {
	Ingredient
	Quantity int `json:"quantity"`
}

type ItemWithQuantity struct {
	Item
	Quantity int `json:"quantity"`
}

type SalesReportRow struct {
	ItemID     int64  `json:"item_id"`
	ItemName   string `json:"item_name"`
	OrderCount int64  `json:"order_count"`
}

type IngredientUsageRow struct {
	IngredientName string `json:"ingredient_name"`
	AmountUsed     int64  `json:"amount_used"`
}

type RestockRow struct {
	Ingredient    Ingredient `json:"ingredient"`
	RestockAmount int        `json:"restock_amount"`
}

type OrderedTogetherRow struct {
	Item1Name string `json:"item1_name"`
	Item2Name string `json:"item2_name"`
	PairCount int64  `json:"pair_count"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Subject string
	Role    string
}
