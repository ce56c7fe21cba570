package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"kitchenpos/backend/internal/domain"
	"kitchenpos/backend/internal/store"
)

type Store struct {
	mu          sync.RWMutex
	categories  map[int64]domain.ItemCategory
	items       map[int64]domain.Item
	ingredients map[int64]domain.Ingredient
	orders      map[int64]domain.Order
	users       map[int64]domain.User
	// links[kind][owner][counterpart] = quantity
	links  map[domain.LinkKind]map[int64]map[int64]int
	nextID map[string]int64
}

func New() *Store {
	return &Store{
		categories:  make(map[int64]domain.ItemCategory),
		items:       make(map[int64]domain.Item),
		ingredients: make(map[int64]domain.Ingredient),
		orders:      make(map[int64]domain.Order),
		users:       make(map[int64]domain.User),
		links: map[domain.LinkKind]map[int64]map[int64]int{
			domain.LinkItemIngredient: {},
			domain.LinkOrderItem:      {},
		},
		nextID: make(map[string]int64),
	}
}

// NewSeeded returns a store holding a small demo menu and the bootstrap
// staff accounts. Passwords come from SEED_ADMIN_PASSWORD and
// SEED_MANAGER_PASSWORD; dev defaults are used with a warning otherwise.
func NewSeeded() *Store {
	s := New()

	for _, name := range []string{"Burgers", "Sides", "Drinks"} {
		id := s.seq("category")
		s.categories[id] = domain.ItemCategory{ID: id, Name: name}
	}

	ingredients := []domain.Ingredient{
		{Name: "Bun", Stock: 120, Restock: 80, Price: decimal.RequireFromString("0.35")},
		{Name: "Beef Patty", Stock: 60, Restock: 80, Price: decimal.RequireFromString("1.40")},
		{Name: "Potato", Stock: 200, Restock: 150, Price: decimal.RequireFromString("0.20"), GlutenFree: true, Vegan: true},
		{Name: "Lettuce", Stock: 15, Restock: 40, Price: decimal.RequireFromString("0.10"), GlutenFree: true, Vegan: true},
		{Name: "Lemon", Stock: 50, Restock: 30, Price: decimal.RequireFromString("0.25"), GlutenFree: true, Vegan: true},
	}
	for _, ing := range ingredients {
		ing.ID = s.seq("ingredient")
		s.ingredients[ing.ID] = ing
	}

	items := []domain.Item{
		{CategoryID: 1, Name: "Classic Burger", Price: decimal.RequireFromString("8.99"), Size: "regular"},
		{CategoryID: 2, Name: "Fries", Price: decimal.RequireFromString("3.49"), Size: "regular", GlutenFree: true, Vegan: true},
		{CategoryID: 3, Name: "Lemonade", Price: decimal.RequireFromString("2.49"), Size: "large", GlutenFree: true, Vegan: true},
	}
	for _, item := range items {
		item.ID = s.seq("item")
		s.items[item.ID] = item
	}

	s.links[domain.LinkItemIngredient] = map[int64]map[int64]int{
		1: {1: 1, 2: 1, 4: 1},
		2: {3: 2},
		3: {5: 1},
	}

	for _, u := range seedUsers() {
		s.users[u.ID] = u
	}
	return s
}

func seedUsers() []domain.User {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_MANAGER_PASSWORD") == "" {
		log.Warn().Str("component", "memory-store").Msg("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_MANAGER_PASSWORD to override")
	}

	users := make([]domain.User, 0, 2)
	for i, u := range []struct {
		username string
		email    string
		password string
		role     string
	}{
		{"admin", "admin@kitchenpos.local", adminPwd, domain.RoleAdmin},
		{"manager", "manager@kitchenpos.local", managerPwd, domain.RoleManager},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("failed to hash seed password")
		}
		users = append(users, domain.User{
			ID:       int64(i + 1),
			Username: u.username,
			Password: string(hash),
			Email:    u.email,
			Role:     u.role,
		})
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// seq must be called with s.mu held (or before the store is shared).
func (s *Store) seq(table string) int64 {
	if table == "user" && s.nextID[table] < int64(len(s.users)) {
		s.nextID[table] = int64(len(s.users))
	}
	s.nextID[table]++
	return s.nextID[table]
}

func (s *Store) ListCategories(_ context.Context) ([]domain.ItemCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.ItemCategory, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.ItemCategory) int { return cmpInt64(a.ID, b.ID) })
	return categories, nil
}

func (s *Store) ListItems(_ context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.Item) int { return cmpInt64(a.ID, b.ID) })
	return items, nil
}

func (s *Store) GetItem(_ context.Context, id int64) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (s *Store) SaveItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	if strings.TrimSpace(item.Name) == "" || item.Price.IsNegative() {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item.CategoryID != 0 {
		if _, ok := s.categories[item.CategoryID]; !ok {
			return nil, fmt.Errorf("%w: unknown category %d", store.ErrValidation, item.CategoryID)
		}
	}
	if item.ID == 0 {
		item.ID = s.seq("item")
	} else if _, ok := s.items[item.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.items[item.ID] = item
	saved := item
	return &saved, nil
}

func (s *Store) DeleteItem(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return store.ErrNotFound
	}
	for _, lines := range s.links[domain.LinkOrderItem] {
		if _, used := lines[id]; used {
			return fmt.Errorf("%w: item %d is referenced by orders", store.ErrConflict, id)
		}
	}
	delete(s.links[domain.LinkItemIngredient], id)
	delete(s.items, id)
	return nil
}

func (s *Store) ListItemsByOrder(_ context.Context, orderID int64) ([]domain.ItemWithQuantity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := s.links[domain.LinkOrderItem][orderID]
	result := make([]domain.ItemWithQuantity, 0, len(lines))
	for itemID, qty := range lines {
		item, ok := s.items[itemID]
		if !ok {
			continue
		}
		result = append(result, domain.ItemWithQuantity{Item: item, Quantity: qty})
	}
	slices.SortFunc(result, func(a, b domain.ItemWithQuantity) int { return cmpInt64(a.ID, b.ID) })
	return result, nil
}

func (s *Store) ListIngredients(_ context.Context) ([]domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ingredients := make([]domain.Ingredient, 0, len(s.ingredients))
	for _, ing := range s.ingredients {
		ingredients = append(ingredients, ing)
	}
	slices.SortFunc(ingredients, func(a, b domain.Ingredient) int { return cmpInt64(a.ID, b.ID) })
	return ingredients, nil
}

func (s *Store) GetIngredientsByIDs(_ context.Context, ids []int64) ([]domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Ingredient, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if ing, ok := s.ingredients[id]; ok {
			result = append(result, ing)
		}
	}
	slices.SortFunc(result, func(a, b domain.Ingredient) int { return cmpInt64(a.ID, b.ID) })
	return result, nil
}

func (s *Store) SaveIngredient(_ context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error) {
	if strings.TrimSpace(ingredient.Name) == "" || ingredient.Restock < 0 || ingredient.Price.IsNegative() {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ingredient.ID == 0 {
		ingredient.ID = s.seq("ingredient")
	} else if _, ok := s.ingredients[ingredient.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.ingredients[ingredient.ID] = ingredient
	saved := ingredient
	return &saved, nil
}

func (s *Store) DeleteIngredient(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ingredients[id]; !ok {
		return store.ErrNotFound
	}
	for _, recipe := range s.links[domain.LinkItemIngredient] {
		if _, used := recipe[id]; used {
			return fmt.Errorf("%w: ingredient %d is used by items", store.ErrConflict, id)
		}
	}
	delete(s.ingredients, id)
	return nil
}

func (s *Store) ListIngredientsByItem(_ context.Context, itemID int64) ([]domain.IngredientWithQuantity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recipe := s.links[domain.LinkItemIngredient][itemID]
	result := make([]domain.IngredientWithQuantity, 0, len(recipe))
	for ingID, qty := range recipe {
		ing, ok := s.ingredients[ingID]
		if !ok {
			continue
		}
		result = append(result, domain.IngredientWithQuantity{Ingredient: ing, Quantity: qty})
	}
	slices.SortFunc(result, func(a, b domain.IngredientWithQuantity) int { return cmpInt64(a.ID, b.ID) })
	return result, nil
}

func (s *Store) ListOrders(_ context.Context) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		orders = append(orders, o)
	}
	slices.SortFunc(orders, func(a, b domain.Order) int { return cmpInt64(a.ID, b.ID) })
	return orders, nil
}

func (s *Store) GetOrder(_ context.Context, id int64) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &order, nil
}

func (s *Store) SaveOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	if order.Price.IsNegative() {
		return nil, store.ErrValidation
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID == 0 {
		order.ID = s.seq("order")
		if order.Time.IsZero() {
			order.Time = time.Now().UTC()
		}
	} else {
		existing, ok := s.orders[order.ID]
		if !ok {
			return nil, store.ErrNotFound
		}
		if order.Time.IsZero() {
			order.Time = existing.Time
		}
	}
	s.orders[order.ID] = order
	saved := order
	return &saved, nil
}

func (s *Store) DeleteOrder(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.links[domain.LinkOrderItem], id)
	delete(s.orders, id)
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.User) int { return cmpInt64(a.ID, b.ID) })
	return users, nil
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.User
	for _, u := range s.users {
		if strings.ToLower(u.Email) != email {
			continue
		}
		if found == nil || u.ID < found.ID {
			match := u
			found = &match
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (s *Store) FindUserByUsername(_ context.Context, username string) (*domain.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.ToLower(u.Username) == username {
			match := u
			return &match, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) SaveUser(_ context.Context, user domain.User) (*domain.User, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Email == "" && user.Username == "" {
		return nil, store.ErrValidation
	}
	if user.Role == "" {
		user.Role = domain.RoleCustomer
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.ID == user.ID {
			continue
		}
		if user.Username != "" && strings.ToLower(existing.Username) == user.Username {
			return nil, fmt.Errorf("%w: username already exists", store.ErrValidation)
		}
	}

	if user.ID == 0 {
		user.ID = s.seq("user")
	} else if _, ok := s.users[user.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.users[user.ID] = user
	saved := user
	return &saved, nil
}

func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *Store) OwnerExists(_ context.Context, kind domain.LinkKind, ownerID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.links[kind]; !ok {
		return false, fmt.Errorf("%w: unknown link kind %q", store.ErrValidation, kind)
	}
	return s.ownerPresent(kind, ownerID), nil
}

// ownerPresent expects s.mu to be held.
func (s *Store) ownerPresent(kind domain.LinkKind, ownerID int64) bool {
	switch kind {
	case domain.LinkItemIngredient:
		_, ok := s.items[ownerID]
		return ok
	case domain.LinkOrderItem:
		_, ok := s.orders[ownerID]
		return ok
	}
	return false
}

func (s *Store) ListLinks(_ context.Context, kind domain.LinkKind, ownerID int64) ([]domain.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byOwner, ok := s.links[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown link kind %q", store.ErrValidation, kind)
	}
	current := byOwner[ownerID]
	links := make([]domain.Link, 0, len(current))
	for counterpart, qty := range current {
		links = append(links, domain.Link{OwnerID: ownerID, CounterpartID: counterpart, Quantity: qty})
	}
	slices.SortFunc(links, func(a, b domain.Link) int { return cmpInt64(a.CounterpartID, b.CounterpartID) })
	return links, nil
}

func (s *Store) DeleteLinksByOwner(_ context.Context, kind domain.LinkKind, ownerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byOwner, ok := s.links[kind]
	if !ok {
		return fmt.Errorf("%w: unknown link kind %q", store.ErrValidation, kind)
	}
	delete(byOwner, ownerID)
	return nil
}

// ApplyLinkDiff stages the diff on a copy of the owner's links and swaps it
// in only when every operation succeeded. The owner is checked again under
// the write lock, so a concurrent delete yields ErrNotFound. Inserts must not collide and
// updates/deletes must find their row, otherwise ErrConflict is returned.
func (s *Store) ApplyLinkDiff(_ context.Context, kind domain.LinkKind, ownerID int64, diff domain.LinkDiff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byOwner, ok := s.links[kind]
	if !ok {
		return fmt.Errorf("%w: unknown link kind %q", store.ErrValidation, kind)
	}
	if !s.ownerPresent(kind, ownerID) {
		return fmt.Errorf("%w: owner %d", store.ErrNotFound, ownerID)
	}

	staged := make(map[int64]int, len(byOwner[ownerID])+len(diff.Inserts))
	for counterpart, qty := range byOwner[ownerID] {
		staged[counterpart] = qty
	}

	for _, link := range diff.Deletes {
		if _, exists := staged[link.CounterpartID]; !exists {
			return fmt.Errorf("%w: link %d->%d already removed", store.ErrConflict, ownerID, link.CounterpartID)
		}
		delete(staged, link.CounterpartID)
	}
	for _, link := range diff.Updates {
		if link.Quantity < 0 {
			return store.ErrValidation
		}
		if _, exists := staged[link.CounterpartID]; !exists {
			return fmt.Errorf("%w: link %d->%d no longer exists", store.ErrConflict, ownerID, link.CounterpartID)
		}
		staged[link.CounterpartID] = link.Quantity
	}
	for _, link := range diff.Inserts {
		if link.Quantity < 0 {
			return store.ErrValidation
		}
		if _, exists := staged[link.CounterpartID]; exists {
			return fmt.Errorf("%w: link %d->%d already exists", store.ErrConflict, ownerID, link.CounterpartID)
		}
		if !s.counterpartExists(kind, link.CounterpartID) {
			return fmt.Errorf("%w: unknown counterpart %d", store.ErrValidation, link.CounterpartID)
		}
		staged[link.CounterpartID] = link.Quantity
	}

	if len(staged) == 0 {
		delete(byOwner, ownerID)
		return nil
	}
	byOwner[ownerID] = staged
	return nil
}

func (s *Store) counterpartExists(kind domain.LinkKind, id int64) bool {
	switch kind {
	case domain.LinkItemIngredient:
		_, ok := s.ingredients[id]
		return ok
	case domain.LinkOrderItem:
		_, ok := s.items[id]
		return ok
	}
	return false
}

func cmpInt64(a int64, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpString(a string, b string) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
