package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"kitchenpos/backend/internal/domain"
	"kitchenpos/backend/internal/lock"
	"kitchenpos/backend/internal/reconcile"
	"kitchenpos/backend/internal/reports"
	"kitchenpos/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo       store.Repository
	recipes    *reconcile.Reconciler
	orderLines *reconcile.Reconciler
	reports    *reports.Engine
	logger     zerolog.Logger
}

func New(repo store.Repository, locker lock.OwnerLocker, logger zerolog.Logger) *Service {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}

	return &Service{
		repo:       repo,
		recipes:    reconcile.NewItemIngredientReconciler(repo, locker, logger),
		orderLines: reconcile.NewOrderItemReconciler(repo, locker, logger),
		reports:    reports.NewEngine(repo, logger),
		logger:     logger.With().Str("component", "service").Logger(),
	}
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.ItemCategory, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) ListItems(ctx context.Context) ([]domain.Item, error) {
	return s.repo.ListItems(ctx)
}

func (s *Service) GetItem(ctx context.Context, id int64) (domain.Item, error) {
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return domain.Item{}, err
	}
	return *item, nil
}

// SaveItem creates or updates the item and then reconciles its recipe
// against desired. A nil desired map leaves the recipe untouched.
func (s *Service) SaveItem(ctx context.Context, item domain.Item, desired domain.DesiredLinks) (domain.Item, error) {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" || item.Price.IsNegative() {
		return domain.Item{}, fmt.Errorf("%w: item needs a name and a non-negative price", store.ErrValidation)
	}
	if err := reconcile.ValidateDesired(desired); err != nil {
		return domain.Item{}, err
	}

	saved, err := s.repo.SaveItem(ctx, item)
	if err != nil {
		return domain.Item{}, err
	}

	res, err := s.recipes.Reconcile(ctx, saved.ID, desired)
	if err != nil {
		if item.ID == 0 {
			s.discardCreated(ctx, "item", saved.ID, s.repo.DeleteItem)
		}
		return domain.Item{}, err
	}
	s.logAudit(ctx, "item_save", saved.ID, res)
	return *saved, nil
}

func (s *Service) DeleteItem(ctx context.Context, id int64) error {
	if err := s.repo.DeleteItem(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "item_delete", id, reconcile.Result{})
	return nil
}

func (s *Service) ListIngredientsByItem(ctx context.Context, itemID int64) ([]domain.IngredientWithQuantity, error) {
	if _, err := s.repo.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.repo.ListIngredientsByItem(ctx, itemID)
}

func (s *Service) ListIngredients(ctx context.Context) ([]domain.Ingredient, error) {
	return s.repo.ListIngredients(ctx)
}

func (s *Service) GetIngredientsByIDs(ctx context.Context, ids []int64) ([]domain.Ingredient, error) {
	return s.repo.GetIngredientsByIDs(ctx, ids)
}

func (s *Service) SaveIngredient(ctx context.Context, ing domain.Ingredient) (domain.Ingredient, error) {
	ing.Name = strings.TrimSpace(ing.Name)
	if ing.Name == "" || ing.Restock < 0 || ing.Price.IsNegative() {
		return domain.Ingredient{}, fmt.Errorf("%w: ingredient needs a name, non-negative restock and price", store.ErrValidation)
	}

	saved, err := s.repo.SaveIngredient(ctx, ing)
	if err != nil {
		return domain.Ingredient{}, err
	}
	s.logAudit(ctx, "ingredient_save", saved.ID, reconcile.Result{})
	return *saved, nil
}

func (s *Service) DeleteIngredient(ctx context.Context, id int64) error {
	if err := s.repo.DeleteIngredient(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "ingredient_delete", id, reconcile.Result{})
	return nil
}

func (s *Service) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.repo.ListOrders(ctx)
}

func (s *Service) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

// SaveOrder creates or updates the order and reconciles its lines.
func (s *Service) SaveOrder(ctx context.Context, order domain.Order, desired domain.DesiredLinks) (domain.Order, error) {
	if order.Price.IsNegative() {
		return domain.Order{}, fmt.Errorf("%w: order price must not be negative", store.ErrValidation)
	}
	if err := reconcile.ValidateDesired(desired); err != nil {
		return domain.Order{}, err
	}
	switch order.Status {
	case "", domain.OrderStatusPending, domain.OrderStatusCompleted, domain.OrderStatusCancelled:
	default:
		return domain.Order{}, fmt.Errorf("%w: unknown order status %q", store.ErrValidation, order.Status)
	}
	// A zero time on update keeps the stored one so reports do not move.
	if order.ID == 0 && order.Time.IsZero() {
		order.Time = time.Now().UTC()
	}

	saved, err := s.repo.SaveOrder(ctx, order)
	if err != nil {
		return domain.Order{}, err
	}

	res, err := s.orderLines.Reconcile(ctx, saved.ID, desired)
	if err != nil {
		if order.ID == 0 {
			s.discardCreated(ctx, "order", saved.ID, s.repo.DeleteOrder)
		}
		return domain.Order{}, err
	}
	s.logAudit(ctx, "order_save", saved.ID, res)
	return *saved, nil
}

func (s *Service) DeleteOrder(ctx context.Context, id int64) error {
	if err := s.repo.DeleteOrder(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "order_delete", id, reconcile.Result{})
	return nil
}

func (s *Service) ListItemsByOrder(ctx context.Context, orderID int64) ([]domain.ItemWithQuantity, error) {
	if _, err := s.repo.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListItemsByOrder(ctx, orderID)
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.repo.ListUsers(ctx)
}

// SaveUser stores the account with a bcrypt hash of req.Password. Updating
// without a password keeps the current hash.
func (s *Service) SaveUser(ctx context.Context, req domain.UserSaveRequest) (domain.User, error) {
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role == "" {
		role = domain.RoleCustomer
	}
	if !IsKnownRole(role) {
		return domain.User{}, fmt.Errorf("%w: unknown role %q", store.ErrValidation, req.Role)
	}

	user := domain.User{
		ID:       req.ID,
		Username: req.Username,
		Email:    req.Email,
		Role:     role,
	}

	switch {
	case req.Password != "":
		if len(req.Password) < 8 {
			return domain.User{}, fmt.Errorf("%w: password must be at least 8 characters", store.ErrValidation)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.User{}, err
		}
		user.Password = string(hash)
	case req.ID != 0:
		existing, err := s.findUserByID(ctx, req.ID)
		if err != nil {
			return domain.User{}, err
		}
		user.Password = existing.Password
	}

	saved, err := s.repo.SaveUser(ctx, user)
	if err != nil {
		return domain.User{}, err
	}
	s.logAudit(ctx, "user_save", saved.ID, reconcile.Result{})
	return *saved, nil
}

func (s *Service) findUserByID(ctx context.Context, id int64) (domain.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return domain.User{}, err
	}
	for _, u := range users {
		if u.ID == id {
			return u, nil
		}
	}
	return domain.User{}, store.ErrNotFound
}

func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "user_delete", id, reconcile.Result{})
	return nil
}

// ResolveRole returns the stored role for a username or email. Unknown
// identities are customers.
func (s *Service) ResolveRole(ctx context.Context, identity string) (string, error) {
	user, err := s.lookupIdentity(ctx, identity)
	if errors.Is(err, store.ErrNotFound) {
		return domain.RoleCustomer, nil
	}
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

// ResolveOrCreateRole behaves like ResolveRole for email identities but
// provisions a customer account the first time an email is seen.
func (s *Service) ResolveOrCreateRole(ctx context.Context, email string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return domain.User{}, fmt.Errorf("%w: a valid email is required", store.ErrValidation)
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if err == nil {
		return *user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, err
	}

	created, err := s.repo.SaveUser(ctx, domain.User{Email: email, Role: domain.RoleCustomer})
	if err != nil {
		return domain.User{}, err
	}
	s.logger.Info().Int64("user_id", created.ID).Msg("customer account provisioned")
	return *created, nil
}

func (s *Service) lookupIdentity(ctx context.Context, identity string) (*domain.User, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, store.ErrNotFound
	}
	if strings.Contains(identity, "@") {
		return s.repo.FindUserByEmail(ctx, identity)
	}
	return s.repo.FindUserByUsername(ctx, identity)
}

func (s *Service) SalesReport(ctx context.Context, start time.Time, end time.Time) ([]domain.SalesReportRow, error) {
	return s.reports.Sales(ctx, start, end)
}

func (s *Service) IngredientUsageReport(ctx context.Context, start time.Time, end time.Time) ([]domain.IngredientUsageRow, error) {
	return s.reports.IngredientUsage(ctx, start, end)
}

func (s *Service) RestockReport(ctx context.Context) ([]domain.RestockRow, error) {
	return s.reports.Restock(ctx)
}

func (s *Service) ExcessItemsReport(ctx context.Context, start time.Time, end time.Time) ([]domain.Item, error) {
	return s.reports.ExcessItems(ctx, start, end)
}

func (s *Service) OrderedTogetherReport(ctx context.Context, start time.Time, end time.Time) ([]domain.OrderedTogetherRow, error) {
	return s.reports.OrderedTogether(ctx, start, end)
}

// discardCreated removes a row created earlier in the same call whose links
// could not be written.
func (s *Service) discardCreated(ctx context.Context, entity string, id int64, del func(context.Context, int64) error) {
	if err := del(context.WithoutCancel(ctx), id); err != nil {
		s.logger.Warn().Err(err).Str("entity", entity).Int64("id", id).Msg("failed to discard row after link failure")
	}
}

func IsKnownRole(role string) bool {
	switch role {
	case domain.RoleCustomer, domain.RoleServer, domain.RoleManager, domain.RoleAdmin:
		return true
	}
	return false
}

func (s *Service) logAudit(ctx context.Context, action string, entityID int64, res reconcile.Result) {
	actor, _ := ActorFromContext(ctx)
	event := s.logger.Info().
		Str("action", action).
		Int64("entity_id", entityID).
		Str("actor", defaultString(actor.Subject, "anonymous"))
	if res.Changed() {
		event = event.Int("links_inserted", res.Inserted).Int("links_updated", res.Updated).Int("links_deleted", res.Deleted)
	}
	event.Msg("audit")
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
