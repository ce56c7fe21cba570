package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"kitchenpos/backend/internal/domain"
	"kitchenpos/backend/internal/lock"
	"kitchenpos/backend/internal/metrics"
	"kitchenpos/backend/internal/store"
)

// Result counts the junction rows changed by one call.
type Result struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Deleted  int `json:"deleted"`
}

func (r Result) Changed() bool {
	return r.Inserted+r.Updated+r.Deleted > 0
}

// Reconciler keeps the links of one kind equal to a desired
// counterpart -> quantity mapping.
type Reconciler struct {
	kind   domain.LinkKind
	links  store.LinkStore
	locker lock.OwnerLocker
	logger zerolog.Logger
}

func New(kind domain.LinkKind, links store.LinkStore, locker lock.OwnerLocker, logger zerolog.Logger) *Reconciler {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &Reconciler{
		kind:   kind,
		links:  links,
		locker: locker,
		logger: logger.With().Str("component", "reconcile").Str("kind", string(kind)).Logger(),
	}
}

// NewItemIngredientReconciler manages an item's recipe.
func NewItemIngredientReconciler(links store.LinkStore, locker lock.OwnerLocker, logger zerolog.Logger) *Reconciler {
	return New(domain.LinkItemIngredient, links, locker, logger)
}

// NewOrderItemReconciler manages an order's lines.
func NewOrderItemReconciler(links store.LinkStore, locker lock.OwnerLocker, logger zerolog.Logger) *Reconciler {
	return New(domain.LinkOrderItem, links, locker, logger)
}

func (r *Reconciler) Kind() domain.LinkKind {
	return r.kind
}

// Reconcile makes the owner's stored links match desired. A nil map leaves
// the links untouched; an empty map removes all of them. Zero quantities
// count as absent.
func (r *Reconciler) Reconcile(ctx context.Context, ownerID int64, desired domain.DesiredLinks) (Result, error) {
	if err := Validate(ownerID, desired); err != nil {
		r.record("invalid", Result{})
		return Result{}, err
	}
	if desired == nil {
		r.record("noop", Result{})
		return Result{}, nil
	}

	unlock, err := r.locker.Lock(ctx, r.kind, ownerID)
	if err != nil {
		r.record(outcomeOf(err), Result{})
		return Result{}, err
	}
	defer unlock()

	exists, err := r.links.OwnerExists(ctx, r.kind, ownerID)
	if err != nil {
		r.record(outcomeOf(err), Result{})
		return Result{}, err
	}
	if !exists {
		r.record("not_found", Result{})
		return Result{}, fmt.Errorf("%w: %s owner %d", store.ErrNotFound, r.kind, ownerID)
	}

	current, err := r.links.ListLinks(ctx, r.kind, ownerID)
	if err != nil {
		r.record(outcomeOf(err), Result{})
		return Result{}, err
	}

	diff := Plan(ownerID, current, desired)
	res := Result{Inserted: len(diff.Inserts), Updated: len(diff.Updates), Deleted: len(diff.Deletes)}
	if diff.IsEmpty() {
		r.record("noop", res)
		return res, nil
	}

	if err := r.links.ApplyLinkDiff(ctx, r.kind, ownerID, diff); err != nil {
		r.logger.Warn().Err(err).Int64("owner_id", ownerID).Msg("apply link diff failed")
		r.record(outcomeOf(err), Result{})
		return Result{}, err
	}

	r.logger.Debug().
		Int64("owner_id", ownerID).
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Int("deleted", res.Deleted).
		Msg("links reconciled")
	r.record("ok", res)
	return res, nil
}

func (r *Reconciler) record(outcome string, res Result) {
	metrics.RecordReconcile(string(r.kind), outcome, res.Inserted, res.Updated, res.Deleted)
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, store.ErrValidation):
		return "invalid"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "error"
}

// Validate rejects non-positive ids and negative quantities.
func Validate(ownerID int64, desired domain.DesiredLinks) error {
	if ownerID <= 0 {
		return fmt.Errorf("%w: owner id must be positive", store.ErrValidation)
	}
	return ValidateDesired(desired)
}

// ValidateDesired checks a mapping on its own, before the owner exists.
func ValidateDesired(desired domain.DesiredLinks) error {
	for counterpart, qty := range desired {
		if counterpart <= 0 {
			return fmt.Errorf("%w: counterpart id must be positive, got %d", store.ErrValidation, counterpart)
		}
		if qty < 0 {
			return fmt.Errorf("%w: quantity for %d must not be negative", store.ErrValidation, counterpart)
		}
	}
	return nil
}

// Plan computes the diff between the stored links and desired. Every slice of
// the result is ordered by counterpart id.
func Plan(ownerID int64, current []domain.Link, desired domain.DesiredLinks) domain.LinkDiff {
	var diff domain.LinkDiff

	existing := make(map[int64]domain.Link, len(current))
	for _, link := range current {
		existing[link.CounterpartID] = link
	}

	for counterpart, qty := range desired {
		if qty == 0 {
			continue
		}
		link, ok := existing[counterpart]
		switch {
		case !ok:
			diff.Inserts = append(diff.Inserts, domain.Link{OwnerID: ownerID, CounterpartID: counterpart, Quantity: qty})
		case link.Quantity != qty:
			diff.Updates = append(diff.Updates, domain.Link{OwnerID: ownerID, CounterpartID: counterpart, Quantity: qty})
		}
	}

	for counterpart, link := range existing {
		if qty, ok := desired[counterpart]; !ok || qty == 0 {
			diff.Deletes = append(diff.Deletes, link)
		}
	}

	byCounterpart := func(a, b domain.Link) int {
		switch {
		case a.CounterpartID < b.CounterpartID:
			return -1
		case a.CounterpartID > b.CounterpartID:
			return 1
		}
		return 0
	}
	slices.SortFunc(diff.Inserts, byCounterpart)
	slices.SortFunc(diff.Updates, byCounterpart)
	slices.SortFunc(diff.Deletes, byCounterpart)
	return diff
}
