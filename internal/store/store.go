package store

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spitkorean/billing-service/internal/catalog"
	"github.com/spitkorean/billing-service/internal/domain"
	"github.com/spitkorean/billing-service/pkg/logger"
)

// State is everything the store holds for one user session: the
// authoritative-copy subscriptions, per-id pending-transition markers,
// the checkout selection, and the last recorded error.
type State struct {
	Subscriptions map[string]domain.Subscription
	Pending       map[string]domain.Subscription // subscription id -> pre-optimistic snapshot
	Selection     domain.Selection
	LastError     string
}

// clone copies the state so reducers never mutate the committed value
func (s State) clone() State {
	out := State{
		Subscriptions: make(map[string]domain.Subscription, len(s.Subscriptions)),
		Pending:       make(map[string]domain.Subscription, len(s.Pending)),
		Selection:     s.Selection,
		LastError:     s.LastError,
	}
	for id, sub := range s.Subscriptions {
		out.Subscriptions[id] = sub
	}
	for id, prev := range s.Pending {
		out.Pending[id] = prev
	}
	out.Selection.SelectedProducts = append([]domain.ProductID(nil), s.Selection.SelectedProducts...)
	return out
}

// Listener observes committed state
type Listener func(State)

// Store is the single writer for billing state. Every mutation goes
// through a reducer applied under the write lock; readers subscribe to
// change notifications instead of polling.
type Store struct {
	mu        sync.Mutex
	state     State
	listeners map[int]Listener
	nextID    int
	log       *logger.Logger
}

// New creates an empty store
func New(log *logger.Logger) *Store {
	return &Store{
		state: State{
			Subscriptions: make(map[string]domain.Subscription),
			Pending:       make(map[string]domain.Subscription),
			Selection:     domain.NewSelection(),
		},
		listeners: make(map[int]Listener),
		log:       log,
	}
}

// Action is a pure state transition
type Action interface {
	Reduce(State) State
}

// Reduce applies an action to a state copy. Exposed so transitions can
// be tested without a store instance.
func Reduce(s State, a Action) State {
	return a.Reduce(s.clone())
}

// Dispatch commits an action and notifies subscribers
func (st *Store) Dispatch(a Action) {
	st.mu.Lock()
	st.state = Reduce(st.state, a)
	snapshot := st.state.clone()
	listeners := make([]Listener, 0, len(st.listeners))
	for _, l := range st.listeners {
		listeners = append(listeners, l)
	}
	st.mu.Unlock()

	// Notify outside the lock with an immutable snapshot.
	for _, l := range listeners {
		l(snapshot)
	}
}

// Snapshot returns a copy of the committed state
func (st *Store) Snapshot() State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state.clone()
}

// Subscribe registers a listener; the returned function removes it
func (st *Store) Subscribe(l Listener) func() {
	st.mu.Lock()
	defer st.mu.Unlock()

	id := st.nextID
	st.nextID++
	st.listeners[id] = l

	return func() {
		st.mu.Lock()
		defer st.mu.Unlock()
		delete(st.listeners, id)
	}
}

// --- Selection operations ---

// ToggleProduct adds or removes a product from the selection. Adding a
// fifth product fails the max-bundle guard.
func (st *Store) ToggleProduct(id domain.ProductID) error {
	st.mu.Lock()
	sel := st.state.Selection
	if !sel.Contains(id) && len(sel.SelectedProducts) >= domain.MaxSelectedProducts {
		st.mu.Unlock()
		return domain.ErrValidationFailed
	}
	st.mu.Unlock()

	st.Dispatch(toggleProduct{ID: id})
	return nil
}

// SetProducts replaces the selection wholesale
func (st *Store) SetProducts(ids []domain.ProductID) error {
	sel := domain.Selection{SelectedProducts: ids, BillingCycle: domain.BillingCycleMonthly}
	if err := sel.Validate(); err != nil {
		return err
	}
	st.Dispatch(setProducts{IDs: ids})
	return nil
}

// ClearSelection resets the checkout session
func (st *Store) ClearSelection() {
	st.Dispatch(clearSelection{})
}

// SetBillingCycle switches between monthly and annual billing
func (st *Store) SetBillingCycle(c domain.BillingCycle) error {
	if !c.Valid() {
		return domain.ErrValidationFailed
	}
	st.Dispatch(setBillingCycle{Cycle: c})
	return nil
}

// SetDiscountCode caches validated discount terms on the session
func (st *Store) SetDiscountCode(code domain.DiscountCode) {
	st.Dispatch(setDiscountCode{Code: code})
}

// ClearDiscountCode drops the cached discount terms
func (st *Store) ClearDiscountCode() {
	st.Dispatch(clearDiscountCode{})
}

// SetCheckoutStep advances the checkout flow
func (st *Store) SetCheckoutStep(step domain.CheckoutStep) {
	st.Dispatch(setCheckoutStep{Step: step})
}

// --- Subscription operations ---

// SetSubscriptions replaces the cached subscription set with the
// authority's copy (used after a full refresh).
func (st *Store) SetSubscriptions(subs []domain.Subscription) {
	st.Dispatch(setSubscriptions{Subs: subs})
}

// UpsertSubscription stores one server-confirmed subscription
func (st *Store) UpsertSubscription(sub domain.Subscription) {
	st.Dispatch(upsertSubscription{Sub: sub})
}

// BeginTransition marks a subscription as having an in-flight
// transition and records its current value for rollback. A second
// transition on the same id is rejected with OperationInProgress; the
// check and the marker are set under one lock so concurrent callers
// cannot both pass.
func (st *Store) BeginTransition(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, inFlight := st.state.Pending[id]; inFlight {
		st.log.Warnw("Transition already in flight", "subscriptionID", id)
		return domain.ErrOperationInProgress
	}
	sub, ok := st.state.Subscriptions[id]
	if !ok {
		return domain.ErrNotFound
	}
	st.state = Reduce(st.state, beginTransition{ID: id, Prev: sub})
	return nil
}

// ApplyOptimistic updates a pending subscription ahead of the
// authority's answer. The pre-transition value stays recorded until
// the transition is reconciled.
func (st *Store) ApplyOptimistic(id string, sub domain.Subscription) {
	st.Dispatch(applyOptimistic{ID: id, Sub: sub})
}

// ReconcileConfirmed commits the authority's subscription object,
// overwriting whatever the optimistic update produced. Client-side
// optimism never wins a conflict.
func (st *Store) ReconcileConfirmed(id string, server domain.Subscription) {
	st.Dispatch(reconcileConfirmed{ID: id, Sub: server})
}

// ReconcileRejected rolls the subscription back to its pre-transition
// value and records the error.
func (st *Store) ReconcileRejected(id string, err error) {
	st.Dispatch(reconcileRejected{ID: id, Err: err})
}

// --- Derived reads ---

// HasActiveSubscription reports whether any trial or active
// subscription covers the product.
func (st *Store) HasActiveSubscription(productID domain.ProductID) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	for _, sub := range st.state.Subscriptions {
		if sub.Entitled() && sub.Covers(productID) {
			return true
		}
	}
	return false
}

// Subscription returns a cached subscription by id
func (st *Store) Subscription(id string) (domain.Subscription, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sub, ok := st.state.Subscriptions[id]
	return sub, ok
}

// Selection returns the current checkout selection
func (st *Store) Selection() domain.Selection {
	st.mu.Lock()
	defer st.mu.Unlock()
	sel := st.state.Selection
	sel.SelectedProducts = append([]domain.ProductID(nil), sel.SelectedProducts...)
	return sel
}

// TotalMonthlyCost sums the list price of every entitled product, the
// figure the account page shows next to "your plan".
func (st *Store) TotalMonthlyCost(cat *catalog.Catalog) decimal.Decimal {
	st.mu.Lock()
	defer st.mu.Unlock()

	total := decimal.Zero
	for _, sub := range st.state.Subscriptions {
		if !sub.Entitled() {
			continue
		}
		for _, id := range sub.ProductIDs {
			if p, ok := cat.Product(id); ok {
				total = total.Add(p.Price)
			}
		}
	}
	return total
}

// MarkElapsed expires subscriptions whose period end has passed,
// applying cancelAtPeriodEnd where set. Evaluated lazily on refresh
// rather than by a background timer.
func (st *Store) MarkElapsed(now time.Time) {
	st.Dispatch(markElapsed{Now: now})
}
