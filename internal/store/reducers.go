package store

import (
	"time"

	"github.com/spitkorean/billing-service/internal/domain"
)

// Reducers are pure: each receives a cloned state and returns the next
// state. All store writes flow through them.

type toggleProduct struct {
	ID domain.ProductID
}

func (a toggleProduct) Reduce(s State) State {
	if s.Selection.Contains(a.ID) {
		kept := s.Selection.SelectedProducts[:0]
		for _, id := range s.Selection.SelectedProducts {
			if id != a.ID {
				kept = append(kept, id)
			}
		}
		s.Selection.SelectedProducts = kept
		return s
	}
	if len(s.Selection.SelectedProducts) >= domain.MaxSelectedProducts {
		return s
	}
	s.Selection.SelectedProducts = append(s.Selection.SelectedProducts, a.ID)
	return s
}

type setProducts struct {
	IDs []domain.ProductID
}

func (a setProducts) Reduce(s State) State {
	s.Selection.SelectedProducts = append([]domain.ProductID(nil), a.IDs...)
	return s
}

type clearSelection struct{}

func (clearSelection) Reduce(s State) State {
	s.Selection = domain.NewSelection()
	return s
}

type setBillingCycle struct {
	Cycle domain.BillingCycle
}

func (a setBillingCycle) Reduce(s State) State {
	s.Selection.BillingCycle = a.Cycle
	return s
}

type setDiscountCode struct {
	Code domain.DiscountCode
}

func (a setDiscountCode) Reduce(s State) State {
	code := a.Code
	s.Selection.DiscountCode = &code
	return s
}

type clearDiscountCode struct{}

func (clearDiscountCode) Reduce(s State) State {
	s.Selection.DiscountCode = nil
	return s
}

type setCheckoutStep struct {
	Step domain.CheckoutStep
}

func (a setCheckoutStep) Reduce(s State) State {
	s.Selection.CheckoutStep = a.Step
	return s
}

type setSubscriptions struct {
	Subs []domain.Subscription
}

func (a setSubscriptions) Reduce(s State) State {
	s.Subscriptions = make(map[string]domain.Subscription, len(a.Subs))
	for _, sub := range a.Subs {
		s.Subscriptions[sub.ID] = sub
	}
	return s
}

type upsertSubscription struct {
	Sub domain.Subscription
}

func (a upsertSubscription) Reduce(s State) State {
	s.Subscriptions[a.Sub.ID] = a.Sub
	return s
}

type beginTransition struct {
	ID   string
	Prev domain.Subscription
}

func (a beginTransition) Reduce(s State) State {
	s.Pending[a.ID] = a.Prev
	return s
}

type applyOptimistic struct {
	ID  string
	Sub domain.Subscription
}

func (a applyOptimistic) Reduce(s State) State {
	if _, inFlight := s.Pending[a.ID]; !inFlight {
		return s
	}
	s.Subscriptions[a.ID] = a.Sub
	return s
}

type reconcileConfirmed struct {
	ID  string
	Sub domain.Subscription
}

func (a reconcileConfirmed) Reduce(s State) State {
	s.Subscriptions[a.ID] = a.Sub
	delete(s.Pending, a.ID)
	s.LastError = ""
	return s
}

type reconcileRejected struct {
	ID  string
	Err error
}

func (a reconcileRejected) Reduce(s State) State {
	if prev, inFlight := s.Pending[a.ID]; inFlight {
		s.Subscriptions[a.ID] = prev
		delete(s.Pending, a.ID)
	}
	if a.Err != nil {
		s.LastError = a.Err.Error()
	}
	return s
}

type markElapsed struct {
	Now time.Time
}

func (a markElapsed) Reduce(s State) State {
	for id, sub := range s.Subscriptions {
		if _, inFlight := s.Pending[id]; inFlight {
			continue
		}
		if sub.CurrentPeriodEnd.IsZero() || a.Now.Before(sub.CurrentPeriodEnd) {
			continue
		}
		switch {
		case sub.CancelAtPeriodEnd && CanTransition(sub.Status, domain.SubscriptionStatusCancelled):
			when := sub.CurrentPeriodEnd
			sub.Status = domain.SubscriptionStatusCancelled
			sub.CancelledAt = &when
		case CanTransition(sub.Status, domain.SubscriptionStatusExpired):
			sub.Status = domain.SubscriptionStatusExpired
		default:
			continue
		}
		sub.UpdatedAt = a.Now
		s.Subscriptions[id] = sub
	}
	return s
}
