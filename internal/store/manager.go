package store

import (
	"sync"

	"github.com/spitkorean/billing-service/pkg/logger"
)

// Manager hands out one Store per authenticated user. Selection and
// subscription state belong to a single user's session; sharing a store
// across users would leak one user's selection and entitlements into
// another's requests.
type Manager struct {
	mu     sync.Mutex
	stores map[string]*Store
	log    *logger.Logger
}

// NewManager creates an empty store manager
func NewManager(log *logger.Logger) *Manager {
	return &Manager{
		stores: make(map[string]*Store),
		log:    log,
	}
}

// ForUser returns the user's store, creating it on first use
func (m *Manager) ForUser(userID string) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.stores[userID]
	if !ok {
		st = New(m.log)
		m.stores[userID] = st
	}
	return st
}
