package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spitkorean/billing-service/internal/domain"
	"github.com/spitkorean/billing-service/pkg/logger"
)

func TestManagerReturnsSameStorePerUser(t *testing.T) {
	m := NewManager(logger.New(logger.ERROR))

	assert.Same(t, m.ForUser("user-1"), m.ForUser("user-1"))
	assert.NotSame(t, m.ForUser("user-1"), m.ForUser("user-2"))
}

func TestManagerIsolatesUserState(t *testing.T) {
	m := NewManager(logger.New(logger.ERROR))

	require.NoError(t, m.ForUser("user-1").SetProducts([]domain.ProductID{domain.ProductTalk}))
	m.ForUser("user-1").UpsertSubscription(activeSub("sub-1"))

	// Another user's store starts clean: no selection, no entitlement.
	other := m.ForUser("user-2")
	assert.Empty(t, other.Selection().SelectedProducts)
	assert.False(t, other.HasActiveSubscription(domain.ProductTalk))
	_, ok := other.Subscription("sub-1")
	assert.False(t, ok)

	assert.True(t, m.ForUser("user-1").HasActiveSubscription(domain.ProductTalk))
}
