package completion

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preorder/preorder-cli/internal/models"
)

// fakeSource returns canned lists and errors.
type fakeSource struct {
	items     []models.Item
	users     []models.User
	orders    []models.Order
	itemsErr  error
	usersErr  error
	ordersErr error
}

func (f fakeSource) Items(context.Context) ([]models.Item, error)   { return f.items, f.itemsErr }
func (f fakeSource) Users(context.Context) ([]models.User, error)   { return f.users, f.usersErr }
func (f fakeSource) Orders(context.Context) ([]models.Order, error) { return f.orders, f.ordersErr }

func TestRefresher_RefreshAll(t *testing.T) {
	store := NewStore(t.TempDir())
	src := fakeSource{
		items:  []models.Item{{ID: "i1", Name: "Naan"}, {ID: "i2", Name: "Dal"}},
		users:  []models.User{{Username: "asha"}},
		orders: []models.Order{{ID: "o1"}},
	}

	result := NewRefresher(store, src).RefreshAll(context.Background())

	require.False(t, result.HasError())
	assert.Equal(t, 2, result.ItemsCount)
	assert.Equal(t, 1, result.UsersCount)
	assert.Equal(t, 1, result.OrdersCount)
	assert.Len(t, store.Items(), 2)
	assert.NoError(t, result.Error())
}

func TestRefresher_NilSectionIsLeftAlone(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.UpdateUsers([]models.User{{Username: "old"}}))

	result := NewRefresher(store, fakeSource{items: []models.Item{}}).RefreshAll(context.Background())

	require.False(t, result.HasError())
	assert.Equal(t, 0, result.UsersCount)
	assert.Equal(t, "old", store.Users()[0].Username)
}

func TestRefresher_PartialFailureKeepsCachedData(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.UpdateItems([]models.Item{{ID: "i9", Name: "Cached"}}))

	src := fakeSource{
		itemsErr: errors.New("kitchen offline"),
		orders:   []models.Order{{ID: "o1"}},
	}
	result := NewRefresher(store, src).RefreshAll(context.Background())

	assert.True(t, result.HasError())
	assert.False(t, result.AllFailed())
	assert.ErrorContains(t, result.Error(), "items: kitchen offline")
	assert.Equal(t, "Cached", store.Items()[0].Name)
	assert.Len(t, store.Orders(), 1)
}

func TestRefreshResult_AllFailed(t *testing.T) {
	boom := errors.New("boom")
	r := RefreshResult{ItemsErr: boom, UsersErr: boom, OrdersErr: boom}
	assert.True(t, r.AllFailed())
	assert.ErrorIs(t, r.Error(), boom)
}
