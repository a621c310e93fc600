package completion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/preorder/preorder-cli/internal/models"
)

// Source fetches the lists the cache holds. A nil slice with a nil error
// means the section is not available to the caller and is left untouched.
type Source interface {
	Items(ctx context.Context) ([]models.Item, error)
	Users(ctx context.Context) ([]models.User, error)
	Orders(ctx context.Context) ([]models.Order, error)
}

// RefreshResult contains the outcome of a refresh.
type RefreshResult struct {
	ItemsCount  int
	UsersCount  int
	OrdersCount int
	ItemsErr    error
	UsersErr    error
	OrdersErr   error
}

// HasError returns true if any section failed.
func (r RefreshResult) HasError() bool {
	return r.ItemsErr != nil || r.UsersErr != nil || r.OrdersErr != nil
}

// AllFailed returns true if no section could be refreshed.
func (r RefreshResult) AllFailed() bool {
	return r.ItemsErr != nil && r.UsersErr != nil && r.OrdersErr != nil
}

// Error returns the combined section errors, or nil.
func (r RefreshResult) Error() error {
	var errs []error
	if r.ItemsErr != nil {
		errs = append(errs, fmt.Errorf("items: %w", r.ItemsErr))
	}
	if r.UsersErr != nil {
		errs = append(errs, fmt.Errorf("users: %w", r.UsersErr))
	}
	if r.OrdersErr != nil {
		errs = append(errs, fmt.Errorf("orders: %w", r.OrdersErr))
	}
	return errors.Join(errs...)
}

// Refresher fills the cache from a Source.
type Refresher struct {
	store  *Store
	source Source
}

// NewRefresher creates a cache refresher.
func NewRefresher(store *Store, source Source) *Refresher {
	return &Refresher{store: store, source: source}
}

// RefreshAll fetches every section in parallel and updates the cache.
// A failed section keeps its previously cached data.
func (r *Refresher) RefreshAll(ctx context.Context) RefreshResult {
	var (
		result RefreshResult
		items  []models.Item
		users  []models.User
		orders []models.Order
		wg     sync.WaitGroup
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		items, result.ItemsErr = r.source.Items(ctx)
	}()
	go func() {
		defer wg.Done()
		users, result.UsersErr = r.source.Users(ctx)
	}()
	go func() {
		defer wg.Done()
		orders, result.OrdersErr = r.source.Orders(ctx)
	}()
	wg.Wait()

	if result.ItemsErr == nil && items != nil {
		if err := r.store.UpdateItems(items); err != nil {
			result.ItemsErr = err
		} else {
			result.ItemsCount = len(items)
		}
	}
	if result.UsersErr == nil && users != nil {
		if err := r.store.UpdateUsers(users); err != nil {
			result.UsersErr = err
		} else {
			result.UsersCount = len(users)
		}
	}
	if result.OrdersErr == nil && orders != nil {
		if err := r.store.UpdateOrders(orders); err != nil {
			result.OrdersErr = err
		} else {
			result.OrdersCount = len(orders)
		}
	}

	return result
}
