package presenter

import (
	"slices"
	"strings"
	"time"

	"github.com/preorder/preorder-cli/internal/models"
)

// SortNewestFirst orders by creation time, newest first. Orders without a
// creation time sort last.
func SortNewestFirst(orders []models.Order) {
	slices.SortStableFunc(orders, func(a, b models.Order) int {
		return createdAt(b).Compare(createdAt(a))
	})
}

// SortForAdmin puts closed (completed or cancelled) orders after open ones,
// then sorts newest first within each group.
func SortForAdmin(orders []models.Order) {
	slices.SortStableFunc(orders, func(a, b models.Order) int {
		ca, cb := a.StatusOrDefault().Closed(), b.StatusOrDefault().Closed()
		if ca != cb {
			if ca {
				return 1
			}
			return -1
		}
		return createdAt(b).Compare(createdAt(a))
	})
}

func createdAt(o models.Order) time.Time {
	if o.CreatedAt == nil {
		return time.Time{}
	}
	return o.CreatedAt.Time
}

// SplitActive separates open orders from closed ones, preserving order.
func SplitActive(orders []models.Order) (active, archived []models.Order) {
	for _, o := range orders {
		if o.StatusOrDefault().Closed() {
			archived = append(archived, o)
		} else {
			active = append(active, o)
		}
	}
	return active, archived
}

// FilterByUsername keeps orders whose username contains query, case-insensitive.
func FilterByUsername(orders []models.Order, query string) []models.Order {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return orders
	}
	var out []models.Order
	for _, o := range orders {
		if strings.Contains(strings.ToLower(o.Username), q) {
			out = append(out, o)
		}
	}
	return out
}

// Dashboard is the admin overview.
type Dashboard struct {
	TotalUsers    int                        `json:"totalUsers"`
	TotalItems    int                        `json:"totalItems"`
	TotalOrders   int                        `json:"totalOrders"`
	ActiveOrders  int                        `json:"activeOrders"`
	OrdersByState map[models.OrderStatus]int `json:"ordersByStatus"`
}

// Summarize counts users, items and orders for the admin dashboard.
func Summarize(users []models.User, items []models.Item, orders []models.Order) Dashboard {
	d := Dashboard{
		TotalUsers:    len(users),
		TotalItems:    len(items),
		TotalOrders:   len(orders),
		OrdersByState: make(map[models.OrderStatus]int, len(models.OrderStatuses)),
	}
	for _, o := range orders {
		st := o.StatusOrDefault()
		d.OrdersByState[st]++
		if !st.Closed() {
			d.ActiveOrders++
		}
	}
	return d
}
