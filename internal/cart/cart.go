// Package cart keeps the order being assembled between invocations.
package cart

import (
	"math"
	"time"

	"github.com/preorder/preorder-cli/internal/models"
)

// Line is one item in the cart.
type Line struct {
	ItemID   string  `json:"itemId"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Subtotal is price times quantity.
func (l Line) Subtotal() float64 {
	return round2(l.Price * float64(l.Quantity))
}

// Cart is the persisted cart contents.
type Cart struct {
	Lines     []Line    `json:"lines"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Add puts qty of item in the cart, increasing the quantity of an existing line.
func (c *Cart) Add(item models.Item, qty int) Line {
	if qty < 1 {
		qty = 1
	}
	id := item.ID.String()
	for i := range c.Lines {
		if c.Lines[i].ItemID == id {
			c.Lines[i].Quantity += qty
			return c.Lines[i]
		}
	}
	line := Line{ItemID: id, Name: item.Name, Price: item.Price, Quantity: qty}
	c.Lines = append(c.Lines, line)
	return line
}

// Remove drops the line for itemID. It reports whether a line was removed.
func (c *Cart) Remove(itemID string) bool {
	for i := range c.Lines {
		if c.Lines[i].ItemID == itemID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return true
		}
	}
	return false
}

// SetQuantity changes a line's quantity. A quantity of zero or less removes
// the line. It reports whether the item was in the cart.
func (c *Cart) SetQuantity(itemID string, qty int) bool {
	if qty <= 0 {
		return c.Remove(itemID)
	}
	for i := range c.Lines {
		if c.Lines[i].ItemID == itemID {
			c.Lines[i].Quantity = qty
			return true
		}
	}
	return false
}

// Find returns the line for itemID.
func (c *Cart) Find(itemID string) (Line, bool) {
	for _, l := range c.Lines {
		if l.ItemID == itemID {
			return l, true
		}
	}
	return Line{}, false
}

// Total is the sum of all line subtotals.
func (c *Cart) Total() float64 {
	var total float64
	for _, l := range c.Lines {
		total += l.Price * float64(l.Quantity)
	}
	return round2(total)
}

// Count is the number of units across all lines.
func (c *Cart) Count() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool {
	return len(c.Lines) == 0
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Lines = nil
}

// ToOrder builds and validates the order placement body.
func (c *Cart) ToOrder(people int, requiredBy time.Time, notes string, now time.Time) (models.NewOrder, error) {
	items := make([]models.OrderItem, 0, len(c.Lines))
	for _, l := range c.Lines {
		items = append(items, models.OrderItem{
			ItemID:   l.ItemID,
			Name:     l.Name,
			Price:    l.Price,
			Quantity: l.Quantity,
		})
	}
	order := models.NewOrder{
		Items:              items,
		TotalPrice:         c.Total(),
		People:             people,
		RequiredByDateTime: models.NewTimestamp(requiredBy),
		Notes:              notes,
	}
	if err := order.Validate(now); err != nil {
		return models.NewOrder{}, err
	}
	return order, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
