// Package models defines the backend's data transfer objects.
// These types are used by the session manager, the cart and every command
// that reads or writes backend resources.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ID is a backend document identifier. The backend sends either a plain
// string or an extended-JSON object of the form {"$oid": "..."}.
type ID string

// UnmarshalJSON accepts a string, a number or an {"$oid": "..."} object.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
	case '{':
		var obj struct {
			OID string `json:"$oid"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if obj.OID == "" {
			return fmt.Errorf("unsupported id object: %s", data)
		}
		*id = ID(obj.OID)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("unsupported id: %s", data)
		}
		*id = ID(n.String())
	}
	return nil
}

func (id ID) String() string {
	return string(id)
}

// Phone is a contact number. The backend stores it as an integer but older
// records carry strings, so both are accepted.
type Phone string

// UnmarshalJSON accepts a JSON number or string.
func (p *Phone) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = Phone(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if f, err := n.Float64(); err == nil && f == math.Trunc(f) {
		*p = Phone(strconv.FormatFloat(f, 'f', 0, 64))
		return nil
	}
	*p = Phone(n.String())
	return nil
}

// MarshalJSON writes digit-only numbers as JSON integers, matching what the
// backend expects.
func (p Phone) MarshalJSON() ([]byte, error) {
	if p == "" {
		return []byte("null"), nil
	}
	if isDigits(string(p)) {
		if n, err := strconv.ParseInt(string(p), 10, 64); err == nil {
			return []byte(strconv.FormatInt(n, 10)), nil
		}
	}
	return json.Marshal(string(p))
}

// Role is a user's authorization role.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User is the authenticated identity and the admin user listing entry.
type User struct {
	ID       ID     `json:"id,omitempty"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Number   Phone  `json:"number,omitempty"`
	Role     Role   `json:"role,omitempty"`
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return strings.EqualFold(string(u.Role), string(RoleAdmin))
}

// ItemType is the menu section an item belongs to.
type ItemType string

const (
	ItemSoup    ItemType = "SOUP"
	ItemStarter ItemType = "STARTER"
	ItemCurry   ItemType = "CURRY"
	ItemRice    ItemType = "RICE"
	ItemSides   ItemType = "SIDES"
	ItemSweet   ItemType = "SWEET"
	ItemOther   ItemType = "OTHER"
)

// ItemTypes lists item types in menu order.
var ItemTypes = []ItemType{ItemSoup, ItemStarter, ItemCurry, ItemRice, ItemSides, ItemSweet, ItemOther}

var itemTypeNames = map[ItemType]string{
	ItemSoup:    "Soups",
	ItemStarter: "Starters",
	ItemCurry:   "Curries",
	ItemRice:    "Rice & Breads",
	ItemSides:   "Sides",
	ItemSweet:   "Sweets",
	ItemOther:   "Other Items",
}

// DisplayName returns the menu section heading for t.
func (t ItemType) DisplayName() string {
	if name, ok := itemTypeNames[t]; ok {
		return name
	}
	return itemTypeNames[ItemOther]
}

// Normalize maps empty and unknown types to OTHER.
func (t ItemType) Normalize() ItemType {
	if _, ok := itemTypeNames[t]; ok {
		return t
	}
	return ItemOther
}

// ParseItemType parses an item type case-insensitively.
func ParseItemType(s string) (ItemType, error) {
	t := ItemType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := itemTypeNames[t]; !ok {
		return "", fmt.Errorf("unknown item type %q (valid: %s)", s, joinTypes())
	}
	return t, nil
}

func joinTypes() string {
	parts := make([]string, len(ItemTypes))
	for i, t := range ItemTypes {
		parts[i] = strings.ToLower(string(t))
	}
	return strings.Join(parts, ", ")
}

// Item is a menu item.
type Item struct {
	ID          ID       `json:"id,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Price       float64  `json:"price"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	Available   bool     `json:"available"`
	ItemType    ItemType `json:"itemType"`
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "Pending"
	StatusConfirmed OrderStatus = "Confirmed"
	StatusCompleted OrderStatus = "Completed"
	StatusCancelled OrderStatus = "Cancelled"
)

// OrderStatuses lists every status in lifecycle order.
var OrderStatuses = []OrderStatus{StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled}

// ParseOrderStatus parses a status case-insensitively.
func ParseOrderStatus(s string) (OrderStatus, error) {
	for _, st := range OrderStatuses {
		if strings.EqualFold(string(st), strings.TrimSpace(s)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// Closed reports whether the order can no longer change.
func (s OrderStatus) Closed() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// OrderItem is one line of an order.
type OrderItem struct {
	ItemID   string  `json:"itemId"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Order is a placed pre-order.
type Order struct {
	ID                 ID          `json:"id,omitempty"`
	Username           string      `json:"username,omitempty"`
	Items              []OrderItem `json:"items"`
	TotalPrice         float64     `json:"totalPrice"`
	People             int         `json:"people"`
	Status             OrderStatus `json:"status,omitempty"`
	RequiredByDateTime *Timestamp  `json:"requiredByDateTime,omitempty"`
	Notes              string      `json:"notes"`
	CreatedAt          *Timestamp  `json:"createdAt,omitempty"`
}

// StatusOrDefault returns the order's status, treating a missing one as pending.
func (o Order) StatusOrDefault() OrderStatus {
	if o.Status == "" {
		return StatusPending
	}
	return o.Status
}

// Cancellable reports whether the customer may still cancel. Once the
// kitchen confirms an order it can only be changed by an admin.
func (o Order) Cancellable() bool {
	return o.StatusOrDefault() == StatusPending
}

// ItemsTotal sums price times quantity over the order lines.
func (o Order) ItemsTotal() float64 {
	var total float64
	for _, it := range o.Items {
		total += it.Price * float64(it.Quantity)
	}
	return math.Round(total*100) / 100
}

// OrderUpdate is the body of an order update. The backend replaces the
// whole order, so every editable field is sent.
type OrderUpdate struct {
	Items              []OrderItem `json:"items"`
	People             int         `json:"people"`
	TotalPrice         float64     `json:"totalPrice"`
	Status             OrderStatus `json:"status"`
	RequiredByDateTime *Timestamp  `json:"requiredByDateTime"`
	Notes              string      `json:"notes"`
}

// Update returns an update body that preserves o with the given status.
func (o Order) Update(status OrderStatus) OrderUpdate {
	total := o.TotalPrice
	if total == 0 {
		total = o.ItemsTotal()
	}
	return OrderUpdate{
		Items:              o.Items,
		People:             o.People,
		TotalPrice:         total,
		Status:             status,
		RequiredByDateTime: o.RequiredByDateTime,
		Notes:              o.Notes,
	}
}

// NewOrder is the body of an order placement.
type NewOrder struct {
	Items              []OrderItem `json:"items"`
	TotalPrice         float64     `json:"totalPrice"`
	People             int         `json:"people"`
	RequiredByDateTime Timestamp   `json:"requiredByDateTime"`
	Notes              string      `json:"notes"`
}

// Registration is the body of an account sign-up.
type Registration struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Number   Phone  `json:"number,omitempty"`
	Role     Role   `json:"role"`
}

// ProfileUpdate is the body of a profile edit. Empty fields are not sent.
type ProfileUpdate struct {
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Number Phone  `json:"number,omitempty"`
	Role   Role   `json:"role,omitempty"`
}

// Apply merges the non-empty fields of p into u.
func (p ProfileUpdate) Apply(u User) User {
	if p.Name != "" {
		u.Name = p.Name
	}
	if p.Email != "" {
		u.Email = p.Email
	}
	if p.Number != "" {
		u.Number = p.Number
	}
	if p.Role != "" {
		u.Role = p.Role
	}
	return u
}

// NewAdmin is the body used to create an admin account.
type NewAdmin struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
	Number   Phone  `json:"number,omitempty"`
}

// Message is the backend's acknowledgement body for actions without a resource.
type Message struct {
	Message string `json:"message"`
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
