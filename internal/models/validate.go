package models

import (
	"strings"
	"time"

	"github.com/preorder/preorder-cli/internal/output"
)

// MinPasswordLength is the shortest password the backend accepts.
const MinPasswordLength = 6

// ValidatePassword checks length and confirmation.
func ValidatePassword(password, confirm string) error {
	if len(password) < MinPasswordLength {
		return output.ErrValidation("Password must be at least 6 characters long")
	}
	if password != confirm {
		return output.ErrValidation("Passwords do not match")
	}
	return nil
}

// ValidatePhone accepts an empty number or exactly ten digits.
func ValidatePhone(p Phone) error {
	if p == "" {
		return nil
	}
	if len(p) != 10 || !isDigits(string(p)) {
		return output.ErrValidation("Phone number must be exactly 10 digits")
	}
	return nil
}

// Validate checks a sign-up form. confirm is the repeated password.
func (r Registration) Validate(confirm string) error {
	if strings.TrimSpace(r.Name) == "" {
		return output.ErrValidation("Name is required")
	}
	if strings.TrimSpace(r.Username) == "" {
		return output.ErrValidation("Username is required")
	}
	if strings.TrimSpace(r.Email) == "" {
		return output.ErrValidation("Email is required")
	}
	if err := ValidatePassword(r.Password, confirm); err != nil {
		return err
	}
	return ValidatePhone(r.Number)
}

// Validate checks a profile edit. Name may be left unchanged but not blanked.
func (p ProfileUpdate) Validate() error {
	if p.Name != "" && strings.TrimSpace(p.Name) == "" {
		return output.ErrValidation("Name cannot be empty")
	}
	if p.Role != "" && p.Role != RoleUser && p.Role != RoleAdmin {
		return output.ErrValidation("Role must be USER or ADMIN")
	}
	return ValidatePhone(p.Number)
}

// Validate checks an admin account form.
func (a NewAdmin) Validate(confirm string) error {
	if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.Username) == "" {
		return output.ErrValidation("Name and username are required")
	}
	if err := ValidatePassword(a.Password, confirm); err != nil {
		return err
	}
	return ValidatePhone(a.Number)
}

// Validate checks an item form.
func (i Item) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return output.ErrValidation("Item name is required")
	}
	if i.Price < 0 {
		return output.ErrValidation("Price must be a non-negative number")
	}
	if _, err := ParseItemType(string(i.ItemType)); err != nil {
		return output.ErrValidation(err.Error())
	}
	return nil
}

// ValidateRequiredBy rejects a missing or non-future required-by time.
func ValidateRequiredBy(t, now time.Time) error {
	if t.IsZero() {
		return output.ErrValidation("Please specify when you need the order by")
	}
	if !t.After(now) {
		return output.ErrValidation("Required-by time must be in the future")
	}
	return nil
}

// Validate checks an order before it is placed.
func (o NewOrder) Validate(now time.Time) error {
	if len(o.Items) == 0 {
		return output.ErrValidation("Your cart is empty")
	}
	if o.People < 1 {
		return output.ErrValidation("Number of people must be at least 1")
	}
	return ValidateRequiredBy(o.RequiredByDateTime.Time, now)
}
