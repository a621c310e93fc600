// Package presenter shapes backend data for display: prices, menu sections
// and order listings.
package presenter

import (
	"strings"

	"github.com/preorder/preorder-cli/internal/models"
)

// MenuSection is one heading of the menu with its items.
type MenuSection struct {
	Type  models.ItemType `json:"type"`
	Title string          `json:"title"`
	Items []models.Item   `json:"items"`
}

// GroupMenu buckets items by type in menu order. Items with a missing or
// unknown type land in the last section. Empty sections are omitted and
// items keep their backend order within a section.
func GroupMenu(items []models.Item) []MenuSection {
	buckets := make(map[models.ItemType][]models.Item, len(models.ItemTypes))
	for _, item := range items {
		t := item.ItemType.Normalize()
		buckets[t] = append(buckets[t], item)
	}

	sections := make([]MenuSection, 0, len(buckets))
	for _, t := range models.ItemTypes {
		if len(buckets[t]) == 0 {
			continue
		}
		sections = append(sections, MenuSection{Type: t, Title: t.DisplayName(), Items: buckets[t]})
	}
	return sections
}

// AvailableOnly drops items that cannot currently be ordered.
func AvailableOnly(items []models.Item) []models.Item {
	out := make([]models.Item, 0, len(items))
	for _, item := range items {
		if item.Available {
			out = append(out, item)
		}
	}
	return out
}

// FindItems matches items by exact ID, then exact name, then name substring,
// all case-insensitive. The first tier with matches wins.
func FindItems(items []models.Item, query string) []models.Item {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var byID, byName, bySubstring []models.Item
	for _, item := range items {
		name := strings.ToLower(item.Name)
		switch {
		case strings.EqualFold(item.ID.String(), q):
			byID = append(byID, item)
		case name == q:
			byName = append(byName, item)
		case strings.Contains(name, q):
			bySubstring = append(bySubstring, item)
		}
	}
	switch {
	case len(byID) > 0:
		return byID
	case len(byName) > 0:
		return byName
	default:
		return bySubstring
	}
}

// ItemNames returns the names of items, for ambiguity hints.
func ItemNames(items []models.Item) []string {
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Name
	}
	return names
}
