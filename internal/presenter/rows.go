package presenter

import (
	"strconv"
	"strings"

	"github.com/preorder/preorder-cli/internal/models"
)

// Row is a flat record for table rendering. Keys keep insertion order
// through the column list the renderer detects, so only display fields go in.
type Row = map[string]any

// MenuRows flattens grouped sections into table rows with formatted prices.
func MenuRows(sections []MenuSection, money Money) []Row {
	var rows []Row
	for _, s := range sections {
		for _, item := range s.Items {
			rows = append(rows, Row{
				"id":        item.ID.String(),
				"section":   s.Title,
				"name":      item.Name,
				"price":     money.Format(item.Price),
				"available": item.Available,
			})
		}
	}
	return rows
}

// OrderRows renders orders for people rather than machines.
func OrderRows(orders []models.Order, money Money, locale Locale) []Row {
	rows := make([]Row, 0, len(orders))
	for _, o := range orders {
		row := Row{
			"id":     o.ID.String(),
			"status": string(o.StatusOrDefault()),
			"items":  itemSummary(o.Items),
			"people": o.People,
			"total":  money.Format(o.TotalPrice),
		}
		if o.Username != "" {
			row["username"] = o.Username
		}
		if o.RequiredByDateTime != nil {
			row["required_by"] = locale.FormatDateTime(o.RequiredByDateTime.Time)
		}
		if o.CreatedAt != nil {
			row["created_at"] = locale.FormatDateTime(o.CreatedAt.Time)
		}
		rows = append(rows, row)
	}
	return rows
}

// itemSummary reads "2× Dal Makhani, 1× Naan".
func itemSummary(items []models.OrderItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, strconv.Itoa(it.Quantity)+"× "+it.Name)
	}
	return strings.Join(parts, ", ")
}
