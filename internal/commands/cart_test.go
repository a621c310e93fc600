package commands

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preorder/preorder-cli/internal/models"
	"github.com/preorder/preorder-cli/internal/output"
)

func setupCart(t *testing.T) *harness {
	t.Helper()
	h := setupSignedIn(t, customerJSON)
	h.k.route(http.MethodGet, "/user/items", menuJSON)
	return h
}

func TestCartAddAndShow(t *testing.T) {
	h := setupCart(t)

	require.NoError(t, h.run(NewCartCmd(), "add", "butter naan", "2"))
	require.NoError(t, h.run(NewCartCmd(), "add", "i1"))
	require.NoError(t, h.run(NewCartCmd(), "add", "Butter Naan"))

	var view cartView
	env := h.decode(t, &view)
	require.Len(t, view.Lines, 2)
	assert.Equal(t, "i2", view.Lines[0].ItemID)
	assert.Equal(t, 3, view.Lines[0].Quantity)
	assert.Equal(t, 4, view.Count)
	assert.InDelta(t, 400.0, view.Total, 0.001)
	assert.Contains(t, env.Summary, "Butter Naan × 3 in cart")

	require.NoError(t, h.run(NewCartCmd()))
	h.decode(t, &view)
	assert.Equal(t, 4, view.Count)
}

func TestCartAddAmbiguous(t *testing.T) {
	h := setupCart(t)

	err := h.run(NewCartCmd(), "add", "naan")
	require.Error(t, err)
	assert.Equal(t, output.CodeAmbiguous, output.AsError(err).Code)

	c, err := h.app.Cart.Load()
	require.NoError(t, err)
	assert.True(t, c.Empty())
}

func TestCartAddRejects(t *testing.T) {
	h := setupCart(t)

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"unavailable item", []string{"add", "tomato shorba"}, output.CodeValidation},
		{"unknown item", []string{"add", "pizza"}, output.CodeNotFound},
		{"zero quantity", []string{"add", "i1", "0"}, output.CodeValidation},
		{"non-numeric quantity", []string{"add", "i1", "two"}, output.CodeUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.run(NewCartCmd(), tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, output.AsError(err).Code)
		})
	}
}

func TestCartSetAndRemove(t *testing.T) {
	h := setupCart(t)
	require.NoError(t, h.run(NewCartCmd(), "add", "dal makhani", "2"))
	require.NoError(t, h.run(NewCartCmd(), "add", "gulab", "1"))

	require.NoError(t, h.run(NewCartCmd(), "set", "dal", "5"))
	var view cartView
	h.decode(t, &view)
	assert.Equal(t, 6, view.Count)

	require.NoError(t, h.run(NewCartCmd(), "rm", "gulab jamun"))
	h.decode(t, &view)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, "Dal Makhani", view.Lines[0].Name)

	require.NoError(t, h.run(NewCartCmd(), "set", "dal", "0"))
	env := h.decode(t, &view)
	assert.Empty(t, view.Lines)
	assert.Contains(t, env.Summary, "Your cart is empty")

	err := h.run(NewCartCmd(), "remove", "dal")
	require.Error(t, err)
	assert.Equal(t, output.CodeNotFound, output.AsError(err).Code)
}

func TestCartClear(t *testing.T) {
	h := setupCart(t)
	require.NoError(t, h.run(NewCartCmd(), "add", "i1"))

	require.NoError(t, h.run(NewCartCmd(), "clear"))

	c, err := h.app.Cart.Load()
	require.NoError(t, err)
	assert.True(t, c.Empty())
}

func TestCartCheckout(t *testing.T) {
	h := setupCart(t)
	h.k.route(http.MethodPost, "/user/add_order", `{"id":"o1","status":"Pending","items":[],"totalPrice":340,"people":4}`)
	require.NoError(t, h.run(NewCartCmd(), "add", "dal makhani"))
	require.NoError(t, h.run(NewCartCmd(), "add", "butter naan", "2"))

	require.NoError(t, h.run(NewCartCmd(), "checkout", "--people", "4", "--by", "tomorrow 7pm", "--notes", " less spicy "))

	reqs := h.k.received(http.MethodPost, "/user/add_order")
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer acc-1", reqs[0].Auth)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(reqs[0].Body), &body))
	assert.InDelta(t, 340.0, body["totalPrice"], 0.001)
	assert.InDelta(t, 4.0, body["people"], 0.001)
	assert.Equal(t, "2025-06-02T19:00:00", body["requiredByDateTime"])
	assert.Equal(t, "less spicy", body["notes"])
	items, ok := body["items"].([]any)
	require.True(t, ok)
	assert.Len(t, items, 2)

	var placed models.Order
	env := h.decode(t, &placed)
	assert.Equal(t, models.ID("o1"), placed.ID)
	assert.Contains(t, env.Summary, "Order placed")

	c, err := h.app.Cart.Load()
	require.NoError(t, err)
	assert.True(t, c.Empty(), "checkout should empty the cart")
}

func TestCartCheckoutValidation(t *testing.T) {
	tests := []struct {
		name string
		fill bool
		args []string
		code string
	}{
		{"empty cart", false, []string{"checkout", "--by", "tomorrow 7pm"}, output.CodeValidation},
		{"missing deadline", true, []string{"checkout"}, output.CodeValidation},
		{"deadline in the past", true, []string{"checkout", "--by", "2025-05-01 18:00"}, output.CodeValidation},
		{"unreadable deadline", true, []string{"checkout", "--by", "whenever"}, output.CodeUsage},
		{"no people", true, []string{"checkout", "--by", "tomorrow 7pm", "--people", "0"}, output.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setupCart(t)
			if tt.fill {
				require.NoError(t, h.run(NewCartCmd(), "add", "i1"))
			}

			err := h.run(NewCartCmd(), tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, output.AsError(err).Code)
			assert.Empty(t, h.k.received(http.MethodPost, "/user/add_order"))
		})
	}
}

func TestCartCheckoutKeepsCartWhenBackendFails(t *testing.T) {
	h := setupCart(t)
	h.k.fail(http.MethodPost, "/user/add_order", http.StatusInternalServerError, `{"message":"kitchen closed"}`)
	require.NoError(t, h.run(NewCartCmd(), "add", "i1"))

	err := h.run(NewCartCmd(), "checkout", "--by", "tomorrow 7pm")
	require.Error(t, err)

	c, err := h.app.Cart.Load()
	require.NoError(t, err)
	assert.False(t, c.Empty())
}
