package commands

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preorder/preorder-cli/internal/models"
	"github.com/preorder/preorder-cli/internal/output"
	"github.com/preorder/preorder-cli/internal/presenter"
)

const usersJSON = `[` + adminJSON + `,` + customerJSON + `,
	{"id":"u2","name":"Ravi","username":"ravi","role":"USER"}]`

const adminOrdersJSON = `[
	{"id":"o1","username":"priya","items":[],"totalPrice":220,"people":2,"status":"Completed","createdAt":"2025-05-31T10:00:00"},
	{"id":"o2","username":"ravi","items":[],"totalPrice":240,"people":4,"status":"Pending","createdAt":"2025-05-29T09:00:00"},
	{"id":"o3","username":"priya","items":[{"itemId":"i1","name":"Dal Makhani","price":220,"quantity":2}],"people":3,
	 "status":"Confirmed","requiredByDateTime":"2025-06-02T20:00:00","notes":"ring twice","createdAt":"2025-05-30T09:00:00"},
	{"id":"o4","username":"ravi","items":[],"totalPrice":90,"people":1,"status":"Cancelled","createdAt":"2025-06-01T08:00:00"}
]`

func setupAdmin(t *testing.T) *harness {
	t.Helper()
	h := setupSignedIn(t, adminJSON)
	h.k.route(http.MethodGet, "/admin/users", usersJSON)
	h.k.route(http.MethodGet, "/admin/items", menuJSON)
	h.k.route(http.MethodGet, "/admin/orders", adminOrdersJSON)
	return h
}

func TestAdminRequiresAdminRole(t *testing.T) {
	h := setupSignedIn(t, customerJSON)

	for _, args := range [][]string{
		{"dashboard"},
		{"users", "list"},
		{"items", "list"},
		{"orders", "list"},
	} {
		err := h.run(NewAdminCmd(), args...)
		require.Error(t, err, strings.Join(args, " "))
		e := output.AsError(err)
		assert.Equal(t, output.CodeForbidden, e.Code)
		assert.Contains(t, e.Hint, "priya")
	}
	assert.Empty(t, h.k.received(http.MethodGet, "/admin/users"))
}

func TestAdminRequiresLogin(t *testing.T) {
	h := setupTestApp(t, newKitchen(t, adminJSON))

	err := h.run(NewAdminCmd(), "dashboard")
	require.Error(t, err)
	assert.Equal(t, output.CodeAuth, output.AsError(err).Code)
}

func TestAdminDashboard(t *testing.T) {
	h := setupAdmin(t)

	require.NoError(t, h.run(NewAdminCmd(), "dashboard"))

	var d presenter.Dashboard
	env := h.decode(t, &d)
	assert.Equal(t, 3, d.TotalUsers)
	assert.Equal(t, 6, d.TotalItems)
	assert.Equal(t, 4, d.TotalOrders)
	assert.Equal(t, 2, d.ActiveOrders)
	assert.Equal(t, "3 users, 6 items, 4 orders (2 active)", env.Summary)
}

func TestAdminDashboardFailsWhenAnyFetchFails(t *testing.T) {
	h := setupAdmin(t)
	h.k.fail(http.MethodGet, "/admin/items", http.StatusInternalServerError, `{"message":"boom"}`)

	err := h.run(NewAdminCmd(), "dashboard")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestAdminUsersList(t *testing.T) {
	h := setupAdmin(t)

	require.NoError(t, h.run(NewAdminCmd(), "users", "list", "--role", "user"))

	var users []models.User
	env := h.decode(t, &users)
	require.Len(t, users, 2)
	assert.Equal(t, "priya", users[0].Username)
	assert.Equal(t, "2 users", env.Summary)
}

func TestAdminUsersUpdate(t *testing.T) {
	h := setupAdmin(t)

	require.NoError(t, h.run(NewAdminCmd(), "users", "update", "priya", "--role", "admin"))

	reqs := h.k.received(http.MethodPut, "/admin/user/priya")
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"name":"Priya","email":"priya@example.com","number":9876543210,"role":"ADMIN"}`, reqs[0].Body)

	var user models.User
	h.decode(t, &user)
	assert.True(t, user.IsAdmin())
}

func TestAdminUsersUpdateGuards(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code string
	}{
		{"own admin role", []string{"users", "update", "asha", "--role", "USER"}, output.CodeForbidden},
		{"unknown user", []string{"users", "update", "nobody", "--name", "X"}, output.CodeNotFound},
		{"bad role", []string{"users", "update", "ravi", "--role", "CHEF"}, output.CodeValidation},
		{"nothing to change", []string{"users", "update", "ravi"}, output.CodeUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setupAdmin(t)

			err := h.run(NewAdminCmd(), tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, output.AsError(err).Code)
			assert.Empty(t, h.k.received(http.MethodPut, "/admin/user/"+tt.args[2]))
		})
	}
}

func TestAdminUsersUpdateSelfRefreshesSession(t *testing.T) {
	h := setupAdmin(t)

	require.NoError(t, h.run(NewAdminCmd(), "users", "update", "asha", "--name", "Asha K"))

	stored, ok := h.app.Auth.User()
	require.True(t, ok)
	assert.Equal(t, "Asha K", stored.Name)
	assert.True(t, stored.IsAdmin())
}

func TestAdminUsersDelete(t *testing.T) {
	h := setupAdmin(t)
	h.k.route(http.MethodDelete, "/admin/user/ravi", `{"message":"User deleted"}`)

	require.NoError(t, h.run(NewAdminCmd(), "users", "delete", "ravi", "--force"))

	assert.Len(t, h.k.received(http.MethodDelete, "/admin/user/ravi"), 1)
	assert.Equal(t, "User deleted", h.envelope(t).Summary)
}

func TestAdminUsersCannotDeleteSelf(t *testing.T) {
	h := setupAdmin(t)

	err := h.run(NewAdminCmd(), "users", "delete", "asha", "--force")
	require.Error(t, err)
	e := output.AsError(err)
	assert.Equal(t, output.CodeForbidden, e.Code)
	assert.Equal(t, "You cannot delete your own account.", e.Message)
	assert.Empty(t, h.k.received(http.MethodDelete, "/admin/user/asha"))
}

func TestAdminUsersAddAdmin(t *testing.T) {
	h := setupAdmin(t)
	h.app.Stdin = strings.NewReader("kitchen1\n")

	require.NoError(t, h.run(NewAdminCmd(), "users", "add-admin",
		"--name", "Meera", "--username", "meera", "--password-stdin"))

	reqs := h.k.received(http.MethodPost, "/admin/add_admin")
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"name":"Meera","username":"meera","password":"kitchen1"}`, reqs[0].Body)
	assert.Equal(t, "Admin meera created", h.envelope(t).Summary)
}

func TestAdminUsersAddAdminValidates(t *testing.T) {
	h := setupAdmin(t)
	h.app.Stdin = strings.NewReader("kitchen1\n")

	err := h.run(NewAdminCmd(), "users", "add-admin", "--name", "Meera", "--password-stdin")
	require.Error(t, err)
	assert.Equal(t, output.CodeValidation, output.AsError(err).Code)
	assert.Empty(t, h.k.received(http.MethodPost, "/admin/add_admin"))
}

func TestAdminItemsList(t *testing.T) {
	h := setupAdmin(t)

	require.NoError(t, h.run(NewAdminCmd(), "items", "list"))

	var sections []presenter.MenuSection
	env := h.decode(t, &sections)
	assert.Len(t, sections, 5, "admin listing includes unavailable items")
	assert.Equal(t, "6 items in 5 sections", env.Summary)
}

func TestAdminItemsCreate(t *testing.T) {
	h := setupAdmin(t)
	h.k.route(http.MethodPost, "/admin/item", `{"id":"i9","name":"Mango Lassi","price":90,"available":true,"itemType":"SWEET"}`)

	require.NoError(t, h.run(NewAdminCmd(), "items", "create", "--name", "Mango Lassi", "--price", "90", "--type", "sweet"))

	reqs := h.k.received(http.MethodPost, "/admin/item")
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"name":"Mango Lassi","price":90,"available":true,"itemType":"SWEET"}`, reqs[0].Body)

	var item models.Item
	env := h.decode(t, &item)
	assert.Equal(t, models.ID("i9"), item.ID)
	assert.Contains(t, env.Summary, "Added Mango Lassi (Sweets)")
}

func TestAdminItemsCreateDefaultsToOther(t *testing.T) {
	h := setupAdmin(t)

	require.NoError(t, h.run(NewAdminCmd(), "items", "create", "--name", "Papad", "--price", "20", "--available=false"))

	reqs := h.k.received(http.MethodPost, "/admin/item")
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"name":"Papad","price":20,"available":false,"itemType":"OTHER"}`, reqs[0].Body)
}

func TestAdminItemsCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code string
	}{
		{"missing name", []string{"items", "create", "--price", "10"}, output.CodeValidation},
		{"negative price", []string{"items", "create", "--name", "X", "--price", "-1"}, output.CodeValidation},
		{"unknown type", []string{"items", "create", "--name", "X", "--type", "pizza"}, output.CodeUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setupAdmin(t)

			err := h.run(NewAdminCmd(), tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, output.AsError(err).Code)
			assert.Empty(t, h.k.received(http.MethodPost, "/admin/item"))
		})
	}
}

func TestAdminItemsUpdateMergesFlags(t *testing.T) {
	h := setupAdmin(t)

	require.NoError(t, h.run(NewAdminCmd(), "items", "update", "dal makhani", "--price", "240", "--available=false"))

	reqs := h.k.received(http.MethodPut, "/admin/item/i1")
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"name":"Dal Makhani","price":240,"available":false,"itemType":"CURRY"}`, reqs[0].Body)

	err := h.run(NewAdminCmd(), "items", "update", "i1")
	require.Error(t, err)
	assert.Equal(t, output.CodeUsage, output.AsError(err).Code)
}

func TestAdminItemsDelete(t *testing.T) {
	h := setupAdmin(t)

	require.NoError(t, h.run(NewAdminCmd(), "items", "delete", "gulab jamun", "--force"))
	assert.Len(t, h.k.received(http.MethodDelete, "/admin/item/i5"), 1)
	assert.Equal(t, "Deleted Gulab Jamun", h.envelope(t).Summary)

	err := h.run(NewAdminCmd(), "items", "delete", "naan", "--force")
	require.Error(t, err)
	assert.Equal(t, output.CodeAmbiguous, output.AsError(err).Code)
}

func TestAdminOrdersList(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []models.ID
		summary string
	}{
		{"active by default", []string{"orders", "list"}, []models.ID{"o3", "o2"}, "2 active orders"},
		{"archived", []string{"orders", "list", "--archived"}, []models.ID{"o4", "o1"}, "2 archived orders"},
		{"all with closed last", []string{"orders", "list", "--all"}, []models.ID{"o3", "o2", "o4", "o1"}, "4 orders"},
		{"username filter", []string{"orders", "list", "--all", "--user", "PRI"}, []models.ID{"o3", "o1"}, "2 orders"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setupAdmin(t)

			require.NoError(t, h.run(NewAdminCmd(), tt.args...))

			var orders []models.Order
			env := h.decode(t, &orders)
			ids := make([]models.ID, len(orders))
			for i, o := range orders {
				ids[i] = o.ID
			}
			assert.Equal(t, tt.want, ids)
			assert.Equal(t, tt.summary, env.Summary)
		})
	}
}

func TestAdminOrdersUpdateStatus(t *testing.T) {
	h := setupAdmin(t)

	require.NoError(t, h.run(NewAdminCmd(), "orders", "update", "o3", "--status", "completed"))

	reqs := h.k.received(http.MethodPut, "/admin/order/o3")
	require.Len(t, reqs, 1)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(reqs[0].Body), &body))
	assert.Equal(t, "Completed", body["status"])
	assert.InDelta(t, 440.0, body["totalPrice"], 0.001, "missing total is recomputed from the items")
	assert.InDelta(t, 3.0, body["people"], 0.001)
	assert.Equal(t, "ring twice", body["notes"])
	assert.Equal(t, "2025-06-02T20:00:00", body["requiredByDateTime"])

	assert.Equal(t, "Order o3 is Completed", h.envelope(t).Summary)
}

func TestAdminOrdersUpdateDetails(t *testing.T) {
	h := setupAdmin(t)

	require.NoError(t, h.run(NewAdminCmd(), "orders", "update", "o2", "--people", "6", "--by", "tomorrow 8pm"))

	reqs := h.k.received(http.MethodPut, "/admin/order/o2")
	require.Len(t, reqs, 1)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(reqs[0].Body), &body))
	assert.Equal(t, "Pending", body["status"], "status is kept when not given")
	assert.InDelta(t, 6.0, body["people"], 0.001)
	assert.Equal(t, "2025-06-02T20:00:00", body["requiredByDateTime"])
}

func TestAdminOrdersUpdateErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code string
	}{
		{"nothing to change", []string{"orders", "update", "o2"}, output.CodeUsage},
		{"unknown status", []string{"orders", "update", "o2", "--status", "eaten"}, output.CodeUsage},
		{"unknown order", []string{"orders", "update", "o9", "--status", "Confirmed"}, output.CodeNotFound},
		{"no people", []string{"orders", "update", "o2", "--people", "0"}, output.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setupAdmin(t)

			err := h.run(NewAdminCmd(), tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, output.AsError(err).Code)
			assert.Empty(t, h.k.received(http.MethodPut, "/admin/order/"+tt.args[2]))
		})
	}
}
