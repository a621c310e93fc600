package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preorder/preorder-cli/internal/output"
)

func TestIDUnmarshal(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  ID
	}{
		{"string", `"665f1c"`, "665f1c"},
		{"oid object", `{"$oid":"665f1c"}`, "665f1c"},
		{"number", `42`, "42"},
		{"null", `null`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ID
			require.NoError(t, json.Unmarshal([]byte(tt.input), &id))
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestIDUnmarshalRejectsUnknownObject(t *testing.T) {
	var id ID
	assert.Error(t, json.Unmarshal([]byte(`{"uuid":"x"}`), &id))
}

func TestPhoneAcceptsNumberOrString(t *testing.T) {
	var u User
	require.NoError(t, json.Unmarshal([]byte(`{"name":"A","username":"a","number":9876543210}`), &u))
	assert.Equal(t, Phone("9876543210"), u.Number)

	require.NoError(t, json.Unmarshal([]byte(`{"number":"0123456789"}`), &u))
	assert.Equal(t, Phone("0123456789"), u.Number)
}

func TestPhoneMarshalsDigitsAsInteger(t *testing.T) {
	data, err := json.Marshal(ProfileUpdate{Name: "A", Number: "9876543210"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"A","number":9876543210}`, string(data))

	data, err = json.Marshal(ProfileUpdate{Number: "+44 20"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"number":"+44 20"}`, string(data))
}

func TestUserIsAdmin(t *testing.T) {
	assert.True(t, User{Role: RoleAdmin}.IsAdmin())
	assert.True(t, User{Role: "admin"}.IsAdmin())
	assert.False(t, User{Role: RoleUser}.IsAdmin())
	assert.False(t, User{}.IsAdmin())
}

func TestItemTypes(t *testing.T) {
	assert.Equal(t, "Rice & Breads", ItemRice.DisplayName())
	assert.Equal(t, "Other Items", ItemType("").DisplayName())
	assert.Equal(t, ItemOther, ItemType("DRINK").Normalize())
	assert.Equal(t, ItemCurry, ItemCurry.Normalize())

	got, err := ParseItemType(" curry ")
	require.NoError(t, err)
	assert.Equal(t, ItemCurry, got)

	_, err = ParseItemType("drink")
	assert.Error(t, err)
}

func TestParseOrderStatus(t *testing.T) {
	got, err := ParseOrderStatus("cancelled")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got)
	assert.True(t, got.Closed())
	assert.False(t, StatusConfirmed.Closed())

	_, err = ParseOrderStatus("shipped")
	assert.Error(t, err)
}

func TestOrderCancellable(t *testing.T) {
	assert.True(t, Order{}.Cancellable(), "missing status reads as pending")
	assert.True(t, Order{Status: StatusPending}.Cancellable())
	assert.False(t, Order{Status: StatusConfirmed}.Cancellable())
	assert.False(t, Order{Status: StatusCompleted}.Cancellable())
	assert.False(t, Order{Status: StatusCancelled}.Cancellable())
}

func TestOrderUpdatePreservesFields(t *testing.T) {
	by := NewTimestamp(time.Date(2030, 5, 1, 18, 30, 0, 0, time.Local))
	o := Order{
		ID:                 "o1",
		Items:              []OrderItem{{ItemID: "i1", Name: "Dal", Price: 120, Quantity: 2}},
		People:             4,
		Status:             StatusPending,
		RequiredByDateTime: &by,
		Notes:              "no onions",
	}

	u := o.Update(StatusCancelled)

	assert.Equal(t, StatusCancelled, u.Status)
	assert.Equal(t, o.Items, u.Items)
	assert.Equal(t, 4, u.People)
	assert.InDelta(t, 240.0, u.TotalPrice, 0.001)
	assert.Equal(t, "no onions", u.Notes)
	assert.Equal(t, &by, u.RequiredByDateTime)
}

func TestOrderDecodesBackendShapes(t *testing.T) {
	body := `{
		"id": {"$oid": "abc"},
		"username": "asha",
		"items": [{"itemId": "i1", "name": "Dal", "price": 99.5, "quantity": 1}],
		"totalPrice": 99.5,
		"people": 2,
		"requiredByDateTime": [2030, 1, 15, 19, 0],
		"createdAt": 1700000000000
	}`

	var o Order
	require.NoError(t, json.Unmarshal([]byte(body), &o))

	assert.Equal(t, ID("abc"), o.ID)
	assert.Equal(t, StatusPending, o.StatusOrDefault())
	require.NotNil(t, o.RequiredByDateTime)
	assert.Equal(t, time.Date(2030, 1, 15, 19, 0, 0, 0, time.Local), o.RequiredByDateTime.Time)
	require.NotNil(t, o.CreatedAt)
	assert.Equal(t, time.UnixMilli(1700000000000), o.CreatedAt.Time)
}

func TestTimestampUnmarshal(t *testing.T) {
	want := time.Date(2030, 3, 4, 5, 6, 7, 0, time.Local)

	tests := []struct {
		name  string
		input string
	}{
		{"local string", `"2030-03-04T05:06:07"`},
		{"jackson object", `{"year":2030,"monthValue":3,"dayOfMonth":4,"hour":5,"minute":6,"second":7}`},
		{"jackson array", `[2030,3,4,5,6,7]`},
		{"mongo date", `{"$date":"2030-03-04T05:06:07"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(tt.input), &ts))
			assert.True(t, want.Equal(ts.Time), "got %v", ts.Time)
		})
	}
}

func TestTimestampUnmarshalZoned(t *testing.T) {
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2030-03-04T05:06:07Z"`), &ts))
	assert.True(t, time.Date(2030, 3, 4, 5, 6, 7, 0, time.UTC).Equal(ts.Time))
}

func TestTimestampUnmarshalInvalid(t *testing.T) {
	var ts Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"next tuesday"`), &ts))
	assert.Error(t, json.Unmarshal([]byte(`[2030]`), &ts))
	assert.Error(t, json.Unmarshal([]byte(`{"foo":1}`), &ts))
}

func TestTimestampMarshal(t *testing.T) {
	ts := NewTimestamp(time.Date(2030, 3, 4, 5, 6, 0, 0, time.Local))
	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2030-03-04T05:06:00"`, string(data))

	data, err = json.Marshal(Timestamp{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestProfileUpdateApply(t *testing.T) {
	u := User{Name: "Old", Username: "asha", Email: "old@example.com", Role: RoleUser}
	got := ProfileUpdate{Email: "new@example.com"}.Apply(u)

	assert.Equal(t, "Old", got.Name)
	assert.Equal(t, "asha", got.Username)
	assert.Equal(t, "new@example.com", got.Email)
	assert.Equal(t, RoleUser, got.Role)
}

// =============================================================================
// Validation
// =============================================================================

func assertValidation(t *testing.T, err error, contains string) {
	t.Helper()
	require.Error(t, err)
	e := output.AsError(err)
	assert.Equal(t, output.CodeValidation, e.Code)
	assert.Contains(t, e.Message, contains)
}

func TestRegistrationValidate(t *testing.T) {
	valid := Registration{Name: "Asha", Username: "asha", Email: "a@example.com", Password: "secret1", Number: "9876543210"}
	assert.NoError(t, valid.Validate("secret1"))

	r := valid
	r.Name = "  "
	assertValidation(t, r.Validate("secret1"), "Name")

	r = valid
	r.Password = "abc"
	assertValidation(t, r.Validate("abc"), "at least 6")

	assertValidation(t, valid.Validate("secret2"), "do not match")

	r = valid
	r.Number = "12345"
	assertValidation(t, r.Validate("secret1"), "10 digits")

	r = valid
	r.Number = ""
	assert.NoError(t, r.Validate("secret1"))
}

func TestValidatePhone(t *testing.T) {
	assert.NoError(t, ValidatePhone(""))
	assert.NoError(t, ValidatePhone("0123456789"))
	assert.Error(t, ValidatePhone("012345678a"))
	assert.Error(t, ValidatePhone("01234567890"))
}

func TestItemValidate(t *testing.T) {
	assert.NoError(t, Item{Name: "Dal", Price: 0, ItemType: ItemCurry}.Validate())
	assertValidation(t, Item{Price: 10, ItemType: ItemCurry}.Validate(), "name")
	assertValidation(t, Item{Name: "Dal", Price: -1, ItemType: ItemCurry}.Validate(), "non-negative")
	assertValidation(t, Item{Name: "Dal", ItemType: "DRINK"}.Validate(), "unknown item type")
}

func TestNewOrderValidate(t *testing.T) {
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.Local)
	items := []OrderItem{{ItemID: "i1", Name: "Dal", Price: 10, Quantity: 1}}
	future := NewTimestamp(now.Add(time.Hour))

	assert.NoError(t, NewOrder{Items: items, People: 1, RequiredByDateTime: future}.Validate(now))
	assertValidation(t, NewOrder{People: 1, RequiredByDateTime: future}.Validate(now), "empty")
	assertValidation(t, NewOrder{Items: items, People: 0, RequiredByDateTime: future}.Validate(now), "at least 1")
	assertValidation(t, NewOrder{Items: items, People: 1}.Validate(now), "specify")
	assertValidation(t, NewOrder{Items: items, People: 1, RequiredByDateTime: NewTimestamp(now)}.Validate(now), "future")
}

func TestNewAdminValidate(t *testing.T) {
	a := NewAdmin{Name: "Root", Username: "root", Password: "secret1"}
	assert.NoError(t, a.Validate("secret1"))
	assertValidation(t, NewAdmin{Password: "secret1"}.Validate("secret1"), "required")
}

func TestProfileUpdateValidate(t *testing.T) {
	assert.NoError(t, ProfileUpdate{Email: "x@example.com"}.Validate())
	assertValidation(t, ProfileUpdate{Name: "   "}.Validate(), "empty")
	assertValidation(t, ProfileUpdate{Role: "OWNER"}.Validate(), "Role")
}
