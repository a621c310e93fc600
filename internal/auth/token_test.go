package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("kitchen-secret"))
	require.NoError(t, err)
	return token
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)

	got, ok := TokenExpiry(signedToken(t, jwt.MapClaims{"sub": "priya", "exp": exp.Unix()}))
	require.True(t, ok)
	assert.True(t, got.Equal(exp))

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"opaque", "acc-1"},
		{"no exp claim", signedToken(t, jwt.MapClaims{"sub": "priya"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := TokenExpiry(tt.token)
			assert.False(t, ok)
		})
	}
}
