package auth

import (
	"github.com/preorder/preorder-cli/internal/models"
	"github.com/preorder/preorder-cli/internal/output"
)

// RequireUser fails unless a user is signed in.
func RequireUser(m *Manager) (models.User, error) {
	user, ok := m.User()
	if !ok || m.AccessToken() == "" {
		return models.User{}, output.ErrAuth("Not logged in")
	}
	return user, nil
}

// RequireAdmin fails unless the signed-in user is an admin.
func RequireAdmin(m *Manager) (models.User, error) {
	user, err := RequireUser(m)
	if err != nil {
		return models.User{}, err
	}
	if !user.IsAdmin() {
		e := output.ErrForbidden("Admin access required")
		e.Hint = "Signed in as " + user.Username
		return models.User{}, e
	}
	return user, nil
}
