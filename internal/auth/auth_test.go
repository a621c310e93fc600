package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preorder/preorder-cli/internal/api"
	"github.com/preorder/preorder-cli/internal/config"
	"github.com/preorder/preorder-cli/internal/models"
	"github.com/preorder/preorder-cli/internal/output"
)

// =============================================================================
// Store
// =============================================================================

func TestNewStoreRespectsNoKeyringEnv(t *testing.T) {
	t.Setenv("PREORDER_NO_KEYRING", "1")
	store := NewStore(t.TempDir())

	require.NotNil(t, store)
	assert.False(t, store.UsingKeyring())
}

func TestStoreFileBackend(t *testing.T) {
	tmpDir := t.TempDir()
	store := &Store{useKeyring: false, fallbackDir: tmpDir}

	origin := "https://food.example.com/api"
	sess := &Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		User:         json.RawMessage(`{"username":"asha","role":"USER"}`),
	}
	require.NoError(t, store.Save(origin, sess))

	info, err := os.Stat(filepath.Join(tmpDir, "credentials.json"))
	require.NoError(t, err, "session file not created")
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := store.Load(origin)
	require.NoError(t, err)
	assert.Equal(t, "access-1", loaded.AccessToken)
	assert.Equal(t, "refresh-1", loaded.RefreshToken)
	assert.JSONEq(t, string(sess.User), string(loaded.User))
}

func TestStoreMultipleOrigins(t *testing.T) {
	store := &Store{useKeyring: false, fallbackDir: t.TempDir()}

	require.NoError(t, store.Save("https://one.example.com", &Session{AccessToken: "one"}))
	require.NoError(t, store.Save("https://two.example.com", &Session{AccessToken: "two"}))

	one, err := store.Load("https://one.example.com")
	require.NoError(t, err)
	two, err := store.Load("https://two.example.com")
	require.NoError(t, err)

	assert.Equal(t, "one", one.AccessToken)
	assert.Equal(t, "two", two.AccessToken)
}

func TestStoreDelete(t *testing.T) {
	store := &Store{useKeyring: false, fallbackDir: t.TempDir()}
	origin := "https://food.example.com"

	require.NoError(t, store.Save(origin, &Session{AccessToken: "x"}))
	require.NoError(t, store.Delete(origin))

	_, err := store.Load(origin)
	assert.ErrorIs(t, err, ErrNoSession)

	// Deleting again is a no-op.
	assert.NoError(t, store.Delete(origin))
}

func TestStoreLoadMissing(t *testing.T) {
	store := &Store{useKeyring: false, fallbackDir: t.TempDir()}

	_, err := store.Load("https://nowhere.example.com")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestStoreLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "credentials.json"), []byte("{not json"), 0600))
	store := &Store{useKeyring: false, fallbackDir: dir}

	_, err := store.Load("https://food.example.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSession)
}

func TestMigrateToKeyringWithoutKeyringIsNoop(t *testing.T) {
	dir := t.TempDir()
	store := &Store{useKeyring: false, fallbackDir: dir}
	require.NoError(t, store.Save("https://food.example.com", &Session{AccessToken: "x"}))

	require.NoError(t, store.MigrateToKeyring())

	_, err := os.Stat(filepath.Join(dir, "credentials.json"))
	assert.NoError(t, err, "file must survive when no keyring is available")
}

func TestKeyFunction(t *testing.T) {
	assert.Equal(t, "preorder::https://food.example.com", key("https://food.example.com"))
}

func TestSessionComplete(t *testing.T) {
	user := json.RawMessage(`{"username":"a"}`)
	assert.True(t, (&Session{AccessToken: "a", RefreshToken: "r", User: user}).Complete())
	assert.False(t, (&Session{AccessToken: "a", RefreshToken: "r"}).Complete())
	assert.False(t, (&Session{AccessToken: "a", User: user}).Complete())
	assert.False(t, (&Session{RefreshToken: "r", User: user}).Complete())
	assert.False(t, (&Session{AccessToken: "a", RefreshToken: "r", User: json.RawMessage("null")}).Complete())

	var nilSession *Session
	assert.False(t, nilSession.Complete())
}

func TestGenerateState(t *testing.T) {
	a := generateState()
	b := generateState()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "=")
}

// =============================================================================
// Manager
// =============================================================================

type fakeBackend struct {
	t        *testing.T
	loginOK  bool
	partial  bool
	requests []string
	bodies   map[string][]byte
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	path := strings.TrimPrefix(r.URL.Path, "/api")
	b.requests = append(b.requests, r.Method+" "+path)
	if b.bodies == nil {
		b.bodies = map[string][]byte{}
	}
	b.bodies[path] = body
	w.Header().Set("Content-Type", "application/json")

	switch path {
	case LoginPath, OAuthCallbackPath:
		if !b.loginOK {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message":"Invalid credentials"}`)
			return
		}
		if b.partial {
			_, _ = io.WriteString(w, `{"accessToken":"acc"}`)
			return
		}
		_, _ = io.WriteString(w, `{"accessToken":"acc","refreshToken":"ref","user":{"id":{"$oid":"u1"},"name":"Asha","username":"asha","role":"ADMIN","theme":"dark"}}`)
	case RegisterPath, ForgotPasswordPath, ResetPasswordPath, VerifyEmailPath:
		_, _ = io.WriteString(w, `{"message":"ok `+path+`"}`)
	case api.RefreshPath:
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"Refresh token expired"}`)
	default:
		w.WriteHeader(http.StatusUnauthorized)
	}
}

func newTestManager(t *testing.T, backend http.Handler) (*Manager, *api.Client, *Store) {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.BaseURL = srv.URL + "/api"
	cfg.MaxRetries = 0
	cfg.Timeout = 5 * time.Second

	store := &Store{useKeyring: false, fallbackDir: t.TempDir()}
	m := NewManager(cfg, store)
	m.openURL = func(string) error { return nil }
	client := api.NewClient(cfg, m)
	m.Attach(client)
	return m, client, store
}

func TestLoginStoresSession(t *testing.T) {
	backend := &fakeBackend{t: t, loginOK: true}
	m, _, store := newTestManager(t, backend)

	user, err := m.Login(context.Background(), "asha", "secret1")
	require.NoError(t, err)

	assert.Equal(t, "asha", user.Username)
	assert.Equal(t, models.ID("u1"), user.ID)
	assert.True(t, m.IsAuthenticated())
	assert.True(t, m.IsAdmin())
	assert.Equal(t, "acc", m.AccessToken())
	assert.Equal(t, "ref", m.RefreshToken())

	var sent map[string]string
	require.NoError(t, json.Unmarshal(backend.bodies[LoginPath], &sent))
	assert.Equal(t, map[string]string{"usernameOrEmail": "asha", "password": "secret1"}, sent)

	persisted, err := store.Load(m.Origin())
	require.NoError(t, err)
	assert.Equal(t, "acc", persisted.AccessToken)
	assert.True(t, persisted.Complete())
}

func TestLoginFailureClearsSession(t *testing.T) {
	backend := &fakeBackend{t: t, loginOK: false}
	m, _, store := newTestManager(t, backend)
	require.NoError(t, store.Save(m.Origin(), &Session{AccessToken: "old", RefreshToken: "old", User: json.RawMessage(`{"username":"x"}`)}))
	require.NoError(t, m.Restore())

	_, err := m.Login(context.Background(), "asha", "wrong")
	require.Error(t, err)

	e := output.AsError(err)
	assert.Equal(t, output.CodeAuth, e.Code)
	assert.Equal(t, "Invalid credentials", e.Message)
	assert.False(t, m.IsAuthenticated())

	// The public login 401 never enters the refresh protocol.
	assert.Equal(t, []string{"POST " + LoginPath}, backend.requests)

	_, err = store.Load(m.Origin())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestLoginIncompleteResponseFails(t *testing.T) {
	backend := &fakeBackend{t: t, loginOK: true, partial: true}
	m, _, store := newTestManager(t, backend)

	_, err := m.Login(context.Background(), "asha", "secret1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incomplete")
	assert.Empty(t, m.AccessToken())

	_, err = store.Load(m.Origin())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestExchangeOAuthCode(t *testing.T) {
	var gotQuery url.Values
	backend := &fakeBackend{t: t, loginOK: true}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, OAuthCallbackPath) {
			gotQuery = r.URL.Query()
			assert.Empty(t, r.Header.Get("Authorization"))
		}
		backend.ServeHTTP(w, r)
	})
	m, _, _ := newTestManager(t, handler)

	user, err := m.ExchangeOAuthCode(context.Background(), "the-code")
	require.NoError(t, err)

	assert.Equal(t, "the-code", gotQuery.Get("code"))
	assert.Equal(t, "asha", user.Username)
	assert.True(t, m.IsAuthenticated())
}

func TestExchangeOAuthCodeRequiresCode(t *testing.T) {
	m, _, _ := newTestManager(t, &fakeBackend{t: t, loginOK: true})

	_, err := m.ExchangeOAuthCode(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, output.CodeUsage, output.AsError(err).Code)
}

func TestLoginWithBrowser(t *testing.T) {
	backend := &fakeBackend{t: t, loginOK: true}
	m, _, _ := newTestManager(t, backend)

	var opened string
	m.openURL = func(u string) error {
		opened = u
		parsed, err := url.Parse(u)
		if err != nil {
			return err
		}
		q := parsed.Query()
		go func() {
			resp, err := http.Get(q.Get("redirect_uri") + "?code=browser-code&state=" + url.QueryEscape(q.Get("state")))
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	user, err := m.LoginWithBrowser(ctx, BrowserLoginOptions{Out: &out})
	require.NoError(t, err)

	assert.Equal(t, "asha", user.Username)
	assert.Contains(t, opened, "/oauth2/authorization/google")
	assert.NotContains(t, opened, "/api/oauth2")
	assert.Contains(t, out.String(), "Opening browser")
	assert.Contains(t, backend.requests, "GET "+OAuthCallbackPath)
}

func TestLoginWithBrowserStateMismatch(t *testing.T) {
	m, _, _ := newTestManager(t, &fakeBackend{t: t, loginOK: true})
	m.openURL = func(u string) error {
		parsed, _ := url.Parse(u)
		go func() {
			resp, err := http.Get(parsed.Query().Get("redirect_uri") + "?code=c&state=forged")
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := m.LoginWithBrowser(ctx, BrowserLoginOptions{Out: io.Discard})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "State mismatch")
	assert.False(t, m.IsAuthenticated())
}

func TestLoginWithBrowserCallbackErrors(t *testing.T) {
	tests := []struct {
		name    string
		query   func(state string) string
		message string
	}{
		{
			name:    "denied",
			query:   func(state string) string { return "?error=access_denied&state=" + url.QueryEscape(state) },
			message: "Google sign-in failed: access_denied",
		},
		{
			name:    "missing code",
			query:   func(state string) string { return "?state=" + url.QueryEscape(state) },
			message: "No authorization code found in callback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{t: t, loginOK: true}
			m, _, _ := newTestManager(t, backend)
			m.openURL = func(u string) error {
				parsed, err := url.Parse(u)
				if err != nil {
					return err
				}
				q := parsed.Query()
				go func() {
					resp, err := http.Get(q.Get("redirect_uri") + tt.query(q.Get("state")))
					if err == nil {
						resp.Body.Close()
					}
				}()
				return nil
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_, err := m.LoginWithBrowser(ctx, BrowserLoginOptions{Out: io.Discard})
			require.Error(t, err)
			e := output.AsError(err)
			assert.Equal(t, output.CodeAuth, e.Code)
			assert.Equal(t, tt.message, e.Message)
			assert.False(t, m.IsAuthenticated())
			assert.NotContains(t, backend.requests, "GET "+OAuthCallbackPath, "nothing to exchange")
		})
	}
}

func TestLoginWithBrowserCancelled(t *testing.T) {
	m, _, _ := newTestManager(t, &fakeBackend{t: t, loginOK: true})

	ctx, cancel := context.WithCancel(context.Background())
	m.openURL = func(string) error {
		cancel()
		return nil
	}

	_, err := m.LoginWithBrowser(ctx, BrowserLoginOptions{Out: io.Discard})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPublicActionsReturnBackendMessage(t *testing.T) {
	backend := &fakeBackend{t: t}
	m, _, _ := newTestManager(t, backend)
	ctx := context.Background()

	msg, err := m.Register(ctx, models.Registration{Name: "Asha", Username: "asha", Email: "a@example.com", Password: "secret1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, "ok "+RegisterPath, msg)

	var reg map[string]any
	require.NoError(t, json.Unmarshal(backend.bodies[RegisterPath], &reg))
	assert.Equal(t, "USER", reg["role"], "self-registration always requests the USER role")

	msg, err = m.ForgotPassword(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ok "+ForgotPasswordPath, msg)
	assert.JSONEq(t, `{"email":"a@example.com"}`, string(backend.bodies[ForgotPasswordPath]))

	_, err = m.ResetPassword(ctx, "tok", "newpass")
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"tok","password":"newpass"}`, string(backend.bodies[ResetPasswordPath]))

	msg, err = m.VerifyEmail(ctx, "verify-tok")
	require.NoError(t, err)
	assert.Equal(t, "ok "+VerifyEmailPath, msg)
}

func TestRestore(t *testing.T) {
	m, _, store := newTestManager(t, &fakeBackend{t: t})
	user := json.RawMessage(`{"username":"asha","role":"USER"}`)
	require.NoError(t, store.Save(m.Origin(), &Session{AccessToken: "a", RefreshToken: "r", User: user}))

	require.NoError(t, m.Restore())

	assert.True(t, m.IsAuthenticated())
	assert.False(t, m.IsAdmin())
	assert.Equal(t, "a", m.AccessToken())
}

func TestRestoreDropsPartialSession(t *testing.T) {
	m, _, store := newTestManager(t, &fakeBackend{t: t})
	require.NoError(t, store.Save(m.Origin(), &Session{AccessToken: "a"}))

	require.NoError(t, m.Restore())

	assert.False(t, m.IsAuthenticated())
	_, err := store.Load(m.Origin())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRestoreWithoutSession(t *testing.T) {
	m, _, _ := newTestManager(t, &fakeBackend{t: t})

	require.NoError(t, m.Restore())
	assert.False(t, m.IsAuthenticated())
}

func TestUpdateTokensKeepsRefreshWhenNotRotated(t *testing.T) {
	m, _, store := newTestManager(t, &fakeBackend{t: t, loginOK: true})
	_, err := m.Login(context.Background(), "asha", "secret1")
	require.NoError(t, err)

	require.NoError(t, m.UpdateTokens("acc-2", ""))
	assert.Equal(t, "acc-2", m.AccessToken())
	assert.Equal(t, "ref", m.RefreshToken())

	require.NoError(t, m.UpdateTokens("acc-3", "ref-3"))
	persisted, err := store.Load(m.Origin())
	require.NoError(t, err)
	assert.Equal(t, "acc-3", persisted.AccessToken)
	assert.Equal(t, "ref-3", persisted.RefreshToken)
	assert.NotEmpty(t, persisted.User)
}

func TestUpdateTokensWhenLoggedOut(t *testing.T) {
	m, _, _ := newTestManager(t, &fakeBackend{t: t})

	err := m.UpdateTokens("a", "r")
	require.Error(t, err)
	assert.True(t, output.IsAuth(err))
}

func TestFailedRefreshLogsOut(t *testing.T) {
	m, client, store := newTestManager(t, &fakeBackend{t: t, loginOK: true})
	_, err := m.Login(context.Background(), "asha", "secret1")
	require.NoError(t, err)

	_, err = client.Get(context.Background(), "/user/items")
	require.Error(t, err)
	assert.True(t, output.IsAuth(err))

	assert.False(t, m.IsAuthenticated())
	_, err = store.Load(m.Origin())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestAttachReplacesSubscription(t *testing.T) {
	m, first, _ := newTestManager(t, &fakeBackend{t: t})
	second := api.NewClient(m.cfg, m)
	m.Attach(second)

	client, err := m.apiClient()
	require.NoError(t, err)
	assert.Same(t, second, client)
	assert.NotSame(t, first, client)
}

func TestUpdateUserMergesFields(t *testing.T) {
	m, _, store := newTestManager(t, &fakeBackend{t: t, loginOK: true})
	_, err := m.Login(context.Background(), "asha", "secret1")
	require.NoError(t, err)

	user, err := m.UpdateUser(models.ProfileUpdate{Name: "Asha R", Number: "9876543210"})
	require.NoError(t, err)

	assert.Equal(t, "Asha R", user.Name)
	assert.Equal(t, "asha", user.Username)
	assert.Equal(t, models.Phone("9876543210"), user.Number)

	persisted, err := store.Load(m.Origin())
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(persisted.User, &raw))
	assert.Equal(t, "dark", raw["theme"], "unmodelled fields survive the merge")
	assert.Equal(t, "Asha R", raw["name"])
}

func TestUpdateUserWhenLoggedOut(t *testing.T) {
	m, _, _ := newTestManager(t, &fakeBackend{t: t})

	_, err := m.UpdateUser(models.ProfileUpdate{Name: "x"})
	assert.True(t, output.IsAuth(err))
}

func TestLogout(t *testing.T) {
	m, _, store := newTestManager(t, &fakeBackend{t: t, loginOK: true})
	_, err := m.Login(context.Background(), "asha", "secret1")
	require.NoError(t, err)

	require.NoError(t, m.Logout())

	assert.False(t, m.IsAuthenticated())
	assert.Empty(t, m.RefreshToken())
	_, err = store.Load(m.Origin())
	assert.ErrorIs(t, err, ErrNoSession)
}

// =============================================================================
// Guards
// =============================================================================

func TestRequireUser(t *testing.T) {
	m, _, _ := newTestManager(t, &fakeBackend{t: t, loginOK: true})

	_, err := RequireUser(m)
	assert.True(t, output.IsAuth(err))

	_, err = m.Login(context.Background(), "asha", "secret1")
	require.NoError(t, err)

	user, err := RequireUser(m)
	require.NoError(t, err)
	assert.Equal(t, "asha", user.Username)
}

func TestRequireAdmin(t *testing.T) {
	m, _, store := newTestManager(t, &fakeBackend{t: t})
	user := json.RawMessage(`{"username":"asha","role":"USER"}`)
	require.NoError(t, store.Save(m.Origin(), &Session{AccessToken: "a", RefreshToken: "r", User: user}))
	require.NoError(t, m.Restore())

	_, err := RequireAdmin(m)
	require.Error(t, err)
	e := output.AsError(err)
	assert.Equal(t, output.CodeForbidden, e.Code)
	assert.Contains(t, e.Hint, "asha")
}
