// Package auth owns the login session: it persists tokens and identity,
// exposes them to the API client and performs the login flows.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/preorder/preorder-cli/internal/api"
	"github.com/preorder/preorder-cli/internal/config"
	"github.com/preorder/preorder-cli/internal/models"
	"github.com/preorder/preorder-cli/internal/output"
)

// Backend endpoints used by the login flows.
const (
	LoginPath          = "/public/login"
	RegisterPath       = "/public/register"
	ForgotPasswordPath = "/public/forgot-password"
	ResetPasswordPath  = "/public/reset-password"
	VerifyEmailPath    = "/public/verify-email"
	OAuthCallbackPath  = "/auth/google/callback"
	oauthAuthorizePath = "/oauth2/authorization/google"

	// DefaultCallbackPort is where the browser login listens for the redirect.
	DefaultCallbackPort = 8976
	callbackTimeout     = 5 * time.Minute
)

// Manager owns the session for one backend origin. It implements
// api.SessionStore and is safe for concurrent use.
type Manager struct {
	cfg    *config.Config
	store  *Store
	origin string

	mu      sync.RWMutex
	session *Session
	client  *api.Client
	detach  func()

	// openURL launches a browser; replaced in tests.
	openURL func(string) error
}

var _ api.SessionStore = (*Manager)(nil)

// NewManager creates a session manager backed by store.
func NewManager(cfg *config.Config, store *Store) *Manager {
	return &Manager{
		cfg:     cfg,
		store:   store,
		origin:  config.NormalizeBaseURL(cfg.BaseURL),
		openURL: openBrowser,
	}
}

// Attach binds the API client used by the login flows and subscribes the
// manager to the client's logout signal.
func (m *Manager) Attach(client *api.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.detach != nil {
		m.detach()
	}
	m.client = client
	m.detach = client.OnLogout(func() {
		// A failed cleanup still leaves memory cleared; the next Restore
		// drops an incomplete or rejected session again.
		_ = m.Logout()
	})
}

// Restore loads the persisted session. A partial or unreadable session is
// discarded. Having no session is not an error.
func (m *Manager) Restore() error {
	// Sessions saved while the keyring was unavailable move into it once it is.
	_ = m.store.MigrateToKeyring()

	sess, err := m.store.Load(m.origin)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			m.setSession(nil)
			return nil
		}
		m.setSession(nil)
		_ = m.store.Delete(m.origin)
		return nil //nolint:nilerr // corrupt sessions are dropped, not fatal
	}
	if !sess.Complete() {
		m.setSession(nil)
		return m.store.Delete(m.origin)
	}
	m.setSession(sess)
	return nil
}

func (m *Manager) setSession(sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = sess
}

// AccessToken returns the current access token, or "" when logged out.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return ""
	}
	return m.session.AccessToken
}

// RefreshToken returns the current refresh token, or "" when logged out.
func (m *Manager) RefreshToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return ""
	}
	return m.session.RefreshToken
}

// UpdateTokens stores a refreshed token pair. An empty refresh keeps the
// current refresh token.
func (m *Manager) UpdateTokens(access, refresh string) error {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return output.ErrAuth("Not logged in")
	}
	next := *m.session
	next.AccessToken = access
	if refresh != "" {
		next.RefreshToken = refresh
	}
	m.session = &next
	m.mu.Unlock()

	return m.store.Save(m.origin, &next)
}

// Login authenticates with a username or email and password.
func (m *Manager) Login(ctx context.Context, usernameOrEmail, password string) (models.User, error) {
	client, err := m.apiClient()
	if err != nil {
		return models.User{}, err
	}

	resp, err := client.Send(ctx, &api.Request{
		Method: http.MethodPost,
		Path:   LoginPath,
		Body:   map[string]string{"usernameOrEmail": usernameOrEmail, "password": password},
		Public: true,
	})
	if err != nil {
		m.clear()
		return models.User{}, err
	}
	return m.establish(resp.Data, "Login")
}

// ExchangeOAuthCode completes a Google sign-in with the authorization code
// the backend redirected the browser with.
func (m *Manager) ExchangeOAuthCode(ctx context.Context, code string) (models.User, error) {
	if code == "" {
		return models.User{}, output.ErrUsage("No authorization code provided")
	}
	client, err := m.apiClient()
	if err != nil {
		return models.User{}, err
	}

	resp, err := client.Send(ctx, &api.Request{
		Method: http.MethodGet,
		Path:   OAuthCallbackPath,
		Query:  url.Values{"code": {code}},
		Public: true,
	})
	if err != nil {
		m.clear()
		return models.User{}, err
	}
	return m.establish(resp.Data, "OAuth login")
}

// establish stores the tokens and identity from a login response. All three
// are required; anything less clears the session.
func (m *Manager) establish(data []byte, flow string) (models.User, error) {
	result := gjson.ParseBytes(data)
	sess := &Session{
		AccessToken:  result.Get("accessToken").String(),
		RefreshToken: result.Get("refreshToken").String(),
	}
	if u := result.Get("user"); u.IsObject() {
		sess.User = json.RawMessage(u.Raw)
	}

	if !sess.Complete() {
		m.clear()
		return models.User{}, output.ErrAuth(flow + " response was incomplete")
	}

	var user models.User
	if err := json.Unmarshal(sess.User, &user); err != nil {
		m.clear()
		return models.User{}, output.ErrAuth(fmt.Sprintf("%s returned an invalid user: %v", flow, err))
	}

	m.setSession(sess)
	if err := m.store.Save(m.origin, sess); err != nil {
		return user, fmt.Errorf("failed to save session: %w", err)
	}
	return user, nil
}

// BrowserLoginOptions configures LoginWithBrowser.
type BrowserLoginOptions struct {
	// NoBrowser prints the URL instead of launching a browser.
	NoBrowser bool
	// Port for the local callback listener. 0 picks a free port.
	Port int
	// Out receives instructions for the user. Defaults to stderr.
	Out io.Writer
}

// LoginWithBrowser runs the Google sign-in in a browser and waits on a
// local listener for the redirect carrying the authorization code.
func (m *Manager) LoginWithBrowser(ctx context.Context, opts BrowserLoginOptions) (models.User, error) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("127.0.0.1:%d", opts.Port))
	if err != nil {
		return models.User{}, fmt.Errorf("failed to start callback server: %w", err)
	}
	defer func() { _ = listener.Close() }()

	state := generateState()
	redirectURI := fmt.Sprintf("http://%s/callback", listener.Addr().String())
	authURL, err := m.authorizeURL(redirectURI, state)
	if err != nil {
		return models.User{}, err
	}

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	server := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if errParam := q.Get("error"); errParam != "" {
				sendOnce[error](errCh, output.ErrAuth("Google sign-in failed: "+errParam))
				fmt.Fprint(w, "<html><body><h1>Sign-in failed</h1><p>You can close this window.</p></body></html>")
				return
			}
			if q.Get("state") != state {
				sendOnce[error](errCh, output.ErrAuth("State mismatch in sign-in callback"))
				fmt.Fprint(w, "<html><body><h1>Sign-in failed</h1><p>State mismatch.</p></body></html>")
				return
			}
			code := q.Get("code")
			if code == "" {
				sendOnce[error](errCh, output.ErrAuth("No authorization code found in callback"))
				fmt.Fprint(w, "<html><body><h1>Sign-in failed</h1><p>No authorization code.</p></body></html>")
				return
			}
			sendOnce(codeCh, code)
			fmt.Fprint(w, "<html><body><h1>Signed in</h1><p>You can close this window.</p></body></html>")
		}),
	}
	go func() { _ = server.Serve(listener) }()
	defer func() { _ = server.Close() }()

	if opts.NoBrowser {
		fmt.Fprintf(out, "\nOpen this URL in your browser:\n%s\n\nWaiting for sign-in...\n", authURL)
	} else if err := m.openURL(authURL); err != nil {
		fmt.Fprintf(out, "\nCouldn't open browser automatically.\nOpen this URL in your browser:\n%s\n\nWaiting for sign-in...\n", authURL)
	} else {
		fmt.Fprintf(out, "\nOpening browser for sign-in...\nIf the browser doesn't open, visit: %s\n\nWaiting for sign-in...\n", authURL)
	}

	select {
	case code := <-codeCh:
		return m.ExchangeOAuthCode(ctx, code)
	case err := <-errCh:
		m.clear()
		return models.User{}, err
	case <-ctx.Done():
		return models.User{}, ctx.Err()
	case <-time.After(callbackTimeout):
		return models.User{}, output.ErrAuth("Timed out waiting for sign-in")
	}
}

// authorizeURL builds the backend's Google authorization URL. The OAuth
// endpoint lives at the server root, outside the API prefix.
func (m *Manager) authorizeURL(redirectURI, state string) (string, error) {
	base, err := url.Parse(m.origin)
	if err != nil || base.Host == "" {
		return "", output.ErrUsage(fmt.Sprintf("invalid base URL %q", m.origin))
	}
	u := url.URL{Scheme: base.Scheme, Host: base.Host, Path: oauthAuthorizePath}
	q := url.Values{}
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func sendOnce[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

// Register creates an account with the USER role and returns the backend's message.
func (m *Manager) Register(ctx context.Context, reg models.Registration) (string, error) {
	reg.Role = models.RoleUser
	return m.publicPost(ctx, RegisterPath, nil, reg)
}

// ForgotPassword asks the backend to email a password reset link.
func (m *Manager) ForgotPassword(ctx context.Context, email string) (string, error) {
	return m.publicPost(ctx, ForgotPasswordPath, nil, map[string]string{"email": email})
}

// ResetPassword sets a new password using the token from a reset link.
func (m *Manager) ResetPassword(ctx context.Context, token, password string) (string, error) {
	return m.publicPost(ctx, ResetPasswordPath, nil, map[string]string{"token": token, "password": password})
}

// VerifyEmail confirms an address using the token from a verification link.
func (m *Manager) VerifyEmail(ctx context.Context, token string) (string, error) {
	return m.publicPost(ctx, VerifyEmailPath, url.Values{"token": {token}}, nil)
}

func (m *Manager) publicPost(ctx context.Context, path string, query url.Values, body any) (string, error) {
	client, err := m.apiClient()
	if err != nil {
		return "", err
	}
	resp, err := client.Send(ctx, &api.Request{
		Method: http.MethodPost,
		Path:   path,
		Query:  query,
		Body:   body,
		Public: true,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Data) > 0 && gjson.ValidBytes(resp.Data) {
		return gjson.GetBytes(resp.Data, "message").String(), nil
	}
	return string(resp.Data), nil
}

func (m *Manager) apiClient() (*api.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil, errors.New("auth manager has no API client attached")
	}
	return m.client, nil
}

// Logout forgets the session in memory and in the store.
func (m *Manager) Logout() error {
	m.setSession(nil)
	return m.store.Delete(m.origin)
}

func (m *Manager) clear() {
	_ = m.Logout()
}

// User returns the stored identity. ok is false when logged out.
func (m *Manager) User() (user models.User, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil || len(m.session.User) == 0 {
		return models.User{}, false
	}
	if err := json.Unmarshal(m.session.User, &user); err != nil {
		return models.User{}, false
	}
	return user, true
}

// IsAuthenticated reports whether both a token and an identity are held.
func (m *Manager) IsAuthenticated() bool {
	if m.AccessToken() == "" {
		return false
	}
	_, ok := m.User()
	return ok
}

// IsAdmin reports whether the signed-in user has the admin role.
func (m *Manager) IsAdmin() bool {
	u, ok := m.User()
	return ok && u.IsAdmin()
}

// UpdateUser merges profile changes into the stored identity, keeping any
// fields the backend sent that this client does not model.
func (m *Manager) UpdateUser(patch models.ProfileUpdate) (models.User, error) {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return models.User{}, output.ErrAuth("Not logged in")
	}

	merged := map[string]json.RawMessage{}
	if len(m.session.User) > 0 {
		if err := json.Unmarshal(m.session.User, &merged); err != nil {
			m.mu.Unlock()
			return models.User{}, fmt.Errorf("stored user is invalid: %w", err)
		}
	}
	changes, err := json.Marshal(patch)
	if err != nil {
		m.mu.Unlock()
		return models.User{}, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(changes, &fields); err != nil {
		m.mu.Unlock()
		return models.User{}, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		m.mu.Unlock()
		return models.User{}, err
	}

	next := *m.session
	next.User = raw
	m.session = &next
	m.mu.Unlock()

	var user models.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return models.User{}, err
	}
	return user, m.store.Save(m.origin, &next)
}

// Origin returns the backend origin sessions are keyed by.
func (m *Manager) Origin() string {
	return m.origin
}

// UsingKeyring reports whether sessions are kept in the system keyring.
func (m *Manager) UsingKeyring() bool {
	return m.store.UsingKeyring()
}

func generateState() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// openBrowser opens the specified URL in the default browser.
func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "linux":
		cmd = "xdg-open"
		args = []string{url}
	case "windows":
		cmd = "rundll32"
		args = []string{"url.dll,FileProtocolHandler", url}
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return exec.Command(cmd, args...).Start() //nolint:gosec,noctx // cmd is fixed per platform
}
