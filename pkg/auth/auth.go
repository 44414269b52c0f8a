// Package auth owns the client session: loading it at startup, replacing it
// on login and refresh, clearing it on logout, and applying the failure
// policy around authenticated API calls.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dsa-judge/dsactl/pkg/api"
	"github.com/dsa-judge/dsactl/pkg/logging"
	"github.com/dsa-judge/dsactl/pkg/models"
	"github.com/dsa-judge/dsactl/pkg/store"
)

var (
	ErrNotLoggedIn    = errors.New("not logged in")
	ErrSessionExpired = errors.New("session expired, please log in again")
)

// Authenticator is the subset of the API used for session lifecycle
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*models.TokenResponse, error)
	RefreshToken(ctx context.Context) (string, error)
}

// CookieHolder exposes the API cookies so the refresh cookie survives restarts
type CookieHolder interface {
	Cookies() []*http.Cookie
	SetCookies([]*http.Cookie)
}

// Notifier surfaces blocking messages to the user
type Notifier interface {
	Alert(message string)
}

// WriterNotifier prints alerts to a writer
type WriterNotifier struct {
	W io.Writer
}

// Alert implements Notifier
func (n WriterNotifier) Alert(message string) {
	fmt.Fprintf(n.W, "error: %s\n", message)
}

type nopNotifier struct{}

func (nopNotifier) Alert(string) {}

// Manager is the process-wide session object. It is created once and
// injected wherever authenticated calls are made.
type Manager struct {
	mu       sync.RWMutex
	session  *models.Session
	store    store.SessionStore
	authn    Authenticator
	cookies  CookieHolder
	notifier Notifier
	onLogout func()
	logger   *logging.Logger
	now      func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithNotifier sets the alert sink
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithLogoutHook sets the function that sends the user to the login boundary
func WithLogoutHook(fn func()) Option {
	return func(m *Manager) { m.onLogout = fn }
}

// WithCookieHolder persists API cookies alongside the session
func WithCookieHolder(c CookieHolder) Option {
	return func(m *Manager) { m.cookies = c }
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.logger = l.WithField("component", "auth") }
}

// WithClock overrides time.Now (tests)
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager and initializes it from the store
func NewManager(s store.SessionStore, authn Authenticator, opts ...Option) (*Manager, error) {
	m := &Manager{
		store:    s,
		authn:    authn,
		notifier: nopNotifier{},
		logger:   logging.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	session, err := s.Load()
	switch {
	case errors.Is(err, store.ErrNoSession):
	case err != nil:
		return nil, fmt.Errorf("failed to load session: %w", err)
	default:
		m.session = session
		m.restoreCookies(session)
	}
	return m, nil
}

// Session returns a copy of the active session, or nil
func (m *Manager) Session() *models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return nil
	}
	cp := *m.session
	return &cp
}

// Credentials returns the bearer credentials of the active session
func (m *Manager) Credentials() api.Credentials {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return api.Credentials{}
	}
	return api.Credentials{Token: m.session.AccessToken, TokenType: m.session.TokenType}
}

// Login authenticates and persists the new session
func (m *Manager) Login(ctx context.Context, username, password string) (*models.Session, error) {
	token, err := m.authn.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		UserID:      token.UserID,
		Role:        token.Role,
		ExpiresAt:   m.expiryOf(token.AccessToken, token.ExpiresIn),
	}
	if err := m.replace(session); err != nil {
		return nil, err
	}
	m.logger.Info("logged in", map[string]interface{}{"user_id": session.UserID, "role": string(session.Role)})
	return m.Session(), nil
}

// Refresh obtains a new access token through the refresh endpoint
func (m *Manager) Refresh(ctx context.Context) (api.Credentials, error) {
	token, err := m.authn.RefreshToken(ctx)
	if err != nil {
		return api.Credentials{}, err
	}

	m.mu.RLock()
	current := m.session
	m.mu.RUnlock()
	if current == nil {
		return api.Credentials{}, ErrNotLoggedIn
	}

	session := *current
	session.AccessToken = token
	session.ExpiresAt = m.expiryOf(token, 0)
	if err := m.save(&session, true); err != nil {
		return api.Credentials{}, err
	}
	m.logger.Debug("access token refreshed")
	return api.Credentials{Token: session.AccessToken, TokenType: session.TokenType}, nil
}

// Logout clears persisted and in-memory state and sends the user to the
// login boundary. Calling it repeatedly is safe.
func (m *Manager) Logout() {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()

	if err := m.store.Clear(); err != nil {
		m.logger.Warn("failed to clear stored session", map[string]interface{}{"error": err.Error()})
	}
	if m.cookies != nil {
		m.cookies.SetCookies(expireAll(m.cookies.Cookies()))
	}
	if m.onLogout != nil {
		m.onLogout()
	}
}

func (m *Manager) replace(session *models.Session) error {
	return m.save(session, false)
}

// save installs and persists session. With mustExist a session cleared by a
// concurrent Logout is not brought back.
func (m *Manager) save(session *models.Session, mustExist bool) error {
	if m.cookies != nil {
		session.Cookies = toStored(m.cookies.Cookies())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if mustExist && m.session == nil {
		return ErrNotLoggedIn
	}
	m.session = session

	if err := m.store.Save(session); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

// expired reports whether the session expiry is known and has passed
func (m *Manager) expired() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session != nil && m.session.Expired(m.now())
}

func (m *Manager) loggedIn() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session != nil
}

// expiryOf prefers the explicit lifetime, then the JWT exp claim.
// Tokens that are not JWTs have unknown expiry.
func (m *Manager) expiryOf(token string, expiresIn int64) time.Time {
	if expiresIn > 0 {
		return m.now().Add(time.Duration(expiresIn) * time.Second)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

func (m *Manager) restoreCookies(session *models.Session) {
	if m.cookies == nil || len(session.Cookies) == 0 {
		return
	}
	cookies := make([]*http.Cookie, 0, len(session.Cookies))
	for _, c := range session.Cookies {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: c.Path, Expires: c.Expires})
	}
	m.cookies.SetCookies(cookies)
}

func toStored(cookies []*http.Cookie) []models.StoredCookie {
	out := make([]models.StoredCookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, models.StoredCookie{Name: c.Name, Value: c.Value, Path: c.Path, Expires: c.Expires})
	}
	return out
}

func expireAll(cookies []*http.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}
		out = append(out, &http.Cookie{Name: c.Name, Value: "", Path: path, MaxAge: -1})
	}
	return out
}
