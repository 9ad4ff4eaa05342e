// Package local implements an in-memory identity provider backed by bcrypt
// password hashes. It exists for development and tests; nothing persists
// across restarts and there is no external dependency.
package local

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/matchmakerhq/matchmaker-auth/providers"
)

// DefaultSessionTTL is the lifetime of sessions issued by the local provider.
const DefaultSessionTTL = time.Hour

// Provider implements providers.Provider with an in-memory user table.
type Provider struct {
	mu sync.RWMutex

	users      map[string]*localUser // lowercase email -> user
	sessions   map[string]string     // access token -> user ID
	refreshes  map[string]string     // refresh token -> user ID
	sessionTTL time.Duration
	nextID     int
}

type localUser struct {
	id           string
	email        string
	passwordHash []byte
	verified     bool
	name         string
	scopes       []string
}

// Compile-time interface check
var _ providers.Provider = (*Provider)(nil)

// New creates an empty local provider
func New() *Provider {
	return &Provider{
		users:      make(map[string]*localUser),
		sessions:   make(map[string]string),
		refreshes:  make(map[string]string),
		sessionTTL: DefaultSessionTTL,
	}
}

// UserOption configures a user added with AddUser
type UserOption func(*localUser)

// WithName sets the user's display name
func WithName(name string) UserOption {
	return func(u *localUser) { u.name = name }
}

// WithScopes sets the user's granted scopes
func WithScopes(scopes ...string) UserOption {
	return func(u *localUser) { u.scopes = scopes }
}

// WithUnverifiedEmail marks the user's email as unverified
func WithUnverifiedEmail() UserOption {
	return func(u *localUser) { u.verified = false }
}

// AddUser registers a user with a bcrypt-hashed password. Emails are
// case-insensitive. Returns the assigned user ID.
func (p *Provider) AddUser(email, password string, opts ...UserOption) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := strings.ToLower(email)
	if _, exists := p.users[key]; exists {
		return "", fmt.Errorf("user %s already exists", email)
	}

	p.nextID++
	u := &localUser{
		id:           fmt.Sprintf("local-user-%d", p.nextID),
		email:        email,
		passwordHash: hash,
		verified:     true,
	}
	for _, opt := range opts {
		opt(u)
	}
	p.users[key] = u

	return u.id, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "local"
}

// Authenticate verifies the password against the stored bcrypt hash and
// issues a fresh session
func (p *Provider) Authenticate(ctx context.Context, email, password string) (*providers.UserInfo, *oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.users[strings.ToLower(email)]
	if !ok {
		// Burn a bcrypt comparison so unknown users cost the same as
		// wrong passwords
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, nil, providers.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		return nil, nil, providers.ErrInvalidCredentials
	}

	return p.userInfoLocked(u), p.issueSessionLocked(u), nil
}

// SignUp creates an account and signs it in
func (p *Provider) SignUp(ctx context.Context, email, password string) (*providers.UserInfo, *oauth2.Token, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := strings.ToLower(email)
	if _, exists := p.users[key]; exists {
		return nil, nil, fmt.Errorf("%w: account already exists", providers.ErrInvalidCredentials)
	}

	p.nextID++
	u := &localUser{
		id:           fmt.Sprintf("local-user-%d", p.nextID),
		email:        email,
		passwordHash: hash,
		verified:     true,
	}
	p.users[key] = u

	return p.userInfoLocked(u), p.issueSessionLocked(u), nil
}

// ValidateToken resolves a session access token to its user
func (p *Provider) ValidateToken(ctx context.Context, accessToken string) (*providers.UserInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	userID, ok := p.sessions[accessToken]
	if !ok {
		return nil, providers.ErrInvalidCredentials
	}

	for _, u := range p.users {
		if u.id == userID {
			return p.userInfoLocked(u), nil
		}
	}

	return nil, providers.ErrInvalidCredentials
}

// RefreshSession rotates a refresh token into a new session pair
func (p *Provider) RefreshSession(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	userID, ok := p.refreshes[refreshToken]
	if !ok {
		return nil, providers.ErrInvalidCredentials
	}
	delete(p.refreshes, refreshToken)

	for _, u := range p.users {
		if u.id == userID {
			return p.issueSessionLocked(u), nil
		}
	}

	return nil, providers.ErrInvalidCredentials
}

// HealthCheck always succeeds; the provider has no external dependency
func (p *Provider) HealthCheck(ctx context.Context) error {
	return nil
}

// issueSessionLocked mints a session token pair. Caller must hold p.mu.
func (p *Provider) issueSessionLocked(u *localUser) *oauth2.Token {
	access := oauth2.GenerateVerifier()
	refresh := oauth2.GenerateVerifier()
	p.sessions[access] = u.id
	p.refreshes[refresh] = u.id

	return &oauth2.Token{
		AccessToken:  access,
		TokenType:    "Bearer",
		RefreshToken: refresh,
		Expiry:       time.Now().Add(p.sessionTTL),
	}
}

// userInfoLocked builds the UserInfo view of a user. Caller must hold p.mu.
func (p *Provider) userInfoLocked(u *localUser) *providers.UserInfo {
	return &providers.UserInfo{
		ID:            u.id,
		Email:         u.email,
		EmailVerified: u.verified,
		Name:          u.name,
		Scopes:        u.scopes,
	}
}

// dummyHash is a bcrypt hash compared against for unknown users to keep
// authentication timing independent of user existence
var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("local-provider-dummy"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}()
