package providers

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
)

// ErrInvalidCredentials indicates the provider rejected the presented email,
// password, or session token. Implementations return it for every rejection
// so callers cannot tell unknown users from wrong passwords.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Provider defines the interface for identity providers.
// The provider owns user credentials and sessions; this server never stores
// passwords and never mints its own access tokens. A provider session is
// carried as a standard oauth2.Token pair.
type Provider interface {
	// Name returns the provider name (e.g., "supabase", "local")
	Name() string

	// Authenticate verifies an email/password pair and returns the user's
	// identity and a fresh session. Invalid credentials return an error;
	// callers must not distinguish bad-password from unknown-user.
	Authenticate(ctx context.Context, email, password string) (*UserInfo, *oauth2.Token, error)

	// SignUp creates a new account and returns the identity and session.
	// Providers that require email confirmation may return a session with
	// an empty access token.
	SignUp(ctx context.Context, email, password string) (*UserInfo, *oauth2.Token, error)

	// ValidateToken validates a session access token and returns user information
	ValidateToken(ctx context.Context, accessToken string) (*UserInfo, error)

	// RefreshSession exchanges a refresh token for a new session pair
	RefreshSession(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// HealthCheck verifies that the provider is reachable and functioning correctly.
	// This is useful for readiness/liveness probes and startup validation.
	// Returns nil if the provider is healthy, or an error describing the issue.
	HealthCheck(ctx context.Context) error
}

// UserInfo represents user information from a provider
type UserInfo struct {
	// ID is the unique user identifier from the provider
	ID string

	// Email is the user's email address
	Email string

	// EmailVerified indicates if the email is verified
	EmailVerified bool

	// Name is the user's display name, if the provider carries one
	Name string

	// Scopes is the set of scopes granted to the user in provider metadata.
	// A nil slice means the provider holds no scope information for the
	// user; access policy for that case is decided by server configuration.
	Scopes []string
}

// HasScope reports whether the user's provider metadata grants the scope.
// Returns false when Scopes is nil; unscoped-user policy is the caller's.
func (u *UserInfo) HasScope(scope string) bool {
	for _, s := range u.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
