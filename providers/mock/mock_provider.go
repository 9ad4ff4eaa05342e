// Package mock provides mock implementations of the Provider interface for testing.
package mock

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"

	"github.com/matchmakerhq/matchmaker-auth/providers"
)

// MockProvider is a mock implementation of the Provider interface for testing
type MockProvider struct {
	// NameFunc is called when Name() is invoked
	NameFunc func() string

	// AuthenticateFunc is called when Authenticate() is invoked
	AuthenticateFunc func(ctx context.Context, email, password string) (*providers.UserInfo, *oauth2.Token, error)

	// SignUpFunc is called when SignUp() is invoked
	SignUpFunc func(ctx context.Context, email, password string) (*providers.UserInfo, *oauth2.Token, error)

	// ValidateTokenFunc is called when ValidateToken() is invoked
	ValidateTokenFunc func(ctx context.Context, accessToken string) (*providers.UserInfo, error)

	// RefreshSessionFunc is called when RefreshSession() is invoked
	RefreshSessionFunc func(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// HealthCheckFunc is called when HealthCheck() is invoked
	HealthCheckFunc func(ctx context.Context) error

	// CallCounts tracks how many times each method was called
	CallCounts map[string]int

	// mu protects CallCounts from concurrent access
	mu sync.RWMutex
}

// Compile-time interface check
var _ providers.Provider = (*MockProvider)(nil)

// NewMockProvider creates a new mock provider with default implementations
func NewMockProvider() *MockProvider {
	return &MockProvider{
		CallCounts: make(map[string]int),
		NameFunc: func() string {
			return "mock"
		},
		AuthenticateFunc: func(ctx context.Context, email, password string) (*providers.UserInfo, *oauth2.Token, error) {
			return &providers.UserInfo{
					ID:            "mock-user-123",
					Email:         email,
					EmailVerified: true,
					Name:          "Mock User",
				}, &oauth2.Token{
					AccessToken:  "mock-access-token",
					TokenType:    "Bearer",
					RefreshToken: "mock-refresh-token",
				}, nil
		},
		SignUpFunc: func(ctx context.Context, email, password string) (*providers.UserInfo, *oauth2.Token, error) {
			return &providers.UserInfo{
					ID:    "mock-user-456",
					Email: email,
				}, &oauth2.Token{
					AccessToken:  "mock-signup-access-token",
					TokenType:    "Bearer",
					RefreshToken: "mock-signup-refresh-token",
				}, nil
		},
		ValidateTokenFunc: func(ctx context.Context, accessToken string) (*providers.UserInfo, error) {
			return &providers.UserInfo{
				ID:            "mock-user-123",
				Email:         "mock@example.com",
				EmailVerified: true,
				Name:          "Mock User",
			}, nil
		},
		RefreshSessionFunc: func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
			return &oauth2.Token{
				AccessToken:  "new-mock-access-token",
				TokenType:    "Bearer",
				RefreshToken: "new-mock-refresh-token",
			}, nil
		},
		HealthCheckFunc: func(ctx context.Context) error {
			return nil
		},
	}
}

// Name returns the provider name
func (m *MockProvider) Name() string {
	// LOCK PATTERN: Lock only to update counter and read function reference
	// Release lock BEFORE calling user function to prevent deadlocks
	// (user function might call other mock methods)
	m.mu.Lock()
	m.CallCounts["Name"]++
	fn := m.NameFunc
	m.mu.Unlock()

	// Call user function WITHOUT holding lock (deadlock prevention)
	if fn == nil {
		return "mock" // Safe default
	}
	return fn()
}

// Authenticate verifies credentials and returns a user and session
func (m *MockProvider) Authenticate(ctx context.Context, email, password string) (*providers.UserInfo, *oauth2.Token, error) {
	m.mu.Lock()
	m.CallCounts["Authenticate"]++
	fn := m.AuthenticateFunc
	m.mu.Unlock()
	if fn == nil {
		return nil, nil, fmt.Errorf("AuthenticateFunc not configured")
	}
	return fn(ctx, email, password)
}

// SignUp creates a new account and returns a user and session
func (m *MockProvider) SignUp(ctx context.Context, email, password string) (*providers.UserInfo, *oauth2.Token, error) {
	m.mu.Lock()
	m.CallCounts["SignUp"]++
	fn := m.SignUpFunc
	m.mu.Unlock()
	if fn == nil {
		return nil, nil, fmt.Errorf("SignUpFunc not configured")
	}
	return fn(ctx, email, password)
}

// ValidateToken validates an access token and returns user information
func (m *MockProvider) ValidateToken(ctx context.Context, accessToken string) (*providers.UserInfo, error) {
	m.mu.Lock()
	m.CallCounts["ValidateToken"]++
	fn := m.ValidateTokenFunc
	m.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("ValidateTokenFunc not configured")
	}
	return fn(ctx, accessToken)
}

// RefreshSession exchanges a refresh token for a new session
func (m *MockProvider) RefreshSession(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	m.mu.Lock()
	m.CallCounts["RefreshSession"]++
	fn := m.RefreshSessionFunc
	m.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("RefreshSessionFunc not configured")
	}
	return fn(ctx, refreshToken)
}

// HealthCheck reports provider health
func (m *MockProvider) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	m.CallCounts["HealthCheck"]++
	fn := m.HealthCheckFunc
	m.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// ResetCallCounts resets all call counters
func (m *MockProvider) ResetCallCounts() {
	m.mu.Lock()
	m.CallCounts = make(map[string]int)
	m.mu.Unlock()
}

// GetCallCount returns the number of times a method was called
func (m *MockProvider) GetCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CallCounts[method]
}
