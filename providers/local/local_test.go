package local

import (
	"context"
	"errors"
	"testing"

	"github.com/matchmakerhq/matchmaker-auth/providers"
)

func TestProvider_Authenticate(t *testing.T) {
	p := New()
	ctx := context.Background()

	id, err := p.AddUser("user@example.com", "hunter2", WithName("Test User"), WithScopes("mcp:access"))
	if err != nil {
		t.Fatalf("AddUser() error = %v", err)
	}

	info, token, err := p.Authenticate(ctx, "user@example.com", "hunter2")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	if info.ID != id {
		t.Errorf("ID = %q, want %q", info.ID, id)
	}
	if info.Name != "Test User" {
		t.Errorf("Name = %q, want Test User", info.Name)
	}
	if !info.HasScope("mcp:access") {
		t.Error("user should have mcp:access scope")
	}
	if token.AccessToken == "" || token.RefreshToken == "" {
		t.Error("session tokens should not be empty")
	}
}

func TestProvider_Authenticate_CaseInsensitiveEmail(t *testing.T) {
	p := New()

	if _, err := p.AddUser("User@Example.com", "hunter2"); err != nil {
		t.Fatalf("AddUser() error = %v", err)
	}

	if _, _, err := p.Authenticate(context.Background(), "user@example.com", "hunter2"); err != nil {
		t.Errorf("Authenticate() with different casing error = %v", err)
	}
}

func TestProvider_Authenticate_WrongPassword(t *testing.T) {
	p := New()

	if _, err := p.AddUser("user@example.com", "hunter2"); err != nil {
		t.Fatalf("AddUser() error = %v", err)
	}

	_, _, err := p.Authenticate(context.Background(), "user@example.com", "wrong")
	if !errors.Is(err, providers.ErrInvalidCredentials) {
		t.Errorf("Authenticate() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestProvider_Authenticate_UnknownUser(t *testing.T) {
	p := New()

	_, _, err := p.Authenticate(context.Background(), "nobody@example.com", "hunter2")
	if !errors.Is(err, providers.ErrInvalidCredentials) {
		t.Errorf("Authenticate() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestProvider_SignUp(t *testing.T) {
	p := New()
	ctx := context.Background()

	info, token, err := p.SignUp(ctx, "new@example.com", "hunter2")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if info.Email != "new@example.com" {
		t.Errorf("Email = %q, want new@example.com", info.Email)
	}
	if token.AccessToken == "" {
		t.Error("SignUp() should issue a session")
	}

	// Account is usable immediately
	if _, _, err := p.Authenticate(ctx, "new@example.com", "hunter2"); err != nil {
		t.Errorf("Authenticate() after SignUp() error = %v", err)
	}
}

func TestProvider_SignUp_DuplicateEmail(t *testing.T) {
	p := New()
	ctx := context.Background()

	if _, _, err := p.SignUp(ctx, "new@example.com", "hunter2"); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	_, _, err := p.SignUp(ctx, "new@example.com", "other-password")
	if err == nil {
		t.Error("SignUp() with duplicate email should return error")
	}
}

func TestProvider_ValidateToken(t *testing.T) {
	p := New()
	ctx := context.Background()

	if _, err := p.AddUser("user@example.com", "hunter2"); err != nil {
		t.Fatalf("AddUser() error = %v", err)
	}
	_, token, err := p.Authenticate(ctx, "user@example.com", "hunter2")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	info, err := p.ValidateToken(ctx, token.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if info.Email != "user@example.com" {
		t.Errorf("Email = %q, want user@example.com", info.Email)
	}

	if _, err := p.ValidateToken(ctx, "garbage"); !errors.Is(err, providers.ErrInvalidCredentials) {
		t.Errorf("ValidateToken() with unknown token error = %v, want ErrInvalidCredentials", err)
	}
}

func TestProvider_RefreshSession(t *testing.T) {
	p := New()
	ctx := context.Background()

	if _, err := p.AddUser("user@example.com", "hunter2"); err != nil {
		t.Fatalf("AddUser() error = %v", err)
	}
	_, token, err := p.Authenticate(ctx, "user@example.com", "hunter2")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	refreshed, err := p.RefreshSession(ctx, token.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshSession() error = %v", err)
	}
	if refreshed.AccessToken == token.AccessToken {
		t.Error("refreshed session should carry a new access token")
	}

	// Refresh tokens are single use
	if _, err := p.RefreshSession(ctx, token.RefreshToken); !errors.Is(err, providers.ErrInvalidCredentials) {
		t.Errorf("second RefreshSession() error = %v, want ErrInvalidCredentials", err)
	}
}
