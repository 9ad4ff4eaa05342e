package testutil

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/matchmakerhq/matchmaker-auth/providers"
	"github.com/matchmakerhq/matchmaker-auth/storage"
)

// NewMockHTTPServer creates a test HTTP server with the given handler
func NewMockHTTPServer(handler http.HandlerFunc) *httptest.Server {
	return httptest.NewServer(handler)
}

// GenerateTestSession creates a provider session token pair for tests
func GenerateTestSession() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  GenerateRandomString(32),
		TokenType:    "Bearer",
		RefreshToken: GenerateRandomString(32),
		Expiry:       time.Now().Add(1 * time.Hour),
	}
}

// GenerateTestUserInfo creates test user information
func GenerateTestUserInfo() *providers.UserInfo {
	return &providers.UserInfo{
		ID:            "test-user-123",
		Email:         "test@example.com",
		EmailVerified: true,
		Name:          "Test User",
	}
}

// GenerateTestClient creates a test OAuth client
func GenerateTestClient() *storage.Client {
	return &storage.Client{
		ClientID:     "test-client-id",
		ClientName:   "Test Client",
		RedirectURIs: []string{"https://example.com/callback"},
		CreatedAt:    time.Now(),
	}
}

// GenerateTestGrant creates a code grant bound to the test client with the
// given PKCE challenge
func GenerateTestGrant(challenge string) *storage.CodeGrant {
	return &storage.CodeGrant{
		ClientID:      "test-client-id",
		RedirectURI:   "https://example.com/callback",
		CodeChallenge: challenge,
		State:         GenerateRandomString(16),
		UserID:        "test-user-123",
		Session:       GenerateTestSession(),
	}
}

// GenerateRandomString generates a random base64-encoded string
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// GeneratePKCEPair generates a valid PKCE challenge and verifier pair for testing.
// Returns (challenge, verifier) where challenge is the S256 hash of the verifier.
func GeneratePKCEPair() (challenge, verifier string) {
	verifier = GenerateRandomString(50)
	hash := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(hash[:])
	return challenge, verifier
}

// AssertNoError fails the test if err is not nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

// AssertEqual fails the test if got != want
func AssertEqual(t *testing.T, got, want interface{}) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// AssertNotEqual fails the test if got == want
func AssertNotEqual(t *testing.T, got, want interface{}) {
	t.Helper()
	if got == want {
		t.Errorf("got %v, want different value", got)
	}
}

// AssertStringContains fails the test if s does not contain substr
func AssertStringContains(t *testing.T, s, substr string) {
	t.Helper()
	if len(s) == 0 {
		t.Errorf("string is empty, expected to contain %q", substr)
		return
	}
	found := false
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("string %q does not contain %q", s, substr)
	}
}

// AssertTrue fails the test if condition is false
func AssertTrue(t *testing.T, condition bool, message string) {
	t.Helper()
	if !condition {
		t.Errorf("assertion failed: %s", message)
	}
}

// AssertFalse fails the test if condition is true
func AssertFalse(t *testing.T, condition bool, message string) {
	t.Helper()
	if condition {
		t.Errorf("assertion failed: %s", message)
	}
}
