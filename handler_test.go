package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	"github.com/matchmakerhq/matchmaker-auth/internal/testutil"
	"github.com/matchmakerhq/matchmaker-auth/providers"
	"github.com/matchmakerhq/matchmaker-auth/providers/mock"
	"github.com/matchmakerhq/matchmaker-auth/storage/memory"
)

func setupTestHandler(t *testing.T, config *Config) (*Handler, *mock.MockProvider) {
	t.Helper()

	store := memory.New()
	t.Cleanup(store.Stop)

	provider := mock.NewMockProvider()

	srv, err := NewServer(provider, store, store, config, nil)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	return NewHandler(srv, nil), provider
}

func newTestMux(t *testing.T, config *Config) (*http.ServeMux, *mock.MockProvider) {
	t.Helper()

	handler, provider := setupTestHandler(t, config)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return mux, provider
}

func registerClientViaHTTP(t *testing.T, mux *http.ServeMux, redirectURI string) ClientRegistrationResponse {
	t.Helper()

	body := `{"client_name":"Test App","redirect_uris":["` + redirectURI + `"]}`
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("POST /register status = %d, want 201 (body: %s)", w.Code, w.Body.String())
	}

	var resp ClientRegistrationResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode registration response: %v", err)
	}
	return resp
}

func TestNewHandler(t *testing.T) {
	handler, _ := setupTestHandler(t, nil)
	if handler == nil {
		t.Fatal("NewHandler() returned nil")
	}
	if handler.logger == nil {
		t.Error("logger should not be nil")
	}
}

func TestServeAuthorizationServerMetadata(t *testing.T) {
	mux, _ := newTestMux(t, &Config{Issuer: "https://auth.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/.well-known/oauth-authorization-server", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var meta AuthorizationServerMetadata
	if err := json.NewDecoder(w.Body).Decode(&meta); err != nil {
		t.Fatalf("failed to decode metadata: %v", err)
	}

	if meta.Issuer != "https://auth.example.com" {
		t.Errorf("issuer = %q, want the configured issuer", meta.Issuer)
	}
	if meta.AuthorizationEndpoint != "https://auth.example.com/oauth/authorize" {
		t.Errorf("authorization_endpoint = %q", meta.AuthorizationEndpoint)
	}
	if meta.TokenEndpoint != "https://auth.example.com/oauth/token" {
		t.Errorf("token_endpoint = %q", meta.TokenEndpoint)
	}
	if meta.RegistrationEndpoint != "https://auth.example.com/register" {
		t.Errorf("registration_endpoint = %q", meta.RegistrationEndpoint)
	}
	if len(meta.CodeChallengeMethodsSupported) != 1 || meta.CodeChallengeMethodsSupported[0] != "S256" {
		t.Errorf("code_challenge_methods_supported = %v, want [S256]", meta.CodeChallengeMethodsSupported)
	}
	if len(meta.ResponseTypesSupported) != 1 || meta.ResponseTypesSupported[0] != "code" {
		t.Errorf("response_types_supported = %v, want [code]", meta.ResponseTypesSupported)
	}
}

func TestServeAuthorizationServerMetadata_DerivedOrigin(t *testing.T) {
	// No configured issuer: every endpoint must be under the requesting origin.
	mux, _ := newTestMux(t, nil)

	req := httptest.NewRequest(http.MethodGet, "http://localhost:9999/.well-known/oauth-authorization-server", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	var meta AuthorizationServerMetadata
	if err := json.NewDecoder(w.Body).Decode(&meta); err != nil {
		t.Fatalf("failed to decode metadata: %v", err)
	}

	if meta.Issuer != "http://localhost:9999" {
		t.Errorf("issuer = %q, want the request origin", meta.Issuer)
	}
	for name, endpoint := range map[string]string{
		"authorization_endpoint": meta.AuthorizationEndpoint,
		"token_endpoint":         meta.TokenEndpoint,
		"registration_endpoint":  meta.RegistrationEndpoint,
	} {
		if !strings.HasPrefix(endpoint, meta.Issuer+"/") {
			t.Errorf("%s = %q is not under issuer %q", name, endpoint, meta.Issuer)
		}
	}
}

func TestServeProtectedResourceMetadata(t *testing.T) {
	mux, _ := newTestMux(t, &Config{Issuer: "https://auth.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/.well-known/oauth-protected-resource", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var meta ProtectedResourceMetadata
	if err := json.NewDecoder(w.Body).Decode(&meta); err != nil {
		t.Fatalf("failed to decode metadata: %v", err)
	}
	if meta.Resource != "https://auth.example.com" {
		t.Errorf("resource = %q", meta.Resource)
	}
	if len(meta.AuthorizationServers) != 1 || meta.AuthorizationServers[0].Issuer != "https://auth.example.com" {
		t.Errorf("authorization_servers = %v, want one entry with the issuer", meta.AuthorizationServers)
	}
}

func TestServeClientRegistration(t *testing.T) {
	mux, _ := newTestMux(t, nil)

	first := registerClientViaHTTP(t, mux, "https://example.com/cb")
	second := registerClientViaHTTP(t, mux, "https://example.com/cb")

	if first.ClientID == "" {
		t.Error("client_id should not be empty")
	}
	if first.ClientID == second.ClientID {
		t.Error("identical registrations must produce distinct client_ids")
	}
	if first.ClientIDIssuedAt == 0 {
		t.Error("client_id_issued_at should be set")
	}
}

func TestServeClientRegistration_Errors(t *testing.T) {
	mux, _ := newTestMux(t, nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"malformed JSON", `{"client_name":`, http.StatusBadRequest, ErrorCodeInvalidRequest},
		{"no redirect URIs", `{"client_name":"App"}`, http.StatusBadRequest, ErrorCodeInvalidRequest},
		{"javascript scheme", `{"redirect_uris":["javascript:alert(1)"]}`, http.StatusBadRequest, ErrorCodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var errResp ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
				t.Fatalf("failed to decode error response: %v", err)
			}
			if errResp.Error != tt.wantCode {
				t.Errorf("error = %q, want %q", errResp.Error, tt.wantCode)
			}
		})
	}
}

func TestServeAuthorization_RedirectsToLogin(t *testing.T) {
	mux, _ := newTestMux(t, nil)
	client := registerClientViaHTTP(t, mux, "https://example.com/cb")
	challenge, _ := testutil.GeneratePKCEPair()

	q := url.Values{
		"client_id":             {client.ClientID},
		"redirect_uri":          {"https://example.com/cb"},
		"response_type":         {"code"},
		"state":                 {"abc123"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}
	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+q.Encode(), nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302 (body: %s)", w.Code, w.Body.String())
	}

	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("invalid Location header: %v", err)
	}
	if loc.Path != "/login" {
		t.Errorf("redirect path = %q, want /login", loc.Path)
	}
	for key, want := range map[string]string{
		"client_id":             client.ClientID,
		"redirect_uri":          "https://example.com/cb",
		"state":                 "abc123",
		"code_challenge":        challenge,
		"code_challenge_method": "S256",
	} {
		if got := loc.Query().Get(key); got != want {
			t.Errorf("forwarded %s = %q, want %q", key, got, want)
		}
	}
}

func TestServeAuthorization_Errors(t *testing.T) {
	mux, _ := newTestMux(t, nil)
	client := registerClientViaHTTP(t, mux, "https://example.com/cb")
	challenge, _ := testutil.GeneratePKCEPair()

	base := url.Values{
		"client_id":             {client.ClientID},
		"redirect_uri":          {"https://example.com/cb"},
		"response_type":         {"code"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}

	tests := []struct {
		name     string
		mutate   func(q url.Values)
		wantCode string
	}{
		{"unknown client", func(q url.Values) { q.Set("client_id", "nope") }, ErrorCodeInvalidClient},
		{"unregistered redirect", func(q url.Values) { q.Set("redirect_uri", "https://evil.example.com/cb") }, ErrorCodeInvalidRequest},
		{"implicit flow", func(q url.Values) { q.Set("response_type", "token") }, ErrorCodeInvalidRequest},
		{"no challenge", func(q url.Values) { q.Del("code_challenge") }, ErrorCodeInvalidRequest},
		{"plain method", func(q url.Values) { q.Set("code_challenge_method", "plain") }, ErrorCodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := url.Values{}
			for k, v := range base {
				q[k] = append([]string(nil), v...)
			}
			tt.mutate(q)

			req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+q.Encode(), nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			// Errors are answered directly; the user agent must never be
			// bounced to the client's redirect_uri.
			if w.Code == http.StatusFound {
				t.Fatalf("got a redirect to %q, want a direct error", w.Header().Get("Location"))
			}
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			var errResp ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
				t.Fatalf("failed to decode error response: %v", err)
			}
			if errResp.Error != tt.wantCode {
				t.Errorf("error = %q, want %q", errResp.Error, tt.wantCode)
			}
		})
	}
}

func TestServeLogin_GetRendersForm(t *testing.T) {
	mux, _ := newTestMux(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/login?client_id=abc&state=xyz&code_challenge=ch&code_challenge_method=S256&redirect_uri=https%3A%2F%2Fexample.com%2Fcb&response_type=code", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}

	body := w.Body.String()
	for _, want := range []string{
		`name="email"`,
		`name="password"`,
		`name="state" value="xyz"`,
		`name="client_id" value="abc"`,
		`value="signin"`,
		`value="signup"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("login page missing %q", want)
		}
	}

	if csp := w.Header().Get("Content-Security-Policy"); csp == "" {
		t.Error("login page should carry a Content-Security-Policy header")
	}
}

func TestServeLogin_BadCredentials(t *testing.T) {
	mux, provider := newTestMux(t, nil)
	client := registerClientViaHTTP(t, mux, "https://example.com/cb")
	challenge, _ := testutil.GeneratePKCEPair()

	provider.AuthenticateFunc = func(ctx context.Context, email, password string) (*providers.UserInfo, *oauth2.Token, error) {
		return nil, nil, providers.ErrInvalidCredentials
	}

	form := url.Values{
		"email":                 {"user@example.com"},
		"password":              {"wrong"},
		"mode":                  {"signin"},
		"client_id":             {client.ClientID},
		"redirect_uri":          {"https://example.com/cb"},
		"response_type":         {"code"},
		"state":                 {"s"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if !strings.Contains(w.Body.String(), "invalid email or password") {
		t.Error("form should re-render with the failure message")
	}
	if loc := w.Header().Get("Location"); loc != "" {
		t.Errorf("failed login must not redirect, got Location %q", loc)
	}
}

func TestServeLogin_RedirectURIWithQuery(t *testing.T) {
	mux, _ := newTestMux(t, nil)

	// Registration is exact-match, so a redirect URI with its own query
	// string is legal. The callback must merge code and state into it
	// instead of appending a second "?".
	redirectURI := "https://example.com/cb?tenant=42"
	client := registerClientViaHTTP(t, mux, redirectURI)
	challenge, _ := testutil.GeneratePKCEPair()

	form := url.Values{
		"email":                 {"user@example.com"},
		"password":              {"hunter2!"},
		"mode":                  {"signin"},
		"client_id":             {client.ClientID},
		"redirect_uri":          {redirectURI},
		"response_type":         {"code"},
		"state":                 {"merge-state"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302 (body: %s)", w.Code, w.Body.String())
	}

	loc := w.Header().Get("Location")
	if strings.Count(loc, "?") != 1 {
		t.Fatalf("callback %q is malformed, want exactly one query separator", loc)
	}
	callback, err := url.Parse(loc)
	if err != nil {
		t.Fatalf("invalid callback redirect: %v", err)
	}
	if got := callback.Query().Get("tenant"); got != "42" {
		t.Errorf("tenant = %q, want the registered URI's own parameter preserved", got)
	}
	if callback.Query().Get("code") == "" {
		t.Error("callback is missing the authorization code")
	}
	if got := callback.Query().Get("state"); got != "merge-state" {
		t.Errorf("state = %q, want %q", got, "merge-state")
	}
}

func TestServeToken_UnsupportedGrantType(t *testing.T) {
	mux, _ := newTestMux(t, nil)

	form := url.Values{"grant_type": {"client_credentials"}}
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var errResp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if errResp.Error != ErrorCodeUnsupportedGrantType {
		t.Errorf("error = %q, want %q", errResp.Error, ErrorCodeUnsupportedGrantType)
	}
}

func TestServeToken_RefreshGrant(t *testing.T) {
	mux, provider := newTestMux(t, nil)

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {"mock-refresh-token"},
	}
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}
	var resp TokenResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode token response: %v", err)
	}
	if resp.AccessToken != "new-mock-access-token" {
		t.Errorf("access_token = %q, want the refreshed provider token", resp.AccessToken)
	}

	// A rejected refresh token behaves like a bad authorization code.
	provider.RefreshSessionFunc = func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		return nil, errors.New("revoked")
	}
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// TestAuthorizationCodeFlow drives the full flow over HTTP: register a
// client, start authorization, log in, exchange the code, then verify the
// code cannot be replayed.
func TestAuthorizationCodeFlow(t *testing.T) {
	mux, _ := newTestMux(t, nil)

	client := registerClientViaHTTP(t, mux, "https://example.com/cb")
	challenge, verifier := testutil.GeneratePKCEPair()

	// Authorization request redirects to the login page.
	authQuery := url.Values{
		"client_id":             {client.ClientID},
		"redirect_uri":          {"https://example.com/cb"},
		"response_type":         {"code"},
		"state":                 {"flow-state"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}
	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+authQuery.Encode(), nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusFound {
		t.Fatalf("GET /oauth/authorize status = %d, want 302", w.Code)
	}

	// Submit credentials on the login page the authorize step pointed at.
	loginURL, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("invalid login redirect: %v", err)
	}
	form := url.Values{
		"email":    {"user@example.com"},
		"password": {"hunter2!"},
		"mode":     {"signin"},
	}
	for _, key := range []string{"client_id", "redirect_uri", "response_type", "state", "code_challenge", "code_challenge_method"} {
		form.Set(key, loginURL.Query().Get(key))
	}
	req = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusFound {
		t.Fatalf("POST /login status = %d, want 302 (body: %s)", w.Code, w.Body.String())
	}

	// The callback redirect carries the code and the original state.
	callback, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("invalid callback redirect: %v", err)
	}
	if callback.Host != "example.com" || callback.Path != "/cb" {
		t.Fatalf("callback = %q, want the registered redirect URI", callback.String())
	}
	if got := callback.Query().Get("state"); got != "flow-state" {
		t.Errorf("state = %q, want %q", got, "flow-state")
	}
	code := callback.Query().Get("code")
	if code == "" {
		t.Fatal("callback is missing the authorization code")
	}

	// Exchange the code with the matching verifier.
	tokenForm := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {client.ClientID},
		"redirect_uri":  {"https://example.com/cb"},
		"code_verifier": {verifier},
	}
	req = httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(tokenForm.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /oauth/token status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}

	var token TokenResponse
	if err := json.NewDecoder(w.Body).Decode(&token); err != nil {
		t.Fatalf("failed to decode token response: %v", err)
	}
	if token.AccessToken != "mock-access-token" {
		t.Errorf("access_token = %q, want the provider session token", token.AccessToken)
	}
	if token.TokenType != "Bearer" {
		t.Errorf("token_type = %q, want Bearer", token.TokenType)
	}
	if token.ExpiresIn == 0 {
		t.Error("expires_in should be set")
	}
	if token.RefreshToken == "" {
		t.Error("refresh_token should be set")
	}

	// Replaying the code must fail with invalid_grant.
	req = httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(tokenForm.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("replay status = %d, want 400", w.Code)
	}
	var errResp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if errResp.Error != ErrorCodeInvalidGrant {
		t.Errorf("error = %q, want %q", errResp.Error, ErrorCodeInvalidGrant)
	}
}

func TestServeHealth(t *testing.T) {
	mux, provider := newTestMux(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}

	provider.HealthCheckFunc = func(ctx context.Context) error {
		return errors.New("provider down")
	}
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 when the provider is down", w.Code)
	}
}

func TestValidateTokenMiddleware(t *testing.T) {
	handler, provider := setupTestHandler(t, nil)

	var gotUser *providers.UserInfo
	protected := handler.ValidateToken(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserInfoFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/resource", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if gotUser == nil || gotUser.ID != "mock-user-123" {
			t.Errorf("user in context = %+v, want the validated user", gotUser)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/resource", nil)
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
		if wa := w.Header().Get("WWW-Authenticate"); !strings.Contains(wa, "resource_metadata=") {
			t.Errorf("WWW-Authenticate = %q, want a resource_metadata hint", wa)
		}
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/resource", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("rejected token", func(t *testing.T) {
		provider.ValidateTokenFunc = func(ctx context.Context, accessToken string) (*providers.UserInfo, error) {
			return nil, errors.New("expired")
		}
		req := httptest.NewRequest(http.MethodGet, "/api/resource", nil)
		req.Header.Set("Authorization", "Bearer stale-token")
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}

func TestValidateTokenMiddleware_ScopeGate(t *testing.T) {
	handler, provider := setupTestHandler(t, &Config{RequiredScope: "matchmaker"})

	provider.ValidateTokenFunc = func(ctx context.Context, accessToken string) (*providers.UserInfo, error) {
		return &providers.UserInfo{ID: "u1", Scopes: []string{"other"}}, nil
	}

	protected := handler.ValidateToken(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/resource", nil)
	req.Header.Set("Authorization", "Bearer scoped-token")
	w := httptest.NewRecorder()
	protected.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	var errResp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if errResp.Error != ErrorCodeInsufficientScope {
		t.Errorf("error = %q, want %q", errResp.Error, ErrorCodeInsufficientScope)
	}
}
