// Package supabase implements the Provider interface against the Supabase
// Auth (GoTrue) REST API using the email/password grant.
package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/matchmakerhq/matchmaker-auth/providers"
)

// Provider implements the providers.Provider interface for Supabase Auth.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config holds Supabase Auth configuration
type Config struct {
	// ProjectURL is the Supabase project URL, e.g. https://abc.supabase.co
	ProjectURL string

	// APIKey is the project's anon (publishable) API key. Sent as the
	// apikey header on every request.
	APIKey string

	// HTTPClient is an optional custom HTTP client
	HTTPClient *http.Client
}

// session is the GoTrue session envelope returned by token and signup endpoints
type session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         *user  `json:"user"`
}

// user is the GoTrue user object
type user struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	EmailConfirmedAt string `json:"email_confirmed_at"`
	UserMetadata     struct {
		Name     string `json:"name"`
		FullName string `json:"full_name"`
	} `json:"user_metadata"`
	AppMetadata struct {
		Scopes []string `json:"scopes"`
	} `json:"app_metadata"`
}

// NewProvider creates a new Supabase Auth provider
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg.ProjectURL == "" {
		return nil, fmt.Errorf("project URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	if _, err := url.Parse(cfg.ProjectURL); err != nil {
		return nil, fmt.Errorf("invalid project URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	return &Provider{
		baseURL:    strings.TrimSuffix(cfg.ProjectURL, "/") + "/auth/v1",
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "supabase"
}

// Authenticate signs the user in with the password grant
func (p *Provider) Authenticate(ctx context.Context, email, password string) (*providers.UserInfo, *oauth2.Token, error) {
	var sess session
	err := providers.DoJSON(ctx, p.httpClient, http.MethodPost,
		p.baseURL+"/token?grant_type=password",
		p.headers(""),
		map[string]string{"email": email, "password": password},
		&sess)
	if err != nil {
		if providers.IsAuthFailure(err) {
			return nil, nil, fmt.Errorf("%w: password grant rejected", providers.ErrInvalidCredentials)
		}
		return nil, nil, fmt.Errorf("password grant failed: %w", err)
	}

	if sess.User == nil {
		return nil, nil, fmt.Errorf("password grant response missing user")
	}

	return toUserInfo(sess.User), toToken(&sess), nil
}

// SignUp creates a new account. Projects with email confirmation enabled
// return a user without a session; the access token is empty in that case.
func (p *Provider) SignUp(ctx context.Context, email, password string) (*providers.UserInfo, *oauth2.Token, error) {
	var sess session
	err := providers.DoJSON(ctx, p.httpClient, http.MethodPost,
		p.baseURL+"/signup",
		p.headers(""),
		map[string]string{"email": email, "password": password},
		&sess)
	if err != nil {
		if providers.IsAuthFailure(err) {
			return nil, nil, fmt.Errorf("%w: signup rejected", providers.ErrInvalidCredentials)
		}
		return nil, nil, fmt.Errorf("signup failed: %w", err)
	}

	if sess.User == nil {
		return nil, nil, fmt.Errorf("signup response missing user")
	}

	return toUserInfo(sess.User), toToken(&sess), nil
}

// ValidateToken validates a session access token via the user endpoint
func (p *Provider) ValidateToken(ctx context.Context, accessToken string) (*providers.UserInfo, error) {
	var u user
	err := providers.DoJSON(ctx, p.httpClient, http.MethodGet,
		p.baseURL+"/user",
		p.headers(accessToken),
		nil,
		&u)
	if err != nil {
		if providers.IsAuthFailure(err) {
			return nil, fmt.Errorf("%w: session token rejected", providers.ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("user lookup failed: %w", err)
	}

	return toUserInfo(&u), nil
}

// RefreshSession exchanges a refresh token for a new session pair
func (p *Provider) RefreshSession(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	var sess session
	err := providers.DoJSON(ctx, p.httpClient, http.MethodPost,
		p.baseURL+"/token?grant_type=refresh_token",
		p.headers(""),
		map[string]string{"refresh_token": refreshToken},
		&sess)
	if err != nil {
		if providers.IsAuthFailure(err) {
			return nil, fmt.Errorf("%w: refresh token rejected", providers.ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("session refresh failed: %w", err)
	}

	return toToken(&sess), nil
}

// HealthCheck verifies the Auth API is reachable
func (p *Provider) HealthCheck(ctx context.Context) error {
	err := providers.DoJSON(ctx, p.httpClient, http.MethodGet,
		p.baseURL+"/health",
		p.headers(""),
		nil,
		nil)
	if err != nil {
		return fmt.Errorf("supabase auth health check failed: %w", err)
	}
	return nil
}

// headers builds the per-request header set. The apikey header is always
// present; an access token switches the Authorization header to the user's
// session instead of the anon key.
func (p *Provider) headers(accessToken string) map[string]string {
	h := map[string]string{
		"apikey": p.apiKey,
	}
	if accessToken != "" {
		h["Authorization"] = "Bearer " + accessToken
	}
	return h
}

func toUserInfo(u *user) *providers.UserInfo {
	name := u.UserMetadata.Name
	if name == "" {
		name = u.UserMetadata.FullName
	}
	return &providers.UserInfo{
		ID:            u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailConfirmedAt != "",
		Name:          name,
		Scopes:        u.AppMetadata.Scopes,
	}
}

func toToken(sess *session) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  sess.AccessToken,
		TokenType:    sess.TokenType,
		RefreshToken: sess.RefreshToken,
	}
	if sess.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(sess.ExpiresIn) * time.Second)
	}
	return tok
}
