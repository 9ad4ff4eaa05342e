package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/matchmakerhq/matchmaker-auth/instrumentation"
	"github.com/matchmakerhq/matchmaker-auth/pkce"
	"github.com/matchmakerhq/matchmaker-auth/providers"
	"github.com/matchmakerhq/matchmaker-auth/security"
	"github.com/matchmakerhq/matchmaker-auth/storage"
)

// Server implements the OAuth 2.1 authorization server logic
// (provider-agnostic). It coordinates the authorization-code flow using a
// Provider for credential verification and storage backends for protocol state.
type Server struct {
	provider        providers.Provider
	clientStore     storage.ClientStore
	flowStore       storage.FlowStore
	encryptor       *security.Encryptor
	auditor         *security.Auditor
	instrumentation *instrumentation.Instrumentation
	logger          *slog.Logger
	config          *Config
}

// NewServer creates a new OAuth server
func NewServer(
	provider providers.Provider,
	clientStore storage.ClientStore,
	flowStore storage.FlowStore,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if clientStore == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if flowStore == nil {
		return nil, fmt.Errorf("flow store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config, logger)

	return &Server{
		provider:    provider,
		clientStore: clientStore,
		flowStore:   flowStore,
		config:      config,
		logger:      logger,
	}, nil
}

// applySecureDefaults applies secure-by-default configuration values
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	if config.AuthorizationCodeTTL == 0 {
		config.AuthorizationCodeTTL = 600 // 10 minutes
	}
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = 31536000 // 1 year, matching the reference deployment
	}
	if config.ProviderTimeout == 0 {
		config.ProviderTimeout = 10 * time.Second
	}
	if config.TrustedProxyCount == 0 {
		config.TrustedProxyCount = 1
	}

	// Without a required scope there is nothing to gate on, so unscoped
	// users are admitted. With a required scope the operator decides.
	if config.RequiredScope == "" && !config.AllowUnscopedUsers {
		config.AllowUnscopedUsers = true
	}

	if config.TrustProxy {
		logger.Warn("Trusting proxy headers for client IP and request origin",
			"recommendation", "only enable behind trusted reverse proxies",
			"trusted_proxy_count", config.TrustedProxyCount)
	}

	return config
}

// Config returns the server's effective configuration (after defaults)
func (s *Server) Config() *Config {
	return s.config
}

// SetEncryptor sets the session encryptor for server and storage
func (s *Server) SetEncryptor(enc *security.Encryptor) {
	s.encryptor = enc

	type encryptorSetter interface {
		SetEncryptor(*security.Encryptor)
	}
	if setter, ok := s.flowStore.(encryptorSetter); ok {
		setter.SetEncryptor(enc)
	}
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.auditor = aud
}

// SetInstrumentation sets OpenTelemetry instrumentation for server and storage
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst

	type instrumentationSetter interface {
		SetInstrumentation(*instrumentation.Instrumentation)
	}
	if setter, ok := s.flowStore.(instrumentationSetter); ok {
		setter.SetInstrumentation(inst)
	}
	if setter, ok := s.clientStore.(instrumentationSetter); ok && any(s.clientStore) != any(s.flowStore) {
		setter.SetInstrumentation(inst)
	}
}

// providerCtx bounds a provider call with the configured timeout. A provider
// that hangs is treated as a failure; no protocol state is touched while
// waiting.
func (s *Server) providerCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.ProviderTimeout)
}

// RegisterClient registers a new OAuth client per RFC 7591 open registration.
// Repeated calls with identical inputs create distinct clients.
func (s *Server) RegisterClient(ctx context.Context, clientName string, redirectURIs []string, clientIP string) (*storage.Client, error) {
	if err := validateRedirectURIs(redirectURIs); err != nil {
		return nil, ErrInvalidRequest(err.Error())
	}

	client := &storage.Client{
		ClientID:     oauth2.GenerateVerifier(),
		ClientName:   clientName,
		RedirectURIs: redirectURIs,
		CreatedAt:    time.Now(),
	}

	if err := s.clientStore.SaveClient(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to save client: %w", err)
	}

	if s.auditor != nil {
		s.auditor.LogClientRegistered(client.ClientID, clientName, clientIP, len(redirectURIs))
	}
	if s.instrumentation != nil {
		s.instrumentation.Metrics().RecordClientRegistration(ctx, len(redirectURIs))
	}

	s.logger.Info("Registered new OAuth client",
		"client_id", client.ClientID,
		"client_name", clientName,
		"redirect_uris", len(redirectURIs))

	return client, nil
}

// validateRedirectURIs checks that at least one redirect URI is present and
// every URI is absolute and safe to redirect to.
func validateRedirectURIs(redirectURIs []string) error {
	if len(redirectURIs) == 0 {
		return fmt.Errorf("redirect_uris is required and must not be empty")
	}
	for _, uri := range redirectURIs {
		parsed, err := url.Parse(uri)
		if err != nil {
			return fmt.Errorf("invalid redirect URI %q: %w", uri, err)
		}
		if !parsed.IsAbs() || parsed.Host == "" {
			return fmt.Errorf("redirect URI %q must be absolute", uri)
		}
		if parsed.Fragment != "" {
			return fmt.Errorf("redirect URI %q must not contain a fragment", uri)
		}
		scheme := strings.ToLower(parsed.Scheme)
		switch scheme {
		case "javascript", "data", "file", "vbscript", "about":
			return fmt.Errorf("redirect URI scheme %q is not allowed", scheme)
		}
	}
	return nil
}

// ValidateAuthorizationRequest validates the parameters of an incoming
// authorization request against the client registry and the server's PKCE
// requirements. A non-nil return means the request must be answered with a
// direct error response, never a redirect to the client.
func (s *Server) ValidateAuthorizationRequest(ctx context.Context, clientID, redirectURI, responseType, codeChallenge, codeChallengeMethod string) *OAuthError {
	if clientID == "" {
		return ErrInvalidRequest("client_id is required")
	}
	if redirectURI == "" {
		return ErrInvalidRequest("redirect_uri is required")
	}
	if responseType != ResponseTypeCode {
		return ErrInvalidRequest(fmt.Sprintf("unsupported response_type (only %q is supported)", ResponseTypeCode))
	}
	if codeChallenge == "" {
		return ErrInvalidRequest("PKCE is required: code_challenge parameter is mandatory (OAuth 2.1)")
	}
	if codeChallengeMethod != pkce.MethodS256 {
		return ErrInvalidRequest(fmt.Sprintf("unsupported code_challenge_method (only %q is supported)", pkce.MethodS256))
	}

	registered, err := s.clientStore.IsRedirectURIRegistered(ctx, clientID, redirectURI)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			if s.auditor != nil {
				s.auditor.LogAuthFailure("", clientID, "", "unknown_client")
			}
			return ErrInvalidClient("unknown client_id")
		}
		s.logger.Error("Client lookup failed", "error", err)
		return ErrServerError("client lookup failed")
	}
	if !registered {
		if s.auditor != nil {
			s.auditor.LogEvent(security.Event{
				Type:     security.EventInvalidRedirect,
				ClientID: clientID,
			})
		}
		return ErrInvalidRequest("redirect_uri is not registered for this client")
	}

	return nil
}

// LoginRequest carries the login form fields forwarded from the
// authorization endpoint plus the end user's credentials.
type LoginRequest struct {
	Email               string
	Password            string
	Mode                string // "signin" or "signup"
	ClientID            string
	RedirectURI         string
	ResponseType        string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// CompleteLogin authenticates the end user against the identity provider
// and, on success, mints a single-use authorization code bound to the
// request's client, redirect URI, and PKCE challenge.
//
// The client parameters are re-validated against the registry before minting;
// they arrive via a user-editable form post and are not trusted.
func (s *Server) CompleteLogin(ctx context.Context, req *LoginRequest, clientIP string) (string, error) {
	if req.Email == "" || req.Password == "" {
		return "", ErrInvalidRequest("email and password are required")
	}
	if req.Mode != LoginModeSignIn && req.Mode != LoginModeSignUp {
		return "", ErrInvalidRequest(fmt.Sprintf("mode must be %q or %q", LoginModeSignIn, LoginModeSignUp))
	}
	if oerr := s.ValidateAuthorizationRequest(ctx, req.ClientID, req.RedirectURI, req.ResponseType, req.CodeChallenge, req.CodeChallengeMethod); oerr != nil {
		return "", oerr
	}

	pctx, cancel := s.providerCtx(ctx)
	defer cancel()

	var (
		userInfo *providers.UserInfo
		session  *oauth2.Token
		err      error
	)
	if req.Mode == LoginModeSignUp {
		userInfo, session, err = s.provider.SignUp(pctx, req.Email, req.Password)
	} else {
		userInfo, session, err = s.provider.Authenticate(pctx, req.Email, req.Password)
	}
	if err != nil {
		reason := "provider_error"
		if errors.Is(err, providers.ErrInvalidCredentials) {
			reason = "invalid_credentials"
		}
		if s.auditor != nil {
			s.auditor.LogLoginFailed(req.ClientID, req.Email, clientIP, reason)
		}
		if s.instrumentation != nil {
			s.instrumentation.Metrics().RecordLoginProcessed(ctx, req.ClientID, req.Mode, false)
		}
		if errors.Is(err, providers.ErrInvalidCredentials) {
			return "", ErrAuthenticationFailed("invalid email or password")
		}
		s.logger.Error("Identity provider call failed", "mode", req.Mode, "error", err)
		return "", ErrAuthenticationFailed("authentication failed")
	}

	// A signup that requires email confirmation returns a user without a
	// session. There is nothing to bind a code to yet.
	if session == nil || session.AccessToken == "" {
		if s.auditor != nil {
			s.auditor.LogLoginFailed(req.ClientID, req.Email, clientIP, "no_session")
		}
		return "", ErrAuthenticationFailed("account created but not yet active; confirm your email and sign in")
	}

	grant := &storage.CodeGrant{
		ClientID:      req.ClientID,
		RedirectURI:   req.RedirectURI,
		CodeChallenge: req.CodeChallenge,
		State:         req.State,
		UserID:        userInfo.ID,
		Session:       session,
	}
	code, err := s.flowStore.MintAuthorizationCode(ctx, grant, time.Duration(s.config.AuthorizationCodeTTL)*time.Second)
	if err != nil {
		s.logger.Error("Failed to mint authorization code", "error", err)
		return "", ErrServerError("failed to issue authorization code")
	}

	if s.auditor != nil {
		s.auditor.LogLoginSucceeded(userInfo.ID, req.ClientID, req.Email, clientIP, req.Mode)
		s.auditor.LogCodeIssued(userInfo.ID, req.ClientID, clientIP)
	}
	if s.instrumentation != nil {
		s.instrumentation.Metrics().RecordLoginProcessed(ctx, req.ClientID, req.Mode, true)
	}

	s.logger.Info("Authorization code issued",
		"client_id", req.ClientID,
		"user_id", userInfo.ID,
		"mode", req.Mode)

	return code, nil
}

// ExchangeAuthorizationCode redeems an authorization code for the provider
// session captured at login. Every redemption failure collapses to
// invalid_grant; the response never reveals which binding check failed.
func (s *Server) ExchangeAuthorizationCode(ctx context.Context, code, clientID, redirectURI, codeVerifier string) (*oauth2.Token, error) {
	session, err := s.flowStore.RedeemAuthorizationCode(ctx, code, clientID, redirectURI, codeVerifier)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrAuthorizationCodeUsed):
			if s.auditor != nil {
				s.auditor.LogCodeReuseDetected(clientID, "")
			}
			if s.instrumentation != nil {
				s.instrumentation.Metrics().RecordCodeReuseDetected(ctx)
			}
		case errors.Is(err, storage.ErrCodeBindingMismatch):
			if s.auditor != nil {
				s.auditor.LogAuthFailure("", clientID, "", "code_binding_mismatch")
			}
			if s.instrumentation != nil {
				s.instrumentation.Metrics().RecordPKCEValidationFailed(ctx, pkce.MethodS256)
			}
		default:
			if s.auditor != nil {
				s.auditor.LogAuthFailure("", clientID, "", "invalid_authorization_code")
			}
		}
		return nil, ErrInvalidGrant("invalid authorization code")
	}

	if s.auditor != nil {
		s.auditor.LogCodeRedeemed("", clientID, "")
	}
	if s.instrumentation != nil {
		s.instrumentation.Metrics().RecordCodeExchange(ctx, clientID)
	}

	return session, nil
}

// RefreshSession exchanges a refresh token for a fresh provider session.
// This is a straight passthrough: the provider owns session lifetime and
// rotation; failures collapse to invalid_grant like code redemption.
func (s *Server) RefreshSession(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRequest("refresh_token is required")
	}

	pctx, cancel := s.providerCtx(ctx)
	defer cancel()

	session, err := s.provider.RefreshSession(pctx, refreshToken)
	if err != nil {
		if s.auditor != nil {
			s.auditor.LogAuthFailure("", "", "", "refresh_failed")
		}
		if s.instrumentation != nil {
			s.instrumentation.Metrics().RecordSessionRefresh(ctx, false)
		}
		return nil, ErrInvalidGrant("invalid refresh token")
	}

	if s.auditor != nil {
		s.auditor.LogSessionRefreshed("", "")
	}
	if s.instrumentation != nil {
		s.instrumentation.Metrics().RecordSessionRefresh(ctx, true)
	}

	return session, nil
}

// ValidateToken verifies a bearer access token with the identity provider
// and applies the configured scope gate.
func (s *Server) ValidateToken(ctx context.Context, accessToken string) (*providers.UserInfo, error) {
	pctx, cancel := s.providerCtx(ctx)
	defer cancel()

	userInfo, err := s.provider.ValidateToken(pctx, accessToken)
	if err != nil {
		if s.auditor != nil {
			s.auditor.LogAuthFailure("", "", "", "token_validation_failed")
		}
		return nil, ErrInvalidToken("token validation failed")
	}

	if s.config.RequiredScope != "" {
		if userInfo.Scopes == nil {
			if !s.config.AllowUnscopedUsers {
				if s.auditor != nil {
					s.auditor.LogAuthFailure(userInfo.ID, "", "", "unscoped_user_rejected")
				}
				return nil, ErrInsufficientScope(fmt.Sprintf("scope %q is required", s.config.RequiredScope))
			}
		} else if !userInfo.HasScope(s.config.RequiredScope) {
			if s.auditor != nil {
				s.auditor.LogAuthFailure(userInfo.ID, "", "", "missing_required_scope")
			}
			return nil, ErrInsufficientScope(fmt.Sprintf("scope %q is required", s.config.RequiredScope))
		}
	}

	return userInfo, nil
}

// HealthCheck reports whether the identity provider is reachable
func (s *Server) HealthCheck(ctx context.Context) error {
	pctx, cancel := s.providerCtx(ctx)
	defer cancel()
	return s.provider.HealthCheck(pctx)
}

// GetClient retrieves a client by ID (for use by the handler)
func (s *Server) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	return s.clientStore.GetClient(ctx, clientID)
}
