package oauth

import "time"

// Endpoint paths served by the handler. Discovery metadata always points at
// these paths under the requesting origin.
const (
	PathAuthorize                 = "/oauth/authorize"
	PathToken                     = "/oauth/token"
	PathRegister                  = "/register"
	PathLogin                     = "/login"
	PathHealth                    = "/health"
	PathAuthorizationServerMeta   = "/.well-known/oauth-authorization-server"
	PathProtectedResourceMetadata = "/.well-known/oauth-protected-resource"
)

// Grant types and related protocol constants
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	ResponseTypeCode           = "code"
	TokenTypeBearer            = "Bearer"

	LoginModeSignIn = "signin"
	LoginModeSignUp = "signup"
)

// Config holds OAuth server configuration
type Config struct {
	// Issuer is the server's issuer identifier (base URL). When empty, the
	// issuer and all endpoint URLs in discovery metadata are derived from
	// each request's origin, honoring forwarded headers when TrustProxy is set.
	Issuer string

	// AuthorizationCodeTTL is how long authorization codes are valid
	AuthorizationCodeTTL int64 // seconds, default: 600 (10 minutes)

	// AccessTokenTTL is the fixed expires_in lifetime advertised for issued
	// access tokens. The tokens themselves are provider sessions; this value
	// is what clients see in token responses.
	AccessTokenTTL int64 // seconds, default: 31536000 (1 year)

	// ProviderTimeout bounds each call to the identity provider. A call that
	// exceeds it is treated as an authentication failure; no code is minted.
	ProviderTimeout time.Duration // default: 10s

	// TrustProxy enables trusting X-Forwarded-For, X-Forwarded-Proto and
	// X-Forwarded-Host headers.
	// WARNING: Only enable if behind a trusted reverse proxy (nginx, HAProxy, etc.)
	// When false, uses the direct connection's IP and origin (secure by default)
	// Default: false
	TrustProxy bool

	// TrustedProxyCount is the number of trusted proxies in front of this server
	// Used with TrustProxy to correctly extract client IP from X-Forwarded-For
	// Example: If you have 2 proxies (CloudFlare + nginx), set this to 2
	// Default: 1
	TrustedProxyCount int

	// RequiredScope, when set, gates bearer-token validation: the provider's
	// user record must carry this scope.
	RequiredScope string

	// AllowUnscopedUsers admits users whose account carries no scope list at
	// all when RequiredScope is set. Users with a scope list that lacks
	// RequiredScope are always rejected. Defaults to true when RequiredScope
	// is empty (the permissive reference behavior); set explicitly when
	// configuring RequiredScope.
	AllowUnscopedUsers bool

	// SupportedScopes lists the scopes advertised in discovery metadata
	SupportedScopes []string
}

// AuthorizationEndpoint returns the authorization endpoint URL under base
func AuthorizationEndpoint(base string) string { return base + PathAuthorize }

// TokenEndpoint returns the token endpoint URL under base
func TokenEndpoint(base string) string { return base + PathToken }

// RegistrationEndpoint returns the client registration endpoint URL under base
func RegistrationEndpoint(base string) string { return base + PathRegister }
