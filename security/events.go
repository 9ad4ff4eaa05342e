package security

// Event type constants for security audit logging.
// These constants ensure consistency across the codebase and prevent typos
// when logging security-relevant events.
const (
	// Client registration events

	// EventClientRegistered is logged when a new OAuth client is registered
	EventClientRegistered = "client_registered"

	// Authorization flow events

	// EventAuthorizationStarted is logged when an authorization request passes validation
	EventAuthorizationStarted = "authorization_started"

	// EventLoginSucceeded is logged when the identity provider accepts a login
	EventLoginSucceeded = "login_succeeded"

	// EventLoginFailed is logged when the identity provider rejects a login
	EventLoginFailed = "login_failed"

	// EventCodeIssued is logged when an authorization code is minted
	EventCodeIssued = "code_issued"

	// EventCodeRedeemed is logged when an authorization code is exchanged for tokens
	EventCodeRedeemed = "code_redeemed"

	// EventCodeReuseDetected is logged when an authorization code is replayed (attack)
	EventCodeReuseDetected = "code_reuse_detected"

	// EventSessionRefreshed is logged when a refresh grant is passed through to the provider
	EventSessionRefreshed = "session_refreshed"

	// Security violation events

	// EventAuthFailure is logged when authentication fails (wrong credentials, etc.)
	EventAuthFailure = "auth_failure"

	// EventPKCEValidationFailed is logged when PKCE code_verifier validation fails
	EventPKCEValidationFailed = "pkce_validation_failed"

	// EventInvalidRedirect is logged when an unregistered redirect URI is used
	EventInvalidRedirect = "invalid_redirect"

	// EventSuspiciousActivity is logged for general suspicious behavior
	EventSuspiciousActivity = "suspicious_activity"
)
