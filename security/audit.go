package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	UserID    string
	ClientID  string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII
func (a *Auditor) LogEvent(event Event) {
	if !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"client_id", event.ClientID,
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogClientRegistered logs when a new OAuth client is registered
func (a *Auditor) LogClientRegistered(clientID, clientName, ipAddress string, redirectURIs int) {
	a.LogEvent(Event{
		Type:      EventClientRegistered,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"client_name":   clientName,
			"redirect_uris": redirectURIs,
		},
	})
}

// LogAuthorizationStarted logs when an authorization request passes validation
func (a *Auditor) LogAuthorizationStarted(clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationStarted,
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// LogLoginSucceeded logs a successful login through the bridge.
// The email is hashed before logging.
func (a *Auditor) LogLoginSucceeded(userID, clientID, email, ipAddress, mode string) {
	a.LogEvent(Event{
		Type:      EventLoginSucceeded,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"email_hash": hashForLogging(email),
			"mode":       mode,
		},
	})
}

// LogLoginFailed logs a rejected login attempt.
// The email is hashed before logging.
func (a *Auditor) LogLoginFailed(clientID, email, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventLoginFailed,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"email_hash": hashForLogging(email),
			"reason":     reason,
		},
	})
}

// LogCodeIssued logs when an authorization code is minted
func (a *Auditor) LogCodeIssued(userID, clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventCodeIssued,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// LogCodeRedeemed logs a successful token exchange
func (a *Auditor) LogCodeRedeemed(userID, clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventCodeRedeemed,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// LogCodeReuseDetected logs a replayed authorization code
func (a *Auditor) LogCodeReuseDetected(clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventCodeReuseDetected,
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// LogSessionRefreshed logs a refresh grant passed through to the provider
func (a *Auditor) LogSessionRefreshed(clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventSessionRefreshed,
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// LogAuthFailure logs an authentication failure
func (a *Auditor) LogAuthFailure(userID, clientID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventAuthFailure,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
