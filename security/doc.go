// Package security provides security-related functionality for the
// authorization server, including audit logging, session encryption at rest,
// client IP and origin derivation, request ID propagation, and secure HTTP
// response headers.
//
// # Audit Logging
//
// The Auditor logs security-relevant events (client registration, logins,
// code issuance and redemption, replay detection) with PII protection: user
// IDs and email addresses are SHA-256 hashed before they reach the log
// stream.
//
//	auditor := security.NewAuditor(logger, true)
//	auditor.LogCodeReuseDetected(clientID, clientIP)
//
// # Encryption at Rest
//
// The Encryptor wraps AES-256-GCM for encrypting provider session tokens
// before they are held in storage. With a nil key the encryptor is disabled
// and passes values through unchanged, which keeps call sites unconditional.
//
//	key, _ := security.GenerateKey()
//	enc, _ := security.NewEncryptor(key)
//	store.SetEncryptor(enc)
//
// # Proxy Awareness
//
// GetClientIP and RequestBaseURL resolve the real client address and the
// externally visible origin of a request. Forwarded headers are honored only
// when the server is configured to trust its reverse proxy; otherwise they
// are spoofable by any client.
//
// # Expiry
//
// IsCodeExpired performs strict expiry checks for authorization codes. Code
// lifetimes are stamped from this server's own clock, so there is no skew
// tolerance: a code past its expiry is never redeemable.
package security
