// Package pkce implements Proof Key for Code Exchange (RFC 7636) with the
// S256 code challenge method. It binds an authorization code to a secret
// that only the original requester knows, preventing code interception
// attacks on public clients.
package pkce

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// Code challenge method identifiers (RFC 7636 Section 4.3).
const (
	// MethodS256 is SHA-256 + base64url without padding. The only method
	// this server supports; "plain" is deprecated in OAuth 2.1.
	MethodS256 = "S256"
)

// Code verifier length bounds (RFC 7636 Section 4.1).
const (
	MinVerifierLength = 43
	MaxVerifierLength = 128
)

// ChallengeFromVerifier computes the S256 code challenge for a verifier:
// SHA-256 over the UTF-8 bytes, base64url-encoded without padding.
func ChallengeFromVerifier(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ValidateVerifier checks that a code verifier satisfies the RFC 7636
// length and character-set requirements. The charset restriction also
// keeps null bytes and control characters out of log output.
func ValidateVerifier(verifier string) error {
	if verifier == "" {
		return fmt.Errorf("code_verifier is required")
	}
	if len(verifier) < MinVerifierLength {
		return fmt.Errorf("code_verifier must be at least %d characters (RFC 7636)", MinVerifierLength)
	}
	if len(verifier) > MaxVerifierLength {
		return fmt.Errorf("code_verifier must be at most %d characters (RFC 7636)", MaxVerifierLength)
	}
	for _, ch := range verifier {
		valid := (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') ||
			ch == '-' || ch == '.' || ch == '_' || ch == '~'
		if !valid {
			return fmt.Errorf("code_verifier contains invalid characters (must be [A-Za-z0-9-._~])")
		}
	}
	return nil
}

// VerifyS256 checks a code verifier against a stored S256 challenge.
// The comparison is constant-time.
func VerifyS256(challenge, verifier string) error {
	if err := ValidateVerifier(verifier); err != nil {
		return err
	}
	computed := ChallengeFromVerifier(verifier)
	if subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) != 1 {
		return fmt.Errorf("code_verifier does not match code_challenge")
	}
	return nil
}
