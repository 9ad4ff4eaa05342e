// Package storage defines the interfaces and entities for persisting OAuth
// clients and authorization codes. The reference deployment keeps everything
// in process memory; the interfaces exist so endpoints receive fresh,
// isolated stores in tests rather than reaching for ambient globals.
package storage

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// Sentinel errors returned by store implementations. Callers match with
// errors.Is and translate to protocol-level OAuth errors at the boundary.
var (
	// ErrClientNotFound indicates the client_id is not registered.
	ErrClientNotFound = errors.New("client not found")

	// ErrAuthorizationCodeNotFound indicates the code does not exist.
	ErrAuthorizationCodeNotFound = errors.New("authorization code not found")

	// ErrAuthorizationCodeUsed indicates a replay: the code was already
	// redeemed once.
	ErrAuthorizationCodeUsed = errors.New("authorization code already used")

	// ErrAuthorizationCodeExpired indicates the code outlived its TTL.
	ErrAuthorizationCodeExpired = errors.New("authorization code expired")

	// ErrCodeBindingMismatch indicates the client_id, redirect_uri, or
	// PKCE verifier supplied at redemption does not match the values
	// captured at issuance.
	ErrCodeBindingMismatch = errors.New("authorization code binding mismatch")
)

// ClientStore defines the interface for managing dynamically registered
// OAuth clients. All methods accept context.Context for tracing and
// cancellation.
type ClientStore interface {
	// SaveClient stores a registered client.
	SaveClient(ctx context.Context, client *Client) error

	// GetClient retrieves a client by ID. Returns ErrClientNotFound for
	// unknown IDs.
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// IsRedirectURIRegistered reports whether uri is an exact match for
	// one of the client's registered redirect URIs. Unknown clients
	// return ErrClientNotFound.
	IsRedirectURIRegistered(ctx context.Context, clientID, uri string) (bool, error)

	// ListClients lists all registered clients (for admin purposes).
	ListClients(ctx context.Context) ([]*Client, error)
}

// FlowStore defines the interface for the authorization-code lifecycle.
type FlowStore interface {
	// MintAuthorizationCode generates an unguessable code and stores it,
	// unused, with the given bindings and expiry window. The session is
	// the provider-issued token pair captured at login; it is returned
	// verbatim on redemption, never re-derived.
	MintAuthorizationCode(ctx context.Context, grant *CodeGrant, ttl time.Duration) (string, error)

	// RedeemAuthorizationCode atomically validates and consumes a code.
	// The full sequence (unused check, expiry check, client_id and
	// redirect_uri equality against the values captured at issuance,
	// PKCE verification, marking the code used) executes as one
	// critical section per code, so two concurrent redemptions of the
	// same code can never both succeed. Expired codes are marked used so
	// later attempts fail the cheaper replay check.
	//
	// On success the bound session is returned and the entry is retained
	// in used state to detect replay until the cleanup loop drops it.
	RedeemAuthorizationCode(ctx context.Context, code, clientID, redirectURI, codeVerifier string) (*oauth2.Token, error)

	// GetAuthorizationCode retrieves a code entry without consuming it.
	// Intended for diagnostics and tests; token exchange must go through
	// RedeemAuthorizationCode.
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)
}

// Client represents a dynamically registered OAuth client (RFC 7591).
// Clients are created once by the registration endpoint and never updated
// or deleted during normal operation.
type Client struct {
	ClientID     string
	ClientName   string
	RedirectURIs []string
	CreatedAt    time.Time
}

// CodeGrant carries everything captured at code issuance. The Session is
// the token pair the identity provider returned for the authenticated
// user; redemption hands it to the client unchanged.
type CodeGrant struct {
	ClientID      string
	RedirectURI   string
	CodeChallenge string
	State         string
	UserID        string
	Session       *oauth2.Token
}

// AuthorizationCode is a stored single-use code with its bindings.
type AuthorizationCode struct {
	Code                string
	ClientID            string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
	State               string
	UserID              string
	Session             *oauth2.Token
	IssuedAt            time.Time
	ExpiresAt           time.Time
	Used                bool
}
