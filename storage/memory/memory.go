// Package memory provides an in-memory implementation of all storage interfaces.
// It is suitable for development, testing, and single-instance deployments.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/matchmakerhq/matchmaker-auth/instrumentation"
	"github.com/matchmakerhq/matchmaker-auth/internal/util"
	"github.com/matchmakerhq/matchmaker-auth/pkce"
	"github.com/matchmakerhq/matchmaker-auth/security"
	"github.com/matchmakerhq/matchmaker-auth/storage"
)

const (
	// codeLogLength is the number of characters to include when logging
	// authorization codes. Enough uniqueness for debugging while keeping
	// logs safe to ship.
	codeLogLength = 8

	// usedCodeRetention is how long a redeemed code entry is kept before
	// cleanup. Retained entries let replay attempts fail with the reuse
	// error instead of not-found.
	usedCodeRetention = 10 * time.Minute
)

// Store is an in-memory implementation of all storage interfaces.
// It implements ClientStore and FlowStore.
type Store struct {
	mu sync.RWMutex

	// Client storage
	clients map[string]*storage.Client

	// Authorization code storage (sessions encrypted at rest if encryptor is set)
	authCodes map[string]*storage.AuthorizationCode

	// Security
	encryptor *security.Encryptor // session encryption at rest (optional)

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
	meter           metric.Meter

	// Atomic counters for metrics (lock-free access during metric collection)
	clientsCountAtomic   atomic.Int64
	authCodesCountAtomic atomic.Int64

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.ClientStore = (*Store)(nil)
	_ storage.FlowStore   = (*Store)(nil)
)

// New creates a new in-memory store with default cleanup interval (1 minute)
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with custom cleanup interval.
// If cleanupInterval is 0 or negative, uses default of 1 minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		clients:         make(map[string]*storage.Client),
		authCodes:       make(map[string]*storage.AuthorizationCode),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	// Start background cleanup
	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetEncryptor sets the session encryptor for encryption at rest
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encryptor = enc
	if enc != nil && enc.IsEnabled() {
		s.logger.Info("Session encryption at rest enabled for storage")
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
		s.meter = inst.Meter("storage")
	}

	// Initialize atomic counters with current counts
	s.clientsCountAtomic.Store(int64(len(s.clients)))
	s.authCodesCountAtomic.Store(int64(len(s.authCodes)))
	s.mu.Unlock()

	if inst != nil {
		// Register storage size callbacks using atomic counters (lock-free)
		err := inst.RegisterStorageSizeCallbacks(
			func() int64 { return s.clientsCountAtomic.Load() },
			func() int64 { return s.authCodesCountAtomic.Load() },
		)
		if err != nil {
			s.logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// Stop gracefully stops the cleanup goroutine
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient saves a registered client
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	ctx, span := s.startStorageSpan(ctx, "save_client")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_client", err, startTime)
	}()

	if client == nil || client.ClientID == "" {
		err = fmt.Errorf("invalid client")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track if this is a new client (for atomic counter)
	_, existed := s.clients[client.ClientID]

	s.clients[client.ClientID] = client

	if !existed {
		s.clientsCountAtomic.Add(1)
	}

	s.logger.Debug("Saved client", "client_id", client.ClientID)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	ctx, span := s.startStorageSpan(ctx, "get_client")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_client", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		err = fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
		return nil, err
	}

	return client, nil
}

// IsRedirectURIRegistered reports whether uri exactly matches one of the
// client's registered redirect URIs. Matching is byte-for-byte equality;
// no prefix, wildcard, or normalization rules apply.
func (s *Store) IsRedirectURIRegistered(ctx context.Context, clientID, uri string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		return false, fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
	}

	for _, registered := range client.RedirectURIs {
		if registered == uri {
			return true, nil
		}
	}

	return false, nil
}

// ListClients lists all registered clients
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]*storage.Client, 0, len(s.clients))
	for _, client := range s.clients {
		clients = append(clients, client)
	}

	return clients, nil
}

// ============================================================
// FlowStore Implementation
// ============================================================

// MintAuthorizationCode generates a fresh authorization code and stores it,
// unused, bound to the grant's client, redirect URI, and PKCE challenge.
func (s *Store) MintAuthorizationCode(ctx context.Context, grant *storage.CodeGrant, ttl time.Duration) (string, error) {
	ctx, span := s.startStorageSpan(ctx, "mint_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "mint_authorization_code", err, startTime)
	}()

	if grant == nil || grant.ClientID == "" {
		err = fmt.Errorf("invalid code grant")
		return "", err
	}
	if grant.CodeChallenge == "" {
		err = fmt.Errorf("code challenge is required")
		return "", err
	}
	if grant.Session == nil {
		err = fmt.Errorf("session is required")
		return "", err
	}
	if ttl <= 0 {
		err = fmt.Errorf("ttl must be positive")
		return "", err
	}

	// 256 bits of entropy, URL-safe
	code := oauth2.GenerateVerifier()
	now := time.Now()

	session := grant.Session
	if s.encryptorEnabled() {
		session, err = s.encryptSession(session)
		if err != nil {
			return "", err
		}
	}

	entry := &storage.AuthorizationCode{
		Code:                code,
		ClientID:            grant.ClientID,
		RedirectURI:         grant.RedirectURI,
		CodeChallenge:       grant.CodeChallenge,
		CodeChallengeMethod: pkce.MethodS256,
		State:               grant.State,
		UserID:              grant.UserID,
		Session:             session,
		IssuedAt:            now,
		ExpiresAt:           now.Add(ttl),
	}

	s.mu.Lock()
	s.authCodes[code] = entry
	s.authCodesCountAtomic.Add(1)
	s.mu.Unlock()

	s.logger.Debug("Minted authorization code",
		"code_prefix", util.SafeTruncate(code, codeLogLength),
		"client_id", grant.ClientID,
		"expires_at", entry.ExpiresAt)

	return code, nil
}

// RedeemAuthorizationCode atomically validates and consumes an authorization
// code. The unused check, expiry check, binding checks, PKCE verification,
// and the mark-used write all happen under one write lock, so concurrent
// redemptions of the same code serialize and at most one succeeds.
func (s *Store) RedeemAuthorizationCode(ctx context.Context, code, clientID, redirectURI, codeVerifier string) (*oauth2.Token, error) {
	ctx, span := s.startStorageSpan(ctx, "redeem_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "redeem_authorization_code", err, startTime)
	}()

	s.mu.Lock() // write lock for the whole check-and-consume sequence
	defer s.mu.Unlock()

	entry, ok := s.authCodes[code]
	if !ok {
		err = storage.ErrAuthorizationCodeNotFound
		return nil, err
	}

	if entry.Used {
		s.logger.Warn("Authorization code replay attempt",
			"code_prefix", util.SafeTruncate(code, codeLogLength),
			"client_id", entry.ClientID)
		err = storage.ErrAuthorizationCodeUsed
		return nil, err
	}

	// Expiry is strict: a code past ExpiresAt never yields a session.
	// It is marked used so later attempts hit the replay path.
	if security.IsCodeExpired(entry.ExpiresAt) {
		entry.Used = true
		err = storage.ErrAuthorizationCodeExpired
		return nil, err
	}

	if entry.ClientID != clientID {
		err = fmt.Errorf("%w: client_id", storage.ErrCodeBindingMismatch)
		return nil, err
	}

	if entry.RedirectURI != redirectURI {
		err = fmt.Errorf("%w: redirect_uri", storage.ErrCodeBindingMismatch)
		return nil, err
	}

	if pkceErr := pkce.VerifyS256(entry.CodeChallenge, codeVerifier); pkceErr != nil {
		err = fmt.Errorf("%w: %v", storage.ErrCodeBindingMismatch, pkceErr)
		return nil, err
	}

	// All checks passed: consume the code
	entry.Used = true

	session := entry.Session
	if s.encryptorEnabled() {
		session, err = s.decryptSession(session)
		if err != nil {
			return nil, err
		}
	}

	s.logger.Debug("Redeemed authorization code",
		"code_prefix", util.SafeTruncate(code, codeLogLength),
		"client_id", clientID,
		"user_id", entry.UserID)

	return session, nil
}

// GetAuthorizationCode retrieves an authorization code without consuming it.
// Returns a copy so callers cannot modify the stored entry.
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.authCodes[code]
	if !ok {
		return nil, storage.ErrAuthorizationCodeNotFound
	}

	entryCopy := *entry
	return &entryCopy, nil
}

// ============================================================
// Session Encryption
// ============================================================

func (s *Store) encryptorEnabled() bool {
	return s.encryptor != nil && s.encryptor.IsEnabled()
}

// encryptSession encrypts the token fields of a bound session.
// Returns a new token, leaving the original unchanged.
func (s *Store) encryptSession(session *oauth2.Token) (*oauth2.Token, error) {
	encrypted := &oauth2.Token{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    session.TokenType,
		Expiry:       session.Expiry,
	}

	if encrypted.AccessToken != "" {
		enc, err := s.encryptor.Encrypt(encrypted.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt access token: %w", err)
		}
		encrypted.AccessToken = enc
	}

	if encrypted.RefreshToken != "" {
		enc, err := s.encryptor.Encrypt(encrypted.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
		encrypted.RefreshToken = enc
	}

	return encrypted, nil
}

// decryptSession decrypts the token fields of a bound session.
// Returns a new token, leaving the stored version unchanged.
func (s *Store) decryptSession(session *oauth2.Token) (*oauth2.Token, error) {
	decrypted := &oauth2.Token{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    session.TokenType,
		Expiry:       session.Expiry,
	}

	if decrypted.AccessToken != "" {
		dec, err := s.encryptor.Decrypt(decrypted.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt access token: %w", err)
		}
		decrypted.AccessToken = dec
	}

	if decrypted.RefreshToken != "" {
		dec, err := s.encryptor.Decrypt(decrypted.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
		}
		decrypted.RefreshToken = dec
	}

	return decrypted, nil
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleaned := 0
	now := time.Now()

	// Drop expired codes and used codes past the replay-detection window.
	// Recently used codes are kept so replays fail loudly.
	for code, entry := range s.authCodes {
		drop := false
		switch {
		case entry.Used:
			drop = now.Sub(entry.ExpiresAt) > usedCodeRetention
		default:
			drop = security.IsCodeExpired(entry.ExpiresAt)
		}
		if drop {
			delete(s.authCodes, code)
			s.authCodesCountAtomic.Add(-1)
			cleaned++
		}
	}

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired authorization codes", "count", cleaned)
	}
}

// ============================================================
// Instrumentation Helpers
// ============================================================

// startStorageSpan starts a new span for a storage operation
// Returns a context with the span attached and the span itself
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
		trace.WithAttributes(
			attribute.String("operation", operation),
		))

	return ctx, span
}

// recordStorageOperation records metrics for a storage operation and sets span status
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Milliseconds())
	result := "success"
	if err != nil {
		result = "error"
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	} else {
		if span != nil {
			span.SetStatus(codes.Ok, "")
		}
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
