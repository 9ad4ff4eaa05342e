package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/matchmakerhq/matchmaker-auth/instrumentation"
	"github.com/matchmakerhq/matchmaker-auth/providers"
	"github.com/matchmakerhq/matchmaker-auth/security"
)

const defaultCORSMaxAge = "3600"

// Handler is a thin HTTP adapter for the OAuth Server.
// It handles HTTP requests and delegates to the Server for business logic.
type Handler struct {
	server *Server
	logger *slog.Logger
	tracer trace.Tracer
}

// NewHandler creates a new HTTP handler
func NewHandler(server *Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server: server,
		logger: logger,
	}

	if server.instrumentation != nil {
		h.tracer = server.instrumentation.Tracer("http")
	}

	return h
}

// RegisterRoutes registers all OAuth endpoints on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(PathAuthorizationServerMeta, h.ServeAuthorizationServerMetadata)
	mux.HandleFunc(PathProtectedResourceMetadata, h.ServeProtectedResourceMetadata)
	mux.HandleFunc(PathRegister, h.ServeClientRegistration)
	mux.HandleFunc(PathAuthorize, h.ServeAuthorization)
	mux.HandleFunc(PathLogin, h.ServeLogin)
	mux.HandleFunc(PathToken, h.ServeToken)
	mux.HandleFunc(PathHealth, h.ServeHealth)
}

// baseURL returns the server's externally visible base URL for this request.
// A configured Issuer wins; otherwise it is derived from the request origin,
// honoring forwarded headers only when proxy trust is enabled.
func (h *Handler) baseURL(r *http.Request) string {
	if h.server.config.Issuer != "" {
		return strings.TrimSuffix(h.server.config.Issuer, "/")
	}
	return security.RequestBaseURL(r, h.server.config.TrustProxy)
}

func (h *Handler) clientIP(r *http.Request) string {
	return security.GetClientIP(r, h.server.config.TrustProxy, h.server.config.TrustedProxyCount)
}

// ServeAuthorizationServerMetadata serves RFC 8414 Authorization Server Metadata
func (h *Handler) ServeAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	if h.handlePreflight(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	base := h.baseURL(r)

	h.setCORSHeaders(w)
	security.SetSecurityHeaders(w, base)

	metadata := AuthorizationServerMetadata{
		Issuer:                            base,
		AuthorizationEndpoint:             AuthorizationEndpoint(base),
		TokenEndpoint:                     TokenEndpoint(base),
		RegistrationEndpoint:              RegistrationEndpoint(base),
		ResponseTypesSupported:            []string{ResponseTypeCode},
		GrantTypesSupported:               []string{GrantTypeAuthorizationCode, GrantTypeRefreshToken},
		CodeChallengeMethodsSupported:     []string{"S256"},
		TokenEndpointAuthMethodsSupported: []string{"none"},
		ScopesSupported:                   h.server.config.SupportedScopes,
	}

	h.writeJSON(w, http.StatusOK, metadata)
}

// ServeProtectedResourceMetadata serves RFC 9728 Protected Resource Metadata
func (h *Handler) ServeProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	if h.handlePreflight(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	base := h.baseURL(r)

	h.setCORSHeaders(w)
	security.SetSecurityHeaders(w, base)

	metadata := ProtectedResourceMetadata{
		Resource:               base,
		AuthorizationServers:   []AuthorizationServerRef{{Issuer: base}},
		BearerMethodsSupported: []string{"header"},
		ScopesSupported:        h.server.config.SupportedScopes,
	}

	h.writeJSON(w, http.StatusOK, metadata)
}

// ServeClientRegistration handles RFC 7591 dynamic client registration.
// The endpoint is intentionally unauthenticated (open registration);
// possessing a client_id grants nothing by itself.
func (h *Handler) ServeClientRegistration(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r, "oauth.http.register")
	defer h.endSpan(span)

	if h.handlePreflight(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		h.recordHTTPMetrics(ctx, "register", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.setCORSHeaders(w)
	security.SetSecurityHeaders(w, h.baseURL(r))

	var req ClientRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.recordHTTPMetrics(ctx, "register", r.Method, http.StatusBadRequest, startTime)
		instrumentation.SetSpanError(span, "invalid request body")
		h.writeError(w, ErrorCodeInvalidRequest, "Invalid JSON request body", http.StatusBadRequest)
		return
	}

	client, err := h.server.RegisterClient(ctx, req.ClientName, req.RedirectURIs, h.clientIP(r))
	if err != nil {
		h.writeOAuthError(w, err)
		h.recordHTTPMetrics(ctx, "register", r.Method, oauthStatus(err), startTime)
		instrumentation.RecordError(span, err)
		return
	}

	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrClientID, client.ClientID))
	instrumentation.SetSpanSuccess(span)
	h.recordHTTPMetrics(ctx, "register", r.Method, http.StatusCreated, startTime)

	h.writeJSON(w, http.StatusCreated, ClientRegistrationResponse{
		ClientID:         client.ClientID,
		ClientName:       client.ClientName,
		RedirectURIs:     client.RedirectURIs,
		ClientIDIssuedAt: client.CreatedAt.Unix(),
	})
}

// ServeAuthorization handles GET /oauth/authorize. On success it redirects
// to the login page with every parameter carried forward; the endpoint holds
// no server-side session. Validation failures are answered directly and are
// never redirected to the client's redirect_uri.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r, "oauth.http.authorization")
	defer h.endSpan(span)

	if r.Method != http.MethodGet {
		h.recordHTTPMetrics(ctx, "authorization", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")
	responseType := q.Get("response_type")
	state := q.Get("state")
	codeChallenge := q.Get("code_challenge")
	codeChallengeMethod := q.Get("code_challenge_method")

	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientID, clientID),
		attribute.String(instrumentation.AttrResponseType, responseType),
		attribute.String(instrumentation.AttrPKCEMethod, codeChallengeMethod),
	)

	if oerr := h.server.ValidateAuthorizationRequest(ctx, clientID, redirectURI, responseType, codeChallenge, codeChallengeMethod); oerr != nil {
		h.writeOAuthError(w, oerr)
		h.recordHTTPMetrics(ctx, "authorization", r.Method, oerr.Status, startTime)
		instrumentation.SetSpanError(span, oerr.Code)
		return
	}

	if h.server.auditor != nil {
		h.server.auditor.LogAuthorizationStarted(clientID, h.clientIP(r))
	}
	if h.server.instrumentation != nil {
		h.server.instrumentation.Metrics().RecordAuthorizationStarted(ctx, clientID)
	}

	loginURL := PathLogin + "?" + url.Values{
		"client_id":             {clientID},
		"redirect_uri":          {redirectURI},
		"response_type":         {responseType},
		"state":                 {state},
		"code_challenge":        {codeChallenge},
		"code_challenge_method": {codeChallengeMethod},
	}.Encode()

	h.recordHTTPMetrics(ctx, "authorization", r.Method, http.StatusFound, startTime)
	instrumentation.SetSpanSuccess(span)

	http.Redirect(w, r, loginURL, http.StatusFound)
}

// ServeLogin renders the login form on GET and completes the login bridge on
// POST: authenticate with the identity provider, mint a code, and redirect
// back to the client with code and state.
func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.serveLoginPage(w, r, loginPageData{
			ClientID:            r.URL.Query().Get("client_id"),
			RedirectURI:         r.URL.Query().Get("redirect_uri"),
			ResponseType:        r.URL.Query().Get("response_type"),
			State:               r.URL.Query().Get("state"),
			CodeChallenge:       r.URL.Query().Get("code_challenge"),
			CodeChallengeMethod: r.URL.Query().Get("code_challenge_method"),
		}, http.StatusOK)
	case http.MethodPost:
		h.handleLoginSubmit(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r, "oauth.http.login")
	defer h.endSpan(span)

	if err := r.ParseForm(); err != nil {
		h.recordHTTPMetrics(ctx, "login", r.Method, http.StatusBadRequest, startTime)
		h.writeError(w, ErrorCodeInvalidRequest, "Invalid form body", http.StatusBadRequest)
		return
	}

	req := &LoginRequest{
		Email:               r.PostFormValue("email"),
		Password:            r.PostFormValue("password"),
		Mode:                r.PostFormValue("mode"),
		ClientID:            r.PostFormValue("client_id"),
		RedirectURI:         r.PostFormValue("redirect_uri"),
		ResponseType:        r.PostFormValue("response_type"),
		State:               r.PostFormValue("state"),
		CodeChallenge:       r.PostFormValue("code_challenge"),
		CodeChallengeMethod: r.PostFormValue("code_challenge_method"),
	}
	if req.Mode == "" {
		req.Mode = LoginModeSignIn
	}

	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientID, req.ClientID),
		attribute.String(instrumentation.AttrLoginMode, req.Mode),
	)

	code, err := h.server.CompleteLogin(ctx, req, h.clientIP(r))
	if err != nil {
		var oerr *OAuthError
		if errors.As(err, &oerr) && oerr.Status == http.StatusUnauthorized {
			// Bad credentials re-render the form so the user can retry.
			// Never a redirect: the client must not observe failed attempts.
			h.recordHTTPMetrics(ctx, "login", r.Method, oerr.Status, startTime)
			instrumentation.SetSpanError(span, oerr.Code)
			h.serveLoginPage(w, r, loginPageData{
				Error:               oerr.Description,
				Email:               req.Email,
				ClientID:            req.ClientID,
				RedirectURI:         req.RedirectURI,
				ResponseType:        req.ResponseType,
				State:               req.State,
				CodeChallenge:       req.CodeChallenge,
				CodeChallengeMethod: req.CodeChallengeMethod,
			}, http.StatusUnauthorized)
			return
		}
		h.writeOAuthError(w, err)
		h.recordHTTPMetrics(ctx, "login", r.Method, oauthStatus(err), startTime)
		instrumentation.RecordError(span, err)
		return
	}

	// Registered redirect URIs may carry their own query string, so code and
	// state are merged into it rather than appended blindly.
	callback, err := url.Parse(req.RedirectURI)
	if err != nil {
		// Unreachable for a URI that passed registration validation.
		h.recordHTTPMetrics(ctx, "login", r.Method, http.StatusInternalServerError, startTime)
		h.writeError(w, ErrorCodeServerError, "Invalid redirect URI", http.StatusInternalServerError)
		return
	}
	q := callback.Query()
	q.Set("code", code)
	if req.State != "" {
		q.Set("state", req.State)
	}
	callback.RawQuery = q.Encode()

	h.recordHTTPMetrics(ctx, "login", r.Method, http.StatusFound, startTime)
	instrumentation.SetSpanSuccess(span)

	http.Redirect(w, r, callback.String(), http.StatusFound)
}

// ServeToken handles POST /oauth/token for the authorization_code and
// refresh_token grants. The response proxies the provider session captured
// at login (or refreshed by the provider); tokens are never minted here.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r, "oauth.http.token")
	defer h.endSpan(span)

	if h.handlePreflight(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		h.recordHTTPMetrics(ctx, "token", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.setCORSHeaders(w)
	security.SetSecurityHeaders(w, h.baseURL(r))

	if err := r.ParseForm(); err != nil {
		h.recordHTTPMetrics(ctx, "token", r.Method, http.StatusBadRequest, startTime)
		h.writeError(w, ErrorCodeInvalidRequest, "Invalid form body", http.StatusBadRequest)
		return
	}

	grantType := r.PostFormValue("grant_type")
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrGrantType, grantType))

	var (
		session *oauth2.Token
		err     error
	)
	switch grantType {
	case GrantTypeAuthorizationCode:
		session, err = h.server.ExchangeAuthorizationCode(ctx,
			r.PostFormValue("code"),
			r.PostFormValue("client_id"),
			r.PostFormValue("redirect_uri"),
			r.PostFormValue("code_verifier"),
		)
	case GrantTypeRefreshToken:
		session, err = h.server.RefreshSession(ctx, r.PostFormValue("refresh_token"))
	default:
		h.recordHTTPMetrics(ctx, "token", r.Method, http.StatusBadRequest, startTime)
		instrumentation.SetSpanError(span, ErrorCodeUnsupportedGrantType)
		h.writeError(w, ErrorCodeUnsupportedGrantType,
			"Supported grant types: authorization_code, refresh_token", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.writeOAuthError(w, err)
		h.recordHTTPMetrics(ctx, "token", r.Method, oauthStatus(err), startTime)
		instrumentation.RecordError(span, err)
		return
	}

	h.recordHTTPMetrics(ctx, "token", r.Method, http.StatusOK, startTime)
	instrumentation.SetSpanSuccess(span)

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	h.writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  session.AccessToken,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    h.server.config.AccessTokenTTL,
		RefreshToken: session.RefreshToken,
	})
}

// ServeHealth reports server and identity-provider health
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if err := h.server.HealthCheck(r.Context()); err != nil {
		h.logger.Warn("Identity provider health check failed", "error", err)
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, resp)
}

// ValidateToken is middleware that validates bearer tokens for protected
// resource handlers. The authenticated user is placed in the request context.
func (h *Handler) ValidateToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accessToken, ok := h.extractBearerToken(w, r)
		if !ok {
			return
		}

		userInfo, err := h.server.ValidateToken(r.Context(), accessToken)
		if err != nil {
			h.logger.Warn("Token validation failed",
				"ip", h.clientIP(r),
				"request_id", security.GetRequestID(r.Context()),
				"error", err)
			h.writeBearerError(w, r, err)
			return
		}

		ctx := ContextWithUserInfo(r.Context(), userInfo)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractBearerToken extracts the Bearer token from the Authorization header.
// Returns the token and true if successful, or writes an error and returns false.
func (h *Handler) extractBearerToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		h.writeBearerError(w, r, ErrInvalidToken("Missing Authorization header"))
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		h.writeBearerError(w, r, ErrInvalidToken("Invalid Authorization header format"))
		return "", false
	}

	return parts[1], true
}

// writeBearerError writes a bearer-auth error with the WWW-Authenticate
// header pointing at this server's resource metadata (RFC 9728 Section 5.1)
func (h *Handler) writeBearerError(w http.ResponseWriter, r *http.Request, err error) {
	var oerr *OAuthError
	if !errors.As(err, &oerr) {
		oerr = ErrInvalidToken("token validation failed")
	}

	metadataURL := h.baseURL(r) + PathProtectedResourceMetadata
	w.Header().Set("WWW-Authenticate",
		`Bearer error="`+oerr.Code+`", resource_metadata="`+metadataURL+`"`)
	h.writeError(w, oerr.Code, oerr.Description, oerr.Status)
}

// userInfoContextKey is the context key for authenticated user info
type userInfoContextKey struct{}

// ContextWithUserInfo returns a context carrying the authenticated user
func ContextWithUserInfo(ctx context.Context, userInfo *providers.UserInfo) context.Context {
	return context.WithValue(ctx, userInfoContextKey{}, userInfo)
}

// UserInfoFromContext extracts the authenticated user set by ValidateToken.
// Returns nil if the request did not pass through the middleware.
func UserInfoFromContext(ctx context.Context) *providers.UserInfo {
	if userInfo, ok := ctx.Value(userInfoContextKey{}).(*providers.UserInfo); ok {
		return userInfo
	}
	return nil
}

// loginPageTemplate is the HTML login form served by GET /login. It posts
// back to the same path with the OAuth parameters as hidden fields, so the
// bridge needs no server-side session. Styling is inline; the page's CSP
// blocks scripts and external resources.
const loginPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Sign in</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: linear-gradient(135deg, #1a1a2e 0%, #16213e 50%, #0f3460 100%);
            min-height: 100vh;
            display: flex;
            align-items: center;
            justify-content: center;
            color: #fff;
        }
        .card {
            background: rgba(255, 255, 255, 0.06);
            border-radius: 12px;
            padding: 2rem;
            width: 100%;
            max-width: 380px;
        }
        h1 { font-size: 1.4rem; font-weight: 600; margin-bottom: 1.25rem; }
        label { display: block; font-size: 0.875rem; margin-bottom: 0.35rem; color: rgba(255,255,255,0.75); }
        input[type="email"], input[type="password"] {
            width: 100%;
            padding: 0.65rem 0.75rem;
            margin-bottom: 1rem;
            border: 1px solid rgba(255,255,255,0.2);
            border-radius: 8px;
            background: rgba(0,0,0,0.25);
            color: #fff;
            font-size: 1rem;
        }
        .mode { display: flex; gap: 1.25rem; margin-bottom: 1.25rem; font-size: 0.9rem; }
        .mode label { display: inline; margin: 0; color: #fff; }
        button {
            width: 100%;
            padding: 0.75rem;
            background: linear-gradient(135deg, #00d26a 0%, #00a855 100%);
            color: #fff;
            border: none;
            border-radius: 8px;
            font-size: 1rem;
            font-weight: 500;
            cursor: pointer;
        }
        .error {
            background: rgba(220, 53, 69, 0.2);
            border: 1px solid rgba(220, 53, 69, 0.5);
            border-radius: 8px;
            padding: 0.6rem 0.75rem;
            margin-bottom: 1rem;
            font-size: 0.875rem;
        }
    </style>
</head>
<body>
    <div class="card">
        <h1>Sign in to continue</h1>
        {{if .Error}}<div class="error">{{.Error}}</div>{{end}}
        <form method="POST" action="/login">
            <label for="email">Email</label>
            <input type="email" id="email" name="email" value="{{.Email}}" required autofocus>
            <label for="password">Password</label>
            <input type="password" id="password" name="password" required>
            <div class="mode">
                <label><input type="radio" name="mode" value="signin" checked> Sign in</label>
                <label><input type="radio" name="mode" value="signup"> Create account</label>
            </div>
            <input type="hidden" name="client_id" value="{{.ClientID}}">
            <input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
            <input type="hidden" name="response_type" value="{{.ResponseType}}">
            <input type="hidden" name="state" value="{{.State}}">
            <input type="hidden" name="code_challenge" value="{{.CodeChallenge}}">
            <input type="hidden" name="code_challenge_method" value="{{.CodeChallengeMethod}}">
            <button type="submit">Continue</button>
        </form>
    </div>
</body>
</html>`

// loginPageTmpl is parsed once at package initialization
var loginPageTmpl = template.Must(template.New("login").Parse(loginPageTemplate))

// loginPageData holds the template data for the login page
type loginPageData struct {
	Error               string
	Email               string
	ClientID            string
	RedirectURI         string
	ResponseType        string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// serveLoginPage renders the login form. Execution goes to a buffer first so
// a template error cannot produce a partially written response.
func (h *Handler) serveLoginPage(w http.ResponseWriter, r *http.Request, data loginPageData, status int) {
	var buf bytes.Buffer
	if err := loginPageTmpl.Execute(&buf, data); err != nil {
		h.logger.Error("Failed to execute login page template", "error", err)
		h.writeError(w, ErrorCodeServerError, "Failed to render login page", http.StatusInternalServerError)
		return
	}

	security.SetLoginPageHeaders(w, h.baseURL(r))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// setCORSHeaders sets permissive CORS headers for browser-based clients.
// Every endpoint here is either public metadata or guarded by its own
// credentials (codes, verifiers, tokens), so a wildcard origin is safe.
func (h *Handler) setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", defaultCORSMaxAge)
}

// handlePreflight answers CORS preflight requests. Returns true if the
// request was a preflight and has been handled.
func (h *Handler) handlePreflight(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodOptions {
		return false
	}
	h.setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
	return true
}

// writeJSON writes a JSON response body with the given status
func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an OAuth error response as JSON
func (h *Handler) writeError(w http.ResponseWriter, code, description string, status int) {
	h.writeJSON(w, status, ErrorResponse{
		Error:            code,
		ErrorDescription: description,
	})
}

// writeOAuthError translates an error from the server layer into an OAuth
// error response. Unrecognized errors become a generic server_error with no
// internal detail exposed.
func (h *Handler) writeOAuthError(w http.ResponseWriter, err error) {
	var oerr *OAuthError
	if errors.As(err, &oerr) {
		h.writeError(w, oerr.Code, oerr.Description, oerr.Status)
		return
	}
	h.logger.Error("Unexpected error", "error", err)
	h.writeError(w, ErrorCodeServerError, "Internal server error", http.StatusInternalServerError)
}

// oauthStatus returns the HTTP status an error will be written with
func oauthStatus(err error) int {
	var oerr *OAuthError
	if errors.As(err, &oerr) {
		return oerr.Status
	}
	return http.StatusInternalServerError
}

// startSpan starts an HTTP-layer span when tracing is enabled. The returned
// context is always usable.
func (h *Handler) startSpan(r *http.Request, name string) (context.Context, trace.Span) {
	if h.tracer == nil {
		return r.Context(), nil
	}
	return h.tracer.Start(r.Context(), name)
}

func (h *Handler) endSpan(span trace.Span) {
	if span != nil {
		span.End()
	}
}

// recordHTTPMetrics records request count and duration for an endpoint
func (h *Handler) recordHTTPMetrics(ctx context.Context, endpoint, method string, statusCode int, startTime time.Time) {
	if h.server.instrumentation == nil {
		return
	}
	durationMs := float64(time.Since(startTime).Microseconds()) / 1000.0
	h.server.instrumentation.Metrics().RecordHTTPRequest(ctx, method, endpoint, statusCode, durationMs)
}
