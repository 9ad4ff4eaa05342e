// Package instrumentation provides OpenTelemetry (OTEL) instrumentation for the
// authorization server.
//
// This package enables observability across all server layers through:
// - Metrics: Counters, histograms, and gauges for monitoring OAuth operations
// - Traces: Distributed tracing for request flows across components
// - Logging: Structured logs with trace context integration
//
// # Quick Start
//
// Enable basic instrumentation:
//
//	import "github.com/matchmakerhq/matchmaker-auth/instrumentation"
//
//	// Initialize instrumentation
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "matchmaker-auth",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	// Pass to server configuration
//	server.SetInstrumentation(inst)
//
// # Available Metrics
//
// HTTP Layer:
//   - auth.http.requests.total{method, endpoint, status} - Total HTTP requests
//   - auth.http.request.duration{endpoint} - Request duration in milliseconds
//
// OAuth Flows:
//   - auth.authorization.started{client_id} - Authorization flows started
//   - auth.login.processed{client_id, mode, success} - Login submissions processed
//   - auth.code.exchanged{client_id} - Authorization codes exchanged
//   - auth.session.refreshed{success} - Provider sessions refreshed
//   - auth.client.registered{redirect_uris} - Clients registered
//
// Security:
//   - auth.pkce.validation_failed{method} - PKCE validation failures
//   - auth.code.reuse_detected - Authorization code reuse attempts
//   - auth.audit.events.total{event_type} - Audit events emitted
//
// Storage:
//   - storage.operation.total{operation, result} - Storage operations
//   - storage.operation.duration{operation} - Operation duration in milliseconds
//   - storage.clients.count - Registered clients currently in storage
//   - storage.auth_codes.count - Authorization codes currently in storage
//
// Provider:
//   - provider.api.calls.total{provider, operation, status} - Provider API calls
//   - provider.api.duration{provider, operation} - API call duration in milliseconds
//   - provider.api.errors.total{provider, operation, error_type} - Provider API errors
//
// # Performance
//
// When instrumentation is not configured or disabled:
//   - Zero overhead (uses no-op providers)
//   - No allocations or latency impact
//
// # Thread Safety
//
// All instrumentation operations are thread-safe and can be called concurrently
// from multiple goroutines.
//
// # Security Considerations
//
// IMPORTANT: This package is designed to collect observability data, not sensitive
// credentials.
//
// When instrumenting OAuth flows, you MUST:
//   - NEVER log actual token values (access tokens, refresh tokens, authorization codes)
//   - NEVER log passwords or PKCE verifiers
//   - ONLY log metadata (token types, expiry times, validation results)
//
// Data collected in traces and metrics may be:
//   - Persisted for extended periods in observability backends
//   - Accessible to operations teams and potentially wider audiences
//   - Subject to compliance requirements (GDPR, PCI-DSS, SOC 2, etc.)
//   - Replicated across monitoring infrastructure
//
// Privacy considerations:
//   - Client IP addresses may be considered PII in some jurisdictions
//   - User IDs may be subject to privacy regulations
//   - Configure appropriate retention policies and access controls
package instrumentation
