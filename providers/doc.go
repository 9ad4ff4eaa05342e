// Package providers defines the identity provider interface and types for user
// information.
//
// This package contains the Provider interface that must be implemented by all
// identity providers, as well as the UserInfo type that represents authenticated
// user data. The provider is the system of record for users and sessions; the
// authorization server delegates every credential check to it and hands the
// provider's session tokens to OAuth clients unchanged.
//
// Implementations are provided in subpackages:
//   - providers/supabase: Supabase Auth (GoTrue) password API
//   - providers/local: in-memory bcrypt user store for development and tests
//   - providers/mock: configurable mock provider for testing
//
// Provider implementations handle:
//   - Email/password authentication
//   - Account creation
//   - Session token validation and user info retrieval
//   - Session refresh
//   - Health checks
//
// Example usage:
//
//	provider, err := supabase.NewProvider(&supabase.Config{
//	    ProjectURL: "https://myproject.supabase.co",
//	    APIKey:     os.Getenv("SUPABASE_ANON_KEY"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Use provider with the authorization server
//	server, _ := oauth.NewServer(provider, clientStore, flowStore, config, logger)
package providers
