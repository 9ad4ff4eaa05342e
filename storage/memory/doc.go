// Package memory provides an in-memory implementation of the storage interfaces.
//
// This package implements the ClientStore and FlowStore interfaces using Go's
// built-in maps with mutex protection for thread safety. It is suitable for
// development, testing, and single-instance deployments where persistence is
// not required. Authorization codes and client registrations do not survive a
// restart; clients are expected to re-register.
//
// Features:
//   - Thread-safe operations using sync.RWMutex
//   - Atomic single-use redemption of authorization codes
//   - Automatic cleanup of expired and consumed codes
//   - Configurable cleanup intervals
//   - Session encryption at rest via Encryptor
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	// Use store for both ClientStore and FlowStore interfaces
//	server, _ := oauth.NewServer(provider, store, store, config, logger)
package memory
