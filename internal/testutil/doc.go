// Package testutil provides testing utilities and test fixtures for the
// matchmaker-auth library. It includes helpers for creating test data,
// assertions, and PKCE pairs for flow tests.
package testutil
