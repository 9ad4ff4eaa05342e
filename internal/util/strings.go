// Package util holds small helpers shared across packages.
package util

// SafeTruncate returns at most maxLen bytes of s. It is used when logging
// prefixes of secrets (authorization codes, tokens) where slicing a short
// string directly would panic. A negative maxLen yields an empty string.
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
