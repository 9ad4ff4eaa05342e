package security

import "time"

// IsCodeExpired reports whether a locally issued expiry timestamp has
// passed. The comparison is strict: the code store stamps ExpiresAt from
// this process's own clock, so there is no cross-system skew to tolerate,
// and a code past its expiry must never be redeemable.
//
// A zero time means no expiry.
func IsCodeExpired(expiresAt time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().After(expiresAt)
}
