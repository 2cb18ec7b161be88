// Package store provides scoped key-value storage for auth state.
//
// The auth engine keeps two records: the in-flight authorization attempt
// (single-use, short TTL) and the current session token. MemoryStore holds
// them for the life of the process; SQLiteStore persists the session across
// CLI invocations. Neither record is ever written anywhere else.
package store

import (
	"time"
)

// Well-known keys. Only the oauth flow engine writes AttemptKey and only
// the deploy service writes SessionKey.
const (
	AttemptKey = "oauth_attempt"
	SessionKey = "session"
)

// Store is a small expiring key-value store. Implementations must be safe
// for concurrent use.
type Store interface {
	// Get returns the value for key, or ok=false if the key is absent
	// or its TTL has elapsed.
	Get(key string) (value []byte, ok bool, err error)

	// Set stores value under key. A zero ttl means the entry does not
	// expire on its own.
	Set(key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
}
