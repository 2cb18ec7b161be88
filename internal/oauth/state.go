package oauth

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/markb/pagelift/internal/store"
)

// attemptTTL is how long an in-flight authorization attempt stays valid.
const attemptTTL = 5 * time.Minute

// Attempt is the state of one in-flight authorization attempt. It is
// created when the authorize URL is built and consumed exactly once by the
// matching callback.
type Attempt struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier"`
	Scopes       []string  `json:"scopes"`
	RedirectURI  string    `json:"redirect_uri"`
	CreatedAt    time.Time `json:"created_at"`
}

// AttemptStore persists at most one Attempt at a time in a scoped store.
type AttemptStore struct {
	store store.Store

	// now is replaceable in tests.
	now func() time.Time
}

// NewAttemptStore creates an attempt store over s.
func NewAttemptStore(s store.Store) *AttemptStore {
	return &AttemptStore{store: s, now: time.Now}
}

// Save stores a new attempt, replacing any previous one.
func (a *AttemptStore) Save(attempt *Attempt) error {
	attempt.CreatedAt = a.now()
	data, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("encode auth attempt: %w", err)
	}
	return a.store.Set(store.AttemptKey, data, attemptTTL)
}

// Take loads and removes the stored attempt. Returns ok=false when no
// attempt is stored or the stored one has aged past its TTL. The attempt is
// removed even when expired, so it can never be replayed.
func (a *AttemptStore) Take() (*Attempt, bool, error) {
	data, ok, err := a.store.Get(store.AttemptKey)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	if err := a.store.Delete(store.AttemptKey); err != nil {
		return nil, false, err
	}

	var attempt Attempt
	if err := json.Unmarshal(data, &attempt); err != nil {
		return nil, false, fmt.Errorf("decode auth attempt: %w", err)
	}

	// The store enforces TTL for its own clock; re-check here so stores
	// without expiry semantics still reject stale attempts.
	if a.now().Sub(attempt.CreatedAt) >= attemptTTL {
		return nil, false, nil
	}

	return &attempt, true, nil
}

// Clear removes any stored attempt.
func (a *AttemptStore) Clear() error {
	return a.store.Delete(store.AttemptKey)
}
