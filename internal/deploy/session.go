package deploy

import (
	"encoding/json"
	"fmt"

	"github.com/markb/pagelift/internal/store"
)

// SessionUser is the signed-in GitHub account.
type SessionUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Session is the authenticated state the rest of the application consumes.
// It lives under its own store key, separate from in-flight auth attempts,
// and is destroyed on logout or invalid-token detection.
type Session struct {
	AccessToken string      `json:"access_token"`
	User        SessionUser `json:"user"`
	Scopes      []string    `json:"scopes,omitempty"`
}

func loadSession(s store.Store) (*Session, bool, error) {
	data, ok, err := s.Get(store.SessionKey)
	if err != nil || !ok {
		return nil, false, err
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, false, fmt.Errorf("decode session: %w", err)
	}
	if session.AccessToken == "" {
		return nil, false, nil
	}
	return &session, true, nil
}

func saveSession(s store.Store, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.Set(store.SessionKey, data, 0)
}

func clearSession(s store.Store) error {
	return s.Delete(store.SessionKey)
}
