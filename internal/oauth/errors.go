package oauth

import (
	"errors"
	"fmt"
)

var (
	// ErrClientIDRequired is returned when a flow is started without a
	// configured client ID.
	ErrClientIDRequired = errors.New("oauth client ID is required")

	// ErrMalformedCallback is returned when the provider redirect is
	// missing the code or state parameter.
	ErrMalformedCallback = errors.New("oauth callback is missing code or state")

	// ErrStateMismatch is returned when the callback state does not match
	// a stored, unexpired authorization attempt. Treated as a potential
	// CSRF attack: all in-flight auth state is cleared.
	ErrStateMismatch = errors.New("oauth state mismatch")

	// ErrDeviceFlowExpired is returned when the device code expires before
	// the user authorizes.
	ErrDeviceFlowExpired = errors.New("device authorization expired")

	// ErrDeviceFlowDenied is returned when the user denies the device
	// authorization request.
	ErrDeviceFlowDenied = errors.New("device authorization denied by user")
)

// ProviderError is an error the provider reported on the callback redirect
// (e.g. the user cancelled the consent screen).
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("provider returned %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("provider returned %s", e.Code)
}

// TokenExchangeError is a failed code-for-token exchange: either a non-2xx
// response or an error field in the exchange body.
type TokenExchangeError struct {
	Status      int    // 0 when the provider answered 200 with an error body
	Code        string // provider error code, if any
	Description string
}

func (e *TokenExchangeError) Error() string {
	switch {
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("token exchange failed: %s - %s", e.Code, e.Description)
	case e.Code != "":
		return fmt.Sprintf("token exchange failed: %s", e.Code)
	default:
		return fmt.Sprintf("token exchange failed with status %d", e.Status)
	}
}
