package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"

// DeviceAuthorization is an initiated device flow. The user enters UserCode
// at VerificationURI while Poll waits for the grant.
type DeviceAuthorization struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	ExpiresIn       time.Duration
	Interval        time.Duration

	flow *Flow
	// deadline is taken from the monotonic clock at initiation; the poll
	// never outlives it regardless of what the provider answers.
	deadline time.Time
}

// StartDeviceFlow requests a device and user code pair from the provider.
func (f *Flow) StartDeviceFlow(ctx context.Context, scopes []string) (*DeviceAuthorization, error) {
	if f.clientID == "" {
		return nil, ErrClientIDRequired
	}

	data := url.Values{}
	data.Set("client_id", f.clientID)
	if len(scopes) > 0 {
		data.Set("scope", strings.Join(scopes, " "))
	}

	body, status, err := f.postForm(ctx, f.deviceCodeURL, data)
	if err != nil {
		return nil, fmt.Errorf("device code request failed: %w", err)
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("device code request returned status %d: %s", status, body)
	}

	var resp struct {
		DeviceCode      string `json:"device_code"`
		UserCode        string `json:"user_code"`
		VerificationURI string `json:"verification_uri"`
		ExpiresIn       int    `json:"expires_in"`
		Interval        int    `json:"interval"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode device code response: %w", err)
	}
	if resp.DeviceCode == "" {
		return nil, fmt.Errorf("device code response is missing device_code")
	}

	interval := time.Duration(resp.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &DeviceAuthorization{
		DeviceCode:      resp.DeviceCode,
		UserCode:        resp.UserCode,
		VerificationURI: resp.VerificationURI,
		ExpiresIn:       time.Duration(resp.ExpiresIn) * time.Second,
		Interval:        interval,
		flow:            f,
		deadline:        f.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}

// Poll polls the token endpoint until the user authorizes, the device code
// expires, or ctx is cancelled. Cancelling ctx is the caller's cancel
// handle; the expiry deadline is the built-in one.
func (d *DeviceAuthorization) Poll(ctx context.Context) (*Token, error) {
	f := d.flow
	interval := d.Interval

	for {
		remaining := d.deadline.Sub(f.now())
		if remaining <= 0 {
			return nil, ErrDeviceFlowExpired
		}
		// Never sleep past the deadline: a short-lived device code must
		// expire at its expiry, not one interval later.
		wait := interval
		if remaining < wait {
			wait = remaining
		}
		if err := f.sleep(ctx, wait); err != nil {
			return nil, err
		}
		if !f.now().Before(d.deadline) {
			return nil, ErrDeviceFlowExpired
		}

		data := url.Values{}
		data.Set("client_id", f.clientID)
		data.Set("device_code", d.DeviceCode)
		data.Set("grant_type", deviceGrantType)

		// GitHub answers the poll with 200 for both pending and terminal
		// states; the body's error field is the real signal.
		body, _, err := f.postForm(ctx, f.tokenURL, data)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Transient network failure; the deadline bounds the loop.
			continue
		}

		var resp struct {
			AccessToken string `json:"access_token"`
			TokenType   string `json:"token_type"`
			Scope       string `json:"scope"`
			Error       string `json:"error"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			// Unknown intermediate response; keep polling.
			continue
		}

		switch resp.Error {
		case "":
			if resp.AccessToken != "" {
				return &Token{
					AccessToken: resp.AccessToken,
					TokenType:   resp.TokenType,
					Scope:       resp.Scope,
				}, nil
			}
			// 2xx with neither token nor error; keep polling.
		case "authorization_pending":
			// User has not acted yet.
		case "slow_down":
			// The provider wants a longer interval from here on.
			interval += 5 * time.Second
		case "expired_token":
			return nil, ErrDeviceFlowExpired
		case "access_denied":
			return nil, ErrDeviceFlowDenied
		default:
			// Unknown error; tolerate and retry within the deadline.
		}
	}
}
