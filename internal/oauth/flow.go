package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"

	"github.com/markb/pagelift/internal/log"
	"github.com/markb/pagelift/internal/store"
)

// Config holds flow configuration. ClientID is required; endpoint URLs
// default to GitHub and exist as fields so tests can point the flow at a
// fake provider.
type Config struct {
	ClientID    string
	RedirectURI string

	// Store holds the in-flight attempt. Required.
	Store store.Store

	AuthorizeURL  string
	TokenURL      string
	DeviceCodeURL string

	HTTPClient *http.Client
}

// Token is the result of a successful exchange. GitHub reports the granted
// scopes back in the exchange response as a comma-separated list.
type Token struct {
	AccessToken string
	TokenType   string
	Scope       string
}

// GrantedScopes splits the provider scope string into individual scopes.
func (t *Token) GrantedScopes() []string {
	if t.Scope == "" {
		return nil
	}
	parts := strings.Split(t.Scope, ",")
	scopes := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

// Flow drives the PKCE and device authorization flows. It only ever
// produces tokens; session bookkeeping belongs to the caller.
type Flow struct {
	clientID    string
	redirectURI string

	authorizeURL  string
	tokenURL      string
	deviceCodeURL string

	attempts   *AttemptStore
	httpClient *http.Client

	// Clock and sleep hooks for the device poll loop. Tests replace them.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFlow creates a flow from cfg.
func NewFlow(cfg Config) *Flow {
	f := &Flow{
		clientID:      cfg.ClientID,
		redirectURI:   cfg.RedirectURI,
		authorizeURL:  cfg.AuthorizeURL,
		tokenURL:      cfg.TokenURL,
		deviceCodeURL: cfg.DeviceCodeURL,
		attempts:      NewAttemptStore(cfg.Store),
		httpClient:    cfg.HTTPClient,
		now:           time.Now,
		sleep:         sleepCtx,
	}
	if f.authorizeURL == "" {
		f.authorizeURL = githuboauth.Endpoint.AuthURL
	}
	if f.tokenURL == "" {
		f.tokenURL = githuboauth.Endpoint.TokenURL
	}
	if f.deviceCodeURL == "" {
		f.deviceCodeURL = githuboauth.Endpoint.DeviceAuthURL
	}
	if f.httpClient == nil {
		f.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return f
}

// BuildAuthorizationURL generates PKCE parameters and a CSRF state, stores
// the attempt, and returns the provider authorize URL.
func (f *Flow) BuildAuthorizationURL(scopes []string) (string, error) {
	if f.clientID == "" {
		return "", ErrClientIDRequired
	}

	pkce, err := GeneratePKCE()
	if err != nil {
		return "", fmt.Errorf("generate pkce: %w", err)
	}
	state, err := GenerateState()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}

	attempt := &Attempt{
		State:        state,
		CodeVerifier: pkce.Verifier,
		Scopes:       scopes,
		RedirectURI:  f.redirectURI,
	}
	if err := f.attempts.Save(attempt); err != nil {
		return "", fmt.Errorf("save auth attempt: %w", err)
	}

	cfg := oauth2.Config{
		ClientID:    f.clientID,
		RedirectURL: f.redirectURI,
		Scopes:      scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  f.authorizeURL,
			TokenURL: f.tokenURL,
		},
	}
	return cfg.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", pkce.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", pkce.Method),
	), nil
}

// HandleCallback validates a provider redirect and exchanges the code for a
// token. The stored attempt is consumed on every exit path, success or
// failure, so a captured callback URL can never be replayed.
func (f *Flow) HandleCallback(ctx context.Context, rawURL string) (*Token, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse callback url: %w", err)
	}
	q := u.Query()

	if errCode := q.Get("error"); errCode != "" {
		f.clearAttempt()
		return nil, &ProviderError{Code: errCode, Description: q.Get("error_description")}
	}

	code := q.Get("code")
	state := q.Get("state")
	if code == "" || state == "" {
		f.clearAttempt()
		return nil, ErrMalformedCallback
	}

	attempt, ok, err := f.attempts.Take()
	if err != nil {
		return nil, fmt.Errorf("load auth attempt: %w", err)
	}
	if !ok || attempt.State != state {
		return nil, ErrStateMismatch
	}

	return f.exchangeCode(ctx, code, attempt.CodeVerifier)
}

// clearAttempt destroys the in-flight attempt. The callback outcome is
// already decided here, so a store failure is only worth a warning.
func (f *Flow) clearAttempt() {
	if err := f.attempts.Clear(); err != nil {
		log.Warn("clear auth attempt", "err", err)
	}
}

// exchangeCode performs the PKCE token exchange. No client secret is sent;
// the code verifier is the proof of possession.
func (f *Flow) exchangeCode(ctx context.Context, code, codeVerifier string) (*Token, error) {
	data := url.Values{}
	data.Set("client_id", f.clientID)
	data.Set("code", code)
	data.Set("code_verifier", codeVerifier)
	if f.redirectURI != "" {
		data.Set("redirect_uri", f.redirectURI)
	}

	body, status, err := f.postForm(ctx, f.tokenURL, data)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	if status < 200 || status > 299 {
		return nil, &TokenExchangeError{Status: status}
	}

	// GitHub answers 200 even on errors, so check the body.
	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		Scope       string `json:"scope"`
		Error       string `json:"error"`
		ErrorDesc   string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if resp.Error != "" {
		return nil, &TokenExchangeError{Code: resp.Error, Description: resp.ErrorDesc}
	}
	if resp.AccessToken == "" {
		return nil, &TokenExchangeError{Code: "empty_token", Description: "provider returned no access token"}
	}

	return &Token{
		AccessToken: resp.AccessToken,
		TokenType:   resp.TokenType,
		Scope:       resp.Scope,
	}, nil
}

// postForm sends a form-encoded POST and returns the raw body and status.
func (f *Flow) postForm(ctx context.Context, endpoint string, data url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
