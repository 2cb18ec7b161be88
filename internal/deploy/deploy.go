// Package deploy sequences authentication, file sync, and GitHub Pages
// enablement, and owns the session facade the rest of the application uses.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/markb/pagelift/internal/contents"
	"github.com/markb/pagelift/internal/github"
	"github.com/markb/pagelift/internal/log"
	"github.com/markb/pagelift/internal/oauth"
	"github.com/markb/pagelift/internal/store"
)

// ErrNotAuthenticated is returned when an operation needs a signed-in user.
var ErrNotAuthenticated = errors.New("not authenticated: run 'pagelift login' first")

// DefaultScopes is what pagelift asks for: repo contents and the user's
// primary email.
var DefaultScopes = []string{"repo", "user:email"}

// Config wires a Service. ClientID is required for the login flows; Store
// defaults to an in-memory store, Branch to "main".
type Config struct {
	ClientID    string
	RedirectURI string
	Scopes      []string
	Branch      string

	Store  store.Store
	Client *github.Client
	Flow   *oauth.Flow // constructed from ClientID/RedirectURI/Store when nil
}

// Service is the deployment orchestrator. One Service per
// (clientID, redirectURI) pair; use a Registry to share instances.
type Service struct {
	clientID    string
	redirectURI string
	scopes      []string
	branch      string

	flow   *oauth.Flow
	client *github.Client
	engine *contents.Engine
	store  store.Store

	// group deduplicates concurrent Initialize calls: every caller that
	// arrives while a flight is running awaits that same flight.
	group singleflight.Group

	mu      sync.RWMutex
	session *Session
}

// NewService creates a Service from cfg.
func NewService(cfg Config) *Service {
	s := &Service{
		clientID:    cfg.ClientID,
		redirectURI: cfg.RedirectURI,
		scopes:      cfg.Scopes,
		branch:      cfg.Branch,
		flow:        cfg.Flow,
		client:      cfg.Client,
		store:       cfg.Store,
	}
	if s.scopes == nil {
		s.scopes = DefaultScopes
	}
	if s.branch == "" {
		s.branch = "main"
	}
	if s.store == nil {
		s.store = store.NewMemoryStore()
	}
	if s.client == nil {
		s.client = github.NewClient(github.Config{})
	}
	if s.flow == nil {
		s.flow = oauth.NewFlow(oauth.Config{
			ClientID:    cfg.ClientID,
			RedirectURI: cfg.RedirectURI,
			Store:       s.store,
		})
	}
	s.engine = contents.NewEngine(s.client)
	return s
}

// Initialize restores a persisted session and validates its token with one
// /user fetch. Concurrent callers share a single in-flight initialization.
// A missing session is not an error; an invalid token clears the session so
// the caller re-prompts.
func (s *Service) Initialize(ctx context.Context) error {
	_, err, _ := s.group.Do("initialize", func() (any, error) {
		return nil, s.initialize(ctx)
	})
	return err
}

func (s *Service) initialize(ctx context.Context) error {
	session, ok, err := loadSession(s.store)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	s.client.SetToken(session.AccessToken)
	user, err := s.client.GetUser(ctx)
	if err != nil {
		if github.IsAuth(err) {
			log.Warn("stored token is no longer valid, clearing session")
			s.resetAuth()
			return nil
		}
		return fmt.Errorf("validate session: %w", err)
	}

	session.User = SessionUser{ID: user.ID, Login: user.Login, Email: user.Email, AvatarURL: user.AvatarURL}

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
	log.Debug("session restored", "login", user.Login)
	return nil
}

// CurrentSession returns the active session, if any.
func (s *Service) CurrentSession() (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, false
	}
	copied := *s.session
	return &copied, true
}

// IsAuthenticated reports whether a session is active.
func (s *Service) IsAuthenticated() bool {
	_, ok := s.CurrentSession()
	return ok
}

// AuthorizationURL starts a PKCE attempt and returns the browser URL.
func (s *Service) AuthorizationURL() (string, error) {
	return s.flow.BuildAuthorizationURL(s.scopes)
}

// CompleteAuthorization finishes the PKCE flow from the provider redirect
// and establishes the session.
func (s *Service) CompleteAuthorization(ctx context.Context, callbackURL string) (*Session, error) {
	token, err := s.flow.HandleCallback(ctx, callbackURL)
	if err != nil {
		return nil, err
	}
	return s.AdoptToken(ctx, token)
}

// StartDeviceLogin initiates the device flow. The caller shows the user
// code, then passes the authorization to FinishDeviceLogin.
func (s *Service) StartDeviceLogin(ctx context.Context) (*oauth.DeviceAuthorization, error) {
	return s.flow.StartDeviceFlow(ctx, s.scopes)
}

// FinishDeviceLogin polls until the device grant resolves, then establishes
// the session. ctx cancels the poll.
func (s *Service) FinishDeviceLogin(ctx context.Context, auth *oauth.DeviceAuthorization) (*Session, error) {
	token, err := auth.Poll(ctx)
	if err != nil {
		return nil, err
	}
	return s.AdoptToken(ctx, token)
}

// AdoptToken installs a bearer token, resolves the account behind it, and
// persists the session. Used by both login flows and by token-paste logins.
func (s *Service) AdoptToken(ctx context.Context, token *oauth.Token) (*Session, error) {
	s.client.SetToken(token.AccessToken)

	user, err := s.client.GetUser(ctx)
	if err != nil {
		s.client.ClearToken()
		return nil, fmt.Errorf("fetch user for new token: %w", err)
	}

	session := &Session{
		AccessToken: token.AccessToken,
		User:        SessionUser{ID: user.ID, Login: user.Login, Email: user.Email, AvatarURL: user.AvatarURL},
		Scopes:      token.GrantedScopes(),
	}
	if err := saveSession(s.store, session); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
	log.Info("signed in", "login", user.Login)
	return session, nil
}

// Logout destroys the session and forgets the token.
func (s *Service) Logout() error {
	s.resetAuth()
	return nil
}

func (s *Service) resetAuth() {
	s.client.ClearToken()
	if err := clearSession(s.store); err != nil {
		log.Warn("clear stored session", "err", err)
	}
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
}

// Client exposes the underlying REST client for read-only queries such as
// the rate limit command.
func (s *Service) Client() *github.Client {
	return s.client
}

// Deploy publishes files to owner/repo and returns the Pages site URL.
// Sequence: session check, ensure the repository exists, sync files, enable
// Pages (already-enabled counts as success).
func (s *Service) Deploy(ctx context.Context, owner, repo string, files []contents.FileRecord) (string, error) {
	session, ok := s.CurrentSession()
	if !ok {
		return "", ErrNotAuthenticated
	}

	runID := uuid.NewString()
	logger := log.Logger().With("run", runID, "repo", owner+"/"+repo)
	logger.Info("starting deploy", "files", len(files))

	if err := s.ensureRepository(ctx, session, owner, repo); err != nil {
		return "", err
	}

	if err := s.engine.UploadFiles(ctx, owner, repo, files); err != nil {
		return "", err
	}
	logger.Debug("file sync complete")

	if err := s.enablePages(ctx, owner, repo); err != nil {
		return "", err
	}

	url := PagesURL(owner, repo)
	logger.Info("deploy complete", "url", url)
	return url, nil
}

// ensureRepository creates the target repository when it does not exist yet
// and the signed-in user owns the target namespace.
func (s *Service) ensureRepository(ctx context.Context, session *Session, owner, repo string) error {
	_, err := s.client.GetRepo(ctx, owner, repo)
	if err == nil {
		return nil
	}
	if !github.IsNotFound(err) {
		return err
	}
	if !strings.EqualFold(owner, session.User.Login) {
		// Can't create into someone else's namespace.
		return err
	}

	log.Info("creating repository", "repo", owner+"/"+repo)
	_, err = s.client.CreateRepo(ctx, github.CreateRepoRequest{
		Name:     repo,
		AutoInit: true,
	})
	return err
}

// enablePages turns on Pages publishing from the configured branch root.
// A site that is already enabled is a success, decided on the structured
// error: the Pages endpoint answers 409, or 422 with an "already" message.
// Any other 422 is a real failure, such as a missing publishing branch, and
// must surface.
func (s *Service) enablePages(ctx context.Context, owner, repo string) error {
	_, err := s.client.CreatePages(ctx, owner, repo, github.PagesRequest{
		Source: github.PagesSource{Branch: s.branch, Path: "/"},
	})
	if err == nil {
		return nil
	}

	var apiErr *github.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status == http.StatusConflict {
			log.Debug("pages already enabled", "repo", owner+"/"+repo)
			return nil
		}
		if apiErr.Class == github.ClassValidation &&
			strings.Contains(strings.ToLower(apiErr.Message), "already") {
			log.Debug("pages already enabled", "repo", owner+"/"+repo)
			return nil
		}
	}
	return err
}

// PagesURL computes the published site URL for a repository.
func PagesURL(owner, repo string) string {
	return fmt.Sprintf("https://%s.github.io/%s", strings.ToLower(owner), repo)
}
