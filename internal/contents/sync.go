// Package contents reconciles a logical file set against a repository via
// the GitHub contents API.
//
// The API has no batch primitive and create/update share one endpoint
// distinguished by the presence of the current blob SHA, so the engine works
// sequentially per file: blind create first, then the conflict path with a
// fetched SHA, then a byte-compare so an identical concurrent write counts
// as success. Uploading the same file set twice is a no-op the second time.
package contents

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/markb/pagelift/internal/github"
	"github.com/markb/pagelift/internal/log"
)

// API is the slice of the GitHub client the engine needs.
type API interface {
	GetContents(ctx context.Context, owner, repo, path string) (*github.ContentFile, error)
	PutContents(ctx context.Context, owner, repo, path string, req github.PutContentsRequest) (*github.ContentWriteResponse, error)
}

// FileRecord is one file to reconcile. Path is repository-relative.
type FileRecord struct {
	Path    string
	Content string // UTF-8 text
	Message string // commit message; a default is derived when empty
	SHA     string // current blob SHA, required for updates only
}

// Validate rejects paths that would escape the repository root.
func (r FileRecord) Validate() error {
	if r.Path == "" {
		return errors.New("file path is empty")
	}
	if strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("file path %q must be relative", r.Path)
	}
	for _, segment := range strings.Split(r.Path, "/") {
		if segment == ".." {
			return fmt.Errorf("file path %q must not contain '..'", r.Path)
		}
		if segment == "" {
			return fmt.Errorf("file path %q contains an empty segment", r.Path)
		}
	}
	return nil
}

func (r FileRecord) message() string {
	if r.Message != "" {
		return r.Message
	}
	return "Update " + r.Path
}

// Engine uploads file records one at a time.
type Engine struct {
	api API
}

// NewEngine creates a sync engine over api.
func NewEngine(api API) *Engine {
	return &Engine{api: api}
}

// UploadFiles reconciles files against owner/repo in order. Sequential on
// purpose: parallel writes to the same path race on the blob SHA.
func (e *Engine) UploadFiles(ctx context.Context, owner, repo string, files []FileRecord) error {
	for _, f := range files {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	for _, f := range files {
		if err := e.uploadOne(ctx, owner, repo, f); err != nil {
			return fmt.Errorf("upload %s: %w", f.Path, err)
		}
	}
	return nil
}

func (e *Engine) uploadOne(ctx context.Context, owner, repo string, f FileRecord) error {
	encoded := base64.StdEncoding.EncodeToString([]byte(f.Content))

	// README.md usually pre-exists from repository auto-init; probe it
	// first so an unchanged README produces no commit at all.
	if f.Path == "README.md" {
		existing, err := e.api.GetContents(ctx, owner, repo, f.Path)
		switch {
		case err == nil:
			if contentEqual(existing, f.Content) {
				log.Debug("readme unchanged, skipping", "repo", repo)
				return nil
			}
			_, err := e.api.PutContents(ctx, owner, repo, f.Path, github.PutContentsRequest{
				Message: f.message(),
				Content: encoded,
				SHA:     existing.SHA,
			})
			return err
		case github.IsNotFound(err):
			// Fall through to the create path.
		default:
			return err
		}
	}

	// Fast path: blind create.
	_, createErr := e.api.PutContents(ctx, owner, repo, f.Path, github.PutContentsRequest{
		Message: f.message(),
		Content: encoded,
		SHA:     f.SHA,
	})
	if createErr == nil {
		return nil
	}

	// Conflict path: the create may have failed because the path already
	// exists. Fetch the current SHA and retry as an update.
	existing, fetchErr := e.api.GetContents(ctx, owner, repo, f.Path)
	if fetchErr != nil {
		if github.IsNotFound(fetchErr) {
			// The path genuinely does not exist, so the create failure
			// was not a SHA conflict. Surface the original error.
			return createErr
		}
		return fetchErr
	}

	_, updateErr := e.api.PutContents(ctx, owner, repo, f.Path, github.PutContentsRequest{
		Message: f.message(),
		Content: encoded,
		SHA:     existing.SHA,
	})
	if updateErr == nil {
		return nil
	}

	// A concurrent writer may have already landed the same bytes. If the
	// repository already holds exactly what we wanted to write, the failed
	// update is a no-op, not a failure.
	if contentEqual(existing, f.Content) {
		log.Debug("content already current", "path", f.Path)
		return nil
	}
	return updateErr
}

// contentEqual compares a fetched file against intended content byte for
// byte. The contents API returns base64 with embedded newlines.
func contentEqual(existing *github.ContentFile, want string) bool {
	if existing == nil {
		return false
	}
	raw := strings.ReplaceAll(existing.Content, "\n", "")
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return false
	}
	return string(decoded) == want
}
