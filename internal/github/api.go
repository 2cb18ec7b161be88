package github

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

func unixTime(secs int64) time.Time {
	if secs == 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}

// User is the authenticated GitHub account.
type User struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// Repository is the subset of repository metadata pagelift needs.
type Repository struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Private       bool   `json:"private"`
	DefaultBranch string `json:"default_branch"`
	HTMLURL       string `json:"html_url"`
	Owner         struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// CreateRepoRequest creates a repository for the authenticated user.
type CreateRepoRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Private     bool   `json:"private"`
	AutoInit    bool   `json:"auto_init"`
}

// ContentFile is a file returned by the contents API. Content is base64
// with embedded newlines, per the API.
type ContentFile struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// PutContentsRequest creates or updates a file. SHA is required when the
// path already exists.
type PutContentsRequest struct {
	Message string `json:"message"`
	Content string `json:"content"` // base64
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

// ContentWriteResponse is the result of a contents PUT.
type ContentWriteResponse struct {
	Content *struct {
		Path string `json:"path"`
		SHA  string `json:"sha"`
	} `json:"content"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// PagesSource selects the publishing branch and directory.
type PagesSource struct {
	Branch string `json:"branch"`
	Path   string `json:"path"`
}

// PagesRequest enables or reconfigures GitHub Pages for a repository.
type PagesRequest struct {
	Source PagesSource `json:"source"`
}

// PagesSite is the Pages configuration of a repository.
type PagesSite struct {
	HTMLURL string      `json:"html_url"`
	Status  string      `json:"status"`
	Source  PagesSource `json:"source"`
}

// GetUser fetches the authenticated user.
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.Do(ctx, "GET", "/user", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListRepos lists repositories of the authenticated user.
func (c *Client) ListRepos(ctx context.Context) ([]Repository, error) {
	var repos []Repository
	if err := c.Do(ctx, "GET", "/user/repos?per_page=100", nil, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// GetRepo fetches a single repository.
func (c *Client) GetRepo(ctx context.Context, owner, repo string) (*Repository, error) {
	var r Repository
	if err := c.Do(ctx, "GET", fmt.Sprintf("/repos/%s/%s", owner, repo), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRepo creates a repository for the authenticated user.
func (c *Client) CreateRepo(ctx context.Context, req CreateRepoRequest) (*Repository, error) {
	var r Repository
	if err := c.Do(ctx, "POST", "/user/repos", req, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetContents fetches file metadata and content for a path.
func (c *Client) GetContents(ctx context.Context, owner, repo, path string) (*ContentFile, error) {
	var f ContentFile
	if err := c.Do(ctx, "GET", contentsPath(owner, repo, path), nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// PutContents creates or updates a file.
func (c *Client) PutContents(ctx context.Context, owner, repo, path string, req PutContentsRequest) (*ContentWriteResponse, error) {
	var resp ContentWriteResponse
	if err := c.Do(ctx, "PUT", contentsPath(owner, repo, path), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetPages fetches the Pages configuration.
func (c *Client) GetPages(ctx context.Context, owner, repo string) (*PagesSite, error) {
	var site PagesSite
	if err := c.Do(ctx, "GET", fmt.Sprintf("/repos/%s/%s/pages", owner, repo), nil, &site); err != nil {
		return nil, err
	}
	return &site, nil
}

// CreatePages enables Pages for a repository.
func (c *Client) CreatePages(ctx context.Context, owner, repo string, req PagesRequest) (*PagesSite, error) {
	var site PagesSite
	if err := c.Do(ctx, "POST", fmt.Sprintf("/repos/%s/%s/pages", owner, repo), req, &site); err != nil {
		return nil, err
	}
	return &site, nil
}

// UpdatePages reconfigures Pages for a repository.
func (c *Client) UpdatePages(ctx context.Context, owner, repo string, req PagesRequest) error {
	return c.Do(ctx, "PUT", fmt.Sprintf("/repos/%s/%s/pages", owner, repo), req, nil)
}

// GetRateLimit asks the API for the current rate limit state.
func (c *Client) GetRateLimit(ctx context.Context) (*RateLimitSnapshot, error) {
	var resp struct {
		Resources struct {
			Core struct {
				Limit     int   `json:"limit"`
				Remaining int   `json:"remaining"`
				Reset     int64 `json:"reset"`
			} `json:"core"`
		} `json:"resources"`
	}
	if err := c.Do(ctx, "GET", "/rate_limit", nil, &resp); err != nil {
		return nil, err
	}
	return &RateLimitSnapshot{
		Limit:     resp.Resources.Core.Limit,
		Remaining: resp.Resources.Core.Remaining,
		ResetAt:   unixTime(resp.Resources.Core.Reset),
	}, nil
}

// contentsPath builds the contents endpoint path, escaping each segment of
// the file path but keeping separators.
func contentsPath(owner, repo, path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, strings.Join(segments, "/"))
}
