package contents

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markb/pagelift/internal/github"
)

// fakeRepo emulates the contents API: create rejects existing paths, update
// demands the current SHA, GET 404s on missing paths.
type fakeRepo struct {
	files map[string]string // path -> content
	shas  map[string]string // path -> sha
	rev   int

	gets    []string
	puts    []string
	failPut func(path string, req github.PutContentsRequest) error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{files: map[string]string{}, shas: map[string]string{}}
}

func (f *fakeRepo) seed(path, content string) {
	f.rev++
	f.files[path] = content
	f.shas[path] = fmt.Sprintf("sha-%d", f.rev)
}

func (f *fakeRepo) GetContents(ctx context.Context, owner, repo, path string) (*github.ContentFile, error) {
	f.gets = append(f.gets, path)
	content, ok := f.files[path]
	if !ok {
		return nil, &github.APIError{Status: http.StatusNotFound, Class: github.ClassNotFound, Message: "Not Found"}
	}
	return &github.ContentFile{
		Type:     "file",
		Path:     path,
		SHA:      f.shas[path],
		Content:  base64.StdEncoding.EncodeToString([]byte(content)),
		Encoding: "base64",
	}, nil
}

func (f *fakeRepo) PutContents(ctx context.Context, owner, repo, path string, req github.PutContentsRequest) (*github.ContentWriteResponse, error) {
	f.puts = append(f.puts, path)
	if f.failPut != nil {
		if err := f.failPut(path, req); err != nil {
			return nil, err
		}
	}

	if _, exists := f.files[path]; exists {
		if req.SHA == "" {
			return nil, &github.APIError{Status: http.StatusUnprocessableEntity, Class: github.ClassValidation,
				Message: `Invalid request. "sha" wasn't supplied.`}
		}
		if req.SHA != f.shas[path] {
			return nil, &github.APIError{Status: http.StatusConflict, Class: github.ClassClient,
				Message: "is at " + f.shas[path] + " but expected " + req.SHA}
		}
	}

	decoded, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		return nil, &github.APIError{Status: http.StatusUnprocessableEntity, Class: github.ClassValidation, Message: "bad encoding"}
	}
	f.seed(path, string(decoded))
	return &github.ContentWriteResponse{}, nil
}

func TestUploadCreatesNewFile(t *testing.T) {
	repo := newFakeRepo()
	engine := NewEngine(repo)

	err := engine.UploadFiles(context.Background(), "me", "site", []FileRecord{
		{Path: "index.html", Content: "<h1>Hi</h1>", Message: "deploy"},
	})
	require.NoError(t, err)

	assert.Equal(t, "<h1>Hi</h1>", repo.files["index.html"])
	assert.Equal(t, []string{"index.html"}, repo.puts, "exactly one create call")
	assert.Empty(t, repo.gets, "no fetch on the fast path")
}

func TestUploadUpdatesExistingFile(t *testing.T) {
	repo := newFakeRepo()
	repo.seed("index.html", "<h1>Old</h1>")
	oldSHA := repo.shas["index.html"]
	engine := NewEngine(repo)

	err := engine.UploadFiles(context.Background(), "me", "site", []FileRecord{
		{Path: "index.html", Content: "<h1>New</h1>"},
	})
	require.NoError(t, err)

	assert.Equal(t, "<h1>New</h1>", repo.files["index.html"])
	// Blind create, conflict fetch, update with the fetched SHA.
	assert.Equal(t, []string{"index.html", "index.html"}, repo.puts)
	assert.Equal(t, []string{"index.html"}, repo.gets)
	assert.NotEqual(t, oldSHA, repo.shas["index.html"])
}

func TestUploadIdempotent(t *testing.T) {
	repo := newFakeRepo()
	engine := NewEngine(repo)
	files := []FileRecord{
		{Path: "index.html", Content: "<h1>Hi</h1>"},
		{Path: "assets/app.js", Content: "console.log(1)"},
	}

	require.NoError(t, engine.UploadFiles(context.Background(), "me", "site", files))
	before := map[string]string{}
	for p, c := range repo.files {
		before[p] = c
	}

	require.NoError(t, engine.UploadFiles(context.Background(), "me", "site", files))
	assert.Equal(t, before, repo.files, "second identical upload changes nothing")
}

func TestUploadRethrowsOriginalErrorWhenPathMissing(t *testing.T) {
	repo := newFakeRepo()
	// Create fails for a reason other than a SHA conflict.
	repo.failPut = func(path string, req github.PutContentsRequest) error {
		return &github.APIError{Status: http.StatusForbidden, Class: github.ClassForbidden, Message: "Resource not accessible"}
	}
	engine := NewEngine(repo)

	err := engine.UploadFiles(context.Background(), "me", "site", []FileRecord{
		{Path: "index.html", Content: "x"},
	})

	// The follow-up fetch 404s, so the original forbidden error surfaces.
	assert.True(t, github.IsClass(err, github.ClassForbidden))
	assert.Equal(t, []string{"index.html"}, repo.gets)
}

func TestUploadIdenticalContentRaceIsNoOp(t *testing.T) {
	repo := newFakeRepo()
	repo.seed("index.html", "<h1>Hi</h1>")
	// Every write fails, as if a concurrent deploy keeps winning.
	repo.failPut = func(path string, req github.PutContentsRequest) error {
		return &github.APIError{Status: http.StatusConflict, Class: github.ClassClient, Message: "sha conflict"}
	}
	engine := NewEngine(repo)

	err := engine.UploadFiles(context.Background(), "me", "site", []FileRecord{
		{Path: "index.html", Content: "<h1>Hi</h1>"},
	})
	assert.NoError(t, err, "repository already holds the intended bytes")
}

func TestUploadDifferentContentRacePropagates(t *testing.T) {
	repo := newFakeRepo()
	repo.seed("index.html", "<h1>Other</h1>")
	repo.failPut = func(path string, req github.PutContentsRequest) error {
		return &github.APIError{Status: http.StatusConflict, Class: github.ClassClient, Message: "sha conflict"}
	}
	engine := NewEngine(repo)

	err := engine.UploadFiles(context.Background(), "me", "site", []FileRecord{
		{Path: "index.html", Content: "<h1>Mine</h1>"},
	})
	require.Error(t, err)
}

func TestUploadSkipsIdenticalReadme(t *testing.T) {
	repo := newFakeRepo()
	repo.seed("README.md", "# My Site\n")
	engine := NewEngine(repo)

	err := engine.UploadFiles(context.Background(), "me", "site", []FileRecord{
		{Path: "README.md", Content: "# My Site\n"},
	})
	require.NoError(t, err)

	assert.Empty(t, repo.puts, "identical README must not produce a commit")
	assert.Equal(t, []string{"README.md"}, repo.gets)
}

func TestUploadRewritesChangedReadme(t *testing.T) {
	repo := newFakeRepo()
	repo.seed("README.md", "# site\n")
	engine := NewEngine(repo)

	err := engine.UploadFiles(context.Background(), "me", "site", []FileRecord{
		{Path: "README.md", Content: "# My Site\n"},
	})
	require.NoError(t, err)

	assert.Equal(t, "# My Site\n", repo.files["README.md"])
	assert.Equal(t, []string{"README.md"}, repo.puts, "single update using the prefetched SHA")
}

func TestUploadCreatesMissingReadme(t *testing.T) {
	repo := newFakeRepo()
	engine := NewEngine(repo)

	err := engine.UploadFiles(context.Background(), "me", "site", []FileRecord{
		{Path: "README.md", Content: "# My Site\n"},
	})
	require.NoError(t, err)
	assert.Equal(t, "# My Site\n", repo.files["README.md"])
}

func TestFileRecordValidate(t *testing.T) {
	cases := []struct {
		path string
		ok   bool
	}{
		{"index.html", true},
		{"assets/app.js", true},
		{"", false},
		{"/abs.html", false},
		{"../escape.html", false},
		{"a/../b.html", false},
		{"a//b.html", false},
	}
	for _, tc := range cases {
		err := FileRecord{Path: tc.path, Content: "x"}.Validate()
		if tc.ok {
			assert.NoError(t, err, tc.path)
		} else {
			assert.Error(t, err, tc.path)
		}
	}
}

func TestUploadValidatesBeforeWriting(t *testing.T) {
	repo := newFakeRepo()
	engine := NewEngine(repo)

	err := engine.UploadFiles(context.Background(), "me", "site", []FileRecord{
		{Path: "ok.html", Content: "x"},
		{Path: "../bad.html", Content: "x"},
	})
	require.Error(t, err)
	assert.Empty(t, repo.puts, "nothing is written when any record is invalid")
}
