package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) *CallbackServer {
	t.Helper()
	// Port 0 lets the kernel pick, so tests never collide.
	s, err := New("http://127.0.0.1:0/callback")
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func TestCallbackCaptured(t *testing.T) {
	s := startTestServer(t)

	resp, err := http.Get("http://" + s.Addr() + "/callback?code=abc&state=xyz")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "close this tab")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := s.Wait(ctx)
	require.NoError(t, err)
	assert.Contains(t, raw, "code=abc")
	assert.Contains(t, raw, "state=xyz")
}

func TestOnlyFirstCallbackCounts(t *testing.T) {
	s := startTestServer(t)

	for _, q := range []string{"?code=first&state=s", "?code=second&state=s"} {
		resp, err := http.Get("http://" + s.Addr() + "/callback" + q)
		require.NoError(t, err)
		resp.Body.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := s.Wait(ctx)
	require.NoError(t, err)
	assert.Contains(t, raw, "code=first")
}

func TestWaitHonorsContext(t *testing.T) {
	s := startTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRejectsBadRedirectURI(t *testing.T) {
	_, err := New("not-a-url")
	assert.Error(t, err)

	_, err = New("http://127.0.0.1:8976")
	assert.Error(t, err, "a path is required")
}
