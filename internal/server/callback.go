// Package server runs the short-lived localhost HTTP server that captures
// the OAuth redirect during a browser login.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/markb/pagelift/internal/log"
)

const successPage = `<!DOCTYPE html>
<html>
<head><title>pagelift</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4em;">
<h2>Signed in</h2>
<p>You can close this tab and return to the terminal.</p>
</body>
</html>`

// CallbackServer listens on the redirect URI's host and port and hands the
// first provider redirect to the waiting login flow.
type CallbackServer struct {
	addr string
	path string

	srv      *http.Server
	listener net.Listener

	once   sync.Once
	result chan string
}

// New creates a callback server for redirectURI (e.g.
// "http://127.0.0.1:8976/callback").
func New(redirectURI string) (*CallbackServer, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("parse redirect uri: %w", err)
	}
	if u.Host == "" || u.Path == "" {
		return nil, fmt.Errorf("redirect uri %q needs a host and path", redirectURI)
	}
	return &CallbackServer{
		addr:   u.Host,
		path:   u.Path,
		result: make(chan string, 1),
	}, nil
}

// Start binds the listener and begins serving. Callers must Shutdown.
func (s *CallbackServer) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = listener

	r := chi.NewRouter()
	r.Get(s.path, s.handleCallback)

	s.srv = &http.Server{
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("callback server stopped", "err", err)
		}
	}()

	log.Debug("callback server listening", "addr", s.Addr())
	return nil
}

// Addr returns the bound address, useful when the port was chosen by the
// kernel.
func (s *CallbackServer) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	// Only the first redirect counts; stray refreshes still get the page.
	s.once.Do(func() {
		s.result <- "http://" + r.Host + r.URL.String()
	})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, successPage)
}

// Wait blocks until the provider redirects or ctx is done, returning the
// full callback URL including its query string.
func (s *CallbackServer) Wait(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case raw := <-s.result:
		return raw, nil
	}
}

// Shutdown stops the server.
func (s *CallbackServer) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
