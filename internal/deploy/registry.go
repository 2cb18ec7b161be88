package deploy

import (
	"sync"
)

// Registry hands out at most one live Service per (clientID, redirectURI)
// pair, so independent callers share one instance instead of triggering
// duplicate initializations and user-info fetches.
type Registry struct {
	mu       sync.Mutex
	services map[string]*Service
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]*Service)}
}

// GetOrCreate returns the existing Service for cfg's identity, or
// constructs and remembers a new one.
func (r *Registry) GetOrCreate(cfg Config) *Service {
	key := cfg.ClientID + "\x00" + cfg.RedirectURI

	r.mu.Lock()
	defer r.mu.Unlock()

	if svc, ok := r.services[key]; ok {
		return svc
	}
	svc := NewService(cfg)
	r.services[key] = svc
	return svc
}

// Len reports how many live instances the registry holds.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.services)
}
