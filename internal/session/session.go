package session

import (
	"sync"

	"petrel/internal/model"
	"petrel/internal/platform"
	"petrel/internal/queue"
)

// Session bundles everything one account needs to act on the platform:
// its client, its serialized request queue, and the resolved profile.
type Session struct {
	Username string
	Client   platform.Client
	Queue    *queue.Queue
	Profile  model.User
}

// Registry holds sessions keyed by account username. It is constructed
// once by the composition root and passed by reference; there is no
// package-level instance.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Get returns the session for username, if registered.
func (r *Registry) Get(username string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[username]
	return s, ok
}

// Put registers or replaces the session for username.
func (r *Registry) Put(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.Username] = s
}

// Remove drops the session for username.
func (r *Registry) Remove(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, username)
}
