// Package dedup provides the persisted caches that make repeated runs
// idempotent: a capped append-only list (oldest evicted) and an unbounded
// id-keyed set. Both write through to the key-value store after every
// mutation; keys are namespaced feature/account/name.
package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"petrel/internal/store/agentstore"
)

// Store is the key-value persistence the caches write through to.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, expiresAt time.Time) error
}

// Entry is one tracked id with optional feature-specific metadata.
type Entry struct {
	ID   string          `json:"id"`
	Meta json.RawMessage `json:"meta,omitempty"`
}

// List is the capped shape: append-only until cap, then oldest evicted.
type List struct {
	mu      sync.Mutex
	store   Store
	key     string
	cap     int
	entries []Entry
	index   map[string]struct{}
}

const DefaultListCap = 1000

// LoadList reads the persisted list under key, creating an empty one if
// absent. cap <= 0 uses DefaultListCap.
func LoadList(ctx context.Context, store Store, key string, cap int) (*List, error) {
	if cap <= 0 {
		cap = DefaultListCap
	}
	l := &List{store: store, key: key, cap: cap, index: make(map[string]struct{})}
	v, err := store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, agentstore.ErrNotFound) {
			return l, nil
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(v), &l.entries); err != nil {
		return nil, err
	}
	for _, e := range l.entries {
		l.index[e.ID] = struct{}{}
	}
	return l, nil
}

func (l *List) Has(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.index[id]
	return ok
}

// Add appends id, evicting the oldest entry past the cap, and persists.
func (l *List) Add(ctx context.Context, id string, meta any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.index[id]; ok {
		return nil
	}
	var raw json.RawMessage
	if meta != nil {
		b, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		raw = b
	}
	l.entries = append(l.entries, Entry{ID: id, Meta: raw})
	l.index[id] = struct{}{}
	for len(l.entries) > l.cap {
		delete(l.index, l.entries[0].ID)
		l.entries = l.entries[1:]
	}
	return l.persist(ctx)
}

func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entries returns a copy of the current entries, oldest first.
func (l *List) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *List) persist(ctx context.Context) error {
	b, err := json.Marshal(l.entries)
	if err != nil {
		return err
	}
	return l.store.Set(ctx, l.key, string(b), time.Time{})
}

// Set is the unbounded shape: entries leave only through explicit
// lifecycle events (e.g. unfollow).
type Set struct {
	mu      sync.Mutex
	store   Store
	key     string
	entries map[string]json.RawMessage
}

// LoadSet reads the persisted set under key, creating an empty one if
// absent.
func LoadSet(ctx context.Context, store Store, key string) (*Set, error) {
	s := &Set{store: store, key: key, entries: make(map[string]json.RawMessage)}
	v, err := store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, agentstore.ErrNotFound) {
			return s, nil
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(v), &s.entries); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Set) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

func (s *Set) Add(ctx context.Context, id string, meta any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var raw json.RawMessage
	if meta != nil {
		b, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		raw = b
	}
	s.entries[id] = raw
	return s.persist(ctx)
}

// Remove deletes id and persists. Removing a missing id is a no-op.
func (s *Set) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return nil
	}
	delete(s.entries, id)
	return s.persist(ctx)
}

func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Range calls fn for each entry until fn returns false.
func (s *Set) Range(fn func(id string, meta json.RawMessage) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, meta := range s.entries {
		if !fn(id, meta) {
			return
		}
	}
}

func (s *Set) persist(ctx context.Context) error {
	b, err := json.Marshal(s.entries)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, s.key, string(b), time.Time{})
}

// Key builds the namespaced cache key for a feature and account.
func Key(feature, username, name string) string {
	return feature + "/" + username + "/" + name
}
