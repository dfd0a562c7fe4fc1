// Package history keeps the per-session conversation log.
package history

import (
	"context"
	"sync"
)

// Roles recorded in a conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultMaxTurns bounds a session's stored turns when no cap is configured.
const DefaultMaxTurns = 100

// Turn is one message of a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Store is an append-only per-session turn log.
// Get on an unknown or cleared session returns an empty slice.
type Store interface {
	Get(ctx context.Context, sessionID string) ([]Turn, error)
	Append(ctx context.Context, sessionID string, turns ...Turn) error
	Clear(ctx context.Context, sessionID string) error
	Close() error
}

// MemoryStore keeps at most maxTurns turns per session, evicting the oldest.
// It is safe for concurrent use.
type MemoryStore struct {
	mu       sync.Mutex
	maxTurns int
	sessions map[string]*ring
}

// NewMemoryStore creates a store. maxTurns <= 0 uses DefaultMaxTurns.
func NewMemoryStore(maxTurns int) *MemoryStore {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &MemoryStore{maxTurns: maxTurns, sessions: make(map[string]*ring)}
}

func (m *MemoryStore) Get(ctx context.Context, sessionID string) ([]Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.sessions[sessionID]
	if !ok {
		return []Turn{}, nil
	}
	return r.slice(), nil
}

func (m *MemoryStore) Append(ctx context.Context, sessionID string, turns ...Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.sessions[sessionID]
	if !ok {
		r = &ring{buf: make([]Turn, m.maxTurns)}
		m.sessions[sessionID] = r
	}
	for _, t := range turns {
		r.push(t)
	}
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, sessionID)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// ring is a fixed-capacity circular buffer of turns.
type ring struct {
	buf   []Turn
	head  int // index of the oldest turn
	count int
}

func (r *ring) push(t Turn) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = t
		r.count++
		return
	}
	r.buf[r.head] = t
	r.head = (r.head + 1) % len(r.buf)
}

func (r *ring) slice() []Turn {
	out := make([]Turn, r.count)
	for i := range out {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}
