package mcp

import (
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/greptile-mcp/pkg/types"
)

// DefaultSessionLimit bounds the session store when no limit is configured
const DefaultSessionLimit = 256

// SessionStore keeps per-session conversation history in memory with LRU
// eviction. Sessions live only as long as the process; nothing persists.
type SessionStore struct {
	mu       sync.Mutex // serializes read-modify-write in Append
	sessions *lru.Cache[string, []types.Message]
}

// NewSessionStore creates a bounded session store.
func NewSessionStore(maxEntries int) *SessionStore {
	if maxEntries <= 0 {
		maxEntries = DefaultSessionLimit
	}
	sessions, err := lru.New[string, []types.Message](maxEntries)
	if err != nil {
		// Only reachable with a non-positive size, which was just corrected
		sessions, _ = lru.New[string, []types.Message](DefaultSessionLimit)
	}
	return &SessionStore{sessions: sessions}
}

// NewID mints a fresh session identifier.
func (s *SessionStore) NewID() string {
	return uuid.NewString()
}

// History returns a copy of the stored conversation for a session, oldest
// first. The copy keeps caller appends from reaching the stored slice.
func (s *SessionStore) History(id string) []types.Message {
	stored, ok := s.sessions.Get(id)
	if !ok {
		return nil
	}
	history := make([]types.Message, len(stored))
	copy(history, stored)
	return history
}

// Append adds messages to a session's history, creating the session when it
// is new and refreshing its recency either way.
func (s *SessionStore) Append(id string, msgs ...types.Message) {
	if id == "" || len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions.Add(id, append(s.History(id), msgs...))
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	return s.sessions.Len()
}
