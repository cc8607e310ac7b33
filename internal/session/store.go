package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agent-trace/bridge/internal/trace"
)

// Store is an in-memory registry of the sessions observed on the write path.
// It satisfies the sink contract, so the multiplexer feeds it like any other
// sink; the HTTP API reads summaries back out of it.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Summary
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Summary),
	}
}

// Name identifies the registry in log fields and the stats endpoint.
func (s *Store) Name() string { return "sessions" }

// Write folds one event into the session's summary, creating the summary on
// first sight. Events carrying no session ID at all are not registered.
func (s *Store) Write(_ context.Context, sessionID string, ev *trace.Event) error {
	if sessionID == "" {
		sessionID = ev.SessionID
	}
	if sessionID == "" {
		return nil
	}
	ts := ev.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.sessions[sessionID]
	if !ok {
		sum = &Summary{ID: sessionID}
		s.sessions[sessionID] = sum
	}
	sum.observe(ev, ts)
	return nil
}

// Get returns a copy of one session's summary.
func (s *Store) Get(id string) (*Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return sum.Clone(), true
}

// All returns copies of every summary, most recently active first.
func (s *Store) All() []*Summary {
	s.mu.RLock()
	result := make([]*Summary, 0, len(s.sessions))
	for _, sum := range s.sessions {
		result = append(result, sum.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		if result[i].LastEventAt != result[j].LastEventAt {
			return result[i].LastEventAt > result[j].LastEventAt
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// Count returns the number of sessions seen so far.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
