package planner

import (
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "courseplan/internal/log"
)

// SessionRecorder receives the number of live sessions.
type SessionRecorder interface {
	SetSessions(n int)
}

type session struct {
	planner  *Planner
	lastSeen time.Time
}

// Sessions is the in-memory registry of planning sessions. It is safe for
// concurrent use.
type Sessions struct {
	newPlanner func() *Planner
	metrics    SessionRecorder
	now        func() time.Time

	mu    sync.Mutex
	items map[string]*session
}

// NewSessions creates a registry that builds planners with newPlanner.
// metrics may be nil.
func NewSessions(newPlanner func() *Planner, metrics SessionRecorder) *Sessions {
	return &Sessions{
		newPlanner: newPlanner,
		metrics:    metrics,
		now:        time.Now,
		items:      make(map[string]*session),
	}
}

// Get returns the planner of session id and marks it as used.
func (s *Sessions) Get(id string) (*Planner, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.items[id]
	if !ok {
		return nil, false
	}
	sess.lastSeen = s.now()
	return sess.planner, true
}

// Blank returns an empty planner that belongs to no session. It serves
// read-only requests from clients that have not started a session yet.
func (s *Sessions) Blank() *Planner {
	return s.newPlanner()
}

// Create starts a new session and returns its id.
func (s *Sessions) Create() (string, *Planner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked()
}

// GetOrCreate returns the session id refers to, or a new session when id
// is empty or unknown. created reports which happened.
func (s *Sessions) GetOrCreate(id string) (sid string, p *Planner, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.items[id]; ok && id != "" {
		sess.lastSeen = s.now()
		return id, sess.planner, false
	}
	sid, p = s.createLocked()
	return sid, p, true
}

// Delete ends a session.
func (s *Sessions) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	s.report()
	return true
}

// Sweep ends every session unused for longer than idle and returns how
// many were removed.
func (s *Sessions) Sweep(idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-idle)
	removed := 0
	for id, sess := range s.items {
		if sess.lastSeen.Before(cutoff) {
			delete(s.items, id)
			removed++
		}
	}
	if removed > 0 {
		appLog.Info("idle sessions swept", "removed", removed, "remaining", len(s.items))
		s.report()
	}
	return removed
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Sessions) createLocked() (string, *Planner) {
	id := uuid.NewString()
	p := s.newPlanner()
	s.items[id] = &session{planner: p, lastSeen: s.now()}
	appLog.Debug("session created", "session", id)
	s.report()
	return id, p
}

func (s *Sessions) report() {
	if s.metrics != nil {
		s.metrics.SetSessions(len(s.items))
	}
}
