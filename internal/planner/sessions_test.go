package planner

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courseplan/internal/catalog"
)

type gauge struct {
	mu sync.Mutex
	n  int
}

func (g *gauge) SetSessions(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = n
}

func newSessions(g *gauge) *Sessions {
	cache := catalog.NewCache(nil, 0)
	factory := func() *Planner {
		return newPlanner(&fakeCatalog{}, cache, nil)
	}
	if g == nil {
		return NewSessions(factory, nil)
	}
	return NewSessions(factory, g)
}

func TestSessionsLifecycle(t *testing.T) {
	g := &gauge{}
	s := newSessions(g)

	id, p := s.Create()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 1, g.n)

	got, ok := s.Get(id)
	require.True(t, ok)
	assert.Same(t, p, got)

	sid, again, created := s.GetOrCreate(id)
	assert.False(t, created)
	assert.Equal(t, id, sid)
	assert.Same(t, p, again)

	sid, fresh, created := s.GetOrCreate("unknown")
	assert.True(t, created)
	assert.NotEqual(t, "unknown", sid)
	assert.NotSame(t, p, fresh)
	assert.Equal(t, 2, s.Len())

	assert.True(t, s.Delete(id))
	assert.False(t, s.Delete(id))
	_, ok = s.Get(id)
	assert.False(t, ok)
	assert.Equal(t, 1, g.n)
}

func TestSessionsEmptyIDCreates(t *testing.T) {
	s := newSessions(nil)
	sid, _, created := s.GetOrCreate("")
	assert.True(t, created)
	assert.NotEmpty(t, sid)
}

func TestSessionsSweep(t *testing.T) {
	g := &gauge{}
	s := newSessions(g)
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	old, _ := s.Create()
	now = now.Add(2 * time.Hour)
	recent, _ := s.Create()
	now = now.Add(30 * time.Minute)

	assert.Equal(t, 1, s.Sweep(time.Hour))
	_, ok := s.Get(old)
	assert.False(t, ok)
	_, ok = s.Get(recent)
	assert.True(t, ok)
	assert.Equal(t, 1, g.n)

	// Get refreshed the recent session.
	now = now.Add(59 * time.Minute)
	assert.Equal(t, 0, s.Sweep(time.Hour))
}

func TestSessionsBlankIsNotRegistered(t *testing.T) {
	g := &gauge{}
	s := newSessions(g)

	p := s.Blank()
	require.NotNil(t, p)
	assert.Empty(t, p.Courses())
	assert.Empty(t, p.Events())
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, g.n)
	assert.NotSame(t, p, s.Blank())
}
