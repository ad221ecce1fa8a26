package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courseplan/internal/model"
)

func record(id model.ID) model.SelectionRecord {
	return model.SelectionRecord{ParentID: id, Course: model.CourseInfo{Subject: "MATH"}}
}

func TestAddIsNoOpForDuplicates(t *testing.T) {
	s := New()

	tok, added := s.Add(record("12345"))
	require.True(t, added)

	dup := record("12345")
	dup.Course.Subject = "PHYS"
	tok2, added := s.Add(dup)
	assert.False(t, added)
	assert.Equal(t, tok, tok2)

	got, ok := s.Get("12345")
	require.True(t, ok)
	assert.Equal(t, "MATH", got.Course.Subject)
	assert.Equal(t, 1, s.Len())
}

func TestListKeepsInsertionOrder(t *testing.T) {
	s := New()
	for _, id := range []model.ID{"3", "1", "2"} {
		s.Add(record(id))
	}
	require.True(t, s.Remove("1"))
	s.Add(record("1"))

	var ids []model.ID
	for _, r := range s.List() {
		ids = append(ids, r.ParentID)
	}
	assert.Equal(t, []model.ID{"3", "2", "1"}, ids)
}

func TestRemove(t *testing.T) {
	s := New()
	s.Add(record("1"))

	assert.True(t, s.Remove("1"))
	assert.False(t, s.Remove("1"))
	assert.False(t, s.Has("1"))
	assert.Empty(t, s.List())
}

func TestSetGroups(t *testing.T) {
	groups := []model.ClassGroup{{Type: "Tutorial", Classes: []model.ClassOption{{ClassNumber: "999"}}}}

	t.Run("current token commits", func(t *testing.T) {
		s := New()
		tok, _ := s.Add(record("1"))
		require.NoError(t, s.SetGroups("1", tok, groups))

		got, _ := s.Get("1")
		assert.Equal(t, groups, got.Groups)
		assert.Equal(t, "MATH", got.Course.Subject)
	})

	t.Run("removed entry is stale", func(t *testing.T) {
		s := New()
		tok, _ := s.Add(record("1"))
		s.Remove("1")
		assert.ErrorIs(t, s.SetGroups("1", tok, groups), ErrStale)
		assert.False(t, s.Has("1"))
	})

	t.Run("re-added entry rejects old token", func(t *testing.T) {
		s := New()
		old, _ := s.Add(record("1"))
		s.Remove("1")
		fresh, _ := s.Add(record("1"))
		assert.NotEqual(t, old, fresh)

		assert.ErrorIs(t, s.SetGroups("1", old, groups), ErrStale)
		got, _ := s.Get("1")
		assert.Empty(t, got.Groups)

		assert.NoError(t, s.SetGroups("1", fresh, groups))
	})
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	tok, _ := s.Add(record("1"))
	require.NoError(t, s.SetGroups("1", tok, []model.ClassGroup{{Type: "Lecture"}}))

	got, _ := s.Get("1")
	got.Groups[0].Type = "mutated"

	again, _ := s.Get("1")
	assert.Equal(t, "Lecture", again.Groups[0].Type)
}
