// Package selection holds the courses a user added to their plan.
package selection

import (
	"errors"

	"courseplan/internal/model"
)

// ErrStale is returned by SetGroups when the entry was removed or re-added
// after the fetch that produced the groups was started.
var ErrStale = errors.New("selection: stale fetch result")

type entry struct {
	record model.SelectionRecord
	token  uint64
}

// Store maps parent class ids to selection records, ordered by insertion.
// It is not safe for concurrent use; the owning planner serializes access.
type Store struct {
	entries map[model.ID]*entry
	order   []model.ID
	gen     uint64
}

// New returns an empty store.
func New() *Store {
	return &Store{entries: make(map[model.ID]*entry)}
}

// Add inserts rec under rec.ParentID and returns the entry's generation
// token. Adding an id that is already present changes nothing and reports
// added=false together with the existing token.
func (s *Store) Add(rec model.SelectionRecord) (token uint64, added bool) {
	if e, ok := s.entries[rec.ParentID]; ok {
		return e.token, false
	}
	s.gen++
	s.entries[rec.ParentID] = &entry{record: rec.Clone(), token: s.gen}
	s.order = append(s.order, rec.ParentID)
	return s.gen, true
}

// Remove deletes the entry for id and reports whether it existed.
func (s *Store) Remove(id model.ID) bool {
	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns a copy of the record for id.
func (s *Store) Get(id model.ID) (model.SelectionRecord, bool) {
	e, ok := s.entries[id]
	if !ok {
		return model.SelectionRecord{}, false
	}
	return e.record.Clone(), true
}

// Token returns the current generation token for id.
func (s *Store) Token(id model.ID) (uint64, bool) {
	e, ok := s.entries[id]
	if !ok {
		return 0, false
	}
	return e.token, true
}

func (s *Store) Has(id model.ID) bool {
	_, ok := s.entries[id]
	return ok
}

// List returns copies of every record in insertion order.
func (s *Store) List() []model.SelectionRecord {
	out := make([]model.SelectionRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id].record.Clone())
	}
	return out
}

func (s *Store) Len() int { return len(s.order) }

// SetGroups commits fetched groups to id if the entry still carries token.
func (s *Store) SetGroups(id model.ID, token uint64, groups []model.ClassGroup) error {
	e, ok := s.entries[id]
	if !ok || e.token != token {
		return ErrStale
	}
	rec := model.SelectionRecord{ParentID: e.record.ParentID, Course: e.record.Course, Groups: groups}
	e.record = rec.Clone()
	return nil
}
