// Package group tracks how many alternatives of one class group are
// checked and derives the group-level checkbox from that count.
package group

import (
	"slices"

	"courseplan/internal/model"
)

// State is the group box state.
type State int

const (
	Unchecked State = iota
	Checked
)

func (s State) String() string {
	if s == Checked {
		return "checked"
	}
	return "unchecked"
}

// Display is the tri-state rendering of the group box.
type Display string

const (
	DisplayUnchecked     Display = "unchecked"
	DisplayIndeterminate Display = "indeterminate"
	DisplayChecked       Display = "checked"
)

// Reconciler is the state machine of one group. The group box is an
// indicator only: it turns Checked with the first checked child and back to
// Unchecked when the last one is unchecked or the group is Reset.
//
// A Reconciler is not safe for concurrent use.
type Reconciler struct {
	options int
	checked map[model.ID]struct{}
}

// New returns an Unchecked reconciler for a group of options alternatives.
func New(options int) *Reconciler {
	return &Reconciler{options: options, checked: make(map[model.ID]struct{})}
}

// ChildChecked records id as checked. It reports false if id was already
// checked, in which case the count is unchanged.
func (r *Reconciler) ChildChecked(id model.ID) bool {
	if _, ok := r.checked[id]; ok {
		return false
	}
	r.checked[id] = struct{}{}
	return true
}

// ChildUnchecked records id as unchecked, decrementing the count by one.
// It reports false if id was not checked.
func (r *Reconciler) ChildUnchecked(id model.ID) bool {
	if _, ok := r.checked[id]; !ok {
		return false
	}
	delete(r.checked, id)
	return true
}

// Reset forces the group to Unchecked and returns the children that were
// checked, sorted. Callers must not feed them back through ChildUnchecked.
func (r *Reconciler) Reset() []model.ID {
	ids := make([]model.ID, 0, len(r.checked))
	for id := range r.checked {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	clear(r.checked)
	return ids
}

func (r *Reconciler) Checked(id model.ID) bool {
	_, ok := r.checked[id]
	return ok
}

func (r *Reconciler) Count() int { return len(r.checked) }

func (r *Reconciler) State() State {
	if len(r.checked) > 0 {
		return Checked
	}
	return Unchecked
}

// Locked reports whether the group box is disabled, which it is whenever
// at least one child is checked.
func (r *Reconciler) Locked() bool { return r.State() == Checked }

func (r *Reconciler) Display() Display {
	n := len(r.checked)
	switch {
	case n == 0:
		return DisplayUnchecked
	case n >= r.options:
		return DisplayChecked
	default:
		return DisplayIndeterminate
	}
}
