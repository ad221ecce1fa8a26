package events

import (
	"slices"

	"courseplan/internal/model"
)

type slotKey struct {
	id   model.ID
	slot int
}

// Projection is the flattened list of displayed events. It is maintained
// incrementally so untouched events keep their position and identity.
//
// A Projection is not safe for concurrent use.
type Projection struct {
	events []model.CalendarEvent
}

// NewProjection returns an empty projection.
func NewProjection() *Projection {
	return &Projection{}
}

// Append adds evs. An event whose (ID, Slot) is already live replaces the
// live one in place.
func (p *Projection) Append(evs ...model.CalendarEvent) {
	index := make(map[slotKey]int, len(p.events))
	for i, e := range p.events {
		index[slotKey{e.ID, e.Slot}] = i
	}
	for _, e := range evs {
		k := slotKey{e.ID, e.Slot}
		if i, ok := index[k]; ok {
			p.events[i] = e
			continue
		}
		index[k] = len(p.events)
		p.events = append(p.events, e)
	}
}

// RemoveClass drops every event of class id under course parentID and
// returns how many went.
func (p *Projection) RemoveClass(parentID, id model.ID) int {
	return p.remove(func(e model.CalendarEvent) bool { return e.GroupID == parentID && e.ID == id })
}

// RemoveGroup drops every event whose group is parentID.
func (p *Projection) RemoveGroup(parentID model.ID) int {
	return p.remove(func(e model.CalendarEvent) bool { return e.GroupID == parentID })
}

func (p *Projection) remove(match func(model.CalendarEvent) bool) int {
	before := len(p.events)
	p.events = slices.DeleteFunc(p.events, match)
	return before - len(p.events)
}

// Events returns a copy of the live events in display order.
func (p *Projection) Events() []model.CalendarEvent {
	out := make([]model.CalendarEvent, len(p.events))
	copy(out, p.events)
	return out
}

func (p *Projection) Len() int { return len(p.events) }

// IDs returns the distinct class ids on display, in first-seen order.
func (p *Projection) IDs() []model.ID {
	seen := make(map[model.ID]struct{}, len(p.events))
	ids := make([]model.ID, 0, len(p.events))
	for _, e := range p.events {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		seen[e.ID] = struct{}{}
		ids = append(ids, e.ID)
	}
	return ids
}
