package ics

import (
	"errors"
	"slices"
	"time"

	"courseplan/internal/events"
	appLog "courseplan/internal/log"
	"courseplan/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 500
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// Location is the timezone meeting times are interpreted in and the
	// zone of the returned occurrences. If nil, time.Local is used.
	Location *time.Location

	// RangeStart / RangeEnd define the inclusive time window for occurrences.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps each event's expansion. If zero,
	// defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the expanded occurrences and the UIDs of events that
// hit the cap.
type ExpandResult struct {
	Occurrences     []model.Occurrence `json:"occurrences"`
	TruncatedEvents []string           `json:"truncated,omitempty"`
}

// Expand turns the weekly rule of every event into concrete occurrences
// inside [RangeStart, RangeEnd], sorted by start time.
func Expand(evs []model.CalendarEvent, cfg ExpandConfig) (ExpandResult, error) {
	result := ExpandResult{Occurrences: []model.Occurrence{}}

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	for _, ev := range evs {
		r, err := events.Rule(ev, cfg.Location)
		if err != nil {
			return result, err
		}
		dur, err := events.Duration(ev)
		if err != nil {
			return result, err
		}

		starts := r.Between(cfg.RangeStart.In(cfg.Location), cfg.RangeEnd.In(cfg.Location), true)
		if len(starts) > cfg.MaxOccurrencesPerEvent {
			starts = starts[:cfg.MaxOccurrencesPerEvent]
			result.TruncatedEvents = append(result.TruncatedEvents, UID(ev))
			appLog.Error("expand: truncated occurrences for UID due to cap",
				errors.New("max occurrences reached"),
				"uid", UID(ev),
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}

		for _, s := range starts {
			result.Occurrences = append(result.Occurrences, model.Occurrence{
				ID:       ev.ID,
				GroupID:  ev.GroupID,
				Slot:     ev.Slot,
				Title:    ev.Title,
				Location: ev.Description,
				Start:    s,
				End:      s.Add(dur),
			})
		}
	}

	slices.SortStableFunc(result.Occurrences, func(a, b model.Occurrence) int {
		return a.Start.Compare(b.Start)
	})
	return result, nil
}
