package ics

import (
	"bytes"
	"errors"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "courseplan/internal/log"
	"courseplan/internal/model"
)

// ParsedEvent is a VEVENT read back from an exported calendar.
type ParsedEvent struct {
	UID     string
	ClassID model.ID
	GroupID model.ID
	Slot    int

	Summary     string
	Description string
	Location    string

	Start time.Time
	End   time.Time
	// StartTZ is the TZID parameter of DTSTART, empty for UTC times.
	StartTZ  string
	RawRRule string
}

// Parse reads VEVENTs produced by Export. Events whose UID was not issued
// by Export are skipped.
func Parse(body []byte) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err)
		return nil, err
	}

	out := make([]ParsedEvent, 0)
	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(ve)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "reason", perr.Error())
			continue
		}
		out = append(out, ev)
	}

	appLog.Debug("ics parse completed", "event_count", len(out))
	return out, nil
}

func parseVEvent(ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value
	id, slot, err := parseUID(out.UID)
	if err != nil {
		return out, err
	}
	out.ClassID, out.Slot = id, slot

	if p := ve.GetProperty(ical.ComponentPropertyCategories); p != nil {
		out.GroupID = model.ID(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, err
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return out, err
	}
	out.Start, out.End = start, end

	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		if tzs, ok := p.ICalParameters[string(ical.ParameterTzid)]; ok && len(tzs) > 0 {
			out.StartTZ = tzs[0]
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}
	return out, nil
}
