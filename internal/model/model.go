package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ID is an opaque class or course-offering identifier. The catalog emits
// class numbers both as JSON strings and as JSON numbers, so ID accepts
// either and always marshals as a string.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("model: id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// CourseInfo is the metadata attached to a course offering once fetched.
type CourseInfo struct {
	Subject       string `json:"subject"`
	CatalogNumber string `json:"catalogNumber"`
	Title         string `json:"title"`
	CourseID      string `json:"courseId"`
	Term          string `json:"term"`
	// OfferNumber is required by the class-list query; "1" when unknown.
	OfferNumber string `json:"offerNumber,omitempty"`
}

// CourseSummary is one course search result row.
type CourseSummary struct {
	ClassNumber ID         `json:"classNumber"`
	Course      CourseInfo `json:"course"`
	Year        string     `json:"year,omitempty"`
	Campus      string     `json:"campus,omitempty"`
	Units       string     `json:"units,omitempty"`
	Career      string     `json:"career,omitempty"`
}

// ClassGroup is a labelled set of alternatives, e.g. every tutorial
// section of one course.
type ClassGroup struct {
	Type    string        `json:"type"`
	Classes []ClassOption `json:"classes"`
}

// ClassOption is one concrete offered class component.
type ClassOption struct {
	ClassNumber ID        `json:"class_nbr"`
	Section     string    `json:"section"`
	Component   string    `json:"component"`
	Size        int       `json:"size,omitempty"`
	Enrolled    int       `json:"enrolled,omitempty"`
	Available   int       `json:"available,omitempty"`
	Meetings    []Meeting `json:"meetings"`
}

// Meeting keeps the raw catalog strings; parsing happens when the meeting
// is turned into a calendar event.
type Meeting struct {
	Days      string `json:"days"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Location  string `json:"location"`
	Dates     string `json:"dates"`
}

// SelectionRecord is a course the user added to the plan.
type SelectionRecord struct {
	ParentID ID           `json:"parentId"`
	Course   CourseInfo   `json:"course"`
	Groups   []ClassGroup `json:"groups"`
}

// FindClass returns the group index and option for a class number.
func (r SelectionRecord) FindClass(id ID) (int, ClassOption, bool) {
	for gi, g := range r.Groups {
		for _, c := range g.Classes {
			if c.ClassNumber == id {
				return gi, c, true
			}
		}
	}
	return -1, ClassOption{}, false
}

// Clone returns a deep copy so cached snapshots are never aliased.
func (r SelectionRecord) Clone() SelectionRecord {
	out := r
	if r.Groups == nil {
		return out
	}
	out.Groups = make([]ClassGroup, len(r.Groups))
	for i, g := range r.Groups {
		ng := ClassGroup{Type: g.Type, Classes: make([]ClassOption, len(g.Classes))}
		for j, c := range g.Classes {
			nc := c
			nc.Meetings = append([]Meeting(nil), c.Meetings...)
			ng.Classes[j] = nc
		}
		out.Groups[i] = ng
	}
	return out
}

// Recurrence is the weekly rule handed to the calendar widget.
type Recurrence struct {
	Freq      string `json:"freq"`
	ByWeekday string `json:"byweekday"`
	// DTStart is "YYYY-MM-DDT12:00:00"; the midday marker only anchors the
	// rule and is not the meeting time.
	DTStart string `json:"dtstart"`
	Until   string `json:"until"`
}

// CalendarEvent is one displayed event. (ID, Slot) is unique among live
// events; Slot is the meeting index inside the class option.
type CalendarEvent struct {
	ID          ID         `json:"id"`
	GroupID     ID         `json:"groupId"`
	Slot        int        `json:"slot"`
	Title       string     `json:"title"`
	RRule       Recurrence `json:"rrule"`
	StartTime   string     `json:"startTime"`
	EndTime     string     `json:"endTime"`
	Description string     `json:"description"`
}

// Occurrence is a single concrete instance of a recurring event.
type Occurrence struct {
	ID       ID     `json:"id"`
	GroupID  ID     `json:"groupId"`
	Slot     int    `json:"slot"`
	Title    string `json:"title"`
	Location string `json:"location"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
