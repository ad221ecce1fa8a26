// Package ics converts displayed events to iCalendar and expands their
// weekly rules into concrete occurrences.
package ics

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"courseplan/internal/events"
	appLog "courseplan/internal/log"
	"courseplan/internal/model"
)

const (
	productID = "-//courseplan//course planner//EN"
	uidDomain = "courseplan"

	localLayout = "20060102T150405"
	utcLayout   = "20060102T150405Z"
)

// ExportOptions controls calendar export.
type ExportOptions struct {
	// Location is the timezone meeting times are interpreted in. If nil,
	// time.Local is used.
	Location *time.Location
	// Name is written as X-WR-CALNAME when set.
	Name string
	// Now stamps DTSTAMP; zero means time.Now.
	Now time.Time
}

// UID returns the iCalendar UID of an event: "<class>-<slot>@courseplan".
func UID(ev model.CalendarEvent) string {
	return fmt.Sprintf("%s-%d@%s", ev.ID, ev.Slot, uidDomain)
}

// Export renders evs as a VCALENDAR with one weekly VEVENT per event.
// DTSTART is the first real occurrence, not the rule's anchor date.
func Export(evs []model.CalendarEvent, opts ExportOptions) ([]byte, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	if loc != time.UTC {
		cal.SetXWRTimezone(loc.String())
	}

	written := 0
	for _, ev := range evs {
		r, err := events.Rule(ev, loc)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", UID(ev), err)
		}
		dur, err := events.Duration(ev)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", UID(ev), err)
		}
		first := r.After(time.Time{}, true)
		if first.IsZero() {
			appLog.Warn("ics export: event has no occurrence", "uid", UID(ev), "dtstart", ev.RRule.DTStart, "until", ev.RRule.Until)
			continue
		}

		vev := cal.AddEvent(UID(ev))
		vev.SetDtStampTime(now)
		setTime(vev, ical.ComponentPropertyDtStart, first)
		setTime(vev, ical.ComponentPropertyDtEnd, first.Add(dur))
		vev.SetSummary(ev.Title)
		if ev.Description != "" {
			vev.SetLocation(ev.Description)
		}
		vev.SetProperty(ical.ComponentPropertyCategories, string(ev.GroupID))
		vev.AddRrule(r.OrigOptions.RRuleString())
		written++
	}

	appLog.Debug("ics export completed", "events", len(evs), "written", written)
	return []byte(cal.Serialize()), nil
}

// setTime writes a floating time with TZID, or a UTC time for UTC.
func setTime(vev *ical.VEvent, prop ical.ComponentProperty, t time.Time) {
	if t.Location() == time.UTC {
		vev.SetProperty(prop, t.Format(utcLayout))
		return
	}
	vev.SetProperty(prop, t.Format(localLayout), &ical.KeyValues{
		Key:   string(ical.ParameterTzid),
		Value: []string{t.Location().String()},
	})
}

// parseUID splits "<class>-<slot>@courseplan".
func parseUID(uid string) (model.ID, int, error) {
	local, domain, ok := strings.Cut(uid, "@")
	if !ok || domain != uidDomain {
		return "", 0, errors.New("foreign UID")
	}
	i := strings.LastIndex(local, "-")
	if i <= 0 {
		return "", 0, errors.New("UID has no slot")
	}
	slot, err := strconv.Atoi(local[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("UID slot: %w", err)
	}
	return model.ID(local[:i]), slot, nil
}
