// Package events turns checked class options into calendar events and
// maintains the list of events currently on display.
package events

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"courseplan/internal/model"
)

var (
	// ErrUnsupportedWeekday matches every *WeekdayError.
	ErrUnsupportedWeekday = errors.New("unsupported weekday")
	ErrBadTime            = errors.New("malformed meeting time")
	ErrBadDateRange       = errors.New("malformed meeting date range")
)

// WeekdayError reports a meeting day outside Monday to Friday.
type WeekdayError struct {
	ClassNumber model.ID
	Day         string
}

func (e *WeekdayError) Error() string {
	return fmt.Sprintf("class %s: unsupported weekday %q", e.ClassNumber, e.Day)
}

func (e *WeekdayError) Is(target error) bool { return target == ErrUnsupportedWeekday }

const (
	freqWeekly   = "weekly"
	anchorMidday = "T12:00:00"
	dateLayout   = "2006-01-02"
	clockLayout  = "15:04:05"
)

var weekdays = map[string]string{
	"monday":    "mo",
	"tuesday":   "tu",
	"wednesday": "we",
	"thursday":  "th",
	"friday":    "fr",
}

var ruleWeekdays = map[string]rrule.Weekday{
	"mo": rrule.MO,
	"tu": rrule.TU,
	"we": rrule.WE,
	"th": rrule.TH,
	"fr": rrule.FR,
}

// Translator converts class options into calendar events. Year anchors the
// "DD Mon" meeting dates, which carry no year of their own.
type Translator struct {
	Year int
}

// Translate returns one event per meeting of option. Any malformed meeting
// fails the whole option so a check is never half applied.
func (t Translator) Translate(parentID model.ID, course model.CourseInfo, option model.ClassOption) ([]model.CalendarEvent, error) {
	title := Title(course, option)
	out := make([]model.CalendarEvent, 0, len(option.Meetings))

	for i, m := range option.Meetings {
		day, ok := weekdays[strings.ToLower(strings.TrimSpace(m.Days))]
		if !ok {
			return nil, &WeekdayError{ClassNumber: option.ClassNumber, Day: m.Days}
		}
		from, until, err := t.dateRange(m.Dates)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", option.ClassNumber, err)
		}
		start, err := clock(m.StartTime)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", option.ClassNumber, err)
		}
		end, err := clock(m.EndTime)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", option.ClassNumber, err)
		}

		out = append(out, model.CalendarEvent{
			ID:      option.ClassNumber,
			GroupID: parentID,
			Slot:    i,
			Title:   title,
			RRule: model.Recurrence{
				Freq:      freqWeekly,
				ByWeekday: day,
				DTStart:   from.Format(dateLayout) + anchorMidday,
				Until:     until.Format(dateLayout),
			},
			StartTime:   start.Format(clockLayout),
			EndTime:     end.Format(clockLayout),
			Description: m.Location,
		})
	}
	return out, nil
}

// Title is subject, catalog number, section and component, skipping any
// part the catalog left empty.
func Title(course model.CourseInfo, option model.ClassOption) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{course.Subject, course.CatalogNumber, option.Section, option.Component} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

func (t Translator) dateRange(s string) (time.Time, time.Time, error) {
	a, b, ok := strings.Cut(s, "-")
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrBadDateRange, s)
	}
	from, err := t.dayMonth(a)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrBadDateRange, s)
	}
	until, err := t.dayMonth(b)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrBadDateRange, s)
	}
	if until.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q ends before it starts", ErrBadDateRange, s)
	}
	return from, until, nil
}

func (t Translator) dayMonth(s string) (time.Time, error) {
	s = strings.Join(strings.Fields(s), " ") + fmt.Sprintf(" %d", t.Year)
	var err error
	for _, layout := range []string{"2 Jan 2006", "2 January 2006"} {
		var d time.Time
		if d, err = time.Parse(layout, s); err == nil {
			return d, nil
		}
	}
	return time.Time{}, err
}

// clock parses "9am", "12:30pm" or "9:00 AM"; 24-hour "14:00" is also
// accepted.
func clock(s string) (time.Time, error) {
	v := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	for _, layout := range []string{"3pm", "3:04pm", "15:04", "15:04:05"} {
		if c, err := time.Parse(layout, v); err == nil {
			return c, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTime, s)
}

// Rule builds the weekly rule of ev in loc. DTSTART carries the meeting's
// start time and UNTIL covers the whole final day.
func Rule(ev model.CalendarEvent, loc *time.Location) (*rrule.RRule, error) {
	if loc == nil {
		loc = time.Local
	}
	wd, ok := ruleWeekdays[ev.RRule.ByWeekday]
	if !ok {
		return nil, &WeekdayError{ClassNumber: ev.ID, Day: ev.RRule.ByWeekday}
	}
	from, err := time.ParseInLocation(dateLayout, strings.TrimSuffix(ev.RRule.DTStart, anchorMidday), loc)
	if err != nil {
		return nil, fmt.Errorf("%w: dtstart %q", ErrBadDateRange, ev.RRule.DTStart)
	}
	until, err := time.ParseInLocation(dateLayout, ev.RRule.Until, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: until %q", ErrBadDateRange, ev.RRule.Until)
	}
	start, err := time.Parse(clockLayout, ev.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadTime, ev.StartTime)
	}

	dtstart := time.Date(from.Year(), from.Month(), from.Day(), start.Hour(), start.Minute(), start.Second(), 0, loc)
	return rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: []rrule.Weekday{wd},
		Dtstart:   dtstart,
		Until:     until.Add(24*time.Hour - time.Second),
	})
}

// Duration is EndTime minus StartTime.
func Duration(ev model.CalendarEvent) (time.Duration, error) {
	start, err := time.Parse(clockLayout, ev.StartTime)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadTime, ev.StartTime)
	}
	end, err := time.Parse(clockLayout, ev.EndTime)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadTime, ev.EndTime)
	}
	if end.Before(start) {
		return 0, fmt.Errorf("%w: %s ends before %s", ErrBadTime, ev.EndTime, ev.StartTime)
	}
	return end.Sub(start), nil
}
