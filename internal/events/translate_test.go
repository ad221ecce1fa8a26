package events

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courseplan/internal/model"
)

var (
	mathCourse = model.CourseInfo{Subject: "MATH", CatalogNumber: "1012", CourseID: "106436", Term: "4410"}
	tutorial   = model.ClassOption{
		ClassNumber: "999",
		Section:     "T1",
		Component:   "Tutorial",
		Meetings: []model.Meeting{{
			Days: "Monday", StartTime: "9am", EndTime: "10am", Location: "Rm1", Dates: "04 Mar - 31 May",
		}},
	}
)

func TestTranslateScenario(t *testing.T) {
	evs, err := Translator{Year: 2024}.Translate("12345", mathCourse, tutorial)
	require.NoError(t, err)
	require.Len(t, evs, 1)

	assert.Equal(t, model.CalendarEvent{
		ID:      "999",
		GroupID: "12345",
		Slot:    0,
		Title:   "MATH 1012 T1 Tutorial",
		RRule: model.Recurrence{
			Freq:      "weekly",
			ByWeekday: "mo",
			DTStart:   "2024-03-04T12:00:00",
			Until:     "2024-05-31",
		},
		StartTime:   "09:00:00",
		EndTime:     "10:00:00",
		Description: "Rm1",
	}, evs[0])
}

func TestTranslateOneEventPerMeeting(t *testing.T) {
	opt := model.ClassOption{
		ClassNumber: "500",
		Section:     "LE01",
		Component:   "Lecture",
		Meetings: []model.Meeting{
			{Days: "Tuesday", StartTime: "12:30pm", EndTime: "1:30pm", Dates: "23 Jul - 18 Aug"},
			{Days: "thursday", StartTime: "2 PM", EndTime: "4 PM", Dates: "5 Sep - 25 Oct"},
		},
	}
	evs, err := Translator{Year: 2025}.Translate("1", mathCourse, opt)
	require.NoError(t, err)
	require.Len(t, evs, 2)

	assert.Equal(t, 0, evs[0].Slot)
	assert.Equal(t, "tu", evs[0].RRule.ByWeekday)
	assert.Equal(t, "12:30:00", evs[0].StartTime)
	assert.Equal(t, "13:30:00", evs[0].EndTime)
	assert.Equal(t, "2025-07-23T12:00:00", evs[0].RRule.DTStart)

	assert.Equal(t, 1, evs[1].Slot)
	assert.Equal(t, "th", evs[1].RRule.ByWeekday)
	assert.Equal(t, "14:00:00", evs[1].StartTime)
	assert.Equal(t, "2025-10-25", evs[1].RRule.Until)
}

func TestTranslateErrors(t *testing.T) {
	tests := []struct {
		name    string
		meeting model.Meeting
		want    error
	}{
		{"saturday", model.Meeting{Days: "Saturday", StartTime: "9am", EndTime: "10am", Dates: "04 Mar - 31 May"}, ErrUnsupportedWeekday},
		{"empty day", model.Meeting{Days: "", StartTime: "9am", EndTime: "10am", Dates: "04 Mar - 31 May"}, ErrUnsupportedWeekday},
		{"bad start", model.Meeting{Days: "Monday", StartTime: "noon-ish", EndTime: "10am", Dates: "04 Mar - 31 May"}, ErrBadTime},
		{"bad end", model.Meeting{Days: "Monday", StartTime: "9am", EndTime: "", Dates: "04 Mar - 31 May"}, ErrBadTime},
		{"no separator", model.Meeting{Days: "Monday", StartTime: "9am", EndTime: "10am", Dates: "04 Mar"}, ErrBadDateRange},
		{"bad month", model.Meeting{Days: "Monday", StartTime: "9am", EndTime: "10am", Dates: "04 Foo - 31 May"}, ErrBadDateRange},
		{"reversed", model.Meeting{Days: "Monday", StartTime: "9am", EndTime: "10am", Dates: "31 May - 04 Mar"}, ErrBadDateRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := model.ClassOption{ClassNumber: "1", Meetings: []model.Meeting{tutorial.Meetings[0], tt.meeting}}
			evs, err := Translator{Year: 2024}.Translate("p", mathCourse, opt)
			assert.Nil(t, evs)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestWeekdayErrorCarriesDay(t *testing.T) {
	opt := model.ClassOption{ClassNumber: "77", Meetings: []model.Meeting{{Days: "Sunday"}}}
	_, err := Translator{Year: 2024}.Translate("p", mathCourse, opt)

	var we *WeekdayError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, "Sunday", we.Day)
	assert.Equal(t, model.ID("77"), we.ClassNumber)
}

func TestTitleSkipsEmptyParts(t *testing.T) {
	assert.Equal(t, "MATH T1", Title(model.CourseInfo{Subject: "MATH"}, model.ClassOption{Section: " T1 "}))
}

func TestRule(t *testing.T) {
	loc := time.FixedZone("ACST", 9*3600+1800)

	evs, err := Translator{Year: 2024}.Translate("12345", mathCourse, tutorial)
	require.NoError(t, err)

	r, err := Rule(evs[0], loc)
	require.NoError(t, err)

	all := r.All()
	require.NotEmpty(t, all)
	assert.True(t, time.Date(2024, 3, 4, 9, 0, 0, 0, loc).Equal(all[0]), all[0])
	// 4 March to 27 May 2024 inclusive is thirteen Mondays.
	assert.Len(t, all, 13)
	assert.True(t, time.Date(2024, 5, 27, 9, 0, 0, 0, loc).Equal(all[len(all)-1]), all[len(all)-1])
	for _, o := range all {
		assert.Equal(t, time.Monday, o.Weekday())
	}

	d, err := Duration(evs[0])
	require.NoError(t, err)
	assert.Equal(t, time.Hour, d)
}

func TestRuleRejectsBadEvent(t *testing.T) {
	_, err := Rule(model.CalendarEvent{RRule: model.Recurrence{ByWeekday: "sa"}}, time.UTC)
	assert.ErrorIs(t, err, ErrUnsupportedWeekday)

	_, err = Rule(model.CalendarEvent{RRule: model.Recurrence{ByWeekday: "mo", DTStart: "x"}}, time.UTC)
	assert.ErrorIs(t, err, ErrBadDateRange)
}
