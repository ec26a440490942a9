package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// ErrInvalidDayOfWeek is returned when a day-of-week name is not recognized.
var ErrInvalidDayOfWeek = errors.New("invalid day of week")

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekday parses a day-of-week name, abbreviated or full, case-insensitive.
func ParseWeekday(s string) (time.Weekday, error) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDayOfWeek, s)
	}
	return wd, nil
}

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// NextOccurrence computes the soonest instant at or after now that matches
// the weekly slot (weekday + wall-clock time) in loc.
//
// The search is inclusive: if now falls exactly on the slot instant, that
// instant is returned rather than the one a week later. hour/minute are
// validated against 0-23/0-59 and fail with ErrInvalidTimeOfDay.
func NextOccurrence(weekday time.Weekday, hour, minute int, now time.Time, loc *time.Location) (time.Time, error) {
	if hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("%w: hour %d is not in 0-23", ErrInvalidTimeOfDay, hour)
	}
	if minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("%w: minute %d is not in 0-59", ErrInvalidTimeOfDay, minute)
	}
	if loc == nil {
		loc = time.UTC
	}

	local := now.In(loc).Truncate(time.Second)

	// Dtstart anchors the rule strictly before any candidate we care about;
	// the slot's wall-clock time comes from Byhour/Byminute, not Dtstart.
	dtstart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -7)

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   dtstart,
		Byweekday: []rrule.Weekday{rruleWeekdays[weekday]},
		Byhour:    []int{hour},
		Byminute:  []int{minute},
		Bysecond:  []int{0},
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("recurrence rule: %w", err)
	}

	next := r.After(local, true)
	if next.IsZero() {
		// Unbounded weekly rules always have a next occurrence.
		return time.Time{}, fmt.Errorf("recurrence rule produced no occurrence after %s", local)
	}
	return next.In(loc), nil
}
