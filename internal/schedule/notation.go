package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var (
	// ErrInvalidNotation is returned for syntactically malformed deadline
	// notations, including non-negative offsets.
	ErrInvalidNotation = errors.New("invalid deadline notation")

	// ErrInvalidTimeOfDay is returned when the notation parses but its
	// absolute time-of-day part is out of range (HH not 00-23 or MM not 00-59).
	// Kept distinct from ErrInvalidNotation so user-facing messages can say
	// which part is wrong.
	ErrInvalidTimeOfDay = errors.New("invalid time of day in deadline notation")
)

// Notation is a parsed deadline expression, immutable once parsed.
//
// Grammar: "-<n>d" or "-<n>h", optionally followed by "HH:MM".
// The offset always reads as "before the reference instant": exactly one of
// Days/Hours is non-zero and already negated, so resolution is a plain add.
// The optional HH:MM does not add a further offset; it overwrites the clock
// on the shifted civil day.
type Notation struct {
	Days  int // negative day offset; 0 when hour-based
	Hours int // negative hour offset; 0 when day-based

	HasClock bool
	Hour     int
	Minute   int
}

// Day offsets up to three digits, clock hour one or two digits; range checks
// are done separately so an out-of-range clock yields ErrInvalidTimeOfDay
// rather than a generic syntax failure.
var reNotation = regexp.MustCompile(`^\s*-(\d{1,3})([dh])(?:\s+(\d{1,2}):(\d{2}))?\s*$`)

// ParseNotation parses a deadline expression like "-1d 12:00" or "-24h".
func ParseNotation(s string) (Notation, error) {
	m := reNotation.FindStringSubmatch(s)
	if m == nil {
		return Notation{}, fmt.Errorf("%w: %q (use forms like \"-1d\", \"-24h\", \"-1d 12:00\")", ErrInvalidNotation, s)
	}

	mag, err := strconv.Atoi(m[1])
	if err != nil || mag == 0 {
		return Notation{}, fmt.Errorf("%w: %q: offset must be a negative whole number", ErrInvalidNotation, s)
	}

	var n Notation
	switch m[2] {
	case "d":
		n.Days = -mag
	case "h":
		n.Hours = -mag
	}

	if m[3] != "" {
		hh, _ := strconv.Atoi(m[3])
		mm, _ := strconv.Atoi(m[4])
		if hh > 23 {
			return Notation{}, fmt.Errorf("%w: hour %02d is not in 00-23", ErrInvalidTimeOfDay, hh)
		}
		if mm > 59 {
			return Notation{}, fmt.Errorf("%w: minute %02d is not in 00-59", ErrInvalidTimeOfDay, mm)
		}
		n.HasClock = true
		n.Hour = hh
		n.Minute = mm
	}

	return n, nil
}

// MustNotation parses s and panics on error. For defaults known at compile time.
func MustNotation(s string) Notation {
	n, err := ParseNotation(s)
	if err != nil {
		panic(err)
	}
	return n
}

func (n Notation) String() string {
	var out string
	if n.Days != 0 {
		out = fmt.Sprintf("%dd", n.Days)
	} else {
		out = fmt.Sprintf("%dh", n.Hours)
	}
	if n.HasClock {
		out += fmt.Sprintf(" %02d:%02d", n.Hour, n.Minute)
	}
	return out
}

// IsZero reports whether n is the zero value (no offset parsed).
func (n Notation) IsZero() bool { return n.Days == 0 && n.Hours == 0 && !n.HasClock }

// Resolve computes the concrete deadline instant for a reference instant
// (typically a game's start time) in the given timezone.
//
// Day offsets shift the civil date ("one civil day earlier"), so the wall
// clock is preserved across DST changes; hour offsets are pure duration
// arithmetic. When a clock is present, the hour/minute on the shifted civil
// day are overwritten and seconds zeroed.
func (n Notation) Resolve(ref time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	civil := ref.In(loc)
	if n.Days != 0 {
		civil = civil.AddDate(0, 0, n.Days)
	} else {
		civil = civil.Add(time.Duration(n.Hours) * time.Hour)
	}
	if n.HasClock {
		civil = time.Date(civil.Year(), civil.Month(), civil.Day(), n.Hour, n.Minute, 0, 0, loc)
	}
	return civil
}

// Due reports whether the deadline derived from ref has been reached at now.
//
// A reference instant already in the past can never newly become due, so Due
// returns false once ref is strictly before now. Otherwise it is a plain
// threshold check: due once now reaches the resolved instant. Due is a
// stateless predicate re-evaluated on every poll; recording that an action
// fired is the caller's job.
func (n Notation) Due(ref time.Time, loc *time.Location, now time.Time) bool {
	if ref.Before(now) {
		return false
	}
	return !now.Before(n.Resolve(ref, loc))
}
