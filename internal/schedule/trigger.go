package schedule

import (
	"fmt"
	"time"
)

// DeadlineKind names the three per-game deadlines the bot acts on.
type DeadlineKind int

const (
	// DeadlineAnnounce is when a created game is posted to the chat.
	DeadlineAnnounce DeadlineKind = iota
	// DeadlineCancel is the last moment players may leave; reaching it
	// locks the roster.
	DeadlineCancel
	// DeadlineReminder is when joined players get pinged before start.
	DeadlineReminder
)

func (k DeadlineKind) String() string {
	switch k {
	case DeadlineAnnounce:
		return "announce"
	case DeadlineCancel:
		return "cancel-deadline"
	case DeadlineReminder:
		return "reminder"
	default:
		return fmt.Sprintf("deadline(%d)", int(k))
	}
}

// Deadlines bundles the current deadline settings: one notation per kind,
// evaluated in a single timezone. It is rebuilt from the settings provider
// on every scheduler tick, so editing a notation retroactively changes which
// already-created games are due (deadline instants are never stored).
type Deadlines struct {
	Location *time.Location

	Announce Notation
	Cancel   Notation
	Reminder Notation
}

// ParseDeadlines builds a Deadlines from raw settings values.
// tz must be an IANA timezone name; the notations use the "-<n>d/h [HH:MM]"
// grammar of ParseNotation.
func ParseDeadlines(tz, announce, cancel, reminder string) (Deadlines, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Deadlines{}, fmt.Errorf("timezone %q: %w", tz, err)
	}
	var d Deadlines
	d.Location = loc
	if d.Announce, err = ParseNotation(announce); err != nil {
		return Deadlines{}, fmt.Errorf("announce notation: %w", err)
	}
	if d.Cancel, err = ParseNotation(cancel); err != nil {
		return Deadlines{}, fmt.Errorf("cancel-deadline notation: %w", err)
	}
	if d.Reminder, err = ParseNotation(reminder); err != nil {
		return Deadlines{}, fmt.Errorf("reminder notation: %w", err)
	}
	return d, nil
}

func (d Deadlines) notation(kind DeadlineKind) Notation {
	switch kind {
	case DeadlineAnnounce:
		return d.Announce
	case DeadlineCancel:
		return d.Cancel
	default:
		return d.Reminder
	}
}

// At resolves the concrete instant of a deadline for a game starting at startAt.
func (d Deadlines) At(kind DeadlineKind, startAt time.Time) time.Time {
	return d.notation(kind).Resolve(startAt, d.Location)
}

// Due reports whether the deadline has been reached at now for a game
// starting at startAt. Stateless; see Notation.Due.
func (d Deadlines) Due(kind DeadlineKind, startAt, now time.Time) bool {
	return d.notation(kind).Due(startAt, d.Location, now)
}

// DueWith is Due with a per-scaffold or per-game override notation taking
// precedence over the configured one. A zero override falls back.
func (d Deadlines) DueWith(override Notation, kind DeadlineKind, startAt, now time.Time) bool {
	if override.IsZero() {
		return d.Due(kind, startAt, now)
	}
	return override.Due(startAt, d.Location, now)
}
