package game

import (
	"time"

	"rallybot/internal/schedule"
)

// Scaffold is a weekly recurrence template: one day+time slot from which
// concrete games are generated. Scaffolds are never hard-deleted; inactive
// ones simply stop generating games.
type Scaffold struct {
	ID      string
	Weekday time.Weekday
	Hour    int
	Minute  int
	Courts  int
	Active  bool

	// AnnounceOverride is a raw deadline notation overriding the global
	// announce setting for games generated from this scaffold. Empty means
	// use the configured default.
	AnnounceOverride string

	OwnerID   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Event is one concrete scheduled game.
type Event struct {
	ID string

	// ScaffoldID references the originating scaffold; empty for ad-hoc games.
	ScaffoldID string

	// StartAt is stored in UTC at second granularity. The civil
	// interpretation (for deadlines and display) uses the configured
	// timezone at evaluation time.
	StartAt time.Time

	Courts int
	Status Status

	// Chat message carrying the announcement, if posted. Opaque to the
	// domain; the notifier edits it in place as the roster changes.
	ChatID    int64
	MessageID int

	AnnounceOverride string
	OwnerID          int64

	// Fired-action markers. Deadline instants themselves are never stored;
	// they are recomputed from StartAt and the current settings, so these
	// markers are what makes each trigger fire exactly once.
	AnnouncedAt    time.Time
	RemindedAt     time.Time
	RosterLockedAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Participant is one joined player, possibly bringing guests.
type Participant struct {
	EventID  string
	UserID   int64
	Username string
	Guests   int
	JoinedAt time.Time
}

// EventRecord tags an event row with its soft-deletion state. A deleted
// game keeps its prior status so undeletion restores it exactly.
type EventRecord struct {
	Event     Event
	DeletedAt time.Time // zero for live rows
}

func (r EventRecord) Deleted() bool { return !r.DeletedAt.IsZero() }

// PlayersPerCourt is the headcount one court accommodates (6v6 volleyball).
const PlayersPerCourt = 12

// Capacity is the target headcount for the game's current court count.
func (e Event) Capacity() int { return e.Courts * PlayersPerCourt }

// Headcount sums players and their guests.
func Headcount(parts []Participant) int {
	n := 0
	for _, p := range parts {
		n += 1 + p.Guests
	}
	return n
}

// announceNotation resolves the event's effective announce override.
// Invalid stored overrides are treated as absent; the settings default wins.
func (e Event) announceNotation() schedule.Notation {
	if e.AnnounceOverride == "" {
		return schedule.Notation{}
	}
	n, err := schedule.ParseNotation(e.AnnounceOverride)
	if err != nil {
		return schedule.Notation{}
	}
	return n
}
