package game

import (
	"context"
	"errors"
	"time"

	"rallybot/internal/schedule"
)

var (
	// ErrNotFound is returned by Store lookups for unknown ids.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateOccurrence is returned by CreateEvent when the
	// UNIQUE(scaffold_id, start_at) constraint fires. Callers on the
	// generation path treat it as "already exists", not as a failure.
	ErrDuplicateOccurrence = errors.New("occurrence already exists")
)

// Store is the persistence collaborator. The domain treats rows as values:
// it reloads inside the exclusion lock, mutates, persists, and never caches
// a copy across operations.
type Store interface {
	CreateScaffold(ctx context.Context, sc Scaffold) error
	FindScaffoldByID(ctx context.Context, id string) (Scaffold, error)
	ListScaffolds(ctx context.Context, activeOnly bool) ([]Scaffold, error)
	UpdateScaffold(ctx context.Context, sc Scaffold) error

	CreateEvent(ctx context.Context, ev Event) error
	FindEventByID(ctx context.Context, id string) (EventRecord, error)
	// ListEvents returns events starting at or after from, including
	// soft-deleted rows (tagged on the record).
	ListEvents(ctx context.Context, from time.Time) ([]EventRecord, error)
	UpdateEvent(ctx context.Context, rec EventRecord) error

	AddParticipant(ctx context.Context, p Participant) error
	RemoveParticipant(ctx context.Context, eventID string, userID int64) error
	SetGuests(ctx context.Context, eventID string, userID int64, guests int) error
	ListParticipants(ctx context.Context, eventID string) ([]Participant, error)

	Close() error
}

// MessageRef identifies the chat message carrying a game announcement.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Notifier is the messaging collaborator: it renders and delivers chat
// output for decisions made here, and performs no scheduling logic itself.
type Notifier interface {
	AnnounceGame(ctx context.Context, ev Event, parts []Participant) (MessageRef, error)
	RemindGame(ctx context.Context, ev Event, parts []Participant) error
	NotifyRosterLocked(ctx context.Context, ev Event, parts []Participant) error
	NotifyCancelled(ctx context.Context, ev Event) error
	// RefreshGameMessage re-renders the announcement in place after a
	// roster or court change. Best-effort.
	RefreshGameMessage(ctx context.Context, ev Event, parts []Participant) error
}

// Settings is the mutable runtime configuration snapshot used on each tick.
type Settings struct {
	Deadlines     schedule.Deadlines
	ChatID        int64
	DefaultCourts int
}

// SettingsFunc returns the current settings. Implemented by the config
// layer; hot reloads are picked up on the next call.
type SettingsFunc func() Settings
