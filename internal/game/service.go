package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rallybot/internal/schedule"
	"rallybot/pkg/keyedmutex"
	logx "rallybot/pkg/logx"
)

var (
	// ErrGameUnavailable is returned for operations on deleted or cancelled games.
	ErrGameUnavailable = errors.New("game is unavailable")
	// ErrRosterLocked is returned for join/leave attempts on a finalized game.
	ErrRosterLocked = errors.New("roster is locked")
)

// Service owns all game and scaffold operations. Every operation that
// mutates a single game acquires that game's exclusion lock, reloads the
// row, applies the change, and persists it. Concurrent operations on the
// same game serialize in FIFO order, and a failed operation never leaves
// half-applied in-memory state behind.
type Service struct {
	store    Store
	notifier Notifier
	settings SettingsFunc
	locks    *keyedmutex.Mutex
	log      logx.Logger

	// now is a clock hook for tests.
	now func() time.Time
}

func NewService(store Store, notifier Notifier, settings SettingsFunc, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:    store,
		notifier: notifier,
		settings: settings,
		locks:    keyedmutex.New(),
		log:      log,
		now:      time.Now,
	}
}

// ---- Scaffolds ----

func (s *Service) CreateScaffold(ctx context.Context, weekday time.Weekday, hour, minute, courts int, owner int64) (Scaffold, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Scaffold{}, fmt.Errorf("%w: %02d:%02d", schedule.ErrInvalidTimeOfDay, hour, minute)
	}
	if courts <= 0 {
		courts = s.settings().DefaultCourts
	}
	now := s.now()
	sc := Scaffold{
		ID:        uuid.NewString(),
		Weekday:   weekday,
		Hour:      hour,
		Minute:    minute,
		Courts:    courts,
		Active:    true,
		OwnerID:   owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateScaffold(ctx, sc); err != nil {
		return Scaffold{}, err
	}
	s.log.Info("scaffold created",
		logx.String("scaffold_id", sc.ID),
		logx.String("slot", fmt.Sprintf("%s %02d:%02d", sc.Weekday, sc.Hour, sc.Minute)),
		logx.Int("courts", sc.Courts))
	return sc, nil
}

func (s *Service) Scaffolds(ctx context.Context) ([]Scaffold, error) {
	return s.store.ListScaffolds(ctx, false)
}

func (s *Service) mutateScaffold(ctx context.Context, id string, fn func(sc *Scaffold) error) (Scaffold, error) {
	sc, err := s.store.FindScaffoldByID(ctx, id)
	if err != nil {
		return Scaffold{}, err
	}
	if err := fn(&sc); err != nil {
		return Scaffold{}, err
	}
	sc.UpdatedAt = s.now()
	if err := s.store.UpdateScaffold(ctx, sc); err != nil {
		return Scaffold{}, err
	}
	return sc, nil
}

func (s *Service) ToggleScaffold(ctx context.Context, id string) (Scaffold, error) {
	return s.mutateScaffold(ctx, id, func(sc *Scaffold) error {
		sc.Active = !sc.Active
		return nil
	})
}

func (s *Service) SetScaffoldSlot(ctx context.Context, id string, weekday time.Weekday, hour, minute int) (Scaffold, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Scaffold{}, fmt.Errorf("%w: %02d:%02d", schedule.ErrInvalidTimeOfDay, hour, minute)
	}
	return s.mutateScaffold(ctx, id, func(sc *Scaffold) error {
		sc.Weekday, sc.Hour, sc.Minute = weekday, hour, minute
		return nil
	})
}

func (s *Service) SetScaffoldCourts(ctx context.Context, id string, courts int) (Scaffold, error) {
	if courts < 1 {
		return Scaffold{}, errors.New("courts must be >= 1")
	}
	return s.mutateScaffold(ctx, id, func(sc *Scaffold) error {
		sc.Courts = courts
		return nil
	})
}

// SetScaffoldAnnounceOverride sets a per-scaffold announce notation.
// Empty clears the override (games fall back to the global setting).
func (s *Service) SetScaffoldAnnounceOverride(ctx context.Context, id, notation string) (Scaffold, error) {
	if notation != "" {
		if _, err := schedule.ParseNotation(notation); err != nil {
			return Scaffold{}, err
		}
	}
	return s.mutateScaffold(ctx, id, func(sc *Scaffold) error {
		sc.AnnounceOverride = notation
		return nil
	})
}

// ---- Games ----

// CreateAdHocGame schedules a one-off game at the next occurrence of the
// given weekly slot, unattached to any scaffold.
func (s *Service) CreateAdHocGame(ctx context.Context, weekday time.Weekday, hour, minute, courts int, owner int64) (Event, error) {
	set := s.settings()
	now := s.now()
	start, err := schedule.NextOccurrence(weekday, hour, minute, now, set.Deadlines.Location)
	if err != nil {
		return Event{}, err
	}
	if courts <= 0 {
		courts = set.DefaultCourts
	}
	ev := Event{
		ID:        uuid.NewString(),
		StartAt:   start.UTC().Truncate(time.Second),
		Courts:    courts,
		Status:    StatusCreated,
		ChatID:    set.ChatID,
		OwnerID:   owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateEvent(ctx, ev); err != nil {
		return Event{}, err
	}
	s.log.Info("ad-hoc game created", logx.String("event_id", ev.ID), logx.Time("start_at", ev.StartAt))
	return ev, nil
}

// UpcomingGames returns live upcoming games, soonest first.
func (s *Service) UpcomingGames(ctx context.Context) ([]EventRecord, error) {
	recs, err := s.store.ListEvents(ctx, s.now())
	if err != nil {
		return nil, err
	}
	out := recs[:0]
	for _, r := range recs {
		if !r.Deleted() {
			out = append(out, r)
		}
	}
	return out, nil
}

// AllUpcoming returns upcoming games including soft-deleted ones, tagged.
func (s *Service) AllUpcoming(ctx context.Context) ([]EventRecord, error) {
	return s.store.ListEvents(ctx, s.now())
}

// GameWithRoster loads a game (deleted or not) together with its roster.
func (s *Service) GameWithRoster(ctx context.Context, id string) (EventRecord, []Participant, error) {
	rec, err := s.store.FindEventByID(ctx, id)
	if err != nil {
		return EventRecord{}, nil, err
	}
	parts, err := s.store.ListParticipants(ctx, id)
	if err != nil {
		return EventRecord{}, nil, err
	}
	return rec, parts, nil
}

// mutate runs fn on a freshly loaded record under the game's exclusion
// lock and persists the result. On any error nothing is persisted and the
// in-memory copy is discarded; only the stored row is authoritative.
func (s *Service) mutate(ctx context.Context, eventID string, fn func(rec *EventRecord) error) (EventRecord, error) {
	var out EventRecord
	err := s.locks.WithLock(eventID, func() error {
		rec, err := s.store.FindEventByID(ctx, eventID)
		if err != nil {
			return err
		}
		if err := fn(&rec); err != nil {
			return err
		}
		rec.Event.UpdatedAt = s.now()
		if err := s.store.UpdateEvent(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

func joinable(rec EventRecord) error {
	if rec.Deleted() || rec.Event.Status == StatusCancelled {
		return ErrGameUnavailable
	}
	if rec.Event.Status == StatusFinalized {
		return ErrRosterLocked
	}
	return nil
}

func (s *Service) Join(ctx context.Context, eventID string, userID int64, username string) error {
	return s.locks.WithLock(eventID, func() error {
		rec, err := s.store.FindEventByID(ctx, eventID)
		if err != nil {
			return err
		}
		if err := joinable(rec); err != nil {
			return err
		}
		parts, err := s.store.ListParticipants(ctx, eventID)
		if err != nil {
			return err
		}
		for _, p := range parts {
			if p.UserID == userID {
				return nil // already in; idempotent
			}
		}
		p := Participant{EventID: eventID, UserID: userID, Username: username, JoinedAt: s.now()}
		if err := s.store.AddParticipant(ctx, p); err != nil {
			return err
		}
		s.refreshMessage(ctx, rec.Event, append(parts, p))
		return nil
	})
}

func (s *Service) Leave(ctx context.Context, eventID string, userID int64) error {
	return s.locks.WithLock(eventID, func() error {
		rec, err := s.store.FindEventByID(ctx, eventID)
		if err != nil {
			return err
		}
		if err := joinable(rec); err != nil {
			return err
		}
		if err := s.store.RemoveParticipant(ctx, eventID, userID); err != nil {
			return err
		}
		parts, err := s.store.ListParticipants(ctx, eventID)
		if err != nil {
			return err
		}
		s.refreshMessage(ctx, rec.Event, parts)
		return nil
	})
}

// SetGuests adjusts the number of guests a joined player brings.
func (s *Service) SetGuests(ctx context.Context, eventID string, userID int64, guests int) error {
	if guests < 0 {
		guests = 0
	}
	return s.locks.WithLock(eventID, func() error {
		rec, err := s.store.FindEventByID(ctx, eventID)
		if err != nil {
			return err
		}
		if err := joinable(rec); err != nil {
			return err
		}
		if err := s.store.SetGuests(ctx, eventID, userID, guests); err != nil {
			return err
		}
		parts, err := s.store.ListParticipants(ctx, eventID)
		if err != nil {
			return err
		}
		s.refreshMessage(ctx, rec.Event, parts)
		return nil
	})
}

func (s *Service) SetCourts(ctx context.Context, eventID string, courts int) (EventRecord, error) {
	if courts < 1 {
		return EventRecord{}, errors.New("courts must be >= 1")
	}
	rec, err := s.mutate(ctx, eventID, func(rec *EventRecord) error {
		if rec.Deleted() || rec.Event.Status == StatusCancelled {
			return ErrGameUnavailable
		}
		rec.Event.Courts = courts
		return nil
	})
	if err != nil {
		return EventRecord{}, err
	}
	s.refreshRoster(ctx, rec)
	return rec, nil
}

// AdjustCourts changes the court count by delta (at least 1 court remains).
func (s *Service) AdjustCourts(ctx context.Context, eventID string, delta int) (EventRecord, error) {
	rec, err := s.mutate(ctx, eventID, func(rec *EventRecord) error {
		if rec.Deleted() || rec.Event.Status == StatusCancelled {
			return ErrGameUnavailable
		}
		n := rec.Event.Courts + delta
		if n < 1 {
			n = 1
		}
		rec.Event.Courts = n
		return nil
	})
	if err != nil {
		return EventRecord{}, err
	}
	s.refreshRoster(ctx, rec)
	return rec, nil
}

func (s *Service) Cancel(ctx context.Context, eventID string) (EventRecord, error) {
	rec, err := s.mutate(ctx, eventID, func(rec *EventRecord) error {
		if rec.Deleted() {
			return ErrGameUnavailable
		}
		next, err := NextStatus(rec.Event.Status, ActionCancel)
		if err != nil {
			return err
		}
		rec.Event.Status = next
		return nil
	})
	if err != nil {
		return EventRecord{}, err
	}
	if err := s.notifier.NotifyCancelled(ctx, rec.Event); err != nil {
		s.log.Warn("cancel notification failed", logx.String("event_id", eventID), logx.Err(err))
	}
	return rec, nil
}

func (s *Service) Finalize(ctx context.Context, eventID string) (EventRecord, error) {
	return s.mutate(ctx, eventID, func(rec *EventRecord) error {
		if rec.Deleted() {
			return ErrGameUnavailable
		}
		next, err := NextStatus(rec.Event.Status, ActionFinalize)
		if err != nil {
			return err
		}
		rec.Event.Status = next
		rec.Event.RosterLockedAt = s.now()
		return nil
	})
}

func (s *Service) Unfinalize(ctx context.Context, eventID string) (EventRecord, error) {
	return s.mutate(ctx, eventID, func(rec *EventRecord) error {
		if rec.Deleted() {
			return ErrGameUnavailable
		}
		next, err := NextStatus(rec.Event.Status, ActionUnfinalize)
		if err != nil {
			return err
		}
		rec.Event.Status = next
		rec.Event.RosterLockedAt = time.Time{}
		return nil
	})
}

// Delete soft-deletes a game in any status; the prior status is preserved
// so Undelete restores it exactly.
func (s *Service) Delete(ctx context.Context, eventID string) (EventRecord, error) {
	return s.mutate(ctx, eventID, func(rec *EventRecord) error {
		if rec.Deleted() {
			return nil // already deleted; idempotent
		}
		rec.DeletedAt = s.now()
		return nil
	})
}

func (s *Service) Undelete(ctx context.Context, eventID string) (EventRecord, error) {
	return s.mutate(ctx, eventID, func(rec *EventRecord) error {
		rec.DeletedAt = time.Time{}
		return nil
	})
}

func (s *Service) TransferOwner(ctx context.Context, eventID string, newOwner int64) (EventRecord, error) {
	return s.mutate(ctx, eventID, func(rec *EventRecord) error {
		if rec.Deleted() {
			return ErrGameUnavailable
		}
		rec.Event.OwnerID = newOwner
		return nil
	})
}

func (s *Service) refreshMessage(ctx context.Context, ev Event, parts []Participant) {
	if ev.MessageID == 0 {
		return
	}
	if err := s.notifier.RefreshGameMessage(ctx, ev, parts); err != nil {
		s.log.Warn("announcement refresh failed", logx.String("event_id", ev.ID), logx.Err(err))
	}
}

func (s *Service) refreshRoster(ctx context.Context, rec EventRecord) {
	parts, err := s.store.ListParticipants(ctx, rec.Event.ID)
	if err != nil {
		s.log.Warn("roster load failed", logx.String("event_id", rec.Event.ID), logx.Err(err))
		return
	}
	s.refreshMessage(ctx, rec.Event, parts)
}

// ---- Periodic driver entry points ----

// GenerateDueGames creates the next concrete game for every active scaffold
// whose occurrence does not exist yet. Idempotent across repeated ticks: a
// guard pass over existing events plus the storage uniqueness constraint on
// (scaffold_id, start_at) make duplicates impossible; a constraint hit is
// logged and skipped, never surfaced.
func (s *Service) GenerateDueGames(ctx context.Context) (int, error) {
	set := s.settings()
	now := s.now()

	scaffolds, err := s.store.ListScaffolds(ctx, true)
	if err != nil {
		return 0, err
	}
	if len(scaffolds) == 0 {
		return 0, nil
	}
	records, err := s.store.ListEvents(ctx, now)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, sc := range scaffolds {
		next, err := schedule.NextOccurrence(sc.Weekday, sc.Hour, sc.Minute, now, set.Deadlines.Location)
		if err != nil {
			s.log.Warn("scaffold has unusable slot", logx.String("scaffold_id", sc.ID), logx.Err(err))
			continue
		}
		start := next.UTC().Truncate(time.Second)
		if OccurrenceExists(records, sc.ID, start) {
			continue
		}
		ev := Event{
			ID:               uuid.NewString(),
			ScaffoldID:       sc.ID,
			StartAt:          start,
			Courts:           sc.Courts,
			Status:           StatusCreated,
			ChatID:           set.ChatID,
			AnnounceOverride: sc.AnnounceOverride,
			OwnerID:          sc.OwnerID,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.store.CreateEvent(ctx, ev); err != nil {
			if errors.Is(err, ErrDuplicateOccurrence) {
				s.log.Debug("occurrence raced into existence", logx.String("scaffold_id", sc.ID), logx.Time("start_at", start))
				continue
			}
			return created, err
		}
		created++
		s.log.Info("game generated",
			logx.String("event_id", ev.ID),
			logx.String("scaffold_id", sc.ID),
			logx.Time("start_at", start))
	}
	return created, nil
}

// EvaluateTriggers walks upcoming games and fires whichever deadline actions
// have become due. The due predicates are stateless and recomputed from the
// current settings each tick; the fired-action markers on the row (checked
// again under the lock) are what makes each action fire exactly once.
func (s *Service) EvaluateTriggers(ctx context.Context) error {
	set := s.settings()
	now := s.now()

	records, err := s.store.ListEvents(ctx, now)
	if err != nil {
		return err
	}

	var firstErr error
	for _, rec := range records {
		if rec.Deleted() {
			continue
		}
		ev := rec.Event
		var err error
		switch {
		case ev.Status == StatusCreated &&
			set.Deadlines.DueWith(ev.announceNotation(), schedule.DeadlineAnnounce, ev.StartAt, now):
			err = s.fireAnnounce(ctx, ev.ID)
		case ev.Status == StatusAnnounced && ev.RosterLockedAt.IsZero() &&
			set.Deadlines.Due(schedule.DeadlineCancel, ev.StartAt, now):
			err = s.fireRosterLock(ctx, ev.ID)
		case (ev.Status == StatusAnnounced || ev.Status == StatusFinalized) && ev.RemindedAt.IsZero() &&
			set.Deadlines.Due(schedule.DeadlineReminder, ev.StartAt, now):
			err = s.fireReminder(ctx, ev.ID)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if err != nil {
			s.log.Warn("trigger failed", logx.String("event_id", ev.ID), logx.Err(err))
		}
	}
	return firstErr
}

// fireAnnounce posts the announcement. Conditions are rechecked under the
// lock so a concurrent cancel or a second driver tick can't double-post.
// If sending fails nothing is persisted and the next tick retries.
func (s *Service) fireAnnounce(ctx context.Context, eventID string) error {
	set := s.settings()
	_, err := s.mutate(ctx, eventID, func(rec *EventRecord) error {
		ev := &rec.Event
		now := s.now()
		if rec.Deleted() || ev.Status != StatusCreated ||
			!set.Deadlines.DueWith(ev.announceNotation(), schedule.DeadlineAnnounce, ev.StartAt, now) {
			return ErrGameUnavailable
		}
		next, err := NextStatus(ev.Status, ActionAnnounce)
		if err != nil {
			return err
		}
		parts, err := s.store.ListParticipants(ctx, ev.ID)
		if err != nil {
			return err
		}
		ref, err := s.notifier.AnnounceGame(ctx, *ev, parts)
		if err != nil {
			return err
		}
		ev.Status = next
		ev.ChatID = ref.ChatID
		ev.MessageID = ref.MessageID
		ev.AnnouncedAt = now
		return nil
	})
	if errors.Is(err, ErrGameUnavailable) {
		return nil // condition no longer holds; someone else acted first
	}
	if err == nil {
		s.log.Info("game announced", logx.String("event_id", eventID))
	}
	return err
}

// fireRosterLock finalizes the game when the cancellation deadline passes.
func (s *Service) fireRosterLock(ctx context.Context, eventID string) error {
	set := s.settings()
	var roster []Participant
	rec, err := s.mutate(ctx, eventID, func(rec *EventRecord) error {
		ev := &rec.Event
		now := s.now()
		if rec.Deleted() || ev.Status != StatusAnnounced || !ev.RosterLockedAt.IsZero() ||
			!set.Deadlines.Due(schedule.DeadlineCancel, ev.StartAt, now) {
			return ErrGameUnavailable
		}
		next, err := NextStatus(ev.Status, ActionFinalize)
		if err != nil {
			return err
		}
		parts, err := s.store.ListParticipants(ctx, ev.ID)
		if err != nil {
			return err
		}
		ev.Status = next
		ev.RosterLockedAt = now
		roster = parts
		return nil
	})
	if errors.Is(err, ErrGameUnavailable) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.notifier.NotifyRosterLocked(ctx, rec.Event, roster); err != nil {
		s.log.Warn("roster-lock notification failed", logx.String("event_id", eventID), logx.Err(err))
	}
	s.log.Info("roster locked", logx.String("event_id", eventID))
	return nil
}

func (s *Service) fireReminder(ctx context.Context, eventID string) error {
	set := s.settings()
	_, err := s.mutate(ctx, eventID, func(rec *EventRecord) error {
		ev := &rec.Event
		now := s.now()
		if rec.Deleted() || !ev.RemindedAt.IsZero() ||
			(ev.Status != StatusAnnounced && ev.Status != StatusFinalized) ||
			!set.Deadlines.Due(schedule.DeadlineReminder, ev.StartAt, now) {
			return ErrGameUnavailable
		}
		parts, err := s.store.ListParticipants(ctx, ev.ID)
		if err != nil {
			return err
		}
		if err := s.notifier.RemindGame(ctx, *ev, parts); err != nil {
			return err
		}
		ev.RemindedAt = now
		return nil
	})
	if errors.Is(err, ErrGameUnavailable) {
		return nil
	}
	if err == nil {
		s.log.Info("reminder sent", logx.String("event_id", eventID))
	}
	return err
}
