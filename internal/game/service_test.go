package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"rallybot/internal/schedule"
	logx "rallybot/pkg/logx"
)

// fakeStore is an in-memory Store for service tests. It enforces the same
// occurrence uniqueness the sqlite layer does.
type fakeStore struct {
	mu        sync.Mutex
	scaffolds map[string]Scaffold
	events    map[string]EventRecord
	parts     map[string][]Participant
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		scaffolds: map[string]Scaffold{},
		events:    map[string]EventRecord{},
		parts:     map[string][]Participant{},
	}
}

func (f *fakeStore) CreateScaffold(_ context.Context, sc Scaffold) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scaffolds[sc.ID] = sc
	return nil
}

func (f *fakeStore) FindScaffoldByID(_ context.Context, id string) (Scaffold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sc, ok := f.scaffolds[id]
	if !ok {
		return Scaffold{}, ErrNotFound
	}
	return sc, nil
}

func (f *fakeStore) ListScaffolds(_ context.Context, activeOnly bool) ([]Scaffold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Scaffold
	for _, sc := range f.scaffolds {
		if activeOnly && !sc.Active {
			continue
		}
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) UpdateScaffold(_ context.Context, sc Scaffold) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.scaffolds[sc.ID]; !ok {
		return ErrNotFound
	}
	f.scaffolds[sc.ID] = sc
	return nil
}

func (f *fakeStore) CreateEvent(_ context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ev.ScaffoldID != "" {
		for _, r := range f.events {
			if !r.Deleted() && r.Event.ScaffoldID == ev.ScaffoldID && r.Event.StartAt.Equal(ev.StartAt) {
				return ErrDuplicateOccurrence
			}
		}
	}
	f.events[ev.ID] = EventRecord{Event: ev}
	return nil
}

func (f *fakeStore) FindEventByID(_ context.Context, id string) (EventRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.events[id]
	if !ok {
		return EventRecord{}, ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) ListEvents(_ context.Context, from time.Time) ([]EventRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []EventRecord
	for _, r := range f.events {
		if !r.Event.StartAt.Before(from) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Event.StartAt.Before(out[j].Event.StartAt) })
	return out, nil
}

func (f *fakeStore) UpdateEvent(_ context.Context, rec EventRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[rec.Event.ID]; !ok {
		return ErrNotFound
	}
	f.events[rec.Event.ID] = rec
	return nil
}

func (f *fakeStore) AddParticipant(_ context.Context, p Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range f.parts[p.EventID] {
		if q.UserID == p.UserID {
			return fmt.Errorf("participant %d already joined", p.UserID)
		}
	}
	f.parts[p.EventID] = append(f.parts[p.EventID], p)
	return nil
}

func (f *fakeStore) RemoveParticipant(_ context.Context, eventID string, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ps := f.parts[eventID]
	for i, q := range ps {
		if q.UserID == userID {
			f.parts[eventID] = append(ps[:i:i], ps[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeStore) SetGuests(_ context.Context, eventID string, userID int64, guests int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, q := range f.parts[eventID] {
		if q.UserID == userID {
			f.parts[eventID][i].Guests = guests
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeStore) ListParticipants(_ context.Context, eventID string) ([]Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Participant(nil), f.parts[eventID]...), nil
}

func (f *fakeStore) Close() error { return nil }

type fakeNotifier struct {
	mu          sync.Mutex
	announces   int
	reminders   int
	rosterLocks int
	cancels     int
	refreshes   int
	announceErr error
}

func (n *fakeNotifier) AnnounceGame(_ context.Context, ev Event, _ []Participant) (MessageRef, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.announces++
	if n.announceErr != nil {
		return MessageRef{}, n.announceErr
	}
	return MessageRef{ChatID: ev.ChatID, MessageID: 1000 + n.announces}, nil
}

func (n *fakeNotifier) RemindGame(_ context.Context, _ Event, _ []Participant) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reminders++
	return nil
}

func (n *fakeNotifier) NotifyRosterLocked(_ context.Context, _ Event, _ []Participant) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rosterLocks++
	return nil
}

func (n *fakeNotifier) NotifyCancelled(_ context.Context, _ Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancels++
	return nil
}

func (n *fakeNotifier) RefreshGameMessage(_ context.Context, _ Event, _ []Participant) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refreshes++
	return nil
}

func testDeadlines(t *testing.T) schedule.Deadlines {
	t.Helper()
	dl, err := schedule.ParseDeadlines("Europe/Belgrade", "-1d", "-1d 12:00", "-2h")
	if err != nil {
		t.Fatalf("ParseDeadlines: %v", err)
	}
	return dl
}

func newTestServiceWith(t *testing.T, now time.Time, dl schedule.Deadlines) (*Service, *fakeStore, *fakeNotifier) {
	t.Helper()
	store := newFakeStore()
	notifier := &fakeNotifier{}
	svc := NewService(store, notifier, func() Settings {
		return Settings{Deadlines: dl, ChatID: -100200, DefaultCourts: 2}
	}, logx.Nop())
	svc.now = func() time.Time { return now }
	return svc, store, notifier
}

func newTestService(t *testing.T, now time.Time) (*Service, *fakeStore, *fakeNotifier) {
	t.Helper()
	return newTestServiceWith(t, now, testDeadlines(t))
}

func TestGenerateDueGamesIdempotent(t *testing.T) {
	t.Parallel()

	// Monday 10:00 UTC; next Wednesday 19:30 Belgrade slot is two days out.
	now := time.Date(2025, 1, 13, 10, 0, 0, 0, time.UTC)
	svc, store, _ := newTestService(t, now)
	ctx := context.Background()

	sc, err := svc.CreateScaffold(ctx, time.Wednesday, 19, 30, 0, 42)
	if err != nil {
		t.Fatalf("CreateScaffold: %v", err)
	}
	if sc.Courts != 2 {
		t.Fatalf("default courts = %d, want 2", sc.Courts)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.GenerateDueGames(ctx); err != nil {
			t.Fatalf("GenerateDueGames #%d: %v", i, err)
		}
	}
	recs, err := store.ListEvents(ctx, now)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d events after repeated generation, want 1", len(recs))
	}
	ev := recs[0].Event
	want := time.Date(2025, 1, 15, 19, 30, 0, 0, mustLoc(t, "Europe/Belgrade")).UTC()
	if !ev.StartAt.Equal(want) {
		t.Fatalf("StartAt = %v, want %v", ev.StartAt, want)
	}
	if ev.Status != StatusCreated || ev.ScaffoldID != sc.ID {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestGenerateSkipsInactiveScaffolds(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 13, 10, 0, 0, 0, time.UTC)
	svc, store, _ := newTestService(t, now)
	ctx := context.Background()

	sc, err := svc.CreateScaffold(ctx, time.Friday, 20, 0, 3, 1)
	if err != nil {
		t.Fatalf("CreateScaffold: %v", err)
	}
	if _, err := svc.ToggleScaffold(ctx, sc.ID); err != nil {
		t.Fatalf("ToggleScaffold: %v", err)
	}
	n, err := svc.GenerateDueGames(ctx)
	if err != nil {
		t.Fatalf("GenerateDueGames: %v", err)
	}
	if n != 0 {
		t.Fatalf("generated %d games from inactive scaffold", n)
	}
	recs, _ := store.ListEvents(ctx, now)
	if len(recs) != 0 {
		t.Fatalf("got %d events, want 0", len(recs))
	}
}

func seedEvent(t *testing.T, store *fakeStore, ev Event) Event {
	t.Helper()
	if ev.ID == "" {
		ev.ID = "ev-" + ev.Status.String()
	}
	if err := store.CreateEvent(context.Background(), ev); err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return ev
}

func TestAnnounceFiresExactlyOnce(t *testing.T) {
	t.Parallel()

	// Start in two hours: the -1d announce deadline is long past due, while
	// the tight cancel/reminder offsets keep the later triggers quiet.
	now := time.Date(2025, 1, 15, 16, 30, 0, 0, time.UTC)
	dl, err := schedule.ParseDeadlines("Europe/Belgrade", "-1d", "-1h", "-1h")
	if err != nil {
		t.Fatalf("ParseDeadlines: %v", err)
	}
	svc, store, notifier := newTestServiceWith(t, now, dl)
	ctx := context.Background()

	ev := seedEvent(t, store, Event{
		ID:      "ev-1",
		StartAt: now.Add(2 * time.Hour),
		Courts:  2,
		Status:  StatusCreated,
		ChatID:  -100200,
	})

	for i := 0; i < 2; i++ {
		if err := svc.EvaluateTriggers(ctx); err != nil {
			t.Fatalf("EvaluateTriggers #%d: %v", i, err)
		}
	}
	if notifier.announces != 1 {
		t.Fatalf("announces = %d, want 1", notifier.announces)
	}
	rec, err := store.FindEventByID(ctx, ev.ID)
	if err != nil {
		t.Fatalf("FindEventByID: %v", err)
	}
	if rec.Event.Status != StatusAnnounced {
		t.Fatalf("status = %s, want announced", rec.Event.Status)
	}
	if rec.Event.MessageID == 0 || rec.Event.AnnouncedAt.IsZero() {
		t.Fatalf("announcement ref not persisted: %+v", rec.Event)
	}
}

func TestAnnounceFailureRetriesNextTick(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 15, 16, 30, 0, 0, time.UTC)
	svc, store, notifier := newTestService(t, now)
	ctx := context.Background()

	ev := seedEvent(t, store, Event{
		ID:      "ev-1",
		StartAt: now.Add(3 * time.Hour),
		Courts:  2,
		Status:  StatusCreated,
		ChatID:  -100200,
	})

	notifier.announceErr = errors.New("flood control")
	if err := svc.EvaluateTriggers(ctx); err == nil {
		t.Fatalf("want delivery error surfaced")
	}
	rec, _ := store.FindEventByID(ctx, ev.ID)
	if rec.Event.Status != StatusCreated {
		t.Fatalf("status persisted as %s despite failed send", rec.Event.Status)
	}

	notifier.announceErr = nil
	if err := svc.EvaluateTriggers(ctx); err != nil {
		t.Fatalf("EvaluateTriggers retry: %v", err)
	}
	rec, _ = store.FindEventByID(ctx, ev.ID)
	if rec.Event.Status != StatusAnnounced {
		t.Fatalf("status = %s after retry, want announced", rec.Event.Status)
	}
	if notifier.announces != 2 {
		t.Fatalf("announces = %d, want 2", notifier.announces)
	}
}

func TestRosterLocksAtCancellationDeadline(t *testing.T) {
	t.Parallel()

	// Cancel deadline for an 18:30 UTC Wednesday start is Tuesday 11:00 UTC
	// (12:00 Belgrade). Clock is past that but before the -2h reminder.
	start := time.Date(2025, 1, 15, 18, 30, 0, 0, time.UTC)
	now := time.Date(2025, 1, 14, 12, 0, 0, 0, time.UTC)
	svc, store, notifier := newTestService(t, now)
	ctx := context.Background()

	ev := seedEvent(t, store, Event{
		ID:      "ev-1",
		StartAt: start,
		Courts:  2,
		Status:  StatusAnnounced,
		ChatID:  -100200,
	})

	for i := 0; i < 2; i++ {
		if err := svc.EvaluateTriggers(ctx); err != nil {
			t.Fatalf("EvaluateTriggers #%d: %v", i, err)
		}
	}
	rec, _ := store.FindEventByID(ctx, ev.ID)
	if rec.Event.Status != StatusFinalized {
		t.Fatalf("status = %s, want finalized", rec.Event.Status)
	}
	if rec.Event.RosterLockedAt.IsZero() {
		t.Fatalf("RosterLockedAt not stamped")
	}
	if notifier.rosterLocks != 1 {
		t.Fatalf("roster-lock notifications = %d, want 1", notifier.rosterLocks)
	}
}

func TestReminderFiresOnceOnFinalizedGame(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 15, 18, 30, 0, 0, time.UTC)
	now := start.Add(-90 * time.Minute) // inside the -2h reminder window
	svc, store, notifier := newTestService(t, now)
	ctx := context.Background()

	ev := seedEvent(t, store, Event{
		ID:             "ev-1",
		StartAt:        start,
		Courts:         2,
		Status:         StatusFinalized,
		ChatID:         -100200,
		RosterLockedAt: now.Add(-time.Hour),
	})

	for i := 0; i < 2; i++ {
		if err := svc.EvaluateTriggers(ctx); err != nil {
			t.Fatalf("EvaluateTriggers #%d: %v", i, err)
		}
	}
	if notifier.reminders != 1 {
		t.Fatalf("reminders = %d, want 1", notifier.reminders)
	}
	rec, _ := store.FindEventByID(ctx, ev.ID)
	if rec.Event.RemindedAt.IsZero() {
		t.Fatalf("RemindedAt not stamped")
	}
}

func TestJoinLeaveGuards(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 14, 10, 0, 0, 0, time.UTC)
	svc, store, _ := newTestService(t, now)
	ctx := context.Background()
	start := now.Add(48 * time.Hour)

	open := seedEvent(t, store, Event{ID: "open", StartAt: start, Courts: 1, Status: StatusAnnounced})
	locked := seedEvent(t, store, Event{ID: "locked", StartAt: start, Courts: 1, Status: StatusFinalized})
	gone := seedEvent(t, store, Event{ID: "gone", StartAt: start, Courts: 1, Status: StatusCancelled})

	if err := svc.Join(ctx, open.ID, 7, "ana"); err != nil {
		t.Fatalf("Join open: %v", err)
	}
	// Joining twice is a no-op, not an error.
	if err := svc.Join(ctx, open.ID, 7, "ana"); err != nil {
		t.Fatalf("Join twice: %v", err)
	}
	parts, _ := store.ListParticipants(ctx, open.ID)
	if len(parts) != 1 {
		t.Fatalf("roster size = %d, want 1", len(parts))
	}

	if err := svc.Join(ctx, locked.ID, 7, "ana"); !errors.Is(err, ErrRosterLocked) {
		t.Fatalf("Join finalized: got %v, want ErrRosterLocked", err)
	}
	if err := svc.Leave(ctx, locked.ID, 7); !errors.Is(err, ErrRosterLocked) {
		t.Fatalf("Leave finalized: got %v, want ErrRosterLocked", err)
	}
	if err := svc.Join(ctx, gone.ID, 7, "ana"); !errors.Is(err, ErrGameUnavailable) {
		t.Fatalf("Join cancelled: got %v, want ErrGameUnavailable", err)
	}

	if _, err := svc.Delete(ctx, open.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Join(ctx, open.ID, 8, "bo"); !errors.Is(err, ErrGameUnavailable) {
		t.Fatalf("Join deleted: got %v, want ErrGameUnavailable", err)
	}
}

func TestDeleteUndeleteRestoresStatus(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 14, 10, 0, 0, 0, time.UTC)
	svc, store, _ := newTestService(t, now)
	ctx := context.Background()

	ev := seedEvent(t, store, Event{
		ID:      "ev-1",
		StartAt: now.Add(24 * time.Hour),
		Courts:  2,
		Status:  StatusAnnounced,
	})

	rec, err := svc.Delete(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !rec.Deleted() {
		t.Fatalf("record not tagged deleted")
	}
	if rec.Event.Status != StatusAnnounced {
		t.Fatalf("deletion changed status to %s", rec.Event.Status)
	}

	rec, err = svc.Undelete(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Undelete: %v", err)
	}
	if rec.Deleted() {
		t.Fatalf("record still tagged deleted")
	}
	if rec.Event.Status != StatusAnnounced {
		t.Fatalf("status after undelete = %s, want announced", rec.Event.Status)
	}
}

func TestCancelNotifiesAndRejectsRepeat(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 14, 10, 0, 0, 0, time.UTC)
	svc, store, notifier := newTestService(t, now)
	ctx := context.Background()

	ev := seedEvent(t, store, Event{
		ID:      "ev-1",
		StartAt: now.Add(24 * time.Hour),
		Courts:  2,
		Status:  StatusAnnounced,
	})

	if _, err := svc.Cancel(ctx, ev.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if notifier.cancels != 1 {
		t.Fatalf("cancel notifications = %d, want 1", notifier.cancels)
	}
	if _, err := svc.Cancel(ctx, ev.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second Cancel: got %v, want ErrInvalidTransition", err)
	}
	if notifier.cancels != 1 {
		t.Fatalf("rejected cancel still notified")
	}
}

func TestConcurrentJoinsAllLand(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 14, 10, 0, 0, 0, time.UTC)
	svc, store, _ := newTestService(t, now)
	ctx := context.Background()

	ev := seedEvent(t, store, Event{
		ID:      "ev-1",
		StartAt: now.Add(24 * time.Hour),
		Courts:  2,
		Status:  StatusAnnounced,
	})

	const n = 24
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.Join(ctx, ev.ID, int64(i+1), fmt.Sprintf("u%d", i+1))
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("Join %d: %v", i, err)
		}
	}
	parts, _ := store.ListParticipants(ctx, ev.ID)
	if len(parts) != n {
		t.Fatalf("roster size = %d, want %d", len(parts), n)
	}
}

func TestScaffoldSlotEdit(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 13, 10, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(t, now)
	ctx := context.Background()

	sc, err := svc.CreateScaffold(ctx, time.Wednesday, 19, 30, 2, 42)
	if err != nil {
		t.Fatalf("CreateScaffold: %v", err)
	}
	moved, err := svc.SetScaffoldSlot(ctx, sc.ID, time.Friday, 20, 0)
	if err != nil {
		t.Fatalf("SetScaffoldSlot: %v", err)
	}
	if moved.Weekday != time.Friday || moved.Hour != 20 || moved.Minute != 0 {
		t.Fatalf("slot not moved: %+v", moved)
	}
	if _, err := svc.SetScaffoldSlot(ctx, sc.ID, time.Friday, 24, 0); !errors.Is(err, schedule.ErrInvalidTimeOfDay) {
		t.Fatalf("hour 24: got %v, want ErrInvalidTimeOfDay", err)
	}
	if _, err := svc.SetScaffoldSlot(ctx, "missing", time.Friday, 20, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown scaffold: got %v, want ErrNotFound", err)
	}
}

func TestAdjustCourtsFloorsAtOne(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 14, 10, 0, 0, 0, time.UTC)
	svc, store, _ := newTestService(t, now)
	ctx := context.Background()

	ev := seedEvent(t, store, Event{
		ID:      "ev-1",
		StartAt: now.Add(24 * time.Hour),
		Courts:  2,
		Status:  StatusAnnounced,
	})

	rec, err := svc.AdjustCourts(ctx, ev.ID, 1)
	if err != nil {
		t.Fatalf("AdjustCourts +1: %v", err)
	}
	if rec.Event.Courts != 3 {
		t.Fatalf("courts = %d, want 3", rec.Event.Courts)
	}
	rec, err = svc.AdjustCourts(ctx, ev.ID, -10)
	if err != nil {
		t.Fatalf("AdjustCourts -10: %v", err)
	}
	if rec.Event.Courts != 1 {
		t.Fatalf("courts = %d, want floor of 1", rec.Event.Courts)
	}

	if _, err := svc.Cancel(ctx, ev.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := svc.AdjustCourts(ctx, ev.ID, 1); !errors.Is(err, ErrGameUnavailable) {
		t.Fatalf("adjust on cancelled: got %v, want ErrGameUnavailable", err)
	}
}

func TestTransferOwner(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 14, 10, 0, 0, 0, time.UTC)
	svc, store, _ := newTestService(t, now)
	ctx := context.Background()

	ev := seedEvent(t, store, Event{
		ID:      "ev-1",
		StartAt: now.Add(24 * time.Hour),
		Courts:  1,
		Status:  StatusAnnounced,
		OwnerID: 42,
	})

	rec, err := svc.TransferOwner(ctx, ev.ID, 77)
	if err != nil {
		t.Fatalf("TransferOwner: %v", err)
	}
	if rec.Event.OwnerID != 77 {
		t.Fatalf("owner = %d, want 77", rec.Event.OwnerID)
	}

	if _, err := svc.Delete(ctx, ev.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.TransferOwner(ctx, ev.ID, 99); !errors.Is(err, ErrGameUnavailable) {
		t.Fatalf("transfer on deleted: got %v, want ErrGameUnavailable", err)
	}
}

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("LoadLocation(%s): %v", name, err)
	}
	return loc
}
