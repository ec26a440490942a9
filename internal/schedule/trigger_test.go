package schedule

import (
	"testing"
	"time"
)

func TestParseDeadlines(t *testing.T) {
	t.Parallel()
	d, err := ParseDeadlines("Europe/Belgrade", "-1d", "-1d 12:00", "-2h")
	if err != nil {
		t.Fatalf("ParseDeadlines: %v", err)
	}
	if d.Location.String() != "Europe/Belgrade" {
		t.Fatalf("Location = %s", d.Location)
	}
	if d.Announce.Days != -1 || d.Cancel.Hour != 12 || d.Reminder.Hours != -2 {
		t.Fatalf("unexpected notations: %+v", d)
	}

	if _, err := ParseDeadlines("Mars/Olympus", "-1d", "-1d", "-2h"); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
	if _, err := ParseDeadlines("UTC", "1d", "-1d", "-2h"); err == nil {
		t.Fatal("expected error for positive announce notation")
	}
}

func TestDeadlinesAtAndDue(t *testing.T) {
	t.Parallel()
	d, err := ParseDeadlines("Europe/Belgrade", "-1d 18:00", "-1d 12:00", "-2h")
	if err != nil {
		t.Fatalf("ParseDeadlines: %v", err)
	}

	// Game on Wed 2025-01-15 19:30 local (18:30 UTC).
	start := time.Date(2025, 1, 15, 18, 30, 0, 0, time.UTC)

	if got, want := d.At(DeadlineAnnounce, start), time.Date(2025, 1, 14, 17, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("announce at %s, want %s", got.UTC(), want)
	}
	if got, want := d.At(DeadlineCancel, start), time.Date(2025, 1, 14, 11, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("cancel-deadline at %s, want %s", got.UTC(), want)
	}
	if got, want := d.At(DeadlineReminder, start), start.Add(-2*time.Hour); !got.Equal(want) {
		t.Fatalf("reminder at %s, want %s", got.UTC(), want)
	}

	now := time.Date(2025, 1, 14, 16, 59, 0, 0, time.UTC)
	if d.Due(DeadlineAnnounce, start, now) {
		t.Fatal("announce due one minute early")
	}
	now = now.Add(time.Minute)
	if !d.Due(DeadlineAnnounce, start, now) {
		t.Fatal("announce not due at its instant")
	}
	if d.Due(DeadlineReminder, start, now) {
		t.Fatal("reminder due a day early")
	}
}

func TestDeadlinesDueWithOverride(t *testing.T) {
	t.Parallel()
	d, err := ParseDeadlines("UTC", "-1d", "-1d", "-2h")
	if err != nil {
		t.Fatalf("ParseDeadlines: %v", err)
	}

	start := time.Date(2025, 1, 15, 18, 0, 0, 0, time.UTC)
	now := time.Date(2025, 1, 13, 18, 0, 0, 0, time.UTC) // two days before start

	if d.Due(DeadlineAnnounce, start, now) {
		t.Fatal("default -1d announce must not be due two days out")
	}
	if !d.DueWith(MustNotation("-3d"), DeadlineAnnounce, start, now) {
		t.Fatal("-3d override must be due two days out")
	}
	// Zero override falls back to the configured notation.
	if d.DueWith(Notation{}, DeadlineAnnounce, start, now) {
		t.Fatal("zero override must fall back to default")
	}
}
