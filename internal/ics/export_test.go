package ics

import (
	"strings"
	"testing"
	"time"

	"rallybot/internal/game"
)

func TestExport(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 15, 18, 30, 0, 0, time.UTC)
	events := []game.Event{
		{ID: "ev-1", StartAt: start, Courts: 2, Status: game.StatusAnnounced},
		{ID: "ev-2", StartAt: start.Add(7 * 24 * time.Hour), Courts: 1, Status: game.StatusCancelled},
	}

	out, err := Export(events, time.UTC)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"METHOD:PUBLISH",
		"UID:ev-1@rallybot",
		"DTSTART:20250115T183000Z",
		"STATUS:CANCELLED",
		"STATUS:CONFIRMED",
		"END:VCALENDAR",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("serialized calendar missing %q:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "BEGIN:VEVENT"); n != 2 {
		t.Fatalf("got %d VEVENTs, want 2", n)
	}
}

func TestExportEmpty(t *testing.T) {
	t.Parallel()
	if _, err := Export(nil, time.UTC); err == nil {
		t.Fatalf("want error for empty export")
	}
}
