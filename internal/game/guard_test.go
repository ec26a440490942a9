package game

import (
	"testing"
	"time"
)

func TestOccurrenceExists(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 1, 15, 18, 30, 0, 0, time.UTC)
	records := []EventRecord{
		{Event: Event{ID: "a", ScaffoldID: "sc-1", StartAt: at}},
		{Event: Event{ID: "b", ScaffoldID: "sc-2", StartAt: at}},
		{
			Event:     Event{ID: "c", ScaffoldID: "sc-3", StartAt: at},
			DeletedAt: at.Add(-time.Hour),
		},
	}

	if !OccurrenceExists(records, "sc-1", at) {
		t.Fatalf("exact match not found")
	}
	// Same wall instant expressed in another zone still matches.
	if !OccurrenceExists(records, "sc-1", at.In(time.FixedZone("X", 3600))) {
		t.Fatalf("instant equality must ignore zone representation")
	}
	if OccurrenceExists(records, "sc-1", at.Add(time.Second)) {
		t.Fatalf("one second off must not match")
	}
	if OccurrenceExists(records, "sc-9", at) {
		t.Fatalf("unknown scaffold must not match")
	}
	// A deleted occurrence does not block regeneration.
	if OccurrenceExists(records, "sc-3", at) {
		t.Fatalf("soft-deleted occurrence must not count")
	}
}
