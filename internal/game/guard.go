package game

import "time"

// OccurrenceExists reports whether a live (non-deleted) event for the given
// scaffold already starts at exactly candidate. It keeps scheduled game
// generation idempotent when the periodic driver ticks more than once around
// the same due instant.
//
// Equality is exact at storage granularity (UTC seconds), no fuzzy
// windowing. The check does not reserve anything: check-then-create is not
// atomic, so the storage layer additionally enforces
// UNIQUE(scaffold_id, start_at) and a violation there is treated as the
// benign "already exists" outcome.
func OccurrenceExists(records []EventRecord, scaffoldID string, candidate time.Time) bool {
	for _, r := range records {
		if r.Deleted() {
			continue
		}
		if r.Event.ScaffoldID == scaffoldID && r.Event.StartAt.Equal(candidate) {
			return true
		}
	}
	return false
}
