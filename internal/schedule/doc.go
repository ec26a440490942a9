// Package schedule holds the time arithmetic behind rallybot's game planning:
//
//   - Deadline notation ("-1d 12:00", "-24h"): parsing and resolution of a
//     deadline instant relative to a game's start time in a timezone.
//   - Weekly recurrence: computing the next concrete occurrence of a
//     weekly scaffold slot.
//   - Trigger evaluation: deciding whether the announcement, cancellation
//     deadline, or reminder for a game is due.
//
// Everything here is pure: no clocks, no I/O. Callers pass "now" in and are
// responsible for recording that a due action has already fired.
package schedule
