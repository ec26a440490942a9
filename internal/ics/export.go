// Package ics renders scheduled games as an iCalendar feed so players can
// pull the season into their own calendars.
package ics

import (
	"errors"
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"rallybot/internal/game"
)

// gameDuration is the calendar block reserved per game. Court bookings run
// in two-hour slots.
const gameDuration = 2 * time.Hour

// Export serializes the given games as a VCALENDAR. Times are emitted in
// UTC; loc only shapes the human-readable summaries.
func Export(events []game.Event, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.UTC
	}
	if len(events) == 0 {
		return "", errors.New("nothing to export")
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//rallybot//games//EN")

	now := time.Now().UTC()
	for _, ev := range events {
		ve := cal.AddEvent(ev.ID + "@rallybot")
		ve.SetDtStampTime(now)
		ve.SetStartAt(ev.StartAt.UTC())
		ve.SetEndAt(ev.StartAt.Add(gameDuration).UTC())
		ve.SetSummary(summary(ev))
		ve.SetDescription(fmt.Sprintf("%d court(s), up to %d players. Starts %s.",
			ev.Courts, ev.Capacity(), ev.StartAt.In(loc).Format("Monday 15:04 MST")))
		if ev.Status == game.StatusCancelled {
			ve.SetStatus(ical.ObjectStatusCancelled)
		} else {
			ve.SetStatus(ical.ObjectStatusConfirmed)
		}
	}
	return cal.Serialize(), nil
}

func summary(ev game.Event) string {
	s := "Volleyball"
	if ev.Status == game.StatusCancelled {
		s += " (cancelled)"
	}
	return s
}
