package game

import (
	"errors"
	"testing"
)

func TestNextStatusTransitions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		cur    Status
		action Action
		want   Status
		ok     bool
	}{
		{StatusCreated, ActionAnnounce, StatusAnnounced, true},
		{StatusAnnounced, ActionFinalize, StatusFinalized, true},
		{StatusFinalized, ActionUnfinalize, StatusAnnounced, true},
		{StatusAnnounced, ActionUnfinalize, StatusAnnounced, true}, // no-op
		{StatusCreated, ActionCancel, StatusCancelled, true},
		{StatusAnnounced, ActionCancel, StatusCancelled, true},

		{StatusAnnounced, ActionAnnounce, StatusAnnounced, false},
		{StatusFinalized, ActionAnnounce, StatusFinalized, false},
		{StatusCancelled, ActionAnnounce, StatusCancelled, false},
		{StatusCreated, ActionFinalize, StatusCreated, false},
		{StatusFinalized, ActionFinalize, StatusFinalized, false},
		{StatusCancelled, ActionFinalize, StatusCancelled, false},
		{StatusCreated, ActionUnfinalize, StatusCreated, false},
		{StatusCancelled, ActionUnfinalize, StatusCancelled, false},
		{StatusFinalized, ActionCancel, StatusFinalized, false},
		{StatusCancelled, ActionCancel, StatusCancelled, false},
	}
	for _, tc := range cases {
		got, err := NextStatus(tc.cur, tc.action)
		if tc.ok {
			if err != nil {
				t.Fatalf("NextStatus(%s, %s): unexpected error: %v", tc.cur, tc.action, err)
			}
			if got != tc.want {
				t.Fatalf("NextStatus(%s, %s) = %s, want %s", tc.cur, tc.action, got, tc.want)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("NextStatus(%s, %s): want ErrInvalidTransition, got %v", tc.cur, tc.action, err)
		}
		if got != tc.cur {
			t.Fatalf("NextStatus(%s, %s) mutated status to %s on rejection", tc.cur, tc.action, got)
		}
	}
}
