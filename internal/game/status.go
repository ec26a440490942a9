package game

import (
	"errors"
	"fmt"
)

// Status is a game's lifecycle state. Soft deletion is deliberately not a
// status: it is an orthogonal flag on EventRecord that preserves the prior
// status, so undeleting restores the game exactly as it was.
type Status string

const (
	// StatusCreated: generated or manually created, not yet posted to the chat.
	StatusCreated Status = "created"
	// StatusAnnounced: posted; players can join and leave.
	StatusAnnounced Status = "announced"
	// StatusFinalized: roster locked (cancellation deadline passed or an
	// admin locked it early).
	StatusFinalized Status = "finalized"
	// StatusCancelled: terminal.
	StatusCancelled Status = "cancelled"
)

func (s Status) String() string { return string(s) }

// Action is a lifecycle transition request.
type Action string

const (
	ActionAnnounce   Action = "announce"
	ActionFinalize   Action = "finalize"
	ActionUnfinalize Action = "unfinalize"
	ActionCancel     Action = "cancel"
)

// ErrInvalidTransition is returned when an action is not legal in the
// current status. The caller's state is left untouched.
var ErrInvalidTransition = errors.New("invalid status transition")

// NextStatus applies a lifecycle action to a status.
//
//	created ──announce──> announced ──finalize──> finalized
//	created/announced ──cancel──> cancelled
//	finalized ──unfinalize──> announced
//	announced ──unfinalize──> announced (no-op: nothing to undo)
func NextStatus(cur Status, a Action) (Status, error) {
	switch a {
	case ActionAnnounce:
		if cur == StatusCreated {
			return StatusAnnounced, nil
		}
	case ActionFinalize:
		if cur == StatusAnnounced {
			return StatusFinalized, nil
		}
	case ActionUnfinalize:
		switch cur {
		case StatusFinalized:
			return StatusAnnounced, nil
		case StatusAnnounced:
			return StatusAnnounced, nil
		}
	case ActionCancel:
		if cur == StatusCreated || cur == StatusAnnounced {
			return StatusCancelled, nil
		}
	}
	return cur, fmt.Errorf("%w: cannot %s a %s game", ErrInvalidTransition, a, cur)
}
