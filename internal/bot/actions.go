package bot

import (
	"context"
	"errors"

	"rallybot/internal/game"
	kit "rallybot/internal/transport"
	logx "rallybot/pkg/logx"
	"rallybot/pkg/tgui"
)

// callbackScope prefixes all inline-button callback data owned by this bot.
const callbackScope = "game"

// ActionKind enumerates every inline-button action. The set is closed:
// dispatch is a switch over these constants, and unknown data from stale
// keyboards is answered with a shrug instead of crashing or growing a
// string-keyed registry.
type ActionKind int

const (
	ActionUnknown ActionKind = iota
	ActionJoin
	ActionLeave
	ActionGuestPlus
	ActionGuestMinus
)

var actionNames = map[ActionKind]string{
	ActionJoin:       "join",
	ActionLeave:      "leave",
	ActionGuestPlus:  "guest+",
	ActionGuestMinus: "guest-",
}

func (k ActionKind) String() string {
	if s, ok := actionNames[k]; ok {
		return s
	}
	return "unknown"
}

// actionData builds the callback_data for a button.
func actionData(k ActionKind, gameID string) string {
	return tgui.Data(callbackScope, k.String(), gameID)
}

// parseAction decodes callback_data back into an action. Foreign scopes and
// unknown action names come back as ActionUnknown.
func parseAction(data string) (ActionKind, string) {
	scope, action, payload := tgui.SplitData(data)
	if scope != callbackScope {
		return ActionUnknown, ""
	}
	for k, name := range actionNames {
		if name == action {
			return k, payload
		}
	}
	return ActionUnknown, ""
}

// handleCallback runs one inline-button press end to end and answers the
// callback with a short toast.
func (b *Bot) handleCallback(ctx context.Context, cb *kit.Callback) {
	kind, gameID := parseAction(cb.Data)
	toast := b.runAction(ctx, kind, gameID, cb)
	if err := b.ad.AnswerCallback(ctx, cb.ID, toast); err != nil {
		b.log.Debug("callback answer failed", logx.Err(err))
	}
}

func (b *Bot) runAction(ctx context.Context, kind ActionKind, gameID string, cb *kit.Callback) string {
	if kind == ActionUnknown || gameID == "" {
		return "This button is no longer active."
	}

	var err error
	switch kind {
	case ActionJoin:
		err = b.svc.Join(ctx, gameID, cb.FromID, cb.FromName)
	case ActionLeave:
		err = b.svc.Leave(ctx, gameID, cb.FromID)
	case ActionGuestPlus:
		err = b.adjustGuests(ctx, gameID, cb, +1)
	case ActionGuestMinus:
		err = b.adjustGuests(ctx, gameID, cb, -1)
	}

	switch {
	case err == nil:
		return actionToast(kind)
	case errors.Is(err, game.ErrRosterLocked):
		return "The roster is locked."
	case errors.Is(err, game.ErrGameUnavailable):
		return "This game is no longer available."
	case errors.Is(err, game.ErrNotFound):
		return "This game no longer exists."
	case errors.Is(err, errNotJoined):
		return "Join first, then add guests."
	default:
		b.log.Warn("callback action failed",
			logx.String("action", kind.String()),
			logx.String("event_id", gameID),
			logx.Err(err))
		return "Something went wrong, try again."
	}
}

func actionToast(k ActionKind) string {
	switch k {
	case ActionJoin:
		return "You're in! 🏐"
	case ActionLeave:
		return "You're out."
	case ActionGuestPlus:
		return "Guest added."
	case ActionGuestMinus:
		return "Guest removed."
	}
	return "Done."
}

var errNotJoined = errors.New("not joined")

// adjustGuests bumps the caller's guest count by delta, clamped at zero.
// The caller must already be on the roster.
func (b *Bot) adjustGuests(ctx context.Context, gameID string, cb *kit.Callback, delta int) error {
	_, parts, err := b.svc.GameWithRoster(ctx, gameID)
	if err != nil {
		return err
	}
	for _, p := range parts {
		if p.UserID == cb.FromID {
			n := p.Guests + delta
			if n < 0 {
				n = 0
			}
			if n == p.Guests {
				return nil
			}
			return b.svc.SetGuests(ctx, gameID, cb.FromID, n)
		}
	}
	if delta > 0 {
		return errNotJoined
	}
	return nil
}
