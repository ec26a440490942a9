package bot

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"rallybot/internal/game"
	kit "rallybot/internal/transport"
	logx "rallybot/pkg/logx"
	"rallybot/pkg/tgui"
)

const startTimeFormat = "Mon, 2 Jan 15:04"

// gameTitle renders the header line for a game, in the configured timezone.
func gameTitle(ev game.Event, loc *time.Location) string {
	return "Volleyball " + ev.StartAt.In(loc).Format(startTimeFormat)
}

func statusLabel(ev game.Event) string {
	switch ev.Status {
	case game.StatusFinalized:
		return "roster locked"
	case game.StatusCancelled:
		return "cancelled"
	default:
		return "open"
	}
}

// rosterLines renders the numbered player list, guests counted inline.
func rosterLines(parts []game.Participant) []tgui.H {
	out := make([]tgui.H, 0, len(parts))
	for i, p := range parts {
		name := p.Username
		if name == "" {
			name = fmt.Sprintf("player %d", p.UserID)
		}
		line := tgui.H(fmt.Sprintf("%d. ", i+1)) + tgui.Mention(name, p.UserID)
		if p.Guests > 0 {
			line += tgui.Esc(fmt.Sprintf(" +%d", p.Guests))
		}
		out = append(out, line)
	}
	return out
}

// gameCard renders the announcement message for a game, including the
// join/leave keyboard while the roster is open.
func gameCard(ev game.Event, parts []game.Participant, loc *time.Location) tgui.Message {
	b := tgui.New().
		Title("🏐", gameTitle(ev, loc)).
		KV("Status", statusLabel(ev)).
		KV("Courts", fmt.Sprintf("%d", ev.Courts)).
		KV("Players", fmt.Sprintf("%d / %d", game.Headcount(parts), ev.Capacity()))

	if len(parts) > 0 {
		b.Blank()
		for _, ln := range rosterLines(parts) {
			b.RawLine(ln)
		}
	}

	if ev.Status == game.StatusCreated || ev.Status == game.StatusAnnounced {
		kb := tgui.NewInline().
			Row(
				tgui.Btn("✅ In", actionData(ActionJoin, ev.ID)),
				tgui.Btn("❌ Out", actionData(ActionLeave, ev.ID)),
			).
			Row(
				tgui.Btn("+guest", actionData(ActionGuestPlus, ev.ID)),
				tgui.Btn("-guest", actionData(ActionGuestMinus, ev.ID)),
			)
		b.Inline(kb)
	}
	return b.Build()
}

// Announcer delivers game notifications to the group chat. It implements
// game.Notifier. Sends go through a shared rate limiter so trigger bursts
// (several games due on one tick) stay under Telegram flood control.
type Announcer struct {
	ad       kit.Adapter
	settings game.SettingsFunc
	lim      *rate.Limiter
	log      logx.Logger
}

func NewAnnouncer(ad kit.Adapter, settings game.SettingsFunc, log logx.Logger) *Announcer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Announcer{
		ad:       ad,
		settings: settings,
		// Telegram allows ~20 msg/min per group; stay well under.
		lim: rate.NewLimiter(rate.Every(4*time.Second), 3),
		log: log,
	}
}

func (a *Announcer) target(ev game.Event) kit.ChatTarget {
	if ev.ChatID != 0 {
		return kit.ChatTarget{ChatID: ev.ChatID}
	}
	return kit.ChatTarget{ChatID: a.settings().ChatID}
}

func (a *Announcer) AnnounceGame(ctx context.Context, ev game.Event, parts []game.Participant) (game.MessageRef, error) {
	if err := a.lim.Wait(ctx); err != nil {
		return game.MessageRef{}, err
	}
	loc := a.settings().Deadlines.Location
	ref, err := gameCard(ev, parts, loc).Send(ctx, a.ad, a.target(ev))
	if err != nil {
		return game.MessageRef{}, err
	}
	return game.MessageRef{ChatID: ref.ChatID, MessageID: ref.MessageID}, nil
}

func (a *Announcer) RefreshGameMessage(ctx context.Context, ev game.Event, parts []game.Participant) error {
	if ev.MessageID == 0 {
		return nil
	}
	if err := a.lim.Wait(ctx); err != nil {
		return err
	}
	loc := a.settings().Deadlines.Location
	ref := kit.MessageRef{ChatID: ev.ChatID, MessageID: ev.MessageID}
	return gameCard(ev, parts, loc).Edit(ctx, a.ad, ref)
}

func (a *Announcer) RemindGame(ctx context.Context, ev game.Event, parts []game.Participant) error {
	if err := a.lim.Wait(ctx); err != nil {
		return err
	}
	set := a.settings()
	b := tgui.New().
		Title("⏰", "Reminder: "+gameTitle(ev, set.Deadlines.Location)).
		KV("Players", fmt.Sprintf("%d / %d", game.Headcount(parts), ev.Capacity()))
	if len(parts) > 0 {
		b.Blank().
			RawLine(tgui.JoinH(", ", rosterLines(parts)...))
	}
	_, err := b.Build().Send(ctx, a.ad, a.target(ev))
	return err
}

func (a *Announcer) NotifyRosterLocked(ctx context.Context, ev game.Event, parts []game.Participant) error {
	if err := a.lim.Wait(ctx); err != nil {
		return err
	}
	set := a.settings()
	b := tgui.New().
		Title("🔒", "Roster locked: "+gameTitle(ev, set.Deadlines.Location)).
		Line("Cancellation deadline passed; the lineup below is final.").
		KV("Players", fmt.Sprintf("%d / %d", game.Headcount(parts), ev.Capacity()))
	if len(parts) > 0 {
		b.Blank()
		for _, ln := range rosterLines(parts) {
			b.RawLine(ln)
		}
	}
	_, err := b.Build().Send(ctx, a.ad, a.target(ev))

	// Keep the original card in sync so its buttons disappear.
	if err == nil {
		if e := a.RefreshGameMessage(ctx, ev, parts); e != nil {
			a.log.Warn("card refresh after roster lock failed", logx.String("event_id", ev.ID), logx.Err(e))
		}
	}
	return err
}

func (a *Announcer) NotifyCancelled(ctx context.Context, ev game.Event) error {
	if err := a.lim.Wait(ctx); err != nil {
		return err
	}
	set := a.settings()
	msg := tgui.New().
		Title("🚫", "Cancelled: "+gameTitle(ev, set.Deadlines.Location)).
		Build()
	_, err := msg.Send(ctx, a.ad, a.target(ev))

	if err == nil && ev.MessageID != 0 {
		if e := a.RefreshGameMessage(ctx, ev, nil); e != nil {
			a.log.Warn("card refresh after cancel failed", logx.String("event_id", ev.ID), logx.Err(e))
		}
	}
	return err
}
