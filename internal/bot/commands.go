package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"rallybot/internal/game"
	"rallybot/internal/ics"
	"rallybot/internal/schedule"
	kit "rallybot/internal/transport"
	"rallybot/pkg/tgui"
)

type handlerFunc func(ctx context.Context, msg *kit.Message, args []string) error

type command struct {
	name        string
	description string
	usage       string
	adminOnly   bool
	handle      handlerFunc
}

func (b *Bot) commands() []command {
	return []command{
		{name: "start", description: "what this bot does", handle: b.cmdHelp},
		{name: "help", description: "list commands", handle: b.cmdHelp},
		{name: "games", description: "upcoming games", handle: b.cmdGames},
		{name: "schedule", description: "calendar export (ICS)", handle: b.cmdSchedule},
		{name: "settings", description: "current scheduling settings", handle: b.cmdSettings},
		{name: "newgame", description: "one-off game", usage: "/newgame <day> <HH:MM> [courts]", adminOnly: true, handle: b.cmdNewGame},
		{name: "newweekly", description: "weekly game slot", usage: "/newweekly <day> <HH:MM> [courts]", adminOnly: true, handle: b.cmdNewWeekly},
		{name: "weekly", description: "manage weekly slots", usage: "/weekly [on|off|slot|courts|announce] ...", adminOnly: true, handle: b.cmdWeekly},
		{name: "setcourts", description: "change court count", usage: "/setcourts <game#> <courts|+n|-n>", adminOnly: true, handle: b.cmdSetCourts},
		{name: "transfergame", description: "hand a game to another organizer", usage: "/transfergame <game#> <user id>", adminOnly: true, handle: b.cmdTransferGame},
		{name: "cancelgame", description: "cancel a game", usage: "/cancelgame <game#>", adminOnly: true, handle: b.cmdCancelGame},
		{name: "lockroster", description: "lock the roster early", usage: "/lockroster <game#>", adminOnly: true, handle: b.cmdLockRoster},
		{name: "restoregame", description: "reopen a locked roster", usage: "/restoregame <game#>", adminOnly: true, handle: b.cmdRestoreGame},
		{name: "deletegame", description: "hide a game", usage: "/deletegame <game#>", adminOnly: true, handle: b.cmdDeleteGame},
		{name: "undelete", description: "restore a hidden game", usage: "/undelete [game#]", adminOnly: true, handle: b.cmdUndelete},
	}
}

func (b *Bot) reply(ctx context.Context, msg *kit.Message, m tgui.Message) error {
	_, err := m.Send(ctx, b.ad, kit.ChatTarget{ChatID: msg.ChatID})
	return err
}

func (b *Bot) replyText(ctx context.Context, msg *kit.Message, text string) error {
	return b.reply(ctx, msg, tgui.New().Line(text).Build())
}

// ---- informational commands ----

func (b *Bot) cmdHelp(ctx context.Context, msg *kit.Message, _ []string) error {
	admin := b.isAdmin(msg.FromID)
	bld := tgui.New().Title("🏐", "Rally bot").
		Line("Weekly volleyball games: announcements, rosters, deadlines.").
		Blank()
	for _, c := range b.commands() {
		if c.adminOnly && !admin {
			continue
		}
		label := "/" + c.name
		if c.usage != "" {
			label = c.usage
		}
		bld.RawLine(tgui.Code(label) + tgui.Esc(" — "+c.description))
	}
	return b.reply(ctx, msg, bld.Build())
}

func (b *Bot) cmdGames(ctx context.Context, msg *kit.Message, _ []string) error {
	recs, err := b.svc.UpcomingGames(ctx)
	if err != nil {
		return err
	}
	loc := b.settings().Deadlines.Location
	if len(recs) == 0 {
		return b.replyText(ctx, msg, "No upcoming games.")
	}
	bld := tgui.New().Title("🏐", "Upcoming games")
	for i, rec := range recs {
		ev := rec.Event
		parts, err := b.listRoster(ctx, ev.ID)
		if err != nil {
			return err
		}
		bld.RawLine(tgui.Esc(fmt.Sprintf("%d. ", i+1)) +
			tgui.B(gameTitle(ev, loc)) +
			tgui.Esc(fmt.Sprintf(" — %s, %d/%d", statusLabel(ev), game.Headcount(parts), ev.Capacity())))
	}
	return b.reply(ctx, msg, bld.Build())
}

func (b *Bot) listRoster(ctx context.Context, eventID string) ([]game.Participant, error) {
	_, parts, err := b.svc.GameWithRoster(ctx, eventID)
	return parts, err
}

func (b *Bot) cmdSchedule(ctx context.Context, msg *kit.Message, _ []string) error {
	recs, err := b.svc.UpcomingGames(ctx)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return b.replyText(ctx, msg, "Nothing scheduled.")
	}
	set := b.settings()
	events := make([]game.Event, 0, len(recs))
	for _, rec := range recs {
		events = append(events, rec.Event)
	}
	payload, err := ics.Export(events, set.Deadlines.Location)
	if err != nil {
		return err
	}
	m := tgui.New().
		Title("📅", "Calendar export").
		Line("Save as rallybot.ics and import into your calendar:").
		RawLine("<pre>" + tgui.Esc(payload) + "</pre>").
		Build()
	return b.reply(ctx, msg, m)
}

func (b *Bot) cmdSettings(ctx context.Context, msg *kit.Message, _ []string) error {
	set := b.settings()
	dl := set.Deadlines
	m := tgui.New().
		Title("⚙️", "Scheduling settings").
		KV("Timezone", dl.Location.String()).
		KV("Announce", dl.Announce.String()+" before start").
		KV("Cancel deadline", dl.Cancel.String()).
		KV("Reminder", dl.Reminder.String()).
		KV("Default courts", strconv.Itoa(set.DefaultCourts)).
		Build()
	return b.reply(ctx, msg, m)
}

// ---- game creation ----

// parseSlot parses "<day> <HH:MM> [courts]".
func parseSlot(args []string) (time.Weekday, int, int, int, error) {
	if len(args) < 2 {
		return 0, 0, 0, 0, errors.New("expected: <day> <HH:MM> [courts]")
	}
	wd, err := schedule.ParseWeekday(args[0])
	if err != nil {
		return 0, 0, 0, 0, err
	}
	var hour, minute int
	if _, err := fmt.Sscanf(args[1], "%d:%d", &hour, &minute); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("bad time %q, expected HH:MM", args[1])
	}
	courts := 0
	if len(args) >= 3 {
		courts, err = strconv.Atoi(args[2])
		if err != nil || courts < 1 {
			return 0, 0, 0, 0, fmt.Errorf("bad court count %q", args[2])
		}
	}
	return wd, hour, minute, courts, nil
}

func (b *Bot) cmdNewGame(ctx context.Context, msg *kit.Message, args []string) error {
	wd, hour, minute, courts, err := parseSlot(args)
	if err != nil {
		return b.replyText(ctx, msg, err.Error())
	}
	ev, err := b.svc.CreateAdHocGame(ctx, wd, hour, minute, courts, msg.FromID)
	if err != nil {
		return err
	}
	loc := b.settings().Deadlines.Location
	return b.replyText(ctx, msg, "Scheduled: "+gameTitle(ev, loc))
}

func (b *Bot) cmdNewWeekly(ctx context.Context, msg *kit.Message, args []string) error {
	wd, hour, minute, courts, err := parseSlot(args)
	if err != nil {
		return b.replyText(ctx, msg, err.Error())
	}
	sc, err := b.svc.CreateScaffold(ctx, wd, hour, minute, courts, msg.FromID)
	if err != nil {
		return err
	}
	return b.replyText(ctx, msg, fmt.Sprintf("Weekly slot added: %s %02d:%02d, %d court(s).",
		sc.Weekday, sc.Hour, sc.Minute, sc.Courts))
}

// ---- weekly slot management ----

func (b *Bot) cmdWeekly(ctx context.Context, msg *kit.Message, args []string) error {
	scaffolds, err := b.svc.Scaffolds(ctx)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		if len(scaffolds) == 0 {
			return b.replyText(ctx, msg, "No weekly slots. Add one with /newweekly.")
		}
		bld := tgui.New().Title("📋", "Weekly slots")
		for i, sc := range scaffolds {
			state := "on"
			if !sc.Active {
				state = "off"
			}
			line := fmt.Sprintf("%d. %s %02d:%02d — %d court(s), %s", i+1, sc.Weekday, sc.Hour, sc.Minute, sc.Courts, state)
			if sc.AnnounceOverride != "" {
				line += ", announce " + sc.AnnounceOverride
			}
			bld.Line(line)
		}
		return b.reply(ctx, msg, bld.Build())
	}

	pick := func(idxArg string) (game.Scaffold, error) {
		i, err := strconv.Atoi(idxArg)
		if err != nil || i < 1 || i > len(scaffolds) {
			return game.Scaffold{}, fmt.Errorf("no slot #%s, see /weekly", idxArg)
		}
		return scaffolds[i-1], nil
	}

	sub := strings.ToLower(args[0])
	switch sub {
	case "on", "off":
		if len(args) < 2 {
			return b.replyText(ctx, msg, "Expected: /weekly "+sub+" <slot#>")
		}
		sc, err := pick(args[1])
		if err != nil {
			return b.replyText(ctx, msg, err.Error())
		}
		if sc.Active == (sub == "on") {
			return b.replyText(ctx, msg, "Already "+sub+".")
		}
		if _, err := b.svc.ToggleScaffold(ctx, sc.ID); err != nil {
			return err
		}
		return b.replyText(ctx, msg, "Slot switched "+sub+".")
	case "slot":
		if len(args) < 4 {
			return b.replyText(ctx, msg, "Expected: /weekly slot <slot#> <day> <HH:MM>")
		}
		sc, err := pick(args[1])
		if err != nil {
			return b.replyText(ctx, msg, err.Error())
		}
		wd, hour, minute, _, err := parseSlot(args[2:])
		if err != nil {
			return b.replyText(ctx, msg, err.Error())
		}
		if _, err := b.svc.SetScaffoldSlot(ctx, sc.ID, wd, hour, minute); err != nil {
			return err
		}
		return b.replyText(ctx, msg, fmt.Sprintf("Slot moved to %s %02d:%02d.", wd, hour, minute))
	case "courts":
		if len(args) < 3 {
			return b.replyText(ctx, msg, "Expected: /weekly courts <slot#> <n>")
		}
		sc, err := pick(args[1])
		if err != nil {
			return b.replyText(ctx, msg, err.Error())
		}
		n, err := strconv.Atoi(args[2])
		if err != nil || n < 1 {
			return b.replyText(ctx, msg, "Court count must be a positive number.")
		}
		if _, err := b.svc.SetScaffoldCourts(ctx, sc.ID, n); err != nil {
			return err
		}
		return b.replyText(ctx, msg, fmt.Sprintf("Slot now has %d court(s).", n))
	case "announce":
		if len(args) < 3 {
			return b.replyText(ctx, msg, "Expected: /weekly announce <slot#> <offset|default>")
		}
		sc, err := pick(args[1])
		if err != nil {
			return b.replyText(ctx, msg, err.Error())
		}
		notation := strings.Join(args[2:], " ")
		if strings.EqualFold(notation, "default") {
			notation = ""
		}
		if _, err := b.svc.SetScaffoldAnnounceOverride(ctx, sc.ID, notation); err != nil {
			if errors.Is(err, schedule.ErrInvalidNotation) || errors.Is(err, schedule.ErrInvalidTimeOfDay) {
				return b.replyText(ctx, msg, `Bad offset. Use "-1d", "-36h", or "-2d 18:00".`)
			}
			return err
		}
		if notation == "" {
			return b.replyText(ctx, msg, "Slot announce offset reset to default.")
		}
		return b.replyText(ctx, msg, "Slot announce offset set to "+notation+".")
	default:
		return b.replyText(ctx, msg, "Expected: /weekly [on|off|slot|courts|announce] ...")
	}
}

// ---- game administration ----

// pickGame resolves a 1-based index from /games into a live upcoming game.
func (b *Bot) pickGame(ctx context.Context, idxArg string) (game.EventRecord, error) {
	recs, err := b.svc.UpcomingGames(ctx)
	if err != nil {
		return game.EventRecord{}, err
	}
	i, convErr := strconv.Atoi(idxArg)
	if convErr != nil || i < 1 || i > len(recs) {
		return game.EventRecord{}, fmt.Errorf("no game #%s, see /games", idxArg)
	}
	return recs[i-1], nil
}

func (b *Bot) gameAdminCmd(ctx context.Context, msg *kit.Message, args []string, usage string,
	apply func(ctx context.Context, rec game.EventRecord) (string, error)) error {
	if len(args) < 1 {
		return b.replyText(ctx, msg, "Expected: "+usage)
	}
	rec, err := b.pickGame(ctx, args[0])
	if err != nil {
		return b.replyText(ctx, msg, err.Error())
	}
	reply, err := apply(ctx, rec)
	switch {
	case err == nil:
		return b.replyText(ctx, msg, reply)
	case errors.Is(err, game.ErrInvalidTransition):
		return b.replyText(ctx, msg, "That game is in the wrong state for this.")
	case errors.Is(err, game.ErrGameUnavailable):
		return b.replyText(ctx, msg, "That game is no longer available.")
	default:
		return err
	}
}

func (b *Bot) cmdSetCourts(ctx context.Context, msg *kit.Message, args []string) error {
	const usage = "/setcourts <game#> <courts|+n|-n>"
	if len(args) < 2 {
		return b.replyText(ctx, msg, "Expected: "+usage)
	}
	// A signed argument adjusts relative to the current count.
	relative := strings.HasPrefix(args[1], "+") || strings.HasPrefix(args[1], "-")
	n, err := strconv.Atoi(args[1])
	if err != nil || n == 0 || (!relative && n < 1) {
		return b.replyText(ctx, msg, "Court count must be a positive number, or +n/-n to adjust.")
	}
	return b.gameAdminCmd(ctx, msg, args, usage,
		func(ctx context.Context, rec game.EventRecord) (string, error) {
			var updated game.EventRecord
			var err error
			if relative {
				updated, err = b.svc.AdjustCourts(ctx, rec.Event.ID, n)
			} else {
				updated, err = b.svc.SetCourts(ctx, rec.Event.ID, n)
			}
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Now %d court(s), capacity %d.", updated.Event.Courts, updated.Event.Capacity()), nil
		})
}

func (b *Bot) cmdTransferGame(ctx context.Context, msg *kit.Message, args []string) error {
	const usage = "/transfergame <game#> <user id>"
	if len(args) < 2 {
		return b.replyText(ctx, msg, "Expected: "+usage)
	}
	newOwner, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || newOwner <= 0 {
		return b.replyText(ctx, msg, "Expected a numeric Telegram user id.")
	}
	return b.gameAdminCmd(ctx, msg, args, usage,
		func(ctx context.Context, rec game.EventRecord) (string, error) {
			if _, err := b.svc.TransferOwner(ctx, rec.Event.ID, newOwner); err != nil {
				return "", err
			}
			return fmt.Sprintf("Game handed over to user %d.", newOwner), nil
		})
}

func (b *Bot) cmdCancelGame(ctx context.Context, msg *kit.Message, args []string) error {
	loc := b.settings().Deadlines.Location
	return b.gameAdminCmd(ctx, msg, args, "/cancelgame <game#>",
		func(ctx context.Context, rec game.EventRecord) (string, error) {
			cancelled, err := b.svc.Cancel(ctx, rec.Event.ID)
			if err != nil {
				return "", err
			}
			return "Cancelled " + gameTitle(cancelled.Event, loc) + ".", nil
		})
}

func (b *Bot) cmdLockRoster(ctx context.Context, msg *kit.Message, args []string) error {
	return b.gameAdminCmd(ctx, msg, args, "/lockroster <game#>",
		func(ctx context.Context, rec game.EventRecord) (string, error) {
			if _, err := b.svc.Finalize(ctx, rec.Event.ID); err != nil {
				return "", err
			}
			return "Roster locked.", nil
		})
}

func (b *Bot) cmdRestoreGame(ctx context.Context, msg *kit.Message, args []string) error {
	return b.gameAdminCmd(ctx, msg, args, "/restoregame <game#>",
		func(ctx context.Context, rec game.EventRecord) (string, error) {
			if _, err := b.svc.Unfinalize(ctx, rec.Event.ID); err != nil {
				return "", err
			}
			return "Roster reopened; players can join and leave again.", nil
		})
}

func (b *Bot) cmdDeleteGame(ctx context.Context, msg *kit.Message, args []string) error {
	return b.gameAdminCmd(ctx, msg, args, "/deletegame <game#>",
		func(ctx context.Context, rec game.EventRecord) (string, error) {
			if _, err := b.svc.Delete(ctx, rec.Event.ID); err != nil {
				return "", err
			}
			return "Game hidden. Restore it with /undelete.", nil
		})
}

func (b *Bot) cmdUndelete(ctx context.Context, msg *kit.Message, args []string) error {
	recs, err := b.svc.AllUpcoming(ctx)
	if err != nil {
		return err
	}
	var deleted []game.EventRecord
	for _, rec := range recs {
		if rec.Deleted() {
			deleted = append(deleted, rec)
		}
	}
	loc := b.settings().Deadlines.Location

	if len(args) == 0 {
		if len(deleted) == 0 {
			return b.replyText(ctx, msg, "No hidden games.")
		}
		bld := tgui.New().Title("🗑", "Hidden games")
		for i, rec := range deleted {
			bld.Line(fmt.Sprintf("%d. %s (%s)", i+1, gameTitle(rec.Event, loc), statusLabel(rec.Event)))
		}
		bld.Line("Restore with /undelete <game#>.")
		return b.reply(ctx, msg, bld.Build())
	}

	i, convErr := strconv.Atoi(args[0])
	if convErr != nil || i < 1 || i > len(deleted) {
		return b.replyText(ctx, msg, fmt.Sprintf("No hidden game #%s, see /undelete.", args[0]))
	}
	rec, err := b.svc.Undelete(ctx, deleted[i-1].Event.ID)
	if err != nil {
		return err
	}
	return b.replyText(ctx, msg, "Restored "+gameTitle(rec.Event, loc)+" ("+statusLabel(rec.Event)+").")
}
