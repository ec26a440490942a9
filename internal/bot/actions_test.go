package bot

import (
	"strings"
	"testing"
	"time"

	"rallybot/internal/game"
)

func TestActionDataRoundTrip(t *testing.T) {
	t.Parallel()

	kinds := []ActionKind{ActionJoin, ActionLeave, ActionGuestPlus, ActionGuestMinus}
	for _, k := range kinds {
		data := actionData(k, "ev-123")
		if len(data) > 64 {
			t.Fatalf("callback data %q exceeds Telegram's 64-byte limit", data)
		}
		got, id := parseAction(data)
		if got != k || id != "ev-123" {
			t.Fatalf("parseAction(%q) = (%v, %q), want (%v, %q)", data, got, id, k, "ev-123")
		}
	}
}

func TestParseActionRejectsForeignData(t *testing.T) {
	t.Parallel()

	cases := []string{
		"",
		"otherbot:join:ev-1",
		"game:teleport:ev-1",
		"game",
		"join:ev-1",
	}
	for _, data := range cases {
		if k, _ := parseAction(data); k != ActionUnknown {
			t.Fatalf("parseAction(%q) = %v, want ActionUnknown", data, k)
		}
	}
}

func TestSplitCommand(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in       string
		wantName string
		wantArgs []string
	}{
		{"/games", "games", nil},
		{"/Games", "games", nil},
		{"/newweekly wed 19:30 2", "newweekly", []string{"wed", "19:30", "2"}},
		{"/games@rallybot", "games", nil},
		{"  /help  ", "help", nil},
		{"hello there", "", nil},
		{"/", "", nil},
	}
	for _, tc := range cases {
		name, args := splitCommand(tc.in)
		if name != tc.wantName {
			t.Fatalf("splitCommand(%q) name = %q, want %q", tc.in, name, tc.wantName)
		}
		if len(args) != len(tc.wantArgs) {
			t.Fatalf("splitCommand(%q) args = %v, want %v", tc.in, args, tc.wantArgs)
		}
		for i := range args {
			if args[i] != tc.wantArgs[i] {
				t.Fatalf("splitCommand(%q) args = %v, want %v", tc.in, args, tc.wantArgs)
			}
		}
	}
}

func TestParseSlot(t *testing.T) {
	t.Parallel()

	wd, h, m, courts, err := parseSlot([]string{"wed", "19:30", "2"})
	if err != nil {
		t.Fatalf("parseSlot: %v", err)
	}
	if wd != time.Wednesday || h != 19 || m != 30 || courts != 2 {
		t.Fatalf("parseSlot = (%v, %d, %d, %d)", wd, h, m, courts)
	}

	if _, _, _, _, err := parseSlot([]string{"wed"}); err == nil {
		t.Fatalf("want error for missing time")
	}
	if _, _, _, _, err := parseSlot([]string{"someday", "19:30"}); err == nil {
		t.Fatalf("want error for bad weekday")
	}
	if _, _, _, _, err := parseSlot([]string{"wed", "late"}); err == nil {
		t.Fatalf("want error for bad time")
	}
	if _, _, _, _, err := parseSlot([]string{"wed", "19:30", "zero"}); err == nil {
		t.Fatalf("want error for bad court count")
	}
}

func TestGameCardRendering(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 15, 18, 30, 0, 0, time.UTC)
	ev := game.Event{ID: "ev-1", StartAt: start, Courts: 1, Status: game.StatusAnnounced}
	parts := []game.Participant{
		{UserID: 1, Username: "ana"},
		{UserID: 2, Username: "bo", Guests: 2},
	}

	msg := gameCard(ev, parts, time.UTC)
	if !strings.Contains(msg.Text, "Wed, 15 Jan 18:30") {
		t.Fatalf("card missing start time:\n%s", msg.Text)
	}
	if !strings.Contains(msg.Text, "4 / 12") {
		t.Fatalf("card headcount wrong (2 players + 2 guests of 12):\n%s", msg.Text)
	}
	if !strings.Contains(msg.Text, "+2") {
		t.Fatalf("card missing guest marker:\n%s", msg.Text)
	}
	if msg.Opt == nil || msg.Opt.ReplyMarkupAdapter == nil {
		t.Fatalf("open game card must carry the join keyboard")
	}

	// Locked and cancelled cards drop the keyboard.
	for _, st := range []game.Status{game.StatusFinalized, game.StatusCancelled} {
		ev.Status = st
		if m := gameCard(ev, parts, time.UTC); m.Opt.ReplyMarkupAdapter != nil {
			t.Fatalf("%s card must not carry buttons", st)
		}
	}
}
