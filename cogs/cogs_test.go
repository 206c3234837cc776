package cogs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"dice-derby/games/dice_derby"

	"github.com/bwmarrin/discordgo"
)

func TestPartyButtonID(t *testing.T) {
	tests := []struct {
		action, party, colour string
	}{
		{"join", "abc123", "red"},
		{"start", "abc123", ""},
		{"cancel", "f00", ""},
	}
	for _, tt := range tests {
		id := partyButtonID(tt.action, tt.party, tt.colour)
		action, party, colour, ok := parsePartyButtonID(id)
		if !ok || action != tt.action || party != tt.party || colour != tt.colour {
			t.Errorf("parse(%q) = %q %q %q %v", id, action, party, colour, ok)
		}
	}
}

func TestParsePartyButtonIDRejects(t *testing.T) {
	for _, id := range []string{"", "blackjack_hit", "derby_party:", "derby_party:join", "derby_party::abc"} {
		if _, _, _, ok := parsePartyButtonID(id); ok {
			t.Errorf("parse(%q) accepted", id)
		}
	}
}

func TestThreadName(t *testing.T) {
	if got := ThreadName("Race Results: High Stakes!"); got != "race-results-high-stakes" {
		t.Errorf("ThreadName = %q", got)
	}
	if got := ThreadName("!!!"); got != "race-results" {
		t.Errorf("ThreadName of symbols = %q", got)
	}
	if got := ThreadName(strings.Repeat("derby ", 40)); len(got) > 100 {
		t.Errorf("ThreadName too long: %d", len(got))
	}
}

func TestRejectionText(t *testing.T) {
	cooldown := &dice_derby.EntryRejected{Reason: dice_derby.ErrCooldownActive, RetryAfter: 90 * time.Second}
	if got := rejectionText(cooldown); !strings.Contains(got, "1m 30s") {
		t.Errorf("cooldown text = %q", got)
	}

	wrapped := fmt.Errorf("enter: %w", &dice_derby.EntryRejected{Reason: dice_derby.ErrInsufficientTokens})
	if got := rejectionText(wrapped); !strings.Contains(got, "/daily") {
		t.Errorf("tokens text = %q", got)
	}

	taken := &dice_derby.EntryRejected{Reason: dice_derby.ErrColourTaken, Detail: "blue"}
	if got := rejectionText(taken); !strings.HasSuffix(got, "(blue)") {
		t.Errorf("detail missing: %q", got)
	}

	if got := rejectionText(dice_derby.ErrEngineClosed); !strings.Contains(got, "closing") {
		t.Errorf("closed text = %q", got)
	}
	if got := rejectionText(errors.New("db down")); strings.Contains(got, "db down") {
		t.Errorf("internal error leaked: %q", got)
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		done, total int
		want        string
	}{
		{0, 6, "`░░░░░░`"},
		{3, 6, "`███░░░`"},
		{6, 6, "`██████`"},
		{9, 6, "`██████`"},
		{1, 0, "`░░░░░░`"},
	}
	for _, tt := range tests {
		if got := progressBar(tt.done, tt.total, 6); got != tt.want {
			t.Errorf("progressBar(%d, %d) = %s, want %s", tt.done, tt.total, got, tt.want)
		}
	}
}

func TestLobbyComponents(t *testing.T) {
	snap := dice_derby.PartySnapshot{
		ID:    "p1",
		Host:  dice_derby.Player{ID: "host"},
		Tier:  dice_derby.MustTier(dice_derby.TierStandard),
		State: dice_derby.StateLobby,
		Entrants: []dice_derby.Entrant{
			{Player: dice_derby.Player{ID: "host"}, Colour: dice_derby.Blue},
		},
	}

	rows := lobbyComponents(snap)
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	joins := rows[0].(discordgo.ActionsRow).Components
	if len(joins) != len(dice_derby.Colours) {
		t.Fatalf("join buttons = %d", len(joins))
	}
	for n, c := range joins {
		b := c.(discordgo.Button)
		wantDisabled := dice_derby.Colours[n] == dice_derby.Blue
		if b.Disabled != wantDisabled {
			t.Errorf("%s disabled = %v", b.Label, b.Disabled)
		}
	}

	snap.State = dice_derby.StateCancelled
	for _, row := range lobbyComponents(snap) {
		for _, c := range row.(discordgo.ActionsRow).Components {
			if !c.(discordgo.Button).Disabled {
				t.Errorf("button %s still enabled after cancel", c.(discordgo.Button).CustomID)
			}
		}
	}
}

func TestLobbyEmbedTitle(t *testing.T) {
	snap := dice_derby.PartySnapshot{
		Host:  dice_derby.Player{ID: "host"},
		Tier:  dice_derby.MustTier(dice_derby.TierHigh),
		State: dice_derby.StateCancelled,
	}
	embed := lobbyEmbed(snap, 2)
	if !strings.Contains(embed.Title, "Cancelled") {
		t.Errorf("title = %q", embed.Title)
	}
	if !strings.Contains(embed.Description, "*open*") {
		t.Errorf("open colours missing: %q", embed.Description)
	}
}

func TestRecoverSwallowsPanic(t *testing.T) {
	func() {
		defer Recover(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{GuildID: "g"}})
		panic("boom")
	}()
}
