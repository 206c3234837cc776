package cogs

import (
	"fmt"
	"strings"

	"dice-derby/games/dice_derby"
	"dice-derby/utils"

	"github.com/bwmarrin/discordgo"
)

// RenderView turns an engine view into an embed
func RenderView(v dice_derby.View) *discordgo.MessageEmbed {
	switch v.Kind {
	case dice_derby.ViewResult:
		return resultEmbed(v)
	case dice_derby.ViewFailed:
		embed := utils.ErrorEmbed("Race Abandoned", v.Note)
		if v.Race != nil {
			embed.Description += "\n\n" + trackDisplay(*v.Race)
		}
		return embed
	case dice_derby.ViewCancelled:
		return utils.CreateBrandedEmbed("🚫 Lobby Closed", v.Note, utils.MutedColor)
	default:
		return raceEmbed(v)
	}
}

func raceEmbed(v dice_derby.View) *discordgo.MessageEmbed {
	if v.Race == nil {
		return utils.CreateBrandedEmbed("🎲 Dice Derby", "Lining up...", utils.BotColor)
	}
	snap := *v.Race
	desc := fmt.Sprintf("**%s**\n\n%s", snap.Commentary, trackDisplay(snap))
	embed := utils.CreateBrandedEmbed(fmt.Sprintf("🎲 Dice Derby · %s", snap.Tier.Name), desc, utils.BotColor)
	embed.Footer.Text = fmt.Sprintf("%s · tick %d · seed %d", utils.BotName, snap.Tick, snap.Seed)
	return embed
}

func trackDisplay(snap dice_derby.RaceSnapshot) string {
	rows := make([]string, 0, len(snap.Competitors))
	for _, c := range snap.Competitors {
		pos := c.Position
		if pos < 0 {
			pos = 0
		}
		if pos > dice_derby.TrackLength-1 {
			pos = dice_derby.TrackLength - 1
		}
		progress := strings.Repeat("=", pos)
		remain := strings.Repeat("-", dice_derby.TrackLength-1-pos)

		tag := ""
		switch {
		case c.Finished:
			tag = " ✅"
		case c.Event == dice_derby.EventBoost:
			tag = " 💨"
		case c.Event == dice_derby.EventStall:
			tag = " 🐢"
		}
		rider := ""
		if c.PlayerID != "" {
			rider = fmt.Sprintf(" <@%s>", c.PlayerID)
		}
		rows = append(rows, fmt.Sprintf("%s `[%s>%s]` 🏁%s%s", c.Colour.Icon(), progress, remain, tag, rider))
	}
	return strings.Join(rows, "\n")
}

func resultEmbed(v dice_derby.View) *discordgo.MessageEmbed {
	s := v.Settlement
	if s == nil || len(s.Result.Placements) == 0 {
		return raceEmbed(v)
	}
	winner := s.Result.Winner()

	var b strings.Builder
	if v.Race != nil && v.Race.Commentary != "" {
		b.WriteString("**" + v.Race.Commentary + "**\n\n")
	}
	b.WriteString("**Final Placements:**\n")
	for _, p := range s.Result.Placements {
		fmt.Fprintf(&b, "%s %s **%s** (tick %d)\n", utils.FormatPlace(p.Place), p.Colour.Icon(), p.Colour.Title(), p.FinishTick)
	}

	if len(s.Outcomes) > 0 {
		b.WriteString("\n**Riders:**\n")
		for _, o := range s.Outcomes {
			line := fmt.Sprintf("<@%s> on %s finished %s", o.ID, o.Colour.Title(), utils.FormatPlace(o.Place))
			if o.Payout > 0 {
				line += fmt.Sprintf(" and won **%s**", utils.FormatPoints(o.Payout))
			}
			if o.Stats.WinStreak > 1 {
				line += fmt.Sprintf(" · 🔥 %d streak", o.Stats.WinStreak)
			}
			b.WriteString(line + "\n")
			for _, a := range o.Unlocked {
				fmt.Fprintf(&b, "  %s Unlocked **%s** (+%s)\n", a.Icon, a.Name, utils.FormatTokens(a.TokenReward))
			}
		}
	}

	if s.Frozen {
		b.WriteString("\n⚠️ Payouts are frozen. Winnings were recorded but not credited.")
	}

	title := fmt.Sprintf("🏁 Race Finished: %s Wins! 🏁", winner.Title())
	if s.Result.PhotoFinish {
		title = fmt.Sprintf("📸 Photo Finish: %s Wins! 📸", winner.Title())
	}
	embed := utils.CreateBrandedEmbed(title, b.String(), utils.WinColor)
	embed.Footer.Text = fmt.Sprintf("%s · %s · race %s · seed %d", utils.BotName, s.Tier.Name, s.RaceID, s.Seed)
	return embed
}

// lobbyEmbed shows who is riding which colour
func lobbyEmbed(p dice_derby.PartySnapshot, minEntrants int) *discordgo.MessageEmbed {
	var b strings.Builder
	fmt.Fprintf(&b, "<@%s> opened a **%s** party race. Entry costs %s.\n\n", p.Host.ID, p.Tier.Name, utils.FormatTokens(p.Tier.Cost))
	for _, c := range dice_derby.Colours {
		if en, ok := p.Taken(c); ok {
			fmt.Fprintf(&b, "%s **%s**: <@%s>\n", c.Icon(), c.Title(), en.ID)
		} else {
			fmt.Fprintf(&b, "%s **%s**: *open*\n", c.Icon(), c.Title())
		}
	}
	fmt.Fprintf(&b, "\n1st pays %s, 2nd %s, 3rd %s.",
		utils.FormatPoints(p.Tier.Payout(1)), utils.FormatPoints(p.Tier.Payout(2)), utils.FormatPoints(p.Tier.Payout(3)))

	title, color := "🎉 Party Race Lobby", utils.BotColor
	switch p.State {
	case dice_derby.StateRunning, dice_derby.StateFinalized:
		title, color = "🎲 Party Race Underway", utils.WinColor
	case dice_derby.StateCancelled:
		title, color = "🚫 Party Race Cancelled", utils.MutedColor
	}
	embed := utils.CreateBrandedEmbed(title, b.String(), color)
	if p.State == dice_derby.StateLobby {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Closes",
			Value: fmt.Sprintf("<t:%d:R>", p.ExpiresAt.Unix()),
		})
		embed.Footer.Text = fmt.Sprintf("%s · %d/%d riders · at least %d needed", utils.BotName, len(p.Entrants), len(dice_derby.Colours), minEntrants)
	}
	return embed
}

// lobbyComponents renders one join button per colour plus the host controls
func lobbyComponents(p dice_derby.PartySnapshot) []discordgo.MessageComponent {
	closed := p.State != dice_derby.StateLobby

	colours := make([]discordgo.MessageComponent, 0, len(dice_derby.Colours))
	for _, c := range dice_derby.Colours {
		_, taken := p.Taken(c)
		colours = append(colours, utils.CreateButton(
			partyButtonID("join", p.ID, string(c)),
			c.Title(),
			discordgo.SecondaryButton,
			closed || taken,
			&discordgo.ComponentEmoji{Name: c.Icon()},
		))
	}

	controls := utils.CreateActionRow(
		utils.CreateButton(partyButtonID("start", p.ID, ""), "Start Race", discordgo.SuccessButton, closed, &discordgo.ComponentEmoji{Name: "🏁"}),
		utils.CreateButton(partyButtonID("cancel", p.ID, ""), "Cancel", discordgo.DangerButton, closed, nil),
	)

	return []discordgo.MessageComponent{utils.CreateActionRow(colours...), controls}
}

func partyButtonID(action, partyID, colour string) string {
	id := utils.PartyButtonPrefix + action + ":" + partyID
	if colour != "" {
		id += ":" + colour
	}
	return id
}

// parsePartyButtonID splits derby_party:<action>:<party>[:<colour>]
func parsePartyButtonID(customID string) (action, partyID, colour string, ok bool) {
	rest, found := strings.CutPrefix(customID, utils.PartyButtonPrefix)
	if !found {
		return "", "", "", false
	}
	parts := strings.Split(rest, ":")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	action, partyID = parts[0], parts[1]
	if len(parts) > 2 {
		colour = parts[2]
	}
	return action, partyID, colour, true
}
