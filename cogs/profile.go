package cogs

import (
	"context"
	"fmt"
	"strings"

	"dice-derby/games/dice_derby"
	"dice-derby/models"
	"dice-derby/utils"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

const leaderboardSize = 10

// Profile handles the token and stats commands
type Profile struct {
	engine *dice_derby.Engine
}

// NewProfile creates the profile command handler
func NewProfile(engine *dice_derby.Engine) *Profile {
	return &Profile{engine: engine}
}

// Commands returns the profile slash commands
func (p *Profile) Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "tokens",
			Description: "Check your race token balance",
		},
		{
			Name:        "daily",
			Description: "Claim your daily race tokens",
		},
		{
			Name:        "racestats",
			Description: "Show season race stats",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Whose stats to show",
					Required:    false,
				},
			},
		},
		{
			Name:        "leaderboard",
			Description: "Top racers of the season",
		},
	}
}

// HandleCommand routes the profile commands
func (p *Profile) HandleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := utils.InteractionUser(i)
	if user == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()

	var (
		embed     *discordgo.MessageEmbed
		ephemeral bool
		err       error
	)
	switch i.ApplicationCommandData().Name {
	case "tokens":
		embed, err = p.tokens(ctx, user.ID)
		ephemeral = true
	case "daily":
		embed, err = p.daily(ctx, user.ID)
		ephemeral = true
	case "racestats":
		target := user
		for _, opt := range i.ApplicationCommandData().Options {
			if opt.Name == "user" {
				if u := opt.UserValue(s); u != nil {
					target = u
				}
			}
		}
		embed, err = p.stats(ctx, target)
	case "leaderboard":
		embed, err = p.leaderboard(ctx)
	default:
		return
	}

	if err != nil {
		respondEntryError(s, i, err)
		return
	}
	if err := utils.RespondEmbed(s, i, embed, nil, ephemeral); err != nil {
		log.WithField("player_id", user.ID).WithError(err).Warn("Failed to respond to profile command")
	}
}

func (p *Profile) tokens(ctx context.Context, playerID string) (*discordgo.MessageEmbed, error) {
	balance, err := p.engine.Tokens(ctx, playerID)
	if err != nil {
		return nil, err
	}
	embed := utils.CreateBrandedEmbed(utils.TokenEmoji+" Race Tokens",
		fmt.Sprintf("You have **%s**.", utils.FormatTokens(balance.Tokens)), utils.BotColor)
	if p.engine.Frozen() {
		embed.Description += "\n⚠️ Point payouts are paused right now."
	}
	return embed, nil
}

func (p *Profile) daily(ctx context.Context, playerID string) (*discordgo.MessageEmbed, error) {
	claim, err := p.engine.ClaimDaily(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return utils.SuccessEmbed("Daily Tokens",
		fmt.Sprintf("You received **%s**.\nBalance: %s\nNext claim <t:%d:R>.",
			utils.FormatTokens(claim.Granted), utils.FormatTokens(claim.Balance), claim.NextClaim.Unix())), nil
}

func (p *Profile) stats(ctx context.Context, user *discordgo.User) (*discordgo.MessageEmbed, error) {
	stats, err := p.engine.Stats(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	unlocked, err := p.engine.Achievements(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	embed := utils.CreateBrandedEmbed("🏇 "+user.Username+"'s Season", "", utils.BotColor)
	best := "none yet"
	if stats.BestFinish > 0 {
		best = utils.FormatPlace(stats.BestFinish)
	}
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "Races", Value: utils.FormatNumber(int64(stats.Races)), Inline: true},
		{Name: "Wins", Value: fmt.Sprintf("%d (%.1f%%)", stats.Wins, stats.WinRate()), Inline: true},
		{Name: "Podiums", Value: utils.FormatNumber(int64(stats.Podiums)), Inline: true},
		{Name: "Points Won", Value: utils.FormatPoints(stats.TotalWon), Inline: true},
		{Name: "Best Finish", Value: best, Inline: true},
		{Name: "Streak", Value: fmt.Sprintf("%d (best %d)", stats.WinStreak, stats.BestWinStreak), Inline: true},
	}

	all := dice_derby.Achievements()
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:  fmt.Sprintf("Achievements %d/%d %s", len(unlocked), len(all), progressBar(len(unlocked), len(all), 10)),
		Value: achievementList(unlocked),
	})
	return embed, nil
}

func achievementList(unlocked []models.UnlockedAchievement) string {
	if len(unlocked) == 0 {
		return "None yet. Enter a race to get started!"
	}
	lines := make([]string, 0, len(unlocked))
	for _, a := range unlocked {
		lines = append(lines, fmt.Sprintf("%s **%s** <t:%d:d>", a.Icon, a.Name, a.UnlockedAt.Unix()))
	}
	return strings.Join(lines, "\n")
}

// progressBar draws done/total as a fixed-width bar
func progressBar(done, total, length int) string {
	filled := 0
	if total > 0 {
		filled = done * length / total
	}
	if filled > length {
		filled = length
	}
	return "`" + strings.Repeat("█", filled) + strings.Repeat("░", length-filled) + "`"
}

func (p *Profile) leaderboard(ctx context.Context) (*discordgo.MessageEmbed, error) {
	top, err := p.engine.Leaderboard(ctx, leaderboardSize)
	if err != nil {
		return nil, err
	}
	embed := utils.CreateBrandedEmbed("🏆 Season Leaderboard", "", utils.WinColor)
	if len(top) == 0 {
		embed.Description = "No races yet this season."
		return embed, nil
	}

	var sb strings.Builder
	for n, st := range top {
		fmt.Fprintf(&sb, "%s <@%s> · %d wins · %s\n", utils.FormatPlace(n+1), st.PlayerID, st.Wins, utils.FormatPoints(st.TotalWon))
	}
	embed.Description = sb.String()
	return embed, nil
}
