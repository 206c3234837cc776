package cogs

import (
	"context"
	"fmt"

	"dice-derby/games/dice_derby"
	"dice-derby/utils"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// Admin handles /derby-admin
type Admin struct {
	engine     *dice_derby.Engine
	dispatcher *dice_derby.Dispatcher
	nextReset  func() string
}

// NewAdmin creates the admin command handler. nextReset may be nil.
func NewAdmin(engine *dice_derby.Engine, dispatcher *dice_derby.Dispatcher, nextReset func() string) *Admin {
	return &Admin{engine: engine, dispatcher: dispatcher, nextReset: nextReset}
}

// Commands returns the admin slash command
func (a *Admin) Commands() []*discordgo.ApplicationCommand {
	perms := utils.PermManageGuild
	return []*discordgo.ApplicationCommand{
		{
			Name:                     "derby-admin",
			Description:              "Dice Derby administration",
			DefaultMemberPermissions: &perms,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "freeze", Description: "Pause point payouts"},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "unfreeze", Description: "Resume point payouts"},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "season-reset", Description: "Clear all season stats now"},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "status", Description: "Show engine status"},
			},
		},
	}
}

// HandleCommand runs an admin subcommand
func (a *Admin) HandleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !utils.HasManageGuild(i) {
		_ = utils.RespondEphemeral(s, i, "You need Manage Server to do that.")
		return
	}
	opts := i.ApplicationCommandData().Options
	if len(opts) == 0 {
		return
	}
	user := utils.InteractionUser(i)
	logger := log.WithFields(log.Fields{"guild_id": i.GuildID, "player_id": user.ID, "action": opts[0].Name})

	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()

	var embed *discordgo.MessageEmbed
	switch opts[0].Name {
	case "freeze":
		a.engine.SetFrozen(true)
		embed = utils.SuccessEmbed("Payouts Frozen", "Races still run, but no points will be sent until you unfreeze.")
	case "unfreeze":
		a.engine.SetFrozen(false)
		embed = utils.SuccessEmbed("Payouts Resumed", "Point payouts are flowing again.")
	case "season-reset":
		if err := a.engine.ResetSeason(ctx); err != nil {
			logger.WithError(err).Error("Manual season reset failed")
			embed = utils.ErrorEmbed("Reset Failed", "Could not clear season stats. Check the logs.")
			break
		}
		embed = utils.SuccessEmbed("Season Reset", "All season stats were cleared. Token balances are untouched.")
	case "status":
		embed = a.status(i.GuildID)
	default:
		return
	}

	logger.Info("Admin command used")
	if err := utils.RespondEmbed(s, i, embed, nil, true); err != nil {
		logger.WithError(err).Warn("Failed to respond to admin command")
	}
}

func (a *Admin) status(guildID string) *discordgo.MessageEmbed {
	frozen := "no"
	if a.engine.Frozen() {
		frozen = "**yes**"
	}
	stats := a.dispatcher.Stats()
	embed := utils.CreateBrandedEmbed("⚙️ Derby Status", "", utils.MutedColor)
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "Active Races", Value: fmt.Sprint(a.engine.ActiveRaces()), Inline: true},
		{Name: "Payouts Frozen", Value: frozen, Inline: true},
		{Name: "Queued Here", Value: fmt.Sprint(a.dispatcher.Pending(guildID)), Inline: true},
		{Name: "Payouts", Value: fmt.Sprintf("%d sent · %d skipped · %d failed", stats.Sent, stats.Skipped, stats.Failed)},
	}
	if a.nextReset != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Next Season Reset", Value: a.nextReset()})
	}
	return embed
}
