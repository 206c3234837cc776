package cogs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dice-derby/games/dice_derby"
	"dice-derby/utils"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

const interactionTimeout = 10 * time.Second

// Derby handles the race commands and lobby buttons
type Derby struct {
	engine      *dice_derby.Engine
	minEntrants int
}

// NewDerby creates the race command handler
func NewDerby(engine *dice_derby.Engine, minEntrants int) *Derby {
	return &Derby{engine: engine, minEntrants: minEntrants}
}

func tierChoices() []*discordgo.ApplicationCommandOptionChoice {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(dice_derby.TierOrder))
	for _, key := range dice_derby.TierOrder {
		t := dice_derby.MustTier(key)
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  fmt.Sprintf("%s (%d tokens, 1st pays %d)", t.Name, t.Cost, t.Payout(1)),
			Value: string(key),
		})
	}
	return choices
}

func colourChoices() []*discordgo.ApplicationCommandOptionChoice {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(dice_derby.Colours))
	for _, c := range dice_derby.Colours {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  c.Icon() + " " + c.Title(),
			Value: string(c),
		})
	}
	return choices
}

// Commands returns the race slash commands
func (d *Derby) Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "race",
			Description: "Start a solo dice race and back a colour",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "colour",
					Description: "The colour you're backing",
					Required:    true,
					Choices:     colourChoices(),
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "tier",
					Description: "Stakes for this race",
					Required:    false,
					Choices:     tierChoices(),
				},
			},
		},
		{
			Name:        "party",
			Description: "Open a party race lobby for up to five riders",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "tier",
					Description: "Stakes for this race",
					Required:    false,
					Choices:     tierChoices(),
				},
			},
		},
	}
}

// HandleCommand routes /race and /party
func (d *Derby) HandleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.ApplicationCommandData().Name {
	case "race":
		d.handleRace(s, i)
	case "party":
		d.handleParty(s, i)
	}
}

func optionString(i *discordgo.InteractionCreate, name, fallback string) string {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return fallback
}

func (d *Derby) handleRace(s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := utils.InteractionUser(i)
	if user == nil || i.GuildID == "" {
		_ = utils.RespondEphemeral(s, i, "Races can only be run inside a server.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()

	colour := optionString(i, "colour", "")
	tier := optionString(i, "tier", string(dice_derby.TierStandard))
	player := dice_derby.Player{ID: user.ID, Name: utils.DisplayName(i)}
	venue := dice_derby.Venue{GuildID: i.GuildID, ChannelID: i.ChannelID}

	h, err := d.engine.StartSoloRace(ctx, venue, player, colour, tier)
	if err != nil {
		respondEntryError(s, i, err)
		return
	}

	c, _ := dice_derby.LookupColour(colour)
	embed := utils.SuccessEmbed("You're In!", fmt.Sprintf("You're backing %s **%s** in a **%s** race. %s spent.\nWatch the board below!",
		c.Icon(), c.Title(), h.Tier.Name, utils.FormatTokens(h.Tier.Cost)))
	embed.Footer.Text = fmt.Sprintf("%s · race %s", utils.BotName, h.ID)
	if err := utils.RespondEmbed(s, i, embed, nil, true); err != nil {
		log.WithError(err).Warn("Failed to confirm race entry")
	}
}

func (d *Derby) handleParty(s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := utils.InteractionUser(i)
	if user == nil || i.GuildID == "" {
		_ = utils.RespondEphemeral(s, i, "Party races can only be run inside a server.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()

	tier := optionString(i, "tier", string(dice_derby.TierStandard))
	host := dice_derby.Player{ID: user.ID, Name: utils.DisplayName(i)}
	venue := dice_derby.Venue{GuildID: i.GuildID, ChannelID: i.ChannelID}

	party, err := d.engine.CreatePartyLobby(ctx, venue, host, tier)
	if err != nil {
		respondEntryError(s, i, err)
		return
	}

	if err := utils.RespondEmbed(s, i, lobbyEmbed(party, d.minEntrants), lobbyComponents(party), false); err != nil {
		log.WithFields(log.Fields{"party_id": party.ID}).WithError(err).Warn("Failed to post party lobby")
	}
}

// HandleComponent routes the lobby buttons
func (d *Derby) HandleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	action, partyID, colour, ok := parsePartyButtonID(i.MessageComponentData().CustomID)
	if !ok {
		return
	}
	user := utils.InteractionUser(i)
	if user == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()

	switch action {
	case "join":
		party, err := d.engine.JoinParty(ctx, partyID, dice_derby.Player{ID: user.ID, Name: utils.DisplayName(i)}, colour)
		if err != nil {
			respondEntryError(s, i, err)
			return
		}
		d.updateLobby(s, i, party)

	case "start":
		party, err := d.engine.Party(partyID)
		if err != nil {
			respondEntryError(s, i, err)
			return
		}
		if party.Host.ID != user.ID {
			_ = utils.RespondEphemeral(s, i, "Only the host can start this race.")
			return
		}
		if _, err := d.engine.StartPartyRace(ctx, partyID); err != nil {
			respondEntryError(s, i, err)
			return
		}
		if party, err = d.engine.Party(partyID); err == nil {
			d.updateLobby(s, i, party)
		} else {
			_ = utils.RespondEphemeral(s, i, "The race is off!")
		}

	case "cancel":
		party, err := d.engine.Party(partyID)
		if err != nil {
			respondEntryError(s, i, err)
			return
		}
		if party.Host.ID != user.ID && !utils.HasManageGuild(i) {
			_ = utils.RespondEphemeral(s, i, "Only the host can cancel this lobby.")
			return
		}
		if err := d.engine.CancelParty(ctx, partyID, "cancelled by "+user.ID); err != nil {
			respondEntryError(s, i, err)
			return
		}
		party.State = dice_derby.StateCancelled
		d.updateLobby(s, i, party)
	}
}

func (d *Derby) updateLobby(s *discordgo.Session, i *discordgo.InteractionCreate, party dice_derby.PartySnapshot) {
	if err := utils.UpdateComponentInteraction(s, i, lobbyEmbed(party, d.minEntrants), lobbyComponents(party)); err != nil {
		log.WithFields(log.Fields{"party_id": party.ID}).WithError(err).Warn("Failed to update party lobby")
	}
}

// rejectionText explains an entry refusal to the player
func rejectionText(err error) string {
	var rej *dice_derby.EntryRejected
	if !errors.As(err, &rej) {
		if errors.Is(err, dice_derby.ErrEngineClosed) {
			return "The track is closing for maintenance. Try again in a minute."
		}
		return "Something went wrong on our end. Your tokens are safe."
	}

	msg := ""
	switch {
	case errors.Is(rej, dice_derby.ErrInsufficientTokens):
		msg = "You don't have enough tokens. Use `/daily` to top up."
	case errors.Is(rej, dice_derby.ErrCooldownActive):
		msg = fmt.Sprintf("Slow down! You can race again in %s.", utils.FormatDuration(rej.RetryAfter))
	case errors.Is(rej, dice_derby.ErrDailyNotReady):
		msg = fmt.Sprintf("You've already claimed today's tokens. Come back in %s.", utils.FormatDuration(rej.RetryAfter))
	case errors.Is(rej, dice_derby.ErrAlreadyRacing):
		msg = "You're already in a race or lobby."
	case errors.Is(rej, dice_derby.ErrLobbyFull):
		msg = "That lobby is full."
	case errors.Is(rej, dice_derby.ErrColourTaken):
		msg = "That colour is already taken."
	case errors.Is(rej, dice_derby.ErrPartyNotFound), errors.Is(rej, dice_derby.ErrLobbyClosed):
		msg = "That lobby isn't open any more."
	case errors.Is(rej, dice_derby.ErrNotEnoughEntrants):
		msg = "Not enough riders yet."
	default:
		msg = "You can't enter that race."
	}
	if rej.Detail != "" {
		msg += " (" + rej.Detail + ")"
	}
	return msg
}

func respondEntryError(s *discordgo.Session, i *discordgo.InteractionCreate, err error) {
	if !dice_derby.IsEntryRejected(err) {
		log.WithField("user_id", utils.InteractionUser(i).ID).WithError(err).Error("Race command failed")
	}
	if err := utils.RespondEphemeral(s, i, rejectionText(err)); err != nil {
		log.WithError(err).Warn("Failed to send rejection")
	}
}
