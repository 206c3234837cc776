package utils

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"dice-derby/models"

	"github.com/bwmarrin/discordgo"
)

// DefaultEconomyCommand is the command posted for each payout
const DefaultEconomyCommand = "!add-money {user} {amount}"

// EconomyClient credits winnings through a message-based economy bot by posting
// its admin command into a channel the economy bot listens on.
type EconomyClient struct {
	session   *discordgo.Session
	channelID string
	command   string
}

// NewEconomyClient creates an economy client. An empty command uses DefaultEconomyCommand.
func NewEconomyClient(session *discordgo.Session, channelID, command string) *EconomyClient {
	if command == "" {
		command = DefaultEconomyCommand
	}
	return &EconomyClient{session: session, channelID: channelID, command: command}
}

// Credit posts one payout command. The economy bot does no dedup, so this is never retried.
func (c *EconomyClient) Credit(ctx context.Context, task models.PayoutTask) error {
	if c.channelID == "" {
		return errors.New("no economy channel configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.session.ChannelMessageSend(c.channelID, FormatEconomyCommand(c.command, task), discordgo.WithContext(ctx))
	return err
}

// FormatEconomyCommand fills the {user}, {user_id}, {amount}, {guild} and {race} placeholders
func FormatEconomyCommand(command string, task models.PayoutTask) string {
	return strings.NewReplacer(
		"{user}", "<@"+task.PlayerID+">",
		"{user_id}", task.PlayerID,
		"{amount}", strconv.FormatInt(task.Amount, 10),
		"{guild}", task.GuildID,
		"{race}", task.RaceID,
	).Replace(command)
}
