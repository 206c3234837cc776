package utils

import (
	"github.com/bwmarrin/discordgo"
)

// CreateActionRow creates an action row with buttons
func CreateActionRow(buttons ...discordgo.MessageComponent) discordgo.MessageComponent {
	return discordgo.ActionsRow{
		Components: buttons,
	}
}

// CreateButton creates a button component
func CreateButton(customID, label string, style discordgo.ButtonStyle, disabled bool, emoji *discordgo.ComponentEmoji) discordgo.MessageComponent {
	button := discordgo.Button{
		CustomID: customID,
		Label:    label,
		Style:    style,
		Disabled: disabled,
	}

	if emoji != nil {
		button.Emoji = emoji
	}

	return button
}

// RespondEmbed answers a command with an embed and optional components
func RespondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: components,
	}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}

// RespondEphemeral answers with a short private notice
func RespondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

// UpdateComponentInteraction updates the message a component belongs to
func UpdateComponentInteraction(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) error {
	response := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
		},
	}

	return s.InteractionRespond(i.Interaction, response)
}

// InteractionUser returns the invoking user in guilds and DMs alike
func InteractionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

// DisplayName prefers the server nickname, then the global name, then the username
func DisplayName(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.Nick != "" {
		return i.Member.Nick
	}
	u := InteractionUser(i)
	if u == nil {
		return "someone"
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// PermManageGuild is the MANAGE_GUILD permission bit
const PermManageGuild int64 = 1 << 5

// HasManageGuild reports whether the invoking member can manage the server
func HasManageGuild(i *discordgo.InteractionCreate) bool {
	if i.Member == nil {
		return false
	}
	return i.Member.Permissions&PermManageGuild != 0
}
