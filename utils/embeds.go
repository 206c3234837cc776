package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// CreateBrandedEmbed creates a basic embed with bot branding
func CreateBrandedEmbed(title, description string, color int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: BotName,
		},
	}
}

// ErrorEmbed is a red embed for refused actions
func ErrorEmbed(title, description string) *discordgo.MessageEmbed {
	return CreateBrandedEmbed("❌ "+title, description, ErrorColor)
}

// SuccessEmbed is a green embed for confirmations
func SuccessEmbed(title, description string) *discordgo.MessageEmbed {
	return CreateBrandedEmbed("✅ "+title, description, SuccessColor)
}

// FormatTokens renders a token amount
func FormatTokens(amount int64) string {
	return fmt.Sprintf("%s %s", FormatNumber(amount), TokenEmoji)
}

// FormatPoints renders an economy payout amount
func FormatPoints(amount int64) string {
	return fmt.Sprintf("%s %s", FormatNumber(amount), PointEmoji)
}

// FormatNumber adds thousands separators
func FormatNumber(num int64) string {
	if num < 0 {
		return "-" + FormatNumber(-num)
	}
	str := strconv.FormatInt(num, 10)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	for i, r := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(r)
	}
	return result.String()
}

// FormatPlace renders a finishing place with a medal for the podium
func FormatPlace(place int) string {
	switch place {
	case 1:
		return "🥇 1st"
	case 2:
		return "🥈 2nd"
	case 3:
		return "🥉 3rd"
	case 0:
		return "—"
	default:
		return fmt.Sprintf("%dth", place)
	}
}

// FormatDuration formats a duration into a human-readable string
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "Ready!"
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		if seconds == 0 {
			seconds = 1
		}
		return fmt.Sprintf("%ds", seconds)
	}
}
