package utils

// Branding
const (
	BotName      = "Dice Derby"
	BotColor     = 0x5865F2
	WinColor     = 0xF1C40F
	ErrorColor   = 0xE74C3C
	SuccessColor = 0x2ECC71
	MutedColor   = 0x95A5A6
)

// Token display
const (
	TokenEmoji = "🎟️"
	PointEmoji = "🪙"
)

// Component custom ID prefixes routed by main
const (
	PartyButtonPrefix = "derby_party:"
)
