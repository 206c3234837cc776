package cogs

import (
	"fmt"
	"runtime/debug"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// Recover logs a panic from an interaction handler. Use with defer.
func Recover(i *discordgo.InteractionCreate) {
	if r := recover(); r != nil {
		fields := log.Fields{
			"component": "panic_recovery",
			"panic":     fmt.Sprintf("%v", r),
			"stack":     string(debug.Stack()),
		}
		if i != nil {
			fields["guild_id"] = i.GuildID
			fields["interaction"] = i.ID
		}
		log.WithFields(fields).Error("Panic in interaction handler, recovered")
	}
}
