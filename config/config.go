// Package config loads the bot's settings from environment variables.
package config

import (
	"fmt"
	"time"

	"dice-derby/games/dice_derby"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every setting the bot reads at startup
type Config struct {
	// --- Discord ---
	BotToken string `envconfig:"BOT_TOKEN" required:"true"`
	// Register commands in one guild for instant updates; empty registers globally
	GuildID string `envconfig:"DISCORD_GUILD_ID"`

	// --- Storage ---
	// Empty runs on the in-memory store
	DatabaseURL   string        `envconfig:"DATABASE_URL"`
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	AuditTTL      time.Duration `envconfig:"AUDIT_TTL" default:"720h"`
	StatsCacheTTL time.Duration `envconfig:"STATS_CACHE_TTL" default:"30s"`

	// --- Application ---
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// --- Races ---
	TickInterval       time.Duration `envconfig:"RACE_TICK_INTERVAL" default:"1400ms"`
	MaxTicks           int           `envconfig:"RACE_MAX_TICKS" default:"400"`
	RaceCooldown       time.Duration `envconfig:"RACE_COOLDOWN" default:"15s"`
	LobbyTimeout       time.Duration `envconfig:"PARTY_LOBBY_TIMEOUT" default:"2m"`
	MinPartyEntrants   int           `envconfig:"PARTY_MIN_ENTRANTS" default:"2"`
	MessageEditsPerSec float64       `envconfig:"MESSAGE_EDITS_PER_SECOND" default:"1"`

	// --- Tokens ---
	StartingTokens int64         `envconfig:"STARTING_TOKENS" default:"5"`
	DailyTokens    int64         `envconfig:"DAILY_TOKENS" default:"3"`
	DailyCooldown  time.Duration `envconfig:"DAILY_COOLDOWN" default:"24h"`

	// --- Payouts ---
	PayoutDelay      time.Duration `envconfig:"PAYOUT_DELAY" default:"850ms"`
	PayoutsFrozen    bool          `envconfig:"PAYOUTS_FROZEN" default:"false"`
	EconomyChannelID string        `envconfig:"ECONOMY_CHANNEL_ID"`
	EconomyCommand   string        `envconfig:"ECONOMY_COMMAND" default:"!add-money {user} {amount}"`

	// --- Seasons ---
	SeasonResetCron string `envconfig:"SEASON_RESET_CRON" default:"0 0 1 * *"`
	SeasonTimezone  string `envconfig:"SEASON_TIMEZONE" default:"UTC"`
}

// Validate rejects settings the bot can't run with
func (c *Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("RACE_TICK_INTERVAL must be > 0")
	}
	if c.MaxTicks <= 0 {
		return fmt.Errorf("RACE_MAX_TICKS must be > 0")
	}
	if c.MinPartyEntrants < 1 || c.MinPartyEntrants > len(dice_derby.Colours) {
		return fmt.Errorf("PARTY_MIN_ENTRANTS must be between 1 and %d", len(dice_derby.Colours))
	}
	if c.StartingTokens < 0 || c.DailyTokens < 0 {
		return fmt.Errorf("token amounts can't be negative")
	}
	if c.PayoutDelay < 0 {
		return fmt.Errorf("PAYOUT_DELAY can't be negative")
	}
	if c.MessageEditsPerSec <= 0 {
		return fmt.Errorf("MESSAGE_EDITS_PER_SECOND must be > 0")
	}
	if _, err := time.LoadLocation(c.SeasonTimezone); err != nil {
		return fmt.Errorf("SEASON_TIMEZONE: %w", err)
	}
	return nil
}

// RaceSettings maps the config onto engine settings
func (c *Config) RaceSettings() dice_derby.Settings {
	return dice_derby.Settings{
		TickInterval:     c.TickInterval,
		MaxTicks:         c.MaxTicks,
		Cooldown:         c.RaceCooldown,
		LobbyTimeout:     c.LobbyTimeout,
		MinPartyEntrants: c.MinPartyEntrants,
		DailyTokens:      c.DailyTokens,
		DailyCooldown:    c.DailyCooldown,
	}
}

// Load reads environment variables into a Config
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
