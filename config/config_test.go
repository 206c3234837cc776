package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		BotToken:           "token",
		TickInterval:       time.Second,
		MaxTicks:           400,
		MinPartyEntrants:   2,
		StartingTokens:     5,
		DailyTokens:        3,
		PayoutDelay:        850 * time.Millisecond,
		MessageEditsPerSec: 1,
		SeasonTimezone:     "UTC",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero tick", func(c *Config) { c.TickInterval = 0 }, true},
		{"zero max ticks", func(c *Config) { c.MaxTicks = 0 }, true},
		{"min entrants above roster", func(c *Config) { c.MinPartyEntrants = 6 }, true},
		{"min entrants zero", func(c *Config) { c.MinPartyEntrants = 0 }, true},
		{"negative daily", func(c *Config) { c.DailyTokens = -1 }, true},
		{"negative delay", func(c *Config) { c.PayoutDelay = -time.Second }, true},
		{"no delay", func(c *Config) { c.PayoutDelay = 0 }, false},
		{"zero edit rate", func(c *Config) { c.MessageEditsPerSec = 0 }, true},
		{"bad timezone", func(c *Config) { c.SeasonTimezone = "Mars/Olympus" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "token")
	t.Setenv("RACE_COOLDOWN", "20s")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PayoutDelay != 850*time.Millisecond || cfg.MinPartyEntrants != 2 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	settings := cfg.RaceSettings()
	if settings.Cooldown != 20*time.Second || settings.MaxTicks != 400 {
		t.Errorf("settings = %+v", settings)
	}
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	if _, err := Load(); err == nil {
		t.Error("Load succeeded without BOT_TOKEN")
	}
}
