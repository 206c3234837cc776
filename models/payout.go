package models

import "time"

// PayoutTask is a pending credit to the external economy. It only ever lives in memory.
type PayoutTask struct {
	RaceID     string    `json:"race_id"`
	GuildID    string    `json:"guild_id"`
	PlayerID   string    `json:"player_id"`
	Amount     int64     `json:"amount"`
	EnqueuedAt time.Time `json:"enqueued_at,omitempty"`
}

// Audit record kinds
const (
	AuditRaceStart  = "race_start"
	AuditRaceFinish = "race_finish"
	AuditRaceFailed = "race_failed"
)

// AuditParticipant is one entrant as seen at race start
type AuditParticipant struct {
	PlayerID   string `json:"player_id"`
	Competitor string `json:"competitor"`
	WinStreak  int    `json:"win_streak"`
}

// AuditPlacement is one line of the final order
type AuditPlacement struct {
	Competitor string `json:"competitor"`
	Place      int    `json:"place"`
	FinishTick int    `json:"finish_tick"`
}

// AuditRecord is written once when a race starts and once when it ends or fails
type AuditRecord struct {
	Kind         string             `json:"kind"`
	RaceID       string             `json:"race_id"`
	Seed         uint32             `json:"seed"`
	Tier         string             `json:"tier"`
	Mode         string             `json:"mode"`
	GuildID      string             `json:"guild_id"`
	MaxTicks     int                `json:"max_ticks,omitempty"`
	Participants []AuditParticipant `json:"participants,omitempty"`
	Placements   []AuditPlacement   `json:"placements,omitempty"`
	Payouts      []PayoutTask       `json:"payouts,omitempty"`
	PhotoFinish  bool               `json:"photo_finish,omitempty"`
	Frozen       bool               `json:"frozen,omitempty"`
	Error        string             `json:"error,omitempty"`
	At           time.Time          `json:"at"`
}
