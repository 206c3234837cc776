package dice_derby

import (
	"context"

	"dice-derby/models"
)

// Store is the persistence the engine needs. Update functions run as one
// read-modify-write; if fn returns an error nothing is written and the error is returned.
type Store interface {
	GetTokens(ctx context.Context, playerID string) (models.TokenBalance, error)
	UpdateTokens(ctx context.Context, playerID string, fn func(*models.TokenBalance) error) (models.TokenBalance, error)
	GetStats(ctx context.Context, playerID string) (models.PlayerStats, error)
	UpdateStats(ctx context.Context, playerID string, fn func(*models.PlayerStats) error) (models.PlayerStats, error)
	TopStats(ctx context.Context, limit int) ([]models.PlayerStats, error)
	ResetSeason(ctx context.Context) error
}

// Messenger renders race views somewhere players can see them. Errors are
// reported to the caller but never affect a race.
type Messenger interface {
	Post(ctx context.Context, channelID string, v View) (messageID string, err error)
	Edit(ctx context.Context, channelID, messageID string, v View) error
	StartThread(ctx context.Context, channelID, messageID, name string) (threadID string, err error)
}

// AuditSink keeps a one-way record of seeds and results
type AuditSink interface {
	Record(ctx context.Context, rec models.AuditRecord) error
}

// Crediter pays out to the external economy. Calls are not idempotent.
type Crediter interface {
	Credit(ctx context.Context, task models.PayoutTask) error
}

// CrediterFunc adapts a function to Crediter
type CrediterFunc func(ctx context.Context, task models.PayoutTask) error

func (f CrediterFunc) Credit(ctx context.Context, task models.PayoutTask) error {
	return f(ctx, task)
}

// Venue is where a race is shown and which guild pays out
type Venue struct {
	GuildID   string
	ChannelID string
}

// Player identifies an entrant
type Player struct {
	ID   string
	Name string
}

// Mode distinguishes solo from party races
type Mode string

const (
	ModeSolo  Mode = "solo"
	ModeParty Mode = "party"
)

// ViewKind says what a View is showing
type ViewKind string

const (
	ViewRace      ViewKind = "race"
	ViewResult    ViewKind = "result"
	ViewFailed    ViewKind = "failed"
	ViewCancelled ViewKind = "cancelled"
)

// View is everything a messenger needs to render one frame
type View struct {
	Kind       ViewKind
	Mode       Mode
	Venue      Venue
	Race       *RaceSnapshot
	Party      *PartySnapshot
	Settlement *Settlement
	Entrants   []Entrant
	Note       string
}

type nopMessenger struct{}

func (nopMessenger) Post(context.Context, string, View) (string, error) { return "", nil }
func (nopMessenger) Edit(context.Context, string, string, View) error   { return nil }
func (nopMessenger) StartThread(context.Context, string, string, string) (string, error) {
	return "", nil
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, models.AuditRecord) error { return nil }
