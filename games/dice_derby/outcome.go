package dice_derby

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dice-derby/models"

	log "github.com/sirupsen/logrus"
)

// Entrant is a player riding a competitor
type Entrant struct {
	Player
	Colour Colour
}

// EntrantOutcome is what one entrant got out of a race
type EntrantOutcome struct {
	Entrant
	Place       int
	Payout      int64
	Unlocked    []models.Achievement
	BonusTokens int64
	Stats       models.PlayerStats
}

// Settlement is the complete outcome of a finalized race
type Settlement struct {
	RaceID   string
	Seed     uint32
	Tier     Tier
	Mode     Mode
	Venue    Venue
	Result   RaceResult
	Outcomes []EntrantOutcome
	Payouts  []models.PayoutTask
	Frozen   bool
}

// RaceInfo identifies the race being settled
type RaceInfo struct {
	ID    string
	Seed  uint32
	Tier  Tier
	Mode  Mode
	Venue Venue
}

// OutcomeEngine turns a result into payouts, stats and achievements
type OutcomeEngine struct {
	store  Store
	freeze *Freeze
	now    func() time.Time
}

// NewOutcomeEngine creates an outcome engine
func NewOutcomeEngine(store Store, freeze *Freeze) *OutcomeEngine {
	if freeze == nil {
		freeze = &Freeze{}
	}
	return &OutcomeEngine{store: store, freeze: freeze, now: time.Now}
}

// Settle records the race for every entrant and returns the payouts to send.
// Nothing is sent from here; the caller enqueues Payouts after Settle returns.
// A store failure for one entrant does not stop the others and is returned joined.
func (o *OutcomeEngine) Settle(ctx context.Context, race RaceInfo, result RaceResult, entrants []Entrant) (*Settlement, error) {
	settlement := &Settlement{
		RaceID: race.ID,
		Seed:   race.Seed,
		Tier:   race.Tier,
		Mode:   race.Mode,
		Venue:  race.Venue,
		Result: result,
		Frozen: o.freeze.Frozen(),
	}

	var errs []error
	for _, entrant := range entrants {
		place := result.PlaceOf(entrant.Colour)
		payout := race.Tier.Payout(place)

		outcome := EntrantOutcome{Entrant: entrant, Place: place, Payout: payout}

		stats, err := o.store.UpdateStats(ctx, entrant.ID, func(s *models.PlayerStats) error {
			s.RecordFinish(place, payout)
			s.UpdatedAt = o.now()
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to record finish for %s: %w", entrant.ID, err))
		} else {
			keys := earnedAchievements(AchievementContext{
				Stats:       stats,
				Place:       place,
				Mode:        race.Mode,
				Entrants:    len(entrants),
				PhotoFinish: result.PhotoFinish,
			})
			unlocked, bonus, updated, err := o.award(ctx, entrant.ID, keys)
			if err != nil {
				errs = append(errs, err)
			} else {
				stats = updated
			}
			outcome.Unlocked = unlocked
			outcome.BonusTokens = bonus
			outcome.Stats = stats
		}

		settlement.Outcomes = append(settlement.Outcomes, outcome)

		if payout > 0 && !settlement.Frozen {
			settlement.Payouts = append(settlement.Payouts, models.PayoutTask{
				RaceID:   race.ID,
				GuildID:  race.Venue.GuildID,
				PlayerID: entrant.ID,
				Amount:   payout,
			})
		}
	}

	if settlement.Frozen {
		log.WithFields(log.Fields{
			"race_id": race.ID,
			"tier":    race.Tier.Key,
		}).Info("Payouts frozen, rewards recorded without credit")
	}

	return settlement, errors.Join(errs...)
}

// Award unlocks achievements for a player and credits their token bonus.
// Keys the player already holds are skipped and earn nothing.
func (o *OutcomeEngine) Award(ctx context.Context, playerID string, keys ...string) ([]models.Achievement, int64, error) {
	unlocked, bonus, _, err := o.award(ctx, playerID, keys)
	return unlocked, bonus, err
}

func (o *OutcomeEngine) award(ctx context.Context, playerID string, keys []string) ([]models.Achievement, int64, models.PlayerStats, error) {
	if len(keys) == 0 {
		stats, err := o.store.GetStats(ctx, playerID)
		return nil, 0, stats, err
	}

	var unlocked []models.Achievement
	now := o.now()
	stats, err := o.store.UpdateStats(ctx, playerID, func(s *models.PlayerStats) error {
		unlocked = unlocked[:0]
		for _, key := range keys {
			def, ok := LookupAchievement(key)
			if !ok {
				continue
			}
			if s.Unlock(key, now) {
				unlocked = append(unlocked, def)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, stats, fmt.Errorf("failed to unlock achievements for %s: %w", playerID, err)
	}

	var bonus int64
	for _, a := range unlocked {
		bonus += a.TokenReward
	}
	if bonus > 0 {
		if _, err := o.store.UpdateTokens(ctx, playerID, func(b *models.TokenBalance) error {
			b.Tokens += bonus
			return nil
		}); err != nil {
			return unlocked, 0, stats, fmt.Errorf("failed to credit achievement bonus for %s: %w", playerID, err)
		}
		for _, a := range unlocked {
			log.WithFields(log.Fields{
				"player_id":   playerID,
				"achievement": a.Key,
				"bonus":       a.TokenReward,
			}).Info("Achievement unlocked")
		}
	}

	return unlocked, bonus, stats, nil
}
