package dice_derby

import (
	"context"
	"fmt"
	"time"

	"dice-derby/models"

	log "github.com/sirupsen/logrus"
)

// DailyClaim is the result of a successful daily token claim
type DailyClaim struct {
	Granted   int64
	Balance   int64
	NextClaim time.Time
}

// ClaimDaily grants the daily token allowance once per cooldown
func (e *Engine) ClaimDaily(ctx context.Context, playerID string) (DailyClaim, error) {
	now := e.now()
	balance, err := e.store.UpdateTokens(ctx, playerID, func(b *models.TokenBalance) error {
		if next := b.NextDailyClaim(e.settings.DailyCooldown); now.Before(next) {
			return rejectRetry(ErrDailyNotReady, next.Sub(now))
		}
		b.Tokens += e.settings.DailyTokens
		claimed := now
		b.LastDailyClaim = &claimed
		return nil
	})
	if err != nil {
		if IsEntryRejected(err) {
			return DailyClaim{}, err
		}
		return DailyClaim{}, fmt.Errorf("failed to claim daily tokens: %w", err)
	}

	log.WithFields(log.Fields{
		"player_id": playerID,
		"granted":   e.settings.DailyTokens,
		"balance":   balance.Tokens,
	}).Info("Daily tokens claimed")

	return DailyClaim{
		Granted:   e.settings.DailyTokens,
		Balance:   balance.Tokens,
		NextClaim: now.Add(e.settings.DailyCooldown),
	}, nil
}

// Tokens returns a player's token balance
func (e *Engine) Tokens(ctx context.Context, playerID string) (models.TokenBalance, error) {
	return e.store.GetTokens(ctx, playerID)
}

// Stats returns a player's season stats
func (e *Engine) Stats(ctx context.Context, playerID string) (models.PlayerStats, error) {
	return e.store.GetStats(ctx, playerID)
}

// Leaderboard returns the top players of the season
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]models.PlayerStats, error) {
	if limit <= 0 {
		limit = 10
	}
	return e.store.TopStats(ctx, limit)
}

// ResetSeason clears every player's stats. Token balances are kept.
func (e *Engine) ResetSeason(ctx context.Context) error {
	if err := e.store.ResetSeason(ctx); err != nil {
		return fmt.Errorf("failed to reset season: %w", err)
	}
	log.Info("Season reset, player stats cleared")
	return nil
}

// SetFrozen toggles the payout freeze
func (e *Engine) SetFrozen(frozen bool) {
	e.freeze.Set(frozen)
	log.WithField("frozen", frozen).Warn("Payout freeze changed")
}

// Frozen reports whether payouts are frozen
func (e *Engine) Frozen() bool {
	return e.freeze.Frozen()
}

// Achievements returns a player's unlocked achievements in definition order
func (e *Engine) Achievements(ctx context.Context, playerID string) ([]models.UnlockedAchievement, error) {
	stats, err := e.store.GetStats(ctx, playerID)
	if err != nil {
		return nil, err
	}
	var out []models.UnlockedAchievement
	for _, a := range Achievements() {
		if at, ok := stats.Achievements[a.Key]; ok {
			out = append(out, models.UnlockedAchievement{Achievement: a, UnlockedAt: at})
		}
	}
	return out, nil
}
