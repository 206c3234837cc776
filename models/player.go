package models

import (
	"time"
)

// PlayerStats holds a player's cumulative race statistics for the current season
type PlayerStats struct {
	PlayerID      string               `json:"player_id"`
	Races         int                  `json:"races"`
	Wins          int                  `json:"wins"`
	TotalWon      int64                `json:"total_won"`
	BestFinish    int                  `json:"best_finish"` // 0 until the first finish
	Podiums       int                  `json:"podiums"`
	WinStreak     int                  `json:"win_streak"`
	BestWinStreak int                  `json:"best_win_streak"`
	Achievements  map[string]time.Time `json:"achievements"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// NewPlayerStats returns empty stats for a player
func NewPlayerStats(playerID string) PlayerStats {
	return PlayerStats{
		PlayerID:     playerID,
		Achievements: make(map[string]time.Time),
	}
}

// RecordFinish applies a finishing place and its payout to the stats
func (s *PlayerStats) RecordFinish(place int, payout int64) {
	if place == 1 {
		s.Wins++
		s.WinStreak++
		if s.WinStreak > s.BestWinStreak {
			s.BestWinStreak = s.WinStreak
		}
	} else {
		s.WinStreak = 0
	}

	if place >= 1 && place <= 3 {
		s.Podiums++
	}

	if place >= 1 && (s.BestFinish == 0 || place < s.BestFinish) {
		s.BestFinish = place
	}

	s.TotalWon += payout
}

// HasAchievement reports whether the achievement key is already unlocked
func (s *PlayerStats) HasAchievement(key string) bool {
	_, ok := s.Achievements[key]
	return ok
}

// Unlock records an achievement. It returns false when the key was already held.
func (s *PlayerStats) Unlock(key string, at time.Time) bool {
	if s.Achievements == nil {
		s.Achievements = make(map[string]time.Time)
	}
	if _, ok := s.Achievements[key]; ok {
		return false
	}
	s.Achievements[key] = at
	return true
}

// WinRate returns the percentage of races won
func (s *PlayerStats) WinRate() float64 {
	if s.Races == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Races) * 100
}

// Clone returns a deep copy so callers can't mutate a stored value
func (s PlayerStats) Clone() PlayerStats {
	out := s
	out.Achievements = make(map[string]time.Time, len(s.Achievements))
	for k, v := range s.Achievements {
		out.Achievements[k] = v
	}
	return out
}

// TokenBalance is a player's race token wallet
type TokenBalance struct {
	PlayerID       string     `json:"player_id"`
	Tokens         int64      `json:"tokens"`
	LastDailyClaim *time.Time `json:"last_daily_claim"`
}

// NextDailyClaim returns when the next daily claim becomes available
func (b *TokenBalance) NextDailyClaim(cooldown time.Duration) time.Time {
	if b.LastDailyClaim == nil {
		return time.Time{}
	}
	return b.LastDailyClaim.Add(cooldown)
}
