package models

import (
	"time"
)

// Achievement represents an achievement definition
type Achievement struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	TokenReward int64  `json:"token_reward"`
	PartyOnly   bool   `json:"party_only"`
}

// UnlockedAchievement is an achievement a player holds, with its unlock time
type UnlockedAchievement struct {
	Achievement
	UnlockedAt time.Time `json:"unlocked_at"`
}

// Achievement keys
const (
	AchievementFirstRace   = "first_race"
	AchievementFirstWin    = "first_win"
	AchievementPhotoFinish = "photo_finish"
	AchievementHatTrick    = "hat_trick"
	AchievementPodiumFive  = "podium_five"
	AchievementPartyWinner = "party_winner"
)
