package dice_derby

import (
	"dice-derby/models"
)

// AchievementContext is what a predicate gets to look at after a race
type AchievementContext struct {
	Stats       models.PlayerStats // already includes this race
	Place       int
	Mode        Mode
	Entrants    int
	PhotoFinish bool
}

// AchievementChecker decides whether an achievement has been earned
type AchievementChecker func(AchievementContext) bool

type achievementRule struct {
	models.Achievement
	check AchievementChecker
}

var achievementRules = []achievementRule{
	{
		Achievement: models.Achievement{Key: models.AchievementFirstRace, Name: "Off the Line", Description: "Enter your first race", Icon: "🚦", TokenReward: 1},
		check:       func(c AchievementContext) bool { return c.Stats.Races >= 1 },
	},
	{
		Achievement: models.Achievement{Key: models.AchievementFirstWin, Name: "First Victory", Description: "Win a race", Icon: "🏆", TokenReward: 2},
		check:       func(c AchievementContext) bool { return c.Stats.Wins >= 1 },
	},
	{
		Achievement: models.Achievement{Key: models.AchievementPhotoFinish, Name: "Photo Finish", Description: "Take part in a photo finish", Icon: "📸", TokenReward: 2},
		check:       func(c AchievementContext) bool { return c.PhotoFinish },
	},
	{
		Achievement: models.Achievement{Key: models.AchievementHatTrick, Name: "Hat Trick", Description: "Win three races in a row", Icon: "🎩", TokenReward: 3},
		check:       func(c AchievementContext) bool { return c.Stats.WinStreak >= 3 },
	},
	{
		Achievement: models.Achievement{Key: models.AchievementPodiumFive, Name: "Podium Regular", Description: "Finish in the top three five times", Icon: "🥉", TokenReward: 3},
		check:       func(c AchievementContext) bool { return c.Stats.Podiums >= 5 },
	},
	{
		Achievement: models.Achievement{Key: models.AchievementPartyWinner, Name: "Party Champion", Description: "Win a party race against other players", Icon: "🎉", TokenReward: 3, PartyOnly: true},
		check: func(c AchievementContext) bool {
			return c.Mode == ModeParty && c.Entrants >= 2 && c.Place == 1
		},
	},
}

// Achievements returns every achievement definition
func Achievements() []models.Achievement {
	out := make([]models.Achievement, 0, len(achievementRules))
	for _, r := range achievementRules {
		out = append(out, r.Achievement)
	}
	return out
}

// LookupAchievement finds a definition by key
func LookupAchievement(key string) (models.Achievement, bool) {
	for _, r := range achievementRules {
		if r.Key == key {
			return r.Achievement, true
		}
	}
	return models.Achievement{}, false
}

// earnedAchievements lists keys whose predicate holds. Already-held keys are
// included; unlocking filters them out.
func earnedAchievements(c AchievementContext) []string {
	var keys []string
	for _, r := range achievementRules {
		if r.check(c) {
			keys = append(keys, r.Key)
		}
	}
	return keys
}
