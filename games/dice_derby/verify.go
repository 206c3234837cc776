package dice_derby

import (
	"errors"
	"fmt"

	"dice-derby/models"
)

// Verification compares a replayed race against its recorded finish
type Verification struct {
	RaceID   string                  `json:"race_id"`
	Seed     uint32                  `json:"seed"`
	Tier     string                  `json:"tier"`
	Recorded []models.AuditPlacement `json:"recorded,omitempty"`
	Replayed []models.AuditPlacement `json:"replayed,omitempty"`
	Match    bool                    `json:"match"`
	Pending  bool                    `json:"pending"`
	Failed   bool                    `json:"failed"`
	Error    string                  `json:"error,omitempty"`
}

var ErrNoStartRecord = errors.New("audit has no race start record")

// AuditPlacements converts a result into its audit form
func AuditPlacements(result RaceResult) []models.AuditPlacement {
	out := make([]models.AuditPlacement, 0, len(result.Placements))
	for _, p := range result.Placements {
		out = append(out, models.AuditPlacement{
			Competitor: string(p.Colour),
			Place:      p.Place,
			FinishTick: p.FinishTick,
		})
	}
	return out
}

// VerifyAudit replays the race described by a start record and checks it
// against the finish record. Records may arrive in any order. An abandoned
// race has no result to check, so it is reported as failed and not replayed.
func VerifyAudit(records []models.AuditRecord) (Verification, error) {
	var start, finish, failed *models.AuditRecord
	for i := range records {
		switch records[i].Kind {
		case models.AuditRaceStart:
			start = &records[i]
		case models.AuditRaceFinish:
			finish = &records[i]
		case models.AuditRaceFailed:
			failed = &records[i]
		}
	}
	if start == nil {
		return Verification{}, ErrNoStartRecord
	}
	if failed != nil {
		return Verification{
			RaceID: start.RaceID,
			Seed:   start.Seed,
			Tier:   start.Tier,
			Failed: true,
			Error:  failed.Error,
		}, nil
	}

	tier, err := LookupTier(start.Tier)
	if err != nil {
		return Verification{}, err
	}
	backers := make(map[Colour]Backer, len(start.Participants))
	for _, p := range start.Participants {
		c, err := LookupColour(p.Competitor)
		if err != nil {
			return Verification{}, err
		}
		backers[c] = Backer{PlayerID: p.PlayerID, WinStreak: p.WinStreak}
	}

	result, _, err := ReplayWithLimit(start.Seed, tier, backers, start.MaxTicks)
	if err != nil {
		return Verification{}, fmt.Errorf("failed to replay race %s: %w", start.RaceID, err)
	}

	v := Verification{
		RaceID:   start.RaceID,
		Seed:     start.Seed,
		Tier:     start.Tier,
		Replayed: AuditPlacements(result),
		Pending:  finish == nil,
	}
	if finish != nil {
		v.Recorded = finish.Placements
		v.Match = samePlacements(v.Recorded, v.Replayed)
	}
	return v, nil
}

func samePlacements(a, b []models.AuditPlacement) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
