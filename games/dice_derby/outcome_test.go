package dice_derby

import (
	"context"
	"testing"
	"time"

	"dice-derby/models"
	"dice-derby/utils"
)

// resultInOrder builds a finished result with the given colours first
func resultInOrder(order ...Colour) RaceResult {
	competitors := make([]*Competitor, 0, len(Colours))
	tick := map[Colour]int{}
	for i, c := range order {
		tick[c] = 10 + i
	}
	next := 10 + len(order)
	for _, c := range Colours {
		ft, ok := tick[c]
		if !ok {
			ft = next
			next++
		}
		competitors = append(competitors, &Competitor{Colour: c, Position: TrackLength - 1, Finished: true, FinishTick: ft})
	}
	return buildResult(competitors)
}

func newTestOutcomes(store Store, freeze *Freeze) *OutcomeEngine {
	o := NewOutcomeEngine(store, freeze)
	o.now = func() time.Time { return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC) }
	return o
}

func soloInfo(tier TierKey) RaceInfo {
	return RaceInfo{ID: "race-1", Seed: 1, Tier: MustTier(tier), Mode: ModeSolo, Venue: Venue{GuildID: "g1", ChannelID: "c1"}}
}

func TestSettleSoloPayoutMatchesTier(t *testing.T) {
	ctx := context.Background()
	tier := MustTier(TierStandard)
	result, _, err := Replay(20240601, tier, soloBackers(Red, 0))
	if err != nil {
		t.Fatal(err)
	}

	store := utils.NewMemoryStore(5)
	o := newTestOutcomes(store, nil)
	entrant := Entrant{Player: Player{ID: "p1", Name: "Rider"}, Colour: Red}

	s, err := o.Settle(ctx, soloInfo(TierStandard), result, []Entrant{entrant})
	if err != nil {
		t.Fatal(err)
	}
	out := s.Outcomes[0]
	if out.Place < 1 || out.Place > 5 {
		t.Fatalf("place %d out of range", out.Place)
	}
	if want := tier.Payouts[out.Place]; out.Payout != want {
		t.Errorf("payout for place %d = %d, want %d", out.Place, out.Payout, want)
	}
	if out.Payout > 0 {
		if len(s.Payouts) != 1 || s.Payouts[0].Amount != out.Payout || s.Payouts[0].GuildID != "g1" {
			t.Errorf("payout tasks = %+v", s.Payouts)
		}
	} else if len(s.Payouts) != 0 {
		t.Errorf("zero payout produced tasks: %+v", s.Payouts)
	}

	stats, _ := store.GetStats(ctx, "p1")
	if stats.TotalWon != out.Payout {
		t.Errorf("TotalWon = %d, want %d", stats.TotalWon, out.Payout)
	}
}

func TestTierPayoutTables(t *testing.T) {
	tests := []struct {
		tier TierKey
		cost int64
		pays [6]int64 // index 0 unused
	}{
		{TierLow, 1, [6]int64{0, 4, 2, 1, 0, 0}},
		{TierStandard, 2, [6]int64{0, 10, 5, 2, 0, 0}},
		{TierHigh, 3, [6]int64{0, 18, 8, 3, 0, 0}},
	}
	for _, tt := range tests {
		tier := MustTier(tt.tier)
		if tier.Cost != tt.cost {
			t.Errorf("%s cost = %d, want %d", tt.tier, tier.Cost, tt.cost)
		}
		for place := 1; place <= 5; place++ {
			if got := tier.Payout(place); got != tt.pays[place] {
				t.Errorf("%s place %d pays %d, want %d", tt.tier, place, got, tt.pays[place])
			}
		}
		if tier.Payout(6) != 0 || tier.Payout(0) != 0 {
			t.Errorf("%s pays outside places 1..5", tt.tier)
		}
	}
}

func TestStreakRules(t *testing.T) {
	ctx := context.Background()
	store := utils.NewMemoryStore(0)
	o := newTestOutcomes(store, nil)
	rider := Entrant{Player: Player{ID: "p1"}, Colour: Blue}

	for i := 1; i <= 3; i++ {
		if _, err := o.Settle(ctx, soloInfo(TierLow), resultInOrder(Blue), []Entrant{rider}); err != nil {
			t.Fatal(err)
		}
		stats, _ := store.GetStats(ctx, "p1")
		if stats.WinStreak != i {
			t.Fatalf("after win %d streak = %d", i, stats.WinStreak)
		}
	}

	if _, err := o.Settle(ctx, soloInfo(TierLow), resultInOrder(Red, Blue), []Entrant{rider}); err != nil {
		t.Fatal(err)
	}
	stats, _ := store.GetStats(ctx, "p1")
	if stats.WinStreak != 0 {
		t.Errorf("streak after a loss = %d, want 0", stats.WinStreak)
	}
	if stats.BestWinStreak != 3 {
		t.Errorf("BestWinStreak = %d, want 3", stats.BestWinStreak)
	}
	if stats.Wins != 3 || stats.Podiums != 4 || stats.BestFinish != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if !stats.HasAchievement(models.AchievementHatTrick) {
		t.Error("hat trick not unlocked after three straight wins")
	}
}

func TestSettleUnlocksAndCreditsBonus(t *testing.T) {
	ctx := context.Background()
	store := utils.NewMemoryStore(0)
	o := newTestOutcomes(store, nil)

	// the entry debit counts the race before settlement
	if _, err := store.UpdateStats(ctx, "p1", func(s *models.PlayerStats) error { s.Races++; return nil }); err != nil {
		t.Fatal(err)
	}

	s, err := o.Settle(ctx, soloInfo(TierStandard), resultInOrder(Green), []Entrant{{Player: Player{ID: "p1"}, Colour: Green}})
	if err != nil {
		t.Fatal(err)
	}
	out := s.Outcomes[0]
	got := map[string]bool{}
	for _, a := range out.Unlocked {
		got[a.Key] = true
	}
	if !got[models.AchievementFirstRace] || !got[models.AchievementFirstWin] {
		t.Errorf("unlocked = %v, want first_race and first_win", got)
	}
	if got[models.AchievementPartyWinner] {
		t.Error("party achievement unlocked in a solo race")
	}
	if out.BonusTokens != 3 {
		t.Errorf("bonus = %d, want 3", out.BonusTokens)
	}
	balance, _ := store.GetTokens(ctx, "p1")
	if balance.Tokens != 3 {
		t.Errorf("tokens = %d, want 3", balance.Tokens)
	}
}

func TestAwardIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := utils.NewMemoryStore(0)
	o := newTestOutcomes(store, nil)

	unlocked, bonus, err := o.Award(ctx, "p1", models.AchievementPhotoFinish)
	if err != nil {
		t.Fatal(err)
	}
	if len(unlocked) != 1 || bonus != 2 {
		t.Fatalf("first award = %v, %d", unlocked, bonus)
	}
	stats, _ := store.GetStats(ctx, "p1")
	firstAt := stats.Achievements[models.AchievementPhotoFinish]

	o.now = func() time.Time { return firstAt.Add(time.Hour) }
	unlocked, bonus, err = o.Award(ctx, "p1", models.AchievementPhotoFinish, "no_such_key")
	if err != nil {
		t.Fatal(err)
	}
	if len(unlocked) != 0 || bonus != 0 {
		t.Errorf("second award = %v, %d, want nothing", unlocked, bonus)
	}

	stats, _ = store.GetStats(ctx, "p1")
	if !stats.Achievements[models.AchievementPhotoFinish].Equal(firstAt) {
		t.Error("unlock time changed on a repeat award")
	}
	balance, _ := store.GetTokens(ctx, "p1")
	if balance.Tokens != 2 {
		t.Errorf("tokens = %d, want 2", balance.Tokens)
	}
}

func TestPartyWinnerNeedsTwoEntrants(t *testing.T) {
	ctx := context.Background()
	store := utils.NewMemoryStore(0)
	o := newTestOutcomes(store, nil)
	info := soloInfo(TierHigh)
	info.Mode = ModeParty

	entrants := []Entrant{{Player: Player{ID: "a"}, Colour: Red}, {Player: Player{ID: "b"}, Colour: Blue}}
	s, err := o.Settle(ctx, info, resultInOrder(Red, Blue), entrants)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := store.GetStats(ctx, "a")
	b, _ := store.GetStats(ctx, "b")
	if !a.HasAchievement(models.AchievementPartyWinner) {
		t.Error("party winner not unlocked for the winner")
	}
	if b.HasAchievement(models.AchievementPartyWinner) {
		t.Error("party winner unlocked for the runner-up")
	}
	if len(s.Payouts) != 2 || s.Payouts[0].PlayerID != "a" || s.Payouts[0].Amount != 18 || s.Payouts[1].Amount != 8 {
		t.Errorf("payouts = %+v", s.Payouts)
	}

	lonely := []Entrant{{Player: Player{ID: "c"}, Colour: Red}}
	if _, err := o.Settle(ctx, info, resultInOrder(Red), lonely); err != nil {
		t.Fatal(err)
	}
	c, _ := store.GetStats(ctx, "c")
	if c.HasAchievement(models.AchievementPartyWinner) {
		t.Error("party winner unlocked in a one-rider party")
	}
}

func TestFrozenSettlementHasNoPayouts(t *testing.T) {
	ctx := context.Background()
	store := utils.NewMemoryStore(0)
	freeze := &Freeze{}
	freeze.Set(true)
	o := newTestOutcomes(store, freeze)

	s, err := o.Settle(ctx, soloInfo(TierHigh), resultInOrder(Purple), []Entrant{{Player: Player{ID: "p1"}, Colour: Purple}})
	if err != nil {
		t.Fatal(err)
	}
	if !s.Frozen || len(s.Payouts) != 0 {
		t.Errorf("frozen settlement = %+v", s)
	}
	stats, _ := store.GetStats(ctx, "p1")
	if stats.Wins != 1 || stats.TotalWon != 18 {
		t.Errorf("stats not recorded while frozen: %+v", stats)
	}
}

func TestPhotoFinishAchievementForAllEntrants(t *testing.T) {
	ctx := context.Background()
	store := utils.NewMemoryStore(0)
	o := newTestOutcomes(store, nil)
	info := soloInfo(TierLow)
	info.Mode = ModeParty

	result := buildResult([]*Competitor{
		{Colour: Red, Position: 19, Finished: true, FinishTick: 8},
		{Colour: Blue, Position: 19, Finished: true, FinishTick: 8},
		{Colour: Green, Position: 19, Finished: true, FinishTick: 9},
		{Colour: Yellow, Position: 19, Finished: true, FinishTick: 9},
		{Colour: Purple, Position: 19, Finished: true, FinishTick: 10},
	})
	entrants := []Entrant{{Player: Player{ID: "a"}, Colour: Purple}, {Player: Player{ID: "b"}, Colour: Red}}
	if _, err := o.Settle(ctx, info, result, entrants); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"a", "b"} {
		stats, _ := store.GetStats(ctx, id)
		if !stats.HasAchievement(models.AchievementPhotoFinish) {
			t.Errorf("%s missing photo finish", id)
		}
	}
}
