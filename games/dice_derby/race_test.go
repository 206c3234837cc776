package dice_derby

import (
	"errors"
	"reflect"
	"testing"

	"dice-derby/models"
)

func soloBackers(c Colour, streak int) map[Colour]Backer {
	return map[Colour]Backer{c: {PlayerID: "p1", WinStreak: streak}}
}

func TestReplayDeterministic(t *testing.T) {
	tier := MustTier(TierStandard)
	for _, seed := range []uint32{0, 1, 42, 0xFFFFFFFF} {
		r1, trace1, err := Replay(seed, tier, soloBackers(Red, 2))
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		r2, trace2, err := Replay(seed, tier, soloBackers(Red, 2))
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if !reflect.DeepEqual(r1, r2) {
			t.Errorf("seed %d: results differ: %+v vs %+v", seed, r1, r2)
		}
		if !reflect.DeepEqual(trace1, trace2) {
			t.Errorf("seed %d: traces differ", seed)
		}
	}
}

func TestPositionsMonotonicAndBounded(t *testing.T) {
	for seed := uint32(0); seed < 200; seed++ {
		tier := MustTier(TierOrder[seed%3])
		_, trace, err := Replay(seed, tier, soloBackers(Colours[seed%5], int(seed%6)))
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		prev := make([]int, len(Colours))
		for tick, positions := range trace {
			for i, pos := range positions {
				if pos < prev[i] {
					t.Fatalf("seed %d tick %d: %s moved back from %d to %d", seed, tick+1, Colours[i], prev[i], pos)
				}
				if pos > TrackLength-1 {
					t.Fatalf("seed %d tick %d: %s past the finish at %d", seed, tick+1, Colours[i], pos)
				}
				if pos-prev[i] > MaxStep {
					t.Fatalf("seed %d tick %d: %s jumped %d", seed, tick+1, Colours[i], pos-prev[i])
				}
			}
			prev = positions
		}
	}
}

func TestResultIsComplete(t *testing.T) {
	result, trace, err := Replay(1234, MustTier(TierHigh), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Placements) != len(Colours) {
		t.Fatalf("got %d placements, want %d", len(result.Placements), len(Colours))
	}
	seen := make(map[Colour]bool)
	for i, p := range result.Placements {
		if p.Place != i+1 {
			t.Errorf("placement %d has place %d", i, p.Place)
		}
		if p.Position != TrackLength-1 {
			t.Errorf("%s finished at position %d", p.Colour, p.Position)
		}
		if p.FinishTick < 1 || p.FinishTick > result.Ticks {
			t.Errorf("%s finish tick %d outside 1..%d", p.Colour, p.FinishTick, result.Ticks)
		}
		if i > 0 && p.FinishTick < result.Placements[i-1].FinishTick {
			t.Errorf("placements not ordered by finish tick")
		}
		seen[p.Colour] = true
	}
	if len(seen) != len(Colours) {
		t.Errorf("placements repeat a colour: %+v", result.Placements)
	}
	if result.Ticks != len(trace) {
		t.Errorf("Ticks = %d, trace has %d", result.Ticks, len(trace))
	}
}

func TestRaceFinalizesOnce(t *testing.T) {
	race := NewRace("r1", 77, MustTier(TierLow), soloBackers(Blue, 0))
	var done bool
	var err error
	for !done {
		done, err = race.Tick()
		if err != nil {
			t.Fatal(err)
		}
	}
	first, ok := race.Result()
	if !ok {
		t.Fatal("finished race has no result")
	}
	ticks := race.Snapshot().Tick

	for i := 0; i < 5; i++ {
		done, err := race.Tick()
		if !done || err != nil {
			t.Fatalf("tick after finalize = (%v, %v), want (true, nil)", done, err)
		}
	}
	if race.finalized != 1 {
		t.Errorf("finalized %d times", race.finalized)
	}
	if race.State() != StateFinalized {
		t.Errorf("state = %s", race.State())
	}
	if got := race.Snapshot().Tick; got != ticks {
		t.Errorf("tick advanced after finalize: %d -> %d", ticks, got)
	}
	second, _ := race.Result()
	if !reflect.DeepEqual(first, second) {
		t.Error("result changed after finalize")
	}
}

func TestNoResultWhileRunning(t *testing.T) {
	race := NewRace("r1", 5, MustTier(TierStandard), nil)
	if _, err := race.Tick(); err != nil {
		t.Fatal(err)
	}
	if _, ok := race.Result(); ok {
		t.Error("result available after one tick")
	}
}

// Equal finish ticks always mean equal positions at the cap, so definition
// order decides.
func TestBuildResultPhotoFinishTieBreak(t *testing.T) {
	competitors := []*Competitor{
		{Colour: Red, Position: 19, Finished: true, FinishTick: 12},
		{Colour: Blue, Position: 19, Finished: true, FinishTick: 10},
		{Colour: Green, Position: 19, Finished: true, FinishTick: 11},
		{Colour: Yellow, Position: 19, Finished: true, FinishTick: 10},
		{Colour: Purple, Position: 19, Finished: true, FinishTick: 13},
	}
	result := buildResult(competitors)

	if !result.PhotoFinish {
		t.Error("expected a photo finish")
	}
	want := []Colour{Blue, Yellow, Green, Red, Purple}
	for i, c := range want {
		if result.Placements[i].Colour != c {
			t.Errorf("place %d = %s, want %s", i+1, result.Placements[i].Colour, c)
		}
	}
	if result.PlaceOf(Blue) != 1 || result.PlaceOf(Yellow) != 2 {
		t.Errorf("PlaceOf blue/yellow = %d/%d", result.PlaceOf(Blue), result.PlaceOf(Yellow))
	}
	if result.Winner() != Blue {
		t.Errorf("Winner = %s", result.Winner())
	}
}

func TestBuildResultPositionBreaksTickTies(t *testing.T) {
	competitors := []*Competitor{
		{Colour: Red, Position: 15, FinishTick: 0},
		{Colour: Blue, Position: 17, FinishTick: 0},
	}
	result := buildResult(competitors)
	if result.Winner() != Blue {
		t.Errorf("Winner = %s, want blue on position", result.Winner())
	}
}

func TestBuildResultNoPhotoFinish(t *testing.T) {
	competitors := []*Competitor{
		{Colour: Red, Position: 19, Finished: true, FinishTick: 9},
		{Colour: Blue, Position: 19, Finished: true, FinishTick: 10},
	}
	if buildResult(competitors).PhotoFinish {
		t.Error("distinct finish ticks flagged as photo finish")
	}
}

func TestTickPanicBecomesFault(t *testing.T) {
	race := NewRace("r1", 1, MustTier(TierStandard), nil)
	race.step = func(StepInput, DrawSet) Step { panic("boom") }

	done, err := race.Tick()
	if !done || !errors.Is(err, ErrSimulationFault) {
		t.Fatalf("Tick = (%v, %v), want simulation fault", done, err)
	}
	if race.State() != StateFailed {
		t.Errorf("state = %s, want failed", race.State())
	}
	if _, ok := race.Result(); ok {
		t.Error("failed race has a result")
	}
	if _, err := race.Tick(); !errors.Is(err, ErrSimulationFault) {
		t.Errorf("tick on failed race = %v", err)
	}
}

func TestOutOfRangeStepIsFault(t *testing.T) {
	race := NewRace("r1", 1, MustTier(TierStandard), nil)
	race.step = func(StepInput, DrawSet) Step { return Step{Delta: 4} }
	if _, err := race.Tick(); !errors.Is(err, ErrSimulationFault) {
		t.Errorf("err = %v, want simulation fault", err)
	}
}

func TestMaxTicksIsFault(t *testing.T) {
	race := NewRace("r1", 1, MustTier(TierStandard), nil)
	race.MaxTicks = 5
	race.step = func(StepInput, DrawSet) Step { return Step{} }

	for i := 0; i < 5; i++ {
		if done, err := race.Tick(); done || err != nil {
			t.Fatalf("tick %d = (%v, %v)", i+1, done, err)
		}
	}
	if _, err := race.Tick(); !errors.Is(err, ErrSimulationFault) {
		t.Errorf("err = %v, want simulation fault", err)
	}
}

func TestRanksUseDefinitionOrderForTies(t *testing.T) {
	race := NewRace("r1", 1, MustTier(TierStandard), nil)
	race.competitors[2].Position = 5 // green leads
	ranks := race.ranks()
	want := []int{1, 2, 0, 3, 4}
	if !reflect.DeepEqual(ranks, want) {
		t.Errorf("ranks = %v, want %v", ranks, want)
	}
}

func TestVerifyAudit(t *testing.T) {
	tier := MustTier(TierHigh)
	result, _, err := Replay(31337, tier, soloBackers(Green, 3))
	if err != nil {
		t.Fatal(err)
	}
	start := models.AuditRecord{
		Kind:         models.AuditRaceStart,
		RaceID:       "race-1",
		Seed:         31337,
		Tier:         string(TierHigh),
		Participants: []models.AuditParticipant{{PlayerID: "p1", Competitor: "green", WinStreak: 3}},
	}
	finish := models.AuditRecord{Kind: models.AuditRaceFinish, RaceID: "race-1", Placements: AuditPlacements(result)}

	// finish first: writes are asynchronous and may land out of order
	v, err := VerifyAudit([]models.AuditRecord{finish, start})
	if err != nil {
		t.Fatal(err)
	}
	if !v.Match || v.Pending {
		t.Errorf("verification = %+v, want match", v)
	}

	tampered := finish
	tampered.Placements = append([]models.AuditPlacement(nil), finish.Placements...)
	tampered.Placements[0], tampered.Placements[1] = tampered.Placements[1], tampered.Placements[0]
	if v, _ := VerifyAudit([]models.AuditRecord{start, tampered}); v.Match {
		t.Error("tampered placements verified")
	}

	if v, _ := VerifyAudit([]models.AuditRecord{start}); !v.Pending {
		t.Error("race without a finish record should be pending")
	}

	if _, err := VerifyAudit([]models.AuditRecord{finish}); !errors.Is(err, ErrNoStartRecord) {
		t.Errorf("err = %v, want ErrNoStartRecord", err)
	}

	failed := models.AuditRecord{Kind: models.AuditRaceFailed, RaceID: "race-1", Error: "simulation fault: boom"}
	v, err = VerifyAudit([]models.AuditRecord{failed, start})
	if err != nil {
		t.Fatal(err)
	}
	if !v.Failed || v.Pending || v.Match || v.Replayed != nil || v.Error != failed.Error {
		t.Errorf("failed race verification = %+v", v)
	}

	// the recorded tick bound is honoured; no race can finish in 3 ticks
	short := start
	short.MaxTicks = 3
	if _, err := VerifyAudit([]models.AuditRecord{short}); !errors.Is(err, ErrSimulationFault) {
		t.Errorf("err = %v, want a fault under a 3 tick limit", err)
	}
}

func BenchmarkReplay(b *testing.B) {
	tier := MustTier(TierStandard)
	for i := 0; i < b.N; i++ {
		if _, _, err := Replay(uint32(i), tier, nil); err != nil {
			b.Fatal(err)
		}
	}
}
