package dice_derby

import (
	"fmt"
	"sort"
	"sync"
)

// RaceState is where a race is in its lifecycle
type RaceState string

const (
	StateLobby     RaceState = "lobby"
	StateRunning   RaceState = "running"
	StateFinalized RaceState = "finalized"
	StateFailed    RaceState = "failed"
	StateCancelled RaceState = "cancelled"
)

// DefaultMaxTicks bounds a race that somehow never finishes
const DefaultMaxTicks = 400

// Backer links a competitor to the player riding on it
type Backer struct {
	PlayerID  string
	WinStreak int
}

// Competitor is one coloured entry on the track
type Competitor struct {
	Colour     Colour
	Position   int
	Finished   bool
	FinishTick int // 0 until finished
	LastEvent  Event
	Penalized  bool
	Backer     Backer
}

// Placement is one line of the final order
type Placement struct {
	Colour     Colour
	Place      int
	FinishTick int
	Position   int
}

// RaceResult is the complete finish order. It only exists once every competitor has finished.
type RaceResult struct {
	Placements  []Placement
	PhotoFinish bool
	Ticks       int
}

// PlaceOf returns the place of a colour, or 0 if it did not race
func (r RaceResult) PlaceOf(c Colour) int {
	for _, p := range r.Placements {
		if p.Colour == c {
			return p.Place
		}
	}
	return 0
}

// Winner returns the first placed colour
func (r RaceResult) Winner() Colour {
	if len(r.Placements) == 0 {
		return ""
	}
	return r.Placements[0].Colour
}

// Race is the tick-driven simulation for one race. All methods are safe for
// concurrent use; a tick that fires after finalization is a no-op.
type Race struct {
	ID       string
	Seed     uint32
	Tier     Tier
	MaxTicks int

	mu          sync.Mutex
	state       RaceState
	tick        int
	rng         *RNG
	competitors []*Competitor
	leader      Colour
	commentary  string
	result      *RaceResult
	err         error
	finalized   int

	step func(StepInput, DrawSet) Step
}

// NewRace lines every competitor up at position 0
func NewRace(id string, seed uint32, tier Tier, backers map[Colour]Backer) *Race {
	competitors := make([]*Competitor, 0, len(Colours))
	for _, c := range Colours {
		competitors = append(competitors, &Competitor{Colour: c, Backer: backers[c]})
	}
	return &Race{
		ID:          id,
		Seed:        seed,
		Tier:        tier,
		MaxTicks:    DefaultMaxTicks,
		state:       StateRunning,
		rng:         NewRNG(seed),
		competitors: competitors,
		commentary:  startLine(seed),
		step:        NextStep,
	}
}

// State returns the current lifecycle state
func (r *Race) State() RaceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Result returns the final order once the race is finalized
func (r *Race) Result() (RaceResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.result == nil {
		return RaceResult{}, false
	}
	return *r.result, true
}

// Tick advances the race by one step. It reports whether the race is over.
// A panic inside the step pipeline fails the race with ErrSimulationFault.
func (r *Race) Tick() (done bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateFinalized:
		return true, nil
	case StateFailed:
		return true, r.err
	case StateRunning:
	default:
		return false, fmt.Errorf("race %s is %s", r.ID, r.state)
	}

	defer func() {
		if p := recover(); p != nil {
			r.fail(fmt.Errorf("%w: tick %d: %v", ErrSimulationFault, r.tick, p))
			done, err = true, r.err
		}
	}()

	r.tick++
	if r.MaxTicks > 0 && r.tick > r.MaxTicks {
		r.fail(fmt.Errorf("%w: no result after %d ticks", ErrSimulationFault, r.MaxTicks))
		return true, r.err
	}

	ranks := r.ranks()
	for i, c := range r.competitors {
		c.LastEvent = EventNone
		c.Penalized = false
		if c.Finished {
			continue
		}

		s := r.step(StepInput{
			Rank:      ranks[i],
			Field:     len(r.competitors),
			Tier:      r.Tier,
			WinStreak: c.Backer.WinStreak,
			Position:  c.Position,
		}, r.rng.Draws())

		if s.Delta < 0 || s.Delta > MaxStep {
			panic(fmt.Sprintf("step %d out of range for %s", s.Delta, c.Colour))
		}

		c.LastEvent = s.Event
		c.Penalized = s.Penalized
		c.Position += s.Delta
		if c.Position >= TrackLength-1 {
			c.Position = TrackLength - 1
			c.Finished = true
			c.FinishTick = r.tick
		}
	}

	r.commentary = r.describeTick()

	for _, c := range r.competitors {
		if !c.Finished {
			return false, nil
		}
	}

	r.finalize()
	return true, nil
}

// finalize builds the result. Guarded so it can only ever run once.
func (r *Race) finalize() {
	if r.state != StateRunning || r.result != nil {
		return
	}
	result := buildResult(r.competitors)
	result.Ticks = r.tick
	r.result = &result
	r.state = StateFinalized
	r.finalized++
	r.commentary = finishLine(result)
}

func (r *Race) fail(err error) {
	r.state = StateFailed
	r.err = err
}

// ranks snapshots each competitor's rank index at the start of a tick.
// Equal positions rank in definition order.
func (r *Race) ranks() []int {
	order := make([]int, len(r.competitors))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return r.competitors[order[a]].Position > r.competitors[order[b]].Position
	})
	ranks := make([]int, len(r.competitors))
	for rank, idx := range order {
		ranks[idx] = rank
	}
	return ranks
}

// buildResult orders competitors by finish tick, then final position, then
// definition order. The input slice must already be in definition order.
func buildResult(competitors []*Competitor) RaceResult {
	sorted := make([]*Competitor, len(competitors))
	copy(sorted, competitors)
	sort.SliceStable(sorted, func(a, b int) bool {
		if sorted[a].FinishTick != sorted[b].FinishTick {
			return sorted[a].FinishTick < sorted[b].FinishTick
		}
		if sorted[a].Position != sorted[b].Position {
			return sorted[a].Position > sorted[b].Position
		}
		return colourIndex(sorted[a].Colour) < colourIndex(sorted[b].Colour)
	})

	result := RaceResult{Placements: make([]Placement, 0, len(sorted))}
	for i, c := range sorted {
		result.Placements = append(result.Placements, Placement{
			Colour:     c.Colour,
			Place:      i + 1,
			FinishTick: c.FinishTick,
			Position:   c.Position,
		})
	}
	result.PhotoFinish = len(sorted) >= 2 && sorted[0].FinishTick == sorted[1].FinishTick
	return result
}

// CompetitorView is a read-only copy of a competitor
type CompetitorView struct {
	Colour     Colour
	Position   int
	Finished   bool
	FinishTick int
	Event      Event
	Penalized  bool
	PlayerID   string
}

// RaceSnapshot is a consistent copy of the race for presentation
type RaceSnapshot struct {
	ID          string
	Tier        Tier
	Seed        uint32
	State       RaceState
	Tick        int
	Competitors []CompetitorView
	Commentary  string
	Result      *RaceResult
}

// Snapshot copies the current race state
func (r *Race) Snapshot() RaceSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := RaceSnapshot{
		ID:          r.ID,
		Tier:        r.Tier,
		Seed:        r.Seed,
		State:       r.state,
		Tick:        r.tick,
		Commentary:  r.commentary,
		Competitors: make([]CompetitorView, 0, len(r.competitors)),
	}
	for _, c := range r.competitors {
		snap.Competitors = append(snap.Competitors, CompetitorView{
			Colour:     c.Colour,
			Position:   c.Position,
			Finished:   c.Finished,
			FinishTick: c.FinishTick,
			Event:      c.LastEvent,
			Penalized:  c.Penalized,
			PlayerID:   c.Backer.PlayerID,
		})
	}
	if r.result != nil {
		res := *r.result
		snap.Result = &res
	}
	return snap
}

// Replay runs a race to completion without a scheduler and returns its result
// plus the position of every competitor after every tick.
func Replay(seed uint32, tier Tier, backers map[Colour]Backer) (RaceResult, [][]int, error) {
	return ReplayWithLimit(seed, tier, backers, DefaultMaxTicks)
}

// ReplayWithLimit is Replay with the tick bound the race ran under.
// maxTicks <= 0 means DefaultMaxTicks.
func ReplayWithLimit(seed uint32, tier Tier, backers map[Colour]Backer, maxTicks int) (RaceResult, [][]int, error) {
	race := NewRace("replay", seed, tier, backers)
	if maxTicks > 0 {
		race.MaxTicks = maxTicks
	}
	var trace [][]int
	for {
		done, err := race.Tick()
		if err != nil {
			return RaceResult{}, trace, err
		}
		snap := race.Snapshot()
		positions := make([]int, len(snap.Competitors))
		for i, c := range snap.Competitors {
			positions[i] = c.Position
		}
		trace = append(trace, positions)
		if done {
			result, _ := race.Result()
			return result, trace, nil
		}
	}
}
