package dice_derby

// Event is the per-tick random event tag shown in commentary
type Event string

const (
	EventNone  Event = ""
	EventBoost Event = "boost"
	EventStall Event = "stall"
)

// DrawSet is the fixed set of uniform draws one competitor consumes per tick.
// Every slot is drawn whether or not its rule applies, so traces stay aligned.
type DrawSet [5]float64

const (
	drawBase = iota
	drawEvent
	drawEdge
	drawSprint
	drawStreak
)

// Movement tuning
const (
	MaxStep = 3

	boostChance  = 0.06
	stallChance  = 0.10
	sprintChance = 0.18

	streakBase    = 0.08
	streakPerWin  = 0.045
	streakCeiling = 0.22
)

var (
	leaderDrag  = [2]float64{0.55, 0.25} // rank 0, rank 1
	trailerLift = [2]float64{0.45, 0.65} // second to last, last
)

// StepInput is everything the movement model looks at for one competitor tick
type StepInput struct {
	Rank      int // 0 is leading
	Field     int // number of competitors in the race
	Tier      Tier
	WinStreak int // streak of the backing player, 0 when unbacked
	Position  int
}

// Step is the outcome of one competitor tick
type Step struct {
	Delta     int
	Event     Event
	Penalized bool
}

// baseStep maps a uniform draw onto the 0..3 step distribution
func baseStep(roll float64) int {
	switch {
	case roll > 0.992:
		return 3
	case roll > 0.93:
		return 2
	case roll > 0.58:
		return 1
	default:
		return 0
	}
}

// StreakPenaltyChance is the per-tick chance that a streak penalty fires
func StreakPenaltyChance(streak int, tier Tier) float64 {
	if streak <= 0 {
		return 0
	}
	p := streakBase + streakPerWin*float64(streak)
	if p > streakCeiling {
		p = streakCeiling
	}
	return p * tier.StreakScale
}

// NextStep runs the movement pipeline. The stages are ordered and each one sees
// the step as the previous stages left it.
func NextStep(in StepInput, d DrawSet) Step {
	step := baseStep(d[drawBase])

	var event Event
	switch {
	case d[drawEvent] < boostChance:
		event = EventBoost
		step++
	case d[drawEvent] < stallChance:
		event = EventStall
		if step > 0 {
			step--
		}
	}

	// house edge
	if in.Rank < len(leaderDrag) {
		if d[drawEdge] < leaderDrag[in.Rank]*in.Tier.EdgeScale && step > 0 {
			step--
		}
	} else if in.Field > 0 {
		fromLast := in.Field - 1 - in.Rank
		if fromLast >= 0 && fromLast < len(trailerLift) {
			if d[drawEdge] < trailerLift[len(trailerLift)-1-fromLast]*in.Tier.EdgeScale {
				step++
			}
		}
	}

	if in.Position >= TrackLength-SprintZone && d[drawSprint] < sprintChance {
		step++
	}

	penalized := false
	if in.WinStreak > 0 && d[drawStreak] < StreakPenaltyChance(in.WinStreak, in.Tier) {
		penalized = true
		step--
	}

	if step < 0 {
		step = 0
	}
	if step > MaxStep {
		step = MaxStep
	}

	return Step{Delta: step, Event: event, Penalized: penalized}
}
