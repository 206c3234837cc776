package dice_derby

import (
	"fmt"
	"strings"
)

var commentary = map[string][]string{
	"start": {
		"And they're off!", "The dice are rolling and the race has begun!", "A clean start for every colour!",
	},
	"middle": {
		"Down the back straight they come!", "It's still anyone's race!", "The pack is bunching up!",
	},
	"end": {
		"Into the final stretch, the crowd is roaring!", "It's neck and neck at the line!", "Somebody find a calculator, this is close!",
	},
}

func pickLine(phase string, n int) string {
	lines := commentary[phase]
	if n < 0 {
		n = -n
	}
	return lines[n%len(lines)]
}

func startLine(seed uint32) string {
	return pickLine("start", int(seed%3))
}

// describeTick writes the commentary for the tick that just ran. Caller holds r.mu.
func (r *Race) describeTick() string {
	var parts []string

	ranks := r.ranks()
	leading := r.leader
	for i, rank := range ranks {
		if rank == 0 {
			leading = r.competitors[i].Colour
		}
	}
	if leading != r.leader && r.tick > 1 {
		parts = append(parts, fmt.Sprintf("%s %s takes the lead!", leading.Icon(), leading.Title()))
	}
	r.leader = leading

	for _, c := range r.competitors {
		if c.FinishTick == r.tick && c.Finished {
			parts = append(parts, fmt.Sprintf("🏁 %s crosses the line!", c.Colour.Title()))
			continue
		}
		switch c.LastEvent {
		case EventBoost:
			parts = append(parts, fmt.Sprintf("💨 %s finds a burst of speed!", c.Colour.Title()))
		case EventStall:
			parts = append(parts, fmt.Sprintf("🐢 %s stumbles.", c.Colour.Title()))
		}
	}

	if len(parts) == 0 {
		phase := "middle"
		for _, c := range r.competitors {
			if c.Position >= TrackLength-SprintZone {
				phase = "end"
				break
			}
		}
		return pickLine(phase, r.tick)
	}
	return strings.Join(parts, "\n")
}

func finishLine(result RaceResult) string {
	winner := result.Winner()
	if result.PhotoFinish && len(result.Placements) > 1 {
		return fmt.Sprintf("📸 Photo finish! %s edges out %s!", winner.Title(), result.Placements[1].Colour.Title())
	}
	return fmt.Sprintf("🏆 %s wins it!", winner.Title())
}
