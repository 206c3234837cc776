package dice_derby

import (
	"fmt"
	"strings"
)

// TrackLength is the number of cells on the track. The last cell is the finish line.
const TrackLength = 20

// SprintZone is how many cells from the end the sprint assist kicks in
const SprintZone = 5

// TierKey identifies a risk bracket
type TierKey string

const (
	TierLow      TierKey = "low"
	TierStandard TierKey = "standard"
	TierHigh     TierKey = "high"
)

// Tier is an immutable risk/reward bracket
type Tier struct {
	Key         TierKey
	Name        string
	Cost        int64
	Payouts     map[int]int64 // place -> reward, missing places pay nothing
	EdgeScale   float64       // house edge strength
	StreakScale float64       // anti-farming strength
}

// Payout returns the reward for a finishing place
func (t Tier) Payout(place int) int64 {
	return t.Payouts[place]
}

var tiers = map[TierKey]Tier{
	TierLow: {
		Key:         TierLow,
		Name:        "Low Stakes",
		Cost:        1,
		Payouts:     map[int]int64{1: 4, 2: 2, 3: 1},
		EdgeScale:   0.55,
		StreakScale: 0.85,
	},
	TierStandard: {
		Key:         TierStandard,
		Name:        "Standard",
		Cost:        2,
		Payouts:     map[int]int64{1: 10, 2: 5, 3: 2},
		EdgeScale:   0.70,
		StreakScale: 1.00,
	},
	TierHigh: {
		Key:         TierHigh,
		Name:        "High Roller",
		Cost:        3,
		Payouts:     map[int]int64{1: 18, 2: 8, 3: 3},
		EdgeScale:   1.00,
		StreakScale: 1.15,
	},
}

// TierOrder lists tiers from cheapest to most expensive
var TierOrder = []TierKey{TierLow, TierStandard, TierHigh}

// LookupTier resolves a tier key, case-insensitively
func LookupTier(key string) (Tier, error) {
	t, ok := tiers[TierKey(strings.ToLower(strings.TrimSpace(key)))]
	if !ok {
		return Tier{}, reject(ErrUnknownTier, fmt.Sprintf("no tier named %q", key))
	}
	return t, nil
}

// MustTier returns a known tier and panics otherwise. Only for the constants above.
func MustTier(key TierKey) Tier {
	t, ok := tiers[key]
	if !ok {
		panic(fmt.Sprintf("unknown tier %q", key))
	}
	return t
}

// Colour identifies one of the fixed competitors
type Colour string

const (
	Red    Colour = "red"
	Blue   Colour = "blue"
	Green  Colour = "green"
	Yellow Colour = "yellow"
	Purple Colour = "purple"
)

// Colours is the competitor roster in definition order. That order breaks exact ties.
var Colours = []Colour{Red, Blue, Green, Yellow, Purple}

var colourIcons = map[Colour]string{
	Red:    "🟥",
	Blue:   "🟦",
	Green:  "🟩",
	Yellow: "🟨",
	Purple: "🟪",
}

// Icon returns the square emoji used on the track
func (c Colour) Icon() string {
	if icon, ok := colourIcons[c]; ok {
		return icon
	}
	return "⬜"
}

// Title returns the colour with a capital first letter
func (c Colour) Title() string {
	if c == "" {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}

// LookupColour resolves a competitor key, case-insensitively
func LookupColour(key string) (Colour, error) {
	c := Colour(strings.ToLower(strings.TrimSpace(key)))
	for _, known := range Colours {
		if c == known {
			return c, nil
		}
	}
	return "", reject(ErrUnknownColour, fmt.Sprintf("no competitor named %q", key))
}

func colourIndex(c Colour) int {
	for i, known := range Colours {
		if c == known {
			return i
		}
	}
	return len(Colours)
}
