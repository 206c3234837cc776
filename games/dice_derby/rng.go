package dice_derby

import (
	crand "crypto/rand"
	"encoding/binary"
	"time"

	log "github.com/sirupsen/logrus"
)

// RNG is a mulberry32 generator. The whole stream is a function of the seed,
// which is what lets an audited race be replayed.
type RNG struct {
	state uint32
}

// NewRNG returns a generator positioned at the start of the seed's stream
func NewRNG(seed uint32) *RNG {
	return &RNG{state: seed}
}

// Float64 returns the next value in [0,1)
func (r *RNG) Float64() float64 {
	r.state += 0x6D2B79F5
	t := r.state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	return float64(t^(t>>14)) / 4294967296.0
}

// Draws fills one movement draw set
func (r *RNG) Draws() DrawSet {
	var d DrawSet
	for i := range d {
		d[i] = r.Float64()
	}
	return d
}

// NewSeed draws a race seed from the OS entropy source
func NewSeed() uint32 {
	var b [4]byte
	if _, err := crand.Read(b[:]); err != nil {
		// crypto/rand only fails when the kernel source is unavailable
		log.WithError(err).Warn("crypto/rand unavailable, falling back to clock seed")
		return uint32(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint32(b[:])
}
