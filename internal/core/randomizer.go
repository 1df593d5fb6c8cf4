package core

import (
	"math"
	"math/rand/v2"
)

// Randomizer is the sole source of randomness reachable by job code. Tests
// substitute a deterministic implementation so vote allocation and jitter
// delays are reproducible under replay.
type Randomizer interface {
	// Uniform01 returns a sample in [0, 1).
	Uniform01() float64
	// Geometric returns a sample from a geometric distribution with the
	// given mean, used to jitter delays around a target duration.
	Geometric(mean float64) float64
}

// SystemRandomizer is the production Randomizer backed by math/rand/v2.
type SystemRandomizer struct{}

func (SystemRandomizer) Uniform01() float64 {
	return rand.Float64()
}

func (SystemRandomizer) Geometric(mean float64) float64 {
	if mean <= 0 {
		return 0
	}
	p := 1 / mean
	u := rand.Float64()
	if u >= 1 {
		u = 0.999999999
	}
	return math.Floor(math.Log(1-u) / math.Log(1-p))
}
