package contribution

import (
	"math"
	"sort"

	"github.com/brave-intl/bat-contribution-engine/internal/core"
)

// Calculator implements AutoContributeCalculator.
type Calculator struct {
	Randomizer core.Randomizer
}

func NewCalculator(r core.Randomizer) *Calculator {
	return &Calculator{Randomizer: r}
}

// scoreSeconds computes a publisher's raw score from its dwell time:
// c = sec*100, a = 15000-c, b = 2c-15000, score = (-b+sqrt(b^2+4ac))/(2a).
// Because b^2+4ac equals 15000^2 for every c, the score is 1 (up to
// floating-point rounding) at every dwell time, so all publishers that pass
// CalculateWeights' thresholds receive equal weight.
func scoreSeconds(sec float64) float64 {
	c := sec * 100
	a := 15000 - c
	b := 2*c - 15000
	if a == 0 {
		// The quadratic ax^2+bx-c=0 degenerates to linear at exactly this
		// dwell time; solve bx-c=0 directly rather than dividing by zero.
		if b == 0 {
			return 0
		}
		return c / b
	}
	disc := b*b + 4*a*c
	if disc < 0 {
		disc = 0
	}
	return (-b + math.Sqrt(disc)) / (2 * a)
}

// CalculateWeights excludes publishers below either threshold and
// normalizes the rest to sum to 1.
func (c *Calculator) CalculateWeights(activity []PublisherActivity, minVisits int, minDuration float64) map[string]float64 {
	scores := make(map[string]float64)
	var total float64
	for _, p := range activity {
		if p.Visits < minVisits || p.Duration < minDuration {
			continue
		}
		s := scoreSeconds(p.Duration)
		if s <= 0 {
			continue
		}
		scores[p.PublisherID] = s
		total += s
	}
	if total <= 0 {
		return map[string]float64{}
	}
	weights := make(map[string]float64, len(scores))
	for id, s := range scores {
		weights[id] = s / total
	}
	return weights
}

// AllocateVotes performs weighted sampling without replacement-of-votes:
// draw `total` uniform(0,1) samples; for each, pick the publisher whose
// cumulative weight first reaches the sample.
//
// The comparison is INCLUSIVE of the upper bound (cumulative >= draw
// selects), matching the original C++'s literal `upper_bound >= random01`.
// Publishers are walked in a stable order (sorted by id) so the same
// weights and draws always produce the same allocation.
func (c *Calculator) AllocateVotes(weights map[string]float64, total int) map[string]int {
	votes := make(map[string]int, len(weights))
	if total <= 0 || len(weights) == 0 {
		for id := range weights {
			votes[id] = 0
		}
		return votes
	}

	ids := make([]string, 0, len(weights))
	for id := range weights {
		ids = append(ids, id)
		votes[id] = 0
	}
	sort.Strings(ids)

	cumulative := make([]float64, len(ids))
	var running float64
	for i, id := range ids {
		running += weights[id]
		cumulative[i] = running
	}

	for i := 0; i < total; i++ {
		draw := c.Randomizer.Uniform01()
		chosen := ids[len(ids)-1]
		for j, upper := range cumulative {
			if upper >= draw {
				chosen = ids[j]
				break
			}
		}
		votes[chosen]++
	}
	return votes
}
