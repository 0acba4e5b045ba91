/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package selector picks the next asset to play from a group.
package selector

// DefaultRepeatWeight is the relative weight of the previously played asset
// when anti-repeat is enabled. Every other candidate weighs 1.0.
const DefaultRepeatWeight = 0.5

// Rand is the random source used for selection. *math/rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// Selector performs weighted random selection with an anti-repeat bias.
type Selector struct {
	RepeatWeight float64
}

// New returns a Selector using DefaultRepeatWeight.
func New() Selector {
	return Selector{RepeatWeight: DefaultRepeatWeight}
}

// Pick chooses one of candidates. candidates must not be empty.
//
// Selection is uniform unless antiRepeat is set and lastPlayed is one of
// several candidates, in which case lastPlayed is drawn with RepeatWeight
// against 1.0 for every other candidate. Candidate order is significant for
// reproducibility with a seeded source.
func (s Selector) Pick(rng Rand, candidates []string, lastPlayed string, antiRepeat bool) string {
	if len(candidates) == 1 {
		return candidates[0]
	}
	if !antiRepeat || lastPlayed == "" || !contains(candidates, lastPlayed) {
		return candidates[rng.Intn(len(candidates))]
	}

	repeatWeight := s.RepeatWeight
	if repeatWeight <= 0 {
		repeatWeight = DefaultRepeatWeight
	}

	weights := make([]float64, len(candidates))
	var total float64
	for i, c := range candidates {
		w := 1.0
		if c == lastPlayed {
			w = repeatWeight
		}
		weights[i] = w
		total += w
	}

	r := rng.Float64() * total
	for i, w := range weights {
		if r < w {
			return candidates[i]
		}
		r -= w
	}
	// Rounding can leave r just above the last interval.
	return candidates[0]
}

// Pick is shorthand for New().Pick.
func Pick(rng Rand, candidates []string, lastPlayed string, antiRepeat bool) string {
	return New().Pick(rng, candidates, lastPlayed, antiRepeat)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
