/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package probability implements the escalation model used between trigger attempts.
package probability

import (
	"fmt"
	"strings"
)

// Bounds of a trigger probability, in percent.
const (
	Min = 0.0
	Max = 100.0
)

// Mode selects how the probability grows after a miss.
type Mode string

const (
	Linear      Mode = "linear"
	Exponential Mode = "exponential"
)

// ParseMode converts user input into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Linear:
		return Linear, nil
	case Exponential:
		return Exponential, nil
	default:
		return "", fmt.Errorf("unknown probability mode %q", s)
	}
}

// Params are the escalation parameters read from the schedule configuration.
//
// Step must be > 0 and Multiplier > 1; callers validate this before the values
// reach Escalate.
type Params struct {
	Initial    float64
	Mode       Mode
	Step       float64
	Multiplier float64
}

// Escalate returns the probability for the next attempt after a miss.
func Escalate(current float64, p Params) float64 {
	var next float64
	switch p.Mode {
	case Exponential:
		next = current * p.Multiplier
	default:
		next = current + p.Step
	}
	return Clamp(next)
}

// Reset returns the probability used right after a hit.
func Reset(p Params) float64 {
	return Clamp(p.Initial)
}

// Clamp limits v to [Min, Max].
func Clamp(v float64) float64 {
	if v != v { // NaN
		return Min
	}
	if v > Max {
		return Max
	}
	if v < Min {
		return Min
	}
	return v
}
