/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/friendsincode/soundtrigger/internal/probability"
)

// ErrEmptyGroup is returned by Start when the selected group has no assets.
var ErrEmptyGroup = errors.New("selected group has no assets")

// MinInterval is the shortest wait between decisions the scheduler will arm.
const MinInterval = time.Second

// State enumerates scheduler states.
type State string

const (
	StateStopped  State = "stopped"
	StateWaiting  State = "waiting"
	StateDeciding State = "deciding"
	StatePlaying  State = "playing"
	StateSettling State = "settling"
)

// Config is a snapshot of the schedule parameters. The scheduler pulls a fresh
// one from its Source at start and before every decision.
type Config struct {
	Interval              time.Duration
	InitialProbability    float64 // percent, [0,100]
	Mode                  probability.Mode
	LinearStep            float64
	ExponentialMultiplier float64
	AntiRepeat            bool
	Volume                float64 // [0,1]
}

// Params returns the escalation parameters of the snapshot.
func (c Config) Params() probability.Params {
	return probability.Params{
		Initial:    c.InitialProbability,
		Mode:       c.Mode,
		Step:       c.LinearStep,
		Multiplier: c.ExponentialMultiplier,
	}
}

// normalized clamps the values the scheduler relies on for its own
// invariants. Step and multiplier are validated upstream.
func (c Config) normalized() Config {
	c.InitialProbability = probability.Clamp(c.InitialProbability)
	if c.Volume != c.Volume || c.Volume < 0 {
		c.Volume = 0
	}
	if c.Volume > 1 {
		c.Volume = 1
	}
	if c.Interval < MinInterval {
		c.Interval = MinInterval
	}
	return c
}

// Group is the set of assets eligible for selection, in display order.
type Group struct {
	Name    string
	Members []string
}

// Source supplies the configuration and group the scheduler reads on every
// tick. Implementations must be safe to call from timer goroutines.
type Source interface {
	Config(ctx context.Context) (Config, error)
	Group(ctx context.Context) (Group, error)
}

// Player plays a single asset.
//
// The returned channel delivers exactly one value, nil when playback finished
// or the failure reason, and may then be closed. Play should return promptly
// and honour ctx cancellation.
type Player interface {
	Play(ctx context.Context, asset string, volume float64) <-chan error
}

// Notifier receives status updates at every state transition. Notify is
// called with the scheduler lock held and must not call back into the
// Scheduler.
type Notifier interface {
	Notify(Status)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Status)

// Notify calls f(st).
func (f NotifierFunc) Notify(st Status) { f(st) }

// StatusKind identifies the transition a Status reports.
type StatusKind string

const (
	KindStarted        StatusKind = "started"
	KindPlaying        StatusKind = "playing"
	KindFinished       StatusKind = "finished"
	KindPlaybackFailed StatusKind = "playback_failed"
	KindResumed        StatusKind = "resumed"
	KindMiss           StatusKind = "miss"
	KindGroupEmpty     StatusKind = "group_empty"
	KindStopped        StatusKind = "stopped"
)

// Status is a human readable update emitted by the scheduler.
type Status struct {
	Kind        StatusKind
	Message     string
	State       State
	Probability float64
	Asset       string
	Group       string
	Err         error
	At          time.Time
}

// Snapshot describes the scheduler at a point in time.
type Snapshot struct {
	State       State
	Running     bool
	Probability float64
	LastPlayed  string
	Playing     string
	Group       string
}

// Clock arms one-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending one-shot callback.
type Timer interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Rand is the random source for decisions, jitter and selection.
// *math/rand.Rand satisfies it; it is only used under the scheduler lock.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// Tuning holds the timing and selection constants of the loop.
type Tuning struct {
	// SettleDelay is the pause after a playback completes before the next wait is armed.
	SettleDelay time.Duration
	// MaxJitter bounds the random extra wait added after a miss.
	MaxJitter time.Duration
	// RepeatWeight is the selection weight of the previous asset under anti-repeat.
	RepeatWeight float64
}

// DefaultTuning returns the stock timing constants.
func DefaultTuning() Tuning {
	return Tuning{
		SettleDelay:  500 * time.Millisecond,
		MaxJitter:    500 * time.Millisecond,
		RepeatWeight: 0.5,
	}
}

// StaticSource serves fixed values. It is used by the CLI run command and tests.
type StaticSource struct {
	Cfg Config
	Grp Group
	Err error
}

// Config returns s.Cfg.
func (s StaticSource) Config(context.Context) (Config, error) { return s.Cfg, s.Err }

// Group returns s.Grp.
func (s StaticSource) Group(context.Context) (Group, error) { return s.Grp, s.Err }
