/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler runs the adaptive-probability trigger loop.
//
// A running Scheduler waits Interval, then draws against the current
// probability. A miss escalates the probability and waits again with jitter;
// a hit picks an asset, plays it, resets the probability and waits again
// after a short settle delay. All transitions go through resume, which is
// entered from timer and playback callbacks and serialised by one mutex.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/soundtrigger/internal/probability"
	"github.com/friendsincode/soundtrigger/internal/selector"
	"github.com/friendsincode/soundtrigger/internal/telemetry"
)

var errNoCompletion = errors.New("player returned no completion signal")

type eventKind int

const (
	evTick eventKind = iota
	evPlaybackDone
	evSettled
)

type event struct {
	kind  eventKind
	asset string
	err   error
}

// runState is owned by one run of the scheduler and discarded on Stop.
type runState struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
	source Source

	cfg         Config // last snapshot read successfully
	group       Group  // last group read successfully
	probability float64
	lastPlayed  string
	playing     string
	timer       Timer
}

// Scheduler owns the trigger loop. The zero value is not usable; call New.
type Scheduler struct {
	player   Player
	logger   zerolog.Logger
	clock    Clock
	rng      Rand
	tuning   Tuning
	notifier Notifier
	selector selector.Selector

	mu    sync.Mutex
	gen   uint64
	state State
	run   *runState
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithRand replaces the random source.
func WithRand(r Rand) Option {
	return func(s *Scheduler) { s.rng = r }
}

// WithTuning overrides the timing constants. A zero SettleDelay or
// RepeatWeight keeps the default; a zero MaxJitter disables jitter.
func WithTuning(t Tuning) Option {
	return func(s *Scheduler) {
		if t.SettleDelay > 0 {
			s.tuning.SettleDelay = t.SettleDelay
		}
		if t.MaxJitter >= 0 {
			s.tuning.MaxJitter = t.MaxJitter
		}
		if t.RepeatWeight > 0 {
			s.tuning.RepeatWeight = t.RepeatWeight
		}
	}
}

// WithNotifier registers the status receiver.
func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

// New constructs a stopped scheduler that plays through player.
func New(player Player, logger zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		player: player,
		logger: logger.With().Str("component", "scheduler").Logger(),
		clock:  systemClock{},
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		tuning: DefaultTuning(),
		state:  StateStopped,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.selector = selector.Selector{RepeatWeight: s.tuning.RepeatWeight}
	return s
}

// Start begins a new run reading configuration and group from src.
//
// Start on a running scheduler is a no-op and returns nil. An empty group
// fails with ErrEmptyGroup and leaves the scheduler stopped.
func (s *Scheduler) Start(ctx context.Context, src Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != nil {
		s.logger.Debug().Msg("start ignored, already running")
		return nil
	}

	cfg, err := src.Config(ctx)
	if err != nil {
		return fmt.Errorf("read schedule config: %w", err)
	}
	group, err := src.Group(ctx)
	if err != nil {
		return fmt.Errorf("read group: %w", err)
	}
	if len(group.Members) == 0 {
		return fmt.Errorf("%w: %q", ErrEmptyGroup, group.Name)
	}
	cfg = cfg.normalized()

	s.gen++
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run := &runState{
		gen:         s.gen,
		ctx:         runCtx,
		cancel:      cancel,
		source:      src,
		cfg:         cfg,
		group:       group,
		probability: probability.Reset(cfg.Params()),
	}
	s.run = run
	s.transition(StateWaiting)
	s.arm(run, cfg.Interval, evTick)

	telemetry.SchedulerRunning.Set(1)
	telemetry.TriggerProbability.Set(run.probability)
	s.logger.Info().
		Str("group", group.Name).
		Int("assets", len(group.Members)).
		Dur("interval", cfg.Interval).
		Float64("probability", run.probability).
		Msg("scheduler started")
	s.emit(run, Status{Kind: KindStarted, Message: "started: waiting for first decision"})
	return nil
}

// Stop ends the current run. It cancels the pending wait and any playback
// wait; callbacks that arrive later are ignored. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run == nil {
		return
	}
	s.stopLocked(Status{Kind: KindStopped, Message: "stopped"})
}

// Running reports whether a run is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil
}

// Snapshot returns the current state for display.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{State: s.state}
	if run := s.run; run != nil {
		snap.Running = true
		snap.Probability = run.probability
		snap.LastPlayed = run.lastPlayed
		snap.Playing = run.playing
		snap.Group = run.group.Name
	}
	return snap
}

// resume is the single entry point for timer and playback callbacks.
func (s *Scheduler) resume(gen uint64, ev event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := s.run
	if run == nil || run.gen != gen {
		return
	}

	switch ev.kind {
	case evTick:
		if s.state != StateWaiting {
			return
		}
		run.timer = nil
		s.decide(run)
	case evPlaybackDone:
		if s.state != StatePlaying || run.playing != ev.asset {
			return
		}
		s.finishPlayback(run, ev.asset, ev.err)
	case evSettled:
		if s.state != StateSettling {
			return
		}
		run.timer = nil
		cfg := s.refreshConfig(run)
		s.transition(StateWaiting)
		s.arm(run, cfg.Interval, evTick)
		s.emit(run, Status{Kind: KindResumed, Message: "resuming decisions"})
	}
}

func (s *Scheduler) decide(run *runState) {
	s.transition(StateDeciding)
	cfg := s.refreshConfig(run)

	draw := s.rng.Float64() * probability.Max
	if draw < run.probability {
		telemetry.DecisionsTotal.WithLabelValues("hit").Inc()
		s.hit(run, cfg, draw)
		return
	}

	telemetry.DecisionsTotal.WithLabelValues("miss").Inc()
	run.probability = probability.Escalate(run.probability, cfg.Params())
	telemetry.TriggerProbability.Set(run.probability)

	jitter := time.Duration(0)
	if s.tuning.MaxJitter > 0 {
		jitter = time.Duration(s.rng.Float64() * float64(s.tuning.MaxJitter))
	}
	s.transition(StateWaiting)
	s.arm(run, cfg.Interval+jitter, evTick)

	s.logger.Debug().
		Float64("draw", draw).
		Float64("next_probability", run.probability).
		Dur("wait", cfg.Interval+jitter).
		Msg("miss")
	s.emit(run, Status{
		Kind:    KindMiss,
		Message: fmt.Sprintf("next attempt probability %.1f%%", run.probability),
	})
}

func (s *Scheduler) hit(run *runState, cfg Config, draw float64) {
	group := s.refreshGroup(run)
	if len(group.Members) == 0 {
		s.logger.Warn().Str("group", group.Name).Msg("group emptied while running, stopping")
		s.stopLocked(Status{
			Kind:    KindGroupEmpty,
			Message: fmt.Sprintf("stopped: group %q has no assets", group.Name),
			Err:     ErrEmptyGroup,
		})
		return
	}

	asset := s.selector.Pick(s.rng, group.Members, run.lastPlayed, cfg.AntiRepeat)
	run.playing = asset
	s.transition(StatePlaying)

	s.logger.Info().
		Float64("draw", draw).
		Float64("probability", run.probability).
		Str("asset", asset).
		Msg("hit")
	s.emit(run, Status{Kind: KindPlaying, Message: "playing " + asset, Asset: asset})

	go s.awaitPlayback(run.ctx, run.gen, asset, cfg.Volume)
}

// awaitPlayback requests playback and feeds its completion back into resume.
func (s *Scheduler) awaitPlayback(ctx context.Context, gen uint64, asset string, volume float64) {
	ctx, span := telemetry.StartSpan(ctx, "scheduler", "playback")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{
		"asset":  asset,
		"volume": volume,
	})

	started := time.Now()
	done := s.player.Play(ctx, asset, volume)

	var err error
	if done == nil {
		err = errNoCompletion
	} else {
		select {
		case <-ctx.Done():
			return
		case playErr, ok := <-done:
			if ok {
				err = playErr
			}
		}
	}

	telemetry.PlaybackDuration.Observe(time.Since(started).Seconds())
	telemetry.RecordError(span, err)
	s.resume(gen, event{kind: evPlaybackDone, asset: asset, err: err})
}

func (s *Scheduler) finishPlayback(run *runState, asset string, playErr error) {
	cfg := s.refreshConfig(run)

	if playErr != nil {
		telemetry.PlaybackFailuresTotal.Inc()
		s.logger.Warn().Err(playErr).Str("asset", asset).Msg("playback failed")
		s.emit(run, Status{
			Kind:    KindPlaybackFailed,
			Message: fmt.Sprintf("error: %s could not be played", asset),
			Asset:   asset,
			Err:     playErr,
		})
	} else {
		s.emit(run, Status{Kind: KindFinished, Message: "finished " + asset, Asset: asset})
	}

	run.probability = probability.Reset(cfg.Params())
	run.lastPlayed = asset
	run.playing = ""
	telemetry.TriggerProbability.Set(run.probability)

	s.transition(StateSettling)
	s.arm(run, s.tuning.SettleDelay, evSettled)
}

func (s *Scheduler) stopLocked(final Status) {
	run := s.run
	if run.timer != nil {
		run.timer.Stop()
		run.timer = nil
	}
	run.cancel()
	s.transition(StateStopped)
	s.emit(run, final)
	s.run = nil

	telemetry.SchedulerRunning.Set(0)
	s.logger.Info().Str("reason", string(final.Kind)).Msg("scheduler stopped")
}

// arm schedules ev for the current run. Exactly one timer is pending per run.
func (s *Scheduler) arm(run *runState, d time.Duration, kind eventKind) {
	if run.timer != nil {
		run.timer.Stop()
	}
	gen := run.gen
	run.timer = s.clock.AfterFunc(d, func() {
		s.resume(gen, event{kind: kind})
	})
}

func (s *Scheduler) refreshConfig(run *runState) Config {
	cfg, err := run.source.Config(run.ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("config read failed, using last snapshot")
		return run.cfg
	}
	run.cfg = cfg.normalized()
	return run.cfg
}

func (s *Scheduler) refreshGroup(run *runState) Group {
	group, err := run.source.Group(run.ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("group read failed, using last snapshot")
		return run.group
	}
	run.group = group
	return group
}

func (s *Scheduler) transition(to State) {
	if s.state == to {
		return
	}
	s.logger.Debug().
		Str("from", string(s.state)).
		Str("to", string(to)).
		Msg("state transition")
	s.state = to
}

func (s *Scheduler) emit(run *runState, st Status) {
	if s.notifier == nil {
		return
	}
	st.State = s.state
	st.Probability = run.probability
	st.Group = run.group.Name
	st.At = s.clock.Now()
	s.notifier.Notify(st)
}
