/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"github.com/friendsincode/soundtrigger/internal/probability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward, firing due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.at
		next.fired = true
		c.mu.Unlock()
		next.f()
	}
}

// Pending returns the remaining durations of armed timers, shortest first.
func (c *fakeClock) Pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.at.Sub(c.now))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// scriptRand replays draws; once exhausted Float64 returns a value that always misses.
type scriptRand struct {
	mu     sync.Mutex
	floats []float64
	ints   []int
}

func (r *scriptRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.floats) == 0 {
		return 0.999
	}
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}

func (r *scriptRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	return v % n
}

type playCall struct {
	asset  string
	volume float64
	done   chan error
}

type fakePlayer struct {
	requests chan playCall
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{requests: make(chan playCall, 16)}
}

func (p *fakePlayer) Play(ctx context.Context, asset string, volume float64) <-chan error {
	call := playCall{asset: asset, volume: volume, done: make(chan error, 1)}
	p.requests <- call
	return call.done
}

func (p *fakePlayer) next(t *testing.T) playCall {
	t.Helper()
	select {
	case call := <-p.requests:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for play request")
		return playCall{}
	}
}

type recorder struct {
	mu       sync.Mutex
	statuses []Status
	ch       chan Status
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Status, 256)}
}

func (r *recorder) Notify(st Status) {
	r.mu.Lock()
	r.statuses = append(r.statuses, st)
	r.mu.Unlock()
	r.ch <- st
}

func (r *recorder) waitFor(t *testing.T, kind StatusKind) Status {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-r.ch:
			if st.Kind == kind {
				return st
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s status", kind)
			return Status{}
		}
	}
}

func (r *recorder) kinds() []StatusKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StatusKind, len(r.statuses))
	for i, st := range r.statuses {
		out[i] = st.Kind
	}
	return out
}

func (r *recorder) count(kind StatusKind) int {
	n := 0
	for _, k := range r.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

type mutableSource struct {
	mu    sync.Mutex
	cfg   Config
	group Group
}

func (m *mutableSource) Config(context.Context) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg, nil
}

func (m *mutableSource) Group(context.Context) (Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Group{Name: m.group.Name, Members: append([]string(nil), m.group.Members...)}, nil
}

func (m *mutableSource) update(f func(*mutableSource)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f(m)
}

const interval = 10 * time.Second

func linearConfig() Config {
	return Config{
		Interval:              interval,
		InitialProbability:    10,
		Mode:                  probability.Linear,
		LinearStep:            15,
		ExponentialMultiplier: 2,
		AntiRepeat:            true,
		Volume:                0.8,
	}
}

type harness struct {
	clock  *fakeClock
	rng    *scriptRand
	player *fakePlayer
	rec    *recorder
	sched  *Scheduler
}

func newHarness(rng *scriptRand, tuning Tuning) *harness {
	h := &harness{
		clock:  newFakeClock(),
		rng:    rng,
		player: newFakePlayer(),
		rec:    newRecorder(),
	}
	h.sched = New(h.player, zerolog.Nop(),
		WithClock(h.clock),
		WithRand(rng),
		WithTuning(tuning),
		WithNotifier(h.rec),
	)
	return h
}

func noJitter() Tuning {
	return Tuning{SettleDelay: 500 * time.Millisecond, MaxJitter: 0, RepeatWeight: 0.5}
}

func TestStartRejectsEmptyGroup(t *testing.T) {
	h := newHarness(&scriptRand{}, noJitter())

	err := h.sched.Start(context.Background(), StaticSource{Cfg: linearConfig(), Grp: Group{Name: "empty"}})
	if !errors.Is(err, ErrEmptyGroup) {
		t.Fatalf("Start() error = %v, want ErrEmptyGroup", err)
	}
	snap := h.sched.Snapshot()
	if snap.State != StateStopped || snap.Running {
		t.Fatalf("expected stopped scheduler, got %+v", snap)
	}
	if pending := h.clock.Pending(); len(pending) != 0 {
		t.Fatalf("expected no pending timers, got %v", pending)
	}
	if len(h.rec.kinds()) != 0 {
		t.Fatalf("expected no statuses, got %v", h.rec.kinds())
	}
}

func TestStartSourceError(t *testing.T) {
	h := newHarness(&scriptRand{}, noJitter())
	boom := errors.New("db down")

	err := h.sched.Start(context.Background(), StaticSource{Err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("Start() error = %v, want wrapped %v", err, boom)
	}
	if h.sched.Running() {
		t.Fatal("scheduler should not be running")
	}
}

func TestStartArmsInterval(t *testing.T) {
	h := newHarness(&scriptRand{}, noJitter())
	src := StaticSource{Cfg: linearConfig(), Grp: Group{Name: "all", Members: []string{"a.mp3"}}}

	if err := h.sched.Start(context.Background(), src); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.sched.Stop()

	snap := h.sched.Snapshot()
	if snap.State != StateWaiting || snap.Probability != 10 || snap.LastPlayed != "" {
		t.Fatalf("unexpected snapshot after start: %+v", snap)
	}
	if pending := h.clock.Pending(); len(pending) != 1 || pending[0] != interval {
		t.Fatalf("pending timers = %v, want [%v]", pending, interval)
	}
	if kinds := h.rec.kinds(); len(kinds) != 1 || kinds[0] != KindStarted {
		t.Fatalf("statuses = %v, want [started]", kinds)
	}
}

func TestLinearEscalationAcrossMisses(t *testing.T) {
	h := newHarness(&scriptRand{}, noJitter())
	src := StaticSource{Cfg: linearConfig(), Grp: Group{Name: "all", Members: []string{"a.mp3", "b.mp3"}}}
	if err := h.sched.Start(context.Background(), src); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.sched.Stop()

	want := []float64{25, 40, 55}
	messages := []string{"next attempt probability 25.0%", "next attempt probability 40.0%", "next attempt probability 55.0%"}
	for i, w := range want {
		h.clock.Advance(interval)
		st := h.rec.waitFor(t, KindMiss)
		if got := h.sched.Snapshot().Probability; got != w {
			t.Fatalf("miss %d: probability = %v, want %v", i+1, got, w)
		}
		if st.Message != messages[i] {
			t.Fatalf("miss %d: message = %q, want %q", i+1, st.Message, messages[i])
		}
		if st.State != StateWaiting {
			t.Fatalf("miss %d: state = %s, want waiting", i+1, st.State)
		}
	}
}

func TestExponentialEscalationAcrossMisses(t *testing.T) {
	cfg := linearConfig()
	cfg.Mode = probability.Exponential
	cfg.ExponentialMultiplier = 2

	h := newHarness(&scriptRand{}, noJitter())
	if err := h.sched.Start(context.Background(), StaticSource{Cfg: cfg, Grp: Group{Name: "all", Members: []string{"a.mp3"}}}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.sched.Stop()

	for i, w := range []float64{20, 40} {
		h.clock.Advance(interval)
		if got := h.sched.Snapshot().Probability; got != w {
			t.Fatalf("miss %d: probability = %v, want %v", i+1, got, w)
		}
	}
}

func TestProbabilityNeverExceedsMax(t *testing.T) {
	cfg := linearConfig()
	cfg.LinearStep = 45

	// Draws of 99.9 miss until the probability reaches 100.
	h := newHarness(&scriptRand{}, noJitter())
	if err := h.sched.Start(context.Background(), StaticSource{Cfg: cfg, Grp: Group{Name: "all", Members: []string{"a.mp3"}}}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.sched.Stop()

	for i := 0; i < 2; i++ {
		h.clock.Advance(interval)
	}
	if got := h.sched.Snapshot().Probability; got != 100 {
		t.Fatalf("probability = %v, want clamp at 100", got)
	}
}

func TestJitterAddedAfterMiss(t *testing.T) {
	rng := &scriptRand{floats: []float64{0.999, 0.5}}
	h := newHarness(rng, Tuning{SettleDelay: 500 * time.Millisecond, MaxJitter: 500 * time.Millisecond})
	if err := h.sched.Start(context.Background(), StaticSource{Cfg: linearConfig(), Grp: Group{Name: "all", Members: []string{"a.mp3"}}}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.sched.Stop()

	h.clock.Advance(interval)
	want := interval + 250*time.Millisecond
	if pending := h.clock.Pending(); len(pending) != 1 || pending[0] != want {
		t.Fatalf("pending timers = %v, want [%v]", pending, want)
	}
}

func TestHitPlaysResetsAndRearms(t *testing.T) {
	// miss, miss, then a draw of 30 against 40%.
	rng := &scriptRand{floats: []float64{0.999, 0.999, 0.30}, ints: []int{1}}
	h := newHarness(rng, noJitter())
	src := StaticSource{Cfg: linearConfig(), Grp: Group{Name: "all", Members: []string{"a.mp3", "b.mp3"}}}
	if err := h.sched.Start(context.Background(), src); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.sched.Stop()

	h.clock.Advance(interval)
	h.clock.Advance(interval)
	h.clock.Advance(interval)

	playing := h.rec.waitFor(t, KindPlaying)
	if playing.Asset != "b.mp3" || playing.Probability != 40 {
		t.Fatalf("playing status = %+v, want b.mp3 at 40%%", playing)
	}
	if pending := h.clock.Pending(); len(pending) != 0 {
		t.Fatalf("no timer should be armed while playing, got %v", pending)
	}

	call := h.player.next(t)
	if call.asset != "b.mp3" || call.volume != 0.8 {
		t.Fatalf("play call = %+v, want b.mp3 at volume 0.8", call)
	}
	if snap := h.sched.Snapshot(); snap.State != StatePlaying || snap.Playing != "b.mp3" {
		t.Fatalf("snapshot while playing = %+v", snap)
	}

	call.done <- nil
	h.rec.waitFor(t, KindFinished)

	snap := h.sched.Snapshot()
	if snap.Probability != 10 {
		t.Fatalf("probability after hit = %v, want initial 10", snap.Probability)
	}
	if snap.LastPlayed != "b.mp3" || snap.State != StateSettling {
		t.Fatalf("snapshot after playback = %+v", snap)
	}
	if pending := h.clock.Pending(); len(pending) != 1 || pending[0] != 500*time.Millisecond {
		t.Fatalf("pending timers = %v, want settle delay", pending)
	}

	h.clock.Advance(500 * time.Millisecond)
	h.rec.waitFor(t, KindResumed)
	if snap := h.sched.Snapshot(); snap.State != StateWaiting {
		t.Fatalf("state after settle = %s, want waiting", snap.State)
	}
	if pending := h.clock.Pending(); len(pending) != 1 || pending[0] != interval {
		t.Fatalf("pending timers = %v, want [%v]", pending, interval)
	}

	want := []StatusKind{KindStarted, KindMiss, KindMiss, KindPlaying, KindFinished, KindResumed}
	if got := h.rec.kinds(); !equalKinds(got, want) {
		t.Fatalf("statuses = %v, want %v", got, want)
	}
}

func TestPlaybackFailureStillRearms(t *testing.T) {
	rng := &scriptRand{floats: []float64{0.05}}
	h := newHarness(rng, noJitter())
	if err := h.sched.Start(context.Background(), StaticSource{Cfg: linearConfig(), Grp: Group{Name: "all", Members: []string{"gone.mp3"}}}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.sched.Stop()

	h.clock.Advance(interval)
	call := h.player.next(t)
	call.done <- errors.New("open gone.mp3: no such file")

	st := h.rec.waitFor(t, KindPlaybackFailed)
	if st.Err == nil || st.Asset != "gone.mp3" {
		t.Fatalf("failure status = %+v", st)
	}
	if st.Message != "error: gone.mp3 could not be played" {
		t.Fatalf("failure message = %q", st.Message)
	}

	snap := h.sched.Snapshot()
	if snap.Probability != 10 || snap.LastPlayed != "gone.mp3" || snap.State != StateSettling {
		t.Fatalf("snapshot after failure = %+v", snap)
	}
	h.clock.Advance(500 * time.Millisecond)
	if !h.sched.Running() || h.sched.Snapshot().State != StateWaiting {
		t.Fatal("scheduler should keep running after a playback failure")
	}
}

func TestClosedCompletionCountsAsFinished(t *testing.T) {
	rng := &scriptRand{floats: []float64{0.05}}
	h := newHarness(rng, noJitter())
	if err := h.sched.Start(context.Background(), StaticSource{Cfg: linearConfig(), Grp: Group{Name: "all", Members: []string{"a.mp3"}}}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.sched.Stop()

	h.clock.Advance(interval)
	call := h.player.next(t)
	close(call.done)
	h.rec.waitFor(t, KindFinished)
}

func TestResetAfterManyEscalations(t *testing.T) {
	cfg := linearConfig()
	cfg.InitialProbability = 3
	cfg.LinearStep = 7

	floats := make([]float64, 0, 9)
	for i := 0; i < 8; i++ {
		floats = append(floats, 0.999)
	}
	floats = append(floats, 0.0)
	h := newHarness(&scriptRand{floats: floats}, noJitter())
	if err := h.sched.Start(context.Background(), StaticSource{Cfg: cfg, Grp: Group{Name: "all", Members: []string{"a.mp3"}}}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.sched.Stop()

	for i := 0; i < 9; i++ {
		h.clock.Advance(interval)
	}
	call := h.player.next(t)
	call.done <- nil
	h.rec.waitFor(t, KindFinished)

	if got := h.sched.Snapshot().Probability; got != 3 {
		t.Fatalf("probability after hit = %v, want exactly 3", got)
	}
}

func TestStopIsIdempotentAndCancelsWait(t *testing.T) {
	h := newHarness(&scriptRand{}, noJitter())
	if err := h.sched.Start(context.Background(), StaticSource{Cfg: linearConfig(), Grp: Group{Name: "all", Members: []string{"a.mp3"}}}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.sched.Stop()
	first := h.sched.Snapshot()
	h.sched.Stop()
	second := h.sched.Snapshot()

	if first != second || second.State != StateStopped || second.Running {
		t.Fatalf("snapshots differ or not stopped: %+v vs %+v", first, second)
	}
	if pending := h.clock.Pending(); len(pending) != 0 {
		t.Fatalf("pending timers after stop = %v", pending)
	}

	h.clock.Advance(time.Hour)
	if n := h.rec.count(KindMiss); n != 0 {
		t.Fatalf("expected no decisions after stop, got %d misses", n)
	}
	if n := h.rec.count(KindStopped); n != 1 {
		t.Fatalf("expected exactly one stopped status, got %d", n)
	}
}

func TestStopWhileStoppedIsNoop(t *testing.T) {
	h := newHarness(&scriptRand{}, noJitter())
	h.sched.Stop()
	if len(h.rec.kinds()) != 0 || h.sched.Snapshot().State != StateStopped {
		t.Fatal("stop on a fresh scheduler should do nothing")
	}
}

func TestLateCompletionAfterStopIsIgnored(t *testing.T) {
	rng := &scriptRand{floats: []float64{0.05}}
	h := newHarness(rng, noJitter())
	if err := h.sched.Start(context.Background(), StaticSource{Cfg: linearConfig(), Grp: Group{Name: "all", Members: []string{"a.mp3"}}}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.clock.Advance(interval)
	call := h.player.next(t)
	h.sched.Stop()
	call.done <- nil

	// Give a stray callback a chance to run.
	time.Sleep(20 * time.Millisecond)
	h.clock.Advance(time.Hour)

	if h.sched.Running() {
		t.Fatal("late completion resurrected the scheduler")
	}
	for _, k := range h.rec.kinds() {
		if k == KindFinished || k == KindResumed {
			t.Fatalf("unexpected %s status after stop: %v", k, h.rec.kinds())
		}
	}
}

func TestStaleTimerFromPreviousRunIsIgnored(t *testing.T) {
	h := newHarness(&scriptRand{}, noJitter())
	src := StaticSource{Cfg: linearConfig(), Grp: Group{Name: "all", Members: []string{"a.mp3"}}}

	if err := h.sched.Start(context.Background(), src); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.sched.mu.Lock()
	oldGen := h.sched.run.gen
	h.sched.mu.Unlock()
	h.sched.Stop()

	if err := h.sched.Start(context.Background(), src); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer h.sched.Stop()

	h.sched.resume(oldGen, event{kind: evTick})
	if got := h.sched.Snapshot().Probability; got != 10 {
		t.Fatalf("stale tick changed probability to %v", got)
	}
	if n := h.rec.count(KindMiss); n != 0 {
		t.Fatalf("stale tick produced %d decisions", n)
	}
}

func TestStartWhileRunningKeepsState(t *testing.T) {
	// miss, hit (draw 5 < 25), then misses.
	rng := &scriptRand{floats: []float64{0.999, 0.05}}
	h := newHarness(rng, noJitter())
	src := StaticSource{Cfg: linearConfig(), Grp: Group{Name: "all", Members: []string{"a.mp3"}}}
	if err := h.sched.Start(context.Background(), src); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.sched.Stop()

	h.clock.Advance(interval)
	h.clock.Advance(interval)
	call := h.player.next(t)
	call.done <- nil
	h.rec.waitFor(t, KindFinished)
	h.clock.Advance(500 * time.Millisecond)
	h.clock.Advance(interval)
	before := h.sched.Snapshot()

	other := linearConfig()
	other.InitialProbability = 90
	if err := h.sched.Start(context.Background(), StaticSource{Cfg: other, Grp: Group{Name: "other", Members: []string{"z.mp3"}}}); err != nil {
		t.Fatalf("second Start returned error: %v", err)
	}

	after := h.sched.Snapshot()
	if after != before {
		t.Fatalf("second Start changed state: before %+v after %+v", before, after)
	}
	if before.LastPlayed != "a.mp3" || before.Probability != 25 {
		t.Fatalf("unexpected state before second start: %+v", before)
	}
	if n := h.rec.count(KindStarted); n != 1 {
		t.Fatalf("started statuses = %d, want 1", n)
	}
}

func TestConfigReadFreshEachTick(t *testing.T) {
	src := &mutableSource{cfg: linearConfig(), group: Group{Name: "all", Members: []string{"a.mp3"}}}
	h := newHarness(&scriptRand{}, noJitter())
	if err := h.sched.Start(context.Background(), src); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.sched.Stop()

	h.clock.Advance(interval) // 10 -> 25
	src.update(func(m *mutableSource) {
		m.cfg.LinearStep = 1
		m.cfg.Interval = 30 * time.Second
	})
	h.clock.Advance(interval) // tick armed with old interval; 25 -> 26

	if got := h.sched.Snapshot().Probability; got != 26 {
		t.Fatalf("probability = %v, want 26 after step change", got)
	}
	if pending := h.clock.Pending(); len(pending) != 1 || pending[0] != 30*time.Second {
		t.Fatalf("pending timers = %v, want new interval 30s", pending)
	}
}

func TestGroupEmptiedWhileRunningStops(t *testing.T) {
	src := &mutableSource{cfg: linearConfig(), group: Group{Name: "all", Members: []string{"a.mp3"}}}
	h := newHarness(&scriptRand{floats: []float64{0.01}}, noJitter())
	if err := h.sched.Start(context.Background(), src); err != nil {
		t.Fatalf("Start: %v", err)
	}

	src.update(func(m *mutableSource) { m.group.Members = nil })
	h.clock.Advance(interval)

	st := h.rec.waitFor(t, KindGroupEmpty)
	if !errors.Is(st.Err, ErrEmptyGroup) {
		t.Fatalf("group empty status error = %v", st.Err)
	}
	if h.sched.Running() {
		t.Fatal("scheduler should stop when its group is emptied")
	}
	if pending := h.clock.Pending(); len(pending) != 0 {
		t.Fatalf("pending timers = %v", pending)
	}
}

func TestAntiRepeatUsesLastPlayed(t *testing.T) {
	// First hit picks a.mp3 uniformly; second hit uses a weighted draw.
	// Weights [a=0.5, b=1.0]; 0.2*1.5 = 0.3 < 0.5 picks a again.
	rng := &scriptRand{floats: []float64{0.0, 0.0, 0.2}, ints: []int{0}}
	h := newHarness(rng, noJitter())
	src := StaticSource{Cfg: linearConfig(), Grp: Group{Name: "all", Members: []string{"a.mp3", "b.mp3"}}}
	if err := h.sched.Start(context.Background(), src); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.sched.Stop()

	h.clock.Advance(interval)
	first := h.player.next(t)
	first.done <- nil
	h.rec.waitFor(t, KindFinished)
	h.clock.Advance(500 * time.Millisecond)

	h.clock.Advance(interval)
	second := h.player.next(t)
	if first.asset != "a.mp3" || second.asset != "a.mp3" {
		t.Fatalf("picks = %s, %s; want a.mp3 twice", first.asset, second.asset)
	}
	second.done <- nil
	h.rec.waitFor(t, KindFinished)
}

func TestConfigNormalized(t *testing.T) {
	tests := []struct {
		name string
		in   Config
		want Config
	}{
		{
			name: "in range untouched",
			in:   Config{Interval: 5 * time.Second, InitialProbability: 20, Volume: 0.5},
			want: Config{Interval: 5 * time.Second, InitialProbability: 20, Volume: 0.5},
		},
		{
			name: "probability above max",
			in:   Config{Interval: 5 * time.Second, InitialProbability: 150, Volume: 0.5},
			want: Config{Interval: 5 * time.Second, InitialProbability: 100, Volume: 0.5},
		},
		{
			name: "negative probability and volume",
			in:   Config{Interval: 5 * time.Second, InitialProbability: -3, Volume: -1},
			want: Config{Interval: 5 * time.Second, InitialProbability: 0, Volume: 0},
		},
		{
			name: "volume above one",
			in:   Config{Interval: 5 * time.Second, Volume: 4},
			want: Config{Interval: 5 * time.Second, Volume: 1},
		},
		{
			name: "interval below minimum",
			in:   Config{Interval: 0, Volume: 1},
			want: Config{Interval: MinInterval, Volume: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.normalized(); got != tt.want {
				t.Errorf("normalized() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStartClampsInitialProbability(t *testing.T) {
	cfg := linearConfig()
	cfg.InitialProbability = 250

	h := newHarness(&scriptRand{}, noJitter())
	if err := h.sched.Start(context.Background(), StaticSource{Cfg: cfg, Grp: Group{Name: "all", Members: []string{"a.mp3"}}}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.sched.Stop()

	if got := h.sched.Snapshot().Probability; got != 100 {
		t.Fatalf("probability = %v, want 100", got)
	}
}

func equalKinds(a, b []StatusKind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
