/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/friendsincode/soundtrigger/internal/scheduler"
	"github.com/friendsincode/soundtrigger/internal/server"
	"github.com/friendsincode/soundtrigger/internal/settings"
	"github.com/friendsincode/soundtrigger/internal/status"
)

var runCmd = &cobra.Command{
	Use:   "run [group]",
	Short: "Run the scheduler in the foreground",
	Long:  "Run the scheduler on the stored settings and print every status update. Flags override the stored settings for this run only.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRun,
}

var runFlags scheduleFlags

func init() {
	rootCmd.AddCommand(runCmd)
	runFlags.register(runCmd)
}

// scheduleFlags maps command line flags onto a settings patch.
type scheduleFlags struct {
	group       string
	interval    float64
	probability float64
	mode        string
	step        float64
	multiplier  float64
	antiRepeat  bool
	volume      float64
}

func (f *scheduleFlags) register(cmd *cobra.Command) {
	d := settings.Defaults()
	fs := cmd.Flags()
	fs.StringVar(&f.group, "group", "", "Group to play from")
	fs.Float64Var(&f.interval, "interval", d.IntervalSeconds, "Seconds between trigger decisions")
	fs.Float64Var(&f.probability, "probability", d.InitialProbability, "Initial trigger probability in percent")
	fs.StringVar(&f.mode, "mode", d.Mode, "Escalation mode: linear or exponential")
	fs.Float64Var(&f.step, "step", d.LinearStep, "Percentage points added after a miss (linear)")
	fs.Float64Var(&f.multiplier, "multiplier", d.ExponentialMultiplier, "Factor applied after a miss (exponential)")
	fs.BoolVar(&f.antiRepeat, "anti-repeat", d.AntiRepeat, "Make the previous sound less likely to play again")
	fs.Float64Var(&f.volume, "volume", d.Volume, "Playback volume between 0 and 1")
}

// patch returns a patch holding only the flags set on the command line.
func (f *scheduleFlags) patch(cmd *cobra.Command) settings.Patch {
	var p settings.Patch
	fs := cmd.Flags()
	if fs.Changed("group") {
		p.Group = &f.group
	}
	if fs.Changed("interval") {
		p.IntervalSeconds = &f.interval
	}
	if fs.Changed("probability") {
		p.InitialProbability = &f.probability
	}
	if fs.Changed("mode") {
		p.Mode = &f.mode
	}
	if fs.Changed("step") {
		p.LinearStep = &f.step
	}
	if fs.Changed("multiplier") {
		p.ExponentialMultiplier = &f.multiplier
	}
	if fs.Changed("anti-repeat") {
		p.AntiRepeat = &f.antiRepeat
	}
	if fs.Changed("volume") {
		p.Volume = &f.volume
	}
	return p
}

// formatStatus renders a status update as one line.
func formatStatus(st scheduler.Status) string {
	line := fmt.Sprintf("%s [%-8s] %s", st.At.Format("15:04:05"), st.State, st.Message)
	if st.Err != nil && st.Kind == scheduler.KindPlaybackFailed {
		line += " (" + st.Err.Error() + ")"
	}
	return line
}

// statusPrinter writes every status to w.
func statusPrinter(w io.Writer) scheduler.Notifier {
	var mu sync.Mutex
	return scheduler.NotifierFunc(func(st scheduler.Status) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(w, formatStatus(st))
	})
}

// session is a scheduler wired to the stored settings with play history
// recording, shared by run and console.
type session struct {
	core      *server.Core
	audio     *server.Audio
	scheduler *scheduler.Scheduler
	recorder  *status.Recorder
	cancel    context.CancelFunc
}

func openSession(ctx context.Context, out io.Writer) (*session, error) {
	core, err := openCore()
	if err != nil {
		return nil, err
	}
	audio, err := server.OpenAudio(ctx, cfg, nil, logger)
	if err != nil {
		core.Close()
		return nil, err
	}
	if err := core.Bootstrap(ctx, audio.Source); err != nil {
		core.Close()
		return nil, err
	}

	hub := status.NewHub(status.NewBuffer(cfg.StatusHistorySize), core.Bus, logger, statusPrinter(out))
	recCtx, cancel := context.WithCancel(context.Background())
	recorder := status.NewRecorder(core.DB, core.Bus, logger)
	recorder.Start(recCtx)

	return &session{
		core:      core,
		audio:     audio,
		scheduler: server.NewScheduler(cfg, audio.Engine, hub, logger),
		recorder:  recorder,
		cancel:    cancel,
	}, nil
}

func (s *session) Close() {
	s.scheduler.Stop()
	s.audio.Engine.StopAll()
	s.cancel()
	s.recorder.Wait()
	if err := s.core.Close(); err != nil {
		logger.Error().Err(err).Msg("close failed")
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	sess, err := openSession(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer sess.Close()

	p := runFlags.patch(cmd)
	if len(args) == 1 {
		p.Group = &args[0]
	}
	src := settings.Overlay{Service: sess.core.Settings, Patch: p}

	if err := sess.scheduler.Start(ctx, src); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}
