/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playback decodes sound files and plays them on the audio device.
package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"github.com/rs/zerolog"
)

// ErrUnsupportedFormat is returned for files the engine cannot decode.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Opener resolves asset names to file contents. media.Source satisfies it.
type Opener interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Output is the audio device. Lock/Unlock guard streamers that are already
// playing.
type Output interface {
	Play(s ...beep.Streamer)
	Lock()
	Unlock()
	Clear()
}

type speakerOutput struct{}

func (speakerOutput) Play(s ...beep.Streamer) { speaker.Play(s...) }
func (speakerOutput) Lock()                   { speaker.Lock() }
func (speakerOutput) Unlock()                 { speaker.Unlock() }
func (speakerOutput) Clear()                  { speaker.Clear() }

// NewSpeakerOutput initialises the system speaker.
func NewSpeakerOutput(sr beep.SampleRate, buffer time.Duration) (Output, error) {
	if err := speaker.Init(sr, sr.N(buffer)); err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	return speakerOutput{}, nil
}

// Engine plays assets from an Opener. It implements scheduler.Player.
type Engine struct {
	source     Opener
	output     Output
	sampleRate beep.SampleRate
	logger     zerolog.Logger

	mu     sync.Mutex
	active map[*beep.Ctrl]struct{}
}

// NewEngine creates an engine writing to output at sampleRate.
func NewEngine(source Opener, output Output, sampleRate beep.SampleRate, logger zerolog.Logger) *Engine {
	return &Engine{
		source:     source,
		output:     output,
		sampleRate: sampleRate,
		logger:     logger.With().Str("component", "playback").Logger(),
		active:     make(map[*beep.Ctrl]struct{}),
	}
}

// Play starts asset at volume in [0,1]. The returned channel receives nil
// when the sound finished, or the reason it could not be played, and is then
// closed. Cancelling ctx stops the sound.
func (e *Engine) Play(ctx context.Context, asset string, volume float64) <-chan error {
	done := make(chan error, 1)

	streamer, format, err := e.open(ctx, asset)
	if err != nil {
		e.logger.Warn().Err(err).Str("asset", asset).Msg("cannot play asset")
		done <- err
		close(done)
		return done
	}

	var s beep.Streamer = streamer
	if format.SampleRate != e.sampleRate {
		s = beep.Resample(4, format.SampleRate, e.sampleRate, s)
	}
	ctrl := &beep.Ctrl{Streamer: gain(s, volume)}

	finished := make(chan struct{})
	e.mu.Lock()
	e.active[ctrl] = struct{}{}
	e.mu.Unlock()
	e.output.Play(beep.Seq(ctrl, beep.Callback(func() { close(finished) })))

	e.logger.Debug().
		Str("asset", asset).
		Float64("volume", volume).
		Dur("length", format.SampleRate.D(streamer.Len())).
		Msg("playback started")

	go func() {
		defer close(done)
		defer func() {
			e.mu.Lock()
			delete(e.active, ctrl)
			e.mu.Unlock()
			streamer.Close()
		}()

		select {
		case <-finished:
			done <- streamer.Err()
		case <-ctx.Done():
			e.output.Lock()
			ctrl.Streamer = nil
			e.output.Unlock()
			done <- ctx.Err()
		}
	}()
	return done
}

// StopAll silences every sound the engine started.
func (e *Engine) StopAll() {
	e.mu.Lock()
	ctrls := make([]*beep.Ctrl, 0, len(e.active))
	for c := range e.active {
		ctrls = append(ctrls, c)
	}
	e.mu.Unlock()

	e.output.Lock()
	for _, c := range ctrls {
		c.Streamer = nil
	}
	e.output.Unlock()
}

func (e *Engine) open(ctx context.Context, asset string) (beep.StreamSeekCloser, beep.Format, error) {
	decode, err := decoderFor(asset)
	if err != nil {
		return nil, beep.Format{}, err
	}
	rc, err := e.source.Open(ctx, asset)
	if err != nil {
		return nil, beep.Format{}, err
	}
	streamer, format, err := decode(rc)
	if err != nil {
		rc.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", asset, err)
	}
	return streamer, format, nil
}

type decodeFunc func(io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error)

func decoderFor(asset string) (decodeFunc, error) {
	switch strings.ToLower(filepath.Ext(asset)) {
	case ".mp3":
		return mp3.Decode, nil
	case ".wav":
		return func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
			return wav.Decode(rc)
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, asset)
	}
}

// gain maps a linear volume in [0,1] onto a base-2 decibel-style volume effect.
func gain(s beep.Streamer, volume float64) beep.Streamer {
	if volume >= 1 {
		return s
	}
	if volume <= 0 || math.IsNaN(volume) {
		return &effects.Volume{Streamer: s, Base: 2, Silent: true}
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(volume)}
}
