/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"os"

	"github.com/faiface/beep"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/soundtrigger/internal/cache"
	"github.com/friendsincode/soundtrigger/internal/config"
	"github.com/friendsincode/soundtrigger/internal/db"
	"github.com/friendsincode/soundtrigger/internal/events"
	"github.com/friendsincode/soundtrigger/internal/library"
	"github.com/friendsincode/soundtrigger/internal/media"
	"github.com/friendsincode/soundtrigger/internal/playback"
	"github.com/friendsincode/soundtrigger/internal/scheduler"
	"github.com/friendsincode/soundtrigger/internal/settings"
)

// Core bundles the persistence-backed services shared by the daemon and the
// CLI commands.
type Core struct {
	DB       *gorm.DB
	Cache    *cache.Cache
	Bus      *events.Bus
	Library  *library.Service
	Settings *settings.Service

	logger  zerolog.Logger
	closers []func() error
}

// OpenCore connects and migrates the database and builds the services on top.
func OpenCore(cfg *config.Config, logger zerolog.Logger) (*Core, error) {
	database, err := db.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database); err != nil {
		_ = db.Close(database)
		return nil, err
	}

	c := &Core{
		DB:     database,
		Bus:    events.NewBus(),
		logger: logger,
	}
	c.deferClose(func() error { return db.Close(database) })

	if cfg.RedisEnabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.Enabled = true
		cacheCfg.RedisAddr = cfg.RedisAddr
		cacheCfg.RedisPassword = cfg.RedisPassword
		cacheCfg.RedisDB = cfg.RedisDB
		cacheCfg.SettingsTTL = cfg.CacheTTL
		cacheCfg.GroupTTL = cfg.CacheTTL
		c.Cache = cache.New(cacheCfg, logger)
		c.deferClose(c.Cache.Close)
	}

	c.Library = library.NewService(database, c.Cache, c.Bus, logger)
	c.Settings = settings.NewService(database, c.Cache, c.Library, c.Bus, logger)
	return c, nil
}

func (c *Core) deferClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

// Close releases owned resources in reverse order.
func (c *Core) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.closers = nil
	return firstErr
}

// Bootstrap seeds an empty library from the files in source.
func (c *Core) Bootstrap(ctx context.Context, source media.Source) error {
	names, err := source.List(ctx)
	if err != nil {
		return fmt.Errorf("list %s sound source: %w", source.Kind(), err)
	}
	created, err := c.Library.Bootstrap(ctx, names)
	if err != nil {
		return err
	}
	if created {
		// A fresh install plays from the default group.
		group := library.DefaultGroupName
		if _, err := c.Settings.Update(ctx, settings.Patch{Group: &group}); err != nil {
			return err
		}
	}
	return nil
}

// Audio is the sound source and playback engine pair.
type Audio struct {
	Source media.Source
	Engine *playback.Engine
}

// OpenAudio opens the configured sound source and the playback engine. A nil
// output initialises the system speaker.
func OpenAudio(ctx context.Context, cfg *config.Config, output playback.Output, logger zerolog.Logger) (*Audio, error) {
	if cfg.SoundSource == config.SoundSourceFS {
		if err := os.MkdirAll(cfg.SoundsDir, 0o755); err != nil {
			return nil, fmt.Errorf("create sound directory %s: %w", cfg.SoundsDir, err)
		}
	}

	source, err := media.NewSource(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := source.CheckAccess(ctx); err != nil {
		return nil, fmt.Errorf("sound source not reachable: %w", err)
	}

	if output == nil {
		output, err = playback.NewSpeakerOutput(sampleRate(cfg), cfg.BufferDuration)
		if err != nil {
			return nil, err
		}
	}

	return &Audio{
		Source: source,
		Engine: playback.NewEngine(source, output, sampleRate(cfg), logger),
	}, nil
}

// NewScheduler builds a scheduler playing through engine with the tuning
// constants from cfg.
func NewScheduler(cfg *config.Config, player scheduler.Player, notifier scheduler.Notifier, logger zerolog.Logger) *scheduler.Scheduler {
	return scheduler.New(player, logger,
		scheduler.WithNotifier(notifier),
		scheduler.WithTuning(scheduler.Tuning{
			SettleDelay:  cfg.SettleDelay,
			MaxJitter:    cfg.MaxJitter,
			RepeatWeight: cfg.RepeatWeight,
		}),
	)
}

func sampleRate(cfg *config.Config) beep.SampleRate {
	return beep.SampleRate(cfg.SampleRate)
}
