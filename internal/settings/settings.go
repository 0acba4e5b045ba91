/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package settings persists the schedule parameters and serves them to the
// scheduler as its Source.
package settings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/soundtrigger/internal/cache"
	"github.com/friendsincode/soundtrigger/internal/events"
	"github.com/friendsincode/soundtrigger/internal/library"
	"github.com/friendsincode/soundtrigger/internal/models"
	"github.com/friendsincode/soundtrigger/internal/probability"
	"github.com/friendsincode/soundtrigger/internal/scheduler"
)

// ErrInvalidSettings wraps every validation failure.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings is the user-facing view of the schedule parameters.
type Settings struct {
	IntervalSeconds       float64 `json:"interval_seconds" yaml:"interval_seconds"`
	InitialProbability    float64 `json:"initial_probability" yaml:"initial_probability"`
	Mode                  string  `json:"mode" yaml:"mode"`
	LinearStep            float64 `json:"linear_step" yaml:"linear_step"`
	ExponentialMultiplier float64 `json:"exponential_multiplier" yaml:"exponential_multiplier"`
	AntiRepeat            bool    `json:"anti_repeat" yaml:"anti_repeat"`
	Volume                float64 `json:"volume" yaml:"volume"`
	Group                 string  `json:"group" yaml:"group"`
}

// Defaults returns the settings of a fresh install.
func Defaults() Settings {
	return fromModel(models.DefaultScheduleSettings())
}

func fromModel(m models.ScheduleSettings) Settings {
	return Settings{
		IntervalSeconds:       m.IntervalSeconds,
		InitialProbability:    m.InitialProbability,
		Mode:                  m.Mode,
		LinearStep:            m.LinearStep,
		ExponentialMultiplier: m.ExponentialMultiplier,
		AntiRepeat:            m.AntiRepeat,
		Volume:                m.Volume,
		Group:                 m.GroupName,
	}
}

func (s Settings) toModel() models.ScheduleSettings {
	return models.ScheduleSettings{
		ID:                    1,
		IntervalSeconds:       s.IntervalSeconds,
		InitialProbability:    s.InitialProbability,
		Mode:                  s.Mode,
		LinearStep:            s.LinearStep,
		ExponentialMultiplier: s.ExponentialMultiplier,
		AntiRepeat:            s.AntiRepeat,
		Volume:                s.Volume,
		GroupName:             s.Group,
	}
}

func fromCached(c *cache.CachedSettings) Settings {
	return Settings{
		IntervalSeconds:       c.IntervalSeconds,
		InitialProbability:    c.InitialProbability,
		Mode:                  c.Mode,
		LinearStep:            c.LinearStep,
		ExponentialMultiplier: c.ExponentialMultiplier,
		AntiRepeat:            c.AntiRepeat,
		Volume:                c.Volume,
		Group:                 c.GroupName,
	}
}

func (s Settings) toCached() *cache.CachedSettings {
	return &cache.CachedSettings{
		IntervalSeconds:       s.IntervalSeconds,
		InitialProbability:    s.InitialProbability,
		Mode:                  s.Mode,
		LinearStep:            s.LinearStep,
		ExponentialMultiplier: s.ExponentialMultiplier,
		AntiRepeat:            s.AntiRepeat,
		Volume:                s.Volume,
		GroupName:             s.Group,
	}
}

// Validate checks every numeric precondition the scheduler documents.
func (s Settings) Validate() error {
	minInterval := scheduler.MinInterval.Seconds()
	switch {
	case !finite(s.IntervalSeconds) || s.IntervalSeconds < minInterval:
		return fmt.Errorf("%w: interval must be at least %gs", ErrInvalidSettings, minInterval)
	case !finite(s.InitialProbability) || s.InitialProbability < probability.Min || s.InitialProbability > probability.Max:
		return fmt.Errorf("%w: initial probability must be within [0,100]", ErrInvalidSettings)
	case !finite(s.LinearStep) || s.LinearStep <= 0:
		return fmt.Errorf("%w: linear step must be positive", ErrInvalidSettings)
	case !finite(s.ExponentialMultiplier) || s.ExponentialMultiplier <= 1:
		return fmt.Errorf("%w: exponential multiplier must be greater than 1", ErrInvalidSettings)
	case !finite(s.Volume) || s.Volume < 0 || s.Volume > 1:
		return fmt.Errorf("%w: volume must be within [0,1]", ErrInvalidSettings)
	}
	if _, err := probability.ParseMode(s.Mode); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ScheduleConfig converts the settings into a scheduler snapshot. An
// unparseable mode falls back to linear.
func (s Settings) ScheduleConfig() scheduler.Config {
	mode, err := probability.ParseMode(s.Mode)
	if err != nil {
		mode = probability.Linear
	}
	return scheduler.Config{
		Interval:              time.Duration(s.IntervalSeconds * float64(time.Second)),
		InitialProbability:    s.InitialProbability,
		Mode:                  mode,
		LinearStep:            s.LinearStep,
		ExponentialMultiplier: s.ExponentialMultiplier,
		AntiRepeat:            s.AntiRepeat,
		Volume:                s.Volume,
	}
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	IntervalSeconds       *float64 `json:"interval_seconds,omitempty"`
	InitialProbability    *float64 `json:"initial_probability,omitempty"`
	Mode                  *string  `json:"mode,omitempty"`
	LinearStep            *float64 `json:"linear_step,omitempty"`
	ExponentialMultiplier *float64 `json:"exponential_multiplier,omitempty"`
	AntiRepeat            *bool    `json:"anti_repeat,omitempty"`
	Volume                *float64 `json:"volume,omitempty"`
	Group                 *string  `json:"group,omitempty"`
}

// Empty reports whether p changes nothing.
func (p Patch) Empty() bool {
	return p == Patch{}
}

// Apply returns s with the fields of p set.
func (s Settings) Apply(p Patch) Settings {
	if p.IntervalSeconds != nil {
		s.IntervalSeconds = *p.IntervalSeconds
	}
	if p.InitialProbability != nil {
		s.InitialProbability = *p.InitialProbability
	}
	if p.Mode != nil {
		s.Mode = strings.ToLower(strings.TrimSpace(*p.Mode))
	}
	if p.LinearStep != nil {
		s.LinearStep = *p.LinearStep
	}
	if p.ExponentialMultiplier != nil {
		s.ExponentialMultiplier = *p.ExponentialMultiplier
	}
	if p.AntiRepeat != nil {
		s.AntiRepeat = *p.AntiRepeat
	}
	if p.Volume != nil {
		s.Volume = *p.Volume
	}
	if p.Group != nil {
		s.Group = strings.TrimSpace(*p.Group)
	}
	return s
}

// Service loads and stores the settings singleton.
type Service struct {
	db      *gorm.DB
	cache   *cache.Cache
	library *library.Service
	bus     *events.Bus
	logger  zerolog.Logger
}

// NewService creates a settings service. cache and bus may be nil.
func NewService(db *gorm.DB, c *cache.Cache, lib *library.Service, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:      db,
		cache:   c,
		library: lib,
		bus:     bus,
		logger:  logger.With().Str("component", "settings").Logger(),
	}
}

// Get returns the current settings.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	if cached, ok := s.cache.GetSettings(ctx); ok {
		return fromCached(cached), nil
	}

	row, err := models.GetScheduleSettings(s.db.WithContext(ctx))
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	out := fromModel(*row)
	if err := s.cache.SetSettings(ctx, out.toCached()); err != nil {
		s.logger.Debug().Err(err).Msg("settings cache write failed")
	}
	return out, nil
}

// Update validates and persists a partial update. A named group must exist.
func (s *Service) Update(ctx context.Context, p Patch) (Settings, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return Settings{}, err
	}
	next := current.Apply(p)
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	if next.Group != "" && next.Group != current.Group {
		if _, err := s.library.Group(ctx, next.Group); err != nil {
			return Settings{}, err
		}
	}

	row := next.toModel()
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return Settings{}, fmt.Errorf("save settings: %w", err)
	}
	if err := s.cache.InvalidateSettings(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("settings cache invalidation failed")
	}
	if s.bus != nil {
		s.bus.Publish(events.EventSettingsChanged, events.Payload{"group": next.Group})
	}

	s.logger.Info().
		Float64("interval_seconds", next.IntervalSeconds).
		Float64("initial_probability", next.InitialProbability).
		Str("mode", next.Mode).
		Str("group", next.Group).
		Msg("settings updated")
	return next, nil
}

// Config implements scheduler.Source.
func (s *Service) Config(ctx context.Context) (scheduler.Config, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return scheduler.Config{}, err
	}
	return current.ScheduleConfig(), nil
}

// Group implements scheduler.Source. A group that no longer exists reads as
// empty so a running scheduler stops instead of replaying a stale list.
func (s *Service) Group(ctx context.Context) (scheduler.Group, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return scheduler.Group{}, err
	}
	return resolveGroup(ctx, s.library, current.Group)
}

func resolveGroup(ctx context.Context, lib *library.Service, name string) (scheduler.Group, error) {
	if name == "" {
		return scheduler.Group{}, nil
	}
	members, err := lib.GroupMembers(ctx, name)
	if errors.Is(err, library.ErrGroupNotFound) {
		return scheduler.Group{Name: name}, nil
	}
	if err != nil {
		return scheduler.Group{}, err
	}
	return scheduler.Group{Name: name, Members: members}, nil
}

// Overlay is a Source that applies an unsaved patch on top of the stored
// settings. The run command uses it for flag overrides.
type Overlay struct {
	Service *Service
	Patch   Patch
}

// Config implements scheduler.Source.
func (o Overlay) Config(ctx context.Context) (scheduler.Config, error) {
	current, err := o.current(ctx)
	if err != nil {
		return scheduler.Config{}, err
	}
	return current.ScheduleConfig(), nil
}

// Group implements scheduler.Source.
func (o Overlay) Group(ctx context.Context) (scheduler.Group, error) {
	current, err := o.current(ctx)
	if err != nil {
		return scheduler.Group{}, err
	}
	return resolveGroup(ctx, o.Service.library, current.Group)
}

func (o Overlay) current(ctx context.Context) (Settings, error) {
	stored, err := o.Service.Get(ctx)
	if err != nil {
		return Settings{}, err
	}
	next := stored.Apply(o.Patch)
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	return next, nil
}
