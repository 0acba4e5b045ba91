/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package status

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/soundtrigger/internal/events"
	"github.com/friendsincode/soundtrigger/internal/models"
	"github.com/friendsincode/soundtrigger/internal/scheduler"
)

// DefaultHistoryLimit caps List when no limit is given.
const DefaultHistoryLimit = 100

// Recorder writes a PlayHistory row for every triggered playback by
// following status events on the bus.
type Recorder struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger

	pending *models.PlayHistory
	wg      sync.WaitGroup
}

// NewRecorder creates a play history recorder.
func NewRecorder(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Recorder {
	return &Recorder{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// Start subscribes to status events and records until ctx is cancelled.
// The subscription is in place when Start returns.
func (r *Recorder) Start(ctx context.Context) {
	sub := r.bus.SubscribeBuffered(events.EventStatus, 64)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.bus.Unsubscribe(events.EventStatus, sub)

		r.logger.Info().Msg("history recorder started")
		for {
			select {
			case <-ctx.Done():
				r.logger.Info().Msg("history recorder stopping")
				return
			case payload, ok := <-sub:
				if !ok {
					return
				}
				if entry, ok := EntryFrom(payload); ok {
					r.handle(ctx, entry)
				}
			}
		}
	}()
}

// Wait blocks until the recorder goroutine has exited.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func (r *Recorder) handle(ctx context.Context, e Entry) {
	switch scheduler.StatusKind(e.Kind) {
	case scheduler.KindPlaying:
		r.pending = &models.PlayHistory{
			ID:          uuid.NewString(),
			Asset:       e.Asset,
			Group:       e.Group,
			Probability: e.Probability,
			StartedAt:   e.Timestamp,
		}
	case scheduler.KindFinished:
		r.complete(ctx, e, models.OutcomeFinished)
	case scheduler.KindPlaybackFailed:
		r.complete(ctx, e, models.OutcomeFailed)
	case scheduler.KindStopped, scheduler.KindGroupEmpty:
		r.complete(ctx, e, models.OutcomeInterrupted)
	}
}

func (r *Recorder) complete(ctx context.Context, e Entry, outcome string) {
	row := r.pending
	r.pending = nil
	if row == nil {
		return
	}
	row.Outcome = outcome
	row.Error = e.Error
	row.EndedAt = e.Timestamp

	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		r.logger.Error().Err(err).Str("asset", row.Asset).Msg("failed to record play history")
	}
}

// List returns the most recent plays, newest first.
func List(ctx context.Context, db *gorm.DB, limit int) ([]models.PlayHistory, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var rows []models.PlayHistory
	if err := db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list play history: %w", err)
	}
	return rows, nil
}
