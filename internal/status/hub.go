/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package status

import (
	"github.com/rs/zerolog"

	"github.com/friendsincode/soundtrigger/internal/events"
	"github.com/friendsincode/soundtrigger/internal/scheduler"
)

// PayloadEntry is the payload key holding the Entry on EventStatus.
const PayloadEntry = "entry"

// Hub is the scheduler's Notifier. It records each status in the buffer,
// publishes it on the bus and forwards it to any extra sinks.
//
// Notify runs under the scheduler lock, so nothing here may block.
type Hub struct {
	buffer *Buffer
	bus    *events.Bus
	sinks  []scheduler.Notifier
	logger zerolog.Logger
}

// NewHub creates a hub. bus may be nil.
func NewHub(buffer *Buffer, bus *events.Bus, logger zerolog.Logger, sinks ...scheduler.Notifier) *Hub {
	return &Hub{
		buffer: buffer,
		bus:    bus,
		sinks:  sinks,
		logger: logger.With().Str("component", "status").Logger(),
	}
}

// Notify implements scheduler.Notifier.
func (h *Hub) Notify(st scheduler.Status) {
	entry := FromStatus(st)
	if h.buffer != nil {
		h.buffer.Add(entry)
	}
	if h.bus != nil {
		h.bus.Publish(events.EventStatus, events.Payload{PayloadEntry: entry})
	}

	h.logger.Debug().
		Str("kind", entry.Kind).
		Str("state", entry.State).
		Float64("probability", entry.Probability).
		Msg(entry.Message)

	for _, sink := range h.sinks {
		sink.Notify(st)
	}
}

// Buffer returns the hub's ring buffer.
func (h *Hub) Buffer() *Buffer {
	return h.buffer
}

// EntryFrom extracts the Entry from an EventStatus payload.
func EntryFrom(p events.Payload) (Entry, bool) {
	e, ok := p[PayloadEntry].(Entry)
	return e, ok
}
