/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package status fans scheduler status updates out to the recent-status ring
// buffer, the event bus and the play history table.
package status

import (
	"strings"
	"sync"
	"time"

	"github.com/friendsincode/soundtrigger/internal/scheduler"
)

// Entry is one status update as served to clients.
type Entry struct {
	Timestamp   time.Time `json:"timestamp"`
	Kind        string    `json:"kind"`
	State       string    `json:"state"`
	Message     string    `json:"message"`
	Probability float64   `json:"probability"`
	Asset       string    `json:"asset,omitempty"`
	Group       string    `json:"group,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// FromStatus converts a scheduler status.
func FromStatus(st scheduler.Status) Entry {
	e := Entry{
		Timestamp:   st.At,
		Kind:        string(st.Kind),
		State:       string(st.State),
		Message:     st.Message,
		Probability: st.Probability,
		Asset:       st.Asset,
		Group:       st.Group,
	}
	if st.Err != nil {
		e.Error = st.Err.Error()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return e
}

// Buffer is a thread-safe ring buffer of status entries.
type Buffer struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	head     int
	count    int
}

// NewBuffer creates a buffer holding the last capacity entries.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 200
	}
	return &Buffer{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// Add appends an entry, overwriting the oldest when full.
func (b *Buffer) Add(entry Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// GetAll returns all entries in chronological order.
func (b *Buffer) GetAll() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Entry, b.count)
	if b.count == 0 {
		return result
	}

	start := 0
	if b.count == b.capacity {
		start = b.head
	}
	for i := 0; i < b.count; i++ {
		result[i] = b.entries[(start+i)%b.capacity]
	}
	return result
}

// QueryParams filters Query results.
type QueryParams struct {
	Kind       string    // exact status kind
	Asset      string    // exact asset name
	Search     string    // case-insensitive substring of the message
	Since      time.Time // only entries at or after this time
	Limit      int       // 0 = all
	Descending bool      // newest first
}

// Query returns entries matching params.
func (b *Buffer) Query(params QueryParams) []Entry {
	all := b.GetAll()
	search := strings.ToLower(params.Search)

	filtered := make([]Entry, 0, len(all))
	for _, entry := range all {
		if params.Kind != "" && entry.Kind != params.Kind {
			continue
		}
		if params.Asset != "" && entry.Asset != params.Asset {
			continue
		}
		if !params.Since.IsZero() && entry.Timestamp.Before(params.Since) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(entry.Message), search) {
			continue
		}
		filtered = append(filtered, entry)
	}

	if params.Descending {
		for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
			filtered[i], filtered[j] = filtered[j], filtered[i]
		}
	}
	if params.Limit > 0 && len(filtered) > params.Limit {
		filtered = filtered[:params.Limit]
	}
	return filtered
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.count = 0
}
