/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the scheduler, library and settings over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/soundtrigger/internal/events"
	"github.com/friendsincode/soundtrigger/internal/library"
	"github.com/friendsincode/soundtrigger/internal/scheduler"
	"github.com/friendsincode/soundtrigger/internal/settings"
	"github.com/friendsincode/soundtrigger/internal/status"
)

// API exposes HTTP handlers.
type API struct {
	db        *gorm.DB
	scheduler *scheduler.Scheduler
	library   *library.Service
	settings  *settings.Service
	statuses  *status.Buffer
	bus       *events.Bus
	logger    zerolog.Logger
}

// New creates the API router wrapper.
func New(db *gorm.DB, sched *scheduler.Scheduler, lib *library.Service, settingsSvc *settings.Service, statuses *status.Buffer, bus *events.Bus, logger zerolog.Logger) *API {
	return &API{
		db:        db,
		scheduler: sched,
		library:   lib,
		settings:  settingsSvc,
		statuses:  statuses,
		bus:       bus,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts API routes on provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Get("/status", a.handleStatus)
		r.Get("/status/history", a.handleStatusHistory)
		r.Post("/start", a.handleStart)
		r.Post("/stop", a.handleStop)

		r.Get("/settings", a.handleSettingsGet)
		r.Put("/settings", a.handleSettingsUpdate)

		r.Route("/files", func(r chi.Router) {
			r.Get("/", a.handleFilesList)
			r.Post("/", a.handleFilesAdd)
			r.Delete("/{name}", a.handleFilesRemove)
		})

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", a.handleGroupsList)
			r.Post("/", a.handleGroupsCreate)
			r.Delete("/{name}", a.handleGroupsDelete)
			r.Put("/{name}/files", a.handleGroupsSetFiles)
		})

		r.Get("/export", a.handleExport)
		r.Post("/import", a.handleImport)

		r.Get("/history", a.handleHistory)
		r.Get("/events", a.handleEvents)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	State       scheduler.State `json:"state"`
	Running     bool            `json:"running"`
	Probability float64         `json:"probability"`
	Group       string          `json:"group,omitempty"`
	Playing     string          `json:"playing,omitempty"`
	LastPlayed  string          `json:"last_played,omitempty"`
}

func snapshotResponse(s scheduler.Snapshot) statusResponse {
	return statusResponse{
		State:       s.State,
		Running:     s.Running,
		Probability: s.Probability,
		Group:       s.Group,
		Playing:     s.Playing,
		LastPlayed:  s.LastPlayed,
	}
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, snapshotResponse(a.scheduler.Snapshot()))
}

func (a *API) handleStatusHistory(w http.ResponseWriter, r *http.Request) {
	if a.statuses == nil {
		writeError(w, http.StatusServiceUnavailable, "status_history_unavailable")
		return
	}

	q := r.URL.Query()
	params := status.QueryParams{
		Kind:       q.Get("kind"),
		Asset:      q.Get("asset"),
		Search:     q.Get("search"),
		Limit:      100,
		Descending: true,
	}
	if since := q.Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			params.Since = t
		}
	}
	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			params.Limit = n
		}
	}
	if q.Get("order") == "asc" {
		params.Descending = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": a.statuses.Query(params),
	})
}

func (a *API) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Group *string `json:"group"`
	}
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	if req.Group != nil && strings.TrimSpace(*req.Group) != "" {
		if _, err := a.settings.Update(r.Context(), settings.Patch{Group: req.Group}); err != nil {
			a.writeServiceError(w, err)
			return
		}
	}

	if err := a.scheduler.Start(r.Context(), a.settings); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse(a.scheduler.Snapshot()))
}

func (a *API) handleStop(w http.ResponseWriter, r *http.Request) {
	a.scheduler.Stop()
	writeJSON(w, http.StatusOK, snapshotResponse(a.scheduler.Snapshot()))
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = n
	}

	rows, err := status.List(r.Context(), a.db, limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("list play history failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plays": rows})
}

// writeServiceError maps domain errors onto status codes.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, library.ErrInvalidName):
		writeError(w, http.StatusBadRequest, "invalid_name")
	case errors.Is(err, library.ErrInvalidDocument):
		writeError(w, http.StatusBadRequest, "invalid_document")
	case errors.Is(err, settings.ErrInvalidSettings):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_settings", "detail": err.Error()})
	case errors.Is(err, library.ErrAssetExists):
		writeError(w, http.StatusConflict, "file_exists")
	case errors.Is(err, library.ErrGroupExists):
		writeError(w, http.StatusConflict, "group_exists")
	case errors.Is(err, library.ErrAssetNotFound):
		writeError(w, http.StatusNotFound, "file_not_found")
	case errors.Is(err, library.ErrGroupNotFound):
		writeError(w, http.StatusNotFound, "group_not_found")
	case errors.Is(err, scheduler.ErrEmptyGroup):
		writeError(w, http.StatusConflict, "group_empty")
	default:
		a.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

// decodeOptionalJSON decodes the request body into dst, accepting an empty body.
func decodeOptionalJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
