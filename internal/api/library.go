/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/soundtrigger/internal/library"
	"github.com/friendsincode/soundtrigger/internal/models"
)

type fileResponse struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type groupResponse struct {
	Name  string   `json:"name"`
	Files []string `json:"files"`
	Count int      `json:"count"`
}

func toGroupResponse(g models.Group) groupResponse {
	names := g.MemberNames()
	return groupResponse{Name: g.Name, Files: names, Count: len(names)}
}

func (a *API) handleFilesList(w http.ResponseWriter, r *http.Request) {
	assets, err := a.library.Assets(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	out := make([]fileResponse, 0, len(assets))
	for _, asset := range assets {
		out = append(out, fileResponse{Name: asset.Name, CreatedAt: asset.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": out})
}

func (a *API) handleFilesAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	asset, err := a.library.RegisterAsset(r.Context(), req.Name)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fileResponse{Name: asset.Name, CreatedAt: asset.CreatedAt})
}

func (a *API) handleFilesRemove(w http.ResponseWriter, r *http.Request) {
	if err := a.library.RemoveAsset(r.Context(), chi.URLParam(r, "name")); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleGroupsList(w http.ResponseWriter, r *http.Request) {
	groups, err := a.library.Groups(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	out := make([]groupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, toGroupResponse(g))
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": out})
}

func (a *API) handleGroupsCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string   `json:"name"`
		Files []string `json:"files"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	group, err := a.library.CreateGroup(r.Context(), req.Name)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if len(req.Files) > 0 {
		group, err = a.library.SetGroupMembers(r.Context(), group.Name, req.Files)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, toGroupResponse(group))
}

func (a *API) handleGroupsDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.library.DeleteGroup(r.Context(), chi.URLParam(r, "name")); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleGroupsSetFiles(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Files []string `json:"files"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	group, err := a.library.SetGroupMembers(r.Context(), chi.URLParam(r, "name"), req.Files)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupResponse(group))
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := library.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_format")
		return
	}

	doc, err := a.library.Export(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="soundtrigger.%s"`, format))
	w.WriteHeader(http.StatusOK)
	if err := library.Encode(w, doc, format); err != nil {
		a.logger.Error().Err(err).Msg("export encode failed")
	}
}

func (a *API) handleImport(w http.ResponseWriter, r *http.Request) {
	formatParam := r.URL.Query().Get("format")
	if formatParam == "" && strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		formatParam = string(library.FormatYAML)
	}
	format, err := library.ParseFormat(formatParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_format")
		return
	}

	doc, err := library.Decode(r.Body, format)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if err := a.library.Import(r.Context(), doc); err != nil {
		a.writeServiceError(w, err)
		return
	}

	a.logger.Info().Int("files", len(doc.Files)).Int("groups", len(doc.Groups)).Msg("library imported")
	writeJSON(w, http.StatusOK, map[string]int{
		"files":  len(doc.Files),
		"groups": len(doc.Groups),
	})
}

func contentTypeFor(format library.Format) string {
	if format == library.FormatYAML {
		return "application/yaml"
	}
	return "application/json"
}
