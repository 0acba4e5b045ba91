/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/soundtrigger/internal/db"
	"github.com/friendsincode/soundtrigger/internal/events"
	"github.com/friendsincode/soundtrigger/internal/library"
	"github.com/friendsincode/soundtrigger/internal/scheduler"
	"github.com/friendsincode/soundtrigger/internal/settings"
	"github.com/friendsincode/soundtrigger/internal/status"
)

// silentPlayer never completes; the tests never reach a decision anyway.
type silentPlayer struct{}

func (silentPlayer) Play(ctx context.Context, asset string, volume float64) <-chan error {
	return make(chan error)
}

type testEnv struct {
	router  chi.Router
	sched   *scheduler.Scheduler
	hub     *status.Hub
	library *library.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "api.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(database) })

	bus := events.NewBus()
	lib := library.NewService(database, nil, bus, zerolog.Nop())
	settingsSvc := settings.NewService(database, nil, lib, bus, zerolog.Nop())
	hub := status.NewHub(status.NewBuffer(50), bus, zerolog.Nop())
	sched := scheduler.New(silentPlayer{}, zerolog.Nop(), scheduler.WithNotifier(hub))
	t.Cleanup(sched.Stop)

	a := New(database, sched, lib, settingsSvc, hub.Buffer(), bus, zerolog.Nop())
	r := chi.NewRouter()
	a.Routes(r)
	return &testEnv{router: r, sched: sched, hub: hub, library: lib}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decode(t, rr, &body)
	return body["error"]
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/api/v1/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestFilesLifecycle(t *testing.T) {
	env := newTestEnv(t)

	steps := []struct {
		method, path, body string
		wantCode           int
		wantError          string
	}{
		{http.MethodPost, "/api/v1/files", `{"name":"rain"}`, http.StatusCreated, ""},
		{http.MethodPost, "/api/v1/files", `{"name":"rain.mp3"}`, http.StatusConflict, "file_exists"},
		{http.MethodPost, "/api/v1/files", `{"name":"  "}`, http.StatusBadRequest, "invalid_name"},
		{http.MethodPost, "/api/v1/files", `{`, http.StatusBadRequest, "invalid_json"},
		{http.MethodPost, "/api/v1/files", `{"name":"owl.wav"}`, http.StatusCreated, ""},
		{http.MethodDelete, "/api/v1/files/missing.mp3", "", http.StatusNotFound, "file_not_found"},
		{http.MethodDelete, "/api/v1/files/owl.wav", "", http.StatusNoContent, ""},
	}
	for _, s := range steps {
		rr := env.do(t, s.method, s.path, s.body)
		if rr.Code != s.wantCode {
			t.Fatalf("%s %s %s: status = %d, want %d (%s)", s.method, s.path, s.body, rr.Code, s.wantCode, rr.Body.String())
		}
		if s.wantError != "" {
			if got := errorCode(t, rr); got != s.wantError {
				t.Fatalf("%s %s: error = %q, want %q", s.method, s.path, got, s.wantError)
			}
		}
	}

	rr := env.do(t, http.MethodGet, "/api/v1/files", "")
	var list struct {
		Files []fileResponse `json:"files"`
	}
	decode(t, rr, &list)
	if len(list.Files) != 1 || list.Files[0].Name != "rain.mp3" {
		t.Fatalf("files = %+v", list.Files)
	}
}

func TestGroupsLifecycle(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"rain.mp3", "owl.mp3"} {
		env.do(t, http.MethodPost, "/api/v1/files", `{"name":"`+name+`"}`)
	}

	rr := env.do(t, http.MethodPost, "/api/v1/groups", `{"name":"Forest","files":["owl.mp3","rain.mp3","owl.mp3"]}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", rr.Code, rr.Body.String())
	}
	var created groupResponse
	decode(t, rr, &created)
	if created.Count != 2 || created.Files[0] != "owl.mp3" {
		t.Fatalf("created = %+v", created)
	}

	if rr := env.do(t, http.MethodPost, "/api/v1/groups", `{"name":"Forest"}`); rr.Code != http.StatusConflict {
		t.Fatalf("duplicate group status = %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPut, "/api/v1/groups/Forest/files", `{"files":["ghost.mp3"]}`); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown member status = %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPut, "/api/v1/groups/Nowhere/files", `{"files":[]}`); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown group status = %d", rr.Code)
	}

	rr = env.do(t, http.MethodPut, "/api/v1/groups/Forest/files", `{"files":["rain.mp3"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("set files status = %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/api/v1/groups", "")
	var list struct {
		Groups []groupResponse `json:"groups"`
	}
	decode(t, rr, &list)
	if len(list.Groups) != 1 || list.Groups[0].Count != 1 || list.Groups[0].Files[0] != "rain.mp3" {
		t.Fatalf("groups = %+v", list.Groups)
	}

	if rr := env.do(t, http.MethodDelete, "/api/v1/groups/Forest", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/api/v1/groups/Forest", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", rr.Code)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/settings", "")
	var got settings.Settings
	decode(t, rr, &got)
	if got != settings.Defaults() {
		t.Fatalf("settings = %+v, want defaults", got)
	}

	rr = env.do(t, http.MethodPut, "/api/v1/settings", `{"initial_probability":150}`)
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "invalid_settings" {
		t.Fatalf("invalid update: %d %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPut, "/api/v1/settings", `{"group":"Missing"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown group update: %d", rr.Code)
	}

	rr = env.do(t, http.MethodPut, "/api/v1/settings", `{"mode":"exponential","volume":0.3}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d (%s)", rr.Code, rr.Body.String())
	}
	decode(t, rr, &got)
	if got.Mode != "exponential" || got.Volume != 0.3 || got.IntervalSeconds != settings.Defaults().IntervalSeconds {
		t.Fatalf("updated = %+v", got)
	}
}

func TestStartStop(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/v1/start", "")
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "group_empty" {
		t.Fatalf("start without group: %d %s", rr.Code, rr.Body.String())
	}

	env.do(t, http.MethodPost, "/api/v1/files", `{"name":"rain.mp3"}`)
	env.do(t, http.MethodPost, "/api/v1/groups", `{"name":"Forest","files":["rain.mp3"]}`)

	rr = env.do(t, http.MethodPost, "/api/v1/start", `{"group":"Forest"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("start status = %d (%s)", rr.Code, rr.Body.String())
	}
	var st statusResponse
	decode(t, rr, &st)
	if !st.Running || st.State != scheduler.StateWaiting || st.Group != "Forest" || st.Probability != 10 {
		t.Fatalf("status after start = %+v", st)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/stop", "")
	decode(t, rr, &st)
	if st.Running || st.State != scheduler.StateStopped {
		t.Fatalf("status after stop = %+v", st)
	}

	rr = env.do(t, http.MethodGet, "/api/v1/status/history?order=asc", "")
	var hist struct {
		Entries []status.Entry `json:"entries"`
	}
	decode(t, rr, &hist)
	if len(hist.Entries) != 2 || hist.Entries[0].Kind != "started" || hist.Entries[1].Kind != "stopped" {
		t.Fatalf("status history = %+v", hist.Entries)
	}
}

func TestExportImport(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/files", `{"name":"rain.mp3"}`)
	env.do(t, http.MethodPost, "/api/v1/groups", `{"name":"Forest","files":["rain.mp3"]}`)

	rr := env.do(t, http.MethodGet, "/api/v1/export?format=yaml", "")
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "application/yaml" {
		t.Fatalf("export: %d %s", rr.Code, rr.Header().Get("Content-Type"))
	}
	doc, err := library.Decode(bytes.NewReader(rr.Body.Bytes()), library.FormatYAML)
	if err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if len(doc.Files) != 1 || len(doc.Groups) != 1 {
		t.Fatalf("exported = %+v", doc)
	}

	if rr := env.do(t, http.MethodGet, "/api/v1/export?format=xml", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad format status = %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/import", `{"files":["a.mp3"]}`)
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "invalid_document" {
		t.Fatalf("import without groups: %d %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/api/v1/import", `{"files":["a.mp3","b.mp3"],"groups":[{"name":"Night","files":["b.mp3"]}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("import status = %d (%s)", rr.Code, rr.Body.String())
	}

	names, err := env.library.AssetNames(context.Background())
	if err != nil || len(names) != 2 || names[0] != "a.mp3" {
		t.Fatalf("assets after import = %v, %v", names, err)
	}
}

func TestHistoryEmpty(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/api/v1/history?limit=5", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/api/v1/history?limit=x", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", rr.Code)
	}
}

func TestEventsWebsocket(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	// The handler subscribes after the handshake, so keep publishing until
	// a message arrives.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				env.hub.Notify(scheduler.Status{Kind: scheduler.KindMiss, Message: "no trigger", Probability: 25})
			}
		}
	}()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg struct {
		Type    string       `json:"type"`
		Payload status.Entry `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	if msg.Type != "status" || msg.Payload.Kind != "miss" || msg.Payload.Probability != 25 {
		t.Fatalf("message = %+v", msg)
	}
}
