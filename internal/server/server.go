/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/friendsincode/soundtrigger/internal/api"
	"github.com/friendsincode/soundtrigger/internal/config"
	"github.com/friendsincode/soundtrigger/internal/db"
	"github.com/friendsincode/soundtrigger/internal/events"
	"github.com/friendsincode/soundtrigger/internal/library"
	"github.com/friendsincode/soundtrigger/internal/media"
	"github.com/friendsincode/soundtrigger/internal/playback"
	"github.com/friendsincode/soundtrigger/internal/scheduler"
	"github.com/friendsincode/soundtrigger/internal/status"
	"github.com/friendsincode/soundtrigger/internal/telemetry"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg           *config.Config
	logger        zerolog.Logger
	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server

	core      *Core
	audio     *Audio
	hub       *status.Hub
	recorder  *status.Recorder
	scheduler *scheduler.Scheduler
	watcher   *media.Watcher
	api       *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// Option customises a Server.
type Option func(*options)

type options struct {
	output playback.Output
}

// WithOutput plays through o instead of the system speaker.
func WithOutput(o playback.Output) Option {
	return func(opts *options) { opts.output = o }
}

// New constructs the server and wires dependencies.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("soundtrigger-api"))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(30 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The status websocket is long-lived.
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
	}
	if err := srv.initDependencies(ctx, o); err != nil {
		srv.closeDependencies()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if cfg.MetricsBind != "" {
		metricsRouter := chi.NewRouter()
		metricsRouter.Handle("/metrics", telemetry.Handler())
		srv.metricsServer = &http.Server{
			Addr:              cfg.MetricsBind,
			Handler:           metricsRouter,
			ReadHeaderTimeout: 15 * time.Second,
		}
	}

	if cfg.AutoStart {
		if err := srv.scheduler.Start(ctx, srv.core.Settings); err != nil {
			logger.Warn().Err(err).Msg("autostart skipped")
		}
	}
	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies(ctx context.Context, o options) error {
	core, err := OpenCore(s.cfg, s.logger)
	if err != nil {
		return err
	}
	s.core = core

	audio, err := OpenAudio(ctx, s.cfg, o.output, s.logger)
	if err != nil {
		return err
	}
	s.audio = audio
	s.logger.Info().Str("source", audio.Source.Kind()).Msg("sound source ready")

	if err := core.Bootstrap(ctx, audio.Source); err != nil {
		return err
	}

	s.hub = status.NewHub(status.NewBuffer(s.cfg.StatusHistorySize), core.Bus, s.logger)
	s.recorder = status.NewRecorder(core.DB, core.Bus, s.logger)
	s.scheduler = NewScheduler(s.cfg, audio.Engine, s.hub, s.logger)

	if s.cfg.AutoRegister && s.cfg.SoundSource == config.SoundSourceFS {
		watcher, err := media.NewWatcher(s.cfg.SoundsDir, library.IsAudioFile, s.publishDiscovered, s.logger)
		if err != nil {
			return err
		}
		s.watcher = watcher
	}

	s.api = api.New(core.DB, s.scheduler, core.Library, core.Settings, s.hub.Buffer(), core.Bus, s.logger)
	return nil
}

// publishDiscovered hands new files from the watcher to the library listener.
func (s *Server) publishDiscovered(ctx context.Context, names []string) {
	s.core.Bus.Publish(events.EventAssetDiscovered, events.Payload{"names": names})
}

// HTTPServer returns the API server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MetricsServer returns the Prometheus server, nil when disabled.
func (s *Server) MetricsServer() *http.Server {
	return s.metricsServer
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Scheduler returns the trigger scheduler.
func (s *Server) Scheduler() *scheduler.Scheduler {
	return s.scheduler
}

// Close stops playback and background work and releases resources.
func (s *Server) Close() error {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.audio != nil {
		s.audio.Engine.StopAll()
	}
	s.stopBackgroundWorkers()
	return s.closeDependencies()
}

func (s *Server) closeDependencies() error {
	if s.core == nil {
		return nil
	}
	return s.core.Close()
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.recorder.Start(ctx)
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.recorder.Wait()
	}()

	discovered := s.core.Bus.Subscribe(events.EventAssetDiscovered)
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.runLibraryListener(ctx, discovered)
	}()

	if s.watcher != nil {
		if err := s.watcher.Start(ctx); err != nil {
			s.logger.Error().Err(err).Msg("sound directory watcher failed to start")
			s.watcher.Stop()
		} else {
			s.bgWG.Add(1)
			go func() {
				defer s.bgWG.Done()
				<-ctx.Done()
				s.watcher.Stop()
			}()
		}
	}

	// Database metrics updater
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.core.DB)
			}
		}
	}()
}

// runLibraryListener registers files reported by the watcher.
func (s *Server) runLibraryListener(ctx context.Context, discovered events.Subscriber) {
	defer s.core.Bus.Unsubscribe(events.EventAssetDiscovered, discovered)

	s.logger.Info().Msg("library listener started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("library listener stopped")
			return

		case payload := <-discovered:
			names, _ := payload["names"].([]string)
			if len(names) == 0 {
				continue
			}
			added, err := s.core.Library.RegisterAssets(ctx, names)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					s.logger.Error().Err(err).Msg("auto-register failed")
				}
				continue
			}
			if len(added) > 0 {
				s.logger.Info().Strs("files", added).Msg("registered new sound files")
			}
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.api.Routes(s.router)
}
