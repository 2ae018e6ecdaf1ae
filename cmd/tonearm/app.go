package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mmcdole/tonearm/internal/adapter"
	"github.com/mmcdole/tonearm/internal/catalog"
	"github.com/mmcdole/tonearm/internal/domain"
	"github.com/mmcdole/tonearm/internal/library"
	"github.com/mmcdole/tonearm/internal/player"
	"github.com/mmcdole/tonearm/internal/queue"
	"github.com/mmcdole/tonearm/internal/store"
	"github.com/mmcdole/tonearm/internal/tui"
)

// app holds the services shared by every subcommand
type app struct {
	cfg         *adapter.Config
	logger      *slog.Logger
	client      *catalog.Client
	store       domain.SongStore
	session     *queue.Session
	library     *library.Service
	queries     *library.Queries
	cacheEvents chan domain.CacheEvent

	controller *player.Controller
	media      *adapter.MPRIS
}

// newApp loads configuration and wires the catalog side. interactive routes
// cache events to the TUI.
func newApp(interactive bool) (*app, error) {
	cfg, err := adapter.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if serverURL != "" {
		cfg.Server.URL = serverURL
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger, err := adapter.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = adapter.NullLogger()
	}
	slog.SetDefault(logger)

	logger.Info("starting tonearm", "version", Version, "server", cfg.Server.URL)

	cacheDir, err := adapter.ExpandHome(cfg.Cache.Dir)
	if err != nil {
		return nil, err
	}

	var songStore domain.SongStore
	songStore, err = store.NewSongStore(cacheDir, cfg.Server.URL)
	if err != nil {
		// Playback still works from the network without a durable store
		logger.Warn("durable store unavailable, continuing without offline cache", "error", err)
		fmt.Fprintf(os.Stderr, "warning: offline cache unavailable: %v\n", err)
		songStore = store.NewDisabled(err)
	}

	client := catalog.NewClient(cfg.Server.URL, logger)
	session := queue.NewSession()

	a := &app{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		store:   songStore,
		session: session,
		queries: library.NewQueries(songStore),
	}

	opts := []library.Option{library.WithWorkers(cfg.Cache.Workers)}
	if interactive {
		a.cacheEvents = make(chan domain.CacheEvent, 64)
		opts = append(opts, library.WithObserver(tui.NewChannelObserver(a.cacheEvents)))
	}
	a.library = library.NewService(client, songStore, session, logger, opts...)

	return a, nil
}

// startPlayer creates the audio output, media session and controller
func (a *app) startPlayer() (*player.Controller, error) {
	output, err := adapter.NewOutput(&a.cfg.Player, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio output: %w", err)
	}

	var opts []player.Option
	if a.cfg.MediaSession.Enabled {
		media, err := adapter.NewMPRIS(a.logger)
		if err != nil {
			a.logger.Info("media session unavailable", "error", err)
		} else {
			a.media = media
			opts = append(opts, player.WithMediaSession(media))
		}
	}

	a.controller = player.NewController(a.session, a.store, a.client, output, a.logger, opts...)

	if a.media != nil {
		updates, _ := a.controller.Subscribe()
		a.media.Attach(a.controller, updates)
	}
	return a.controller, nil
}

// Close stops playback and background caching, then closes the store
func (a *app) Close() {
	if a.controller != nil {
		if err := a.controller.Close(); err != nil {
			a.logger.Warn("failed to close player", "error", err)
		}
	}
	if a.media != nil {
		a.media.Close()
	}
	a.library.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", "error", err)
	}
}
