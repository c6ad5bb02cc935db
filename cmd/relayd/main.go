// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command relayd receives browser media over HTTP or WebSocket and relays
// it to an RTMP ingest through ffmpeg.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ManuGH/streamrelay/internal/api"
	"github.com/ManuGH/streamrelay/internal/bus"
	"github.com/ManuGH/streamrelay/internal/config"
	"github.com/ManuGH/streamrelay/internal/health"
	"github.com/ManuGH/streamrelay/internal/journal"
	xglog "github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/relay"
	"github.com/ManuGH/streamrelay/internal/telemetry"
	"github.com/ManuGH/streamrelay/internal/version"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "config" {
		os.Exit(runConfigCLI(os.Args[2:], os.Stdout, os.Stderr))
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	// Safe defaults until the config is loaded.
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "streamrelay",
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loaded, err := config.LoadDotEnv(os.Getenv("RELAY_ENV_FILE"))
	if err != nil {
		logger.Fatal().Err(err).Str(xglog.FieldEvent, "config.env_file_failed").Msg("invalid env file")
	}
	if loaded {
		logger.Info().Str(xglog.FieldEvent, "config.env_file_loaded").Msg("environment file loaded")
	}

	path := strings.TrimSpace(*configPath)
	if path == "" {
		path = strings.TrimSpace(config.ParseString("RELAY_CONFIG", ""))
	}

	if err := run(ctx, path); err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "daemon.failed").
			Msg("relay daemon failed")
	}
	logger.Info().Msg("relay daemon exiting")
}

func run(ctx context.Context, configPath string) error {
	loader := config.NewLoader(configPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")
	logStartup(logger, cfg, configPath)

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		return err
	}

	holder := config.NewHolder(cfg, loader, configPath)
	if configPath != "" {
		if err := holder.StartWatcher(ctx); err != nil {
			logger.Warn().Err(err).Str(xglog.FieldEvent, "config.watch_failed").Msg("config hot reload disabled")
		}
		defer holder.Stop()
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: version.Version,
		Environment:    config.ParseString("RELAY_ENVIRONMENT", "production"),
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	store, err := journal.NewStore(cfg.Journal.Backend, cfg.Journal.Path, cfg.Journal.Capacity)
	if err != nil {
		return fmt.Errorf("open session journal: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing session journal failed")
		}
	}()

	notifications := bus.NewMemoryBus()
	ctrl, err := relay.New(relay.Options{
		Launcher: newConfiguredLauncher(holder),
		Bus:      notifications,
		Journal:  store,
		Settings: func() relay.Settings { return relay.SettingsFromConfig(holder.Get()) },
		Tracer:   telemetry.Tracer("streamrelay/relay"),
	})
	if err != nil {
		return fmt.Errorf("create relay controller: %w", err)
	}

	probes := health.NewManager(version.Version)
	probes.RegisterChecker(health.NewBinaryChecker("ffmpeg", func() string { return holder.Get().FFmpeg.Bin }))
	probes.RegisterChecker(health.NewPingChecker("journal", health.StatusDegraded, func(ctx context.Context) error {
		_, err := store.List(ctx, 1)
		return err
	}))
	probes.RegisterChecker(health.NewInfoChecker("relay", func() string { return string(ctrl.Status().State) }))

	tracingService := ""
	if tp.Enabled() {
		tracingService = cfg.LogService
	}
	srv := api.New(cfg.API, api.Deps{
		Relay:          ctrl,
		Bus:            notifications,
		Journal:        store,
		Health:         probes,
		TracingService: tracingService,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		return logNotifications(gctx, notifications, logger)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Str(xglog.FieldEvent, "daemon.shutdown").Msg("shutting down relay")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := ctrl.Shutdown(sctx); err != nil {
			logger.Warn().Err(err).Msg("relay session did not stop in time")
		}
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// logNotifications mirrors every relay notification into the daemon log.
func logNotifications(ctx context.Context, b bus.Bus, logger zerolog.Logger) error {
	sub, err := b.Subscribe(ctx, relay.NotificationTopic)
	if err != nil {
		return fmt.Errorf("subscribe notifications: %w", err)
	}
	defer func() { _ = sub.Close() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			n, ok := msg.(relay.Notification)
			if !ok {
				continue
			}
			evt := logger.Info()
			if n.Type == relay.NotifyError {
				evt = logger.Warn()
			}
			evt.
				Str(xglog.FieldEvent, "relay."+string(n.Type)).
				Str(xglog.FieldSessionID, n.SessionID).
				Str("message", n.Message).
				Msg("relay notification")
		}
	}
}

func logStartup(logger zerolog.Logger, cfg config.AppConfig, configPath string) {
	source := "env+defaults"
	if configPath != "" {
		source = "file"
	}
	logger.Info().
		Str(xglog.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("config_source", source).
		Str("config_path", configPath).
		Str("addr", cfg.API.ListenAddr).
		Msg("starting relay daemon")

	logger.Info().Msgf("→ FFmpeg: %s (%s/%s, preset %s)", cfg.FFmpeg.Bin, cfg.FFmpeg.VideoCodec, cfg.FFmpeg.AudioCodec, cfg.FFmpeg.Preset)
	logger.Info().Msgf("→ Journal: %s", cfg.Journal.Backend)
	if cfg.Telemetry.Enabled {
		logger.Info().Msgf("→ Tracing: %s exporter to %s", cfg.Telemetry.Exporter, cfg.Telemetry.Endpoint)
	}
	if cfg.Relay.StopKillTimeout == 0 {
		logger.Warn().Msg("→ relay.stopKillTimeout is 0: a transcoder that ignores SIGINT is never killed on stop")
	}
}
