// aj8 is a RuneScape 317 game server. It ticks the world every 600ms,
// serves game clients on the game port, and exposes a REST API, an
// operator console and MQTT telemetry for running it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Rune-Status/aj8/internal/api"
	"github.com/Rune-Status/aj8/internal/cli"
	"github.com/Rune-Status/aj8/internal/config"
	"github.com/Rune-Status/aj8/internal/db"
	"github.com/Rune-Status/aj8/internal/events"
	"github.com/Rune-Status/aj8/internal/game"
	"github.com/Rune-Status/aj8/internal/health"
	"github.com/Rune-Status/aj8/internal/network"
	"github.com/Rune-Status/aj8/internal/telemetry"
	"github.com/Rune-Status/aj8/internal/util"
)

const (
	AppName    = "aj8"
	AppVersion = "0.1.0"
	Banner     = `
        _  ___
   __ _(_)( _ )
  / _' | |/ _ \
 | (_| | | (_) |
  \__,_|_|\___/
     |__/   v%s
 RuneScape 317 game server
`
)

func main() {
	configDir := flag.String("config", config.DefaultConfigDir, "directory holding config.json")
	setup := flag.Bool("setup", false, "run the interactive setup wizard before starting")
	noConsole := flag.Bool("no-console", false, "do not read operator commands from stdin")
	flag.Parse()

	fmt.Printf(Banner, AppVersion)
	fmt.Println()
	api.Version = AppVersion

	if err := run(*configDir, *setup, !*noConsole); err != nil {
		log.Error().Err(err).Msg("aj8 stopped with an error")
		os.Exit(1)
	}
}

func run(configDir string, setup, console bool) error {
	// Defaults until the config is loaded.
	closer, err := util.InitLogger(util.DefaultLogConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		closer.Close()
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logging := cfg.GetLogging()
	closer.Close()
	closer, err = util.InitLogger(util.LogConfig{
		Level:      logging.Level,
		Directory:  logging.Directory,
		MaxSizeMB:  logging.MaxSizeMB,
		MaxBackups: logging.MaxBackups,
		MaxAgeDays: logging.MaxAgeDays,
		Compress:   logging.Compress,
		Console:    true,
	})
	if err != nil {
		return fmt.Errorf("failed to reconfigure logger: %w", err)
	}
	defer closer.Close()

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting aj8")

	if setup || cfg.IsFirstRun() {
		log.Info().Msg("launching setup wizard")
		if err := config.RunSetupWizard(cfg, os.Stdin, os.Stdout); err != nil {
			return fmt.Errorf("setup wizard failed: %w", err)
		}
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		return errors.New("configuration validation failed, please fix the errors above")
	}

	sysInfo := util.GetSystemInfo()
	localIP, _ := util.GetLocalIP()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Str("local_ip", localIP).
		Msg("system information")

	server := cfg.GetServer()
	if !config.IsPortAvailable(server.GamePort) {
		log.Warn().Int("port", server.GamePort).Msg("game port is in use, the listener will retry")
	}

	database, err := db.NewDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	players, err := db.NewPlayerStore(database, db.PlayerStoreOptions{
		AutoRegister: server.AutoRegister,
		Spawn:        server.Spawn,
	})
	if err != nil {
		return err
	}
	alerts, err := db.NewAlertStore(database)
	if err != nil {
		return err
	}
	if n, err := alerts.CleanOldAlerts(context.Background(), 30); err == nil && n > 0 {
		log.Info().Int64("removed", n).Msg("cleaned old alerts")
	}

	eventBus := events.NewEventBus()
	defer eventBus.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	world := game.NewWorld(game.Options{
		Name:             server.Name,
		TickInterval:     server.TickInterval(),
		Capacity:         server.MaxPlayers,
		MessagesPerPulse: server.MessagesPerPulse,
		AutosaveTicks:    server.AutosaveTicks,
		OnSystemUpdate: func() {
			log.Warn().Msg("system update complete, shutting down")
			stop()
		},
	}, players, eventBus)

	registry := network.NewSessionRegistry()
	listener := network.NewListener(network.ListenerConfig{
		Address:              net.JoinHostPort(server.BindAddress, strconv.Itoa(server.GamePort)),
		MaxPendingLogins:     int64(server.MaxPendingLogins),
		ConnectionsPerSecond: float64(server.ConnectionsPerSecond),
		Session: network.SessionConfig{
			Release:       server.Release,
			LoginTimeout:  server.LoginTimeout(),
			IdleTimeout:   server.IdleTimeout(),
			OutboundQueue: server.OutboundQueueSize,
		},
	}, world, registry, eventBus)

	lagMonitor := health.NewLagMonitor(eventBus, alerts)
	healthMgr := health.NewManager(health.Options{
		TickInterval:   server.TickInterval(),
		StatusInterval: time.Duration(server.StatusIntervalSec) * time.Second,
		DataDir:        filepath.Dir(cfg.Database.Path),
	}, world, registry, eventBus, alerts)

	var mqttHandler *telemetry.MQTTHandler
	if cfg.GetMQTT().Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg.GetMQTT(), server.Name, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	// The world outlives the network: it only stops once every session is
	// closed so logouts are saved.
	worldCtx, stopWorld := context.WithCancel(context.Background())
	defer stopWorld()
	worldErr := make(chan error, 1)
	go func() {
		worldErr <- world.Run(worldCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return startWithRetry(gctx, "game listener", listener.Start, 5)
	})
	g.Go(func() error {
		healthMgr.Start(gctx)
		return nil
	})
	g.Go(func() error {
		lagMonitor.Start(gctx, time.Minute)
		return nil
	})

	if mqttHandler != nil {
		g.Go(func() error {
			if err := mqttHandler.Start(gctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed (non-fatal)")
			}
			return nil
		})
	}

	if cfg.GetAPI().Enabled {
		apiServer := api.NewServer(cfg, api.Deps{
			World:     world,
			Sessions:  registry,
			Lag:       lagMonitor,
			Health:    healthMgr,
			Alerts:    alerts,
			Publisher: eventBus,
		})
		g.Go(func() error {
			if err := startWithRetry(gctx, "API server", apiServer.Start, 5); err != nil {
				log.Warn().Err(err).Msg("API server failed after retries (non-fatal)")
			}
			return nil
		})
	}

	if console {
		operator := cli.NewCLI(cli.Options{
			World:        world,
			Sessions:     registry,
			Lag:          lagMonitor,
			Health:       healthMgr,
			Publisher:    eventBus,
			TickInterval: server.TickInterval(),
			Shutdown:     stop,
			In:           os.Stdin,
			Out:          os.Stdout,
		})
		// The console blocks on stdin, so it is not part of the group.
		go operator.Start(gctx)
	}

	<-gctx.Done()
	log.Info().Msg("initiating graceful shutdown...")
	eventBus.Emit(context.Background(), events.New(events.EventShutdown, "main", nil))

	registry.CloseAll("server shutting down")
	groupErr := g.Wait()

	stopWorld()
	select {
	case err := <-worldErr:
		if err != nil {
			log.Error().Err(err).Msg("world stopped with an error")
		}
	case <-time.After(30 * time.Second):
		log.Warn().Msg("world shutdown timed out after 30 seconds")
	}

	log.Info().Msg("aj8 stopped")
	return groupErr
}

// startWithRetry retries startFn while the port is still held by a previous
// process.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return nil
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(3 * time.Second):
			}
		}
	}
	return lastErr
}
