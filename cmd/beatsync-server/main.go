// ABOUTME: Entry point for the beatsync server process
// ABOUTME: Parses CLI flags, loads config, wires every component, and runs until SIGINT/SIGTERM
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beatsync/beatsync-server/internal/backup"
	"github.com/beatsync/beatsync-server/internal/config"
	"github.com/beatsync/beatsync-server/internal/discovery"
	"github.com/beatsync/beatsync-server/internal/dispatcher"
	"github.com/beatsync/beatsync-server/internal/httpapi"
	"github.com/beatsync/beatsync-server/internal/logging"
	"github.com/beatsync/beatsync-server/internal/musicprovider"
	"github.com/beatsync/beatsync-server/internal/registry"
	"github.com/beatsync/beatsync-server/internal/room"
	"github.com/beatsync/beatsync-server/internal/storage"
	"github.com/beatsync/beatsync-server/internal/tui"
)

var (
	configPath = flag.String("config", "", "Path to a YAML config file overlaying the defaults")
	listenAddr = flag.String("listen", "", "HTTP/WebSocket listen address (overrides config)")
	name       = flag.String("name", "", "Server friendly name for mDNS advertisement (default: hostname-beatsync)")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *debug {
		cfg.Debug = true
	}

	logger := logging.New(os.Stdout, cfg.Debug)

	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-beatsync", hostname)
	}

	room.CleanupGraceMs = int64(cfg.RoomCleanupGraceSeconds) * 1000

	blobStore := storage.BlobStore(storage.NoopStore{})
	if cfg.BlobStorePath != "" {
		diskStore, err := storage.NewLocalDiskStore(cfg.BlobStorePath, cfg.BlobPublicURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open local blob store")
		}
		blobStore = diskStore
	}

	reg := registry.New(blobStore, logger)
	provider := musicprovider.New(cfg.ProviderURL)
	dispatch := dispatcher.New(reg, provider, logger)

	backupStore, err := backup.OpenBadgerStore(cfg.BackupPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open backup store")
	}
	defer backupStore.Close()

	backupMgr := backup.NewManager(backupStore, reg, blobStore, logger, time.Duration(cfg.BackupIntervalSeconds)*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := backupMgr.RestoreOnStartup(ctx); err != nil {
		logger.Error().Err(err).Msg("startup restore failed, continuing with an empty registry")
	}
	backupDone := make(chan struct{})
	go func() {
		backupMgr.Run(ctx)
		close(backupDone)
	}()

	if cfg.EnableMDNS {
		mgr := discovery.NewManager(serverName, listenPort(cfg.ListenAddr), logger)
		if err := mgr.Advertise(); err != nil {
			logger.Error().Err(err).Msg("mdns advertise failed")
		} else {
			defer mgr.Stop()
		}
	}

	var dashboard *tui.Dashboard
	if cfg.EnableTUI {
		dashboard = tui.New()
		go pollDashboard(ctx, dashboard, reg, cfg.ListenAddr)
		go func() {
			if err := dashboard.Start(cfg.ListenAddr); err != nil {
				logger.Error().Err(err).Msg("dashboard exited")
			}
			cancel()
		}()
	}

	server := httpapi.New(reg, dispatch, blobStore, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info().Str("signal", sig.String()).Msg("shutting down")
		case <-ctx.Done():
		}
		cancel()
	}()

	logger.Info().Str("name", serverName).Str("listen", cfg.ListenAddr).Msg("starting beatsync server")
	if err := server.Run(ctx, cfg.ListenAddr); err != nil {
		logger.Fatal().Err(err).Msg("http server error")
	}

	cancel()
	<-backupDone
	logger.Info().Msg("beatsync server stopped")
}

func pollDashboard(ctx context.Context, d *tui.Dashboard, reg *registry.Registry, listenAddr string) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.Update(tui.Status{
				ListenAddr:  listenAddr,
				ActiveRooms: reg.ActiveRooms(),
				Stats:       reg.Stats(),
			})
		case <-d.QuitChan():
			return
		case <-ctx.Done():
			return
		}
	}
}

func listenPort(addr string) int {
	port := 0
	fmt.Sscanf(addr, ":%d", &port)
	return port
}
