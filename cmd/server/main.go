package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/annel0/voxel-core/internal/api"
	"github.com/annel0/voxel-core/internal/config"
	"github.com/annel0/voxel-core/internal/eventbus"
	"github.com/annel0/voxel-core/internal/logging"
	"github.com/annel0/voxel-core/internal/observability"
	"github.com/annel0/voxel-core/internal/server"
	"github.com/annel0/voxel-core/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to YAML or TOML config (default $VOXEL_CONFIG)")
	issueToken := flag.String("issue-admin-token", "", "print an admin API token for the given name and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of an issued admin token")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Config: %v", err)
	}

	if *issueToken != "" {
		token, err := api.IssueAdminToken(cfg.Server.AdminTokenSecret, *issueToken, *tokenTTL)
		if err != nil {
			log.Fatalf("❌ Issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	settings, err := cfg.Logging.Settings()
	if err != nil {
		log.Fatalf("❌ Logging settings: %v", err)
	}
	if err := logging.InitDefaultLogger(settings); err != nil {
		log.Fatalf("❌ Logging init: %v", err)
	}
	defer logging.GetLoggerManager().CloseAll()

	if err := run(cfg); err != nil {
		logging.Error("❌ %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info("🎮 Starting voxel server (storage=%s map=%s)", cfg.Server.StorageBackend, cfg.Server.MapDir)

	shutdownTelemetry, err := observability.InitTelemetry(ctx, observability.Options{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		logging.Warn("⚠️ Telemetry disabled: %v", err)
		shutdownTelemetry = observability.Noop
	}
	defer shutdownTelemetry(context.Background())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, err := storage.Open(cfg.Server.StorageBackend, cfg.Server.MapDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	bus := eventbus.NewMemoryBus(1024)
	if cfg.EventBus.URL != "" {
		js, err := eventbus.NewJetStreamBus(cfg.EventBus.URL, cfg.EventBus.Stream,
			time.Duration(cfg.EventBus.Retention)*time.Hour)
		if err != nil {
			logging.Warn("⚠️ JetStream unavailable, events stay in-process: %v", err)
		} else {
			bus = eventbus.NewMultiBus(bus, js)
			logging.Info("📨 Events mirrored to JetStream %s stream=%s", cfg.EventBus.URL, cfg.EventBus.Stream)
		}
	}
	defer bus.Close()

	if sub, err := eventbus.StartLoggingListener(bus); err == nil {
		defer sub.Unsubscribe()
	}
	busMetrics := eventbus.NewMetricsExporter(bus, reg)
	busMetrics.Start()
	defer busMetrics.Stop()

	srv, err := server.New(cfg, store, nil, bus, reg)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	if err := srv.Start(ctx, cfg.Server.GetUDPPort()); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	rest := api.NewRestServer(api.Config{
		Addr:        fmt.Sprintf(":%d", cfg.Server.GetHTTPPort()),
		Game:        srv,
		AdminSecret: cfg.Server.AdminTokenSecret,
		Registry:    reg,
	})
	go func() {
		if err := rest.Start(); err != nil {
			logging.Error("❌ REST API: %v", err)
		}
	}()

	logging.Info("✅ All services running")
	logging.Info("   🎮 UDP %s", srv.LocalAddr())
	logging.Info("   🌐 http://localhost:%d/api/status", cfg.Server.GetHTTPPort())
	if cfg.Server.AdminTokenSecret == "" {
		logging.Info("   🔒 Admin API disabled (server.admin_token_secret is empty)")
	}

	srv.Run(ctx)

	logging.Info("📡 Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rest.Stop(shutdownCtx); err != nil {
		logging.Error("❌ REST API stop: %v", err)
	}
	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stop server: %w", err)
	}
	logging.Info("👋 Server stopped")
	return nil
}
