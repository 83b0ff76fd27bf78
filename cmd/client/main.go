package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/voxel-core/internal/client"
	"github.com/annel0/voxel-core/internal/config"
	"github.com/annel0/voxel-core/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to YAML or TOML config (default $VOXEL_CONFIG)")
	address := flag.String("address", "127.0.0.1:30000", "server address")
	name := flag.String("name", "player", "player name")
	duration := flag.Duration("duration", 0, "disconnect after this long (0 runs until interrupted)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Config: %v", err)
	}
	settings, err := cfg.Logging.Settings()
	if err != nil {
		log.Fatalf("❌ Logging settings: %v", err)
	}
	if err := logging.InitDefaultLogger(settings); err != nil {
		log.Fatalf("❌ Logging init: %v", err)
	}
	defer logging.GetLoggerManager().CloseAll()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	c := client.New(client.Options{Name: *name, Network: cfg.Network.Options()})
	if err := c.Connect(*address); err != nil {
		log.Fatalf("❌ Connect: %v", err)
	}
	defer c.Close()

	ticker := time.NewTicker(30 * time.Millisecond)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			logging.Info("👋 Disconnecting: %d blocks received, pos=%v", c.BlockCount(), c.Position())
			return
		case now := <-ticker.C:
			err := c.Step(float32(now.Sub(last).Seconds()))
			last = now
			if errors.Is(err, client.ErrServerLost) {
				logging.Error("❌ Server lost")
				return
			}
			if err != nil {
				logging.Warn("step: %v", err)
			}
			if c.InventoryUpdated() {
				logging.Info("🎒 Inventory:\n%s", c.InventoryText())
			}
		}
	}
}
