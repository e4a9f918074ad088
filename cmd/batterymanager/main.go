// Command batterymanager runs the Battery Manager: per-battery charging
// policy, hysteresis, and the command-spacing queue (spec.md §4.4).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"roboone/internal/batterymanager"
	"roboone/internal/core"
	"roboone/internal/messaging"
)

func main() {
	configPath := flag.String("config", "roboone.json", "path to the deployment config file")
	flag.Parse()

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "batterymanager: loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := core.InitLogger(cfg.LogsDir, "batterymanager")
	if err != nil {
		fmt.Fprintf(os.Stderr, "batterymanager: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	srv := batterymanager.NewServer(cfg.Ports.BatteryManager, cfg.Ports.Hardware, cfg.Ports.Timer, cfg.Ports.StateMachine, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("listening on port %d", cfg.Ports.BatteryManager)
	if err := messaging.Run(ctx, cfg.Ports.BatteryManager, srv.Handle, logger); err != nil {
		logger.Error("server loop: %v", err)
		os.Exit(1)
	}
	logger.Success("stopped")
}
