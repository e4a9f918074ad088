// Command supervisor is the top-level launcher: it spawns the Hardware,
// Task Handler, Battery Manager, and State Machine servers in order,
// starts each, runs the health Guardian and display loop, and tears
// everything down in reverse order on shutdown (spec.md §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"roboone/internal/core"
	"roboone/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "roboone.json", "path to the deployment config file")
	binDir := flag.String("bin-dir", ".", "directory containing the compiled child binaries")
	flag.Parse()

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "supervisor: loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := core.InitLogger(cfg.LogsDir, "supervisor")
	if err != nil {
		fmt.Fprintf(os.Stderr, "supervisor: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	absConfigPath, err := filepath.Abs(*configPath)
	if err != nil {
		logger.Error("resolving config path: %v", err)
		os.Exit(-1)
	}

	sup := supervisor.New(cfg, logger, *binDir)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := sup.Run(ctx, absConfigPath); err != nil {
		logger.Error("supervisor: %v", err)
		os.Exit(-1)
	}
	logger.Success("supervisor stopped")
}
