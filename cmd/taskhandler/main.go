// Command taskhandler runs the Task Handler: the task queue and
// protocol-dispatched execution engine (spec.md §4.6).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"roboone/internal/core"
	"roboone/internal/messaging"
	"roboone/internal/taskhandler"
)

func main() {
	configPath := flag.String("config", "roboone.json", "path to the deployment config file")
	flag.Parse()

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "taskhandler: loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := core.InitLogger(cfg.LogsDir, "taskhandler")
	if err != nil {
		fmt.Fprintf(os.Stderr, "taskhandler: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	srv := taskhandler.NewServer(cfg.HindbrainDevice, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("listening on port %d", cfg.Ports.TaskHandler)
	if err := messaging.Run(ctx, cfg.Ports.TaskHandler, srv.Handle, logger); err != nil {
		logger.Error("server loop: %v", err)
		os.Exit(1)
	}
	logger.Success("stopped")
}
