// Command statemachine runs the Supervisory State Machine: the
// Context + State descriptor table that arbitrates power source and
// task availability (spec.md §4.7).
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
	"roboone/internal/statemachine"
)

func main() {
	configPath := flag.String("config", "roboone.json", "path to the deployment config file")
	flag.Parse()

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "statemachine: loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := core.InitLogger(cfg.LogsDir, "statemachine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "statemachine: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	sctx := statemachine.NewContext(cfg.Ports.Hardware, cfg.Ports.TaskHandler, logger)
	srv := statemachine.NewServer(sctx)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("listening on port %d", cfg.Ports.StateMachine)
	if err := messaging.Run(ctx, cfg.Ports.StateMachine, srv.Handle, logger); err != nil {
		logger.Error("server loop: %v", err)
		os.Exit(1)
	}
	logger.Success("stopped")
}
