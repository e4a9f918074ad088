// Command timerserver runs the Timer Server: a priority-sorted
// scheduling service driven by a single OS tick (spec.md §4.5).
//
// Unlike the other four subsystems, the Timer Server is not one of the
// children the Supervisor spawns (see internal/timerserver's package
// doc); it is started independently and is simply assumed reachable on
// its configured port by the time anything else needs it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"roboone/internal/core"
	"roboone/internal/timerserver"
)

func main() {
	configPath := flag.String("config", "roboone.json", "path to the deployment config file")
	flag.Parse()

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "timerserver: loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := core.InitLogger(cfg.LogsDir, "timerserver")
	if err != nil {
		fmt.Fprintf(os.Stderr, "timerserver: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	srv := timerserver.NewServer(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("listening on port %d", cfg.Ports.Timer)
	if err := srv.Run(ctx, cfg.Ports.Timer); err != nil {
		logger.Error("server loop: %v", err)
		os.Exit(1)
	}
	logger.Success("stopped")
}
