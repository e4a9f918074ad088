// Command hardwareserver runs the Hardware Server: the single-writer
// gateway to the 1-Wire bus and the Hindbrain serial link (spec.md §4.3).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"roboone/internal/core"
	"roboone/internal/hardwareserver"
	"roboone/internal/messaging"
	"roboone/internal/onewire"
	"roboone/internal/serialport"
)

func main() {
	configPath := flag.String("config", "roboone.json", "path to the deployment config file")
	flag.Parse()

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hardwareserver: loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := core.InitLogger(cfg.LogsDir, "hardwareserver")
	if err != nil {
		fmt.Fprintf(os.Stderr, "hardwareserver: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	busPort, err := serialport.Open(serialport.OneWireBusConfig(cfg.OneWireBusDevice))
	if err != nil {
		logger.Error("opening 1-Wire bus adapter %s: %v", cfg.OneWireBusDevice, err)
		os.Exit(1)
	}
	defer busPort.Close()

	bus := onewire.NewSerialBus(busPort)

	srv, err := hardwareserver.NewServer(bus, cfg.HindbrainDevice, logger)
	if err != nil {
		logger.Error("building server: %v", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("listening on port %d", cfg.Ports.Hardware)
	if err := messaging.Run(ctx, cfg.Ports.Hardware, srv.Handle, logger); err != nil {
		logger.Error("server loop: %v", err)
		os.Exit(1)
	}
	logger.Success("stopped")
}
