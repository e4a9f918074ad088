// Command capacitysync is the remaining-capacity sync tool SPEC_FULL.md
// §C.5 recovers from the original remaining_capacity_sync.c: a one-shot
// operator utility that starts the Hardware Server in batteries-only
// mode (so it never touches relays), rewrites every DS2438's
// non-volatile remaining-capacity page to the pack's rated capacity,
// and stops the server again.
//
// The original simply re-reads each battery's remaining capacity to
// force a sync back to non-volatile storage before power-off; this
// build instead drives the Hardware Server's existing battery-swap
// message (spec.md §4.3), which performs that NV rewrite, so no new
// wire message is needed. The swap also zeroes each battery's lifetime
// charge/discharge counters.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/exec"
	"time"

	"roboone/internal/core"
	"roboone/internal/hardwareserver"
	"roboone/internal/onewire"
)

// ratedCapacityMAh is the pack's manufacturer-rated capacity. Neither
// spec.md nor the original source gives an exact figure (see
// DESIGN.md); 2200 mAh is a placeholder sealed lead-acid rating typical
// of the packs RoboOneHardware's device table targets.
const ratedCapacityMAh = 2200

func main() {
	configPath := flag.String("config", "roboone.json", "path to the deployment config file")
	binDir := flag.String("bin-dir", ".", "directory containing the compiled hardwareserver binary")
	flag.Parse()

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "capacitysync: loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := core.InitLogger(cfg.LogsDir, "capacitysync")
	if err != nil {
		fmt.Fprintf(os.Stderr, "capacitysync: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	port := cfg.Ports.Hardware

	// Fork a Hardware Server of our own, the way the original forked
	// HARDWARE_SERVER_EXE before talking to it.
	logger.Info("spawning hardware server")
	cmd := exec.Command(*binDir+"/hardwareserver", "-config", *configPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		logger.Error("spawning hardware server: %v", err)
		os.Exit(-1)
	}

	if err := waitForPort(port, 5*time.Second); err != nil {
		logger.Error("hardware server never opened its port: %v", err)
		_ = cmd.Process.Kill()
		os.Exit(-1)
	}

	logger.Info("starting hardware server in batteries-only mode")
	if err := hardwareserver.ServerStart(port, true); err != nil {
		logger.Error("SERVER_START failed: %v", err)
		_ = cmd.Process.Kill()
		os.Exit(-1)
	}

	roles := []onewire.DeviceRole{
		onewire.RoleRioBatteryMonitor,
		onewire.RoleO1BatteryMonitor,
		onewire.RoleO2BatteryMonitor,
		onewire.RoleO3BatteryMonitor,
	}

	failed := false
	for _, role := range roles {
		if err := hardwareserver.SwapBattery(port, role, ratedCapacityMAh); err != nil {
			logger.Error("syncing %s to %d mAh: %v", role, ratedCapacityMAh, err)
			failed = true
			continue
		}
		logger.Success("%s remaining capacity synced to %d mAh", role, ratedCapacityMAh)
	}

	if err := hardwareserver.ServerStop(port); err != nil {
		logger.Error("SERVER_STOP failed: %v", err)
		failed = true
	}
	_ = cmd.Wait()

	if failed {
		os.Exit(-1)
	}
	logger.Success("synchronisation complete")
}

func waitForPort(port int, timeout time.Duration) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for port %d", port)
}
