// Package supervisor is the top-level launcher process: it spawns the
// four child servers in dependency order, performs the SERVER_START /
// SERVER_STOP handshake, runs a health Guardian against each child, and
// drives the display loop that moves hardware samples into the Battery
// Manager and ticks the Task Handler (spec.md §6: "Supervisor
// lifecycle").
//
// Grounded on the teacher's installer/sentinel/process_manager.go
// ProcessManager/ManagedProcess (spawn + registerProcess + StopAll
// "REAPER" pattern), adapted from "launch Chromium, wait for one
// handshake port" to "launch four servers in order, SERVER_START each".
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"roboone/internal/batterymanager"
	"roboone/internal/core"
	"roboone/internal/hardwareserver"
	"roboone/internal/statemachine"
	"roboone/internal/taskhandler"
)

// startupDelay is the fixed pause the Supervisor waits after spawning
// each child before spawning the next (spec.md §6: "waits a fixed
// start-up delay between each").
const startupDelay = 500 * time.Millisecond

// ManagedProcess is one child the Supervisor spawns and tracks, named
// after the teacher's ManagedProcess.
type ManagedProcess struct {
	Name string
	Cmd  *exec.Cmd
}

// Supervisor spawns, starts, health-checks and stops the four child
// servers: Hardware, Task Handler, Battery Manager, and State Machine,
// in that order (spec.md §6). The Timer Server is not spawned here; it
// is assumed already running (see internal/timerserver's package doc).
type Supervisor struct {
	cfg    *core.Config
	logger *core.Logger
	binDir string

	mu        sync.Mutex
	processes []*ManagedProcess

	guardian *Guardian
}

// New builds a Supervisor. binDir is the directory containing the
// compiled cmd/hardwareserver, cmd/taskhandler, cmd/batterymanager, and
// cmd/statemachine binaries.
func New(cfg *core.Config, logger *core.Logger, binDir string) *Supervisor {
	return &Supervisor{cfg: cfg, logger: logger, binDir: binDir}
}

// Run spawns every child in order, waits the start-up delay after each,
// issues SERVER_START to each in the same order, then starts the health
// Guardian and the display loop, blocking until ctx is cancelled. On
// return it always unwinds via Shutdown.
func (s *Supervisor) Run(ctx context.Context, configPath string) error {
	if err := s.startAll(configPath); err != nil {
		s.logger.Error("start-up failed: %v", err)
		s.Shutdown()
		return err
	}

	s.guardian = NewGuardian(s.logger, map[string]int{
		"hardwareserver": s.cfg.Ports.Hardware,
		"taskhandler":    s.cfg.Ports.TaskHandler,
		"batterymanager": s.cfg.Ports.BatteryManager,
		"statemachine":   s.cfg.Ports.StateMachine,
	})
	s.guardian.Start(ctx)

	loop := newDisplayLoop(s.cfg, s.logger)
	loopDone := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(loopDone)
	}()

	<-ctx.Done()
	s.guardian.Stop()
	<-loopDone
	s.Shutdown()
	return nil
}

// startAll spawns the four children in dependency order and issues
// SERVER_START to each once its port is reachable.
func (s *Supervisor) startAll(configPath string) error {
	type child struct {
		name    string
		cmdName string
		port    int
		start   func(port int) error
	}

	children := []child{
		{"hardwareserver", "hardwareserver", s.cfg.Ports.Hardware, func(port int) error {
			return hardwareserver.ServerStart(port, false)
		}},
		{"taskhandler", "taskhandler", s.cfg.Ports.TaskHandler, taskhandler.SendServerStart},
		{"batterymanager", "batterymanager", s.cfg.Ports.BatteryManager, batterymanager.SendServerStart},
		{"statemachine", "statemachine", s.cfg.Ports.StateMachine, statemachine.SendServerStart},
	}

	for _, c := range children {
		if err := s.spawn(c.name, c.cmdName, configPath); err != nil {
			return fmt.Errorf("supervisor: spawning %s: %w", c.name, err)
		}
		time.Sleep(startupDelay)
		if err := s.waitForPort(c.port, 5*time.Second); err != nil {
			return fmt.Errorf("supervisor: %s never opened its port: %w", c.name, err)
		}
		if err := c.start(c.port); err != nil {
			return fmt.Errorf("supervisor: SERVER_START to %s: %w", c.name, err)
		}
		s.logger.Success("%s started", c.name)
	}
	return nil
}

// spawn starts one child binary and registers it, following the
// teacher's registerProcess idiom.
func (s *Supervisor) spawn(name, binName, configPath string) error {
	cmd := exec.Command(s.binDir+"/"+binName, "-config", configPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}

	s.mu.Lock()
	s.processes = append(s.processes, &ManagedProcess{Name: name, Cmd: cmd})
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) waitForPort(port int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if isPortOpen(port) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for port %d", port)
}

// Shutdown issues SERVER_STOP to every running child in reverse spawn
// order, then waits for each process to exit (spec.md §6: "Shutdown is
// in reverse order via SERVER_STOP and process wait").
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	procs := make([]*ManagedProcess, len(s.processes))
	copy(procs, s.processes)
	s.mu.Unlock()

	stoppers := map[string]func(int) error{
		"statemachine":   statemachine.SendServerStop,
		"batterymanager": batterymanager.SendServerStop,
		"taskhandler":    taskhandler.SendServerStop,
		"hardwareserver": hardwareserver.ServerStop,
	}
	ports := map[string]int{
		"hardwareserver": s.cfg.Ports.Hardware,
		"taskhandler":    s.cfg.Ports.TaskHandler,
		"batterymanager": s.cfg.Ports.BatteryManager,
		"statemachine":   s.cfg.Ports.StateMachine,
	}

	for i := len(procs) - 1; i >= 0; i-- {
		p := procs[i]
		if stop, ok := stoppers[p.Name]; ok {
			if err := stop(ports[p.Name]); err != nil {
				s.logger.Warning("SERVER_STOP to %s: %v", p.Name, err)
			}
		}
		if p.Cmd.Process != nil {
			_ = p.Cmd.Wait()
		}
		s.logger.Info("%s stopped", p.Name)
	}

	s.mu.Lock()
	s.processes = nil
	s.mu.Unlock()
}
