package supervisor

import (
	"context"
	"net"
	"strconv"
	"time"

	"roboone/internal/core"
)

// guardianInterval is the heartbeat period, matching the teacher's
// GuardianInstance.Start ticker.
const guardianInterval = 10 * time.Second

// guardianFailureThreshold is the consecutive-failure count after which
// the Guardian logs a warning (teacher: "Heartbeat fallido (%d/3)").
const guardianFailureThreshold = 3

// Guardian is an observability-only health watchdog over the
// Supervisor's children: every guardianInterval it probes each child's
// server port and tracks consecutive failures, logging a warning once
// the threshold is crossed. It never respawns a child (SPEC_FULL.md §C.6:
// spec.md's supervisor contract is spawn-once, and auto-respawn is not
// named anywhere in spec.md).
//
// Grounded on the teacher's installer/sentinel/internal/health/guardian.go
// GuardianInstance: ticker-driven performCheck, a per-target Failures
// counter, and the "(%d/3)" warning idiom. The teacher's checkHeartbeat
// sends a JSON PING over a 4-byte-length-prefixed connection and decodes
// a JSON reply; RoboOne's children don't define an unsolicited PING
// message type, so the probe here is a bare TCP connect-then-close
// (spec.md §4.1's own transport-error handling: "the Hardware Server
// logs and continues" on a truncated frame), which is enough to detect
// "the process died" without inventing a new wire message.
type Guardian struct {
	logger *core.Logger
	ports  map[string]int

	failures map[string]int
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewGuardian builds a Guardian watching the given name->port targets.
func NewGuardian(logger *core.Logger, ports map[string]int) *Guardian {
	return &Guardian{
		logger:   logger,
		ports:    ports,
		failures: make(map[string]int, len(ports)),
		done:     make(chan struct{}),
	}
}

// Start runs the heartbeat loop in a background goroutine until ctx is
// cancelled or Stop is called.
func (g *Guardian) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel

	go func() {
		defer close(g.done)
		ticker := time.NewTicker(guardianInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.performCheck()
			}
		}
	}()
}

// Stop cancels the heartbeat loop and waits for it to exit.
func (g *Guardian) Stop() {
	if g.cancel == nil {
		return
	}
	g.cancel()
	<-g.done
}

func (g *Guardian) performCheck() {
	for name, port := range g.ports {
		if err := probePort(port); err != nil {
			g.failures[name]++
			if g.failures[name] >= guardianFailureThreshold {
				g.logger.Warning("%s heartbeat failed (%d/%d): %v", name, g.failures[name], guardianFailureThreshold, err)
			}
			continue
		}
		if g.failures[name] > 0 {
			g.logger.Info("%s heartbeat recovered", name)
		}
		g.failures[name] = 0
	}
}

// probePort connects and disconnects without writing anything, just
// enough to prove a listener is alive.
func probePort(port int) error {
	conn, err := net.DialTimeout("tcp", addrFor(port), 2*time.Second)
	if err != nil {
		return err
	}
	return conn.Close()
}

func isPortOpen(port int) bool {
	conn, err := net.DialTimeout("tcp", addrFor(port), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func addrFor(port int) string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}
