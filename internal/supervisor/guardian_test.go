package supervisor

import (
	"context"
	"net"
	"testing"
	"time"

	"roboone/internal/core"
)

func listenEphemeral(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return ln, ln.Addr().(*net.TCPAddr).Port
}

func newTestLogger(t *testing.T) *core.Logger {
	t.Helper()
	logger, err := core.InitLogger(t.TempDir(), "guardian-test")
	if err != nil {
		t.Fatalf("InitLogger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func TestProbePortSucceedsAgainstALiveListener(t *testing.T) {
	_, port := listenEphemeral(t)
	if err := probePort(port); err != nil {
		t.Fatalf("probePort against a live listener: %v", err)
	}
}

func TestProbePortFailsAgainstANonListeningPort(t *testing.T) {
	ln, port := listenEphemeral(t)
	ln.Close()
	// Give the OS a moment to actually release the socket.
	time.Sleep(20 * time.Millisecond)

	if err := probePort(port); err == nil {
		t.Fatalf("probePort against a closed listener succeeded, want an error")
	}
}

func TestGuardianCountsConsecutiveFailures(t *testing.T) {
	logger := newTestLogger(t)
	g := NewGuardian(logger, map[string]int{"dead": 1}) // nothing listens on port 1 as non-root

	for i := 0; i < guardianFailureThreshold; i++ {
		g.performCheck()
	}
	if g.failures["dead"] != guardianFailureThreshold {
		t.Fatalf("failures[dead] = %d, want %d", g.failures["dead"], guardianFailureThreshold)
	}
}

func TestGuardianResetsFailuresOnRecovery(t *testing.T) {
	logger := newTestLogger(t)
	_, port := listenEphemeral(t)
	g := NewGuardian(logger, map[string]int{"svc": port})
	g.failures["svc"] = guardianFailureThreshold

	g.performCheck()

	if g.failures["svc"] != 0 {
		t.Errorf("failures[svc] = %d after a successful probe, want 0", g.failures["svc"])
	}
}

func TestGuardianStartStop(t *testing.T) {
	logger := newTestLogger(t)
	_, port := listenEphemeral(t)
	g := NewGuardian(logger, map[string]int{"svc": port})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g.Start(ctx)
	g.Stop()
}
