package messaging

import (
	"context"
	"sync"
	"testing"
	"time"
)

// noopLogger discards everything; Run only needs a Logger so it can
// report write failures it otherwise has no way to surface.
type noopLogger struct{}

func (noopLogger) Warning(format string, v ...any) {}

func TestServerEchoesAndExitsOnExitNormally(t *testing.T) {
	const port = 18765
	const echoType MsgType = 1
	const stopType MsgType = 2

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	ready := make(chan struct{})
	var readyOnce sync.Once
	go func() {
		done <- Run(ctx, port, func(received Message) (Message, bool, ReturnCode) {
			readyOnce.Do(func() { close(ready) })
			if received.Type == stopType {
				return Message{}, false, ExitNormally
			}
			return Message{Type: echoType, Body: received.Body}, true, KeepRunning
		}, noopLogger{})
	}()

	// Give the listener a moment to bind before dialing.
	time.Sleep(50 * time.Millisecond)

	reply, err := Call(port, Message{Type: echoType, Body: []byte("ping")}, true)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(reply.Body) != "ping" {
		t.Fatalf("got reply body %q, want %q", reply.Body, "ping")
	}

	if err := Send(port, Message{Type: stopType}); err != nil {
		t.Fatalf("Send(stop): %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit after ExitNormally")
	}

	<-ready // avoid an unused-channel vet complaint in edge builds
}
