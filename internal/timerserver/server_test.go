package timerserver

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"roboone/internal/core"
	"roboone/internal/messaging"
)

// fakeListener runs a tiny framed-message server on an ephemeral port and
// records every message it receives, standing in for a real subscriber
// process.
type fakeListener struct {
	mu       sync.Mutex
	received []messaging.Message
	seq      chan messaging.MsgType
}

func newFakeListener(t *testing.T) (*fakeListener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeListener{seq: make(chan messaging.MsgType, 64)}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				buf := make([]byte, messaging.MaxMessageSize)
				n, err := conn.Read(buf)
				if err != nil || n < 4 {
					return
				}
				msg, err := messaging.Decode(buf[:n])
				if err != nil {
					return
				}
				f.mu.Lock()
				f.received = append(f.received, msg)
				f.mu.Unlock()
				f.seq <- msg.Type
			}()
		}
	}()

	t.Cleanup(func() { ln.Close() })
	return f, ln.Addr().(*net.TCPAddr).Port
}

func newTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	logger, err := core.InitLogger(t.TempDir(), "timerserver-test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	s := NewServer(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go s.tickLoop(ctx)
	return s, func() { cancel(); logger.Close() }
}

func TestTimerOrdering(t *testing.T) {
	// spec.md §8 scenario 3: timers started with expiries 80,20,60,40,5
	// (deciseconds) fire in order 5,2,4,3,1.
	listener, port := newFakeListener(t)
	s, done := newTestServer(t)
	defer done()

	ids := []struct {
		id     uint32
		expiry uint32
	}{
		{1, 80}, {2, 20}, {3, 60}, {4, 40}, {5, 5},
	}
	for _, e := range ids {
		payload, err := NewPayload(messaging.MsgType(100+e.id), nil)
		if err != nil {
			t.Fatalf("payload: %v", err)
		}
		if err := s.Start(StartReq{ExpiryDeciseconds: e.expiry, ID: e.id, SourcePort: port, Payload: payload}); err != nil {
			t.Fatalf("start timer %d: %v", e.id, err)
		}
	}

	wantOrder := []uint32{5, 2, 4, 3, 1}
	var gotOrder []uint32
	for range wantOrder {
		select {
		case mt := <-listener.seq:
			gotOrder = append(gotOrder, uint32(mt)-100)
		case <-time.After(15 * time.Second):
			t.Fatalf("timed out waiting for expiry, got so far: %v", gotOrder)
		}
	}

	for i, want := range wantOrder {
		if gotOrder[i] != want {
			t.Errorf("expiry order[%d] = %d, want %d (full: %v)", i, gotOrder[i], want, gotOrder)
		}
	}
}

func TestTimerCancelBeforeExpiry(t *testing.T) {
	listener, port := newFakeListener(t)
	s, done := newTestServer(t)
	defer done()

	payload, _ := NewPayload(messaging.MsgType(42), nil)
	if err := s.Start(StartReq{ExpiryDeciseconds: 15, ID: 9, SourcePort: port, Payload: payload}); err != nil {
		t.Fatalf("start: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if err := s.Stop(StopReq{ID: 9, SourcePort: port}); err != nil {
		t.Fatalf("stop: %v", err)
	}

	select {
	case mt := <-listener.seq:
		t.Fatalf("expiry delivered after cancel: %v", mt)
	case <-time.After(2 * time.Second):
		// No delivery: correct.
	}
}

func TestStopUnknownTimerReturnsNotFound(t *testing.T) {
	s, done := newTestServer(t)
	defer done()

	if err := s.Stop(StopReq{ID: 999, SourcePort: 1}); err != ErrNotFound {
		t.Fatalf("Stop on unknown timer = %v, want ErrNotFound", err)
	}
}

func TestArenaFull(t *testing.T) {
	s, done := newTestServer(t)
	defer done()

	for i := 0; i < MaxTimers; i++ {
		if err := s.Start(StartReq{ExpiryDeciseconds: 10000, ID: uint32(i), SourcePort: 1}); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
	}
	if err := s.Start(StartReq{ExpiryDeciseconds: 10000, ID: 9999, SourcePort: 1}); err != ErrArenaFull {
		t.Fatalf("Start past capacity = %v, want ErrArenaFull", err)
	}
}

func TestHandleStartStopRoundTrip(t *testing.T) {
	s, done := newTestServer(t)
	defer done()

	body, _ := json.Marshal(StartReq{ExpiryDeciseconds: 50, ID: 1, SourcePort: 1})
	reply, hasReply, code := s.Handle(messaging.Message{Type: MsgStart, Body: body})
	if hasReply {
		t.Errorf("MsgStart produced a reply %+v, want none (spec.md §4.5 never confirms)", reply)
	}
	if code != messaging.KeepRunning {
		t.Errorf("code = %v, want KeepRunning", code)
	}

	stopBody, _ := json.Marshal(StopReq{ID: 1, SourcePort: 1})
	_, hasReply, _ = s.Handle(messaging.Message{Type: MsgStop, Body: stopBody})
	if hasReply {
		t.Errorf("MsgStop produced a reply, want none")
	}
}
