package statemachine

import (
	"encoding/json"
	"net"
	"testing"

	"roboone/internal/core"
	"roboone/internal/hardwareserver"
	"roboone/internal/messaging"
)

// fakeHardwareServer answers every request with a plausible confirm body
// so the State Machine's action helpers (actions.go) have something to
// talk to without a real 1-Wire bus or Hindbrain attached.
func fakeHardwareServer(t *testing.T, mainsAvailable, hindbrainResponds bool) int {
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
			go func() {
				defer conn.Close()
				buf := make([]byte, messaging.MaxMessageSize)
				n, err := conn.Read(buf)
				if err != nil {
					return
				}
				msg, err := messaging.Decode(buf[:n])
				if err != nil {
					return
				}

				var body []byte
				switch msg.Type {
				case hardwareserver.MsgReadMains12V:
					body, _ = json.Marshal(hardwareserver.BoolCnf{Value: mainsAvailable})
				case hardwareserver.MsgSendOString:
					response := ""
					if hindbrainResponds {
						response = "OK\r"
					}
					body, _ = json.Marshal(hardwareserver.SendOStringCnf{Response: response})
					if !hindbrainResponds {
						body, _ = json.Marshal(hardwareserver.ErrCnf{Error: "no hindbrain"})
					}
				default:
					body = nil
				}
				reply := messaging.Message{Type: msg.Type, Body: body}
				encoded, err := reply.Encode()
				if err == nil {
					conn.Write(encoded)
				}
			}()
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port
}

func newTestContext(t *testing.T, hardwarePort int) *Context {
	t.Helper()
	logger, err := core.InitLogger(t.TempDir(), "statemachine-test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return NewContext(hardwarePort, 0, logger)
}

func TestInitToRunningOnMainsPower(t *testing.T) {
	port := fakeHardwareServer(t, true, true)
	ctx := newTestContext(t, port)

	transitionToInit(ctx)
	if ctx.StateName() != "Init" {
		t.Fatalf("state after transitionToInit = %s, want Init", ctx.StateName())
	}

	ctx.dispatch(func(s *State) func(*Context) { return s.Init })

	if ctx.StateName() != "Running" {
		t.Errorf("state after init event with mains+hindbrain present = %s, want Running", ctx.StateName())
	}
}

func TestInitToFailedWhenHindbrainNeverResponds(t *testing.T) {
	port := fakeHardwareServer(t, true, false)
	ctx := newTestContext(t, port)

	transitionToInit(ctx)
	ctx.dispatch(func(s *State) func(*Context) { return s.Init })

	if ctx.StateName() != "Failed" {
		t.Errorf("state = %s, want Failed", ctx.StateName())
	}
}

func TestGetContextHandler(t *testing.T) {
	port := fakeHardwareServer(t, false, true)
	ctx := newTestContext(t, port)
	s := NewServer(ctx)

	transitionToInit(ctx)
	reply, hasReply, code := s.Handle(messaging.Message{Type: MsgGetContext})
	if !hasReply || code != messaging.KeepRunning {
		t.Fatalf("GET_CONTEXT hasReply=%v code=%v", hasReply, code)
	}
	var cnf GetContextCnf
	if err := json.Unmarshal(reply.Body, &cnf); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cnf.StateName != "Init" || !cnf.IsValid {
		t.Errorf("GET_CONTEXT = %+v", cnf)
	}
}

func TestEventsAreFireAndForget(t *testing.T) {
	port := fakeHardwareServer(t, false, true)
	ctx := newTestContext(t, port)
	s := NewServer(ctx)
	transitionToInit(ctx)

	_, hasReply, _ := s.Handle(messaging.Message{Type: MsgEventInit})
	if hasReply {
		t.Errorf("event message produced a reply, want fire-and-forget")
	}
}
