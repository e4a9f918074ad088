package hardwareserver

import (
	"encoding/json"
	"fmt"
	"testing"

	"roboone/internal/core"
	"roboone/internal/messaging"
	"roboone/internal/onewire"
)

// fakeBus answers every Reset with success and simulates just enough of
// a DS2408's channel-access write/read-register protocol (tracked per
// address) for SetPins/ReadPins round trips to behave like the real
// device; every other command tolerates zeroed reply data.
type fakeBus struct {
	writes   [][]byte
	state    map[onewire.Address]byte
	resetErr error
}

func (f *fakeBus) Reset(addr onewire.Address) error {
	if f.resetErr != nil {
		return f.resetErr
	}
	return nil
}

func (f *fakeBus) Transact(addr onewire.Address, out []byte, replyLen int) ([]byte, error) {
	f.writes = append(f.writes, out)
	if f.state == nil {
		f.state = make(map[onewire.Address]byte)
	}

	if len(out) == 3 && out[0] == 0x5A { // channel access write
		f.state[addr] = out[1]
		reply := make([]byte, replyLen)
		if replyLen >= 1 {
			reply[0] = 0xAA
		}
		if replyLen >= 2 {
			reply[1] = out[1]
		}
		return reply, nil
	}
	if len(out) == 3 && out[0] == 0xF0 { // read PIO registers
		reply := make([]byte, replyLen)
		if replyLen >= 1 {
			reply[0] = f.state[addr]
		}
		return reply, nil
	}

	return make([]byte, replyLen), nil
}

// newUnstartedTestServer builds a Server the way cmd/hardwareserver does:
// NewServer only, leaving Start for a real SERVER_START message to
// trigger, so tests can prove Handle actually invokes it.
func newUnstartedTestServer(t *testing.T, bus *fakeBus) *Server {
	t.Helper()
	logger, err := core.InitLogger(t.TempDir(), "hardwareserver-test")
	if err != nil {
		t.Fatalf("InitLogger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })

	srv, err := NewServer(bus, "/dev/null", logger)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func newTestServer(t *testing.T) (*Server, *fakeBus) {
	t.Helper()
	logger, err := core.InitLogger(t.TempDir(), "hardwareserver-test")
	if err != nil {
		t.Fatalf("InitLogger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })

	bus := &fakeBus{}
	srv, err := NewServer(bus, "/dev/null", logger)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := srv.Start(bus, false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return srv, bus
}

func TestServerStartStop(t *testing.T) {
	srv, _ := newTestServer(t)

	reply, ok, code := srv.Handle(messaging.Message{Type: MsgServerStart})
	if !ok || code != messaging.KeepRunning {
		t.Fatalf("Handle(ServerStart) = ok:%v code:%v", ok, code)
	}
	if reply.Type != MsgServerStart {
		t.Errorf("reply type = %v, want MsgServerStart", reply.Type)
	}

	reply, ok, code = srv.Handle(messaging.Message{Type: MsgServerStop})
	if !ok || code != messaging.ExitNormally {
		t.Fatalf("Handle(ServerStop) = ok:%v code:%v, want ExitNormally", ok, code)
	}
}

func TestServerSetPowerControlPin(t *testing.T) {
	srv, _ := newTestServer(t)

	_, ok, _ := srv.Handle(messaging.Message{Type: MsgSetRioPwr12VOn})
	if !ok {
		t.Fatalf("Handle(SetRioPwr12VOn) not ok")
	}

	reply, ok, _ := srv.Handle(messaging.Message{Type: MsgReadRioPwr12V})
	if !ok {
		t.Fatalf("Handle(ReadRioPwr12V) not ok")
	}
	var cnf BoolCnf
	if err := json.Unmarshal(reply.Body, &cnf); err != nil {
		t.Fatalf("unmarshalling BoolCnf: %v", err)
	}
	if !cnf.Value {
		t.Errorf("ReadRioPwr12V after SetOn = false, want true")
	}
}

func TestServerBatteryChargerDispatch(t *testing.T) {
	srv, _ := newTestServer(t)

	_, ok, _ := srv.Handle(messaging.Message{Type: MsgSetO1BatteryChargerOn})
	if !ok {
		t.Fatalf("Handle(SetO1BatteryChargerOn) not ok")
	}

	reply, ok, _ := srv.Handle(messaging.Message{Type: MsgReadO1BatteryCharger})
	if !ok {
		t.Fatalf("Handle(ReadO1BatteryCharger) not ok")
	}
	var cnf BoolCnf
	if err := json.Unmarshal(reply.Body, &cnf); err != nil {
		t.Fatalf("unmarshalling: %v", err)
	}
	if !cnf.Value {
		t.Errorf("ReadO1BatteryCharger after SetOn = false, want true")
	}
}

func TestServerUnrecognisedMessageReturnsError(t *testing.T) {
	srv, _ := newTestServer(t)

	reply, ok, code := srv.Handle(messaging.Message{Type: messaging.MsgType(9999)})
	if !ok || code != messaging.KeepRunning {
		t.Fatalf("Handle(unknown) = ok:%v code:%v", ok, code)
	}
	var cnf ErrCnf
	if err := json.Unmarshal(reply.Body, &cnf); err != nil {
		t.Fatalf("unmarshalling ErrCnf: %v", err)
	}
	if cnf.Error == "" {
		t.Errorf("Handle(unknown) ErrCnf.Error is empty, want a message")
	}
}

// TestHandleServerStartActuallyStartsDeviceDiscovery pins down the
// SERVER_START bugfix: a message-driven SERVER_START must run device
// discovery (spec.md §4.1), not just confirm without touching the bus.
func TestHandleServerStartActuallyStartsDeviceDiscovery(t *testing.T) {
	bus := &fakeBus{resetErr: fmt.Errorf("bus offline")}
	srv := newUnstartedTestServer(t, bus)

	reply, ok, code := srv.Handle(messaging.Message{Type: MsgServerStart})
	if !ok || code != messaging.KeepRunning {
		t.Fatalf("Handle(ServerStart) = ok:%v code:%v", ok, code)
	}

	var cnf ErrCnf
	if err := json.Unmarshal(reply.Body, &cnf); err != nil {
		t.Fatalf("unmarshalling ErrCnf: %v", err)
	}
	if cnf.Error == "" {
		t.Fatalf("Handle(ServerStart) with a failing bus succeeded; device discovery was never invoked")
	}
}
