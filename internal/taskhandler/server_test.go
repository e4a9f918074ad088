package taskhandler

import (
	"net"
	"testing"
	"time"

	"roboone/internal/core"
	"roboone/internal/messaging"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger, err := core.InitLogger(t.TempDir(), "taskhandler-test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return NewServer("/dev/nonexistent-roboone-test-hindbrain", logger)
}

// fakeRequester listens for a single TASK_IND and hands it back on a
// channel, standing in for the requesting process's own server.
func fakeRequester(t *testing.T) (chan messaging.Message, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	got := make(chan messaging.Message, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, messaging.MaxMessageSize)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		msg, err := messaging.Decode(buf[:n])
		if err == nil {
			got <- msg
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return got, ln.Addr().(*net.TCPAddr).Port
}

func TestTaskFlowDeliversIndicationAndEmptiesList(t *testing.T) {
	// spec.md §8 scenario 5.
	s := newTestServer(t)
	got, port := fakeRequester(t)

	if err := s.NewTask(TaskReq{
		HasHeader: true,
		Header:    TaskHeader{SourcePort: port, Handle: 0x42},
		Body:      TaskBody{Protocol: ProtocolHD, HD: HDRequest{Request: "!\n"}},
	}); err != nil {
		t.Fatalf("NewTask: %v", err)
	}

	if n := s.TaskCount(); n != 1 {
		t.Fatalf("TaskCount before tick = %d, want 1", n)
	}

	s.Tick()

	select {
	case msg := <-got:
		if msg.Type != MsgTaskInd {
			t.Errorf("indication type = %d, want MsgTaskInd", msg.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for TASK_IND")
	}

	if n := s.TaskCount(); n != 0 {
		t.Errorf("TaskCount after indication = %d, want 0 (list should be empty)", n)
	}
}

func TestTaskWithoutHeaderNeverSendsIndication(t *testing.T) {
	s := newTestServer(t)

	if err := s.NewTask(TaskReq{
		HasHeader: false,
		Body:      TaskBody{Protocol: ProtocolHD, HD: HDRequest{Request: "!\n"}},
	}); err != nil {
		t.Fatalf("NewTask: %v", err)
	}

	s.Tick()
	// The first tick completes the entry, drops its result and compacts
	// it away; a second tick on the emptied list leaves it empty.
	s.Tick()

	if n := s.TaskCount(); n != 0 {
		t.Errorf("TaskCount = %d, want 0 after compaction", n)
	}
}

func TestServerStopClearsArena(t *testing.T) {
	s := newTestServer(t)
	_ = s.NewTask(TaskReq{Body: TaskBody{Protocol: ProtocolHD, HD: HDRequest{Request: "x"}}})

	reply, hasReply, code := s.Handle(messaging.Message{Type: MsgServerStop})
	if !hasReply || code != messaging.ExitNormally {
		t.Fatalf("SERVER_STOP reply = %+v hasReply=%v code=%v", reply, hasReply, code)
	}
	if n := s.TaskCount(); n != 0 {
		t.Errorf("TaskCount after SERVER_STOP = %d, want 0", n)
	}
}
