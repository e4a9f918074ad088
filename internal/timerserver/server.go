package timerserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"roboone/internal/core"
	"roboone/internal/messaging"
)

// tickInterval is the OS tick period (spec.md §4.5: "On each OS tick
// (100 ms)...").
const tickInterval = 100 * time.Millisecond

// ErrArenaFull is returned by Start when all MaxTimers slots are occupied.
var ErrArenaFull = errors.New("timerserver: timer arena full")

// ErrNotFound is returned by Stop when no timer matches (id, sourcePort).
var ErrNotFound = errors.New("timerserver: no matching timer")

// slot is one entry of the fixed-size timer arena (spec.md §9: "Re-
// implement linked lists as index-into-arena collections... each entry
// carries an explicit in_use flag; allocation scans the arena"). The
// original's two linked lists (free, in-use-sorted) collapse into one
// array plus a separately-maintained sorted index, which is the arena
// idiom spec.md's design notes ask for.
type slot struct {
	inUse       bool
	expiry      uint32
	id          uint32
	sourcePort  int
	userContext uint64
	payload     Payload
}

// Server is the Timer Server's process state: the timer arena, the
// free-running deciseconds counter, and the mutex guarding both (spec.md
// §4.5: "tick handling and allocation/free contend for a single mutex").
type Server struct {
	logger *core.Logger

	mu      sync.Mutex
	arena   [MaxTimers]slot
	order   []int // indices into arena, in use only, ascending by expiry
	counter uint32
	running bool

	cancelTick context.CancelFunc
}

// NewServer builds an idle Timer Server.
func NewServer(logger *core.Logger) *Server {
	return &Server{logger: logger}
}

// Run starts the tick goroutine and serves the messaging loop on port
// until ctx is cancelled or a MsgServerStop is handled.
func (s *Server) Run(ctx context.Context, port int) error {
	tickCtx, cancel := context.WithCancel(ctx)
	s.cancelTick = cancel
	go s.tickLoop(tickCtx)

	err := messaging.Run(ctx, port, s.Handle, s.logger)
	cancel()
	return err
}

func (s *Server) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick advances the free-running counter and fires every timer whose
// expiry has passed, earliest first, skipping the whole tick if the
// mutex is currently held by a Start/Stop call (spec.md §4.5: "The tick
// handler uses try_lock and skips the tick if the lock is currently held
// by a mutating operation; a missed tick is acceptable because expiry
// times are absolute").
func (s *Server) tick() {
	if !s.mu.TryLock() {
		return
	}
	s.counter++
	var fired []slot
	for len(s.order) > 0 {
		idx := s.order[0]
		if s.arena[idx].expiry > s.counter {
			break
		}
		fired = append(fired, s.arena[idx])
		s.arena[idx] = slot{}
		s.order = s.order[1:]
	}
	s.mu.Unlock()

	for _, t := range fired {
		s.deliver(t)
	}
}

func (s *Server) deliver(t slot) {
	err := messaging.Send(t.sourcePort, messaging.Message{Type: t.payload.Type, Body: t.payload.Body})
	if err != nil {
		s.logger.Warning("timerserver: delivering expiry for timer %d to port %d: %v", t.id, t.sourcePort, err)
	}
}

// Start allocates a timer arena slot for req and inserts it into the
// in-use order sorted ascending by expiry (spec.md §4.5: "Insertion is
// followed by a bubble-sort pass to maintain order" — the fixed-size
// arena plus a linear insertion-point scan achieves the same ordering
// guarantee without the original's bubble-sort pass).
func (s *Server) Start(req StartReq) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.arena {
		if !s.arena[i].inUse {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrArenaFull
	}

	expiry := s.counter + req.ExpiryDeciseconds
	s.arena[idx] = slot{
		inUse:       true,
		expiry:      expiry,
		id:          req.ID,
		sourcePort:  req.SourcePort,
		userContext: req.UserContext,
		payload:     req.Payload,
	}

	pos := 0
	for pos < len(s.order) && s.arena[s.order[pos]].expiry <= expiry {
		pos++
	}
	s.order = append(s.order, 0)
	copy(s.order[pos+1:], s.order[pos:])
	s.order[pos] = idx

	return nil
}

// Stop locates the timer matching (id, sourcePort) and frees it, with
// at-most-once delivery semantics (spec.md §5: "a cancellation racing
// expiry may either succeed or lose").
func (s *Server) Stop(req StopReq) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for pos, idx := range s.order {
		if s.arena[idx].id == req.ID && s.arena[idx].sourcePort == req.SourcePort {
			s.arena[idx] = slot{}
			s.order = append(s.order[:pos], s.order[pos+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Handle implements messaging.Handler. Every message is fire-and-forget:
// the original never returns a confirmation for any Timer Server
// message, so Handle always reports hasReply=false.
func (s *Server) Handle(msg messaging.Message) (messaging.Message, bool, messaging.ReturnCode) {
	switch msg.Type {
	case MsgServerStart:
		s.mu.Lock()
		s.running = true
		s.mu.Unlock()
		s.logger.Info("timerserver: started")
		return messaging.Message{}, false, messaging.KeepRunning

	case MsgServerStop:
		s.mu.Lock()
		s.running = false
		s.arena = [MaxTimers]slot{}
		s.order = nil
		s.mu.Unlock()
		if s.cancelTick != nil {
			s.cancelTick()
		}
		return messaging.Message{}, false, messaging.ExitNormally

	case MsgStart:
		var req StartReq
		if err := json.Unmarshal(msg.Body, &req); err != nil {
			s.logger.Warning("timerserver: malformed start request: %v", err)
			return messaging.Message{}, false, messaging.KeepRunning
		}
		if err := s.Start(req); err != nil {
			s.logger.Warning("timerserver: %v", err)
		}
		return messaging.Message{}, false, messaging.KeepRunning

	case MsgStop:
		var req StopReq
		if err := json.Unmarshal(msg.Body, &req); err != nil {
			s.logger.Warning("timerserver: malformed stop request: %v", err)
			return messaging.Message{}, false, messaging.KeepRunning
		}
		_ = s.Stop(req)
		return messaging.Message{}, false, messaging.KeepRunning

	default:
		s.logger.Warning("timerserver: unrecognised message type %d", msg.Type)
		return messaging.Message{}, false, messaging.KeepRunning
	}
}

// NewPayload packages body as a Payload ready to hand to StartReq,
// matching spec.md §4.5's "helper that packages {msg_type, body_bytes}
// into a short framed message".
func NewPayload(msgType messaging.MsgType, body any) (Payload, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return Payload{}, fmt.Errorf("timerserver: encoding payload: %w", err)
	}
	return Payload{Type: msgType, Body: b}, nil
}

// SendStart is the client-side helper a subscriber uses to start a timer
// on the Timer Server listening at port.
func SendStart(port int, req StartReq) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("timerserver: encoding start request: %w", err)
	}
	return messaging.Send(port, messaging.Message{Type: MsgStart, Body: body})
}

// SendStop is the client-side helper matching SendStart.
func SendStop(port int, req StopReq) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("timerserver: encoding stop request: %w", err)
	}
	return messaging.Send(port, messaging.Message{Type: MsgStop, Body: body})
}
