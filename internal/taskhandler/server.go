package taskhandler

import (
	"encoding/json"
	"sync"

	"roboone/internal/core"
	"roboone/internal/hindbrain"
	"roboone/internal/messaging"
)

// maxGuardCounter bounds every list walk (spec.md §4.6, §9: "MAX_GUARD_COUNTER
// = 150 in source... any iteration exceeding the bound aborts"). Re-implemented
// as the task arena's fixed capacity (spec.md §9's index-into-arena guidance)
// rather than a separate walk counter: a bounded arena makes runaway growth
// structurally impossible instead of merely detected.
const maxGuardCounter = 150

// entry is one arena slot (spec.md §9's index-into-arena re-implementation
// of the original's sentinel-rooted doubly linked list).
type entry struct {
	inUse     bool
	completed bool
	req       TaskReq
	result    *TaskResult
	haveResult bool
}

// Server is the Task Handler's process state.
type Server struct {
	logger          *core.Logger
	hindbrainDevice string

	mu      sync.Mutex
	arena   [maxGuardCounter]entry
	running bool
}

// NewServer builds an idle Task Handler bound to hindbrainDevice for HD
// dispatch.
func NewServer(hindbrainDevice string, logger *core.Logger) *Server {
	return &Server{hindbrainDevice: hindbrainDevice, logger: logger}
}

// NewTask appends req to the arena (spec.md §4.6: "NEW_TASK(task_req)
// copies the request into a fresh heap entry and appends to the list").
func (s *Server) NewTask(req TaskReq) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.arena {
		if !s.arena[i].inUse {
			s.arena[i] = entry{inUse: true, req: req}
			return nil
		}
	}
	return errArenaFull
}

var errArenaFull = taskListFullError{}

type taskListFullError struct{}

func (taskListFullError) Error() string { return "taskhandler: task list full" }

// Tick executes every not-yet-completed entry, delivers completion
// indications for entries whose requester asked for one, then compacts
// the arena: entries that are completed and have had their indication
// delivered are freed (spec.md §4.6: "the list is compacted: entries
// that are both completed and have a null result pointer are unlinked
// and freed").
func (s *Server) Tick() {
	s.mu.Lock()
	pending := make([]int, 0, len(s.arena))
	for i := range s.arena {
		if s.arena[i].inUse && !s.arena[i].completed {
			pending = append(pending, i)
		}
	}
	s.mu.Unlock()

	for _, i := range pending {
		s.doTask(i)
	}

	s.mu.Lock()
	toNotify := make([]int, 0, len(s.arena))
	for i := range s.arena {
		if s.arena[i].inUse && s.arena[i].completed && s.arena[i].haveResult {
			toNotify = append(toNotify, i)
		}
	}
	s.mu.Unlock()

	for _, i := range toNotify {
		s.doTaskCompleted(i)
	}

	s.mu.Lock()
	for i := range s.arena {
		if s.arena[i].inUse && s.arena[i].completed && !s.arena[i].haveResult {
			s.arena[i] = entry{}
		}
	}
	s.mu.Unlock()
}

// doTask dispatches entry i by its protocol (spec.md §4.6: "only HD is
// defined") and records the result.
func (s *Server) doTask(i int) {
	s.mu.Lock()
	req := s.arena[i].req
	s.mu.Unlock()

	var result TaskResult
	switch req.Body.Protocol {
	case ProtocolHD:
		result = TaskResult{Protocol: ProtocolHD, HD: s.doHDTask(req.Body.HD)}
	default:
		result = TaskResult{Protocol: req.Body.Protocol, HD: HDIndication{Result: ResultGeneralFailure}}
	}

	s.mu.Lock()
	s.arena[i].completed = true
	s.arena[i].result = &result
	s.arena[i].haveResult = true
	s.mu.Unlock()
}

func (s *Server) doHDTask(req HDRequest) HDIndication {
	link, err := hindbrain.Open(s.hindbrainDevice)
	if err != nil {
		return HDIndication{Result: ResultSendFailure}
	}
	defer link.Close()

	response, err := link.Send(req.Request, true)
	if err != nil {
		return HDIndication{Result: ResultGeneralFailure}
	}
	return HDIndication{Result: ResultSuccess, Response: response}
}

// doTaskCompleted delivers a TASK_IND to the requesting port if the
// original request carried a header, then frees the result buffer
// (spec.md §4.6: "the result buffer is then freed but the task entry
// itself remains marked completed").
func (s *Server) doTaskCompleted(i int) {
	s.mu.Lock()
	req := s.arena[i].req
	result := s.arena[i].result
	s.mu.Unlock()

	if req.HasHeader && result != nil {
		ind := TaskInd{Handle: req.Header.Handle, Result: *result}
		body, err := json.Marshal(ind)
		if err == nil {
			if err := messaging.Send(req.Header.SourcePort, messaging.Message{Type: MsgTaskInd, Body: body}); err != nil {
				s.logger.Warning("taskhandler: delivering TASK_IND to port %d: %v", req.Header.SourcePort, err)
			}
		}
	}

	s.mu.Lock()
	s.arena[i].result = nil
	s.arena[i].haveResult = false
	s.mu.Unlock()
}

// Handle implements messaging.Handler.
func (s *Server) Handle(msg messaging.Message) (messaging.Message, bool, messaging.ReturnCode) {
	switch msg.Type {
	case MsgServerStart:
		s.mu.Lock()
		s.running = true
		s.mu.Unlock()
		s.logger.Info("taskhandler: started")
		return messaging.Message{Type: msg.Type}, true, messaging.KeepRunning

	case MsgServerStop:
		s.mu.Lock()
		s.running = false
		s.arena = [maxGuardCounter]entry{}
		s.mu.Unlock()
		return messaging.Message{Type: msg.Type}, true, messaging.ExitNormally

	case MsgNewTask:
		var req TaskReq
		if err := json.Unmarshal(msg.Body, &req); err != nil {
			s.logger.Warning("taskhandler: malformed new-task request: %v", err)
			return messaging.Message{Type: msg.Type}, true, messaging.KeepRunning
		}
		if err := s.NewTask(req); err != nil {
			s.logger.Warning("taskhandler: %v", err)
		}
		return messaging.Message{Type: msg.Type}, true, messaging.KeepRunning

	case MsgTick:
		s.Tick()
		return messaging.Message{Type: msg.Type}, true, messaging.KeepRunning

	default:
		s.logger.Warning("taskhandler: unrecognised message type %d", msg.Type)
		return messaging.Message{Type: msg.Type}, true, messaging.KeepRunning
	}
}

// TaskCount reports how many arena slots are currently occupied, used by
// tests to assert the list empties after an indication is delivered
// (spec.md §8 scenario 5: "The task list becomes empty after the
// indication has been delivered").
func (s *Server) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.arena {
		if s.arena[i].inUse {
			n++
		}
	}
	return n
}

// SendNewTask is the client-side helper a requester uses to submit req to
// the Task Handler listening at port.
func SendNewTask(port int, req TaskReq) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	_, err = messaging.Call(port, messaging.Message{Type: MsgNewTask, Body: body}, true)
	return err
}

// SendTick is the client-side helper the Supervisor's display loop uses
// to drive the Task Handler's periodic dispatch.
func SendTick(port int) error {
	_, err := messaging.Call(port, messaging.Message{Type: MsgTick}, true)
	return err
}

// SendServerStart is the client-side helper the Supervisor uses during
// start-up (spec.md §6: "issues SERVER_START to each").
func SendServerStart(port int) error {
	_, err := messaging.Call(port, messaging.Message{Type: MsgServerStart}, true)
	return err
}

// SendServerStop is the client-side helper the Supervisor uses during
// shutdown (spec.md §6: "Shutdown is in reverse order via SERVER_STOP").
func SendServerStop(port int) error {
	_, err := messaging.Call(port, messaging.Message{Type: MsgServerStop}, true)
	return err
}
