package statemachine

import (
	"encoding/json"

	"roboone/internal/messaging"
	"roboone/internal/taskhandler"
)

// Server adapts a Context to messaging.Handler. SERVER_START/STOP/
// GET_CONTEXT are the only messages that produce a reply; every
// supervisory event is fire-and-forget (spec.md §4.7).
type Server struct {
	ctx *Context
}

// NewServer wraps ctx.
func NewServer(ctx *Context) *Server {
	return &Server{ctx: ctx}
}

// Handle implements messaging.Handler.
func (s *Server) Handle(msg messaging.Message) (messaging.Message, bool, messaging.ReturnCode) {
	switch msg.Type {
	case MsgServerStart:
		transitionToInit(s.ctx)
		return messaging.Message{Type: msg.Type}, true, messaging.KeepRunning

	case MsgServerStop:
		return messaging.Message{Type: msg.Type}, true, messaging.ExitNormally

	case MsgGetContext:
		cnf := GetContextCnf{StateName: s.ctx.StateName(), IsValid: true}
		body, _ := json.Marshal(cnf)
		return messaging.Message{Type: msg.Type, Body: body}, true, messaging.KeepRunning

	case MsgEventInit:
		s.ctx.dispatch(func(st *State) func(*Context) { return st.Init })
		return messaging.Message{}, false, messaging.KeepRunning

	case MsgEventInitFailure:
		s.ctx.dispatch(func(st *State) func(*Context) { return st.InitFailure })
		return messaging.Message{}, false, messaging.KeepRunning

	case MsgEventTimerExpiry:
		s.ctx.dispatch(func(st *State) func(*Context) { return st.TimerExpiry })
		return messaging.Message{}, false, messaging.KeepRunning

	case MsgEventTasksAvailable:
		var req taskhandler.TaskReq
		if err := json.Unmarshal(msg.Body, &req); err == nil {
			s.ctx.dispatch(func(st *State) func(*Context) {
				if st.TasksAvailable == nil {
					return nil
				}
				return func(c *Context) { st.TasksAvailable(c, req) }
			})
		}
		return messaging.Message{}, false, messaging.KeepRunning

	case MsgEventNoTasksAvailable:
		s.ctx.dispatch(func(st *State) func(*Context) { return st.NoTasksAvailable })
		return messaging.Message{}, false, messaging.KeepRunning

	case MsgEventMainsPowerAvailable:
		s.ctx.dispatch(func(st *State) func(*Context) { return st.MainsPowerAvailable })
		return messaging.Message{}, false, messaging.KeepRunning

	case MsgEventInsufficientPower:
		s.ctx.dispatch(func(st *State) func(*Context) { return st.InsufficientPower })
		return messaging.Message{}, false, messaging.KeepRunning

	case MsgEventFullyCharged:
		s.ctx.dispatch(func(st *State) func(*Context) { return st.FullyCharged })
		return messaging.Message{}, false, messaging.KeepRunning

	case MsgEventInsufficientCharge:
		s.ctx.dispatch(func(st *State) func(*Context) { return st.InsufficientCharge })
		return messaging.Message{}, false, messaging.KeepRunning

	case MsgEventShutdown:
		s.ctx.dispatch(func(st *State) func(*Context) { return st.Shutdown })
		return messaging.Message{}, false, messaging.KeepRunning

	default:
		s.ctx.logger.Warning("statemachine: unrecognised message type %d", msg.Type)
		return messaging.Message{}, false, messaging.KeepRunning
	}
}

// --- client-side helpers, used by Battery Manager and the Supervisor ---

// SendEvent delivers a fire-and-forget event to the State Machine
// listening at port.
func SendEvent(port int, msgType messaging.MsgType) error {
	return messaging.Send(port, messaging.Message{Type: msgType})
}

// GetContext returns a copy of the State Machine's current state name,
// used by the Supervisor's display loop to show state transitions
// (spec.md §4.7: "GET_CONTEXT returns a copy of the current Context").
func GetContext(port int) (GetContextCnf, error) {
	reply, err := messaging.Call(port, messaging.Message{Type: MsgGetContext}, true)
	if err != nil {
		return GetContextCnf{}, err
	}
	var cnf GetContextCnf
	if err := json.Unmarshal(reply.Body, &cnf); err != nil {
		return GetContextCnf{}, err
	}
	return cnf, nil
}

// SendServerStart starts the State Machine's initial state transition
// (spec.md §4.7: "SERVER_START transitions to the initial state").
func SendServerStart(port int) error {
	_, err := messaging.Call(port, messaging.Message{Type: MsgServerStart}, true)
	return err
}

// SendServerStop tells the State Machine to stop accepting connections.
func SendServerStop(port int) error {
	_, err := messaging.Call(port, messaging.Message{Type: MsgServerStop}, true)
	return err
}

// SendTasksAvailable delivers MsgEventTasksAvailable carrying req.
func SendTasksAvailable(port int, req taskhandler.TaskReq) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return messaging.Send(port, messaging.Message{Type: MsgEventTasksAvailable, Body: body})
}
