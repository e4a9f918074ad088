package statemachine

import (
	"sync"

	"roboone/internal/core"
	"roboone/internal/taskhandler"
)

// State is one node of the supervisory FSM (spec.md §4.7): a display
// name plus an event-handler table. Every handler is optional; an event
// with no handler in the current state is simply ignored, matching
// state_machine_server.c's doAction() which calls into whatever the
// current state descriptor provides and does nothing otherwise.
type State struct {
	Name string

	OnEnter func(*Context)
	OnExit  func(*Context)

	Init                func(*Context)
	InitFailure         func(*Context)
	TimerExpiry         func(*Context)
	TasksAvailable      func(*Context, taskhandler.TaskReq)
	NoTasksAvailable    func(*Context)
	MainsPowerAvailable func(*Context)
	InsufficientPower   func(*Context)
	FullyCharged        func(*Context)
	InsufficientCharge  func(*Context)
	Shutdown            func(*Context)
}

// Context is the State Machine Server's single process-lifetime record
// (spec.md §3: "A single instance owned by the State Machine Server for
// the process lifetime").
type Context struct {
	mu sync.Mutex

	state *State

	hardwarePort    int
	taskHandlerPort int

	logger *core.Logger
}

// NewContext builds a Context wired to the Hardware Server and Task
// Handler ports it needs to drive power-path and task-submission
// actions.
func NewContext(hardwarePort, taskHandlerPort int, logger *core.Logger) *Context {
	return &Context{hardwarePort: hardwarePort, taskHandlerPort: taskHandlerPort, logger: logger}
}

// transitionTo replaces the current state descriptor, the "transition-
// to-State-X" idiom spec.md §4.7 calls out explicitly.
func (c *Context) transitionTo(s *State) {
	prev := "<none>"
	if c.state != nil {
		prev = c.state.Name
		if c.state.OnExit != nil {
			c.state.OnExit(c)
		}
	}
	c.logger.Info("statemachine: %s -> %s", prev, s.Name)
	c.state = s
	if s.OnEnter != nil {
		s.OnEnter(c)
	}
}

// StateName reports the current state's display name, for
// GET_CONTEXT's confirm body.
func (c *Context) StateName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return "<none>"
	}
	return c.state.Name
}

// dispatch runs the handler named by get against the current state, a
// no-op when the state doesn't define that handler.
func (c *Context) dispatch(get func(*State) func(*Context)) {
	c.mu.Lock()
	s := c.state
	c.mu.Unlock()
	if s == nil {
		return
	}
	if h := get(s); h != nil {
		h(c)
	}
}
