// Package statemachine is the robot-level Supervisory State Machine:
// one Context holding the current state descriptor, driven purely by
// fire-and-forget event messages from the other subsystems (spec.md
// §4.7).
package statemachine

import "roboone/internal/messaging"

// Message catalog (spec.md §6: "State Machine: server start/stop/get
// context; plus one message per supervisory event enumerated in §4.7").
// Only ServerStart, ServerStop and GetContext produce a reply; every
// event message is fire-and-forget, matching state_machine_server.c's
// doAction() which only builds a response body for those three.
const (
	MsgServerStart messaging.MsgType = iota + 1
	MsgServerStop
	MsgGetContext

	MsgEventInit
	MsgEventInitFailure
	MsgEventTimerExpiry
	MsgEventTasksAvailable
	MsgEventNoTasksAvailable
	MsgEventMainsPowerAvailable
	MsgEventInsufficientPower
	MsgEventFullyCharged
	MsgEventInsufficientCharge
	MsgEventShutdown
)

// GetContextCnf is the confirm body for MsgGetContext: a copy of the
// Context's displayable state, used by the display loop to show state
// names (spec.md §4.7).
type GetContextCnf struct {
	StateName string `json:"state_name"`
	IsValid   bool   `json:"is_valid"`
}

// TasksAvailableReq is a flat protocol/request pair. MsgEventTasksAvailable
// bodies are not of this type: the server decodes them, and
// SendTasksAvailable encodes them, as taskhandler.TaskReq.
type TasksAvailableReq struct {
	Protocol string `json:"protocol"`
	Request  string `json:"request"`
}
