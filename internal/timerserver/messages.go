// Package timerserver is a priority-sorted scheduling service driven by a
// single OS tick (spec.md §4.5). Any process may START a timer naming its
// own port as the delivery target; on expiry the Timer Server dials that
// port back and delivers the caller's pre-baked payload message.
//
// Unlike Hardware, Task Handler, Battery Manager and State Machine, the
// Timer Server is not one of the processes the Supervisor spawns
// (original_source/RoboOne/src/main.c forks exactly four children — the
// Timer Server appears nowhere in that chain, and nothing in
// original_source starts it except its own standalone test harness). It
// runs as an independently-started daemon that the other subsystems
// assume is already listening, the same way the original treats it.
package timerserver

import "roboone/internal/messaging"

// Message catalog (spec.md §4.5, §6: "Timer: server start/stop, start,
// stop, expiry"). Unlike every other subsystem's catalog, none of these
// ever produce a reply body — serverHandleMsg in the original always sets
// the outgoing length to zero, and that is preserved here: Handle never
// returns hasReply=true.
const (
	MsgServerStart messaging.MsgType = iota + 1
	MsgServerStop
	MsgStart
	MsgStop
)

// MaxTimers bounds the timer arena (spec.md §4.5: "a free list sized for
// the implementation's maximum of 100 concurrent timers").
const MaxTimers = 100

// Payload is a pre-baked short message the Timer Server delivers verbatim
// to a timer's source port on expiry (spec.md §4.5: "The payload is
// pre-baked by the caller via a helper that packages {msg_type,
// body_bytes} into a short framed message").
type Payload struct {
	Type messaging.MsgType `json:"type"`
	Body []byte            `json:"body,omitempty"`
}

// StartReq is the body of MsgStart.
type StartReq struct {
	ExpiryDeciseconds uint32  `json:"expiry_deciseconds"`
	ID                uint32  `json:"id"`
	SourcePort        int     `json:"source_port"`
	UserContext       uint64  `json:"user_context"`
	Payload           Payload `json:"payload"`
}

// StopReq is the body of MsgStop: a timer is identified by the pair
// (id, source_port), matching spec.md §4.5's "STOP(id, source_port) —
// locate by (id, port) and free".
type StopReq struct {
	ID         uint32 `json:"id"`
	SourcePort int    `json:"source_port"`
}
