package timerserver

import "github.com/google/uuid"

// NewUserContext manufactures an opaque 8-byte cookie for callers that
// have no pointer identity of their own to round-trip through
// StartReq.UserContext (spec.md §9: "This is an opaque 8-byte cookie from
// the target's perspective... let each caller encode whatever pointer
// identity it wishes"). It is not interpreted by the Timer Server; it
// only needs to be unique enough for the caller to recognise its own
// expiry later.
func NewUserContext() uint64 {
	id := uuid.New()
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(id[i])
	}
	return v
}
