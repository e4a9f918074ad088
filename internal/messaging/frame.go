// Package messaging implements the length-prefixed request/confirm
// protocol every RoboOne subsystem is built on (spec.md §4.1, §6).
//
// Wire format: [length: U16 LE][type: U16 LE][body: bytes]. length counts
// type and body only, matching spec.md §3's "Framed Message" definition.
package messaging

import (
	"encoding/binary"
	"fmt"
)

// MaxMessageSize is the fixed protocol constant bounding a single framed
// message (spec.md §3 recommends 513: 2 length-prefix bytes + up to 511 of
// type+body). We follow the recommendation exactly.
const MaxMessageSize = 513

// lengthPrefixSize is sizeof(length) on the wire.
const lengthPrefixSize = 2

// MaxBodySize is the largest body a message may carry once the 2-byte type
// field is subtracted from the largest legal length value.
const MaxBodySize = MaxMessageSize - lengthPrefixSize - 2

// MsgType identifies the operation a message carries. Each subsystem owns a
// disjoint contiguous range (spec.md §3).
type MsgType uint16

// Message is a single framed request or confirm.
type Message struct {
	Type MsgType
	Body []byte
}

// Encode serializes m into its wire form: [length LE][type LE][body].
func (m Message) Encode() ([]byte, error) {
	if len(m.Body) > MaxBodySize {
		return nil, fmt.Errorf("messaging: body length %d exceeds maximum %d", len(m.Body), MaxBodySize)
	}

	length := 2 + len(m.Body)
	buf := make([]byte, lengthPrefixSize+length)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(length))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(m.Type))
	copy(buf[4:], m.Body)
	return buf, nil
}

// Decode parses a complete wire-format record (length prefix included) back
// into a Message. It is the exact inverse of Encode: decode(encode(m)) = m.
func Decode(raw []byte) (Message, error) {
	if len(raw) < lengthPrefixSize+2 {
		return Message{}, fmt.Errorf("messaging: frame too short (%d bytes)", len(raw))
	}

	length := binary.LittleEndian.Uint16(raw[0:2])
	if int(length)+lengthPrefixSize != len(raw) {
		return Message{}, fmt.Errorf("messaging: length field %d does not match frame size %d", length, len(raw))
	}

	msgType := binary.LittleEndian.Uint16(raw[2:4])
	body := make([]byte, len(raw)-4)
	copy(body, raw[4:])
	return Message{Type: MsgType(msgType), Body: body}, nil
}
