package messaging

import (
	"fmt"
	"net"
	"time"
)

// dialTimeout bounds how long a client will wait to establish a connection
// to a local server before giving up.
const dialTimeout = 5 * time.Second

// Call opens a fresh TCP connection to 127.0.0.1:port, writes send framed,
// and — if wantReply is true — reads back exactly one framed reply. The
// connection is always closed before returning (spec.md §4.1's client
// contract: "opens a fresh TCP connection per call... always closes the
// socket").
func Call(port int, send Message, wantReply bool) (Message, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return Message{}, fmt.Errorf("messaging: dial %s: %w", addr, err)
	}
	defer conn.Close()

	encoded, err := send.Encode()
	if err != nil {
		return Message{}, err
	}
	if _, err := conn.Write(encoded); err != nil {
		return Message{}, fmt.Errorf("messaging: write to %s: %w", addr, err)
	}

	if !wantReply {
		return Message{}, nil
	}

	reply, err := readFramedMessage(conn)
	if err != nil {
		return Message{}, fmt.Errorf("messaging: read reply from %s: %w", addr, err)
	}
	return reply, nil
}

// Send is a convenience wrapper for fire-and-forget calls (no reply
// expected), used by the Timer Server and the State Machine's event
// delivery (spec.md §4.7: "fire-and-forget semantics").
func Send(port int, send Message) error {
	_, err := Call(port, send, false)
	return err
}
