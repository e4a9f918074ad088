// Package hindbrain talks line-oriented request/response ASCII over a
// serial link to the secondary microcontroller (the "Orangutan"),
// matching orangutan.c in the original source: send bytes as-is, read
// back bytes up to and including a '\r' terminator, bounded by the
// link's inactivity timeout.
package hindbrain

import (
	"bufio"
	"errors"
	"fmt"

	"roboone/internal/serialport"
)

// Terminator ends every Hindbrain response (spec.md §6).
const Terminator = '\r'

// PingString is sent to confirm the Hindbrain is alive and listening
// (actions.c: PING_STRING "!\n").
const PingString = "!\n"

// ErrNoResponse is returned when wantResponse is true but the link closed
// or timed out before a terminator arrived.
var ErrNoResponse = errors.New("hindbrain: no response before terminator/timeout")

// Link is a single open session with the Hindbrain. Unlike the 1-Wire
// bus (held open for a server's lifetime), the original opens and closes
// the Orangutan tty on every call (spec.md §6: "The Hindbrain serial
// port is opened and closed around each request"), so Link mirrors that:
// callers are expected to Open, make one request, then Close.
type Link struct {
	port serialport.Port
}

// Open opens the Hindbrain tty at device with the link's fixed
// configuration (9600 8N1, spec.md §6).
func Open(device string) (*Link, error) {
	port, err := serialport.Open(serialport.HindbrainConfig(device))
	if err != nil {
		return nil, fmt.Errorf("hindbrain: opening link: %w", err)
	}
	return &Link{port: port}, nil
}

// Close closes the underlying serial port.
func (l *Link) Close() error {
	return l.port.Close()
}

// Send writes sendString verbatim (no terminator appended, matching
// orangutan.c: "write the string, excluding the terminator") and, if
// wantResponse is true, reads back bytes up to and including the next
// '\r', returning them with the terminator stripped.
func (l *Link) Send(sendString string, wantResponse bool) (string, error) {
	if _, err := l.port.Write([]byte(sendString)); err != nil {
		return "", fmt.Errorf("hindbrain: writing request: %w", err)
	}
	if !wantResponse {
		return "", nil
	}

	reader := bufio.NewReader(l.port)
	line, err := reader.ReadString(Terminator)
	if err != nil {
		return "", fmt.Errorf("hindbrain: reading response: %w: %w", ErrNoResponse, err)
	}
	return line[:len(line)-1], nil
}

// Ping opens a fresh link to device, sends PingString and reports
// whether a response arrived before the link's inactivity timeout
// (spec.md §7's "Hindbrain round trip" health check: SEND_O_STRING("!\n",
// wait_for_response=true)).
func Ping(device string) bool {
	link, err := Open(device)
	if err != nil {
		return false
	}
	defer link.Close()

	_, err = link.Send(PingString, true)
	return err == nil
}

// CheckOK reports whether response begins with "OK", the convention the
// Orangutan firmware uses to acknowledge a command (actions.c's
// O_CHECK_OK_STRING macro).
func CheckOK(response string) bool {
	return len(response) >= 2 && response[0] == 'O' && response[1] == 'K'
}
