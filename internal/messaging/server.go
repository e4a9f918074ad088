package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Logger is the minimal logging capability Run needs to report
// non-fatal per-connection failures, satisfied by *core.Logger without
// messaging importing core.
type Logger interface {
	Warning(format string, v ...any)
}

// ReturnCode is what a handler hands back to the server loop to say
// whether it should keep running or exit (spec.md §4.1).
type ReturnCode int

const (
	// KeepRunning tells the server to accept another connection.
	KeepRunning ReturnCode = iota
	// ExitNormally tells the server to stop accepting and return nil.
	ExitNormally
)

// Handler processes one received message and optionally fills in a reply.
// Returning hasReply=false means no response is sent; with hasReply=true
// the reply is written back even when its body is empty.
type Handler func(received Message) (reply Message, hasReply bool, code ReturnCode)

// Server errors, named per spec.md §4.1's enumerated error kinds.
var (
	ErrFailedToCreateSocket           = errors.New("messaging: failed to create socket")
	ErrFailedToSetSocketOptions       = errors.New("messaging: failed to set socket options")
	ErrFailedToBindSocket             = errors.New("messaging: failed to bind socket")
	ErrFailedToListenOnSocket         = errors.New("messaging: failed to listen on socket")
	ErrFailedToAcceptClientConnection = errors.New("messaging: failed to accept client connection")
	ErrMessageIncompleteOrTooLong     = errors.New("messaging: message from client incomplete or too long")
	ErrFailedToSendResponseToClient   = errors.New("messaging: failed to send response to client")
)

// backlog is the fixed listen backlog spec.md §4.1/§6 specify.
const backlog = 5

// bindListen performs the socket/setsockopt/bind/listen sequence as four
// distinct steps so each can fail with its own spec.md §4.1 error kind,
// rather than collapsing them behind net.Listen's single error. Mirrors
// the original server's discrete socket()/setsockopt()/bind()/listen()
// calls.
func bindListen(addr string) (net.Listener, error) {
	ra, err := net.ResolveTCPAddr("tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToBindSocket, err)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToCreateSocket, err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %v", ErrFailedToSetSocketOptions, err)
	}

	sa := &unix.SockaddrInet4{Port: ra.Port}
	if ip4 := ra.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %v", ErrFailedToBindSocket, err)
	}

	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %v", ErrFailedToListenOnSocket, err)
	}

	f := os.NewFile(uintptr(fd), "roboone-messaging-listener")
	defer f.Close() // net.FileListener dups fd; our copy is no longer needed either way
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToListenOnSocket, err)
	}
	return ln, nil
}

// Run binds 127.0.0.1:port and serves connections one at a time until the
// handler returns ExitNormally or a fatal error occurs (spec.md §4.1).
//
// Each accepted connection is handled completely — read one framed
// message, call handler, write a reply if one is due, close — before the
// next Accept.
func Run(ctx context.Context, port int, handler Handler, logger Logger) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	ln, err := bindListen(addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrFailedToAcceptClientConnection, err)
		}

		code := serveOne(conn, handler, logger)
		if code == ExitNormally {
			return nil
		}
	}
}

// serveOne reads exactly one framed message from conn, invokes handler,
// writes a reply if one is due, and always closes conn.
func serveOne(conn net.Conn, handler Handler, logger Logger) ReturnCode {
	defer conn.Close()

	msg, err := readFramedMessage(conn)
	if err != nil {
		return KeepRunning
	}

	reply, hasReply, code := handler(msg)
	if hasReply {
		encoded, err := reply.Encode()
		if err == nil {
			if _, err := conn.Write(encoded); err != nil {
				logger.Warning("%v: %v", ErrFailedToSendResponseToClient, err)
			}
		}
	}

	return code
}

// readFramedMessage implements spec.md §4.1's two-stage read: read until
// the length prefix has arrived, then refine the expected total length and
// keep reading until exactly length+sizeof(length) bytes have been
// received or the peer closes the connection.
func readFramedMessage(r io.Reader) (Message, error) {
	header := make([]byte, lengthPrefixSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMessageIncompleteOrTooLong, err)
	}

	length := int(header[0]) | int(header[1])<<8
	if length < 2 || length > MaxMessageSize-lengthPrefixSize {
		return Message{}, ErrMessageIncompleteOrTooLong
	}

	rest := make([]byte, length)
	if _, err := io.ReadFull(r, rest); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMessageIncompleteOrTooLong, err)
	}

	raw := append(header, rest...)
	return Decode(raw)
}
