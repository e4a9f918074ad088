package messaging

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Message{
		{Type: 0, Body: nil},
		{Type: 1, Body: []byte{1, 2, 3}},
		{Type: 0xBEEF, Body: bytes.Repeat([]byte{0x42}, MaxBodySize)},
	}

	for _, m := range cases {
		encoded, err := m.Encode()
		if err != nil {
			t.Fatalf("Encode(%v): %v", m, err)
		}

		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}

		if decoded.Type != m.Type {
			t.Errorf("type mismatch: got %v want %v", decoded.Type, m.Type)
		}
		if !bytes.Equal(decoded.Body, m.Body) && !(len(decoded.Body) == 0 && len(m.Body) == 0) {
			t.Errorf("body mismatch: got %v want %v", decoded.Body, m.Body)
		}
	}
}

func TestEncodeRejectsOversizedBody(t *testing.T) {
	m := Message{Type: 1, Body: bytes.Repeat([]byte{0}, MaxBodySize+1)}
	if _, err := m.Encode(); err == nil {
		t.Fatal("expected Encode to reject an oversized body")
	}
}

func TestReadFramedMessageHandlesArbitraryChunkSplits(t *testing.T) {
	m := Message{Type: 7, Body: []byte("hello onewire")}
	encoded, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Feed the reader in 1-byte chunks via a pipe to exercise the
	// two-stage read loop's resilience to arbitrary chunk splits.
	pr, pw := io.Pipe()
	go func() {
		for _, b := range encoded {
			pw.Write([]byte{b})
			time.Sleep(time.Millisecond)
		}
		pw.Close()
	}()

	got, err := readFramedMessage(pr)
	if err != nil {
		t.Fatalf("readFramedMessage: %v", err)
	}
	if got.Type != m.Type || !bytes.Equal(got.Body, m.Body) {
		t.Errorf("got %+v, want %+v", got, m)
	}
}

func TestReadFramedMessageConsumesExactlyOneFrame(t *testing.T) {
	m1 := Message{Type: 1, Body: []byte("first")}
	m2 := Message{Type: 2, Body: []byte("second")}

	e1, _ := m1.Encode()
	e2, _ := m2.Encode()

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		client.Write(e1)
		client.Write(e2)
	}()

	got1, err := readFramedMessage(server)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if got1.Type != m1.Type {
		t.Fatalf("first frame type mismatch: got %v want %v", got1.Type, m1.Type)
	}

	got2, err := readFramedMessage(server)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if got2.Type != m2.Type {
		t.Fatalf("second frame type mismatch: got %v want %v", got2.Type, m2.Type)
	}
}
