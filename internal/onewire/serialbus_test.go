package onewire

import (
	"bytes"
	"testing"
)

// fakeSerialPort is an in-memory stand-in for serialport.Port: writes go
// to one buffer, reads are served from a canned queue of response bytes,
// matching the native-vs-fake split internal/serialport documents.
type fakeSerialPort struct {
	written bytes.Buffer
	toRead  []byte
}

func (f *fakeSerialPort) Write(p []byte) (int, error) {
	return f.written.Write(p)
}

func (f *fakeSerialPort) Read(p []byte) (int, error) {
	n := copy(p, f.toRead)
	f.toRead = f.toRead[n:]
	return n, nil
}

func (f *fakeSerialPort) Close() error { return nil }

func TestSerialBusResetSelectsROM(t *testing.T) {
	port := &fakeSerialPort{toRead: []byte{0xAA}} // non-zero presence ack
	bus := NewSerialBus(port)

	addr := Address{0x26, 1, 2, 3, 4, 5, 6, 7}
	if err := bus.Reset(addr); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	got := port.written.Bytes()
	want := append([]byte{resetCommand, romCmdMatchROM}, addr[:]...)
	if !bytes.Equal(got, want) {
		t.Errorf("written bytes = %x, want %x", got, want)
	}
}

func TestSerialBusResetNoPresencePulseIsNoResponse(t *testing.T) {
	port := &fakeSerialPort{toRead: []byte{0x00}} // no device answered
	bus := NewSerialBus(port)

	err := bus.Reset(Address{0x26, 1, 2, 3, 4, 5, 6, 7})
	if err == nil {
		t.Fatal("Reset with a zero acknowledgement byte succeeded, want ErrNoResponse")
	}
}

func TestSerialBusTransactWritesAndReadsBack(t *testing.T) {
	port := &fakeSerialPort{toRead: []byte{0x11, 0x22, 0x33}}
	bus := NewSerialBus(port)

	reply, err := bus.Transact(Address{}, []byte{0x44, 0x55}, 3)
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}
	if !bytes.Equal(port.written.Bytes(), []byte{0x44, 0x55}) {
		t.Errorf("written bytes = %x, want 4455", port.written.Bytes())
	}
	if !bytes.Equal(reply, []byte{0x11, 0x22, 0x33}) {
		t.Errorf("reply = %x, want 112233", reply)
	}
}

func TestSerialBusTransactZeroLengthReplySkipsRead(t *testing.T) {
	port := &fakeSerialPort{}
	bus := NewSerialBus(port)

	reply, err := bus.Transact(Address{}, []byte{0x01}, 0)
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}
	if reply != nil {
		t.Errorf("reply = %x, want nil", reply)
	}
}
