package onewire

import (
	"bufio"
	"fmt"

	"roboone/internal/serialport"
)

// 1-Wire ROM-level commands (every family of device answers these the
// same way; spec.md §4.2's device-specific commands are layered on top
// once a device has been selected by one of these).
const (
	romCmdMatchROM byte = 0x55
	romCmdReadROM  byte = 0x33
)

// SerialBus is the real Transceiver implementation: it drives the
// 1-Wire bus through a DS2480-family serial adapter (spec.md §4.2, §1
// "Sensors and actuators are reached through a serial-attached 1-Wire
// bus"). Reset issues the bus reset and the Match ROM select for a
// device's address; Transact only writes the caller's command/data bytes
// and reads the reply, and does not itself reset the bus or select a
// device.
type SerialBus struct {
	port serialport.Port
	r    *bufio.Reader
}

// NewSerialBus wraps an already-open serial port as a 1-Wire
// Transceiver. The Hardware Server owns this port for its entire
// process lifetime (spec.md §4.3: "Owns the singleton DS2480-family
// serial port").
func NewSerialBus(port serialport.Port) *SerialBus {
	return &SerialBus{port: port, r: bufio.NewReader(port)}
}

// Reset performs a 1-Wire bus reset, waits for the adapter's presence
// acknowledgement, then selects addr with Match ROM so the device that
// answers every subsequent Transact on this call is unambiguous (spec.md
// §4.2: devices are addressed by their 8-byte serial number).
func (b *SerialBus) Reset(addr Address) error {
	if err := b.resetPulse(); err != nil {
		return fmt.Errorf("onewire: bus reset: %w", err)
	}
	return b.selectROM(addr)
}

// resetPulse issues the adapter's reset command and checks for a
// presence-pulse acknowledgement byte. DS2480-family adapters echo a
// single status byte per command; a zero byte here means no device
// pulled the line low, i.e. nothing answered the reset (spec.md §7:
// "device not found at expected address").
func (b *SerialBus) resetPulse() error {
	if _, err := b.port.Write([]byte{resetCommand}); err != nil {
		return fmt.Errorf("writing reset command: %w", err)
	}
	ack, err := b.r.ReadByte()
	if err != nil {
		return fmt.Errorf("reading reset acknowledgement: %w", err)
	}
	if ack == 0 {
		return ErrNoResponse
	}
	return nil
}

// resetCommand is the adapter-level reset-pulse command byte.
const resetCommand byte = 0xC5

func (b *SerialBus) selectROM(addr Address) error {
	cmd := make([]byte, 1+len(addr))
	cmd[0] = romCmdMatchROM
	copy(cmd[1:], addr[:])
	if _, err := b.port.Write(cmd); err != nil {
		return fmt.Errorf("writing match ROM: %w", err)
	}
	return nil
}

// Transact writes out, then reads back exactly len(reply) bytes
// (spec.md §4.2: "Transact writes out and reads back exactly len(reply)
// bytes"). A zero-length reply means the caller only cares that the
// write succeeded (e.g. a Convert T / Convert V trigger).
func (b *SerialBus) Transact(addr Address, out []byte, replyLen int) ([]byte, error) {
	if len(out) > 0 {
		if _, err := b.port.Write(out); err != nil {
			return nil, fmt.Errorf("onewire: writing transaction bytes: %w", err)
		}
	}
	if replyLen == 0 {
		return nil, nil
	}

	reply := make([]byte, replyLen)
	n, err := b.r.Read(reply)
	for n < replyLen && err == nil {
		var more int
		more, err = b.r.Read(reply[n:])
		n += more
	}
	if err != nil && n < replyLen {
		return nil, fmt.Errorf("onewire: reading %d reply bytes: %w", replyLen, err)
	}
	return reply, nil
}

// ReadROM issues a Read ROM command against whatever single device is
// currently alone on the bus, used only by device-discovery tooling
// outside the normal Match-ROM-addressed flow.
func (b *SerialBus) ReadROM() (Address, error) {
	if err := b.resetPulse(); err != nil {
		return Address{}, err
	}
	if _, err := b.port.Write([]byte{romCmdReadROM}); err != nil {
		return Address{}, fmt.Errorf("onewire: writing read ROM: %w", err)
	}
	var addr Address
	if _, err := b.Transact(addr, nil, 0); err != nil {
		return Address{}, err
	}
	raw := make([]byte, len(addr))
	n, err := b.r.Read(raw)
	for n < len(raw) && err == nil {
		var more int
		more, err = b.r.Read(raw[n:])
		n += more
	}
	if err != nil {
		return Address{}, fmt.Errorf("onewire: reading ROM bytes: %w", err)
	}
	copy(addr[:], raw)
	return addr, nil
}
