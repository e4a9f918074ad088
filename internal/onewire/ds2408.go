package onewire

import "fmt"

// DS2408 function commands (Maxim datasheet).
const (
	ds2408CmdReadPIORegisters      byte = 0xF0
	ds2408CmdChannelAccessRead     byte = 0xF5
	ds2408CmdChannelAccessWrite    byte = 0x5A
	ds2408CmdWriteConditionalSearch byte = 0xCC
	ds2408CmdResetActivityLatches  byte = 0xC3
	ds2408CmdDisableTestMode       byte = 0x3C
)

// DS2408 register offsets within the PIO register page (datasheet figure
// 9, read starting at 0x0088): read-only read-back bits are not modelled
// here since RoboOne only exercises the control/status registers named
// in spec.md §4.2.
const (
	ds2408RegPIOLogicState    = 0x00
	ds2408RegOutputLatchState = 0x01
	ds2408RegActivityLatch    = 0x02
	ds2408RegCSPinSelector    = 0x03
	ds2408RegControl          = 0x07
)

// DS2408ControlReadOnlyMask masks the top nibble of the control register,
// which the datasheet defines as read-only/reserved (spec.md §4.2: "the
// top nibble of the control register must never be written").
const DS2408ControlReadOnlyMask = 0xF0

// MaxChannelAccessBytes bounds a single channel-access read burst
// (datasheet: "up to 32 bytes of PIO data per channel-access command",
// spec.md §4.2).
const MaxChannelAccessBytes = 32

// DS2408 is a handle bound to one physical 8-channel PIO device.
type DS2408 struct {
	Bus  Transceiver
	Addr Address
}

// DisableTestMode issues the fixed test-mode-disable command sequence
// every DS2408 power-up requires before normal operation (spec.md §4.2,
// one_wire.h's DS2408_DISABLE_TEST_MODE_LEN).
func (d DS2408) DisableTestMode() error {
	_, err := d.Bus.Transact(d.Addr, []byte{ds2408CmdDisableTestMode, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, 0)
	if err != nil {
		return fmt.Errorf("ds2408 disable test mode: %w", err)
	}
	return nil
}

func (d DS2408) readRegister(offset byte) (byte, error) {
	reply, err := d.Bus.Transact(d.Addr, []byte{ds2408CmdReadPIORegisters, offset, 0x00}, 1)
	if err != nil {
		return 0, fmt.Errorf("ds2408 read register 0x%02x: %w", offset, err)
	}
	return reply[0], nil
}

// ReadControlRegister returns the control/status register (spec.md
// §4.2).
func (d DS2408) ReadControlRegister() (byte, error) {
	return d.readRegister(ds2408RegControl)
}

// WriteControlRegister writes the control register, masking off the
// read-only top nibble so a stray write can never corrupt reserved bits
// (spec.md §4.2).
func (d DS2408) WriteControlRegister(value byte) error {
	current, err := d.ReadControlRegister()
	if err != nil {
		return err
	}
	masked := (current & DS2408ControlReadOnlyMask) | (value &^ DS2408ControlReadOnlyMask)
	_, err = d.Bus.Transact(d.Addr, []byte{0x0F, ds2408RegControl, 0x00, masked}, 0)
	if err != nil {
		return fmt.Errorf("ds2408 write control register: %w", err)
	}
	return nil
}

// ReadPIOLogicState returns the live pin state byte (spec.md §4.2).
func (d DS2408) ReadPIOLogicState() (byte, error) {
	return d.readRegister(ds2408RegPIOLogicState)
}

// ReadPIOOutputLatchState returns the output latch register: what the
// device is driving on each output-configured pin (spec.md §4.2).
func (d DS2408) ReadPIOOutputLatchState() (byte, error) {
	return d.readRegister(ds2408RegOutputLatchState)
}

// ReadPIOActivityLatchState returns the activity latch register: which
// pins have changed state since the last reset (spec.md §4.2).
func (d DS2408) ReadPIOActivityLatchState() (byte, error) {
	return d.readRegister(ds2408RegActivityLatch)
}

// ResetActivityLatches clears the activity-latch register (spec.md
// §4.2).
func (d DS2408) ResetActivityLatches() error {
	_, err := d.Bus.Transact(d.Addr, []byte{ds2408CmdResetActivityLatches}, 1)
	if err != nil {
		return fmt.Errorf("ds2408 reset activity latches: %w", err)
	}
	return nil
}

// ChannelAccessRead samples the live PIO state n times in a single burst
// transaction (up to MaxChannelAccessBytes), then validates the
// device's trailing inverted CRC-16 over the whole sample run (spec.md
// §4.2, §8).
func (d DS2408) ChannelAccessRead(n int) ([]byte, error) {
	if n < 1 || n > MaxChannelAccessBytes {
		return nil, fmt.Errorf("ds2408 channel access read: sample count %d out of range [1,%d]", n, MaxChannelAccessBytes)
	}

	reply, err := d.Bus.Transact(d.Addr, []byte{ds2408CmdChannelAccessRead}, n+2)
	if err != nil {
		return nil, fmt.Errorf("ds2408 channel access read: %w", err)
	}

	samples := reply[:n]
	invertedCRC := uint16(reply[n]) | uint16(reply[n+1])<<8
	if !CRC16ValidInverted(samples, invertedCRC) {
		return nil, fmt.Errorf("ds2408 channel access read: %w", ErrCRCMismatch)
	}
	return samples, nil
}

// ChannelAccessWrite drives newState onto the output-configured pins. The
// device protocol requires the byte and its one's-complement back to
// back, and echoes 0xAA followed by the pin state it actually applied
// (spec.md §4.2).
func (d DS2408) ChannelAccessWrite(newState byte) (byte, error) {
	reply, err := d.Bus.Transact(d.Addr, []byte{ds2408CmdChannelAccessWrite, newState, ^newState}, 2)
	if err != nil {
		return 0, fmt.Errorf("ds2408 channel access write: %w", err)
	}
	if reply[0] != 0xAA {
		return 0, fmt.Errorf("ds2408 channel access write: device rejected write (echo 0x%02x, want 0xAA)", reply[0])
	}
	return reply[1], nil
}
