package onewire

import (
	"fmt"
	"time"
)

// PinShadow tracks the software-authoritative state of a DS2408's output
// pins. The DS2408 has no way to read back "what did I last ask for" on
// pins wired open-drain into other logic (spec.md §4.2: "output pin state
// must be tracked in software, since reading the device back only
// confirms what it is currently driving, not original intent"). inputMask
// marks which of the 8 pins are treated as inputs and therefore excluded
// from shadow writes.
type PinShadow struct {
	Device     DS2408
	inputMask  byte
	shadowMask byte
	pinsState  byte
	haveShadow bool
}

// NewPinShadow builds a PinShadow for device, treating the bits set in
// inputMask as inputs. shadowMask selects the output bits that ReadPins
// must answer from pinsState rather than trust from the device's own
// read-back (spec.md §4.2 "Shadow policy"; grounded on ow_bus.c's
// DARLINGTON_IO_SHADOW_MASK/RELAY_IO_SHADOW_MASK, non-zero only on the
// PIOs whose outputs drive darlington or relay stages the device can't
// read back reliably).
func NewPinShadow(device DS2408, inputMask, shadowMask byte) *PinShadow {
	return &PinShadow{Device: device, inputMask: inputMask, shadowMask: shadowMask}
}

// Sync reads the device's current output latch state into pinsState,
// required once after power-up before any SetPins call can safely
// preserve pins it isn't changing.
func (s *PinShadow) Sync() error {
	latch, err := s.Device.ReadPIOOutputLatchState()
	if err != nil {
		return fmt.Errorf("pinshadow sync: %w", err)
	}
	s.pinsState = latch
	s.haveShadow = true
	return nil
}

// SetPins applies newValues to the pins selected by mask (mask must not
// overlap inputMask), preserving every other output pin's last known
// value from the shadow (spec.md §4.2).
func (s *PinShadow) SetPins(mask, newValues byte) error {
	if mask&s.inputMask != 0 {
		return fmt.Errorf("pinshadow set pins: mask 0x%02x touches input pin(s) 0x%02x", mask, mask&s.inputMask)
	}
	if !s.haveShadow {
		if err := s.Sync(); err != nil {
			return err
		}
	}

	next := (s.pinsState &^ mask) | (newValues & mask)
	applied, err := s.Device.ChannelAccessWrite(next)
	if err != nil {
		return fmt.Errorf("pinshadow set pins: %w", err)
	}
	s.pinsState = applied
	return nil
}

// ReadPins returns the PIO logic state for every pin. Bits selected by
// shadowMask are answered from pinsState instead of the device's own
// read-back, since those pins drive logic the device can't reliably
// read its own commanded state back from (spec.md §4.2; the testable
// property in spec.md §8 is
// read_pins_with_shadow(device) & (mask & shadowMask) = mask & shadowMask).
// Grounded on ow_bus.c:396 accountForShadow / ow_bus.c:430
// readPinsWithShadow.
func (s *PinShadow) ReadPins() (byte, error) {
	state, err := s.Device.ReadPIOLogicState()
	if err != nil {
		return 0, fmt.Errorf("pinshadow read pins: %w", err)
	}
	if s.shadowMask == 0 {
		return state, nil
	}
	if !s.haveShadow {
		if err := s.Sync(); err != nil {
			return 0, err
		}
	}
	state = (state &^ s.shadowMask) | (s.pinsState & s.shadowMask)
	return state, nil
}

// Shadow returns the last value this PinShadow believes it drove onto the
// output pins, without touching the bus.
func (s *PinShadow) Shadow() byte { return s.pinsState }

// togglePulse is how long Toggle holds a pin in its non-default state
// before releasing it (spec.md §4.3: "toggled on briefly, long enough
// for the hindbrain/relay to latch the edge, then released").
const togglePulse = 500 * time.Millisecond

// Toggle pulses the single pin identified by mask: drives it to
// pulseValue, waits togglePulse, then restores its previous shadow value.
// Used for momentary-contact style relay control (spec.md §4.3, e.g.
// switching the Hindbrain's reset line).
func (s *PinShadow) Toggle(mask byte, pulseValue byte) error {
	if !s.haveShadow {
		if err := s.Sync(); err != nil {
			return err
		}
	}
	restore := s.pinsState & mask

	if err := s.SetPins(mask, pulseValue); err != nil {
		return fmt.Errorf("pinshadow toggle: %w", err)
	}
	time.Sleep(togglePulse)
	if err := s.SetPins(mask, restore); err != nil {
		return fmt.Errorf("pinshadow toggle: restoring: %w", err)
	}
	return nil
}
