package onewire

import (
	"fmt"
	"time"
)

// ChargeState is the decoded state of a battery charger's bi-colour LED,
// read back over the charger-state PIO. A steady LED can be read in one
// sample; a flashing LED needs two samples spaced far enough apart to
// guarantee a transition would have been seen if one is occurring
// (spec.md §4.3: "distinguishing a steady indication from a flashing one
// requires sampling twice").
type ChargeState int

const (
	ChargeStateNoPower ChargeState = iota
	ChargeStateOff
	ChargeStateGreen
	ChargeStateFlashingGreen
	ChargeStateRed
	ChargeStateFlashingRed
	ChargeStateSix
	ChargeStateUnknown
	ChargeStateNull
	ChargeStateBad
)

func (c ChargeState) String() string {
	switch c {
	case ChargeStateNoPower:
		return "NO_POWER"
	case ChargeStateOff:
		return "OFF"
	case ChargeStateGreen:
		return "GREEN"
	case ChargeStateFlashingGreen:
		return "FLASHING_GREEN"
	case ChargeStateRed:
		return "RED"
	case ChargeStateFlashingRed:
		return "FLASHING_RED"
	case ChargeStateSix:
		return "SIX"
	case ChargeStateUnknown:
		return "UNKNOWN"
	case ChargeStateNull:
		return "NULL"
	default:
		return "BAD"
	}
}

// Charger-state PIO pin assignment (spec.md §4.3): bit 0 is the green
// LED sense line, bit 1 the red LED sense line; both are active-low
// (the DS2408's PIO pins read 0 when the LED is lit and sinking current).
const (
	chargeStatePinGreen byte = 0x01
	chargeStatePinRed   byte = 0x02
)

// chargeStateSampleGap is the inter-sample delay DecodeChargeState
// waits before taking its second reading; long enough to guarantee a
// flashing LED (nominally ~1Hz) will have changed state if it is
// flashing, short enough to keep polling responsive (spec.md §4.3).
const chargeStateSampleGap = 600 * time.Millisecond

type chargeStateSample struct {
	green bool // true == LED lit
	red   bool
}

func sampleChargeStatePins(shadow *PinShadow) (chargeStateSample, error) {
	pins, err := shadow.ReadPins()
	if err != nil {
		return chargeStateSample{}, fmt.Errorf("charge state: sampling pins: %w", err)
	}
	return chargeStateSample{
		green: pins&chargeStatePinGreen == 0,
		red:   pins&chargeStatePinRed == 0,
	}, nil
}

// DecodeChargeState takes two samples of the charger-state PIO
// chargeStateSampleGap apart and derives the charge indicator's state
// from the pair (spec.md §4.3).
func DecodeChargeState(shadow *PinShadow) (ChargeState, error) {
	first, err := sampleChargeStatePins(shadow)
	if err != nil {
		return ChargeStateBad, err
	}
	time.Sleep(chargeStateSampleGap)
	second, err := sampleChargeStatePins(shadow)
	if err != nil {
		return ChargeStateBad, err
	}
	return classifyChargeState(first, second), nil
}

func classifyChargeState(a, b chargeStateSample) ChargeState {
	switch {
	case !a.green && !a.red && !b.green && !b.red:
		return ChargeStateOff
	case a.green && !a.red && b.green && !b.red:
		return ChargeStateGreen
	case !a.green && a.red && !b.green && b.red:
		return ChargeStateRed
	case a.green && a.red && b.green && b.red:
		return ChargeStateSix
	case a.green != b.green && !a.red && !b.red:
		return ChargeStateFlashingGreen
	case a.red != b.red && !a.green && !b.green:
		return ChargeStateFlashingRed
	default:
		return ChargeStateUnknown
	}
}
