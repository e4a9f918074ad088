package onewire

import (
	"errors"
	"fmt"
	"time"
)

// Address is an 8-byte 1-Wire device serial number. The first byte is the
// family code (spec.md §3): 0x26 for a DS2438 battery monitor, 0x29 for a
// DS2408 PIO.
type Address [8]byte

const (
	FamilyDS2438 byte = 0x26
	FamilyDS2408 byte = 0x29
)

func (a Address) Family() byte { return a[0] }

// ErrNoResponse is returned when a device at the expected address fails to
// answer a transaction (spec.md §7: "Protocol errors... device not found
// at expected address").
var ErrNoResponse = errors.New("onewire: device did not respond")

// ErrCRCMismatch is returned whenever a CRC-protected read fails
// validation (spec.md §7).
var ErrCRCMismatch = errors.New("onewire: CRC mismatch")

// ErrBusyTimeout is returned when a busy-byte poll exceeds its bounded
// retry ceiling (spec.md §5: "an implementation MUST impose a bounded
// retry ceiling").
var ErrBusyTimeout = errors.New("onewire: device did not clear busy flag in time")

// maxBusyPolls bounds every busy-byte poll loop. The original C source
// polls without an explicit timeout (spec.md §9); this is the bounded
// retry ceiling spec.md §5 requires implementations to add.
const maxBusyPolls = 100

const busyPollInterval = 5 * time.Millisecond

// Transceiver is the low-level 1-Wire transaction primitive: select a
// device by address, then exchange command/data bytes with it. A real
// implementation drives this over a DS2480-family serial adapter
// (internal/serialport); tests use an in-memory fake.
//
// Reset performs a 1-Wire bus reset and device presence check, matching
// reset semantics every subsequent 1-Wire transaction depends on.
// Transact writes out and reads back exactly len(reply) bytes, matching
// the half-duplex, caller-knows-the-reply-length shape of the original
// ow_bus.c transaction helper.
type Transceiver interface {
	Reset(addr Address) error
	Transact(addr Address, out []byte, replyLen int) ([]byte, error)
}

// pollBusy repeatedly calls check until it reports not-busy or
// maxBusyPolls is exceeded.
func pollBusy(check func() (busy bool, err error)) error {
	for i := 0; i < maxBusyPolls; i++ {
		busy, err := check()
		if err != nil {
			return err
		}
		if !busy {
			return nil
		}
		time.Sleep(busyPollInterval)
	}
	return ErrBusyTimeout
}

// DeviceRole names the function a physical 1-Wire device plays in the
// robot, matching the host's static device table (spec.md §3: "a static
// table that names each expected device and assigns a role").
type DeviceRole int

const (
	RoleRioBatteryMonitor DeviceRole = iota
	RoleO1BatteryMonitor
	RoleO2BatteryMonitor
	RoleO3BatteryMonitor
	RoleChargerStatePIO
	RolePowerControlPIO
	RoleBatteryChargerPIO
	RoleGeneralPurposePIO
)

func (r DeviceRole) String() string {
	switch r {
	case RoleRioBatteryMonitor:
		return "RIO_BATTERY_MONITOR"
	case RoleO1BatteryMonitor:
		return "O1_BATTERY_MONITOR"
	case RoleO2BatteryMonitor:
		return "O2_BATTERY_MONITOR"
	case RoleO3BatteryMonitor:
		return "O3_BATTERY_MONITOR"
	case RoleChargerStatePIO:
		return "CHARGER_STATE_PIO"
	case RolePowerControlPIO:
		return "POWER_CONTROL_PIO"
	case RoleBatteryChargerPIO:
		return "BATTERY_CHARGER_PIO"
	case RoleGeneralPurposePIO:
		return "GENERAL_PURPOSE_PIO"
	default:
		return fmt.Sprintf("UNKNOWN_ROLE(%d)", int(r))
	}
}
