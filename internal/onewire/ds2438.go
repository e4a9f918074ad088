package onewire

import (
	"encoding/binary"
	"fmt"
	"time"
)

// DS2438 function commands (Maxim datasheet).
const (
	ds2438CmdRecallMemory   byte = 0xB8
	ds2438CmdReadScratchpad byte = 0xBE
	ds2438CmdWriteScratchpad byte = 0x4E
	ds2438CmdCopyScratchpad byte = 0x48
	ds2438CmdConvertT       byte = 0x44
	ds2438CmdConvertV       byte = 0xB4
)

// Config register bits (spec.md §4.2; one_wire.h).
const (
	DS2438ADBusy       byte = 0x40
	DS2438NVBBusy      byte = 0x20
	DS2438TBBusy       byte = 0x10
	DS2438ADIsVDD      byte = 0x08
	DS2438EEEnabled    byte = 0x04
	DS2438CAEnabled    byte = 0x02
	DS2438IADEnabled   byte = 0x01
)

// pageSize is the fixed DS2438 scratchpad/NV page size (spec.md §4.2:
// "page-based 8-byte scratchpad").
const ds2438PageSize = 8

// temperatureUnit is the 0.03125 °C LSB of the DS2438's 13-bit signed
// temperature register (spec.md §4.2).
const temperatureUnit = 0.03125

// DS2438 is a handle bound to one physical battery-monitor device.
type DS2438 struct {
	Bus  Transceiver
	Addr Address
}

// ReadSPPage reads page directly from the scratchpad (no NV recall first)
// and validates the trailing CRC-8 byte (spec.md §4.2).
func (d DS2438) ReadSPPage(page byte) ([ds2438PageSize]byte, error) {
	var out [ds2438PageSize]byte

	reply, err := d.Bus.Transact(d.Addr, []byte{ds2438CmdReadScratchpad, page}, ds2438PageSize+1)
	if err != nil {
		return out, fmt.Errorf("ds2438 read scratchpad page %d: %w", page, err)
	}
	if !CRC8Valid(reply) {
		return out, fmt.Errorf("ds2438 read scratchpad page %d: %w", page, ErrCRCMismatch)
	}
	copy(out[:], reply[:ds2438PageSize])
	return out, nil
}

// ReadNVPage recalls the non-volatile page into the scratchpad, then reads
// it back (spec.md §4.2).
func (d DS2438) ReadNVPage(page byte) ([ds2438PageSize]byte, error) {
	if _, err := d.Bus.Transact(d.Addr, []byte{ds2438CmdRecallMemory, page}, 0); err != nil {
		return [ds2438PageSize]byte{}, fmt.Errorf("ds2438 recall memory page %d: %w", page, err)
	}
	return d.ReadSPPage(page)
}

// WriteSPPage writes size bytes of data into scratchpad page (spec.md
// §4.2). It does not copy to NV memory; pair with a NV write to persist.
func (d DS2438) WriteSPPage(page byte, data []byte, size int) error {
	if size > len(data) {
		return fmt.Errorf("ds2438 write scratchpad page %d: size %d exceeds data length %d", page, size, len(data))
	}
	out := append([]byte{ds2438CmdWriteScratchpad, page}, data[:size]...)
	_, err := d.Bus.Transact(d.Addr, out, 0)
	if err != nil {
		return fmt.Errorf("ds2438 write scratchpad page %d: %w", page, err)
	}
	return nil
}

// WriteNVPage writes scratchpad page then issues Copy Scratchpad and polls
// the busy byte until it clears (spec.md §4.2: "protocol requires a
// bounded wait").
func (d DS2438) WriteNVPage(page byte, data []byte, size int) error {
	if err := d.WriteSPPage(page, data, size); err != nil {
		return err
	}

	if _, err := d.Bus.Transact(d.Addr, []byte{ds2438CmdCopyScratchpad, page}, 0); err != nil {
		return fmt.Errorf("ds2438 copy scratchpad page %d: %w", page, err)
	}

	err := pollBusy(func() (bool, error) {
		status, err := d.Bus.Transact(d.Addr, nil, 1)
		if err != nil {
			return false, fmt.Errorf("ds2438 copy-scratchpad busy poll: %w", err)
		}
		return status[0] == 0, nil
	})
	if err != nil {
		return fmt.Errorf("ds2438 write NV page %d: %w", page, err)
	}
	return nil
}

// ReadVdd configures the config register's AD source bit to VDD, triggers
// Convert V, polls busy, and returns the result in millivolts (spec.md
// §4.2).
func (d DS2438) ReadVdd() (uint16, error) {
	return d.readVoltage(true)
}

// ReadVad is ReadVdd's counterpart for the general-purpose A/D input
// (spec.md §4.2).
func (d DS2438) ReadVad() (uint16, error) {
	return d.readVoltage(false)
}

func (d DS2438) readVoltage(vdd bool) (uint16, error) {
	page0, err := d.ReadSPPage(0)
	if err != nil {
		return 0, fmt.Errorf("ds2438 read voltage: %w", err)
	}

	config := page0[0]
	if vdd {
		config |= DS2438ADIsVDD
	} else {
		config &^= DS2438ADIsVDD
	}
	if err := d.WriteSPPage(0, []byte{config}, 1); err != nil {
		return 0, fmt.Errorf("ds2438 set AD source: %w", err)
	}

	if _, err := d.Bus.Transact(d.Addr, []byte{ds2438CmdConvertV}, 0); err != nil {
		return 0, fmt.Errorf("ds2438 convert V: %w", err)
	}

	if err := pollBusy(func() (bool, error) {
		page, err := d.ReadSPPage(0)
		if err != nil {
			return false, err
		}
		return page[0]&DS2438ADBusy != 0, nil
	}); err != nil {
		return 0, fmt.Errorf("ds2438 convert V busy poll: %w", err)
	}

	page, err := d.ReadSPPage(0)
	if err != nil {
		return 0, err
	}
	// Voltage register is 10 bits, LSB = 10mV, at byte offset 3-4.
	raw := uint16(page[3]) | uint16(page[4])<<8
	return (raw & 0x03FF) * 10, nil
}

// ReadTemperature issues Convert T, waits 10ms, polls busy, and returns
// the signed 13-bit temperature in °C (spec.md §4.2).
func (d DS2438) ReadTemperature() (float64, error) {
	if _, err := d.Bus.Transact(d.Addr, []byte{ds2438CmdConvertT}, 0); err != nil {
		return 0, fmt.Errorf("ds2438 convert T: %w", err)
	}
	time.Sleep(10 * time.Millisecond)

	if err := pollBusy(func() (bool, error) {
		page, err := d.ReadSPPage(0)
		if err != nil {
			return false, err
		}
		return page[0]&DS2438TBBusy != 0, nil
	}); err != nil {
		return 0, fmt.Errorf("ds2438 convert T busy poll: %w", err)
	}

	page, err := d.ReadSPPage(0)
	if err != nil {
		return 0, err
	}
	raw := int16(binary.LittleEndian.Uint16(page[1:3])) >> 3 // 13-bit value, 3 LSBs unused
	return float64(raw) * temperatureUnit, nil
}

// ReadCurrent returns the signed current register in mA (spec.md §4.2).
func (d DS2438) ReadCurrent() (int16, error) {
	page, err := d.ReadSPPage(0)
	if err != nil {
		return 0, fmt.Errorf("ds2438 read current: %w", err)
	}
	return int16(binary.LittleEndian.Uint16(page[5:7])), nil
}

// ReadBattery returns voltage (mV) and current (mA): the voltage through
// ReadVad's conversion and page read, then the current from a further
// scratchpad page 0 read (spec.md §4.2).
func (d DS2438) ReadBattery() (voltageMV uint16, currentMA int16, err error) {
	v, err := d.ReadVad()
	if err != nil {
		return 0, 0, err
	}
	c, err := d.ReadCurrent()
	if err != nil {
		return 0, 0, err
	}
	return v, c, nil
}

// TimeCapacityCal is the contents of scratchpad page 1: elapsed time,
// remaining capacity, and the current offset calibration (spec.md §4.2).
type TimeCapacityCal struct {
	ElapsedTimeSeconds uint32
	RemainingCapacityMAh uint16
	OffsetCal          int16
}

// ReadTimeCapacityCal reads NV page 1 (spec.md §4.2).
func (d DS2438) ReadTimeCapacityCal() (TimeCapacityCal, error) {
	page, err := d.ReadNVPage(1)
	if err != nil {
		return TimeCapacityCal{}, fmt.Errorf("ds2438 read time/capacity/cal: %w", err)
	}
	return TimeCapacityCal{
		ElapsedTimeSeconds:   binary.LittleEndian.Uint32(page[0:4]),
		RemainingCapacityMAh: binary.LittleEndian.Uint16(page[4:6]),
		OffsetCal:            int16(binary.LittleEndian.Uint16(page[6:8])),
	}, nil
}

// WriteTimeCapacity writes elapsed time and remaining capacity to NV page
// 1, leaving the offset calibration bytes untouched (spec.md §4.2).
func (d DS2438) WriteTimeCapacity(elapsedTimeSeconds uint32, remainingCapacityMAh uint16) error {
	cur, err := d.ReadTimeCapacityCal()
	if err != nil {
		return err
	}
	buf := make([]byte, ds2438PageSize)
	binary.LittleEndian.PutUint32(buf[0:4], elapsedTimeSeconds)
	binary.LittleEndian.PutUint16(buf[4:6], remainingCapacityMAh)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(cur.OffsetCal))
	return d.WriteNVPage(1, buf, ds2438PageSize)
}

// InitTimeCapacity zeroes elapsed time and sets remaining capacity to
// initialMAh, used when a fresh battery is fitted (spec.md §4.4 "battery
// swap: zero accumulators, write time + capacity").
func (d DS2438) InitTimeCapacity(initialMAh uint16) error {
	return d.WriteTimeCapacity(0, initialMAh)
}

// ChargeDischarge holds the DS2438's lifetime integrating-accumulator
// registers (spec.md §3 "Battery Data").
type ChargeDischarge struct {
	ChargeMAh    uint32
	DischargeMAh uint32
}

// ReadNVChargeDischarge reads NV page 7 (spec.md §4.2).
func (d DS2438) ReadNVChargeDischarge() (ChargeDischarge, error) {
	page, err := d.ReadNVPage(7)
	if err != nil {
		return ChargeDischarge{}, fmt.Errorf("ds2438 read charge/discharge: %w", err)
	}
	return ChargeDischarge{
		ChargeMAh:    binary.LittleEndian.Uint32(page[0:4]),
		DischargeMAh: binary.LittleEndian.Uint32(page[4:8]),
	}, nil
}

// WriteNVChargeDischarge writes NV page 7 (spec.md §4.2, used on battery
// swap to zero the accumulators).
func (d DS2438) WriteNVChargeDischarge(cd ChargeDischarge) error {
	buf := make([]byte, ds2438PageSize)
	binary.LittleEndian.PutUint32(buf[0:4], cd.ChargeMAh)
	binary.LittleEndian.PutUint32(buf[4:8], cd.DischargeMAh)
	return d.WriteNVPage(7, buf, ds2438PageSize)
}

// ConfigThreshold is NV page 0's persisted config byte and current
// threshold register (spec.md §4.2).
type ConfigThreshold struct {
	Config    byte
	Threshold byte
}

// ReadNVConfigThreshold reads NV page 0 (spec.md §4.2).
func (d DS2438) ReadNVConfigThreshold() (ConfigThreshold, error) {
	page, err := d.ReadNVPage(0)
	if err != nil {
		return ConfigThreshold{}, fmt.Errorf("ds2438 read config/threshold: %w", err)
	}
	return ConfigThreshold{Config: page[0], Threshold: page[7]}, nil
}

// WriteNVConfigThreshold writes NV page 0's config and threshold bytes,
// leaving the rest of the page untouched (spec.md §4.2).
func (d DS2438) WriteNVConfigThreshold(ct ConfigThreshold) error {
	cur, err := d.ReadNVPage(0)
	if err != nil {
		return err
	}
	buf := cur
	buf[0] = ct.Config
	buf[7] = ct.Threshold
	return d.WriteNVPage(0, buf[:], ds2438PageSize)
}

// PerformCal performs offset calibration of the current-sense ADC. The
// caller must ensure zero current is flowing through the sense resistor
// while this runs (spec.md §4.2).
func (d DS2438) PerformCal() (int16, error) {
	page, err := d.ReadSPPage(0)
	if err != nil {
		return 0, fmt.Errorf("ds2438 perform cal: %w", err)
	}
	config := page[0] | DS2438CAEnabled
	if err := d.WriteSPPage(0, []byte{config}, 1); err != nil {
		return 0, fmt.Errorf("ds2438 perform cal: enabling CA: %w", err)
	}

	time.Sleep(10 * time.Millisecond)

	cal, err := d.ReadTimeCapacityCal()
	if err != nil {
		return 0, fmt.Errorf("ds2438 perform cal: reading result: %w", err)
	}
	return cal.OffsetCal, nil
}

// userDataPageBase is where DS2438 user-data pages start (spec.md §4.2:
// "4 user-data pages", NV pages 4-6 plus one shared with charge/discharge
// bookkeeping varies by deployment; this host uses pages 4-6 as free
// scratch space, matching DS4238_NUM_USER_DATA_PAGES-1 usable pages after
// page 7 is reserved for charge/discharge).
const userDataPageBase = 4

// ReadNVUserData reads user-data block (0-2) (spec.md §4.2).
func (d DS2438) ReadNVUserData(block byte) ([ds2438PageSize]byte, error) {
	return d.ReadNVPage(userDataPageBase + block)
}

// WriteNVUserData writes user-data block (0-2) (spec.md §4.2).
func (d DS2438) WriteNVUserData(block byte, data []byte, size int) error {
	return d.WriteNVPage(userDataPageBase+block, data, size)
}
