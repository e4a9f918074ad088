package onewire

import (
	"errors"
	"testing"
)

// fakeTransceiver answers Transact calls from a canned queue, recording
// every outgoing command for assertions.
type fakeTransceiver struct {
	responses  [][]byte
	sent       [][]byte
	resetErr   error
	resetAddrs []Address
}

func (f *fakeTransceiver) Reset(addr Address) error {
	f.resetAddrs = append(f.resetAddrs, addr)
	return f.resetErr
}

func (f *fakeTransceiver) Transact(addr Address, out []byte, replyLen int) ([]byte, error) {
	f.sent = append(f.sent, out)
	if len(f.responses) == 0 {
		return make([]byte, replyLen), nil
	}
	reply := f.responses[0]
	f.responses = f.responses[1:]
	return reply, nil
}

func TestCRC8RoundTrip(t *testing.T) {
	payload := []byte{0x10, 0x20, 0x30, 0x40, 0x50}
	crc := CRC8(payload)
	framed := append(append([]byte{}, payload...), crc)
	if !CRC8Valid(framed) {
		t.Fatalf("CRC8Valid(%x) = false, want true", framed)
	}
	framed[0] ^= 0xFF
	if CRC8Valid(framed) {
		t.Fatalf("CRC8Valid(%x) = true after corruption, want false", framed)
	}
}

func TestCRC16InvertedRoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0x04}
	inverted := InvertedCRC16(payload)
	if !CRC16ValidInverted(payload, inverted) {
		t.Fatalf("CRC16ValidInverted(%x, %04x) = false, want true", payload, inverted)
	}
	if CRC16ValidInverted(payload, inverted^0x0001) {
		t.Fatalf("CRC16ValidInverted detected no corruption")
	}
}

func addrFor(family byte) Address {
	return Address{family, 0, 0, 0, 0, 0, 0x42, 0}
}

func TestDS2438ReadSPPageValidatesCRC(t *testing.T) {
	page := []byte{0x00, 0x10, 0x00, 0x64, 0x00, 0x00, 0x00, 0x00}
	crc := CRC8(page)
	bus := &fakeTransceiver{responses: [][]byte{append(append([]byte{}, page...), crc)}}
	d := DS2438{Bus: bus, Addr: addrFor(FamilyDS2438)}

	got, err := d.ReadSPPage(0)
	if err != nil {
		t.Fatalf("ReadSPPage: %v", err)
	}
	var want [ds2438PageSize]byte
	copy(want[:], page)
	if got != want {
		t.Errorf("ReadSPPage() = %x, want %x", got, want)
	}
}

func TestDS2438ReadSPPageRejectsBadCRC(t *testing.T) {
	page := make([]byte, ds2438PageSize+1)
	page[ds2438PageSize] = 0x01 // all-zero data has CRC-8 0x00, so 0x01 is wrong
	bus := &fakeTransceiver{responses: [][]byte{page}}
	d := DS2438{Bus: bus, Addr: addrFor(FamilyDS2438)}

	_, err := d.ReadSPPage(0)
	if !errors.Is(err, ErrCRCMismatch) {
		t.Fatalf("ReadSPPage() err = %v, want ErrCRCMismatch", err)
	}
}

func TestDS2438ReadTemperatureDecodesSigned13Bit(t *testing.T) {
	// page byte0=status (not busy), bytes1-2 = temperature LSB/MSB.
	// -10.0C = -320 in 0.03125 units = -320 -> raw register value is
	// that shifted left 3 (3 low bits reserved): -320 << 3 = -2560.
	raw := int16(-2560)
	page := make([]byte, ds2438PageSize)
	page[1] = byte(raw)
	page[2] = byte(raw >> 8)
	crc := CRC8(page)
	framed := append(append([]byte{}, page...), crc)

	// First response is consumed by the Convert T command itself (and
	// ignored), second by the busy-poll status read, third by the final
	// value read.
	bus := &fakeTransceiver{responses: [][]byte{framed, framed, framed}}
	d := DS2438{Bus: bus, Addr: addrFor(FamilyDS2438)}

	got, err := d.ReadTemperature()
	if err != nil {
		t.Fatalf("ReadTemperature: %v", err)
	}
	if got != -10.0 {
		t.Errorf("ReadTemperature() = %v, want -10.0", got)
	}
}

func TestDS2408ChannelAccessReadValidatesCRC(t *testing.T) {
	samples := []byte{0xFF, 0x00, 0xFF}
	inverted := InvertedCRC16(samples)
	reply := append(append([]byte{}, samples...), byte(inverted), byte(inverted>>8))
	bus := &fakeTransceiver{responses: [][]byte{reply}}
	d := DS2408{Bus: bus, Addr: addrFor(FamilyDS2408)}

	got, err := d.ChannelAccessRead(3)
	if err != nil {
		t.Fatalf("ChannelAccessRead: %v", err)
	}
	if len(got) != 3 || got[0] != 0xFF || got[1] != 0x00 || got[2] != 0xFF {
		t.Errorf("ChannelAccessRead() = %x, want %x", got, samples)
	}
}

func TestDS2408ChannelAccessReadRejectsBadCRC(t *testing.T) {
	reply := []byte{0xFF, 0x00, 0xFF, 0x00, 0x00}
	bus := &fakeTransceiver{responses: [][]byte{reply}}
	d := DS2408{Bus: bus, Addr: addrFor(FamilyDS2408)}

	_, err := d.ChannelAccessRead(3)
	if !errors.Is(err, ErrCRCMismatch) {
		t.Fatalf("ChannelAccessRead() err = %v, want ErrCRCMismatch", err)
	}
}

func TestDS2408ChannelAccessWriteRequiresAckEcho(t *testing.T) {
	bus := &fakeTransceiver{responses: [][]byte{{0xAA, 0x55}}}
	d := DS2408{Bus: bus, Addr: addrFor(FamilyDS2408)}

	got, err := d.ChannelAccessWrite(0x55)
	if err != nil {
		t.Fatalf("ChannelAccessWrite: %v", err)
	}
	if got != 0x55 {
		t.Errorf("ChannelAccessWrite() = %02x, want 0x55", got)
	}

	bus2 := &fakeTransceiver{responses: [][]byte{{0x00, 0x55}}}
	d2 := DS2408{Bus: bus2, Addr: addrFor(FamilyDS2408)}
	if _, err := d2.ChannelAccessWrite(0x55); err == nil {
		t.Fatalf("ChannelAccessWrite() with bad echo: want error, got nil")
	}
}

func TestPinShadowSetPinsPreservesUntouchedBits(t *testing.T) {
	bus := &fakeTransceiver{responses: [][]byte{
		{0x0F},             // initial Sync read of output latch state
		{0xAA, 0x0D},       // first SetPins write ack
	}}
	d := DS2408{Bus: bus, Addr: addrFor(FamilyDS2408)}
	shadow := NewPinShadow(d, 0x00, 0x00)

	if err := shadow.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if shadow.Shadow() != 0x0F {
		t.Fatalf("Shadow() after sync = %02x, want 0x0F", shadow.Shadow())
	}

	// Flip bit 1 off, leave everything else as-is: 0x0F &^ 0x02 = 0x0D.
	if err := shadow.SetPins(0x02, 0x00); err != nil {
		t.Fatalf("SetPins: %v", err)
	}
	if shadow.Shadow() != 0x0D {
		t.Errorf("Shadow() after SetPins = %02x, want 0x0D", shadow.Shadow())
	}
}

func TestPinShadowRejectsInputMaskOverlap(t *testing.T) {
	bus := &fakeTransceiver{}
	d := DS2408{Bus: bus, Addr: addrFor(FamilyDS2408)}
	shadow := NewPinShadow(d, 0x01, 0x00)

	if err := shadow.SetPins(0x01, 0x01); err == nil {
		t.Fatalf("SetPins() on an input pin: want error, got nil")
	}
}

func TestPinShadowReadPinsOverridesShadowedBitsFromPinsState(t *testing.T) {
	bus := &fakeTransceiver{responses: [][]byte{
		{0x0F},       // initial Sync read of output latch state
		{0xAA, 0x0D}, // SetPins write ack: commands bit 1 off
		{0xFF},       // device read-back disagrees with the commanded state entirely
	}}
	d := DS2408{Bus: bus, Addr: addrFor(FamilyDS2408)}
	shadow := NewPinShadow(d, 0x00, 0x02) // bit 1 is shadowed

	if err := shadow.SetPins(0x02, 0x00); err != nil {
		t.Fatalf("SetPins: %v", err)
	}

	got, err := shadow.ReadPins()
	if err != nil {
		t.Fatalf("ReadPins: %v", err)
	}
	// Bit 1 must reflect the commanded (shadowed) 0, not the device's
	// raw 0xFF read-back; every other bit passes the raw read through.
	want := byte(0xFD)
	if got != want {
		t.Errorf("ReadPins() = %02x, want %02x", got, want)
	}
	if got&0x02 != 0 {
		t.Errorf("ReadPins() bit 1 = set, want clear (shadow-overridden)")
	}
}

func TestClassifyChargeState(t *testing.T) {
	cases := []struct {
		name string
		a, b chargeStateSample
		want ChargeState
	}{
		{"off", chargeStateSample{}, chargeStateSample{}, ChargeStateOff},
		{"steady green", chargeStateSample{green: true}, chargeStateSample{green: true}, ChargeStateGreen},
		{"steady red", chargeStateSample{red: true}, chargeStateSample{red: true}, ChargeStateRed},
		{"flashing green", chargeStateSample{green: true}, chargeStateSample{green: false}, ChargeStateFlashingGreen},
		{"flashing red", chargeStateSample{red: true}, chargeStateSample{red: false}, ChargeStateFlashingRed},
		{"both lit", chargeStateSample{green: true, red: true}, chargeStateSample{green: true, red: true}, ChargeStateSix},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyChargeState(tc.a, tc.b)
			if got != tc.want {
				t.Errorf("classifyChargeState(%+v, %+v) = %s, want %s", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestByRoleAndValidateTable(t *testing.T) {
	entry, err := ByRole(RoleRioBatteryMonitor)
	if err != nil {
		t.Fatalf("ByRole: %v", err)
	}
	if entry.Role != RoleRioBatteryMonitor {
		t.Errorf("ByRole() = %+v, want role %s", entry, RoleRioBatteryMonitor)
	}

	bus := &fakeTransceiver{}
	if err := ValidateTable(bus, DeviceTable); err != nil {
		t.Fatalf("ValidateTable: %v", err)
	}
	if len(bus.resetAddrs) != len(DeviceTable) {
		t.Errorf("ValidateTable() reset %d devices, want %d", len(bus.resetAddrs), len(DeviceTable))
	}
}
