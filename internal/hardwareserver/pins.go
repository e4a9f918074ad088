package hardwareserver

// Power-control PIO pin assignment. Momentary signals (O_PWR, O_RST) are
// pulsed with onewire.PinShadow.Toggle; the rest are steady on/off
// relay-enable lines. spec.md is silent on exact pin numbering, so this
// is this host's own wiring convention, not a value recovered from the
// original source.
const (
	pinOPwr       byte = 0x01 // momentary: toggles Hindbrain's power relay
	pinORst       byte = 0x02 // momentary: toggles Hindbrain's reset line
	pinPiRst      byte = 0x04 // momentary: wired but unused (DESIGN.md open question)
	pinRioPwr12V  byte = 0x08
	pinRioPwrBatt byte = 0x10
	pinOPwr12V    byte = 0x20
	pinOPwrBatt   byte = 0x40
)

// General-purpose PIO pin assignment: bit 0 senses 12V mains presence
// (an input, unlike every other pin this server drives), the rest are
// free general-purpose pins reported verbatim by MsgReadGeneralPurposeIOs.
const pinMainsSense byte = 0x01

// Battery-charger PIO pin assignment: one enable line per battery charger
// plus the two relay-bank enables.
const (
	pinRioBatteryCharger byte = 0x01
	pinO1BatteryCharger  byte = 0x02
	pinO2BatteryCharger  byte = 0x04
	pinO3BatteryCharger  byte = 0x08
	pinOnPCBRelaysEnable byte = 0x10
	pinExternalRelaysEnable byte = 0x20
)

// allOBatteryChargerPins is every O-series charger enable line, used by
// SetAllOBatteryChargersOn/Off (spec.md §4.1 catalog entry).
const allOBatteryChargerPins = pinO1BatteryCharger | pinO2BatteryCharger | pinO3BatteryCharger

// allBatteryChargerPins is every charger enable line, RIO included
// (SetAllBatteryChargersOn/Off).
const allBatteryChargerPins = pinRioBatteryCharger | allOBatteryChargerPins
