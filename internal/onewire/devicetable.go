package onewire

import "fmt"

// DeviceTableEntry names one physical device the Hardware Server expects
// to find on the bus at startup (spec.md §3: "a static table that names
// each expected device and assigns a role").
type DeviceTableEntry struct {
	Role DeviceRole
	Addr Address

	// InputMask only applies to DS2408 roles: bits treated as inputs
	// rather than software-shadowed outputs.
	InputMask byte

	// ShadowMask selects the output bits whose read-back is unreliable
	// over the bus and must instead be answered from the locally
	// tracked pinsState (spec.md §4.2 "Shadow policy"; grounded on
	// ow_bus.c's per-device DARLINGTON_IO_SHADOW_MASK/
	// RELAY_IO_SHADOW_MASK, non-zero only for the darlington- and
	// relay-driven PIOs). Values here are literal, not computed from
	// internal/hardwareserver's pin constants, to avoid an import
	// cycle (hardwareserver imports onewire).
	ShadowMask byte
}

// DeviceTable is the full roster SERVER_START validates against the
// bus (spec.md §4.1: "SERVER_START performs device discovery and
// confirms every table entry answers").
//
// Addresses here are placeholders: a real deployment's table is
// populated from the devices actually soldered onto that robot's bus,
// not invented by this host. The table is compiled in; nothing reads a
// deployment-specific table from configuration.
var DeviceTable = []DeviceTableEntry{
	{Role: RoleRioBatteryMonitor, Addr: Address{FamilyDS2438, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00}},
	{Role: RoleO1BatteryMonitor, Addr: Address{FamilyDS2438, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02, 0x00}},
	{Role: RoleO2BatteryMonitor, Addr: Address{FamilyDS2438, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03, 0x00}},
	{Role: RoleO3BatteryMonitor, Addr: Address{FamilyDS2438, 0x00, 0x00, 0x00, 0x00, 0x00, 0x04, 0x00}},
	{Role: RoleChargerStatePIO, Addr: Address{FamilyDS2408, 0x00, 0x00, 0x00, 0x00, 0x00, 0x05, 0x00}, InputMask: 0xFF},
	// ShadowMask 0x7B covers pinOPwr|pinORst|pinRioPwr12V|pinRioPwrBatt|
	// pinOPwr12V|pinOPwrBatt (internal/hardwareserver/pins.go): every
	// bit on this PIO drives a relay or darlington stage, none are
	// wired back reliably, matching RELAY_IO_SHADOW_MASK's reasoning.
	{Role: RolePowerControlPIO, Addr: Address{FamilyDS2408, 0x00, 0x00, 0x00, 0x00, 0x00, 0x06, 0x00}, ShadowMask: 0x7B},
	// ShadowMask 0x3F covers allBatteryChargerPins|pinOnPCBRelaysEnable|
	// pinExternalRelaysEnable: same reasoning, this PIO only drives
	// charger-enable relays.
	{Role: RoleBatteryChargerPIO, Addr: Address{FamilyDS2408, 0x00, 0x00, 0x00, 0x00, 0x00, 0x07, 0x00}, ShadowMask: 0x3F},
	{Role: RoleGeneralPurposePIO, Addr: Address{FamilyDS2408, 0x00, 0x00, 0x00, 0x00, 0x00, 0x08, 0x00}, InputMask: 0x01},
}

// ByRole returns the first DeviceTable entry with the given role.
func ByRole(role DeviceRole) (DeviceTableEntry, error) {
	for _, e := range DeviceTable {
		if e.Role == role {
			return e, nil
		}
	}
	return DeviceTableEntry{}, fmt.Errorf("onewire: no device table entry for role %s", role)
}

// ValidateTable resets every entry in table over bus and reports the
// first one that fails to answer (spec.md §4.1's discovery step).
func ValidateTable(bus Transceiver, table []DeviceTableEntry) error {
	for _, e := range table {
		if err := bus.Reset(e.Addr); err != nil {
			return fmt.Errorf("onewire: device table validation: role %s at %02x: %w", e.Role, e.Addr, err)
		}
	}
	return nil
}
