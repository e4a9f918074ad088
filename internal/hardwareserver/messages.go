// Package hardwareserver owns every physical I/O device RoboOne talks to
// directly: the 1-Wire bus (battery monitors and PIO expanders) and the
// Hindbrain serial link. It is the sole owner of that hardware state
// (spec.md §4.1); every other process reaches it only through the
// messaging protocol defined in this file.
package hardwareserver

import "roboone/internal/messaging"

// Message catalog. Names and grouping follow hardware_msgs.h exactly;
// Go naming drops the HARDWARE_ prefix the original repeats on every
// line (spec.md §4.1: "an implementation MUST support request/confirm
// pairs for every operation the catalog below lists").
const (
	MsgServerStart messaging.MsgType = iota + 1
	MsgServerStop

	MsgReadMains12V
	MsgReadChargerStatePins
	MsgReadChargerState

	MsgToggleOPwr
	MsgReadOPwr
	MsgToggleORst
	MsgReadORst
	MsgTogglePiRst

	MsgSetRioPwr12VOn
	MsgSetRioPwr12VOff
	MsgReadRioPwr12V
	MsgSetRioPwrBattOn
	MsgSetRioPwrBattOff
	MsgReadRioPwrBatt

	MsgSetOPwr12VOn
	MsgSetOPwr12VOff
	MsgReadOPwr12V
	MsgSetOPwrBattOn
	MsgSetOPwrBattOff
	MsgReadOPwrBatt

	MsgSetRioBatteryChargerOn
	MsgSetRioBatteryChargerOff
	MsgReadRioBatteryCharger
	MsgSetO1BatteryChargerOn
	MsgSetO1BatteryChargerOff
	MsgReadO1BatteryCharger
	MsgSetO2BatteryChargerOn
	MsgSetO2BatteryChargerOff
	MsgReadO2BatteryCharger
	MsgSetO3BatteryChargerOn
	MsgSetO3BatteryChargerOff
	MsgReadO3BatteryCharger
	MsgSetAllBatteryChargersOn
	MsgSetAllBatteryChargersOff
	MsgSetAllOBatteryChargersOn
	MsgSetAllOBatteryChargersOff

	MsgDisableOnPCBRelays
	MsgEnableOnPCBRelays
	MsgDisableExternalRelays
	MsgEnableExternalRelays
	MsgReadExternalRelaysEnabled
	MsgReadOnPCBRelaysEnabled

	MsgReadGeneralPurposeIOs

	MsgReadRioBattCurrent
	MsgReadO1BattCurrent
	MsgReadO2BattCurrent
	MsgReadO3BattCurrent

	MsgReadRioBattVoltage
	MsgReadO1BattVoltage
	MsgReadO2BattVoltage
	MsgReadO3BattVoltage

	MsgReadRioRemainingCapacity
	MsgReadO1RemainingCapacity
	MsgReadO2RemainingCapacity
	MsgReadO3RemainingCapacity

	MsgReadRioBattLifetimeChargeDischarge
	MsgReadO1BattLifetimeChargeDischarge
	MsgReadO2BattLifetimeChargeDischarge
	MsgReadO3BattLifetimeChargeDischarge

	MsgPerformCalAllBatteryMonitors
	MsgPerformCalRioBatteryMonitor
	MsgPerformCalO1BatteryMonitor
	MsgPerformCalO2BatteryMonitor
	MsgPerformCalO3BatteryMonitor

	MsgSwapRioBattery
	MsgSwapO1Battery
	MsgSwapO2Battery
	MsgSwapO3Battery

	MsgReadRioBattTemperature
	MsgReadO1BattTemperature
	MsgReadO2BattTemperature
	MsgReadO3BattTemperature

	MsgSendOString
)

// BatterySwapData is the request body for a SwapXBattery message:
// the fresh battery's declared starting capacity (spec.md §4.4, §3
// "Battery Swap").
type BatterySwapData struct {
	InitialCapacityMAh uint16 `json:"initial_capacity_mah"`
}

// ServerStartReq is the request body for MsgServerStart (spec.md §4.1).
type ServerStartReq struct {
	BatteriesOnly bool `json:"batteries_only"`
}

// BoolCnf is the confirm body shared by every read-a-flag operation
// (mains present, relay enabled, pin is on, etc).
type BoolCnf struct {
	Value bool `json:"value"`
}

// U8Cnf is the confirm body for an 8-bit pin-state read.
type U8Cnf struct {
	Value byte `json:"value"`
}

// U16Cnf is the confirm body for a voltage or remaining-capacity read.
type U16Cnf struct {
	Value uint16 `json:"value"`
}

// S16Cnf is the confirm body for a signed current reading.
type S16Cnf struct {
	Value int16 `json:"value"`
}

// F64Cnf is the confirm body for a temperature reading.
type F64Cnf struct {
	Value float64 `json:"value"`
}

// ChargeDischargeCnf is the confirm body for a lifetime charge/discharge
// read.
type ChargeDischargeCnf struct {
	ChargeMAh    uint32 `json:"charge_mah"`
	DischargeMAh uint32 `json:"discharge_mah"`
}

// ChargeStateCnf is the confirm body for MsgReadChargerState.
type ChargeStateCnf struct {
	State string `json:"state"`
}

// SendOStringReq/Cnf carry the Hindbrain bridge's request string and
// response string (spec.md §4.1: "SEND_O_STRING(string,
// wait_for_response: bool)").
type SendOStringReq struct {
	Request        string `json:"request"`
	WaitForResponse bool  `json:"wait_for_response"`
}

type SendOStringCnf struct {
	Response string `json:"response"`
}

// ErrCnf is the confirm body used whenever an operation fails; the
// caller checks Error != "" before trusting the rest of the payload.
type ErrCnf struct {
	Error string `json:"error,omitempty"`
}
