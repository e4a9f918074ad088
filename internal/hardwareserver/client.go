package hardwareserver

import (
	"encoding/json"
	"fmt"

	"roboone/internal/messaging"
	"roboone/internal/onewire"
)

// Client-side helpers for callers that only ever reach the Hardware
// Server through the messaging protocol: the Supervisor's display loop
// (spec.md §2's data-flow paragraph: "the Supervisor's display loop
// polls the Hardware Server for sensor samples") and the
// remaining-capacity sync tool (spec.md §C.5). Each wraps one round trip
// through messaging.Call and unmarshals the matching confirm body,
// surfacing the server's ErrCnf.Error as a Go error rather than a zero
// value (spec.md §7: "every server records its failure in the first
// byte of its reply body... clients surface as a false return").

// errorField is embedded implicitly by unmarshalling into a struct that
// also carries the confirm's own fields; json.Unmarshal leaves fields
// absent from the wire body at their zero value, so a successful confirm
// (no "error" key) leaves Error empty and a failure confirm (no "value"
// key) leaves Value at its zero value — exactly the discriminator a
// caller needs.
type errorField struct {
	Error string `json:"error,omitempty"`
}

func call(port int, msgType messaging.MsgType, req any) (messaging.Message, error) {
	var body []byte
	if req != nil {
		var err error
		body, err = json.Marshal(req)
		if err != nil {
			return messaging.Message{}, err
		}
	}
	return messaging.Call(port, messaging.Message{Type: msgType, Body: body}, true)
}

func callBool(port int, msgType messaging.MsgType) (bool, error) {
	reply, err := call(port, msgType, nil)
	if err != nil {
		return false, err
	}
	var cnf struct {
		errorField
		BoolCnf
	}
	if err := json.Unmarshal(reply.Body, &cnf); err != nil {
		return false, err
	}
	if cnf.Error != "" {
		return false, fmt.Errorf("hardwareserver: %s", cnf.Error)
	}
	return cnf.Value, nil
}

func callU16(port int, msgType messaging.MsgType) (uint16, error) {
	reply, err := call(port, msgType, nil)
	if err != nil {
		return 0, err
	}
	var cnf struct {
		errorField
		U16Cnf
	}
	if err := json.Unmarshal(reply.Body, &cnf); err != nil {
		return 0, err
	}
	if cnf.Error != "" {
		return 0, fmt.Errorf("hardwareserver: %s", cnf.Error)
	}
	return cnf.Value, nil
}

func callS16(port int, msgType messaging.MsgType) (int16, error) {
	reply, err := call(port, msgType, nil)
	if err != nil {
		return 0, err
	}
	var cnf struct {
		errorField
		S16Cnf
	}
	if err := json.Unmarshal(reply.Body, &cnf); err != nil {
		return 0, err
	}
	if cnf.Error != "" {
		return 0, fmt.Errorf("hardwareserver: %s", cnf.Error)
	}
	return cnf.Value, nil
}

func callF64(port int, msgType messaging.MsgType) (float64, error) {
	reply, err := call(port, msgType, nil)
	if err != nil {
		return 0, err
	}
	var cnf struct {
		errorField
		F64Cnf
	}
	if err := json.Unmarshal(reply.Body, &cnf); err != nil {
		return 0, err
	}
	if cnf.Error != "" {
		return 0, fmt.Errorf("hardwareserver: %s", cnf.Error)
	}
	return cnf.Value, nil
}

func callEmpty(port int, msgType messaging.MsgType, req any) error {
	reply, err := call(port, msgType, req)
	if err != nil {
		return err
	}
	if len(reply.Body) == 0 {
		return nil
	}
	var cnf errorField
	if err := json.Unmarshal(reply.Body, &cnf); err != nil {
		return nil
	}
	if cnf.Error != "" {
		return fmt.Errorf("hardwareserver: %s", cnf.Error)
	}
	return nil
}

// ServerStart starts the Hardware Server's device discovery (spec.md
// §4.3: "SERVER_START(batteries_only: bool)").
func ServerStart(port int, batteriesOnly bool) error {
	return callEmpty(port, MsgServerStart, ServerStartReq{BatteriesOnly: batteriesOnly})
}

// ServerStop tells the Hardware Server to close its listening loop
// (spec.md §4.1: "Only SERVER_STOP returns EXIT_NORMALLY").
func ServerStop(port int) error {
	return callEmpty(port, MsgServerStop, nil)
}

// ReadMains12V reports whether mains power is present on the 12V sense
// pin (spec.md §4.3).
func ReadMains12V(port int) (bool, error) {
	return callBool(port, MsgReadMains12V)
}

// ReadChargerState decodes the charger-state LED pair (spec.md §3
// "Charge State").
func ReadChargerState(port int) (string, error) {
	reply, err := call(port, MsgReadChargerState, nil)
	if err != nil {
		return "", err
	}
	var cnf struct {
		errorField
		ChargeStateCnf
	}
	if err := json.Unmarshal(reply.Body, &cnf); err != nil {
		return "", err
	}
	if cnf.Error != "" {
		return "", fmt.Errorf("hardwareserver: %s", cnf.Error)
	}
	return cnf.State, nil
}

// roleOps returns the batteryTable entry for role, used to pick the
// message types ReadBattery/SetCharger/etc. issue for that battery.
func roleOps(role onewire.DeviceRole) (batteryOps, error) {
	for _, b := range batteryTable {
		if b.role == role {
			return b, nil
		}
	}
	return batteryOps{}, fmt.Errorf("hardwareserver: no battery operations for role %s", role)
}

// BatteryReading groups every per-battery value the display loop needs
// on one sampling pass (spec.md §3 "Battery Data").
type BatteryReading struct {
	CurrentMA            int16
	VoltageMV            uint16
	RemainingCapacityMAh uint16
	TemperatureC         float64
	LifetimeChargeMAh    uint32
	LifetimeDischargeMAh uint32
}

// ReadBattery samples current, voltage, remaining capacity, temperature
// and lifetime charge/discharge for role in five round trips, the shape
// the Supervisor's display loop drives once per battery per tick
// (spec.md §2).
func ReadBattery(port int, role onewire.DeviceRole) (BatteryReading, error) {
	ops, err := roleOps(role)
	if err != nil {
		return BatteryReading{}, err
	}

	var r BatteryReading
	if r.CurrentMA, err = callS16(port, ops.readCurrent); err != nil {
		return BatteryReading{}, fmt.Errorf("reading current: %w", err)
	}
	if r.VoltageMV, err = callU16(port, ops.readVoltage); err != nil {
		return BatteryReading{}, fmt.Errorf("reading voltage: %w", err)
	}
	if r.RemainingCapacityMAh, err = callU16(port, ops.readCapacity); err != nil {
		return BatteryReading{}, fmt.Errorf("reading remaining capacity: %w", err)
	}
	if r.TemperatureC, err = callF64(port, ops.readTemperature); err != nil {
		return BatteryReading{}, fmt.Errorf("reading temperature: %w", err)
	}

	reply, err := call(port, ops.readChargeDischarge, nil)
	if err != nil {
		return BatteryReading{}, fmt.Errorf("reading lifetime charge/discharge: %w", err)
	}
	var cdCnf struct {
		errorField
		ChargeDischargeCnf
	}
	if err := json.Unmarshal(reply.Body, &cdCnf); err != nil {
		return BatteryReading{}, err
	}
	if cdCnf.Error != "" {
		return BatteryReading{}, fmt.Errorf("reading lifetime charge/discharge: %s", cdCnf.Error)
	}
	r.LifetimeChargeMAh = cdCnf.ChargeMAh
	r.LifetimeDischargeMAh = cdCnf.DischargeMAh
	return r, nil
}

// SetCharger commands role's charger relay on or off (spec.md §4.3).
func SetCharger(port int, role onewire.DeviceRole, on bool) error {
	ops, err := roleOps(role)
	if err != nil {
		return err
	}
	msgType := ops.chargerOff
	if on {
		msgType = ops.chargerOn
	}
	return callEmpty(port, msgType, nil)
}

// SwapBattery zeroes role's lifetime accumulators and records
// initialCapacityMAh as the fresh battery's starting charge (spec.md
// §4.4 "battery swap").
func SwapBattery(port int, role onewire.DeviceRole, initialCapacityMAh uint16) error {
	ops, err := roleOps(role)
	if err != nil {
		return err
	}
	return callEmpty(port, ops.swap, BatterySwapData{InitialCapacityMAh: initialCapacityMAh})
}

// PerformCalAll calibrates every battery monitor's current-sense ADC
// (spec.md §4.2 "PerformCal"). Callers must ensure no current is flowing
// through any sense resistor while this runs.
func PerformCalAll(port int) error {
	return callEmpty(port, MsgPerformCalAllBatteryMonitors, nil)
}

// SendOString bridges a request string to the Hindbrain and, if
// waitForResponse is set, returns its response (spec.md §4.3
// "SEND_O_STRING").
func SendOString(port int, request string, waitForResponse bool) (string, error) {
	reply, err := call(port, MsgSendOString, SendOStringReq{Request: request, WaitForResponse: waitForResponse})
	if err != nil {
		return "", err
	}
	var cnf struct {
		errorField
		SendOStringCnf
	}
	if err := json.Unmarshal(reply.Body, &cnf); err != nil {
		return "", err
	}
	if cnf.Error != "" {
		return "", fmt.Errorf("hardwareserver: %s", cnf.Error)
	}
	return cnf.Response, nil
}
