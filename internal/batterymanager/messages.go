// Package batterymanager implements the charging policy engine: four
// per-battery hysteresis state machines, a command-spacing queue that
// staggers charger switches through the Timer Server, and cross-battery
// aggregation events published to the Supervisory State Machine
// (spec.md §4.4).
package batterymanager

import (
	"encoding/json"
	"fmt"

	"roboone/internal/messaging"
	"roboone/internal/onewire"
)

// Message catalog (spec.md §6: "Battery Manager: server start/stop, four
// data-indications, charging permitted, timer expiry").
const (
	MsgServerStart messaging.MsgType = iota + 1
	MsgServerStop

	MsgDataRio
	MsgDataO1
	MsgDataO2
	MsgDataO3

	MsgChargingPermitted
	MsgTimerExpiry
)

// BatteryData is the per-sample payload a DATA_<battery> indication
// carries (spec.md §3).
type BatteryData struct {
	CurrentMA            int16   `json:"current_ma"`
	VoltageMV            uint16  `json:"voltage_mv"`
	RemainingCapacityMAh uint16  `json:"remaining_capacity_mah"`
	TemperatureC         float64 `json:"temperature_c"`
	LifetimeChargeMAh    uint32  `json:"lifetime_charge_mah"`
	LifetimeDischargeMAh uint32  `json:"lifetime_discharge_mah"`
}

// Status is derived per battery and returned as the confirm body for
// every DATA_<battery> indication (spec.md §3). Invariants: FullyCharged
// and InsufficientCharge are never both true; OverTemperature forces
// ChargerOn false.
type Status struct {
	ChargerOn          bool `json:"charger_on"`
	InsufficientCharge bool `json:"insufficient_charge"`
	FullyCharged       bool `json:"fully_charged"`
	OverTemperature    bool `json:"over_temperature"`
	TemperatureBroken  bool `json:"temperature_broken"`
}

// ChargingPermittedReq is the body of MsgChargingPermitted.
type ChargingPermittedReq struct {
	Permitted bool `json:"permitted"`
}

// dataMsgForRole maps a battery monitor's device-table role to the
// DATA_<battery> message type the Supervisor's display loop feeds it on
// (spec.md §2's data-flow paragraph).
func dataMsgForRole(role onewire.DeviceRole) (messaging.MsgType, error) {
	switch role {
	case onewire.RoleRioBatteryMonitor:
		return MsgDataRio, nil
	case onewire.RoleO1BatteryMonitor:
		return MsgDataO1, nil
	case onewire.RoleO2BatteryMonitor:
		return MsgDataO2, nil
	case onewire.RoleO3BatteryMonitor:
		return MsgDataO3, nil
	default:
		return 0, fmt.Errorf("batterymanager: no data message for role %s", role)
	}
}

// SendData delivers one battery's freshly sampled data and returns the
// derived Status (spec.md §4.4).
func SendData(port int, role onewire.DeviceRole, data BatteryData) (Status, error) {
	msgType, err := dataMsgForRole(role)
	if err != nil {
		return Status{}, err
	}
	body, err := json.Marshal(data)
	if err != nil {
		return Status{}, err
	}
	reply, err := messaging.Call(port, messaging.Message{Type: msgType, Body: body}, true)
	if err != nil {
		return Status{}, err
	}
	var status Status
	if err := json.Unmarshal(reply.Body, &status); err != nil {
		return Status{}, fmt.Errorf("batterymanager: decoding status: %w", err)
	}
	return status, nil
}

// SendChargingPermitted toggles the global charging-permitted flag
// (spec.md §4.4).
func SendChargingPermitted(port int, permitted bool) error {
	body, err := json.Marshal(ChargingPermittedReq{Permitted: permitted})
	if err != nil {
		return err
	}
	_, err = messaging.Call(port, messaging.Message{Type: MsgChargingPermitted, Body: body}, true)
	return err
}

// SendServerStart is the client-side helper the Supervisor uses during
// start-up (spec.md §6).
func SendServerStart(port int) error {
	_, err := messaging.Call(port, messaging.Message{Type: MsgServerStart}, true)
	return err
}

// SendServerStop is the client-side helper the Supervisor uses during
// shutdown (spec.md §6).
func SendServerStop(port int) error {
	_, err := messaging.Call(port, messaging.Message{Type: MsgServerStop}, true)
	return err
}
