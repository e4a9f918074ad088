package hardwareserver

import (
	"encoding/json"
	"fmt"
	"sync"

	"roboone/internal/core"
	"roboone/internal/hindbrain"
	"roboone/internal/messaging"
	"roboone/internal/onewire"
)

// batteryOps groups the ten message types that apply uniformly to one
// battery monitor, letting Handle dispatch all four batteries through a
// single table instead of repeating the same ten-case block four times
// (spec.md §4.1 lists the same operation once per battery).
type batteryOps struct {
	role                onewire.DeviceRole
	chargerPin          byte
	readCurrent         messaging.MsgType
	readVoltage         messaging.MsgType
	readCapacity        messaging.MsgType
	readChargeDischarge messaging.MsgType
	readTemperature     messaging.MsgType
	performCal          messaging.MsgType
	chargerOn           messaging.MsgType
	chargerOff          messaging.MsgType
	readCharger         messaging.MsgType
	swap                messaging.MsgType
}

var batteryTable = []batteryOps{
	{
		role: onewire.RoleRioBatteryMonitor, chargerPin: pinRioBatteryCharger,
		readCurrent: MsgReadRioBattCurrent, readVoltage: MsgReadRioBattVoltage,
		readCapacity: MsgReadRioRemainingCapacity, readChargeDischarge: MsgReadRioBattLifetimeChargeDischarge,
		readTemperature: MsgReadRioBattTemperature, performCal: MsgPerformCalRioBatteryMonitor,
		chargerOn: MsgSetRioBatteryChargerOn, chargerOff: MsgSetRioBatteryChargerOff,
		readCharger: MsgReadRioBatteryCharger, swap: MsgSwapRioBattery,
	},
	{
		role: onewire.RoleO1BatteryMonitor, chargerPin: pinO1BatteryCharger,
		readCurrent: MsgReadO1BattCurrent, readVoltage: MsgReadO1BattVoltage,
		readCapacity: MsgReadO1RemainingCapacity, readChargeDischarge: MsgReadO1BattLifetimeChargeDischarge,
		readTemperature: MsgReadO1BattTemperature, performCal: MsgPerformCalO1BatteryMonitor,
		chargerOn: MsgSetO1BatteryChargerOn, chargerOff: MsgSetO1BatteryChargerOff,
		readCharger: MsgReadO1BatteryCharger, swap: MsgSwapO1Battery,
	},
	{
		role: onewire.RoleO2BatteryMonitor, chargerPin: pinO2BatteryCharger,
		readCurrent: MsgReadO2BattCurrent, readVoltage: MsgReadO2BattVoltage,
		readCapacity: MsgReadO2RemainingCapacity, readChargeDischarge: MsgReadO2BattLifetimeChargeDischarge,
		readTemperature: MsgReadO2BattTemperature, performCal: MsgPerformCalO2BatteryMonitor,
		chargerOn: MsgSetO2BatteryChargerOn, chargerOff: MsgSetO2BatteryChargerOff,
		readCharger: MsgReadO2BatteryCharger, swap: MsgSwapO2Battery,
	},
	{
		role: onewire.RoleO3BatteryMonitor, chargerPin: pinO3BatteryCharger,
		readCurrent: MsgReadO3BattCurrent, readVoltage: MsgReadO3BattVoltage,
		readCapacity: MsgReadO3RemainingCapacity, readChargeDischarge: MsgReadO3BattLifetimeChargeDischarge,
		readTemperature: MsgReadO3BattTemperature, performCal: MsgPerformCalO3BatteryMonitor,
		chargerOn: MsgSetO3BatteryChargerOn, chargerOff: MsgSetO3BatteryChargerOff,
		readCharger: MsgReadO3BatteryCharger, swap: MsgSwapO3Battery,
	},
}

// Server holds every physical device handle the Hardware Server process
// owns (spec.md §4.1). It implements messaging.Handler via Handle.
type Server struct {
	logger          *core.Logger
	hindbrainDevice string
	bus             onewire.Transceiver

	batteries map[onewire.DeviceRole]onewire.DS2438

	chargerStatePins *onewire.PinShadow
	powerControl     *onewire.PinShadow
	batteryCharger   *onewire.PinShadow
	generalPurpose   *onewire.PinShadow

	mu            sync.Mutex
	batteriesOnly bool
}

// NewServer builds a Server bound to bus for 1-Wire transactions and
// hindbrainDevice for the Orangutan link.
func NewServer(bus onewire.Transceiver, hindbrainDevice string, logger *core.Logger) (*Server, error) {
	s := &Server{
		logger:          logger,
		hindbrainDevice: hindbrainDevice,
		bus:             bus,
		batteries:       make(map[onewire.DeviceRole]onewire.DS2438),
	}

	for _, b := range batteryTable {
		entry, err := onewire.ByRole(b.role)
		if err != nil {
			return nil, err
		}
		s.batteries[b.role] = onewire.DS2438{Bus: bus, Addr: entry.Addr}
	}

	chargerStateEntry, err := onewire.ByRole(onewire.RoleChargerStatePIO)
	if err != nil {
		return nil, err
	}
	powerControlEntry, err := onewire.ByRole(onewire.RolePowerControlPIO)
	if err != nil {
		return nil, err
	}
	batteryChargerEntry, err := onewire.ByRole(onewire.RoleBatteryChargerPIO)
	if err != nil {
		return nil, err
	}
	generalPurposeEntry, err := onewire.ByRole(onewire.RoleGeneralPurposePIO)
	if err != nil {
		return nil, err
	}

	s.chargerStatePins = onewire.NewPinShadow(onewire.DS2408{Bus: bus, Addr: chargerStateEntry.Addr}, chargerStateEntry.InputMask, chargerStateEntry.ShadowMask)
	s.powerControl = onewire.NewPinShadow(onewire.DS2408{Bus: bus, Addr: powerControlEntry.Addr}, powerControlEntry.InputMask, powerControlEntry.ShadowMask)
	s.batteryCharger = onewire.NewPinShadow(onewire.DS2408{Bus: bus, Addr: batteryChargerEntry.Addr}, batteryChargerEntry.InputMask, batteryChargerEntry.ShadowMask)
	s.generalPurpose = onewire.NewPinShadow(onewire.DS2408{Bus: bus, Addr: generalPurposeEntry.Addr}, generalPurposeEntry.InputMask, generalPurposeEntry.ShadowMask)

	return s, nil
}

// Start performs device discovery: resets every table entry (or, when
// batteriesOnly is set, only the battery monitors) and syncs the PIO
// shadows so later SetPins calls preserve pins they aren't touching
// (spec.md §4.1: "SERVER_START performs device discovery").
func (s *Server) Start(bus onewire.Transceiver, batteriesOnly bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batteriesOnly = batteriesOnly

	table := onewire.DeviceTable
	if batteriesOnly {
		table = nil
		for _, e := range onewire.DeviceTable {
			switch e.Role {
			case onewire.RoleRioBatteryMonitor, onewire.RoleO1BatteryMonitor, onewire.RoleO2BatteryMonitor, onewire.RoleO3BatteryMonitor:
				table = append(table, e)
			}
		}
	}
	if err := onewire.ValidateTable(bus, table); err != nil {
		return fmt.Errorf("hardwareserver: start: %w", err)
	}

	if batteriesOnly {
		return nil
	}
	for _, shadow := range []*onewire.PinShadow{s.chargerStatePins, s.powerControl, s.batteryCharger, s.generalPurpose} {
		if err := shadow.Sync(); err != nil {
			return fmt.Errorf("hardwareserver: start: syncing pin shadow: %w", err)
		}
	}
	return nil
}

// Handle implements messaging.Handler, dispatching every message the
// catalog in messages.go names.
func (s *Server) Handle(msg messaging.Message) (messaging.Message, bool, messaging.ReturnCode) {
	if reply, handled := s.handleBatteryOp(msg); handled {
		return reply, true, messaging.KeepRunning
	}

	switch msg.Type {
	case MsgServerStart:
		return s.handleServerStart(msg)
	case MsgServerStop:
		return messaging.Message{Type: msg.Type}, true, messaging.ExitNormally

	case MsgReadMains12V:
		return s.replyBool(msg, s.isMains12VAvailable)
	case MsgReadChargerStatePins:
		return s.replyU8(msg, s.chargerStatePins.ReadPins)
	case MsgReadChargerState:
		return s.handleReadChargerState(msg)

	case MsgToggleOPwr:
		return s.replyEmpty(msg, func() error { return s.powerControl.Toggle(pinOPwr, pinOPwr) })
	case MsgReadOPwr:
		return s.replyPinIsSet(msg, s.powerControl, pinOPwr)
	case MsgToggleORst:
		return s.replyEmpty(msg, func() error { return s.powerControl.Toggle(pinORst, pinORst) })
	case MsgReadORst:
		return s.replyPinIsSet(msg, s.powerControl, pinORst)
	case MsgTogglePiRst:
		// Wired but never exercised by any caller in the original source
		// (DESIGN.md's open-question #1); kept as a no-op confirm rather
		// than silently dropped, since the message itself remains part of
		// the catalog.
		return messaging.Message{Type: msg.Type}, true, messaging.KeepRunning

	case MsgSetRioPwr12VOn:
		return s.replyEmpty(msg, func() error { return s.powerControl.SetPins(pinRioPwr12V, pinRioPwr12V) })
	case MsgSetRioPwr12VOff:
		return s.replyEmpty(msg, func() error { return s.powerControl.SetPins(pinRioPwr12V, 0) })
	case MsgReadRioPwr12V:
		return s.replyPinIsSet(msg, s.powerControl, pinRioPwr12V)
	case MsgSetRioPwrBattOn:
		return s.replyEmpty(msg, func() error { return s.powerControl.SetPins(pinRioPwrBatt, pinRioPwrBatt) })
	case MsgSetRioPwrBattOff:
		return s.replyEmpty(msg, func() error { return s.powerControl.SetPins(pinRioPwrBatt, 0) })
	case MsgReadRioPwrBatt:
		return s.replyPinIsSet(msg, s.powerControl, pinRioPwrBatt)

	case MsgSetOPwr12VOn:
		return s.replyEmpty(msg, func() error { return s.powerControl.SetPins(pinOPwr12V, pinOPwr12V) })
	case MsgSetOPwr12VOff:
		return s.replyEmpty(msg, func() error { return s.powerControl.SetPins(pinOPwr12V, 0) })
	case MsgReadOPwr12V:
		return s.replyPinIsSet(msg, s.powerControl, pinOPwr12V)
	case MsgSetOPwrBattOn:
		return s.replyEmpty(msg, func() error { return s.powerControl.SetPins(pinOPwrBatt, pinOPwrBatt) })
	case MsgSetOPwrBattOff:
		return s.replyEmpty(msg, func() error { return s.powerControl.SetPins(pinOPwrBatt, 0) })
	case MsgReadOPwrBatt:
		return s.replyPinIsSet(msg, s.powerControl, pinOPwrBatt)

	case MsgSetAllBatteryChargersOn:
		return s.replyEmpty(msg, func() error { return s.batteryCharger.SetPins(allBatteryChargerPins, allBatteryChargerPins) })
	case MsgSetAllBatteryChargersOff:
		return s.replyEmpty(msg, func() error { return s.batteryCharger.SetPins(allBatteryChargerPins, 0) })
	case MsgSetAllOBatteryChargersOn:
		return s.replyEmpty(msg, func() error { return s.batteryCharger.SetPins(allOBatteryChargerPins, allOBatteryChargerPins) })
	case MsgSetAllOBatteryChargersOff:
		return s.replyEmpty(msg, func() error { return s.batteryCharger.SetPins(allOBatteryChargerPins, 0) })

	case MsgDisableOnPCBRelays:
		return s.replyEmpty(msg, func() error { return s.batteryCharger.SetPins(pinOnPCBRelaysEnable, 0) })
	case MsgEnableOnPCBRelays:
		return s.replyEmpty(msg, func() error { return s.batteryCharger.SetPins(pinOnPCBRelaysEnable, pinOnPCBRelaysEnable) })
	case MsgReadOnPCBRelaysEnabled:
		return s.replyPinIsSet(msg, s.batteryCharger, pinOnPCBRelaysEnable)
	case MsgDisableExternalRelays:
		return s.replyEmpty(msg, func() error { return s.batteryCharger.SetPins(pinExternalRelaysEnable, 0) })
	case MsgEnableExternalRelays:
		return s.replyEmpty(msg, func() error { return s.batteryCharger.SetPins(pinExternalRelaysEnable, pinExternalRelaysEnable) })
	case MsgReadExternalRelaysEnabled:
		return s.replyPinIsSet(msg, s.batteryCharger, pinExternalRelaysEnable)

	case MsgReadGeneralPurposeIOs:
		return s.replyU8(msg, s.generalPurpose.ReadPins)

	case MsgPerformCalAllBatteryMonitors:
		return s.handlePerformCalAll(msg)

	case MsgSendOString:
		return s.handleSendOString(msg)

	default:
		return s.errCnf(msg, fmt.Errorf("hardwareserver: unrecognised message type %d", msg.Type))
	}
}

func (s *Server) handleServerStart(msg messaging.Message) (messaging.Message, bool, messaging.ReturnCode) {
	var req ServerStartReq
	if len(msg.Body) > 0 {
		if err := json.Unmarshal(msg.Body, &req); err != nil {
			reply, _, _ := s.errCnf(msg, err)
			return reply, true, messaging.KeepRunning
		}
	}
	s.logger.Info("server start requested, batteries_only=%v", req.BatteriesOnly)
	if err := s.Start(s.bus, req.BatteriesOnly); err != nil {
		reply, _, _ := s.errCnf(msg, err)
		return reply, true, messaging.KeepRunning
	}
	return messaging.Message{Type: msg.Type}, true, messaging.KeepRunning
}

func (s *Server) isMains12VAvailable() (bool, error) {
	pins, err := s.generalPurpose.ReadPins()
	if err != nil {
		return false, err
	}
	return pins&pinMainsSense != 0, nil
}

func (s *Server) handleReadChargerState(msg messaging.Message) (messaging.Message, bool, messaging.ReturnCode) {
	state, err := onewire.DecodeChargeState(s.chargerStatePins)
	if err != nil {
		reply, _, _ := s.errCnf(msg, err)
		return reply, true, messaging.KeepRunning
	}
	return s.cnf(msg, ChargeStateCnf{State: state.String()})
}

func (s *Server) handlePerformCalAll(msg messaging.Message) (messaging.Message, bool, messaging.ReturnCode) {
	for _, b := range batteryTable {
		if _, err := s.batteries[b.role].PerformCal(); err != nil {
			reply, _, _ := s.errCnf(msg, fmt.Errorf("calibrating %s: %w", b.role, err))
			return reply, true, messaging.KeepRunning
		}
	}
	return messaging.Message{Type: msg.Type}, true, messaging.KeepRunning
}

func (s *Server) handleSendOString(msg messaging.Message) (messaging.Message, bool, messaging.ReturnCode) {
	var req SendOStringReq
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		reply, _, _ := s.errCnf(msg, err)
		return reply, true, messaging.KeepRunning
	}

	link, err := hindbrain.Open(s.hindbrainDevice)
	if err != nil {
		reply, _, _ := s.errCnf(msg, err)
		return reply, true, messaging.KeepRunning
	}
	defer link.Close()

	response, err := link.Send(req.Request, req.WaitForResponse)
	if err != nil {
		reply, _, _ := s.errCnf(msg, err)
		return reply, true, messaging.KeepRunning
	}
	return s.cnf(msg, SendOStringCnf{Response: response})
}

// handleBatteryOp checks msg against every battery's operation set and
// dispatches to the matching onewire.DS2438 call, returning handled=false
// if msg.Type belongs to none of them.
func (s *Server) handleBatteryOp(msg messaging.Message) (messaging.Message, bool) {
	for _, b := range batteryTable {
		device := s.batteries[b.role]
		switch msg.Type {
		case b.readCurrent:
			reply, _, _ := s.replyS16FromFunc(msg, device.ReadCurrent)
			return reply, true
		case b.readVoltage:
			reply, _, _ := s.replyU16FromFunc(msg, func() (uint16, error) { return device.ReadVad() })
			return reply, true
		case b.readCapacity:
			reply, _, _ := s.replyU16FromFunc(msg, func() (uint16, error) {
				cal, err := device.ReadTimeCapacityCal()
				return cal.RemainingCapacityMAh, err
			})
			return reply, true
		case b.readChargeDischarge:
			cd, err := device.ReadNVChargeDischarge()
			if err != nil {
				reply, _, _ := s.errCnf(msg, err)
				return reply, true
			}
			reply, _, _ := s.cnf(msg, ChargeDischargeCnf{ChargeMAh: cd.ChargeMAh, DischargeMAh: cd.DischargeMAh})
			return reply, true
		case b.readTemperature:
			reply, _, _ := s.replyF64FromFunc(msg, device.ReadTemperature)
			return reply, true
		case b.performCal:
			if _, err := device.PerformCal(); err != nil {
				reply, _, _ := s.errCnf(msg, err)
				return reply, true
			}
			return messaging.Message{Type: msg.Type}, true
		case b.chargerOn:
			err := s.batteryCharger.SetPins(b.chargerPin, b.chargerPin)
			reply, _, _ := s.okOrErr(msg, err)
			return reply, true
		case b.chargerOff:
			err := s.batteryCharger.SetPins(b.chargerPin, 0)
			reply, _, _ := s.okOrErr(msg, err)
			return reply, true
		case b.readCharger:
			reply, _, _ := s.replyPinIsSet(msg, s.batteryCharger, b.chargerPin)
			return reply, true
		case b.swap:
			reply, _, _ := s.handleSwap(msg, device)
			return reply, true
		}
	}
	return messaging.Message{}, false
}

func (s *Server) handleSwap(msg messaging.Message, device onewire.DS2438) (messaging.Message, bool, messaging.ReturnCode) {
	var req BatterySwapData
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		return s.errCnf(msg, err)
	}
	if err := device.InitTimeCapacity(req.InitialCapacityMAh); err != nil {
		return s.errCnf(msg, err)
	}
	if err := device.WriteNVChargeDischarge(onewire.ChargeDischarge{}); err != nil {
		return s.errCnf(msg, err)
	}
	return messaging.Message{Type: msg.Type}, true, messaging.KeepRunning
}

// --- reply helpers ---

func (s *Server) cnf(msg messaging.Message, body any) (messaging.Message, bool, messaging.ReturnCode) {
	b, err := json.Marshal(body)
	if err != nil {
		return s.errCnf(msg, err)
	}
	return messaging.Message{Type: msg.Type, Body: b}, true, messaging.KeepRunning
}

func (s *Server) errCnf(msg messaging.Message, err error) (messaging.Message, bool, messaging.ReturnCode) {
	s.logger.Warning("hardwareserver: message %d failed: %v", msg.Type, err)
	b, _ := json.Marshal(ErrCnf{Error: err.Error()})
	return messaging.Message{Type: msg.Type, Body: b}, true, messaging.KeepRunning
}

func (s *Server) okOrErr(msg messaging.Message, err error) (messaging.Message, bool, messaging.ReturnCode) {
	if err != nil {
		return s.errCnf(msg, err)
	}
	return messaging.Message{Type: msg.Type}, true, messaging.KeepRunning
}

func (s *Server) replyEmpty(msg messaging.Message, fn func() error) (messaging.Message, bool, messaging.ReturnCode) {
	return s.okOrErr(msg, fn())
}

func (s *Server) replyBool(msg messaging.Message, fn func() (bool, error)) (messaging.Message, bool, messaging.ReturnCode) {
	v, err := fn()
	if err != nil {
		return s.errCnf(msg, err)
	}
	return s.cnf(msg, BoolCnf{Value: v})
}

func (s *Server) replyPinIsSet(msg messaging.Message, shadow *onewire.PinShadow, pin byte) (messaging.Message, bool, messaging.ReturnCode) {
	pins, err := shadow.ReadPins()
	if err != nil {
		return s.errCnf(msg, err)
	}
	return s.cnf(msg, BoolCnf{Value: pins&pin != 0})
}

func (s *Server) replyU8(msg messaging.Message, fn func() (byte, error)) (messaging.Message, bool, messaging.ReturnCode) {
	v, err := fn()
	if err != nil {
		return s.errCnf(msg, err)
	}
	return s.cnf(msg, U8Cnf{Value: v})
}

func (s *Server) replyU16FromFunc(msg messaging.Message, fn func() (uint16, error)) (messaging.Message, bool, messaging.ReturnCode) {
	v, err := fn()
	if err != nil {
		return s.errCnf(msg, err)
	}
	return s.cnf(msg, U16Cnf{Value: v})
}

func (s *Server) replyS16FromFunc(msg messaging.Message, fn func() (int16, error)) (messaging.Message, bool, messaging.ReturnCode) {
	v, err := fn()
	if err != nil {
		return s.errCnf(msg, err)
	}
	return s.cnf(msg, S16Cnf{Value: v})
}

func (s *Server) replyF64FromFunc(msg messaging.Message, fn func() (float64, error)) (messaging.Message, bool, messaging.ReturnCode) {
	v, err := fn()
	if err != nil {
		return s.errCnf(msg, err)
	}
	return s.cnf(msg, F64Cnf{Value: v})
}
