package batterymanager

import (
	"encoding/json"
	"sync"

	"roboone/internal/core"
	"roboone/internal/hardwareserver"
	"roboone/internal/messaging"
	"roboone/internal/statemachine"
	"roboone/internal/timerserver"
)

// sendMsgOffsetDurationDeciseconds is the inter-command spacing timer
// duration (spec.md §4.4: "a single inter-command timer of 2 s
// (SEND_MSG_OFFSET_DURATION_DECISECONDS = 20)").
const sendMsgOffsetDurationDeciseconds = 20

// battery names the four containers the manager owns.
type battery int

const (
	batteryRio battery = iota
	batteryO1
	batteryO2
	batteryO3
)

// entry ties a battery to its incoming DATA message type and the
// Hardware Server charger on/off messages that control it — the same
// uniform-dispatch-table idiom internal/hardwareserver's batteryTable
// uses, so the four near-identical per-battery code paths in
// battery_manager_server.c (setRioChargerStatus/setO1ChargerStatus/...)
// collapse into one table-driven implementation.
type entry struct {
	battery    battery
	dataMsg    messaging.MsgType
	chargerOn  messaging.MsgType
	chargerOff messaging.MsgType
}

var batteryTable = []entry{
	{battery: batteryRio, dataMsg: MsgDataRio, chargerOn: hardwareserver.MsgSetRioBatteryChargerOn, chargerOff: hardwareserver.MsgSetRioBatteryChargerOff},
	{battery: batteryO1, dataMsg: MsgDataO1, chargerOn: hardwareserver.MsgSetO1BatteryChargerOn, chargerOff: hardwareserver.MsgSetO1BatteryChargerOff},
	{battery: batteryO2, dataMsg: MsgDataO2, chargerOn: hardwareserver.MsgSetO2BatteryChargerOn, chargerOff: hardwareserver.MsgSetO2BatteryChargerOff},
	{battery: batteryO3, dataMsg: MsgDataO3, chargerOn: hardwareserver.MsgSetO3BatteryChargerOn, chargerOff: hardwareserver.MsgSetO3BatteryChargerOff},
}

// Server is the Battery Manager's process state.
type Server struct {
	logger *core.Logger

	thisPort         int
	hardwarePort     int
	timerPort        int
	stateMachinePort int

	mu                          sync.Mutex
	containers                  map[battery]*container
	chargingPermitted           bool
	insufficientChargeThreshold uint16
	allFullyCharged             bool
	allInsufficientCharge       bool

	// queue holds pending hardware charger commands awaiting their turn
	// through the inter-command timer (spec.md §4.4: "the manager
	// maintains a command queue and a single inter-command timer").
	// running tracks whether the spacing timer is currently running
	// independently of queue length: dispatchNext pops its command off
	// queue at dispatch time, not at timer expiry, so an empty queue
	// between dispatch and expiry does not mean enqueue may fire
	// immediately (battery_manager_server.c's gTimerRunning).
	queue       []messaging.MsgType
	running     bool
	timerID     uint32
	nextTimerID uint32
}

// NewServer builds an idle Battery Manager. thisPort is the port this
// server itself listens on (needed so its own TIMER_EXPIRY messages
// route back here).
func NewServer(thisPort, hardwarePort, timerPort, stateMachinePort int, logger *core.Logger) *Server {
	return &Server{
		logger:                      logger,
		thisPort:                    thisPort,
		hardwarePort:                hardwarePort,
		timerPort:                   timerPort,
		stateMachinePort:            stateMachinePort,
		containers:                  map[battery]*container{batteryRio: {}, batteryO1: {}, batteryO2: {}, batteryO3: {}},
		chargingPermitted:           true,
		insufficientChargeThreshold: minimumChargeChargingPermitted,
	}
}

// Handle implements messaging.Handler.
func (s *Server) Handle(msg messaging.Message) (messaging.Message, bool, messaging.ReturnCode) {
	for _, e := range batteryTable {
		if msg.Type == e.dataMsg {
			return s.handleData(msg, e)
		}
	}

	switch msg.Type {
	case MsgServerStart:
		s.logger.Info("batterymanager: started")
		return messaging.Message{Type: msg.Type}, true, messaging.KeepRunning

	case MsgServerStop:
		s.mu.Lock()
		s.queue = nil
		s.running = false
		s.mu.Unlock()
		return messaging.Message{Type: msg.Type}, true, messaging.ExitNormally

	case MsgChargingPermitted:
		var req ChargingPermittedReq
		if err := json.Unmarshal(msg.Body, &req); err != nil {
			s.logger.Warning("batterymanager: malformed charging-permitted request: %v", err)
			return messaging.Message{Type: msg.Type}, true, messaging.KeepRunning
		}
		s.handleChargingPermitted(req.Permitted)
		return messaging.Message{Type: msg.Type}, true, messaging.KeepRunning

	case MsgTimerExpiry:
		s.handleTimerExpiry()
		return messaging.Message{}, false, messaging.KeepRunning

	default:
		s.logger.Warning("batterymanager: unrecognised message type %d", msg.Type)
		return messaging.Message{Type: msg.Type}, true, messaging.KeepRunning
	}
}

func (s *Server) handleData(msg messaging.Message, e entry) (messaging.Message, bool, messaging.ReturnCode) {
	var data BatteryData
	if err := json.Unmarshal(msg.Body, &data); err != nil {
		s.logger.Warning("batterymanager: malformed battery data: %v", err)
		return messaging.Message{Type: msg.Type}, true, messaging.KeepRunning
	}

	s.mu.Lock()
	c := s.containers[e.battery]
	demandOn, changed := c.updateStatus(data, s.insufficientChargeThreshold)
	status := c.status
	s.mu.Unlock()

	if changed {
		if demandOn {
			s.enqueue(e.chargerOn)
		} else {
			s.enqueue(e.chargerOff)
		}
	}

	s.signalChargeStateAll()

	body, _ := json.Marshal(status)
	return messaging.Message{Type: msg.Type, Body: body}, true, messaging.KeepRunning
}

// signalChargeStateAll recomputes the cross-battery aggregate flags and,
// on a rising edge of either, notifies the State Machine (spec.md §4.4:
// "on rising edges of either flag it sends
// STATE_MACHINE_EVENT_FULLY_CHARGED or
// STATE_MACHINE_EVENT_INSUFFICIENT_CHARGE").
func (s *Server) signalChargeStateAll() {
	s.mu.Lock()
	allFully := true
	allInsufficient := true
	for _, c := range s.containers {
		if !c.updated {
			allFully = false
			allInsufficient = false
			break
		}
		if !c.status.FullyCharged {
			allFully = false
		}
		if !c.status.InsufficientCharge {
			allInsufficient = false
		}
	}
	fullyEdge := allFully && !s.allFullyCharged
	insufficientEdge := allInsufficient && !s.allInsufficientCharge
	s.allFullyCharged = allFully
	s.allInsufficientCharge = allInsufficient
	s.mu.Unlock()

	if fullyEdge {
		if err := statemachine.SendEvent(s.stateMachinePort, statemachine.MsgEventFullyCharged); err != nil {
			s.logger.Warning("batterymanager: signalling fully-charged: %v", err)
		}
	}
	if insufficientEdge {
		if err := statemachine.SendEvent(s.stateMachinePort, statemachine.MsgEventInsufficientCharge); err != nil {
			s.logger.Warning("batterymanager: signalling insufficient-charge: %v", err)
		}
	}
}

// handleChargingPermitted switches the insufficient-charge threshold
// (spec.md §4.4: "toggles between 1800...and 2000") and, when charging
// is revoked, forces every charger off immediately; when granted, it
// re-evaluates every battery against the new (higher) threshold
// (battery_manager_server.c's actionBatteryManagerChargingPermitted).
func (s *Server) handleChargingPermitted(permitted bool) {
	s.mu.Lock()
	s.chargingPermitted = permitted
	if permitted {
		s.insufficientChargeThreshold = minimumChargeChargingPermitted
	} else {
		s.insufficientChargeThreshold = minimumChargeChargingNotPermitted
	}
	s.mu.Unlock()

	if !permitted {
		for _, e := range batteryTable {
			s.enqueue(e.chargerOff)
		}
		return
	}

	for _, e := range batteryTable {
		s.mu.Lock()
		c := s.containers[e.battery]
		demandOn, _ := c.updateStatus(c.data, s.insufficientChargeThreshold)
		s.mu.Unlock()
		if demandOn {
			s.enqueue(e.chargerOn)
		} else {
			s.enqueue(e.chargerOff)
		}
	}
}

// enqueue adds a charger command to the spacing queue, dispatching it
// immediately if no inter-command timer is currently running (spec.md
// §4.4: "If no timer is running, the first command is dispatched and the
// timer started... on timer expiry the next queued command dispatches").
// Whether the timer is running is tracked by the dedicated running flag,
// not queue length: dispatchNext removes its command from the queue the
// moment it dispatches, well before the 2 s timer it started actually
// expires, so an empty queue during that window must not look idle.
func (s *Server) enqueue(msgType messaging.MsgType) {
	s.mu.Lock()
	timerRunning := s.running
	s.queue = append(s.queue, msgType)
	if !timerRunning {
		s.running = true
	}
	s.mu.Unlock()

	if !timerRunning {
		s.dispatchNext()
	}
}

// dispatchNext sends the head of the queue to the Hardware Server and
// starts the inter-command timer.
func (s *Server) dispatchNext() {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	msgType := s.queue[0]
	s.queue = s.queue[1:]
	s.nextTimerID++
	id := s.nextTimerID
	s.timerID = id
	s.mu.Unlock()

	if _, err := messaging.Call(s.hardwarePort, messaging.Message{Type: msgType}, true); err != nil {
		s.logger.Warning("batterymanager: dispatching charger command %d: %v", msgType, err)
	}

	payload, err := timerserver.NewPayload(MsgTimerExpiry, nil)
	if err != nil {
		s.logger.Warning("batterymanager: building timer payload: %v", err)
		return
	}
	if err := timerserver.SendStart(s.timerPort, timerserver.StartReq{
		ExpiryDeciseconds: sendMsgOffsetDurationDeciseconds,
		ID:                id,
		SourcePort:        s.thisPort,
		Payload:           payload,
	}); err != nil {
		s.logger.Warning("batterymanager: starting spacing timer: %v", err)
	}
}

// handleTimerExpiry dispatches the next queued command, if any (spec.md
// §4.4: "on timer expiry the next queued command dispatches and the
// timer restarts if more remain").
func (s *Server) handleTimerExpiry() {
	s.mu.Lock()
	empty := len(s.queue) == 0
	if empty {
		s.running = false
	}
	s.mu.Unlock()
	if empty {
		return
	}
	s.dispatchNext()
}
