package statemachine

import "roboone/internal/taskhandler"

// The state set is not named verbatim anywhere in spec.md or the
// filtered original_source (state_machine_server.c only lists the event
// methods every state must expose, not the states themselves — the
// individual per-state source files were not part of the retrieved
// pack). It is built from the shared action helpers actions.c does
// define (actionSwitchOnHindbrain, actionSwitchPiRioTo12VMainsPower,
// etc — see actions.go) and the event list spec.md §4.7 requires every
// state to be able to receive, arranged into the lifecycle spec.md §1
// describes: power up, run, shed load when low on power, recharge,
// submit tasks, shut down.

// The per-state event handlers are assigned in init() below rather than
// in these composite literals: handlers for different states refer to
// each other's transitionTo* helpers, which close over the state vars
// themselves, and Go's package-init dependency analysis treats those
// closures as dependencies even though they only run later — declaring
// the literals here and wiring the cyclic handlers in init() keeps the
// exact same runtime behavior while avoiding that initialization cycle.
var stateInit = &State{
	Name: "Init",
}

var statePoweringUp = &State{
	Name: "PoweringUp",
}

var stateRunning = &State{
	Name: "Running",
}

var stateCharging = &State{
	Name: "Charging",
}

var stateInsufficientPower = &State{
	Name: "InsufficientPower",
}

var stateShuttingDown = &State{
	Name: "ShuttingDown",
}

var stateOff = &State{
	Name: "Off",
}

var stateFailed = &State{
	Name: "Failed",
}

func init() {
	stateInit.Init = func(c *Context) {
		transitionToPoweringUp(c)
	}

	statePoweringUp.OnEnter = func(c *Context) {
		c.enableAllRelays()
		if c.isMains12VAvailable() {
			c.switchPiRioTo12VMainsPower()
			if c.switchHindbrainTo12VMainsPower() {
				transitionToRunning(c)
				return
			}
		} else {
			c.switchPiRioToBatteryPower()
			if c.switchOnHindbrain() {
				transitionToRunning(c)
				return
			}
		}
		transitionToFailed(c)
	}
	statePoweringUp.InitFailure = func(c *Context) { transitionToFailed(c) }
	statePoweringUp.MainsPowerAvailable = func(c *Context) { transitionToPoweringUp(c) }
	statePoweringUp.InsufficientPower = func(c *Context) { transitionToInsufficientPower(c) }

	stateRunning.TasksAvailable = func(c *Context, req taskhandler.TaskReq) {
		if err := taskhandler.SendNewTask(c.taskHandlerPort, req); err != nil {
			c.logger.Warning("statemachine: submitting task: %v", err)
		}
	}
	stateRunning.MainsPowerAvailable = func(c *Context) {
		c.switchPiRioTo12VMainsPower()
		c.switchHindbrainTo12VMainsPower()
	}
	stateRunning.InsufficientPower = func(c *Context) {
		transitionToInsufficientPower(c)
	}
	stateRunning.InsufficientCharge = func(c *Context) {
		transitionToCharging(c)
	}
	stateRunning.FullyCharged = func(c *Context) {
		// Already running on whatever power path is available; nothing
		// to change on a fully-charged edge received while Running.
	}
	stateRunning.Shutdown = func(c *Context) {
		transitionToShuttingDown(c)
	}

	stateCharging.OnEnter = func(c *Context) {
		c.switchPiRioTo12VMainsPower()
		c.switchHindbrainTo12VMainsPower()
	}
	stateCharging.FullyCharged = func(c *Context) {
		transitionToRunning(c)
	}
	stateCharging.InsufficientPower = func(c *Context) {
		transitionToInsufficientPower(c)
	}
	stateCharging.Shutdown = func(c *Context) {
		transitionToShuttingDown(c)
	}

	stateInsufficientPower.OnEnter = func(c *Context) {
		c.switchPiRioToBatteryPower()
		c.switchHindbrainToBatteryPower()
	}
	stateInsufficientPower.MainsPowerAvailable = func(c *Context) {
		transitionToPoweringUp(c)
	}
	stateInsufficientPower.InsufficientCharge = func(c *Context) {
		transitionToShuttingDown(c)
	}
	stateInsufficientPower.Shutdown = func(c *Context) {
		transitionToShuttingDown(c)
	}

	stateShuttingDown.OnEnter = func(c *Context) {
		c.switchOffHindbrain()
		c.disableAllRelays()
		transitionToOff(c)
	}
}

func transitionToInit(c *Context)               { c.transitionTo(stateInit) }
func transitionToPoweringUp(c *Context)          { c.transitionTo(statePoweringUp) }
func transitionToRunning(c *Context)             { c.transitionTo(stateRunning) }
func transitionToCharging(c *Context)            { c.transitionTo(stateCharging) }
func transitionToInsufficientPower(c *Context)   { c.transitionTo(stateInsufficientPower) }
func transitionToShuttingDown(c *Context)        { c.transitionTo(stateShuttingDown) }
func transitionToOff(c *Context)                 { c.transitionTo(stateOff) }
func transitionToFailed(c *Context)              { c.transitionTo(stateFailed) }
