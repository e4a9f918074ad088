package supervisor

import (
	"context"
	"time"

	"roboone/internal/batterymanager"
	"roboone/internal/core"
	"roboone/internal/hardwareserver"
	"roboone/internal/onewire"
	"roboone/internal/statemachine"
	"roboone/internal/taskhandler"
)

// sampleInterval is how often the display loop polls the Hardware
// Server for fresh battery readings and ticks the Task Handler.
const sampleInterval = time.Second

// batteryRoles are the four monitored batteries the display loop cycles
// through every tick (spec.md §2: "data flow ... polls the Hardware
// Server for sensor samples, feeds samples to the Battery Manager").
var batteryRoles = []onewire.DeviceRole{
	onewire.RoleRioBatteryMonitor,
	onewire.RoleO1BatteryMonitor,
	onewire.RoleO2BatteryMonitor,
	onewire.RoleO3BatteryMonitor,
}

// displayLoop is the Supervisor's runtime heartbeat: it does not render
// anything itself (the curses dashboard is out of scope, spec.md §1),
// but it is the component that would feed one, so it logs each cycle's
// derived state the way a headless build of the teacher's display
// collaborator would.
type displayLoop struct {
	cfg    *core.Config
	logger *core.Logger
}

func newDisplayLoop(cfg *core.Config, logger *core.Logger) *displayLoop {
	return &displayLoop{cfg: cfg, logger: logger}
}

// Run drives the sample/feed/tick/poll cycle until ctx is cancelled
// (spec.md §2's data-flow paragraph).
func (d *displayLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.cycle()
		}
	}
}

func (d *displayLoop) cycle() {
	for _, role := range batteryRoles {
		reading, err := hardwareserver.ReadBattery(d.cfg.Ports.Hardware, role)
		if err != nil {
			d.logger.Warning("reading %s: %v", role, err)
			continue
		}

		status, err := batterymanager.SendData(d.cfg.Ports.BatteryManager, role, batterymanager.BatteryData{
			CurrentMA:            reading.CurrentMA,
			VoltageMV:            reading.VoltageMV,
			RemainingCapacityMAh: reading.RemainingCapacityMAh,
			TemperatureC:         reading.TemperatureC,
			LifetimeChargeMAh:    reading.LifetimeChargeMAh,
			LifetimeDischargeMAh: reading.LifetimeDischargeMAh,
		})
		if err != nil {
			d.logger.Warning("feeding %s sample to battery manager: %v", role, err)
			continue
		}
		if status.OverTemperature || status.InsufficientCharge {
			d.logger.Warning("%s: charger_on=%v insufficient_charge=%v over_temperature=%v",
				role, status.ChargerOn, status.InsufficientCharge, status.OverTemperature)
		}
	}

	if err := taskhandler.SendTick(d.cfg.Ports.TaskHandler); err != nil {
		d.logger.Warning("ticking task handler: %v", err)
	}

	cnf, err := statemachine.GetContext(d.cfg.Ports.StateMachine)
	if err != nil {
		d.logger.Warning("polling state machine context: %v", err)
		return
	}
	d.logger.Info("state=%s", cnf.StateName)
}
