package batterymanager

import "testing"

// spec.md §8: "Given a sequence of samples monotonically decreasing from
// 2500 mAh down to 1700 mAh with temperature constant at 25°C and
// charging permitted, the charger-on edge is emitted exactly once, at
// the first sample below 2000 mAh."
func TestChargerOnEdgeFiresOnceWhenDischarging(t *testing.T) {
	c := &container{}
	edges := 0
	var lastOn bool
	for capacity := 2500; capacity >= 1700; capacity-- {
		on, changed := c.updateStatus(BatteryData{RemainingCapacityMAh: uint16(capacity), TemperatureC: 25}, minimumChargeChargingPermitted)
		if changed && on {
			edges++
			lastOn = on
		}
	}
	if edges != 1 {
		t.Fatalf("charger-on edges = %d, want 1", edges)
	}
	if !lastOn {
		t.Fatalf("final edge did not demand charger on")
	}
}

// spec.md §8: reverse sequence, charger-off edge emitted exactly once at
// the first sample strictly above 2150; no transition between 2100 and
// 2150.
func TestChargerOffEdgeFiresOnceWhenCharging(t *testing.T) {
	c := &container{}
	// Seed at 1700 so the battery starts in the insufficient-charge,
	// charger-on state before the ascending sweep begins.
	c.updateStatus(BatteryData{RemainingCapacityMAh: 1700, TemperatureC: 25}, minimumChargeChargingPermitted)

	offEdges := 0
	for capacity := 1700; capacity <= 2500; capacity++ {
		_, changed := c.updateStatus(BatteryData{RemainingCapacityMAh: uint16(capacity), TemperatureC: 25}, minimumChargeChargingPermitted)
		if changed && !c.status.ChargerOn {
			offEdges++
			if capacity <= 2150 {
				t.Errorf("charger-off edge at capacity=%d, want strictly above 2150", capacity)
			}
		}
	}
	if offEdges != 1 {
		t.Fatalf("charger-off edges = %d, want 1", offEdges)
	}
}

func TestOverTemperatureForcesChargerOff(t *testing.T) {
	c := &container{}
	c.updateStatus(BatteryData{RemainingCapacityMAh: 1000, TemperatureC: 25}, minimumChargeChargingPermitted)
	if !c.status.ChargerOn {
		t.Fatalf("setup: expected charger on before over-temp sample")
	}

	on, changed := c.updateStatus(BatteryData{RemainingCapacityMAh: 1000, TemperatureC: 60}, minimumChargeChargingPermitted)
	if on {
		t.Errorf("charger demanded on at 60C, want off")
	}
	if !changed {
		t.Errorf("expected a change when over-temperature forces charger off")
	}
	if !c.status.OverTemperature {
		t.Errorf("OverTemperature flag not set")
	}
}

func TestFullyChargedAndInsufficientChargeAreMutuallyExclusive(t *testing.T) {
	c := &container{}
	c.updateStatus(BatteryData{RemainingCapacityMAh: 2500, TemperatureC: 25}, minimumChargeChargingPermitted)
	if c.status.FullyCharged && c.status.InsufficientCharge {
		t.Fatalf("status = %+v: both flags true", c.status)
	}

	c.updateStatus(BatteryData{RemainingCapacityMAh: 1000, TemperatureC: 25}, minimumChargeChargingPermitted)
	if c.status.FullyCharged && c.status.InsufficientCharge {
		t.Fatalf("status = %+v: both flags true", c.status)
	}
}
