package batterymanager

// Thresholds driving the per-battery hysteresis policy (spec.md §4.4 and
// battery_manager_server.c's MINIMUM_CHARGE_CHARGING_PERMITTED /
// MINIMUM_CHARGE_CHARGING_NOT_PERMITTED / FULL_CHARGE /
// CHARGE_HYSTERESIS / MAXIMUM_TEMPERATURE_C / TEMPERATURE_BROKEN_C /
// TEMPERATURE_HYSTERESIS_C).
const (
	minimumChargeChargingPermitted    uint16 = 2000
	minimumChargeChargingNotPermitted uint16 = 1800
	fullCharge                        uint16 = 2150
	chargeHysteresis                  uint16 = 100

	maximumTemperatureC  float64 = 60
	temperatureBrokenC   float64 = -20
	temperatureHysteresisC float64 = 10
)

// container is one battery's last-sampled data plus derived status
// (spec.md §3: "Owns four Battery-Container records").
type container struct {
	updated bool
	status  Status
	data    BatteryData
}

// updateStatus runs the five-step decision spec.md §4.4 lays out, in
// order, and reports whether the demanded charger state actually
// changed from the prior commanded state (the trigger for step 5's
// "issue a command now").
//
// insufficientChargeThreshold is 1800 or 2000 depending on whether
// charging is globally permitted (battery_manager_server.c switches the
// threshold the same way in actionBatteryManagerChargingPermitted).
func (c *container) updateStatus(data BatteryData, insufficientChargeThreshold uint16) (demandChargerOn bool, changed bool) {
	prevChargerOn := c.status.ChargerOn
	s := c.status
	c.data = data
	c.updated = true

	switch {
	case data.TemperatureC >= maximumTemperatureC:
		// Step 1: over-temperature forces the charger off regardless of
		// capacity (spec.md §4.4 step 1 says "> 60"; §8's testable
		// property tightens this to "≥ 60 °C forces charger-off", which
		// this follows).
		s.OverTemperature = true
		s.ChargerOn = false

	case s.OverTemperature && data.TemperatureC < 50:
		// Step 2: clear over-temp with its own hysteresis band, then fall
		// through to re-evaluate charge state below.
		s.OverTemperature = false
		s.ChargerOn = evaluateCharge(&s, data.RemainingCapacityMAh, insufficientChargeThreshold)

	case data.TemperatureC < temperatureBrokenC:
		// Step 3: a broken temperature sensor also forces the charger
		// off — the manager cannot trust the capacity reading enough to
		// charge safely.
		s.TemperatureBroken = true
		s.ChargerOn = false

	case s.TemperatureBroken && data.TemperatureC > temperatureBrokenC+temperatureHysteresisC:
		s.TemperatureBroken = false
		s.ChargerOn = evaluateCharge(&s, data.RemainingCapacityMAh, insufficientChargeThreshold)

	case s.OverTemperature || s.TemperatureBroken:
		// Still outside the hysteresis band that would clear the fault;
		// charger stays off.
		s.ChargerOn = false

	default:
		// Step 4: neither temperature fault is active — hysteresis on
		// capacity decides.
		s.ChargerOn = evaluateCharge(&s, data.RemainingCapacityMAh, insufficientChargeThreshold)
	}

	c.status = s
	return s.ChargerOn, s.ChargerOn != prevChargerOn
}

// evaluateCharge updates s.InsufficientCharge/FullyCharged with
// hysteresis and returns the demanded charger state (spec.md §4.4 step
// 4). s.FullyCharged and s.InsufficientCharge are kept mutually
// exclusive (spec.md §3 invariant).
func evaluateCharge(s *Status, remainingMAh uint16, insufficientChargeThreshold uint16) bool {
	switch {
	case remainingMAh < insufficientChargeThreshold:
		s.InsufficientCharge = true
		s.FullyCharged = false
	case s.InsufficientCharge && remainingMAh >= insufficientChargeThreshold+chargeHysteresis:
		s.InsufficientCharge = false
	}

	switch {
	case remainingMAh > fullCharge:
		s.FullyCharged = true
		s.InsufficientCharge = false
	case s.FullyCharged && remainingMAh <= fullCharge-chargeHysteresis:
		s.FullyCharged = false
	}

	if s.InsufficientCharge {
		return true
	}
	if s.FullyCharged {
		return false
	}
	return s.ChargerOn
}
