package statemachine

import (
	"encoding/json"
	"time"

	"roboone/internal/hardwareserver"
	"roboone/internal/hindbrain"
	"roboone/internal/messaging"
)

// oStartDelay mirrors actions.c's O_START_DELAY_US (100000us = 100ms): the
// settle time between toggling the Hindbrain's power relay and pinging it.
const oStartDelay = 100 * time.Millisecond

func (c *Context) call(msgType messaging.MsgType, body any) (messaging.Message, error) {
	var b []byte
	if body != nil {
		var err error
		b, err = json.Marshal(body)
		if err != nil {
			return messaging.Message{}, err
		}
	}
	return messaging.Call(c.hardwarePort, messaging.Message{Type: msgType, Body: b}, true)
}

func (c *Context) isMains12VAvailable() bool {
	reply, err := c.call(hardwareserver.MsgReadMains12V, nil)
	if err != nil {
		return false
	}
	var cnf hardwareserver.BoolCnf
	if json.Unmarshal(reply.Body, &cnf) != nil {
		return false
	}
	return cnf.Value
}

// enableAllRelays / disableAllRelays mirror actions.c's
// actionEnableAllRelays/actionDisableAllRelays: a single call apiece,
// on-PCB and external banks both.
func (c *Context) enableAllRelays() {
	c.call(hardwareserver.MsgEnableOnPCBRelays, nil)
	c.call(hardwareserver.MsgEnableExternalRelays, nil)
}

func (c *Context) disableAllRelays() {
	c.call(hardwareserver.MsgDisableOnPCBRelays, nil)
	c.call(hardwareserver.MsgDisableExternalRelays, nil)
}

// pingHindbrain asks the Hardware Server (sole owner of the Hindbrain
// tty) to send the liveness ping and checks for an "OK" response
// (actions.c: PING_STRING "!\n" / O_CHECK_OK_STRING).
func (c *Context) pingHindbrain() bool {
	reply, err := c.call(hardwareserver.MsgSendOString, hardwareserver.SendOStringReq{
		Request:         hindbrain.PingString,
		WaitForResponse: true,
	})
	if err != nil {
		return false
	}
	var cnf hardwareserver.SendOStringCnf
	if json.Unmarshal(reply.Body, &cnf) != nil {
		return false
	}
	return hindbrain.CheckOK(cnf.Response)
}

func (c *Context) toggleOPwr() {
	c.call(hardwareserver.MsgToggleOPwr, nil)
}

// switchOnHindbrain toggles O_PWR and pings, up to twice, matching
// actions.c's actionSwitchOnHindbrain: "Do this twice in case the
// Hindbrain is already on and the first toggle switches it off."
func (c *Context) switchOnHindbrain() bool {
	for i := 0; i < 2; i++ {
		c.toggleOPwr()
		time.Sleep(oStartDelay)
		if c.pingHindbrain() {
			return true
		}
	}
	return false
}

// switchOffHindbrain mirrors actionSwitchOffHindbrain: the mirror-image
// expectation, success means the ping now fails.
func (c *Context) switchOffHindbrain() bool {
	for i := 0; i < 2; i++ {
		c.toggleOPwr()
		time.Sleep(oStartDelay)
		if !c.pingHindbrain() {
			return true
		}
	}
	return false
}

func (c *Context) switchPiRioTo12VMainsPower() {
	c.call(hardwareserver.MsgSetRioPwr12VOn, nil)
	c.call(hardwareserver.MsgSetRioPwrBattOff, nil)
}

func (c *Context) switchPiRioToBatteryPower() {
	c.call(hardwareserver.MsgSetRioPwrBattOn, nil)
	c.call(hardwareserver.MsgSetRioPwr12VOff, nil)
}

// switchHindbrainTo12VMainsPower switches the Hindbrain's power-source
// relay to mains then re-establishes contact (actions.c:
// actionSwitchHindbrainTo12VMainsPower).
func (c *Context) switchHindbrainTo12VMainsPower() bool {
	c.call(hardwareserver.MsgSetOPwr12VOn, nil)
	c.call(hardwareserver.MsgSetOPwrBattOff, nil)
	return c.switchOnHindbrain()
}

func (c *Context) switchHindbrainToBatteryPower() bool {
	c.call(hardwareserver.MsgSetOPwrBattOn, nil)
	c.call(hardwareserver.MsgSetOPwr12VOff, nil)
	return c.switchOnHindbrain()
}
