//go:build stm32f103

package bluepill

import "machine"

// TickOut toggles a pin once per millisecond tick, giving external test
// gear a 500 Hz square wave to audit the time base against. A reference
// counter sees 1000 edges per second regardless of the core frequency.
type TickOut struct {
	pin   machine.Pin
	state bool
}

func NewTickOut(pin machine.Pin) *TickOut {
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pin.Low()
	return &TickOut{pin: pin}
}

// HandleTick runs in interrupt context; register it on the time base.
func (t *TickOut) HandleTick(now uint32) {
	t.state = !t.state
	t.pin.Set(t.state)
}
