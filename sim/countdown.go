package sim

// Countdown implements core.CountdownTimer, recording every load instead
// of burning cycles. The default reload ceiling matches a 24-bit SysTick.
type Countdown struct {
	maxLoad uint32
	loads   []uint32
}

func NewCountdown() *Countdown {
	return &Countdown{maxLoad: 0xFFFFFF}
}

func (c *Countdown) MaxLoad() uint32 {
	return c.maxLoad
}

func (c *Countdown) Countdown(load uint32) {
	c.loads = append(c.loads, load)
}

// SetMaxLoad overrides the reload ceiling for factor edge cases.
func (c *Countdown) SetMaxLoad(max uint32) {
	c.maxLoad = max
}

// Loads returns every load armed so far, in order.
func (c *Countdown) Loads() []uint32 {
	return c.loads
}

// ClearLoads empties the record.
func (c *Countdown) ClearLoads() {
	c.loads = c.loads[:0]
}
