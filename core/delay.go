package core

// CountdownTimer is the hardware down-counter used for blocking delays,
// clocked at one eighth of the core frequency (SysTick with the reference
// clock source, or an equivalent).
type CountdownTimer interface {
	// MaxLoad returns the largest value the counter accepts (2^24-1 for a
	// 24-bit SysTick).
	MaxLoad() uint32

	// Countdown loads the counter and busy-waits until it underflows.
	// load must not exceed MaxLoad.
	Countdown(load uint32)
}

// Delay provides blocking microsecond/millisecond delays scaled to the
// current core frequency, plus non-blocking deadline checks against the
// millisecond tick. After a frequency switch, Reconfig rescales the delay
// factors so durations stay correct.
type Delay struct {
	cd          CountdownTimer
	tb          *TimeBase
	facUs       uint32 // countdown clocks per microsecond
	facMs       uint32 // countdown clocks per millisecond
	maxUs       uint32 // largest single countdown, in microseconds
	maxMs       uint32 // largest single countdown, in milliseconds
	initialized bool
}

// NewDelay returns a Delay over the given countdown hardware and time base.
func NewDelay(cd CountdownTimer, tb *TimeBase) *Delay {
	return &Delay{cd: cd, tb: tb}
}

// Init derives the scale factors for coreFreqHz and brings up the time base
// at that frequency. The countdown clock runs at core/8; a core below 8 MHz
// would give a zero microsecond factor and no usable delay resolution, so
// that case panics rather than returning garbage timing.
func (d *Delay) Init(coreFreqHz uint32) error {
	facUs := coreFreqHz / 8000000
	facMs := coreFreqHz / 8000
	if facUs == 0 || facMs == 0 {
		panic("delay: core frequency below countdown resolution")
	}
	if err := d.tb.Reconfig(coreFreqHz); err != nil {
		return err
	}
	d.facUs = facUs
	d.facMs = facMs
	d.maxUs = d.cd.MaxLoad()/facUs - 1
	d.maxMs = d.cd.MaxLoad()/facMs - 1
	d.initialized = true
	return nil
}

// Initialized reports whether Init has completed.
func (d *Delay) Initialized() bool {
	return d.initialized
}

// Reconfig rescales the delay factors after a core frequency change and
// forwards the new frequency to the time base. Called after every
// successful frequency switch. On an uninitialized Delay it behaves like
// Init.
func (d *Delay) Reconfig(coreFreqHz uint32) error {
	return d.Init(coreFreqHz)
}

// Us busy-waits for us microseconds. Requests beyond the largest single
// countdown are clamped to it. No-op before Init.
func (d *Delay) Us(us uint32) {
	if !d.initialized || us == 0 {
		return
	}
	if us > d.maxUs {
		us = d.maxUs
	}
	d.cd.Countdown(us * d.facUs)
}

// Ms busy-waits for ms milliseconds, splitting requests that exceed the
// largest single countdown into back-to-back full countdowns. No-op before
// Init.
func (d *Delay) Ms(ms uint32) {
	if !d.initialized || ms == 0 {
		return
	}
	for ms > d.maxMs {
		d.cd.Countdown(d.maxMs * d.facMs)
		ms -= d.maxMs
	}
	d.cd.Countdown(ms * d.facMs)
}

// Seconds busy-waits for s seconds as repeated one-second delays.
func (d *Delay) Seconds(s uint32) {
	for ; s > 0; s-- {
		d.Ms(1000)
	}
}

// Expired reports whether ms milliseconds have passed since startTick. A
// startTick of 0 means "never started" and always reads as expired (see
// Elapsed).
func (d *Delay) Expired(startTick, ms uint32) bool {
	return Elapsed(d.tb.Tick(), startTick) >= ms
}

// Tick returns the current millisecond tick.
func (d *Delay) Tick() uint32 {
	return d.tb.Tick()
}
