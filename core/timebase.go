package core

import "sync/atomic"

// TickSource is the hardware behind the millisecond time base: a peripheral
// timer programmed to overflow once per millisecond at a given core
// frequency.
type TickSource interface {
	// Configure programs the source for a 1 ms period at the given core
	// frequency. It is called again after every frequency switch and must
	// not disturb any counter the time base itself maintains.
	Configure(coreFreqHz uint32) error

	// Start begins delivery. fire runs in interrupt context once per
	// millisecond.
	Start(fire func()) error
}

// TickHandler runs from the tick interrupt with the tick value after the
// increment. Handlers must be short and must not block.
type TickHandler func(now uint32)

// TimeBase maintains the frequency-invariant millisecond tick counter. The
// counter advances once per wall-clock millisecond regardless of the core
// frequency, survives frequency switches without reset, and wraps after
// TickMax milliseconds (about 49.7 days).
type TimeBase struct {
	src         TickSource
	freqHz      uint32
	tick        uint32 // atomic; written only by HandleInterrupt
	initialized bool
	handlers    []TickHandler
}

// NewTimeBase returns a time base over src for a core running at coreFreqHz.
func NewTimeBase(src TickSource, coreFreqHz uint32) *TimeBase {
	return &TimeBase{src: src, freqHz: coreFreqHz}
}

// Init programs the tick source for a 1 ms period and starts it. Calling
// Init on an initialized time base is a no-op.
func (tb *TimeBase) Init() error {
	if tb.initialized {
		return nil
	}
	if err := tb.src.Configure(tb.freqHz); err != nil {
		return err
	}
	if err := tb.src.Start(tb.HandleInterrupt); err != nil {
		return err
	}
	tb.initialized = true
	return nil
}

// Initialized reports whether Init has completed.
func (tb *TimeBase) Initialized() bool {
	return tb.initialized
}

// Tick returns the current millisecond tick. Safe from any context.
func (tb *TimeBase) Tick() uint32 {
	return atomic.LoadUint32(&tb.tick)
}

// Frequency returns the core frequency the tick source is programmed for.
func (tb *TimeBase) Frequency() uint32 {
	return tb.freqHz
}

// Reconfig reprograms the tick source after a core frequency change. The
// tick counter keeps its value: callers observe at most one stretched or
// shortened tick around the switch, never a reset. An uninitialized time
// base adopts the new frequency and initializes instead.
func (tb *TimeBase) Reconfig(coreFreqHz uint32) error {
	if !tb.initialized {
		tb.freqHz = coreFreqHz
		return tb.Init()
	}
	if err := tb.src.Configure(coreFreqHz); err != nil {
		return err
	}
	tb.freqHz = coreFreqHz
	return nil
}

// AddTickHandler registers fn to run from the tick interrupt after the
// counter increment. Registration order is invocation order. Intended for
// wiring at startup; masking covers a late registration racing the ISR.
func (tb *TimeBase) AddTickHandler(fn TickHandler) {
	state := disableInterrupts()
	tb.handlers = append(tb.handlers, fn)
	restoreInterrupts(state)
}

// HandleInterrupt is the tick interrupt body: it advances the counter and
// runs the registered handlers. Targets call it from the timer ISR; tests
// call it directly to step time.
func (tb *TimeBase) HandleInterrupt() {
	now := atomic.AddUint32(&tb.tick, 1)
	for _, fn := range tb.handlers {
		fn(now)
	}
}
