package core

import "sync/atomic"

// Mode selects how the governor picks frequency levels.
type Mode uint8

const (
	// ModeManual holds whatever level was last requested.
	ModeManual Mode = iota
	// ModeAuto lets the load policy move the level.
	ModeAuto
)

// String returns "manual" or "auto".
func (m Mode) String() string {
	switch m {
	case ModeManual:
		return "manual"
	case ModeAuto:
		return "auto"
	}
	return "mode" + utoa(uint32(m))
}

// Governor policy tuning. Times in milliseconds, loads in percent.
const (
	// LoadCheckIntervalMs gates how often AdaptiveTask evaluates the load.
	LoadCheckIntervalMs = 50
	// LoadHighThreshold is the load above which the governor ramps up.
	LoadHighThreshold = 50
	// LoadLowThreshold is the load below which the governor steps down.
	LoadLowThreshold = 30
	// LevelJumpUp is how many levels a ramp-up jumps at once.
	LevelJumpUp = 3
	// LevelStepDown is how many levels a ramp-down steps at once.
	LevelStepDown = 1
	// SwitchIntervalUpMs is the minimum spacing between ramp-ups, and also
	// the manual anti-thrash interval.
	SwitchIntervalUpMs = 1000
	// SwitchIntervalDownMs is the minimum spacing between ramp-downs.
	SwitchIntervalDownMs = 5000
)

// SwitchEvent records one frequency switch attempt for post-mortem.
type SwitchEvent struct {
	Tick uint32
	From FreqLevel
	To   FreqLevel
	Err  error // nil on success
}

const switchRingSize = 16

// Governor owns the core frequency. It tracks the logical frequency level,
// runs the manual and adaptive policies, and performs the actual clock tree
// reprogramming followed by the delay/time-base rescale.
//
// All operations are main-loop context; only HandleTick and the fields it
// touches run in interrupt context.
type Governor struct {
	tree  ClockTree
	delay *Delay

	initialized bool
	mode        Mode
	level       FreqLevel
	freqHz      uint32

	minAutoLevel FreqLevel

	// Interval estimator: hook counts consumed by AdaptiveTask.
	idleCount uint32
	busyCount uint32
	load      uint32 // atomic; percent

	// One-second sampler, fed from the tick interrupt.
	idlePolls  uint32 // atomic
	coarseLoad uint32 // atomic; percent

	lastSwitchTick uint32
	lastCheckTick  uint32

	switchCount uint32
	ring        [switchRingSize]SwitchEvent
	ringCount   uint32
}

// NewGovernor returns a governor over the given clock tree. bootFreqHz is
// the frequency the core is running at before the first switch (the reset
// default); CurrentFrequency reports it until a switch succeeds.
func NewGovernor(tree ClockTree, delay *Delay, bootFreqHz uint32) *Governor {
	return &Governor{
		tree:         tree,
		delay:        delay,
		freqHz:       bootFreqHz,
		minAutoLevel: Level8MHz,
	}
}

// Init marks the governor ready: manual mode, level 0. It does not touch
// the clock tree; the hardware keeps its boot clock until the first switch.
func (g *Governor) Init() {
	g.mode = ModeManual
	g.level = Level72MHz
	g.resetLoadStats()
	g.initialized = true
}

// Initialized reports whether Init has run.
func (g *Governor) Initialized() bool {
	return g.initialized
}

// CurrentLevel returns the logical frequency level.
func (g *Governor) CurrentLevel() FreqLevel {
	return g.level
}

// CurrentMode returns the active governor mode.
func (g *Governor) CurrentMode() Mode {
	return g.mode
}

// CurrentFrequency returns the core frequency in Hz.
func (g *Governor) CurrentFrequency() uint32 {
	return g.freqHz
}

// MinAutoLevel returns the slowest level auto mode may descend to.
func (g *Governor) MinAutoLevel() FreqLevel {
	return g.minAutoLevel
}

// Load returns the interval load estimate in percent. This is the value the
// adaptive policy acts on.
func (g *Governor) Load() uint8 {
	return uint8(atomic.LoadUint32(&g.load))
}

// CoarseLoad returns the one-second idle-poll load estimate in percent.
func (g *Governor) CoarseLoad() uint8 {
	return uint8(atomic.LoadUint32(&g.coarseLoad))
}

// SwitchCount returns the number of completed frequency switches.
func (g *Governor) SwitchCount() uint32 {
	return g.switchCount
}

// SetMode switches the governor mode. In manual mode param is the level to
// switch to immediately; in auto mode param is the slowest level the policy
// may use, with out-of-range values meaning "no floor" (the table minimum).
//
// A manual switch inside the anti-thrash interval fails with
// ErrSwitchTooFast before anything changes. The interval also covers failed
// attempts, so a broken oscillator cannot be hammered in a retry loop.
func (g *Governor) SetMode(mode Mode, param FreqLevel) error {
	if !g.initialized {
		return ErrNotInitialized
	}
	now := g.delay.Tick()
	if mode == ModeManual && now > 0 {
		if Elapsed(now, g.lastSwitchTick) < SwitchIntervalUpMs {
			return ErrSwitchTooFast
		}
	}
	switch mode {
	case ModeManual:
		if int(param) >= LevelCount() {
			return ErrInvalidFrequency
		}
		g.mode = ModeManual
		g.lastSwitchTick = now
		return g.switchToLevel(param)
	case ModeAuto:
		floor := param
		if int(floor) >= LevelCount() {
			floor = FreqLevel(LevelCount() - 1)
		}
		g.mode = ModeAuto
		g.minAutoLevel = floor
		g.resetLoadStats()
		g.lastCheckTick = now
		return nil
	}
	return ErrModeConflict
}

// SetFixedLevel switches to level. Manual mode only.
func (g *Governor) SetFixedLevel(level FreqLevel) error {
	if !g.initialized {
		return ErrNotInitialized
	}
	if g.mode != ModeManual {
		return ErrModeConflict
	}
	if int(level) >= LevelCount() {
		return ErrInvalidFrequency
	}
	now := g.delay.Tick()
	if now > 0 && Elapsed(now, g.lastSwitchTick) < SwitchIntervalUpMs {
		return ErrSwitchTooFast
	}
	g.lastSwitchTick = now
	return g.switchToLevel(level)
}

// AdjustLevel moves the level by delta table positions, clamped to the
// table bounds. Negative delta raises the frequency. Manual mode only; a
// clamp that lands on the current level is a successful no-op.
func (g *Governor) AdjustLevel(delta int) error {
	if !g.initialized {
		return ErrNotInitialized
	}
	if g.mode != ModeManual {
		return ErrModeConflict
	}
	target := clampLevel(int(g.level) + delta)
	if target == g.level {
		return nil
	}
	now := g.delay.Tick()
	if now > 0 && Elapsed(now, g.lastSwitchTick) < SwitchIntervalUpMs {
		return ErrSwitchTooFast
	}
	g.lastSwitchTick = now
	return g.switchToLevel(target)
}

// IdleHook marks one idle pass through the main loop. The idle-poll count
// feeds the coarse estimator in any mode; the interval estimator only
// accumulates in auto mode.
func (g *Governor) IdleHook() {
	atomic.AddUint32(&g.idlePolls, 1)
	if g.mode != ModeAuto {
		return
	}
	g.idleCount++
}

// BusyHook marks one busy pass through the main loop. Auto mode only.
func (g *Governor) BusyHook() {
	if g.mode != ModeAuto {
		return
	}
	g.busyCount++
}

// AdaptiveTask runs one step of the adaptive policy. Call it every main
// loop pass; it gates itself to one evaluation per LoadCheckIntervalMs and
// does nothing outside auto mode.
func (g *Governor) AdaptiveTask() {
	if !g.initialized || g.mode != ModeAuto {
		return
	}
	now := g.delay.Tick()
	// Raw modular difference: the never-stamped sentinel does not apply to
	// the check gate, only to switch spacing.
	if now-g.lastCheckTick < LoadCheckIntervalMs {
		return
	}
	g.lastCheckTick = now

	total := g.busyCount + g.idleCount
	var load uint32
	if total > 0 {
		load = g.busyCount * 100 / total
	}
	atomic.StoreUint32(&g.load, load)
	g.busyCount = 0
	g.idleCount = 0

	sinceSwitch := Elapsed(now, g.lastSwitchTick)
	switch {
	case load > LoadHighThreshold:
		if g.level > Level72MHz && sinceSwitch >= SwitchIntervalUpMs {
			// Stamped on the attempt, like the manual paths: a faulty
			// tree retries on the switch interval, not every check. The
			// event ring keeps the error.
			g.lastSwitchTick = now
			_ = g.switchToLevel(clampLevel(int(g.level) - LevelJumpUp))
		}
	case load < LoadLowThreshold:
		if g.level < g.minAutoLevel && sinceSwitch >= SwitchIntervalDownMs {
			target := g.level + LevelStepDown
			if target > g.minAutoLevel {
				target = g.minAutoLevel
			}
			g.lastSwitchTick = now
			_ = g.switchToLevel(target)
		}
	}
}

// HandleTick is the governor's tick-interrupt hook; register it with the
// time base. Every 1000 ticks it folds the idle polls seen since the last
// sample into the coarse load estimate.
func (g *Governor) HandleTick(now uint32) {
	if now%1000 != 0 {
		return
	}
	polls := atomic.SwapUint32(&g.idlePolls, 0)
	var load uint32
	if polls < 10 {
		// Fewer than ten idle polls in a second: every missing poll reads
		// as ten percent load.
		load = 100 - polls*10
	}
	atomic.StoreUint32(&g.coarseLoad, load)
}

// SwitchEvents returns the recent switch attempts, oldest first.
func (g *Governor) SwitchEvents() []SwitchEvent {
	n := g.ringCount
	if n > switchRingSize {
		n = switchRingSize
	}
	out := make([]SwitchEvent, 0, n)
	start := g.ringCount - n
	for i := uint32(0); i < n; i++ {
		out = append(out, g.ring[(start+i)%switchRingSize])
	}
	return out
}

func (g *Governor) resetLoadStats() {
	g.idleCount = 0
	g.busyCount = 0
	atomic.StoreUint32(&g.load, 0)
	atomic.StoreUint32(&g.idlePolls, 0)
	atomic.StoreUint32(&g.coarseLoad, 0)
}

func (g *Governor) recordSwitch(from, to FreqLevel, err error) {
	g.ring[g.ringCount%switchRingSize] = SwitchEvent{
		Tick: g.delay.Tick(),
		From: from,
		To:   to,
		Err:  err,
	}
	g.ringCount++
}

func clampLevel(n int) FreqLevel {
	if n < 0 {
		return 0
	}
	if n >= LevelCount() {
		return FreqLevel(LevelCount() - 1)
	}
	return FreqLevel(n)
}

// switchToLevel reprograms the clock tree for level, then rescales the
// delay factors and the tick source. Register programming runs with
// interrupts masked; the rescale runs after they are restored.
//
// On failure the logical level is untouched, with one exception: once the
// system clock has been failed over to the internal oscillator, a later
// error makes the governor adopt the internal-oscillator entry so that
// level and frequency keep describing what the hardware is actually doing.
func (g *Governor) switchToLevel(level FreqLevel) error {
	cfg, ok := LevelConfig(level)
	if !ok {
		return ErrInvalidFrequency
	}
	from := g.level

	state := disableInterrupts()
	failover, err := g.programTree(cfg)
	restoreInterrupts(state)

	if err != nil {
		if failover {
			g.adoptLevel(Level8MHz)
		}
		g.recordSwitch(from, level, err)
		return err
	}

	g.freqHz = cfg.FreqHz
	rerr := g.delay.Reconfig(cfg.FreqHz)
	g.level = level
	g.switchCount++
	g.recordSwitch(from, level, rerr)
	return rerr
}

// programTree walks the clock tree to cfg. failover reports whether the
// system clock was moved onto the internal oscillator along the way, which
// is the point of no return for error reconciliation. Runs with interrupts
// masked.
func (g *Governor) programTree(cfg FreqConfig) (failover bool, err error) {
	if cfg.Source == OscPLL {
		if err = g.tree.EnableOscillator(OscExternal); err != nil {
			return false, err
		}
		if g.tree.SystemSource() == OscPLL {
			// Run from the internal oscillator while the PLL is
			// reprogrammed underneath the core.
			if err = g.tree.EnableOscillator(OscInternal); err != nil {
				return false, err
			}
			if err = g.tree.SelectSystemSource(OscInternal); err != nil {
				return false, err
			}
			failover = true
		}
		if g.tree.OscillatorEnabled(OscPLL) {
			if err = g.tree.DisableOscillator(OscPLL); err != nil {
				return failover, err
			}
		}
		// Latency first: at this point the core runs at 8 MHz, where any
		// wait-state setting is legal, and the fast clock must never start
		// on too few wait states.
		g.tree.SetFlashLatency(cfg.FlashWS)
		if err = g.tree.ProgramPLL(cfg.PLLMul); err != nil {
			return failover, err
		}
		if err = g.tree.EnableOscillator(OscPLL); err != nil {
			return failover, err
		}
		if err = g.tree.SelectSystemSource(OscPLL); err != nil {
			return failover, err
		}
		return failover, nil
	}

	// Internal-oscillator entry: move the core first, then relax the wait
	// states and stop the PLL.
	if err = g.tree.EnableOscillator(OscInternal); err != nil {
		return false, err
	}
	if err = g.tree.SelectSystemSource(OscInternal); err != nil {
		return false, err
	}
	failover = true
	g.tree.SetFlashLatency(cfg.FlashWS)
	if g.tree.OscillatorEnabled(OscPLL) {
		if err = g.tree.DisableOscillator(OscPLL); err != nil {
			return failover, err
		}
	}
	return failover, nil
}

// adoptLevel reconciles logical state to a level the hardware is known to
// be running after a partial failure.
func (g *Governor) adoptLevel(level FreqLevel) {
	cfg, ok := LevelConfig(level)
	if !ok {
		return
	}
	g.freqHz = cfg.FreqHz
	g.level = level
	_ = g.delay.Reconfig(cfg.FreqHz)
}
