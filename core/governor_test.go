package core_test

import (
	"testing"

	"goclk/core"
	"goclk/sim"
)

// rig wires a governor to simulated hardware the way a target main does:
// tick source behind the time base, countdown behind the delay, clock tree
// behind the governor, with the coarse sampler on the tick interrupt.
type rig struct {
	tree *sim.ClockTree
	cd   *sim.Countdown
	src  *sim.TickSource
	tb   *core.TimeBase
	d    *core.Delay
	gov  *core.Governor
}

func newRig(t *testing.T) *rig {
	t.Helper()
	src := sim.NewTickSource()
	tb := core.NewTimeBase(src, 8000000)
	cd := sim.NewCountdown()
	d := core.NewDelay(cd, tb)
	if err := d.Init(8000000); err != nil {
		t.Fatalf("delay init: %v", err)
	}
	tree := sim.NewClockTree()
	g := core.NewGovernor(tree, d, 8000000)
	tb.AddTickHandler(g.HandleTick)
	g.Init()
	return &rig{tree: tree, cd: cd, src: src, tb: tb, d: d, gov: g}
}

func TestGovernorInit(t *testing.T) {
	r := newRig(t)

	if !r.gov.Initialized() {
		t.Fatal("not initialized after Init")
	}
	if r.gov.CurrentMode() != core.ModeManual {
		t.Errorf("mode = %v, want manual", r.gov.CurrentMode())
	}
	if r.gov.CurrentLevel() != core.Level72MHz {
		t.Errorf("level = %v, want the top level", r.gov.CurrentLevel())
	}
	// Init never touches the hardware; the boot clock stays.
	if r.gov.CurrentFrequency() != 8000000 {
		t.Errorf("frequency = %d, want the 8 MHz boot clock", r.gov.CurrentFrequency())
	}
	if r.tree.SystemSource() != core.OscInternal {
		t.Errorf("clock tree touched during Init: source = %v", r.tree.SystemSource())
	}
	if len(r.tree.Calls()) != 0 {
		t.Errorf("clock tree saw %d calls during Init", len(r.tree.Calls()))
	}
}

func TestGovernorNotInitialized(t *testing.T) {
	src := sim.NewTickSource()
	tb := core.NewTimeBase(src, 8000000)
	d := core.NewDelay(sim.NewCountdown(), tb)
	g := core.NewGovernor(sim.NewClockTree(), d, 8000000)

	if err := g.SetMode(core.ModeManual, core.Level72MHz); err != core.ErrNotInitialized {
		t.Errorf("SetMode = %v, want ErrNotInitialized", err)
	}
	if err := g.SetFixedLevel(core.Level8MHz); err != core.ErrNotInitialized {
		t.Errorf("SetFixedLevel = %v, want ErrNotInitialized", err)
	}
	if err := g.AdjustLevel(1); err != core.ErrNotInitialized {
		t.Errorf("AdjustLevel = %v, want ErrNotInitialized", err)
	}
	g.AdaptiveTask() // must not panic
}

func TestManualSwitchToTop(t *testing.T) {
	r := newRig(t)
	r.src.Step(10)

	if err := r.gov.SetMode(core.ModeManual, core.Level72MHz); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}

	if r.gov.CurrentLevel() != core.Level72MHz {
		t.Errorf("level = %v, want Level72MHz", r.gov.CurrentLevel())
	}
	if r.gov.CurrentFrequency() != 72000000 {
		t.Errorf("frequency = %d, want 72000000", r.gov.CurrentFrequency())
	}
	if r.gov.SwitchCount() != 1 {
		t.Errorf("switch count = %d, want 1", r.gov.SwitchCount())
	}
	if r.tree.SystemSource() != core.OscPLL {
		t.Errorf("system source = %v, want PLL", r.tree.SystemSource())
	}
	if r.tree.PLLMul() != 9 {
		t.Errorf("PLL multiplier = %d, want 9", r.tree.PLLMul())
	}
	if r.tree.FlashWS() != 2 {
		t.Errorf("flash wait states = %d, want 2", r.tree.FlashWS())
	}

	// The tick survives the switch and the time base follows the core.
	if r.tb.Tick() != 10 {
		t.Errorf("tick = %d after switch, want 10", r.tb.Tick())
	}
	if r.tb.Frequency() != 72000000 {
		t.Errorf("time base frequency = %d, want 72000000", r.tb.Frequency())
	}

	// Delay factors rescaled: 1 us is now 9 countdown clocks.
	r.d.Us(1)
	loads := r.cd.Loads()
	if len(loads) != 1 || loads[0] != 9 {
		t.Errorf("Us(1) loads = %v, want [9]", loads)
	}
}

func TestManualSwitchTooFast(t *testing.T) {
	r := newRig(t)
	r.src.Step(10)

	if err := r.gov.SetFixedLevel(core.Level8MHz); err != nil {
		t.Fatalf("first switch failed: %v", err)
	}
	if err := r.gov.SetFixedLevel(core.Level72MHz); err != core.ErrSwitchTooFast {
		t.Fatalf("second switch = %v, want ErrSwitchTooFast", err)
	}
	if r.gov.CurrentLevel() != core.Level8MHz {
		t.Errorf("level changed by rejected switch: %v", r.gov.CurrentLevel())
	}

	r.src.Step(1000)
	if err := r.gov.SetFixedLevel(core.Level72MHz); err != nil {
		t.Errorf("switch after the interval failed: %v", err)
	}
}

func TestManualSwitchInvalidLevel(t *testing.T) {
	r := newRig(t)
	r.src.Step(10)

	if err := r.gov.SetFixedLevel(core.FreqLevel(9)); err != core.ErrInvalidFrequency {
		t.Fatalf("SetFixedLevel(9) = %v, want ErrInvalidFrequency", err)
	}
	if r.gov.CurrentLevel() != core.Level72MHz {
		t.Errorf("level changed by invalid request: %v", r.gov.CurrentLevel())
	}
	if r.gov.SwitchCount() != 0 {
		t.Errorf("switch count = %d after invalid request, want 0", r.gov.SwitchCount())
	}

	// A rejected parameter does not burn the anti-thrash interval.
	if err := r.gov.SetFixedLevel(core.Level8MHz); err != nil {
		t.Errorf("valid switch right after invalid request failed: %v", err)
	}
}

func TestSetModeInvalidParamKeepsMode(t *testing.T) {
	r := newRig(t)
	r.src.Step(10)

	if err := r.gov.SetMode(core.ModeAuto, core.Level8MHz); err != nil {
		t.Fatalf("entering auto failed: %v", err)
	}
	if err := r.gov.SetMode(core.ModeManual, core.FreqLevel(99)); err != core.ErrInvalidFrequency {
		t.Fatalf("SetMode(manual, 99) = %v, want ErrInvalidFrequency", err)
	}
	if r.gov.CurrentMode() != core.ModeAuto {
		t.Errorf("mode = %v after rejected SetMode, want auto", r.gov.CurrentMode())
	}

	if err := r.gov.SetMode(core.Mode(9), 0); err != core.ErrModeConflict {
		t.Errorf("SetMode(9, 0) = %v, want ErrModeConflict", err)
	}
}

func TestOscillatorFailureKeepsState(t *testing.T) {
	r := newRig(t)
	r.src.Step(10)
	r.tree.FailExternal = true

	err := r.gov.SetFixedLevel(core.Level48MHz)
	if err != core.ErrOscillatorNotFound {
		t.Fatalf("switch = %v, want ErrOscillatorNotFound", err)
	}
	if r.gov.CurrentLevel() != core.Level72MHz || r.gov.CurrentFrequency() != 8000000 {
		t.Errorf("state changed by failed switch: level %v, freq %d",
			r.gov.CurrentLevel(), r.gov.CurrentFrequency())
	}
	if r.gov.SwitchCount() != 0 {
		t.Errorf("switch count = %d, want 0", r.gov.SwitchCount())
	}

	// The attempt still burned the interval: a broken oscillator must not
	// be hammered in a retry loop.
	if err := r.gov.SetFixedLevel(core.Level48MHz); err != core.ErrSwitchTooFast {
		t.Fatalf("immediate retry = %v, want ErrSwitchTooFast", err)
	}

	events := r.gov.SwitchEvents()
	if len(events) != 1 {
		t.Fatalf("%d switch events, want 1", len(events))
	}
	e := events[0]
	if e.Tick != 10 || e.From != core.Level72MHz || e.To != core.Level48MHz || e.Err != core.ErrOscillatorNotFound {
		t.Errorf("event = %+v, want failed 72->48 attempt at tick 10", e)
	}

	r.src.Step(1001)
	r.tree.FailExternal = false
	if err := r.gov.SetFixedLevel(core.Level48MHz); err != nil {
		t.Errorf("retry after interval failed: %v", err)
	}
}

// A PLL failure after the core has been failed over to the internal
// oscillator must leave level and frequency describing the hardware, not
// the level the caller asked for or the one it came from.
func TestPLLFailureReconciliation(t *testing.T) {
	r := newRig(t)
	r.src.Step(10)
	if err := r.gov.SetMode(core.ModeManual, core.Level72MHz); err != nil {
		t.Fatalf("switch to 72 MHz failed: %v", err)
	}
	r.src.Step(1001)

	r.tree.FailPLLLock = true
	err := r.gov.SetFixedLevel(core.Level48MHz)
	if err != core.ErrPllLockTimeout {
		t.Fatalf("switch = %v, want ErrPllLockTimeout", err)
	}

	if r.gov.CurrentLevel() != core.Level8MHz {
		t.Errorf("level = %v after failover, want Level8MHz", r.gov.CurrentLevel())
	}
	if r.gov.CurrentFrequency() != 8000000 {
		t.Errorf("frequency = %d after failover, want 8000000", r.gov.CurrentFrequency())
	}
	if r.tree.SystemSource() != core.OscInternal {
		t.Errorf("system source = %v, want the internal oscillator", r.tree.SystemSource())
	}
	if r.gov.SwitchCount() != 1 {
		t.Errorf("switch count = %d, want 1 (failed attempt not counted)", r.gov.SwitchCount())
	}

	// Delay factors follow the adopted 8 MHz clock.
	r.cd.ClearLoads()
	r.d.Us(5)
	if loads := r.cd.Loads(); len(loads) != 1 || loads[0] != 5 {
		t.Errorf("Us(5) loads = %v at 8 MHz, want [5]", loads)
	}

	events := r.gov.SwitchEvents()
	last := events[len(events)-1]
	if last.Err != core.ErrPllLockTimeout {
		t.Errorf("last event error = %v, want ErrPllLockTimeout", last.Err)
	}
}

// The mux can also refuse at the very last step, after the PLL has locked.
// The governor adopts the internal oscillator it already runs on and leaves
// the PLL up; it is not rewound.
func TestMuxRefusalLeavesPLLRunning(t *testing.T) {
	r := newRig(t)
	r.src.Step(10)
	if err := r.gov.SetMode(core.ModeManual, core.Level72MHz); err != nil {
		t.Fatalf("switch to 72 MHz failed: %v", err)
	}
	r.src.Step(1001)

	r.tree.FailSelectPLL = true
	err := r.gov.SetFixedLevel(core.Level48MHz)
	if err != core.ErrPllLockTimeout {
		t.Fatalf("switch = %v, want ErrPllLockTimeout", err)
	}

	if r.gov.CurrentLevel() != core.Level8MHz || r.gov.CurrentFrequency() != 8000000 {
		t.Errorf("adopted level %v at %d Hz, want Level8MHz at 8000000",
			r.gov.CurrentLevel(), r.gov.CurrentFrequency())
	}
	if r.tree.SystemSource() != core.OscInternal {
		t.Errorf("system source = %v, want the internal oscillator", r.tree.SystemSource())
	}
	if !r.tree.OscillatorEnabled(core.OscPLL) {
		t.Error("PLL disabled after mux refusal, want it left running")
	}

	events := r.gov.SwitchEvents()
	last := events[len(events)-1]
	if last.To != core.Level48MHz || last.Err != core.ErrPllLockTimeout {
		t.Errorf("last event = %+v, want failed attempt at Level48MHz", last)
	}
}

func callIndex(calls []sim.Call, op string, arg uint32) int {
	for i, c := range calls {
		if c.Op == op && c.Arg == arg {
			return i
		}
	}
	return -1
}

// Wait states for the target frequency are programmed while the core still
// runs at 8 MHz, before the PLL comes up; dropping to the internal
// oscillator relaxes them only after the mux has moved.
func TestFlashLatencyOrdering(t *testing.T) {
	r := newRig(t)
	r.src.Step(10)

	if err := r.gov.SetFixedLevel(core.Level72MHz); err != nil {
		t.Fatalf("switch up failed: %v", err)
	}
	calls := r.tree.Calls()
	flashUp := callIndex(calls, "flash", 2)
	pllOn := callIndex(calls, "enable", uint32(core.OscPLL))
	pllSel := callIndex(calls, "select", uint32(core.OscPLL))
	if flashUp < 0 || pllOn < 0 || pllSel < 0 {
		t.Fatalf("missing calls in %v", calls)
	}
	if !(flashUp < pllOn && pllOn < pllSel) {
		t.Errorf("switch up order wrong: flash@%d enable-pll@%d select-pll@%d", flashUp, pllOn, pllSel)
	}

	r.src.Step(1001)
	r.tree.ClearCalls()
	if err := r.gov.SetFixedLevel(core.Level8MHz); err != nil {
		t.Fatalf("switch down failed: %v", err)
	}
	calls = r.tree.Calls()
	hsiSel := callIndex(calls, "select", uint32(core.OscInternal))
	flashDown := callIndex(calls, "flash", 0)
	if hsiSel < 0 || flashDown < 0 {
		t.Fatalf("missing calls in %v", calls)
	}
	if !(hsiSel < flashDown) {
		t.Errorf("switch down order wrong: select-hsi@%d flash@%d", hsiSel, flashDown)
	}
}

// A PLL-to-PLL retune fails over to the internal oscillator, stops the
// PLL, and only then touches latency and multiplier.
func TestPLLRetuneSequence(t *testing.T) {
	r := newRig(t)
	r.src.Step(10)
	if err := r.gov.SetFixedLevel(core.Level72MHz); err != nil {
		t.Fatalf("switch to 72 MHz failed: %v", err)
	}
	r.src.Step(1001)
	r.tree.ClearCalls()

	if err := r.gov.SetFixedLevel(core.Level24MHz); err != nil {
		t.Fatalf("retune to 24 MHz failed: %v", err)
	}

	want := []sim.Call{
		{Op: "enable", Arg: uint32(core.OscExternal)},
		{Op: "enable", Arg: uint32(core.OscInternal)},
		{Op: "select", Arg: uint32(core.OscInternal)},
		{Op: "disable", Arg: uint32(core.OscPLL)},
		{Op: "flash", Arg: 0},
		{Op: "pll", Arg: 3},
		{Op: "enable", Arg: uint32(core.OscPLL)},
		{Op: "select", Arg: uint32(core.OscPLL)},
	}
	calls := r.tree.Calls()
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i, calls[i], want[i])
		}
	}
}

func TestAutoRampUp(t *testing.T) {
	r := newRig(t)
	r.src.Step(10)
	if err := r.gov.SetMode(core.ModeManual, core.Level8MHz); err != nil {
		t.Fatalf("manual switch failed: %v", err)
	}
	r.src.Step(1100)
	if err := r.gov.SetMode(core.ModeAuto, core.Level8MHz); err != nil {
		t.Fatalf("entering auto failed: %v", err)
	}

	// Saturated busy load ramps 8 -> 5 -> 2 -> 0, three levels per
	// eligible evaluation.
	wantLevels := []core.FreqLevel{core.Level32MHz, core.Level56MHz, core.Level72MHz}
	for step, want := range wantLevels {
		for i := 0; i < 100; i++ {
			r.gov.BusyHook()
		}
		r.src.Step(1001)
		r.gov.AdaptiveTask()
		if r.gov.CurrentLevel() != want {
			t.Fatalf("ramp step %d: level = %v, want %v", step, r.gov.CurrentLevel(), want)
		}
	}
	if r.gov.Load() != 100 {
		t.Errorf("load = %d during saturation, want 100", r.gov.Load())
	}

	// Fully ramped: more load must not push past the top.
	for i := 0; i < 100; i++ {
		r.gov.BusyHook()
	}
	r.src.Step(1001)
	r.gov.AdaptiveTask()
	if r.gov.CurrentLevel() != core.Level72MHz {
		t.Errorf("level = %v at the top under load, want Level72MHz", r.gov.CurrentLevel())
	}
}

func TestAutoRampUpSpacing(t *testing.T) {
	r := newRig(t)
	r.src.Step(10)
	if err := r.gov.SetMode(core.ModeManual, core.Level8MHz); err != nil {
		t.Fatalf("manual switch failed: %v", err)
	}
	r.src.Step(1100)
	if err := r.gov.SetMode(core.ModeAuto, core.Level8MHz); err != nil {
		t.Fatalf("entering auto failed: %v", err)
	}

	for i := 0; i < 100; i++ {
		r.gov.BusyHook()
	}
	r.src.Step(1001)
	r.gov.AdaptiveTask()
	if r.gov.CurrentLevel() != core.Level32MHz {
		t.Fatalf("first ramp: level = %v, want Level32MHz", r.gov.CurrentLevel())
	}

	// Still saturated 51 ms later: the evaluation runs but the ramp is
	// inside the up interval and must hold.
	for i := 0; i < 100; i++ {
		r.gov.BusyHook()
	}
	r.src.Step(51)
	r.gov.AdaptiveTask()
	if r.gov.CurrentLevel() != core.Level32MHz {
		t.Errorf("level = %v inside the up interval, want Level32MHz", r.gov.CurrentLevel())
	}
}

// A failed auto ramp burns the switch interval the same way a failed manual
// switch does. Every enable wait spins with interrupts masked, so retrying a
// dead crystal at the check cadence would stall the tick.
func TestAutoRetryBacksOff(t *testing.T) {
	r := newRig(t)
	r.src.Step(10)
	if err := r.gov.SetMode(core.ModeManual, core.Level8MHz); err != nil {
		t.Fatalf("manual switch failed: %v", err)
	}
	r.src.Step(1100)
	if err := r.gov.SetMode(core.ModeAuto, core.Level8MHz); err != nil {
		t.Fatalf("entering auto failed: %v", err)
	}

	r.tree.FailExternal = true
	for i := 0; i < 100; i++ {
		r.gov.BusyHook()
	}
	r.src.Step(1001)
	r.gov.AdaptiveTask()
	if r.gov.CurrentLevel() != core.Level8MHz {
		t.Fatalf("level = %v after failed ramp, want Level8MHz", r.gov.CurrentLevel())
	}
	attempts := len(r.gov.SwitchEvents())

	// Saturated evaluations inside the up interval must not touch the
	// broken oscillator again.
	for i := 0; i < 18; i++ {
		for j := 0; j < 100; j++ {
			r.gov.BusyHook()
		}
		r.src.Step(51)
		r.gov.AdaptiveTask()
	}
	if n := len(r.gov.SwitchEvents()); n != attempts {
		t.Fatalf("%d switch attempts inside the up interval, want %d", n, attempts)
	}

	// One up interval after the failure the governor tries again; with the
	// crystal back it ramps.
	r.tree.FailExternal = false
	for i := 0; i < 100; i++ {
		r.gov.BusyHook()
	}
	r.src.Step(1001)
	r.gov.AdaptiveTask()
	if r.gov.CurrentLevel() != core.Level32MHz {
		t.Errorf("level = %v after recovery, want Level32MHz", r.gov.CurrentLevel())
	}
}

func TestAutoRampDown(t *testing.T) {
	r := newRig(t)
	r.src.Step(10)
	if err := r.gov.SetMode(core.ModeManual, core.Level72MHz); err != nil {
		t.Fatalf("manual switch failed: %v", err)
	}
	r.src.Step(1100)
	if err := r.gov.SetMode(core.ModeAuto, core.Level8MHz); err != nil {
		t.Fatalf("entering auto failed: %v", err)
	}

	// Idle descends one level per eligible evaluation.
	wantLevels := []core.FreqLevel{core.Level64MHz, core.Level56MHz, core.Level48MHz}
	for step, want := range wantLevels {
		for i := 0; i < 100; i++ {
			r.gov.IdleHook()
		}
		r.src.Step(5001)
		r.gov.AdaptiveTask()
		if r.gov.CurrentLevel() != want {
			t.Fatalf("descent step %d: level = %v, want %v", step, r.gov.CurrentLevel(), want)
		}
	}
}

func TestAutoRampDownSpacing(t *testing.T) {
	r := newRig(t)
	r.src.Step(10)
	if err := r.gov.SetMode(core.ModeManual, core.Level72MHz); err != nil {
		t.Fatalf("manual switch failed: %v", err)
	}
	r.src.Step(1100)
	if err := r.gov.SetMode(core.ModeAuto, core.Level8MHz); err != nil {
		t.Fatalf("entering auto failed: %v", err)
	}

	for i := 0; i < 100; i++ {
		r.gov.IdleHook()
	}
	r.src.Step(5001)
	r.gov.AdaptiveTask()
	if r.gov.CurrentLevel() != core.Level64MHz {
		t.Fatalf("first descent: level = %v, want Level64MHz", r.gov.CurrentLevel())
	}

	for i := 0; i < 100; i++ {
		r.gov.IdleHook()
	}
	r.src.Step(51)
	r.gov.AdaptiveTask()
	if r.gov.CurrentLevel() != core.Level64MHz {
		t.Errorf("level = %v inside the down interval, want Level64MHz", r.gov.CurrentLevel())
	}
}

func TestAutoFloorBindsDescent(t *testing.T) {
	r := newRig(t)
	r.src.Step(10)
	if err := r.gov.SetMode(core.ModeManual, core.Level72MHz); err != nil {
		t.Fatalf("manual switch failed: %v", err)
	}
	r.src.Step(1100)
	if err := r.gov.SetMode(core.ModeAuto, core.Level32MHz); err != nil {
		t.Fatalf("entering auto failed: %v", err)
	}
	if r.gov.MinAutoLevel() != core.Level32MHz {
		t.Fatalf("floor = %v, want Level32MHz", r.gov.MinAutoLevel())
	}

	// Seven descent opportunities, but the floor stops the fifth.
	for i := 0; i < 7; i++ {
		for j := 0; j < 100; j++ {
			r.gov.IdleHook()
		}
		r.src.Step(5001)
		r.gov.AdaptiveTask()
	}
	if r.gov.CurrentLevel() != core.Level32MHz {
		t.Errorf("level = %v after sustained idle, want the Level32MHz floor", r.gov.CurrentLevel())
	}
}

func TestAutoFloorOutOfRangeClamped(t *testing.T) {
	r := newRig(t)
	r.src.Step(10)

	if err := r.gov.SetMode(core.ModeAuto, core.FreqLevel(200)); err != nil {
		t.Fatalf("entering auto failed: %v", err)
	}
	if r.gov.MinAutoLevel() != core.Level8MHz {
		t.Errorf("floor = %v for out-of-range request, want the table minimum", r.gov.MinAutoLevel())
	}
}

func TestManualOnlyOpsRejectedInAuto(t *testing.T) {
	r := newRig(t)
	r.src.Step(10)
	if err := r.gov.SetMode(core.ModeAuto, core.Level8MHz); err != nil {
		t.Fatalf("entering auto failed: %v", err)
	}

	if err := r.gov.SetFixedLevel(core.Level8MHz); err != core.ErrModeConflict {
		t.Errorf("SetFixedLevel in auto = %v, want ErrModeConflict", err)
	}
	if err := r.gov.AdjustLevel(1); err != core.ErrModeConflict {
		t.Errorf("AdjustLevel in auto = %v, want ErrModeConflict", err)
	}
}

func TestAdjustLevel(t *testing.T) {
	r := newRig(t)
	r.src.Step(10)
	if err := r.gov.SetMode(core.ModeManual, core.Level8MHz); err != nil {
		t.Fatalf("manual switch failed: %v", err)
	}

	r.src.Step(1001)
	if err := r.gov.AdjustLevel(-3); err != nil {
		t.Fatalf("AdjustLevel(-3) failed: %v", err)
	}
	if r.gov.CurrentLevel() != core.Level32MHz {
		t.Errorf("level = %v, want Level32MHz", r.gov.CurrentLevel())
	}

	// Clamped to the table bounds.
	r.src.Step(1001)
	if err := r.gov.AdjustLevel(-100); err != nil {
		t.Fatalf("AdjustLevel(-100) failed: %v", err)
	}
	if r.gov.CurrentLevel() != core.Level72MHz {
		t.Errorf("level = %v, want Level72MHz", r.gov.CurrentLevel())
	}
	r.src.Step(1001)
	if err := r.gov.AdjustLevel(100); err != nil {
		t.Fatalf("AdjustLevel(100) failed: %v", err)
	}
	if r.gov.CurrentLevel() != core.Level8MHz {
		t.Errorf("level = %v, want Level8MHz", r.gov.CurrentLevel())
	}

	// A clamp landing on the current level is a no-op: no switch, no
	// interval burned, even right after a switch.
	count := r.gov.SwitchCount()
	if err := r.gov.AdjustLevel(5); err != nil {
		t.Errorf("no-op AdjustLevel = %v, want nil", err)
	}
	if r.gov.SwitchCount() != count {
		t.Errorf("no-op AdjustLevel performed a switch")
	}

	// A real move inside the interval is still rejected.
	if err := r.gov.AdjustLevel(-1); err != core.ErrSwitchTooFast {
		t.Errorf("AdjustLevel(-1) inside interval = %v, want ErrSwitchTooFast", err)
	}
}

func TestLoadAccounting(t *testing.T) {
	r := newRig(t)
	r.src.Step(10)
	// Floor at the top level so the policy cannot move while the
	// accounting is probed.
	if err := r.gov.SetMode(core.ModeAuto, core.Level72MHz); err != nil {
		t.Fatalf("entering auto failed: %v", err)
	}

	for i := 0; i < 30; i++ {
		r.gov.BusyHook()
	}
	for i := 0; i < 70; i++ {
		r.gov.IdleHook()
	}
	r.src.Step(51)
	r.gov.AdaptiveTask()
	if r.gov.Load() != 30 {
		t.Errorf("load = %d for 30/100 busy, want 30", r.gov.Load())
	}

	// Counters reset after each evaluation.
	r.src.Step(51)
	r.gov.AdaptiveTask()
	if r.gov.Load() != 0 {
		t.Errorf("load = %d with no samples, want 0", r.gov.Load())
	}
}

func TestHooksGatedInManual(t *testing.T) {
	r := newRig(t)
	r.src.Step(10)

	for i := 0; i < 100; i++ {
		r.gov.BusyHook()
	}
	r.src.Step(51)
	r.gov.AdaptiveTask()

	if r.gov.Load() != 0 {
		t.Errorf("load = %d in manual mode, want 0", r.gov.Load())
	}
	if r.gov.CurrentLevel() != core.Level72MHz {
		t.Errorf("level moved in manual mode: %v", r.gov.CurrentLevel())
	}
	if r.gov.SwitchCount() != 0 {
		t.Errorf("adaptive policy switched in manual mode")
	}
}

// The one-second sampler reads ten idle polls per second as a fully idle
// core; each missing poll counts as ten percent load.
func TestCoarseSampler(t *testing.T) {
	r := newRig(t)

	for i := 0; i < 4; i++ {
		r.gov.IdleHook()
	}
	r.gov.HandleTick(1000)
	if r.gov.CoarseLoad() != 60 {
		t.Errorf("coarse load = %d for 4 polls, want 60", r.gov.CoarseLoad())
	}

	for i := 0; i < 12; i++ {
		r.gov.IdleHook()
	}
	r.gov.HandleTick(2000)
	if r.gov.CoarseLoad() != 0 {
		t.Errorf("coarse load = %d for 12 polls, want 0", r.gov.CoarseLoad())
	}

	// Off-boundary ticks neither sample nor consume the poll count.
	r.gov.IdleHook()
	r.gov.IdleHook()
	r.gov.IdleHook()
	r.gov.HandleTick(2500)
	if r.gov.CoarseLoad() != 0 {
		t.Errorf("coarse load changed on an off-boundary tick")
	}
	r.gov.HandleTick(3000)
	if r.gov.CoarseLoad() != 70 {
		t.Errorf("coarse load = %d for 3 polls, want 70", r.gov.CoarseLoad())
	}

	r.gov.HandleTick(4000)
	if r.gov.CoarseLoad() != 100 {
		t.Errorf("coarse load = %d for 0 polls, want 100", r.gov.CoarseLoad())
	}
}

func TestSwitchEventsRing(t *testing.T) {
	r := newRig(t)
	r.src.Step(10)

	if err := r.gov.SetFixedLevel(core.Level8MHz); err != nil {
		t.Fatalf("switch failed: %v", err)
	}
	r.src.Step(1001)
	if err := r.gov.SetFixedLevel(core.Level72MHz); err != nil {
		t.Fatalf("switch failed: %v", err)
	}
	r.src.Step(1001)
	if err := r.gov.SetFixedLevel(core.Level24MHz); err != nil {
		t.Fatalf("switch failed: %v", err)
	}

	events := r.gov.SwitchEvents()
	if len(events) != 3 {
		t.Fatalf("%d events, want 3", len(events))
	}
	if events[0].To != core.Level8MHz || events[1].To != core.Level72MHz || events[2].To != core.Level24MHz {
		t.Errorf("events out of order: %+v", events)
	}
	if events[0].Tick != 10 || events[1].Tick != 1011 || events[2].Tick != 2012 {
		t.Errorf("event ticks = %d %d %d, want 10 1011 2012",
			events[0].Tick, events[1].Tick, events[2].Tick)
	}
}

func TestSwitchEventsRingOverflow(t *testing.T) {
	r := newRig(t)
	r.src.Step(10)

	levels := []core.FreqLevel{core.Level8MHz, core.Level72MHz}
	for i := 0; i < 20; i++ {
		if err := r.gov.SetFixedLevel(levels[i%2]); err != nil {
			t.Fatalf("switch %d failed: %v", i, err)
		}
		r.src.Step(1001)
	}

	events := r.gov.SwitchEvents()
	if len(events) != 16 {
		t.Fatalf("%d events, want the 16 most recent", len(events))
	}
	// Oldest retained is switch #4 (zero-based), at tick 10 + 4*1001.
	if events[0].Tick != 10+4*1001 {
		t.Errorf("oldest event tick = %d, want %d", events[0].Tick, 10+4*1001)
	}
	if events[15].Tick != 10+19*1001 {
		t.Errorf("newest event tick = %d, want %d", events[15].Tick, 10+19*1001)
	}
}
