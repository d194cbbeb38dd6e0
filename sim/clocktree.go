// Package sim provides software stand-ins for the clock hardware: a clock
// tree with failure injection and a call log, a manually stepped tick
// source, and a countdown that records the loads it was armed with. Tests
// and host-side demos drive the governor against these instead of an MCU.
package sim

import (
	"errors"

	"goclk/core"
)

var (
	ErrSourceActive = errors.New("cannot disable the active clock source")
	ErrPLLRunning   = errors.New("cannot program a running PLL")
)

// Call is one recorded hardware operation.
type Call struct {
	Op  string // "enable", "disable", "select", "pll", "flash"
	Arg uint32
}

// ClockTree implements core.ClockTree in software. The zero value is not
// usable; NewClockTree returns one in MCU reset state (internal oscillator
// running and selected, zero wait states).
type ClockTree struct {
	enabled [3]bool
	source  core.Oscillator
	pllMul  uint8
	flashWS uint8
	calls   []Call

	// Failure injection for switch-path tests.
	FailExternal  bool // external oscillator never reports ready
	FailPLLLock   bool // PLL never locks
	FailSelectPLL bool // mux refuses to move onto the PLL
}

func NewClockTree() *ClockTree {
	t := &ClockTree{source: core.OscInternal}
	t.enabled[core.OscInternal] = true
	return t
}

func (t *ClockTree) EnableOscillator(osc core.Oscillator) error {
	t.record("enable", uint32(osc))
	switch {
	case osc == core.OscExternal && t.FailExternal:
		return core.ErrOscillatorNotFound
	case osc == core.OscPLL && t.FailPLLLock:
		return core.ErrPllLockTimeout
	}
	t.enabled[osc] = true
	return nil
}

func (t *ClockTree) DisableOscillator(osc core.Oscillator) error {
	t.record("disable", uint32(osc))
	if osc == t.source {
		return ErrSourceActive
	}
	t.enabled[osc] = false
	return nil
}

func (t *ClockTree) OscillatorEnabled(osc core.Oscillator) bool {
	return t.enabled[osc]
}

func (t *ClockTree) SelectSystemSource(osc core.Oscillator) error {
	t.record("select", uint32(osc))
	if !t.enabled[osc] {
		// The mux never completes a move onto a stopped clock; the
		// deadline expires instead.
		return core.ErrOscillatorNotFound
	}
	if osc == core.OscPLL && t.FailSelectPLL {
		return core.ErrPllLockTimeout
	}
	t.source = osc
	return nil
}

func (t *ClockTree) SystemSource() core.Oscillator {
	return t.source
}

func (t *ClockTree) ProgramPLL(mul uint8) error {
	t.record("pll", uint32(mul))
	if t.enabled[core.OscPLL] {
		return ErrPLLRunning
	}
	t.pllMul = mul
	return nil
}

func (t *ClockTree) SetFlashLatency(ws uint8) {
	t.record("flash", uint32(ws))
	t.flashWS = ws
}

// PLLMul reports the last multiplier programmed.
func (t *ClockTree) PLLMul() uint8 {
	return t.pllMul
}

// FlashWS reports the current flash wait states.
func (t *ClockTree) FlashWS() uint8 {
	return t.flashWS
}

// Calls returns the recorded operations in order.
func (t *ClockTree) Calls() []Call {
	return t.calls
}

// ClearCalls empties the call log, keeping the tree state.
func (t *ClockTree) ClearCalls() {
	t.calls = t.calls[:0]
}

func (t *ClockTree) record(op string, arg uint32) {
	t.calls = append(t.calls, Call{Op: op, Arg: arg})
}
