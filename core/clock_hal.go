package core

// Oscillator identifies a source in the clock tree.
type Oscillator uint8

const (
	// OscInternal is the always-available internal RC oscillator (8 MHz).
	OscInternal Oscillator = iota
	// OscExternal is the crystal oscillator that feeds the PLL.
	OscExternal
	// OscPLL is the PLL multiplying the external oscillator.
	OscPLL
)

// String returns the conventional short name for the oscillator.
func (o Oscillator) String() string {
	switch o {
	case OscInternal:
		return "HSI"
	case OscExternal:
		return "HSE"
	case OscPLL:
		return "PLL"
	}
	return "osc" + utoa(uint32(o))
}

// ClockTree is the hardware interface the governor programs during a
// frequency switch. Implementations bound every hardware-ready wait by a
// deadline taken from a source that does not depend on the core frequency
// being changed, and report timeouts with the sentinel matching the
// oscillator: ErrOscillatorNotFound for the external crystal,
// ErrPllLockTimeout for the PLL and the system mux.
//
// The governor calls these methods with interrupts masked; implementations
// must not sleep on the millisecond tick.
type ClockTree interface {
	// EnableOscillator turns osc on and waits until it reports ready.
	EnableOscillator(osc Oscillator) error

	// DisableOscillator turns osc off and waits until it reports stopped.
	DisableOscillator(osc Oscillator) error

	// OscillatorEnabled reports whether osc is currently enabled.
	OscillatorEnabled(osc Oscillator) bool

	// SelectSystemSource switches the system clock mux to osc and waits
	// for the hardware to confirm the switch.
	SelectSystemSource(osc Oscillator) error

	// SystemSource returns the oscillator currently driving the core.
	SystemSource() Oscillator

	// ProgramPLL sets the PLL multiplier. Only legal while the PLL is
	// disabled.
	ProgramPLL(mul uint8) error

	// SetFlashLatency programs the flash wait states. The governor raises
	// latency before raising the clock and never runs a fast clock on too
	// few wait states.
	SetFlashLatency(ws uint8)
}
