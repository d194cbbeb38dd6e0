package sim

import "errors"

// ErrConfigureFailed is the injected tick source configuration failure.
var ErrConfigureFailed = errors.New("tick source configure failed")

// TickSource implements core.TickSource with manual stepping: each Step
// stands in for one hardware tick interrupt.
type TickSource struct {
	freqHz     uint32
	configures int
	started    bool
	fire       func()

	FailConfigure bool
}

func NewTickSource() *TickSource {
	return &TickSource{}
}

func (s *TickSource) Configure(coreFreqHz uint32) error {
	if s.FailConfigure {
		return ErrConfigureFailed
	}
	s.freqHz = coreFreqHz
	s.configures++
	return nil
}

func (s *TickSource) Start(fire func()) error {
	s.fire = fire
	s.started = true
	return nil
}

// Step fires n tick interrupts.
func (s *TickSource) Step(n int) {
	for i := 0; i < n; i++ {
		if s.fire != nil {
			s.fire()
		}
	}
}

// FreqHz reports the core frequency from the last Configure.
func (s *TickSource) FreqHz() uint32 {
	return s.freqHz
}

// Configures reports how many times Configure ran.
func (s *TickSource) Configures() int {
	return s.configures
}

// Started reports whether the source was armed.
func (s *TickSource) Started() bool {
	return s.started
}
