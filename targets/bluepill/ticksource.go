//go:build stm32f103

package bluepill

import (
	"device/stm32"
	"runtime/interrupt"

	"goclk/core"
)

// TickSource drives the millisecond time base from TIM2's update interrupt.
// The bus setup in NewClockTree keeps TIM2 clocked at the core frequency
// (APB1 /2 engages the timer clock doubler), so the divider math follows
// the core clock directly.
type TickSource struct {
	fire func()
}

var (
	activeTickSource *TickSource
	tim2Interrupt    interrupt.Interrupt
)

func init() {
	tim2Interrupt = interrupt.New(stm32.IRQ_TIM2, handleTIM2)
}

func NewTickSource() *TickSource {
	return &TickSource{}
}

// Configure programs TIM2 for a 1 ms update period at coreFreqHz. Called
// again after every frequency switch; the update event latching the new
// prescaler restarts the current millisecond, which the time base documents
// as one stretched or shortened tick.
func (s *TickSource) Configure(coreFreqHz uint32) error {
	psc, arr, ok := tickDivider(coreFreqHz)
	if !ok {
		return core.ErrInvalidFrequency
	}

	stm32.RCC.APB1ENR.SetBits(stm32.RCC_APB1ENR_TIM2EN)

	// URS first: the UG below must latch the prescaler without raising an
	// update interrupt of its own.
	stm32.TIM2.CR1.SetBits(stm32.TIM_CR1_URS)
	stm32.TIM2.PSC.Set(psc)
	stm32.TIM2.ARR.Set(arr)
	stm32.TIM2.EGR.Set(stm32.TIM_EGR_UG)

	return nil
}

// Start enables the update interrupt and the counter. fire runs in
// interrupt context once per millisecond.
func (s *TickSource) Start(fire func()) error {
	s.fire = fire
	activeTickSource = s

	stm32.TIM2.SR.ClearBits(stm32.TIM_SR_UIF)
	stm32.TIM2.DIER.SetBits(stm32.TIM_DIER_UIE)

	tim2Interrupt.SetPriority(0xc0)
	tim2Interrupt.Enable()

	stm32.TIM2.CR1.SetBits(stm32.TIM_CR1_CEN)

	return nil
}

func handleTIM2(interrupt.Interrupt) {
	if !stm32.TIM2.SR.HasBits(stm32.TIM_SR_UIF) {
		return
	}
	stm32.TIM2.SR.ClearBits(stm32.TIM_SR_UIF)

	src := activeTickSource
	if src != nil && src.fire != nil {
		src.fire()
	}
}

// tickDivider finds a PSC/ARR pair giving one update per millisecond at
// timClkHz, preferring the finest subdivision that fits the 16-bit
// auto-reload register.
func tickDivider(timClkHz uint32) (psc, arr uint32, ok bool) {
	if timClkHz < 1000 || timClkHz%1000 != 0 {
		return 0, 0, false
	}
	countsPerMs := timClkHz / 1000
	for div := uint32(1); div <= 65536; div++ {
		if countsPerMs%div != 0 {
			continue
		}
		if counts := countsPerMs / div; counts <= 65536 {
			return div - 1, counts - 1, true
		}
	}
	return 0, 0, false
}
