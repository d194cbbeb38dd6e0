//go:build stm32f103

package bluepill

import (
	"runtime/volatile"
	"unsafe"
)

// SysTick registers. The TinyGo stm32f103 runtime schedules on TIM4/TIM3,
// leaving SysTick free for busy-wait delays.
const (
	systCsrAddr = 0xE000E010
	systRvrAddr = 0xE000E014
	systCvrAddr = 0xE000E018

	systCsrEnable    = 1 << 0
	systCsrCountFlag = 1 << 16
)

var (
	systCsr = (*volatile.Register32)(unsafe.Pointer(uintptr(systCsrAddr)))
	systRvr = (*volatile.Register32)(unsafe.Pointer(uintptr(systRvrAddr)))
	systCvr = (*volatile.Register32)(unsafe.Pointer(uintptr(systCvrAddr)))
)

// Countdown implements core.CountdownTimer on the Cortex-M SysTick,
// clocked from HCLK/8 (CLKSOURCE left clear). The delay layer's /8
// microsecond factor assumes exactly that prescale.
type Countdown struct{}

func NewCountdown() *Countdown {
	return &Countdown{}
}

func (c *Countdown) MaxLoad() uint32 {
	return 1<<24 - 1
}

// Countdown arms a single one-shot run of load ticks and busy-waits for
// the wrap flag. No interrupt is enabled; the flag clears on read of CSR
// once set, and stopping the counter discards any residue.
func (c *Countdown) Countdown(load uint32) {
	systRvr.Set(load)
	systCvr.Set(0)
	systCsr.Set(systCsrEnable)
	for systCsr.Get()&systCsrCountFlag == 0 {
	}
	systCsr.Set(0)
}
