//go:build stm32f103

// Package bluepill is the board support for the STM32F103C8 Blue Pill:
// the clock tree driver behind the governor, the TIM2 tick source, the
// SysTick countdown for busy-wait delays, and the bench peripherals
// (status display, tick-out pin, debug UART).
package bluepill

import (
	"device/stm32"
	"errors"
	"runtime/volatile"
	"unsafe"

	"goclk/core"
)

// DWT cycle counter memory map. The ready waits below run with interrupts
// masked, where the millisecond tick is frozen; the cycle counter keeps
// counting and bounds them instead.
const (
	demcrAddr    = 0xE000EDFC
	dwtCtrlAddr  = 0xE0001000
	dwtCycntAddr = 0xE0001004

	demcrTRCENA   = 1 << 24
	dwtCtrlCycEna = 1 << 0
)

var (
	demcr    = (*volatile.Register32)(unsafe.Pointer(uintptr(demcrAddr)))
	dwtCtrl  = (*volatile.Register32)(unsafe.Pointer(uintptr(dwtCtrlAddr)))
	dwtCycnt = (*volatile.Register32)(unsafe.Pointer(uintptr(dwtCycntAddr)))
)

// RCC_CFGR system clock mux encodings (SW and SWS share them).
const (
	sysSrcHSI uint32 = 0
	sysSrcHSE uint32 = 1
	sysSrcPLL uint32 = 2
)

// APB1 prescaler /2. With APB1 below HCLK the timer clock doubler runs TIM2
// at the core frequency on every table entry, and PCLK1 stays inside its
// 36 MHz limit at the top entry.
const ppre1Div2 uint32 = 0x4

// Wait budgets, in milliseconds converted at the fastest table entry.
// Slower clocks only stretch the wall-clock bound.
const (
	cyclesPerMsMax = 72000

	oscReadyTimeoutMs  = 100
	oscStopTimeoutMs   = 10
	pllLockTimeoutMs   = 10
	muxSwitchTimeoutMs = 10
)

var errPLLRunning = errors.New("cannot program a running PLL")

// ClockTree programs the STM32F103 RCC and flash controller.
type ClockTree struct{}

// NewClockTree arms the cycle counter and performs the one-time bus setup:
// AHB /1, APB2 /1, APB1 /2, flash prefetch on.
func NewClockTree() *ClockTree {
	demcr.SetBits(demcrTRCENA)
	dwtCtrl.SetBits(dwtCtrlCycEna)

	cfgr := stm32.RCC.CFGR.Get()
	cfgr &^= stm32.RCC_CFGR_HPRE_Msk | stm32.RCC_CFGR_PPRE2_Msk | stm32.RCC_CFGR_PPRE1_Msk
	cfgr |= ppre1Div2 << stm32.RCC_CFGR_PPRE1_Pos
	stm32.RCC.CFGR.Set(cfgr)

	stm32.FLASH.ACR.SetBits(stm32.FLASH_ACR_PRFTBE)

	return &ClockTree{}
}

// waitSet polls reg until every bit in mask reads set, giving up with
// timeoutErr after budget cycles.
func waitSet(reg *volatile.Register32, mask uint32, budget uint32, timeoutErr error) error {
	start := dwtCycnt.Get()
	for {
		if reg.HasBits(mask) {
			return nil
		}
		if dwtCycnt.Get()-start > budget {
			return timeoutErr
		}
	}
}

// waitClear is waitSet's inverse, for oscillator stop waits.
func waitClear(reg *volatile.Register32, mask uint32, budget uint32, timeoutErr error) error {
	start := dwtCycnt.Get()
	for {
		if !reg.HasBits(mask) {
			return nil
		}
		if dwtCycnt.Get()-start > budget {
			return timeoutErr
		}
	}
}

func (t *ClockTree) EnableOscillator(osc core.Oscillator) error {
	switch osc {
	case core.OscInternal:
		stm32.RCC.CR.SetBits(stm32.RCC_CR_HSION)
		return waitSet(&stm32.RCC.CR, stm32.RCC_CR_HSIRDY,
			oscReadyTimeoutMs*cyclesPerMsMax, core.ErrOscillatorNotFound)
	case core.OscExternal:
		stm32.RCC.CR.SetBits(stm32.RCC_CR_HSEON)
		return waitSet(&stm32.RCC.CR, stm32.RCC_CR_HSERDY,
			oscReadyTimeoutMs*cyclesPerMsMax, core.ErrOscillatorNotFound)
	case core.OscPLL:
		stm32.RCC.CR.SetBits(stm32.RCC_CR_PLLON)
		return waitSet(&stm32.RCC.CR, stm32.RCC_CR_PLLRDY,
			pllLockTimeoutMs*cyclesPerMsMax, core.ErrPllLockTimeout)
	}
	return core.ErrOscillatorNotFound
}

func (t *ClockTree) DisableOscillator(osc core.Oscillator) error {
	switch osc {
	case core.OscInternal:
		stm32.RCC.CR.ClearBits(stm32.RCC_CR_HSION)
		return waitClear(&stm32.RCC.CR, stm32.RCC_CR_HSIRDY,
			oscStopTimeoutMs*cyclesPerMsMax, core.ErrOscillatorNotFound)
	case core.OscExternal:
		stm32.RCC.CR.ClearBits(stm32.RCC_CR_HSEON)
		return waitClear(&stm32.RCC.CR, stm32.RCC_CR_HSERDY,
			oscStopTimeoutMs*cyclesPerMsMax, core.ErrOscillatorNotFound)
	case core.OscPLL:
		stm32.RCC.CR.ClearBits(stm32.RCC_CR_PLLON)
		return waitClear(&stm32.RCC.CR, stm32.RCC_CR_PLLRDY,
			oscStopTimeoutMs*cyclesPerMsMax, core.ErrPllLockTimeout)
	}
	return core.ErrOscillatorNotFound
}

func (t *ClockTree) OscillatorEnabled(osc core.Oscillator) bool {
	switch osc {
	case core.OscInternal:
		return stm32.RCC.CR.HasBits(stm32.RCC_CR_HSION)
	case core.OscExternal:
		return stm32.RCC.CR.HasBits(stm32.RCC_CR_HSEON)
	case core.OscPLL:
		return stm32.RCC.CR.HasBits(stm32.RCC_CR_PLLON)
	}
	return false
}

func (t *ClockTree) SelectSystemSource(osc core.Oscillator) error {
	var src uint32
	switch osc {
	case core.OscInternal:
		src = sysSrcHSI
	case core.OscExternal:
		src = sysSrcHSE
	case core.OscPLL:
		src = sysSrcPLL
	default:
		return core.ErrOscillatorNotFound
	}

	cfgr := stm32.RCC.CFGR.Get()
	cfgr &^= stm32.RCC_CFGR_SW_Msk
	cfgr |= src << stm32.RCC_CFGR_SW_Pos
	stm32.RCC.CFGR.Set(cfgr)

	start := dwtCycnt.Get()
	for {
		sws := (stm32.RCC.CFGR.Get() & stm32.RCC_CFGR_SWS_Msk) >> stm32.RCC_CFGR_SWS_Pos
		if sws == src {
			return nil
		}
		if dwtCycnt.Get()-start > muxSwitchTimeoutMs*cyclesPerMsMax {
			return core.ErrPllLockTimeout
		}
	}
}

func (t *ClockTree) SystemSource() core.Oscillator {
	sws := (stm32.RCC.CFGR.Get() & stm32.RCC_CFGR_SWS_Msk) >> stm32.RCC_CFGR_SWS_Pos
	switch sws {
	case sysSrcHSE:
		return core.OscExternal
	case sysSrcPLL:
		return core.OscPLL
	}
	return core.OscInternal
}

// ProgramPLL sets the multiplier on the HSE input. The PLLMUL field encodes
// multiplier minus two.
func (t *ClockTree) ProgramPLL(mul uint8) error {
	if stm32.RCC.CR.HasBits(stm32.RCC_CR_PLLON) {
		return errPLLRunning
	}
	if mul < 2 || mul > 16 {
		return core.ErrInvalidFrequency
	}

	cfgr := stm32.RCC.CFGR.Get()
	cfgr &^= stm32.RCC_CFGR_PLLMUL_Msk
	cfgr |= uint32(mul-2) << stm32.RCC_CFGR_PLLMUL_Pos
	cfgr |= stm32.RCC_CFGR_PLLSRC
	cfgr &^= stm32.RCC_CFGR_PLLXTPRE
	stm32.RCC.CFGR.Set(cfgr)

	return nil
}

func (t *ClockTree) SetFlashLatency(ws uint8) {
	acr := stm32.FLASH.ACR.Get()
	acr &^= stm32.FLASH_ACR_LATENCY_Msk
	acr |= uint32(ws) << stm32.FLASH_ACR_LATENCY_Pos
	stm32.FLASH.ACR.Set(acr)
}
