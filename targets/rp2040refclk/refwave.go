//go:build rp2040

package main

import (
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// buildRefWaveProgram returns the two-instruction square-wave loop. Each
// instruction takes one state machine cycle, so the output period is two
// cycles at the divided clock.
func buildRefWaveProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Set(rp2pio.SetDestPins, 1).Encode(), // 0: set pins, 1
		asm.Set(rp2pio.SetDestPins, 0).Encode(), // 1: set pins, 0
		// .wrap
	}
}

const refWaveOrigin = 0 // Load at offset 0 for correct wrap addresses

// RefWave drives a hardware-timed square wave as the bench reference. The
// state machine clocks from the crystal-derived system clock, so the
// output holds its frequency no matter what the firmware under test does.
type RefWave struct {
	pio *rp2pio.PIO
	sm  rp2pio.StateMachine
	pin machine.Pin
}

// NewRefWave starts a freqHz square wave on pin using PIO0 state machine 0.
func NewRefWave(pin machine.Pin, freqHz uint32) (*RefWave, error) {
	w := &RefWave{
		pio: rp2pio.PIO0,
		pin: pin,
	}
	w.sm = w.pio.StateMachine(0)
	w.sm.TryClaim()

	program := buildRefWaveProgram()
	offset, err := w.pio.AddProgram(program, refWaveOrigin)
	if err != nil {
		return nil, err
	}

	pin.Configure(machine.PinConfig{Mode: w.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(pin, 1)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)

	// Two cycles per output period, so the state machine steps at twice
	// the wave frequency.
	div := uint16(machine.CPUFrequency() / (2 * freqHz))
	cfg.SetClkDivIntFrac(div, 0)

	w.sm.Init(offset, cfg)
	w.sm.SetPindirsConsecutive(pin, 1, true)
	w.sm.SetPinsConsecutive(pin, 1, false)
	w.sm.SetEnabled(true)

	return w, nil
}

// Stop halts the state machine, leaving the pin low.
func (w *RefWave) Stop() {
	w.sm.SetEnabled(false)
	w.sm.SetPinsConsecutive(w.pin, 1, false)
}
