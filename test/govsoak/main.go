//go:build stm32f103

// On-hardware soak for the frequency governor and time base.
//
// Flash this instead of the console firmware. It sweeps every table
// entry and checks that the millisecond tick stays wall-accurate at each
// frequency, counts timer fires while the level jumps around, then hands
// the chip to the adaptive policy under a synthetic load wave. Results
// print over USART1 at 115200; the tick-out pin on PA8 feeds the bench
// reference counter throughout.

package main

import (
	"machine"

	"goclk/core"
	"goclk/targets/bluepill"
)

const bootFreqHz = 72000000

var (
	timerFires uint32
	sink       uint32
)

func main() {
	tree := bluepill.NewClockTree()
	src := bluepill.NewTickSource()
	tb := core.NewTimeBase(src, bootFreqHz)

	delay := core.NewDelay(bluepill.NewCountdown(), tb)
	if err := delay.Init(bootFreqHz); err != nil {
		println("delay init failed:", err.Error())
		return
	}

	gov := core.NewGovernor(tree, delay, bootFreqHz)
	gov.Init()

	pool := core.NewTimerPool(tb, 8)
	tb.AddTickHandler(gov.HandleTick)
	tb.AddTickHandler(pool.Update)

	tickOut := bluepill.NewTickOut(machine.PA8)
	tb.AddTickHandler(tickOut.HandleTick)

	println("governor soak, boot at", gov.CurrentFrequency()/1000000, "MHz")

	println("\n=== Test 1: Tick Invariance Across Levels ===")
	sweepPass := testTickInvariance(gov, delay, tb)

	println("\n=== Test 2: Timer Cadence Across Switches ===")
	cadencePass := testTimerCadence(gov, tb, pool)

	if sweepPass && cadencePass {
		println("\n=== Soak Checks PASSED ===")
	} else {
		println("\n=== Soak Checks FAILED ===")
	}

	println("\n=== Continuous Adaptive Operation ===")
	continuousAdaptive(gov, delay, tb, pool)
}

// testTickInvariance walks the whole table, measuring one second of ticks
// against the SysTick busy-wait at every entry. The busy-wait rescales
// with the core clock, so the tick count must not.
func testTickInvariance(gov *core.Governor, delay *core.Delay, tb *core.TimeBase) bool {
	pass := true
	for n := 0; n < core.LevelCount(); n++ {
		level := core.FreqLevel(n)

		// Keep clear of the anti-thrash interval.
		delay.Ms(1100)

		if err := gov.SetFixedLevel(level); err != nil {
			println("x", level.String(), "switch failed:", err.Error())
			pass = false
			continue
		}

		t0 := tb.Tick()
		delay.Ms(1000)
		dt := tb.Tick() - t0
		freqMHz := gov.CurrentFrequency() / 1000000

		if dt >= 990 && dt <= 1010 {
			println("ok", freqMHz, "MHz:", dt, "ticks in 1000 ms")
		} else {
			println("x", freqMHz, "MHz:", dt, "ticks in 1000 ms")
			pass = false
		}
	}
	return pass
}

// testTimerCadence counts a 100 ms periodic timer over ten seconds while
// the level jumps around underneath it.
func testTimerCadence(gov *core.Governor, tb *core.TimeBase, pool *core.TimerPool) bool {
	timerFires = 0
	h, err := pool.Create(100, core.TimerPeriodic, func(any) { timerFires++ }, nil)
	if err == nil {
		err = pool.Start(h)
	}
	if err != nil {
		println("x timer setup:", err.Error())
		return false
	}
	defer pool.Delete(h)

	levels := []core.FreqLevel{
		core.Level72MHz, core.Level16MHz, core.Level48MHz, core.Level8MHz, core.Level72MHz,
	}

	t0 := tb.Tick()
	next := 0
	for {
		elapsed := tb.Tick() - t0
		if elapsed >= 10000 {
			break
		}
		if next < len(levels) && elapsed >= uint32(next)*2000 {
			if err := gov.SetFixedLevel(levels[next]); err != nil {
				println("  switch to", levels[next].String(), "failed:", err.Error())
			}
			next++
		}
		pool.Dispatch()
	}

	fires := timerFires
	if fires >= 98 && fires <= 102 {
		println("ok", fires, "fires of a 100 ms timer in 10 s across", len(levels), "switches")
		return true
	}
	println("x", fires, "fires of a 100 ms timer in 10 s")
	return false
}

// continuousAdaptive hands the chip to the load policy and pushes a
// square load wave through it forever: five busy seconds, fifteen idle.
func continuousAdaptive(gov *core.Governor, delay *core.Delay, tb *core.TimeBase, pool *core.TimerPool) {
	if err := gov.SetMode(core.ModeAuto, core.Level8MHz); err != nil {
		println("auto mode failed:", err.Error())
		return
	}

	level := gov.CurrentLevel()
	busy := false
	phaseStart := tb.Tick()
	lastReport := tb.Tick()

	for {
		now := tb.Tick()

		if busy && now-phaseStart >= 5000 {
			busy, phaseStart = false, now
		} else if !busy && now-phaseStart >= 15000 {
			busy, phaseStart = true, now
		}

		if busy {
			gov.BusyHook()
			spin(1000)
		} else {
			gov.IdleHook()
			delay.Us(200)
		}

		pool.Dispatch()
		gov.AdaptiveTask()

		if l := gov.CurrentLevel(); l != level {
			println("  t=", now, level.String(), "->", l.String())
			level = l
		}

		if now-lastReport >= 10000 {
			lastReport = now
			println("  load:", gov.Load(), "% coarse:", gov.CoarseLoad(), "% switches:", gov.SwitchCount())
		}
	}
}

// spin burns cycles without sleeping.
func spin(n int) {
	for i := 0; i < n; i++ {
		sink += uint32(i * i)
	}
}
