//go:build stm32f103

package main

import (
	"machine"
	"time"

	"goclk/core"
	"goclk/protocol"
	"goclk/targets/bluepill"
)

// The stm32f103 runtime ramps the core to 72 MHz (HSE, PLL x9, two flash
// wait states) before main runs, so the governor boots at the top table
// entry and the first switch only re-latches what is already set.
const bootFreqHz = 72000000

const (
	panelRefreshMs = 250
	timerSlots     = 16
)

var (
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput

	readErrors uint32
)

func main() {
	bluepill.InitDebug()

	tree := bluepill.NewClockTree()
	src := bluepill.NewTickSource()
	tb := core.NewTimeBase(src, bootFreqHz)

	delay := core.NewDelay(bluepill.NewCountdown(), tb)
	if err := delay.Init(bootFreqHz); err != nil {
		core.DebugPrintln("delay init failed: " + err.Error())
		return
	}

	gov := core.NewGovernor(tree, delay, bootFreqHz)
	gov.Init()

	pool := core.NewTimerPool(tb, timerSlots)
	mon := core.NewMonitor(tb, gov, pool)

	tb.AddTickHandler(gov.HandleTick)
	tb.AddTickHandler(pool.Update)

	tickOut := bluepill.NewTickOut(machine.PA8)
	tb.AddTickHandler(tickOut.HandleTick)

	startPeriodic(pool, 1000, mon.Task)
	startPeriodic(pool, 10000, func(any) { mon.Report() })

	panel := bluepill.NewStatusPanel()

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()

	agent := protocol.NewAgent(outputBuffer, gov, mon)
	// The host blocks on each ACK; push it to the wire as soon as it is
	// encoded instead of at the end of the loop pass.
	agent.Transport().SetFlushCallback(writeSerial)
	agent.Transport().SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
	})

	go serialReaderLoop()

	core.DebugPrintln("governor up at " + gov.CurrentLevel().String())

	lastFreq := gov.CurrentFrequency()
	var lastPanel uint32

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					readErrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			worked := false

			if inputBuffer.Available() > 0 {
				data := inputBuffer.Data()
				originalLen := len(data)
				inputBuf := protocol.NewSliceInputBuffer(data)

				agent.Receive(inputBuf)

				if consumed := originalLen - inputBuf.Available(); consumed > 0 {
					inputBuffer.Pop(consumed)
				}
				worked = true
			}

			writeSerial()

			if pool.Dispatch() > 0 {
				worked = true
			}

			gov.AdaptiveTask()

			if f := gov.CurrentFrequency(); f != lastFreq {
				lastFreq = f
				bluepill.RetuneSerial(f)
				core.DebugAsync("switched to " + gov.CurrentLevel().String())
			}

			if now := tb.Tick(); core.Elapsed(now, lastPanel) >= panelRefreshMs {
				lastPanel = now
				panel.Refresh(mon.Status())
			}

			if worked {
				gov.BusyHook()
			} else {
				gov.IdleHook()
			}
		}()

		// Yield to the reader and debug goroutines. The runtime timer keeps
		// its boot prescaler, so this sleep stretches below 72 MHz; it only
		// paces the loop, nothing times off it.
		time.Sleep(10 * time.Microsecond)
	}
}

// startPeriodic creates and arms a periodic timer, logging a failure
// instead of propagating it; the firmware runs on without the extra task.
func startPeriodic(pool *core.TimerPool, periodMs uint32, fn core.TimerCallback) {
	h, err := pool.Create(periodMs, core.TimerPeriodic, fn, nil)
	if err == nil {
		err = pool.Start(h)
	}
	if err != nil {
		core.DebugPrintln("timer setup: " + err.Error())
	}
}

// serialReaderLoop feeds console bytes from USART1 into the FIFO.
func serialReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			readErrors++
			time.Sleep(100 * time.Millisecond)
			go serialReaderLoop()
		}
	}()

	for {
		for machine.Serial.Buffered() > 0 {
			b, err := machine.Serial.ReadByte()
			if err != nil {
				readErrors++
				break
			}
			if inputBuffer.Write([]byte{b}) == 0 {
				// FIFO full; drop and let the frame CRC catch it.
				readErrors++
			}
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// writeSerial drains the output scratch to the console UART.
func writeSerial() {
	result := outputBuffer.Result()
	if len(result) == 0 {
		return
	}
	if _, err := machine.Serial.Write(result); err != nil {
		readErrors++
		return
	}
	outputBuffer.Reset()
}
