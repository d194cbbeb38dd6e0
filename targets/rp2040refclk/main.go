//go:build rp2040

// Bench reference counter for the frequency-invariant tick. GPIO16 takes
// the device's tick-out square wave; once a second the edge count is
// compared against the 1000 edges it should carry and the deviation is
// reported in ppm over USB. GPIO15 carries a locally generated 1 kHz
// reference wave for scope comparison against the device output.
package main

import (
	"machine"
	"runtime/volatile"
	"strconv"
	"sync/atomic"
	"time"
	"unsafe"
)

const (
	refWavePin = machine.GPIO15
	tickInPin  = machine.GPIO16

	// The device toggles its tick-out pin once per millisecond: a 500 Hz
	// square wave, 1000 edges per second counting both directions.
	tickEdgesPerSecond = 1000
	reportIntervalUs   = 1000000
)

// RP2040 timer peripheral: a 64-bit microsecond counter at 1 MHz. The low
// word alone spans 71 minutes between wraps and unsigned subtraction
// covers the wrap, so the high word is never needed here.
const (
	timerBase     = 0x40054000
	timerTIMERAWL = timerBase + 0x0C
)

var timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))

var edgeCount uint32

func main() {
	// Give USB CDC time to enumerate before the first report.
	time.Sleep(2 * time.Second)

	if _, err := NewRefWave(refWavePin, tickEdgesPerSecond/2); err != nil {
		for {
			machine.Serial.Write([]byte("refwave: " + err.Error() + "\r\n"))
			time.Sleep(5 * time.Second)
		}
	}

	tickInPin.Configure(machine.PinConfig{Mode: machine.PinInput})
	err := tickInPin.SetInterrupt(machine.PinToggle, func(machine.Pin) {
		atomic.AddUint32(&edgeCount, 1)
	})
	if err != nil {
		for {
			machine.Serial.Write([]byte("tick input: " + err.Error() + "\r\n"))
			time.Sleep(5 * time.Second)
		}
	}

	machine.Serial.Write([]byte("tick reference counter: ref on GPIO15, input on GPIO16\r\n"))

	last := timerRAWL.Get()
	for {
		time.Sleep(50 * time.Millisecond)

		now := timerRAWL.Get()
		window := now - last
		if window < reportIntervalUs {
			continue
		}
		last = now

		edges := atomic.SwapUint32(&edgeCount, 0)
		report(edges, window)
	}
}

// report prints one measurement line: edges seen, the exact window they
// were counted over, and the deviation from nominal in parts per million.
func report(edges, windowUs uint32) {
	// Nominal is 1000 edges per second, so one milli-edge per second is
	// exactly one ppm.
	rateMilli := int64(edges) * 1000000000 / int64(windowUs)
	ppm := rateMilli - 1000000

	line := "edges=" + strconv.FormatUint(uint64(edges), 10) +
		" window_us=" + strconv.FormatUint(uint64(windowUs), 10) +
		" ppm=" + strconv.FormatInt(ppm, 10) + "\r\n"
	machine.Serial.Write([]byte(line))
}
