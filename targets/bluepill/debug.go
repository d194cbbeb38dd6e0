//go:build stm32f103

package bluepill

import (
	"machine"

	"device/stm32"

	"goclk/core"
)

const (
	// ConsoleBaud is the framed console rate on USART1.
	ConsoleBaud = 115200
	// DebugBaud is the debug text rate on USART2.
	DebugBaud = 115200
)

// Debug output goes to USART2 on PA2/PA3 so it never interleaves with the
// framed console on USART1. Switch notifications use the async queue; the
// drain goroutine takes the UART stall instead of the main loop.
var debugUART *machine.UART

// InitDebug routes the core debug writer to USART2 and enables it.
func InitDebug() {
	debugUART = machine.UART2

	err := debugUART.Configure(machine.UARTConfig{
		BaudRate: DebugBaud,
		TX:       machine.PA2,
		RX:       machine.PA3,
	})
	if err != nil {
		return
	}

	core.SetDebugWriter(func(s string) {
		debugUART.Write([]byte(s))
		debugUART.Write([]byte("\r\n"))
	})
	core.SetDebugEnabled(true)
	core.InitAsyncDebug()

	core.DebugPrintln("=== goclk stm32f103 ===")
}

// RetuneSerial reprograms the UART baud dividers after a core frequency
// switch. The machine package computed them for the boot clock; the console
// sits on PCLK2 (= HCLK) and the debug port on PCLK1 (= HCLK/2).
func RetuneSerial(freqHz uint32) {
	stm32.USART1.BRR.Set(freqHz / ConsoleBaud)
	stm32.USART2.BRR.Set(freqHz / 2 / DebugBaud)
}
