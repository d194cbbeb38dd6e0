//go:build stm32f103

package bluepill

import (
	"image/color"
	"machine"
	"strconv"

	"tinygo.org/x/drivers/ssd1306"
	"tinygo.org/x/tinyfont"

	"goclk/core"
)

// StatusPanel renders monitor snapshots on a 128x64 SSD1306 over I2C.
// The bus master scales its own timing from PCLK, so runs started at
// 400 kHz simply slow down after a downshift; no retune needed.
type StatusPanel struct {
	display ssd1306.Device
}

var panelWhite = color.RGBA{R: 255, G: 255, B: 255, A: 255}

func NewStatusPanel() *StatusPanel {
	machine.I2C0.Configure(machine.I2CConfig{Frequency: 400 * machine.KHz})

	display := ssd1306.NewI2C(machine.I2C0)
	display.Configure(ssd1306.Config{Address: 0x3C, Width: 128, Height: 64})
	display.ClearDisplay()

	return &StatusPanel{display: display}
}

// Refresh redraws the whole panel from one snapshot. Call it from the
// main loop, never from tick context; a full frame push over I2C takes
// a few milliseconds.
func (p *StatusPanel) Refresh(st core.MonitorStatus) {
	p.display.ClearBuffer()

	p.line(10, st.Level.String()+"  "+st.Mode.String())
	p.line(22, "load "+strconv.Itoa(int(st.Load))+"%  peak "+strconv.Itoa(int(st.PeakLoad))+"%")
	p.line(34, "sw "+strconv.FormatUint(uint64(st.SwitchCount), 10)+"  tmr "+strconv.Itoa(st.ActiveTimers))
	p.line(46, "up "+strconv.FormatUint(uint64(st.UptimeMs/1000), 10)+"s")

	p.loadBar(st.Load)

	p.display.Display()
}

func (p *StatusPanel) line(y int16, text string) {
	tinyfont.WriteLine(&p.display, &tinyfont.TomThumb, 2, y, text, panelWhite)
}

// loadBar fills the bottom rows proportionally to the fine load average.
func (p *StatusPanel) loadBar(load uint8) {
	if load > 100 {
		load = 100
	}
	width := int16(load) * 128 / 100
	for y := int16(56); y < 62; y++ {
		for x := int16(0); x < width; x++ {
			p.display.SetPixel(x, y, panelWhite)
		}
	}
}
