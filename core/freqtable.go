package core

// FreqLevel indexes the frequency table. Level 0 is the fastest entry;
// every step to a higher level lowers the core frequency.
type FreqLevel uint8

// Frequency table positions.
const (
	Level72MHz FreqLevel = iota
	Level64MHz
	Level56MHz
	Level48MHz
	Level40MHz
	Level32MHz
	Level24MHz
	Level16MHz
	Level8MHz
)

// FreqConfig describes one frequency table entry.
type FreqConfig struct {
	FreqHz  uint32
	Source  Oscillator
	PLLMul  uint8 // multiplier on the 8 MHz PLL input; 0 when the PLL is unused
	FlashWS uint8 // flash wait states required at this frequency
}

// freqTable maps each level to its clock configuration. Entries are ordered
// fastest first and must stay strictly decreasing in frequency; the policy
// in the governor moves through this table by index.
var freqTable = [...]FreqConfig{
	{FreqHz: 72000000, Source: OscPLL, PLLMul: 9, FlashWS: 2},
	{FreqHz: 64000000, Source: OscPLL, PLLMul: 8, FlashWS: 2},
	{FreqHz: 56000000, Source: OscPLL, PLLMul: 7, FlashWS: 2},
	{FreqHz: 48000000, Source: OscPLL, PLLMul: 6, FlashWS: 1},
	{FreqHz: 40000000, Source: OscPLL, PLLMul: 5, FlashWS: 1},
	{FreqHz: 32000000, Source: OscPLL, PLLMul: 4, FlashWS: 1},
	{FreqHz: 24000000, Source: OscPLL, PLLMul: 3, FlashWS: 0},
	{FreqHz: 16000000, Source: OscPLL, PLLMul: 2, FlashWS: 0},
	{FreqHz: 8000000, Source: OscInternal, PLLMul: 0, FlashWS: 0},
}

// LevelCount returns the number of frequency table entries.
func LevelCount() int {
	return len(freqTable)
}

// LevelConfig returns the table entry for level, or ok=false when level is
// out of range.
func LevelConfig(level FreqLevel) (FreqConfig, bool) {
	if int(level) >= len(freqTable) {
		return FreqConfig{}, false
	}
	return freqTable[level], true
}

// String renders the level's frequency, e.g. "72 MHz".
func (l FreqLevel) String() string {
	cfg, ok := LevelConfig(l)
	if !ok {
		return "level " + utoa(uint32(l)) + " (invalid)"
	}
	return utoa(cfg.FreqHz/1000000) + " MHz"
}
