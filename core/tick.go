package core

// TickMax is the largest value of the millisecond tick counter before it
// wraps (about 49.7 days of uptime).
const TickMax = ^uint32(0)

// Elapsed returns the number of milliseconds between previous and current,
// accounting for a single wraparound of the tick counter.
//
// A previous value of 0 is treated as "never": the result is TickMax, which
// makes any interval comparison against it succeed. Callers that stamp ticks
// must therefore treat a stored 0 as unset, not as the instant the counter
// happened to read zero.
func Elapsed(current, previous uint32) uint32 {
	if previous == 0 {
		return TickMax
	}
	if current >= previous {
		return current - previous
	}
	return (TickMax - previous) + current + 1
}
