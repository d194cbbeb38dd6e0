package core

import "testing"

func TestElapsedIdentity(t *testing.T) {
	testCases := []uint32{1, 2, 1000, 0x80000000, TickMax}

	for _, tick := range testCases {
		if got := Elapsed(tick, tick); got != 0 {
			t.Errorf("Elapsed(%d, %d) = %d, want 0", tick, tick, got)
		}
	}
}

func TestElapsedWraparound(t *testing.T) {
	testCases := []struct {
		current  uint32
		previous uint32
		want     uint32
	}{
		{5, 0xFFFFFFF0, 21},
		{0, TickMax, 1},
		{1, TickMax, 2},
		{TickMax, 1, TickMax - 1},
		{100, 40, 60},
		{1000, 1, 999},
	}

	for _, tc := range testCases {
		if got := Elapsed(tc.current, tc.previous); got != tc.want {
			t.Errorf("Elapsed(%d, %d) = %d, want %d", tc.current, tc.previous, got, tc.want)
		}
	}
}

func TestElapsedNeverSentinel(t *testing.T) {
	// previous == 0 means "never started"; the result must compare as
	// already elapsed against any interval.
	testCases := []uint32{0, 1, 5, 12345, TickMax}

	for _, current := range testCases {
		if got := Elapsed(current, 0); got != TickMax {
			t.Errorf("Elapsed(%d, 0) = %d, want TickMax", current, got)
		}
	}
}
