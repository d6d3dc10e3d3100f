package cdc

import "time"

// Clock is a free-running millisecond counter. It may wrap; elapsed time
// is always computed with modular subtraction.
type Clock interface {
	Millis() uint32
}

// ClockFunc adapts a function to a Clock.
type ClockFunc func() uint32

// Millis returns f().
func (f ClockFunc) Millis() uint32 { return f() }

type systemClock struct {
	epoch time.Time
}

// SystemClock returns a Clock backed by the monotonic system clock.
func SystemClock() Clock {
	return systemClock{epoch: time.Now()}
}

func (c systemClock) Millis() uint32 {
	return uint32(time.Since(c.epoch).Milliseconds())
}

// elapsed returns now-start modulo 2^32, which stays correct across a
// single counter rollover.
func elapsed(now, start uint32) uint32 {
	return now - start
}
