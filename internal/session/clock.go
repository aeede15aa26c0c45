package session

import "time"

// Timer is a cancellable scheduled task handle.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so debounce and sweep behavior is testable with a
// simulated clock instead of real timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// RealClock returns a Clock backed by the system clock.
func RealClock() Clock { return realClock{} }
