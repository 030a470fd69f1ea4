package usecase

import (
	"time"

	"mimitomo/internal/ports"
)

// SystemClock schedules callbacks on the runtime timer.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func (SystemClock) AfterFunc(d time.Duration, f func()) ports.Timer {
	return time.AfterFunc(d, f)
}
