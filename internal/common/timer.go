// Package common provides small shared helpers used across the service,
// including stage timing for pipeline instrumentation.
package common

import (
	"fmt"
	"time"
)

// Timer measures elapsed wall-clock time for a processing stage.
type Timer struct {
	start    time.Time
	name     string
	duration time.Duration
}

// NewTimer creates and starts an unnamed timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// NewNamedTimer creates and starts a timer labelled with the given stage name.
func NewNamedTimer(name string) *Timer {
	return &Timer{
		name:  name,
		start: time.Now(),
	}
}

// Stop stops the timer and returns the elapsed duration.
func (t *Timer) Stop() time.Duration {
	t.duration = time.Since(t.start)
	return t.duration
}

// StopNanos stops the timer and returns the elapsed time in nanoseconds,
// the unit used by result timing fields.
func (t *Timer) StopNanos() int64 {
	return t.Stop().Nanoseconds()
}

// Duration returns the recorded duration (only valid after Stop()).
func (t *Timer) Duration() time.Duration {
	return t.duration
}

// Name returns the timer name (empty string if unnamed).
func (t *Timer) Name() string {
	return t.name
}

// String returns a formatted string representation of the timer.
func (t *Timer) String() string {
	if t.name != "" {
		return fmt.Sprintf("%s: %v", t.name, t.duration)
	}
	return fmt.Sprintf("%v", t.duration)
}
