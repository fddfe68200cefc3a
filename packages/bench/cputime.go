package bench

import "time"

// CPUTime is the CPU time consumed by the process.
type CPUTime struct {
	User   time.Duration
	System time.Duration
}

// Total returns user plus system time.
func (c CPUTime) Total() time.Duration {
	return c.User + c.System
}

// Sub returns c - o.
func (c CPUTime) Sub(o CPUTime) CPUTime {
	return CPUTime{User: c.User - o.User, System: c.System - o.System}
}

// Add returns c + o.
func (c CPUTime) Add(o CPUTime) CPUTime {
	return CPUTime{User: c.User + o.User, System: c.System + o.System}
}
