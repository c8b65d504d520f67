package commands

import "time"

// SetNow replaces the clock used for due dates and returns a restore func.
func SetNow(f func() time.Time) func() {
	prev := now
	now = f
	return func() { now = prev }
}
