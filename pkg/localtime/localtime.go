package localtime

import "time"

// Zone is the school's fixed UTC+8 wall-clock zone. Stored timestamps for
// the registration subsystem follow this convention regardless of host
// timezone; expirations are computed against the same clock.
var Zone = time.FixedZone("UTC+8", 8*60*60)

// Clock supplies the current school wall-clock time. Services take a Clock
// so tests can pin the instant.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// System is the default clock backed by the process clock.
var System Clock = ClockFunc(func() time.Time { return time.Now().In(Zone) })

// In converts an instant to the school zone.
func In(t time.Time) time.Time { return t.In(Zone) }

// Fixed returns a clock pinned to t, for tests.
func Fixed(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t.In(Zone) })
}
