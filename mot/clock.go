package mot

import "time"

// Clock provides current time to the engines. Tests inject a fixed clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// SystemClock returns a Clock backed by time.Now in UTC
func SystemClock() Clock {
	return systemClock{}
}
