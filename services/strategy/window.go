package strategy

import (
	"time"

	"breakout_bot/config"
)

const candleStep = 5 * time.Minute

var (
	openingStart = config.Clock{Hour: 9, Minute: 15}
	openingEnd   = config.Clock{Hour: 9, Minute: 30}
)

// OpeningWindow returns the 09:15-09:30 baseline window on the day of now
func OpeningWindow(now time.Time) (from, to time.Time) {
	return openingStart.On(now), openingEnd.On(now)
}

// AlignedWindow returns the latest closed 5-minute window: the current
// minute is floored to a multiple of five and the window ends there.
func AlignedWindow(now time.Time) (from, to time.Time) {
	to = now.Truncate(time.Minute)
	to = to.Add(-time.Duration(to.Minute()%5) * time.Minute)
	return to.Add(-candleStep), to
}

// NextPollTime returns when the first poll tick should fire. Before the
// configured first poll it is that time today; afterwards it is the next
// 5-minute boundary plus one second.
func NextPollTime(now time.Time, first config.Clock) time.Time {
	firstPoll := first.On(now)
	if !now.After(firstPoll) {
		return firstPoll
	}
	hour := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 1, 0, now.Location())
	nextSlot := (now.Minute()/5 + 1) * 5
	return hour.Add(time.Duration(nextSlot) * time.Minute)
}

// InitialDelay returns the wait before the first poll, never negative
func InitialDelay(now time.Time, first config.Clock) time.Duration {
	d := NextPollTime(now, first).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
