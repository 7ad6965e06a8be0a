package main

import (
	"time"
)

var _ TickerClocker = (*SystemClock)(nil)

// Clocker provides the current time. Cache freshness, due date checks and
// request durations all read it, so tests can freeze or advance time.
type Clocker interface {
	Now() time.Time
}

// TickerClocker also provides tickers for the cache janitor. It matches
// zapcore.Clock so the same clock stamps the logs.
type TickerClocker interface {
	Clocker
	NewTicker(time.Duration) *time.Ticker
}

// SystemClock reads the wall clock in a fixed location.
type SystemClock struct {
	loc *time.Location
}

// NewSystemClock reports time in UTC in production and in the
// local timezone during development.
func NewSystemClock(isProd bool) *SystemClock {
	if isProd {
		return &SystemClock{loc: time.UTC}
	}
	return &SystemClock{loc: time.Local}
}

func (c *SystemClock) Now() time.Time {
	return time.Now().In(c.loc)
}

func (c *SystemClock) NewTicker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}
