package models

import (
	"fmt"
	"time"
)

// FetchWindow identifies one logical data request: a symbol plus a start and
// end instant. The end is clamped to the construction time, so a window can
// never extend into the future.
type FetchWindow struct {
	Symbol string
	Start  time.Time
	End    time.Time
}

// NewFetchWindow builds a window for the given symbol and range, clamping
// end to now and swapping start/end if they arrive reversed.
func NewFetchWindow(symbol string, start, end time.Time) FetchWindow {
	now := time.Now().UTC()
	if end.After(now) {
		end = now
	}
	if start.After(end) {
		start, end = end, start
	}
	return FetchWindow{Symbol: symbol, Start: start.UTC(), End: end.UTC()}
}

// Key derives the cache key for the window: symbol plus start/end truncated
// to minute granularity. Windows that differ only by seconds collapse to the
// same key, which keeps jittered "now" clamping from exploding the key space.
func (w FetchWindow) Key() string {
	return fmt.Sprintf("%s|%d|%d",
		w.Symbol,
		w.Start.Truncate(time.Minute).Unix(),
		w.End.Truncate(time.Minute).Unix())
}

// Duration returns the span of the window.
func (w FetchWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Widen returns a copy of the window expanded by pad on both sides, with the
// end still clamped to now.
func (w FetchWindow) Widen(pad time.Duration) FetchWindow {
	return NewFetchWindow(w.Symbol, w.Start.Add(-pad), w.End.Add(pad))
}
