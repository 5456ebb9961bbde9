package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// PriceSeries is an ordered, time-ascending, duplicate-free sequence of
// price bars for one symbol. A series is created by a successful fetch and
// treated as immutable once handed to a caller; a fresher fetch supersedes
// it rather than mutating it.
type PriceSeries []PriceBar

// IsEmpty reports whether the series contains no bars.
func (s PriceSeries) IsEmpty() bool {
	return len(s) == 0
}

// Normalize returns a copy of the series sorted by timestamp ascending with
// duplicate timestamps removed (the last bar for a timestamp wins).
func (s PriceSeries) Normalize() PriceSeries {
	if len(s) == 0 {
		return s
	}

	byTime := make(map[time.Time]PriceBar, len(s))
	for _, bar := range s {
		byTime[bar.Timestamp] = bar
	}

	out := make(PriceSeries, 0, len(byTime))
	for _, bar := range byTime {
		out = append(out, bar)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Closes returns the close column of the series.
func (s PriceSeries) Closes() []decimal.Decimal {
	closes := make([]decimal.Decimal, len(s))
	for i, bar := range s {
		closes[i] = bar.Close
	}
	return closes
}

// First returns the earliest bar. The series must be non-empty.
func (s PriceSeries) First() PriceBar { return s[0] }

// Last returns the latest bar. The series must be non-empty.
func (s PriceSeries) Last() PriceBar { return s[len(s)-1] }
