// Package synth reconstructs renderable OHLC frames from close-only series
// and generates synthetic placeholder series when every real data source has
// been exhausted and the configuration explicitly allows it.
package synth

import (
	"errors"

	"github.com/shopspring/decimal"

	"marketfetch/internal/models"
)

// ErrNoCloseData is returned when a close-only reconstruction is requested
// for a series that carries no bars. It is the package's only error path.
var ErrNoCloseData = errors.New("no close data in series")

// FromCloses rebuilds a full OHLC frame from a series where only the close
// column is trusted.
//
// For bar i, open is the previous bar's close; the first bar's open equals
// its own close. High and low bracket {open, close} exactly, with no slack:
// the result deliberately has zero intrabar range beyond the open/close gap.
// This is a documented fidelity degradation, not an attempt to recover true
// intrabar extremes. Timestamps and volumes are preserved.
func FromCloses(series models.PriceSeries) (models.PriceSeries, error) {
	if series.IsEmpty() {
		return nil, ErrNoCloseData
	}

	out := make(models.PriceSeries, len(series))
	prevClose := series[0].Close
	for i, bar := range series {
		open := prevClose
		out[i] = models.PriceBar{
			Timestamp: bar.Timestamp,
			Open:      open,
			High:      decimal.Max(open, bar.Close),
			Low:       decimal.Min(open, bar.Close),
			Close:     bar.Close,
			Volume:    bar.Volume,
		}
		prevClose = bar.Close
	}
	return out, nil
}
