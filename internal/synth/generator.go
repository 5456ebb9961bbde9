package synth

import (
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"marketfetch/internal/models"
)

// envelope bounds the walk to ±2% around the reference price.
const envelope = 0.02

// maxStepFraction limits a single step of the walk relative to the
// reference price, keeping the output plausible at chart scale.
const maxStepFraction = 0.004

// referencePrices anchors the walk per symbol so synthetic charts sit in a
// believable price region. Symbols without an entry walk around 1.0.
var referencePrices = map[string]float64{
	"EURUSD=X": 1.08,
	"EURGBP=X": 0.85,
	"EURJPY=X": 161.0,
	"GBPUSD=X": 1.27,
	"USDJPY=X": 149.0,
	"USDCHF=X": 0.88,
	"USDCAD=X": 1.36,
	"AUDUSD=X": 0.66,
	"NZDUSD=X": 0.61,
	"XAUUSD=X": 2350.0,
	"GC=F":     2350.0,
	"BTC-USD":  64000.0,
}

// Generate produces a synthetic price series for the window: a bounded
// random walk around the symbol's reference price. Bar spacing follows the
// window length (up to 6h at 5m bars, up to 3d at 1h, daily beyond that).
//
// Randomness is seeded from the wall clock on every call, so two rapid
// fetches for the same symbol can legitimately diverge. That variety is
// intentional; callers must not expect determinism.
func Generate(symbol string, start, end time.Time) models.PriceSeries {
	if !start.Before(end) {
		return nil
	}

	step := barSpacing(end.Sub(start))
	seed := uint64(time.Now().UnixNano())
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	ref := referencePrices[symbol]
	if ref == 0 {
		ref = 1.0
	}
	lo, hi := ref*(1-envelope), ref*(1+envelope)

	closes := make(models.PriceSeries, 0, end.Sub(start)/step+1)
	price := ref
	for t := start.UTC(); t.Before(end); t = t.Add(step) {
		price += (rng.Float64()*2 - 1) * maxStepFraction * ref
		if price < lo {
			price = lo
		}
		if price > hi {
			price = hi
		}
		closes = append(closes, models.PriceBar{
			Timestamp: t,
			Close:     decimal.NewFromFloat(price).Round(6),
		})
	}

	series, err := FromCloses(closes)
	if err != nil {
		// Only reachable with an empty walk, which the window check above
		// already excludes.
		return nil
	}
	return series
}

func barSpacing(window time.Duration) time.Duration {
	switch {
	case window <= 6*time.Hour:
		return 5 * time.Minute
	case window <= 72*time.Hour:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}
