// Package archive persists fetched price series on disk so chart artifacts
// survive restarts. The retention window is governed by the chart cache
// retention setting and enforced by Prune; this store is independent of the
// short-lived in-memory price cache.
package archive

import (
	"context"
	"time"

	"marketfetch/internal/models"
)

// SeriesArchive stores and retrieves price series per symbol.
type SeriesArchive interface {
	// Store persists the series for a symbol, overwriting bars that share a
	// timestamp.
	Store(ctx context.Context, symbol string, series models.PriceSeries) error

	// Load returns the archived bars for the symbol inside [start, end],
	// ascending. An empty series and nil error mean nothing is archived.
	Load(ctx context.Context, symbol string, start, end time.Time) (models.PriceSeries, error)

	// Prune removes bars fetched before the cutoff.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases the underlying resources.
	Close() error
}
