package archive

import (
	"context"
	"sort"
	"sync"
	"time"

	"marketfetch/internal/models"
)

// MemoryArchive is an in-memory SeriesArchive used in tests and as a
// fallback when no archive path is configured.
type MemoryArchive struct {
	mu   sync.RWMutex
	bars map[string]map[time.Time]archivedBar
}

type archivedBar struct {
	bar       models.PriceBar
	fetchedAt time.Time
}

// NewMemoryArchive creates an empty in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{bars: make(map[string]map[time.Time]archivedBar)}
}

// Store implements SeriesArchive.Store.
func (m *MemoryArchive) Store(ctx context.Context, symbol string, series models.PriceSeries) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.bars[symbol] == nil {
		m.bars[symbol] = make(map[time.Time]archivedBar)
	}
	now := time.Now().UTC()
	for _, bar := range series {
		m.bars[symbol][bar.Timestamp] = archivedBar{bar: bar, fetchedAt: now}
	}
	return nil
}

// Load implements SeriesArchive.Load.
func (m *MemoryArchive) Load(ctx context.Context, symbol string, start, end time.Time) (models.PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var series models.PriceSeries
	for ts, stored := range m.bars[symbol] {
		if ts.Before(start) || ts.After(end) {
			continue
		}
		series = append(series, stored.bar)
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Timestamp.Before(series[j].Timestamp) })
	return series, nil
}

// Prune implements SeriesArchive.Prune.
func (m *MemoryArchive) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for symbol, bars := range m.bars {
		for ts, stored := range bars {
			if stored.fetchedAt.Before(cutoff) {
				delete(bars, ts)
				removed++
			}
		}
		if len(bars) == 0 {
			delete(m.bars, symbol)
		}
	}
	return removed, nil
}

// Close implements SeriesArchive.Close.
func (m *MemoryArchive) Close() error { return nil }
