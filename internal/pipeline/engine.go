// Package pipeline orchestrates market-data acquisition through an ordered
// ladder of fallback tiers: cache lookup, primary fetch with interval
// escalation, a widened daily window, alternate data sources, and an
// optional synthetic series.
//
// The ladder is a first-class list of stages iterated per symbol candidate.
// Every tier either produces a non-empty series (which is cached under the
// original window and returned) or passes control to the next one. Running
// out of tiers is a normal outcome: the engine answers with an empty series,
// never an error, because "no data" is a legitimate market state.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketfetch/internal/cache"
	"marketfetch/internal/models"
	"marketfetch/internal/ratelimit"
	"marketfetch/internal/symbols"
	"marketfetch/internal/synth"
)

// ChartFetcher is the primary upstream client used by the engine.
type ChartFetcher interface {
	FetchBars(ctx context.Context, symbol string, start, end time.Time, interval string) (models.PriceSeries, error)
}

// FXFetcher is the optional secondary provider client. Configured reports
// whether the client can issue requests at all; an unconfigured client is
// skipped before any rate-limit wait.
type FXFetcher interface {
	FetchIntraday(ctx context.Context, fromSymbol, toSymbol string) (models.PriceSeries, error)
	Configured() bool
}

// Options selects the optional fallback tiers and tunes retry timing.
type Options struct {
	// AllowMockData enables the synthetic fallback tier.
	AllowMockData bool

	// EnableSecondaryProvider enables the FX intraday tier.
	EnableSecondaryProvider bool

	// EnableAlternateSymbols enables alternate symbol spellings.
	EnableAlternateSymbols bool

	// RetryInitialInterval is the base delay between attempts within one
	// escalation interval. Zero selects 2s.
	RetryInitialInterval time.Duration

	// PrimaryCooldown is the cooldown applied when the chart API throttles.
	// Zero selects 90s.
	PrimaryCooldown time.Duration

	// SecondaryCooldown is the cooldown applied when the FX provider
	// throttles. Zero selects 60s.
	SecondaryCooldown time.Duration
}

func (o *Options) normalize() {
	if o.RetryInitialInterval <= 0 {
		o.RetryInitialInterval = 2 * time.Second
	}
	if o.PrimaryCooldown <= 0 {
		o.PrimaryCooldown = 90 * time.Second
	}
	if o.SecondaryCooldown <= 0 {
		o.SecondaryCooldown = 60 * time.Second
	}
}

// Engine is the market-data acquisition engine. One instance owns the shared
// price cache and cooldown controller; collaborators receive it by injection
// and may call it concurrently.
type Engine struct {
	cache   *cache.PriceCache
	limiter *ratelimit.Controller
	chart   ChartFetcher
	fx      FXFetcher
	opts    Options
	logger  *slog.Logger
	metrics Metrics

	// missingKeyOnce collapses repeated missing-API-key reports to one log line.
	missingKeyOnce sync.Once
}

// New creates an engine. The fx client may be nil when the secondary
// provider tier is disabled.
func New(priceCache *cache.PriceCache, limiter *ratelimit.Controller, chart ChartFetcher, fx FXFetcher, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	opts.normalize()
	return &Engine{
		cache:   priceCache,
		limiter: limiter,
		chart:   chart,
		fx:      fx,
		opts:    opts,
		logger:  logger,
	}
}

// stage is one rung of the fallback ladder.
type stage struct {
	name string
	run  func(ctx context.Context, w models.FetchWindow, log *slog.Logger) (models.PriceSeries, error)
}

func (e *Engine) stages() []stage {
	return []stage{
		{name: "cache_lookup", run: e.cacheLookup},
		{name: "primary_fetch", run: e.primaryFetch},
		{name: "widened_window", run: e.widenedWindow},
		{name: "alternate_source", run: e.alternateSource},
		{name: "synthetic", run: e.synthetic},
	}
}

// Fetch acquires a price series for a currency code or explicit symbol over
// [start, end]. Currency codes expand to their candidate pairs, tried in
// priority order; the ladder runs once per candidate and stops at the first
// non-empty result. An empty series with a nil error means every tier was
// exhausted; callers treat that as "no chart available", not a failure.
//
// The only returned error is the context's: every upstream failure mode is
// absorbed by the ladder.
func (e *Engine) Fetch(ctx context.Context, symbolOrCurrency string, start, end time.Time) (models.PriceSeries, error) {
	candidates := e.ResolveSymbol(symbolOrCurrency)

	log := e.logger.With("request_id", uuid.NewString()[:8], "input", symbolOrCurrency)

	for _, candidate := range candidates {
		w := models.NewFetchWindow(candidate, start, end)
		series, err := e.runLadder(ctx, w, log.With("symbol", candidate))
		if err != nil {
			return nil, err
		}
		if !series.IsEmpty() {
			return series, nil
		}
	}

	e.metrics.noDataResults.Add(1)
	log.Info("all candidates and tiers exhausted, no data")
	return models.PriceSeries{}, nil
}

// runLadder executes the fallback stages for one candidate symbol. Stage
// errors are absorbed; only context errors propagate.
func (e *Engine) runLadder(ctx context.Context, w models.FetchWindow, log *slog.Logger) (models.PriceSeries, error) {
	for i, st := range e.stages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		series, err := st.run(ctx, w, log)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Debug("tier exhausted", "tier", st.name, "error", err)
			continue
		}
		if series.IsEmpty() {
			log.Debug("tier produced no data", "tier", st.name)
			continue
		}

		// A cache hit is already stored; every other tier's result is
		// written back under the original, non-widened window.
		if i > 0 {
			e.cache.Put(w.Symbol, w.Start, w.End, series)
		}
		log.Info("price series acquired", "tier", st.name, "bars", len(series))
		return series, nil
	}
	return nil, nil
}

// ResolveSymbol maps a currency code to its candidate pairs. Anything that
// is not a known currency is taken as an explicit symbol.
func (e *Engine) ResolveSymbol(symbolOrCurrency string) []string {
	if symbols.IsKnownCurrency(symbolOrCurrency) {
		return symbols.PairsFor(symbolOrCurrency)
	}
	return []string{symbolOrCurrency}
}

// SynthesizeOHLC rebuilds a full OHLC frame from a close-only series.
func (e *Engine) SynthesizeOHLC(series models.PriceSeries) (models.PriceSeries, error) {
	return synth.FromCloses(series)
}

// InCooldown reports whether the shared controller currently blocks
// upstream calls.
func (e *Engine) InCooldown() bool {
	return e.limiter.InCooldown()
}

// Metrics returns a snapshot of the engine counters.
func (e *Engine) Metrics() MetricsSnapshot {
	return e.metrics.Snapshot()
}
