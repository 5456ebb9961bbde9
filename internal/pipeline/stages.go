package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"marketfetch/internal/fetcherr"
	"marketfetch/internal/models"
	"marketfetch/internal/symbols"
	"marketfetch/internal/synth"
)

// escalationIntervals is the primary-fetch interval ladder, finest first.
var escalationIntervals = []string{"1m", "5m", "15m", "1h"}

// maxAttemptsPerInterval bounds retries within one escalation interval.
const maxAttemptsPerInterval = 3

// alternateInterval is the only interval tried for alternate spellings.
const alternateInterval = "1h"

// widenPad is the slack added around the window by the widened tier,
// catching bars that fell outside the original range through market-hours
// or timezone alignment.
const widenPad = 24 * time.Hour

// cacheLookup serves the request from the price cache when a fresh entry
// exists. A hit never touches the rate limiter or the upstream.
func (e *Engine) cacheLookup(ctx context.Context, w models.FetchWindow, log *slog.Logger) (models.PriceSeries, error) {
	if series, ok := e.cache.Get(w.Symbol, w.Start, w.End); ok {
		e.metrics.cacheHits.Add(1)
		return series, nil
	}
	e.metrics.cacheMisses.Add(1)
	return nil, nil
}

// primaryFetch walks the interval escalation ladder against the chart API.
// Throttling anywhere aborts the whole tier after arming the cooldown; a
// malformed response is a soft miss that also advances to the next tier,
// since retrying it rarely helps. Only network-class failures burn through
// the per-interval attempt budget.
func (e *Engine) primaryFetch(ctx context.Context, w models.FetchWindow, log *slog.Logger) (models.PriceSeries, error) {
	for _, interval := range escalationIntervals {
		series, err := e.fetchWithRetry(ctx, w, interval, log)
		if err != nil {
			switch fetcherr.Classify(err) {
			case fetcherr.TypeThrottling:
				e.metrics.throttleEvents.Add(1)
				e.limiter.ReportThrottled(e.opts.PrimaryCooldown)
				return nil, fmt.Errorf("primary fetch aborted: %w", err)
			case fetcherr.TypeMalformed:
				return nil, fmt.Errorf("primary fetch aborted: %w", err)
			default:
				log.Debug("interval exhausted, escalating", "interval", interval, "error", err)
				continue
			}
		}
		if !series.IsEmpty() {
			return series, nil
		}
	}
	return nil, fetcherr.ErrNoData
}

// widenedWindow makes a single daily-granularity attempt over the window
// padded by one day on each side.
func (e *Engine) widenedWindow(ctx context.Context, w models.FetchWindow, log *slog.Logger) (models.PriceSeries, error) {
	wide := w.Widen(widenPad)

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	e.metrics.upstreamCalls.Add(1)

	series, err := e.chart.FetchBars(ctx, wide.Symbol, wide.Start, wide.End, "1d")
	if err != nil {
		if fetcherr.Classify(err) == fetcherr.TypeThrottling {
			e.metrics.throttleEvents.Add(1)
			e.limiter.ReportThrottled(e.opts.PrimaryCooldown)
		}
		return nil, fmt.Errorf("widened fetch: %w", err)
	}
	return series, nil
}

// alternateSource tries the secondary FX provider and then alternate symbol
// spellings, both behind their feature flags.
func (e *Engine) alternateSource(ctx context.Context, w models.FetchWindow, log *slog.Logger) (models.PriceSeries, error) {
	if e.opts.EnableSecondaryProvider && e.fx != nil {
		if series := e.secondaryFetch(ctx, w, log); !series.IsEmpty() {
			return series, nil
		}
	}

	if e.opts.EnableAlternateSymbols {
		for _, alt := range symbols.AlternatePairs(w.Symbol) {
			altWindow := models.NewFetchWindow(alt, w.Start, w.End)
			series, err := e.fetchWithRetry(ctx, altWindow, alternateInterval, log)
			if err != nil {
				if fetcherr.Classify(err) == fetcherr.TypeThrottling {
					e.metrics.throttleEvents.Add(1)
					e.limiter.ReportThrottled(e.opts.PrimaryCooldown)
					return nil, fmt.Errorf("alternate fetch aborted: %w", err)
				}
				log.Debug("alternate symbol failed", "alternate", alt, "error", err)
				continue
			}
			if !series.IsEmpty() {
				log.Info("alternate symbol produced data", "alternate", alt)
				return series, nil
			}
		}
	}

	return nil, fetcherr.ErrNoData
}

// secondaryFetch queries the FX intraday provider for supported pairs. A
// missing API key disables the feature for the call and is reported once
// per process; the pipeline carries on with the remaining tiers.
func (e *Engine) secondaryFetch(ctx context.Context, w models.FetchWindow, log *slog.Logger) models.PriceSeries {
	from, to, ok := fxPair(w.Symbol)
	if !ok {
		log.Debug("symbol not supported by secondary provider", "symbol", w.Symbol)
		return nil
	}

	// An unconfigured client never reaches the network; skipping before the
	// limiter keeps the tier from spending spacing or cooldown budget on it.
	if !e.fx.Configured() {
		e.missingKeyOnce.Do(func() {
			e.logger.Warn("secondary provider enabled but not configured, skipping tier")
		})
		return nil
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil
	}
	e.metrics.upstreamCalls.Add(1)

	series, err := e.fx.FetchIntraday(ctx, from, to)
	if err != nil {
		switch fetcherr.Classify(err) {
		case fetcherr.TypeConfiguration:
			e.missingKeyOnce.Do(func() {
				e.logger.Warn("secondary provider enabled but not configured, skipping tier", "error", err)
			})
		case fetcherr.TypeThrottling:
			e.metrics.throttleEvents.Add(1)
			e.limiter.ReportThrottled(e.opts.SecondaryCooldown)
		default:
			log.Debug("secondary provider failed", "error", err)
		}
		return nil
	}
	return series
}

// synthetic generates a placeholder walk when the configuration allows it.
// The tier is loud on purpose: operators must be able to tell synthetic
// charts from market data.
func (e *Engine) synthetic(ctx context.Context, w models.FetchWindow, log *slog.Logger) (models.PriceSeries, error) {
	if !e.opts.AllowMockData {
		return nil, fetcherr.ErrNoData
	}

	series := synth.Generate(w.Symbol, w.Start, w.End)
	if series.IsEmpty() {
		return nil, fetcherr.ErrNoData
	}
	e.metrics.syntheticServes.Add(1)
	log.Warn("serving synthetic data, all real sources exhausted",
		"symbol", w.Symbol, "bars", len(series))
	return series, nil
}

// fetchWithRetry performs up to maxAttemptsPerInterval chart calls for one
// interval with exponential backoff between attempts. Rate-limit clearance
// is awaited before every attempt. Throttling and malformed responses stop
// the retry loop immediately and bubble up for the caller to classify.
func (e *Engine) fetchWithRetry(ctx context.Context, w models.FetchWindow, interval string, log *slog.Logger) (models.PriceSeries, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.opts.RetryInitialInterval
	bo.Multiplier = 2.0
	bo.RandomizationFactor = 0.25
	bo.MaxElapsedTime = 0 // the attempt cap bounds the loop, not a clock

	var series models.PriceSeries
	operation := func() error {
		if err := e.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		e.metrics.upstreamCalls.Add(1)

		s, err := e.chart.FetchBars(ctx, w.Symbol, w.Start, w.End, interval)
		if err != nil {
			t := fetcherr.Classify(err)
			if t == fetcherr.TypeThrottling || t == fetcherr.TypeMalformed || !fetcherr.Retryable(t) {
				return backoff.Permanent(err)
			}
			log.Debug("attempt failed, will retry", "interval", interval, "error", err)
			return err
		}
		series = s
		return nil
	}

	err := backoff.Retry(operation,
		backoff.WithMaxRetries(backoff.WithContext(bo, ctx), maxAttemptsPerInterval-1))
	if err != nil {
		// backoff.Permanent unwrapping keeps the original sentinel visible.
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Err
		}
		return nil, err
	}
	return series, nil
}

// fxPair splits a "BASEQUOTE=X" symbol into its currency legs for the
// secondary provider. Other shapes are unsupported.
func fxPair(symbol string) (from, to string, ok bool) {
	trimmed, found := strings.CutSuffix(symbol, "=X")
	if !found || len(trimmed) != 6 {
		return "", "", false
	}
	return trimmed[:3], trimmed[3:], true
}
