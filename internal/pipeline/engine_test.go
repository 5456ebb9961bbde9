package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketfetch/internal/cache"
	"marketfetch/internal/models"
	"marketfetch/internal/provider"
	"marketfetch/internal/ratelimit"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// chartPayload builds a vendor-shaped chart response with n hourly bars.
func chartPayload(t *testing.T, start time.Time, n int) []byte {
	t.Helper()

	timestamps := make([]int64, n)
	opens := make([]interface{}, n)
	highs := make([]interface{}, n)
	lows := make([]interface{}, n)
	closes := make([]interface{}, n)
	volumes := make([]interface{}, n)
	for i := 0; i < n; i++ {
		timestamps[i] = start.Add(time.Duration(i) * time.Hour).Unix()
		opens[i] = 1.0850
		highs[i] = 1.0861
		lows[i] = 1.0842
		closes[i] = 1.0855
		volumes[i] = 0.0
	}

	payload := map[string]interface{}{
		"chart": map[string]interface{}{
			"result": []interface{}{
				map[string]interface{}{
					"timestamp": timestamps,
					"indicators": map[string]interface{}{
						"quote": []interface{}{
							map[string]interface{}{
								"open":   opens,
								"high":   highs,
								"low":    lows,
								"close":  closes,
								"volume": volumes,
							},
						},
					},
				},
			},
		},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return body
}

// emptyChartPayload is a decodable response with no results. The chart
// client reports it as malformed, which makes a tier give up after a
// single request.
const emptyChartPayload = `{"chart":{"result":[]}}`

type testEngineConfig struct {
	chartHandler http.HandlerFunc
	fxHandler    http.HandlerFunc
	fxAPIKey     string
	opts         Options
}

func newTestEngine(t *testing.T, cfg testEngineConfig) (*Engine, *httptest.Server) {
	t.Helper()

	chartSrv := httptest.NewServer(cfg.chartHandler)
	t.Cleanup(chartSrv.Close)

	var fx FXFetcher
	if cfg.fxHandler != nil {
		fxSrv := httptest.NewServer(cfg.fxHandler)
		t.Cleanup(fxSrv.Close)
		fx = provider.NewFXClient(fxSrv.URL, cfg.fxAPIKey, discardLogger())
	} else if cfg.opts.EnableSecondaryProvider {
		fx = provider.NewFXClient("http://127.0.0.1:0", cfg.fxAPIKey, discardLogger())
	}

	if cfg.opts.RetryInitialInterval == 0 {
		cfg.opts.RetryInitialInterval = time.Millisecond
	}
	if cfg.opts.PrimaryCooldown == 0 {
		cfg.opts.PrimaryCooldown = 20 * time.Millisecond
	}
	if cfg.opts.SecondaryCooldown == 0 {
		cfg.opts.SecondaryCooldown = 20 * time.Millisecond
	}

	engine := New(
		cache.New(time.Minute, discardLogger()),
		ratelimit.New(time.Millisecond, discardLogger()),
		provider.NewChartClient(chartSrv.URL, discardLogger()),
		fx,
		cfg.opts,
		discardLogger(),
	)
	return engine, chartSrv
}

func TestEngine_CacheHitSkipsUpstream(t *testing.T) {
	var requests atomic.Int64
	engine, _ := newTestEngine(t, testEngineConfig{
		chartHandler: func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			http.Error(w, "should not be called", http.StatusInternalServerError)
		},
	})

	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Hour)
	bar, err := models.NewPriceBar(start, "1.0850", "1.0861", "1.0842", "1.0855", "0")
	require.NoError(t, err)
	engine.cache.Put("EURUSD=X", start, end, models.PriceSeries{*bar})

	series, err := engine.Fetch(context.Background(), "EURUSD=X", start, end)
	require.NoError(t, err)
	require.Len(t, series, 1)

	assert.Zero(t, requests.Load())
	snap := engine.Metrics()
	assert.EqualValues(t, 1, snap.CacheHits)
	assert.Zero(t, snap.UpstreamCalls)
}

func TestEngine_PrimaryFetchCachesResult(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Hour)

	var requests atomic.Int64
	engine, _ := newTestEngine(t, testEngineConfig{
		chartHandler: func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			assert.Equal(t, "/v8/finance/chart/EURUSD=X", r.URL.Path)
			w.Write(chartPayload(t, start, 4))
		},
	})

	series, err := engine.Fetch(context.Background(), "EURUSD=X", start, end)
	require.NoError(t, err)
	require.Len(t, series, 4)
	assert.EqualValues(t, 1, requests.Load())

	// The second call is answered from the cache.
	again, err := engine.Fetch(context.Background(), "EURUSD=X", start, end)
	require.NoError(t, err)
	assert.Equal(t, series, again)
	assert.EqualValues(t, 1, requests.Load())

	snap := engine.Metrics()
	assert.EqualValues(t, 1, snap.CacheHits)
	assert.EqualValues(t, 1, snap.CacheMisses)
	assert.EqualValues(t, 1, snap.UpstreamCalls)
}

func TestEngine_ThrottleAbortsPrimaryTier(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out the raised request spacing")
	}

	var requests atomic.Int64
	engine, _ := newTestEngine(t, testEngineConfig{
		chartHandler: func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		},
	})

	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	series, err := engine.Fetch(context.Background(), "EURUSD=X", start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, series)

	// The primary tier stops after its first 429 instead of walking the
	// interval ladder; the widened tier then makes exactly one more attempt.
	assert.EqualValues(t, 2, requests.Load())
	assert.True(t, engine.InCooldown())
	snap := engine.Metrics()
	assert.EqualValues(t, 2, snap.ThrottleEvents)
}

func TestEngine_ExhaustedReturnsEmptySeries(t *testing.T) {
	var requests atomic.Int64
	engine, _ := newTestEngine(t, testEngineConfig{
		chartHandler: func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.Write([]byte(emptyChartPayload))
		},
	})

	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	series, err := engine.Fetch(context.Background(), "EURUSD=X", start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.NotNil(t, series)
	assert.True(t, series.IsEmpty())

	// One malformed response per remote tier: primary, then widened.
	assert.EqualValues(t, 2, requests.Load())
	snap := engine.Metrics()
	assert.EqualValues(t, 1, snap.NoDataResults)
	assert.Zero(t, snap.SyntheticServes)
}

func TestEngine_SyntheticFallback(t *testing.T) {
	engine, _ := newTestEngine(t, testEngineConfig{
		chartHandler: func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(emptyChartPayload))
		},
		opts: Options{AllowMockData: true},
	})

	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	series, err := engine.Fetch(context.Background(), "EURUSD=X", start, start.Add(time.Hour))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(series), 12, "an hour at 5m spacing")

	for _, bar := range series {
		require.NoError(t, bar.Validate())
	}
	snap := engine.Metrics()
	assert.EqualValues(t, 1, snap.SyntheticServes)
}

func TestEngine_CandidateFallbackForCurrency(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	var sawFallbackPair atomic.Bool
	engine, _ := newTestEngine(t, testEngineConfig{
		chartHandler: func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.URL.Path, "EURGBP=X") {
				sawFallbackPair.Store(true)
				w.Write(chartPayload(t, start, 3))
				return
			}
			w.Write([]byte(emptyChartPayload))
		},
	})

	series, err := engine.Fetch(context.Background(), "EUR", start, start.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.True(t, sawFallbackPair.Load(), "second candidate pair should be tried")
}

func TestEngine_AlternateSymbolSpelling(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	var gotInterval atomic.Value
	engine, _ := newTestEngine(t, testEngineConfig{
		chartHandler: func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.URL.Path, "/EUR=X") {
				gotInterval.Store(r.URL.Query().Get("interval"))
				w.Write(chartPayload(t, start, 2))
				return
			}
			w.Write([]byte(emptyChartPayload))
		},
		opts: Options{EnableAlternateSymbols: true},
	})

	series, err := engine.Fetch(context.Background(), "EURUSD=X", start, start.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "60m", gotInterval.Load(), "alternate spellings are fetched hourly")
}

func TestEngine_SecondaryProviderFX(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	fxPayload := `{"Time Series FX (60min)": {
		"2024-05-01 09:00:00": {"1. open": "1.0850", "2. high": "1.0861", "3. low": "1.0842", "4. close": "1.0855"},
		"2024-05-01 10:00:00": {"1. open": "1.0855", "2. high": "1.0870", "3. low": "1.0850", "4. close": "1.0862"}
	}}`

	var fxQueried atomic.Bool
	engine, _ := newTestEngine(t, testEngineConfig{
		chartHandler: func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(emptyChartPayload))
		},
		fxHandler: func(w http.ResponseWriter, r *http.Request) {
			fxQueried.Store(true)
			assert.Equal(t, "EUR", r.URL.Query().Get("from_symbol"))
			assert.Equal(t, "USD", r.URL.Query().Get("to_symbol"))
			w.Write([]byte(fxPayload))
		},
		fxAPIKey: "test-key",
		opts:     Options{EnableSecondaryProvider: true},
	})

	series, err := engine.Fetch(context.Background(), "EURUSD=X", start, start.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.True(t, fxQueried.Load())
}

func TestEngine_SecondaryProviderMissingKey(t *testing.T) {
	engine, _ := newTestEngine(t, testEngineConfig{
		chartHandler: func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(emptyChartPayload))
		},
		fxHandler: func(w http.ResponseWriter, r *http.Request) {
			t.Error("fx provider must not be queried without an api key")
		},
		fxAPIKey: "",
		opts:     Options{EnableSecondaryProvider: true},
	})

	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	series, err := engine.Fetch(context.Background(), "EURUSD=X", start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, series.IsEmpty())
}

func TestEngine_SecondaryProviderMissingKeySkipsLimiter(t *testing.T) {
	engine, _ := newTestEngine(t, testEngineConfig{
		chartHandler: func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(emptyChartPayload))
		},
		fxHandler: func(w http.ResponseWriter, r *http.Request) {
			t.Error("fx provider must not be queried without an api key")
		},
		fxAPIKey: "",
		opts:     Options{EnableSecondaryProvider: true},
	})

	// With a long cooldown armed, an unconfigured secondary tier must bail
	// out before the limiter instead of sitting the cooldown out.
	engine.limiter.ReportThrottled(time.Hour)

	w := models.NewFetchWindow("EURUSD=X",
		time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))

	began := time.Now()
	series := engine.secondaryFetch(context.Background(), w, discardLogger())
	assert.Nil(t, series)
	assert.Less(t, time.Since(began), time.Second)
}

func TestEngine_ContextCancellation(t *testing.T) {
	engine, _ := newTestEngine(t, testEngineConfig{
		chartHandler: func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(emptyChartPayload))
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	_, err := engine.Fetch(ctx, "EURUSD=X", start, start.Add(time.Hour))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_ResolveSymbol(t *testing.T) {
	engine, _ := newTestEngine(t, testEngineConfig{
		chartHandler: func(w http.ResponseWriter, r *http.Request) {},
	})

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "known currency", input: "EUR", want: []string{"EURUSD=X", "EURGBP=X"}},
		{name: "lowercase currency", input: "eur", want: []string{"EURUSD=X", "EURGBP=X"}},
		{name: "explicit symbol", input: "AAPL", want: []string{"AAPL"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, engine.ResolveSymbol(tt.input))
		})
	}
}

func TestFxPair(t *testing.T) {
	tests := []struct {
		symbol string
		from   string
		to     string
		ok     bool
	}{
		{symbol: "EURUSD=X", from: "EUR", to: "USD", ok: true},
		{symbol: "GBPJPY=X", from: "GBP", to: "JPY", ok: true},
		{symbol: "EUR=X", ok: false},
		{symbol: "BTC-USD", ok: false},
		{symbol: "GC=F", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			from, to, ok := fxPair(tt.symbol)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.from, from)
			assert.Equal(t, tt.to, to)
		})
	}
}
