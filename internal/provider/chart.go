// Package provider implements HTTP clients for the upstream price APIs: the
// primary chart endpoint and the optional secondary FX intraday provider.
//
// Clients translate transport-level failures into the fetcherr taxonomy and
// return bars already converted to internal models; retry and fallback
// policy live in the pipeline, not here.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"marketfetch/internal/fetcherr"
	"marketfetch/internal/models"
)

const (
	// DefaultChartBaseURL is the primary chart API host.
	DefaultChartBaseURL = "https://query1.finance.yahoo.com"

	chartEndpoint = "/v8/finance/chart/%s"

	// requestTimeout bounds a single upstream attempt.
	requestTimeout = 20 * time.Second

	userAgent = "Mozilla/5.0 (compatible; marketfetch/1.0)"
)

// ChartClient fetches OHLCV bars from the chart endpoint.
type ChartClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewChartClient creates a chart client. An empty baseURL selects the
// production host; tests point it at an httptest server.
func NewChartClient(baseURL string, logger *slog.Logger) *ChartClient {
	if baseURL == "" {
		baseURL = DefaultChartBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChartClient{
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL: baseURL,
		logger:  logger,
	}
}

// chartResponse mirrors the vendor's JSON shape. Quote columns arrive as
// mixed numbers and nulls, so they are decoded loosely and coerced.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []interface{} `json:"open"`
					High   []interface{} `json:"high"`
					Low    []interface{} `json:"low"`
					Close  []interface{} `json:"close"`
					Volume []interface{} `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchBars retrieves bars for the symbol over [start, end] at the given
// interval ("1m", "5m", "15m", "1h", "1d"). An HTTP 429 is returned as
// fetcherr.ErrThrottled; unexpected shapes and empty result lists as
// fetcherr.ErrMalformed. A response with rows but no usable bars yields
// fetcherr.ErrNoData.
func (c *ChartClient) FetchBars(ctx context.Context, symbol string, start, end time.Time, interval string) (models.PriceSeries, error) {
	u := fmt.Sprintf(c.baseURL+chartEndpoint, url.PathEscape(symbol)) +
		"?period1=" + strconv.FormatInt(start.Unix(), 10) +
		"&period2=" + strconv.FormatInt(end.Unix(), 10) +
		"&interval=" + normalizeInterval(interval)

	c.logger.Debug("fetching chart data",
		"symbol", symbol,
		"interval", interval,
		"start", start,
		"end", end)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("chart request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chart fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("chart fetch %s: %w", symbol, fetcherr.ErrThrottled)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("chart read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart fetch %s: status %d", symbol, resp.StatusCode)
	}

	var chart chartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("chart decode: %v: %w", err, fetcherr.ErrMalformed)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("chart api error %s: %w", chart.Chart.Error.Code, fetcherr.ErrMalformed)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 ||
		len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("chart fetch %s: empty result: %w", symbol, fetcherr.ErrMalformed)
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	series := make(models.PriceSeries, 0, len(result.Timestamp))

	for i, ts := range result.Timestamp {
		o := column(quote.Open, i)
		h := column(quote.High, i)
		l := column(quote.Low, i)
		cl := column(quote.Close, i)
		if o == 0 || h == 0 || l == 0 || cl == 0 {
			// Null or partially-null row (market closed, holiday). A bar
			// missing any price column cannot satisfy the OHLC invariants.
			continue
		}
		series = append(series, models.PriceBar{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      decimal.NewFromFloat(o),
			High:      decimal.NewFromFloat(h),
			Low:       decimal.NewFromFloat(l),
			Close:     decimal.NewFromFloat(cl),
			Volume:    decimal.NewFromFloat(column(quote.Volume, i)),
		})
	}

	if len(series) == 0 {
		return nil, fmt.Errorf("chart fetch %s: %w", symbol, fetcherr.ErrNoData)
	}
	return series.Normalize(), nil
}

// normalizeInterval maps internal interval names to the vendor's parameter.
func normalizeInterval(interval string) string {
	switch interval {
	case "1h":
		return "60m"
	default:
		return interval
	}
}

// column coerces a loosely decoded quote cell to a float, treating nulls and
// unexpected types as zero.
func column(values []interface{}, i int) float64 {
	if i >= len(values) || values[i] == nil {
		return 0
	}
	switch n := values[i].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
