package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"marketfetch/internal/fetcherr"
	"marketfetch/internal/models"
)

const (
	// DefaultFXBaseURL is the secondary provider host.
	DefaultFXBaseURL = "https://www.alphavantage.co"

	fxEndpoint = "/query"

	// fxSeriesKey is the payload key carrying the intraday series. Only the
	// 60-minute FX format is supported.
	fxSeriesKey = "Time Series FX (60min)"

	fxTimeLayout = "2006-01-02 15:04:05"
)

// FXClient fetches hourly FX bars from the secondary provider. It covers FX
// pairs only and exists purely as a fallback tier behind the chart API.
type FXClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

// NewFXClient creates a secondary-provider client. An empty baseURL selects
// the production host. The API key may be empty; FetchIntraday then fails
// with fetcherr.ErrMissingAPIKey so the pipeline can skip the tier.
func NewFXClient(baseURL, apiKey string, logger *slog.Logger) *FXClient {
	if baseURL == "" {
		baseURL = DefaultFXBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FXClient{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		logger:     logger,
	}
}

// Configured reports whether the client holds an API key. Callers check this
// before spending rate-limit budget on a request that cannot leave the
// process.
func (c *FXClient) Configured() bool {
	return c.apiKey != ""
}

type fxBar struct {
	Open  string `json:"1. open"`
	High  string `json:"2. high"`
	Low   string `json:"3. low"`
	Close string `json:"4. close"`
}

type fxResponse struct {
	Series       map[string]fxBar `json:"Time Series FX (60min)"`
	Note         string           `json:"Note"`
	ErrorMessage string           `json:"Error Message"`
}

// FetchIntraday retrieves hourly bars for the from/to currency pair. The
// provider signals throttling with a "Note" payload rather than a status
// code; that maps to fetcherr.ErrThrottled.
func (c *FXClient) FetchIntraday(ctx context.Context, fromSymbol, toSymbol string) (models.PriceSeries, error) {
	if c.apiKey == "" {
		return nil, fetcherr.ErrMissingAPIKey
	}

	params := url.Values{}
	params.Set("function", "FX_INTRADAY")
	params.Set("from_symbol", fromSymbol)
	params.Set("to_symbol", toSymbol)
	params.Set("interval", "60min")
	params.Set("apikey", c.apiKey)
	u := c.baseURL + fxEndpoint + "?" + params.Encode()

	c.logger.Debug("fetching fx intraday data", "from", fromSymbol, "to", toSymbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("fx request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fx fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("fx fetch %s/%s: %w", fromSymbol, toSymbol, fetcherr.ErrThrottled)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fx read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fx fetch %s/%s: status %d", fromSymbol, toSymbol, resp.StatusCode)
	}

	var payload fxResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("fx decode: %v: %w", err, fetcherr.ErrMalformed)
	}
	if payload.Note != "" {
		return nil, fmt.Errorf("fx fetch %s/%s: %s: %w", fromSymbol, toSymbol, payload.Note, fetcherr.ErrThrottled)
	}
	if payload.ErrorMessage != "" {
		return nil, fmt.Errorf("fx api error: %s: %w", payload.ErrorMessage, fetcherr.ErrMalformed)
	}
	if len(payload.Series) == 0 {
		return nil, fmt.Errorf("fx fetch %s/%s: empty series: %w", fromSymbol, toSymbol, fetcherr.ErrMalformed)
	}

	series := make(models.PriceSeries, 0, len(payload.Series))
	for stamp, bar := range payload.Series {
		ts, err := time.ParseInLocation(fxTimeLayout, stamp, time.UTC)
		if err != nil {
			c.logger.Warn("skipping fx bar with unparseable timestamp", "timestamp", stamp)
			continue
		}
		modelBar, err := models.NewPriceBar(ts, bar.Open, bar.High, bar.Low, bar.Close, "0")
		if err != nil {
			c.logger.Warn("skipping invalid fx bar", "timestamp", stamp, "error", err)
			continue
		}
		series = append(series, *modelBar)
	}

	if len(series) == 0 {
		return nil, fmt.Errorf("fx fetch %s/%s: %w", fromSymbol, toSymbol, fetcherr.ErrNoData)
	}
	return series.Normalize(), nil
}
