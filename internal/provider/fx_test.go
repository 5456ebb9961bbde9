package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketfetch/internal/fetcherr"
)

const fxFixture = `{
	"Time Series FX (60min)": {
		"2024-05-01 11:00:00": {"1. open": "1.0861", "2. high": "1.0870", "3. low": "1.0855", "4. close": "1.0866"},
		"2024-05-01 10:00:00": {"1. open": "1.0850", "2. high": "1.0862", "3. low": "1.0845", "4. close": "1.0858"}
	}
}`

func fxTestServer(t *testing.T, apiKey string, handler http.HandlerFunc) *FXClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewFXClient(srv.URL, apiKey, nil)
}

func TestFXClient_MissingAPIKey(t *testing.T) {
	called := false
	client := fxTestServer(t, "", func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := client.FetchIntraday(context.Background(), "EUR", "USD")
	require.Error(t, err)
	assert.ErrorIs(t, err, fetcherr.ErrMissingAPIKey)
	assert.False(t, called, "no request may be issued without a key")
}

func TestFXClient_FetchIntraday(t *testing.T) {
	var gotQuery map[string]string
	client := fxTestServer(t, "test-key", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"function":    r.URL.Query().Get("function"),
			"from_symbol": r.URL.Query().Get("from_symbol"),
			"to_symbol":   r.URL.Query().Get("to_symbol"),
			"interval":    r.URL.Query().Get("interval"),
			"apikey":      r.URL.Query().Get("apikey"),
		}
		fmt.Fprint(w, fxFixture)
	})

	series, err := client.FetchIntraday(context.Background(), "EUR", "USD")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"function":    "FX_INTRADAY",
		"from_symbol": "EUR",
		"to_symbol":   "USD",
		"interval":    "60min",
		"apikey":      "test-key",
	}, gotQuery)

	require.Len(t, series, 2)
	assert.True(t, series[0].Timestamp.Before(series[1].Timestamp), "bars must be ascending")
	assert.Equal(t, "1.0858", series[0].Close.String())
	assert.Equal(t, "1.0866", series[1].Close.String())
}

func TestFXClient_NoteMeansThrottled(t *testing.T) {
	client := fxTestServer(t, "test-key", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Note": "Thank you for using our API. Our standard API call frequency is 5 calls per minute."}`)
	})

	_, err := client.FetchIntraday(context.Background(), "EUR", "USD")
	require.Error(t, err)
	assert.ErrorIs(t, err, fetcherr.ErrThrottled)
}

func TestFXClient_ErrorMessage(t *testing.T) {
	client := fxTestServer(t, "test-key", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Error Message": "Invalid API call."}`)
	})

	_, err := client.FetchIntraday(context.Background(), "EUR", "USD")
	require.Error(t, err)
	assert.ErrorIs(t, err, fetcherr.ErrMalformed)
}

func TestFXClient_SkipsInvalidRows(t *testing.T) {
	client := fxTestServer(t, "test-key", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"Time Series FX (60min)": {
				"not-a-timestamp":      {"1. open": "1.0850", "2. high": "1.0862", "3. low": "1.0845", "4. close": "1.0858"},
				"2024-05-01 10:00:00": {"1. open": "garbage", "2. high": "1.0862", "3. low": "1.0845", "4. close": "1.0858"},
				"2024-05-01 11:00:00": {"1. open": "1.0861", "2. high": "1.0870", "3. low": "1.0855", "4. close": "1.0866"}
			}
		}`)
	})

	series, err := client.FetchIntraday(context.Background(), "EUR", "USD")
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "1.0866", series[0].Close.String())
}
