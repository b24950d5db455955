package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upbit_ingestor/internal/ohlcv/timeframe"
)

func TestFetchCandles_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/candles/minutes/1", r.URL.Path)
		w.Header().Set("Remaining-Req", "group=market; min=59; sec=30")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[{"candle_date_time_kst":"2024-01-01T00:01:00","opening_price":100,"high_price":110,"low_price":95,"trade_price":105,"candle_acc_trade_price":1000,"candle_acc_trade_volume":10}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	candles, err := c.FetchCandles(context.Background(), timeframe.MustParse("1m"), "KRW-BTC", time.Now(), 1)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, 105.0, candles[0].TradePrice)
}

func TestFetchCandles_RetriesOn429ThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	candles, err := c.FetchCandles(context.Background(), timeframe.MustParse("1m"), "KRW-BTC", time.Now(), 1)
	require.NoError(t, err)
	assert.Empty(t, candles)
	assert.Equal(t, 2, attempts)
}

func TestFetchCandles_PropagatesAfterMaxAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.FetchCandles(context.Background(), timeframe.MustParse("1m"), "KRW-BTC", time.Now(), 1)
	assert.Error(t, err)
}

func TestObserveRemaining_TightensLimiterFromSecRemaining(t *testing.T) {
	c := NewClient("http://example.invalid")
	c.observeRemaining("group=market; min=59; sec=1")
	assert.InDelta(t, 1.0, float64(c.limiter.Limit()), 0.001)
}

func TestBucketStart_SubtractsDuration(t *testing.T) {
	raw := RawCandle{CandleDateTimeKST: "2024-01-01T00:05:00"}
	got, err := BucketStart(raw, timeframe.MustParse("5m"))
	require.NoError(t, err)
	assert.Equal(t, 0, got.Minute())
}
