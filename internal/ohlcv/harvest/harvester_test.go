package harvest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upbit_ingestor/internal/ohlcv/exchange"
	"upbit_ingestor/internal/ohlcv/timeframe"
)

type fakeFetcher struct {
	raws []exchange.RawCandle
}

func (f *fakeFetcher) FetchCandles(ctx context.Context, tf timeframe.Spec, market string, to time.Time, count int) ([]exchange.RawCandle, error) {
	return f.raws, nil
}

// Seed scenario 2 from spec.md §8: base 1m, [00:00,00:04), request_time
// 00:03:30. Server returns only buckets at 00:00 (close 100) and 00:03
// (close 130). Expect rows at 00:00, 00:01 (interpolated), 00:02
// (interpolated); 00:03 dropped as trailing.
func TestHarvest_InterpolationAndTrailingDrop(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	start := base
	end := base.Add(4 * time.Minute)
	requestTime := base.Add(3*time.Minute + 30*time.Second)

	fetcher := &fakeFetcher{raws: []exchange.RawCandle{
		// close times = bucket-start + 1m in KST (UTC+9), newest first.
		{CandleDateTimeKST: "2024-01-01T09:04:00", OpeningPrice: 125, HighPrice: 135, LowPrice: 120, TradePrice: 130, CandleAccTradeVol: 5},
		{CandleDateTimeKST: "2024-01-01T09:01:00", OpeningPrice: 95, HighPrice: 105, LowPrice: 90, TradePrice: 100, CandleAccTradeVol: 3},
	}}

	h := New(fetcher)
	got, err := h.Harvest(context.Background(), "KRW-BTC", timeframe.MustParse("1m"), start, end, &requestTime)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, base, got[0].Timestamp)
	assert.False(t, got[0].Synthetic)
	assert.Equal(t, base.Add(time.Minute), got[1].Timestamp)
	assert.True(t, got[1].Synthetic)
	assert.Equal(t, 100.0, got[1].Close)
	assert.Equal(t, 0.0, got[1].Volume)
	assert.Equal(t, base.Add(2*time.Minute), got[2].Timestamp)
	assert.True(t, got[2].Synthetic)
}

func TestHarvest_NoGapsNoInterpolation(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{raws: []exchange.RawCandle{
		{CandleDateTimeKST: "2024-01-01T09:02:00", TradePrice: 102, OpeningPrice: 101, HighPrice: 103, LowPrice: 100},
		{CandleDateTimeKST: "2024-01-01T09:01:00", TradePrice: 101, OpeningPrice: 100, HighPrice: 102, LowPrice: 99},
	}}
	h := New(fetcher)
	got, err := h.Harvest(context.Background(), "KRW-BTC", timeframe.MustParse("1m"), base, base.Add(2*time.Minute), nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.False(t, got[0].Synthetic)
	assert.False(t, got[1].Synthetic)
}
