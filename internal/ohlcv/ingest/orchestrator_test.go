package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upbit_ingestor/internal/ohlcv/domain"
	"upbit_ingestor/internal/ohlcv/exchange"
	"upbit_ingestor/internal/ohlcv/harvest"
	"upbit_ingestor/internal/ohlcv/rangeset"
	"upbit_ingestor/internal/ohlcv/timeframe"
)

type fakeCandleRepo struct {
	rows       map[string]domain.Candle
	forceShort bool
}

func newFakeCandleRepo() *fakeCandleRepo {
	return &fakeCandleRepo{rows: make(map[string]domain.Candle)}
}

func candleKey(symbol, tf string, ts time.Time) string {
	return fmt.Sprintf("%s|%s|%d", symbol, tf, ts.Unix())
}

func (f *fakeCandleRepo) Upsert(ctx context.Context, candles []domain.Candle) error {
	for _, c := range candles {
		f.rows[candleKey(c.Symbol, c.Timeframe, c.Timestamp)] = c
	}
	return nil
}

func (f *fakeCandleRepo) FindByRange(ctx context.Context, symbol, tf string, start, end time.Time) ([]domain.Candle, error) {
	return nil, nil
}

func (f *fakeCandleRepo) GetLatest(ctx context.Context, symbol, tf string) (*domain.Candle, error) {
	return nil, nil
}

func (f *fakeCandleRepo) CountByRange(ctx context.Context, symbol, tf string, start, end time.Time) (int, error) {
	count := 0
	for _, c := range f.rows {
		if c.Symbol == symbol && c.Timeframe == tf && !c.Timestamp.Before(start) && c.Timestamp.Before(end) {
			count++
		}
	}
	if f.forceShort {
		f.forceShort = false
		return count - 1, nil
	}
	return count, nil
}

func (f *fakeCandleRepo) DeleteOlderThan(ctx context.Context, symbol, tf string, before time.Time) error {
	return nil
}

type fakeRangeRepo struct {
	ranges map[string][]domain.CandleRange
}

func newFakeRangeRepo() *fakeRangeRepo {
	return &fakeRangeRepo{ranges: make(map[string][]domain.CandleRange)}
}

func rangeKey(symbol, tf string) string { return symbol + "|" + tf }

func (f *fakeRangeRepo) FetchRanges(ctx context.Context, symbol, tf string) ([]domain.CandleRange, error) {
	return f.ranges[rangeKey(symbol, tf)], nil
}

func (f *fakeRangeRepo) RecordRange(ctx context.Context, symbol, tf string, start, end time.Time) error {
	key := rangeKey(symbol, tf)
	spans := make([]rangeset.Range, 0, len(f.ranges[key])+1)
	for _, r := range f.ranges[key] {
		spans = append(spans, rangeset.Range{Start: r.Start, End: r.End})
	}
	spans = append(spans, rangeset.Range{Start: start, End: end})
	merged := rangeset.Merge(spans)

	rows := make([]domain.CandleRange, len(merged))
	for i, m := range merged {
		rows[i] = domain.CandleRange{Symbol: symbol, Timeframe: tf, Start: m.Start, End: m.End}
	}
	f.ranges[key] = rows
	return nil
}

func (f *fakeRangeRepo) LatestRange(ctx context.Context, symbol, tf string) (*domain.CandleRange, error) {
	rows := f.ranges[rangeKey(symbol, tf)]
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[len(rows)-1], nil
}

type fakeFetcher struct {
	raws []exchange.RawCandle
}

func (f *fakeFetcher) FetchCandles(ctx context.Context, tf timeframe.Spec, market string, to time.Time, count int) ([]exchange.RawCandle, error) {
	return f.raws, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// Seed scenario 4 from spec.md §8: inject an artificial delete (here,
// simulated by a forced-short completeness count) of one candle inside a
// harvested sub-range; re-run ingest for that range: expect no new Range
// row; a subsequent cycle that fills the hole then records the range.
func TestRunCycle_CompletenessGate(t *testing.T) {
	symbol := "KRW-BTC"
	base := timeframe.MustParse("1m")
	cfg := domain.SymbolTimeframeConfig{
		Symbol:       symbol,
		Base:         base,
		Targets:      []timeframe.Spec{base},
		CollectStart: "2024-01-01T00:00:00",
	}

	now := time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)
	// Close times are KST (UTC+9): 09:05 KST closes the 00:04 UTC bucket.
	fetcher := &fakeFetcher{raws: []exchange.RawCandle{
		{CandleDateTimeKST: "2024-01-01T09:05:00", TradePrice: 105, OpeningPrice: 104, HighPrice: 106, LowPrice: 103},
		{CandleDateTimeKST: "2024-01-01T09:04:00", TradePrice: 104, OpeningPrice: 103, HighPrice: 105, LowPrice: 102},
		{CandleDateTimeKST: "2024-01-01T09:03:00", TradePrice: 103, OpeningPrice: 102, HighPrice: 104, LowPrice: 101},
		{CandleDateTimeKST: "2024-01-01T09:02:00", TradePrice: 102, OpeningPrice: 101, HighPrice: 103, LowPrice: 100},
		{CandleDateTimeKST: "2024-01-01T09:01:00", TradePrice: 101, OpeningPrice: 100, HighPrice: 102, LowPrice: 99},
	}}

	candleRepo := newFakeCandleRepo()
	rangeRepo := newFakeRangeRepo()
	h := harvest.New(fetcher)
	orch := New(h, candleRepo, rangeRepo, time.UTC)
	orch.now = fixedClock(now)

	candleRepo.forceShort = true
	require.NoError(t, orch.RunCycle(context.Background(), cfg))
	assert.Empty(t, rangeRepo.ranges[rangeKey(symbol, base.Raw)], "range must not publish when completeness proof fails")

	require.NoError(t, orch.RunCycle(context.Background(), cfg))
	ranges := rangeRepo.ranges[rangeKey(symbol, base.Raw)]
	require.Len(t, ranges, 1)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), ranges[0].Start)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC), ranges[0].End)
}
