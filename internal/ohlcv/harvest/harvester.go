// Package harvest drives backward-paginated downloads of a missing
// sub-range from the exchange, proves (or interpolates past) gaps
// against the expected bucket-timestamp set, and drops a trailing
// candle that is not yet closed relative to the request time.
package harvest

import (
	"context"
	"math"
	"sort"
	"time"

	"upbit_ingestor/internal/ohlcv/domain"
	"upbit_ingestor/internal/ohlcv/exchange"
	"upbit_ingestor/internal/ohlcv/timeframe"
	"upbit_ingestor/pkg/log"
)

// maxRetry is the design default: one retry pass beyond the first.
const maxRetry = 1

// maxPageSize is the exchange's hard cap on candles per page.
const maxPageSize = 200

// Fetcher is the subset of the exchange client the Harvester depends on.
type Fetcher interface {
	FetchCandles(ctx context.Context, tf timeframe.Spec, market string, to time.Time, count int) ([]exchange.RawCandle, error)
}

// Harvester downloads, gap-fills and trims candles for one missing
// sub-range of a base timeframe.
type Harvester struct {
	fetcher Fetcher
}

// New builds a Harvester over fetcher.
func New(fetcher Fetcher) *Harvester {
	return &Harvester{fetcher: fetcher}
}

type segment struct {
	start time.Time
	end   time.Time
}

// Harvest returns candles covering [start, end) for (symbol, tf),
// interpolating any gaps that survive the retry budget and dropping a
// trailing candle not yet closed relative to requestTime (if non-nil).
func (h *Harvester) Harvest(ctx context.Context, symbol string, tf timeframe.Spec, start, end time.Time, requestTime *time.Time) ([]domain.Candle, error) {
	delta, err := tf.ToDuration()
	if err != nil {
		return nil, err
	}

	expected := expectedTimestamps(start, end, delta)
	harvested := make(map[time.Time]domain.Candle, len(expected))
	pending := []segment{{start: start, end: end}}

	for attempt := 0; attempt <= maxRetry && len(pending) > 0; attempt++ {
		for _, seg := range pending {
			if err := h.downloadSegment(ctx, symbol, tf, delta, seg, harvested); err != nil {
				return nil, err
			}
		}
		pending = missingSegments(expected, harvested, delta)
	}

	if len(pending) > 0 {
		log.IngestWarn("residual gaps after retry budget, interpolating", symbol, tf.Raw, pending)
	}

	interpolate(expected, harvested)

	result := sortedCandles(harvested, symbol, tf.Raw)

	if requestTime != nil && len(result) > 0 {
		last := result[len(result)-1]
		if requestTime.Sub(last.Timestamp) < delta {
			result = result[:len(result)-1]
		}
	}

	return result, nil
}

// downloadSegment pages backward from seg.end, storing every candle
// whose bucket falls inside seg into harvested.
func (h *Harvester) downloadSegment(ctx context.Context, symbol string, tf timeframe.Spec, delta time.Duration, seg segment, harvested map[time.Time]domain.Candle) error {
	cursor := seg.end
	for {
		buckets := int(math.Ceil(float64(seg.end.Sub(seg.start)) / float64(delta)))
		count := buckets
		if count > maxPageSize {
			count = maxPageSize
		}
		if count <= 0 {
			return nil
		}

		raws, err := h.fetcher.FetchCandles(ctx, tf, symbol, cursor, count)
		if err != nil {
			return err
		}
		if len(raws) == 0 {
			return nil
		}

		earliest := cursor
		first := true
		for _, raw := range raws {
			bucketStart, err := exchange.BucketStart(raw, tf)
			if err != nil {
				return err
			}
			if bucketStart.Before(seg.start) || !bucketStart.Before(seg.end) {
				continue
			}
			harvested[bucketStart] = domain.Candle{
				Symbol:    symbol,
				Timeframe: tf.Raw,
				Timestamp: bucketStart,
				Open:      raw.OpeningPrice,
				High:      raw.HighPrice,
				Low:       raw.LowPrice,
				Close:     raw.TradePrice,
				Volume:    raw.CandleAccTradeVol,
				Value:     raw.CandleAccTradePrice,
			}
			if first || bucketStart.Before(earliest) {
				earliest = bucketStart
				first = false
			}
		}

		if !earliest.Before(cursor) {
			return nil
		}
		cursor = earliest
		if !cursor.After(seg.start) {
			return nil
		}
	}
}

// expectedTimestamps returns {start, start+delta, ..., end-delta}.
func expectedTimestamps(start, end time.Time, delta time.Duration) []time.Time {
	var out []time.Time
	for t := start; t.Before(end); t = t.Add(delta) {
		out = append(out, t)
	}
	return out
}

// missingSegments groups the still-unharvested expected timestamps into
// contiguous [a, b) runs.
func missingSegments(expected []time.Time, harvested map[time.Time]domain.Candle, delta time.Duration) []segment {
	var out []segment
	var runStart time.Time
	inRun := false

	flush := func(runEnd time.Time) {
		if inRun {
			out = append(out, segment{start: runStart, end: runEnd})
			inRun = false
		}
	}

	for _, ts := range expected {
		if _, ok := harvested[ts]; ok {
			flush(ts)
			continue
		}
		if !inRun {
			runStart = ts
			inRun = true
		}
	}
	if len(expected) > 0 {
		flush(expected[len(expected)-1].Add(delta))
	}
	return out
}

// interpolate synthesizes a placeholder candle for every still-missing
// expected timestamp after the first harvested one: open = close = last
// known close, high/low equal that close, volume and traded value zero.
// Missing timestamps before the first harvested candle have no known
// close and are left missing.
func interpolate(expected []time.Time, harvested map[time.Time]domain.Candle) {
	var lastClose float64
	haveLast := false

	for _, ts := range expected {
		if c, ok := harvested[ts]; ok {
			lastClose = c.Close
			haveLast = true
			continue
		}
		if !haveLast {
			continue
		}
		harvested[ts] = domain.Candle{
			Timestamp: ts,
			Open:      lastClose,
			High:      lastClose,
			Low:       lastClose,
			Close:     lastClose,
			Volume:    0,
			Value:     0,
			Synthetic: true,
		}
	}
}

func sortedCandles(harvested map[time.Time]domain.Candle, symbol, tfLabel string) []domain.Candle {
	out := make([]domain.Candle, 0, len(harvested))
	for _, c := range harvested {
		c.Symbol = symbol
		c.Timeframe = tfLabel
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
