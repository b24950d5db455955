// Package aggregate resamples a lower timeframe's candles into a higher
// one using OHLCV semantics (first/max/min/last/sum) with left-closed,
// left-labeled buckets, guarding against emitting a partial bucket at
// the right edge of the source range.
package aggregate

import (
	"sort"
	"time"

	"upbit_ingestor/internal/ohlcv/domain"
	"upbit_ingestor/internal/ohlcv/exchange"
	"upbit_ingestor/internal/ohlcv/timeframe"
)

// Aggregate resamples source (already sorted or not; sorted internally)
// from sourceTF into targetTF buckets. sourceEnd is the exclusive end of
// the proven-complete source range: it drives the edge guard so a
// target bucket is only emitted if it is fully backed by source data.
//
// Month/year targets have no fixed-width time.Duration (a month is
// 28-31 days), so they are bucketed on real calendar boundaries in the
// exchange's zone instead of the fixed-duration bucketer used for
// minute/day/week targets.
func Aggregate(source []domain.Candle, sourceTF, targetTF timeframe.Spec, sourceEnd time.Time) ([]domain.Candle, error) {
	if len(source) == 0 {
		return nil, nil
	}
	if !timeframe.CanAggregate(sourceTF, targetTF) {
		return nil, nil
	}

	sourceDelta, err := sourceTF.ToDuration()
	if err != nil {
		return nil, err
	}

	sorted := make([]domain.Candle, len(source))
	copy(sorted, source)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	var groups []bucketGroup
	if targetTF.HasDuration() {
		targetDelta, err := targetTF.ToDuration()
		if err != nil {
			return nil, err
		}
		groups = groupByBucket(sorted, targetDelta)
	} else {
		groups = groupByCalendarBucket(sorted, targetTF, exchange.Zone())
	}

	edgeLimit := sourceEnd.Add(sourceDelta)

	out := make([]domain.Candle, 0, len(groups))
	for _, g := range groups {
		if g.bucketEnd.After(edgeLimit) {
			continue
		}
		out = append(out, aggregateGroup(g.candles, g.bucketStart, sourceTF, targetTF))
	}
	return out, nil
}

type bucketGroup struct {
	bucketStart time.Time
	bucketEnd   time.Time
	candles     []domain.Candle
}

// groupByBucket partitions sorted candles into contiguous left-closed
// buckets of width delta, labeling each by its bucket start.
func groupByBucket(sorted []domain.Candle, delta time.Duration) []bucketGroup {
	var groups []bucketGroup
	var current *bucketGroup

	for _, c := range sorted {
		bucketStart := alignToBucket(c.Timestamp, delta)
		if current == nil || !bucketStart.Equal(current.bucketStart) {
			groups = append(groups, bucketGroup{bucketStart: bucketStart, bucketEnd: bucketStart.Add(delta)})
			current = &groups[len(groups)-1]
		}
		current.candles = append(current.candles, c)
	}
	return groups
}

func alignToBucket(t time.Time, delta time.Duration) time.Time {
	epoch := time.Unix(0, 0).UTC()
	elapsed := t.UTC().Sub(epoch)
	steps := elapsed / delta
	return epoch.Add(steps * delta)
}

// epochYear anchors calendar bucket indexing; every candle timestamp this
// repo ever produces postdates it.
const epochYear = 1970

// groupByCalendarBucket partitions sorted candles into contiguous
// left-closed calendar-month or calendar-year buckets (width target.Value
// months/years), labeling each by its bucket start in zone.
func groupByCalendarBucket(sorted []domain.Candle, target timeframe.Spec, zone *time.Location) []bucketGroup {
	var groups []bucketGroup
	var current *bucketGroup

	for _, c := range sorted {
		start, end := calendarBucket(c.Timestamp, target, zone)
		if current == nil || !start.Equal(current.bucketStart) {
			groups = append(groups, bucketGroup{bucketStart: start, bucketEnd: end})
			current = &groups[len(groups)-1]
		}
		current.candles = append(current.candles, c)
	}
	return groups
}

// calendarBucket returns the [start, end) calendar bucket containing t for
// a Month or Year target, grouped in multiples of target.Value.
func calendarBucket(t time.Time, target timeframe.Spec, zone *time.Location) (time.Time, time.Time) {
	local := t.In(zone)
	if target.Unit == timeframe.Year {
		index := (local.Year() - epochYear) / target.Value
		startYear := epochYear + index*target.Value
		start := time.Date(startYear, time.January, 1, 0, 0, 0, 0, zone)
		return start, start.AddDate(target.Value, 0, 0)
	}

	months := (local.Year()-epochYear)*12 + int(local.Month()) - 1
	index := months / target.Value
	startMonths := index * target.Value
	start := time.Date(epochYear+startMonths/12, time.Month(startMonths%12+1), 1, 0, 0, 0, 0, zone)
	return start, start.AddDate(0, target.Value, 0)
}

// aggregateGroup folds one bucket's source rows into a single target
// candle: open = first, high = max, low = min, close = last,
// volume/value = sum.
func aggregateGroup(candles []domain.Candle, bucketStart time.Time, sourceTF, targetTF timeframe.Spec) domain.Candle {
	open := candles[0].Open
	high := candles[0].High
	low := candles[0].Low
	close := candles[len(candles)-1].Close
	var volume, value float64
	synthetic := false

	for _, c := range candles {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
		volume += c.Volume
		value += c.Value
		if c.Synthetic {
			synthetic = true
		}
	}

	return domain.Candle{
		Symbol:    candles[0].Symbol,
		Timeframe: targetTF.Raw,
		Timestamp: bucketStart,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
		Value:     value,
		Synthetic: synthetic,
	}
}
