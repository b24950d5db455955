// Package ingest implements the per-symbol ingestion cycle: computing
// the missing sub-ranges of a base timeframe, harvesting them, proving
// completeness, recording coverage, and cascading the Aggregator across
// every configured target timeframe.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"upbit_ingestor/internal/ohlcv/aggregate"
	"upbit_ingestor/internal/ohlcv/domain"
	"upbit_ingestor/internal/ohlcv/harvest"
	"upbit_ingestor/internal/ohlcv/rangeset"
	"upbit_ingestor/internal/ohlcv/timeframe"
	"upbit_ingestor/pkg/log"
)

const collectStartLayout = "2006-01-02T15:04:05"

// Orchestrator runs ingestion cycles for configured (symbol, base
// timeframe) pairs.
type Orchestrator struct {
	harvester *harvest.Harvester
	candles   domain.CandleRepository
	ranges    domain.RangeRepository
	zone      *time.Location
	now       func() time.Time
}

// New builds an Orchestrator. zone is the design-default configured
// zone ("Asia/Seoul") all alignment happens in.
func New(harvester *harvest.Harvester, candles domain.CandleRepository, ranges domain.RangeRepository, zone *time.Location) *Orchestrator {
	return &Orchestrator{harvester: harvester, candles: candles, ranges: ranges, zone: zone, now: time.Now}
}

// RunCycle executes one ingestion cycle for a single symbol: align
// start/end, compute missing ranges, harvest, persist, prove
// completeness, record coverage, then cascade aggregation to every
// configured target. A failure here aborts only this symbol's cycle.
func (o *Orchestrator) RunCycle(ctx context.Context, cfg domain.SymbolTimeframeConfig) error {
	cycleID := uuid.New().String()
	log.IngestInfo("cycle_started", cfg.Symbol, cfg.Base.Raw, map[string]interface{}{"cycle_id": cycleID})

	now := o.now().In(o.zone)
	end, err := timeframe.Align(now, cfg.Base)
	if err != nil {
		return err
	}

	collectStart, err := time.ParseInLocation(collectStartLayout, cfg.CollectStart, o.zone)
	if err != nil {
		return fmt.Errorf("invalid collect_start %q: %w", cfg.CollectStart, err)
	}
	start, err := timeframe.Align(collectStart, cfg.Base)
	if err != nil {
		return err
	}
	if !start.Before(end) {
		return nil
	}

	existing, err := o.ranges.FetchRanges(ctx, cfg.Symbol, cfg.Base.Raw)
	if err != nil {
		return err
	}
	existingSpans := toSpans(existing)
	missing := rangeset.Subtract(existingSpans, rangeset.Range{Start: start, End: end})

	baseDelta, err := cfg.Base.ToDuration()
	if err != nil {
		return err
	}

	for _, seg := range missing {
		var requestTime *time.Time
		if seg.End.Equal(end) {
			rt := now
			requestTime = &rt
		}

		rows, err := o.harvester.Harvest(ctx, cfg.Symbol, cfg.Base, seg.Start, seg.End, requestTime)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			continue
		}

		if err := o.candles.Upsert(ctx, rows); err != nil {
			return err
		}

		rangeStart := rows[0].Timestamp
		rangeEnd := rows[len(rows)-1].Timestamp.Add(baseDelta)

		present, err := o.candles.CountByRange(ctx, cfg.Symbol, cfg.Base.Raw, rangeStart, rangeEnd)
		if err != nil {
			return err
		}
		expected := int(rangeEnd.Sub(rangeStart) / baseDelta)
		if present < expected {
			log.IngestWarn("completeness_violation", cfg.Symbol, cfg.Base.Raw, cycleID, present, expected)
			continue
		}

		if err := o.ranges.RecordRange(ctx, cfg.Symbol, cfg.Base.Raw, rangeStart, rangeEnd); err != nil {
			return err
		}

		if err := o.cascade(ctx, cfg, rangeStart, rangeEnd, rows); err != nil {
			return err
		}
	}

	return nil
}

// cascade fans the Aggregator out across cfg.Targets in ascending
// timeframe order, selecting the largest already-available predecessor
// for each target and feeding its output back into the available set so
// larger targets can cascade off it.
func (o *Orchestrator) cascade(ctx context.Context, cfg domain.SymbolTimeframeConfig, rangeStart, rangeEnd time.Time, baseRows []domain.Candle) error {
	available := map[string][]domain.Candle{cfg.Base.Raw: baseRows}
	availableSpecs := []timeframe.Spec{cfg.Base}

	targets := make([]timeframe.Spec, 0, len(cfg.Targets))
	for _, t := range cfg.Targets {
		if t.Raw != cfg.Base.Raw {
			targets = append(targets, t)
		}
	}
	sortAscending(targets)

	for _, target := range targets {
		source, ok := domain.SelectSource(availableSpecs, target)
		if !ok {
			continue
		}
		sourceRows := available[source.Raw]

		aggregated, err := aggregate.Aggregate(sourceRows, source, target, rangeEnd)
		if err != nil {
			return err
		}
		aggregated = filterFrom(aggregated, rangeStart)
		if len(aggregated) == 0 {
			continue
		}

		if err := o.candles.Upsert(ctx, aggregated); err != nil {
			return err
		}

		if target.HasDuration() {
			targetDelta, err := target.ToDuration()
			if err != nil {
				return err
			}
			tStart := aggregated[0].Timestamp
			tEnd := aggregated[len(aggregated)-1].Timestamp.Add(targetDelta)

			present, err := o.candles.CountByRange(ctx, cfg.Symbol, target.Raw, tStart, tEnd)
			if err != nil {
				return err
			}
			expected := int(tEnd.Sub(tStart) / targetDelta)
			if present >= expected {
				if err := o.ranges.RecordRange(ctx, cfg.Symbol, target.Raw, tStart, tEnd); err != nil {
					return err
				}
			} else {
				log.IngestWarn("completeness_violation", cfg.Symbol, target.Raw, present, expected)
			}
		}

		available[target.Raw] = aggregated
		availableSpecs = append(availableSpecs, target)
	}
	return nil
}

func toSpans(ranges []domain.CandleRange) []rangeset.Range {
	out := make([]rangeset.Range, len(ranges))
	for i, r := range ranges {
		out[i] = rangeset.Range{Start: r.Start, End: r.End}
	}
	return out
}

func filterFrom(candles []domain.Candle, from time.Time) []domain.Candle {
	out := candles[:0]
	for _, c := range candles {
		if !c.Timestamp.Before(from) {
			out = append(out, c)
		}
	}
	return out
}

func sortAscending(specs []timeframe.Spec) {
	for i := 1; i < len(specs); i++ {
		for j := i; j > 0 && timeframe.Less(specs[j], specs[j-1]); j-- {
			specs[j], specs[j-1] = specs[j-1], specs[j]
		}
	}
}
