package domain

import (
	"fmt"

	"upbit_ingestor/internal/ohlcv/timeframe"
	"upbit_ingestor/pkg/apperrors"
)

// upbitMinuteGranularities is the exchange's supported minute-unit set;
// any other minute value is rejected as a base timeframe.
var upbitMinuteGranularities = map[int]bool{
	1: true, 3: true, 5: true, 15: true, 30: true, 60: true, 240: true,
}

// SymbolTimeframeConfig is one configured ingestion pair: a symbol, its
// base timeframe (the one actually harvested from the exchange), and the
// set of timeframes the Ingest Orchestrator keeps populated by
// aggregation cascade from base.
type SymbolTimeframeConfig struct {
	Symbol    string
	Base      timeframe.Spec
	Targets   []timeframe.Spec
	// CollectStart is the earliest timestamp this pair collects from,
	// aligned to Base at use.
	CollectStart string
}

// SupportsBase reports whether spec is one of the exchange's accepted
// base granularities: the minute set {1,3,5,15,30,60,240}, or a
// value-1 timeframe in {d, w, M, y}.
func SupportsBase(spec timeframe.Spec) bool {
	switch spec.Unit {
	case timeframe.Minute:
		return upbitMinuteGranularities[spec.Value]
	case timeframe.Day, timeframe.Week, timeframe.Month, timeframe.Year:
		return spec.Value == 1
	default:
		return false
	}
}

// ValidateHierarchy checks that base is a supported exchange granularity
// and that every target (after implicitly adding base to the available
// set) is reachable from some smaller available timeframe via the
// aggregability relation, in ascending order. It does not modify targets.
func ValidateHierarchy(base timeframe.Spec, targets []timeframe.Spec) error {
	if !SupportsBase(base) {
		return unsupportedBaseError(base)
	}

	available := []timeframe.Spec{base}
	hasTarget := false
	for _, t := range targets {
		if t.Raw == base.Raw {
			continue
		}
		hasTarget = true
	}
	_ = hasTarget

	ordered := make([]timeframe.Spec, len(targets))
	copy(ordered, targets)
	insertionSort(ordered)

	for _, t := range ordered {
		if t.Raw == base.Raw {
			continue
		}
		if !reachable(available, t) {
			return unreachableTargetError(base, t)
		}
		available = append(available, t)
	}
	return nil
}

// reachable reports whether some spec in available is aggregable to t.
func reachable(available []timeframe.Spec, t timeframe.Spec) bool {
	for _, a := range available {
		if timeframe.CanAggregate(a, t) {
			return true
		}
	}
	return false
}

// SelectSource returns the largest aggregable predecessor of target
// within available, per the design's greedy source-selection policy.
func SelectSource(available []timeframe.Spec, target timeframe.Spec) (timeframe.Spec, bool) {
	var best timeframe.Spec
	found := false
	for _, a := range available {
		if !timeframe.CanAggregate(a, target) {
			continue
		}
		if !found || timeframe.Less(best, a) {
			best = a
			found = true
		}
	}
	return best, found
}

func unsupportedBaseError(base timeframe.Spec) error {
	return apperrors.NewConfigurationError(
		fmt.Sprintf("base timeframe %q is not a supported exchange granularity", base.Raw), nil)
}

func unreachableTargetError(base, target timeframe.Spec) error {
	return apperrors.NewConfigurationError(
		fmt.Sprintf("target timeframe %q is not reachable from base %q by aggregation", target.Raw, base.Raw), nil)
}

func insertionSort(specs []timeframe.Spec) {
	for i := 1; i < len(specs); i++ {
		for j := i; j > 0 && timeframe.Less(specs[j], specs[j-1]); j-- {
			specs[j], specs[j-1] = specs[j-1], specs[j]
		}
	}
}
