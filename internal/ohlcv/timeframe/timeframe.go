// Package timeframe implements the timeframe algebra: parsing, ordering,
// duration conversion and the aggregability relation used to build the
// per-symbol timeframe dependency DAG.
package timeframe

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"upbit_ingestor/pkg/apperrors"
)

// Unit is one of the Upbit candle units.
type Unit byte

const (
	Minute Unit = 'm'
	Day    Unit = 'd'
	Week   Unit = 'w'
	Month  Unit = 'M'
	Year   Unit = 'y'
)

// Spec is a parsed timeframe label such as "1m", "240m", "1d", "1M".
type Spec struct {
	Raw   string
	Value int
	Unit  Unit
}

// minuteFactor approximates calendar units (month, year) in minutes solely
// for ordering and "largest aggregable predecessor" selection, per spec.
var minuteFactor = map[Unit]int{
	Minute: 1,
	Day:    60 * 24,
	Week:   60 * 24 * 7,
	Month:  60 * 24 * 30,
	Year:   60 * 24 * 365,
}

// Parse accepts "<positive-int><unit>" with unit in {m,d,w,M,y}.
func Parse(label string) (Spec, error) {
	if label == "" {
		return Spec{}, apperrors.NewConfigurationError("empty timeframe label", nil)
	}
	suffix := label[len(label)-1]
	unit := Unit(suffix)
	switch unit {
	case Minute, Day, Week, Month, Year:
	default:
		return Spec{}, apperrors.NewConfigurationError(
			fmt.Sprintf("unsupported timeframe unit %q in %q", string(suffix), label), nil)
	}
	valuePart := label[:len(label)-1]
	if valuePart == "" {
		return Spec{}, apperrors.NewConfigurationError(fmt.Sprintf("missing timeframe value in %q", label), nil)
	}
	value := 0
	for _, r := range valuePart {
		if r < '0' || r > '9' {
			return Spec{}, apperrors.NewConfigurationError(fmt.Sprintf("invalid timeframe value %q", label), nil)
		}
		value = value*10 + int(r-'0')
	}
	if value <= 0 {
		return Spec{}, apperrors.NewConfigurationError(fmt.Sprintf("timeframe value must be positive in %q", label), nil)
	}
	return Spec{Raw: label, Value: value, Unit: unit}, nil
}

// MustParse panics on invalid input; reserved for literals known at compile time.
func MustParse(label string) Spec {
	spec, err := Parse(label)
	if err != nil {
		panic(err)
	}
	return spec
}

// HasDuration reports whether the timeframe can be expressed as a
// fixed-length time.Duration ({m, d, w} only; calendar units cannot).
func (s Spec) HasDuration() bool {
	switch s.Unit {
	case Minute, Day, Week:
		return true
	default:
		return false
	}
}

// ToDuration returns the fixed duration of one bucket. Only defined for
// {m, d, w}; calendar units {M, y} have no fixed duration.
func (s Spec) ToDuration() (time.Duration, error) {
	switch s.Unit {
	case Minute:
		return time.Duration(s.Value) * time.Minute, nil
	case Day:
		return time.Duration(s.Value) * 24 * time.Hour, nil
	case Week:
		return time.Duration(s.Value) * 7 * 24 * time.Hour, nil
	default:
		return 0, errors.Errorf("timeframe %q cannot be represented as a fixed duration", s.Raw)
	}
}

// SortKey returns a monotone integer (in minutes, with 30/365-day calendar
// approximations) used only for ordering and predecessor selection.
func (s Spec) SortKey() int {
	return s.Value * minuteFactor[s.Unit]
}

// Less orders two specs by SortKey, giving the timeframe algebra its total
// ordering.
func Less(a, b Spec) bool {
	return a.SortKey() < b.SortKey()
}

// PandasFreq returns a resample-rule label in the same spirit as the
// source's `pandas_freq`. The Aggregator does not use it: it buckets by
// ToDuration, or by calendar month/year for {M, y} targets.
func (s Spec) PandasFreq() string {
	suffix := map[Unit]string{
		Minute: "min",
		Day:    "D",
		Week:   "W",
		Month:  "M",
		Year:   "Y",
	}
	return fmt.Sprintf("%d%s", s.Value, suffix[s.Unit])
}

// CanAggregate reports whether source is aggregable to target: either both
// are in {m,d,w} with an integral multiple relationship, or target is in
// {M,y} and source is exactly "1d".
func CanAggregate(source, target Spec) bool {
	if source.Raw == target.Raw {
		return false
	}
	switch target.Unit {
	case Minute, Day, Week:
		switch source.Unit {
		case Minute, Day, Week:
		default:
			return false
		}
		targetMinutes := target.SortKey()
		sourceMinutes := source.SortKey()
		if targetMinutes <= sourceMinutes {
			return false
		}
		return targetMinutes%sourceMinutes == 0
	case Month, Year:
		return source.Unit == Day && source.Value == 1
	default:
		return false
	}
}

// Align snaps t down to the nearest multiple of spec's duration from the
// Unix epoch, in t's own location. Required before every range computation
// so start/end fall on bucket boundaries.
func Align(t time.Time, spec Spec) (time.Time, error) {
	delta, err := spec.ToDuration()
	if err != nil {
		return time.Time{}, err
	}
	loc := t.Location()
	epoch := time.Date(1970, 1, 1, 0, 0, 0, 0, loc)
	elapsed := t.Sub(epoch)
	steps := elapsed / delta
	return epoch.Add(steps * delta), nil
}
