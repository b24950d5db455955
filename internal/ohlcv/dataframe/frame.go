// Package dataframe wraps gota DataFrames around OHLCV candle rows. No
// other package in this repository imports it: the Harvester, Aggregator,
// store and consumer surface exchange plain []domain.Candle slices.
package dataframe

import (
	"strconv"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"upbit_ingestor/internal/ohlcv/domain"
)

const timestampLayout = "2006-01-02T15:04:05"

// CandleFrame wraps a gota DataFrame holding one symbol/timeframe's rows,
// columns Timestamp, Open, High, Low, Close, Volume, Value, Synthetic.
type CandleFrame struct {
	df dataframe.DataFrame
}

// New builds a CandleFrame from candles, already sorted by timestamp by
// the caller.
func New(candles []domain.Candle) *CandleFrame {
	if len(candles) == 0 {
		return &CandleFrame{df: dataframe.New()}
	}

	timestamps := make([]string, len(candles))
	opens := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	values := make([]float64, len(candles))
	synthetic := make([]string, len(candles))

	for i, c := range candles {
		timestamps[i] = c.Timestamp.UTC().Format(timestampLayout)
		opens[i] = c.Open
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
		volumes[i] = c.Volume
		values[i] = c.Value
		if c.Synthetic {
			synthetic[i] = "1"
		} else {
			synthetic[i] = "0"
		}
	}

	df := dataframe.New(
		series.New(timestamps, series.String, "Timestamp"),
		series.New(opens, series.Float, "Open"),
		series.New(highs, series.Float, "High"),
		series.New(lows, series.Float, "Low"),
		series.New(closes, series.Float, "Close"),
		series.New(volumes, series.Float, "Volume"),
		series.New(values, series.Float, "Value"),
		series.New(synthetic, series.Bool, "Synthetic"),
	)
	return &CandleFrame{df: df}
}

// DataFrame exposes the underlying gota DataFrame for callers that need
// to compose further gota operations.
func (f *CandleFrame) DataFrame() dataframe.DataFrame { return f.df }

// Empty reports whether the frame holds no rows.
func (f *CandleFrame) Empty() bool { return f.df.Nrow() == 0 }

// Len returns the row count.
func (f *CandleFrame) Len() int { return f.df.Nrow() }

func (f *CandleFrame) timestamps() []time.Time {
	col := f.df.Col("Timestamp")
	out := make([]time.Time, col.Len())
	for i := 0; i < col.Len(); i++ {
		if t, err := time.Parse(timestampLayout, col.Elem(i).String()); err == nil {
			out[i] = t.UTC()
		}
	}
	return out
}

func (f *CandleFrame) floatColumn(name string) []float64 {
	col := f.df.Col(name)
	out := make([]float64, col.Len())
	for i := 0; i < col.Len(); i++ {
		if v, err := strconv.ParseFloat(col.Elem(i).String(), 64); err == nil {
			out[i] = v
		}
	}
	return out
}

func (f *CandleFrame) boolColumn(name string) []bool {
	col := f.df.Col(name)
	out := make([]bool, col.Len())
	for i := 0; i < col.Len(); i++ {
		out[i] = col.Elem(i).String() == "true" || col.Elem(i).String() == "1"
	}
	return out
}

// ToCandles converts the frame back to domain.Candle rows for the given
// symbol/timeframe pair.
func (f *CandleFrame) ToCandles(symbol, timeframeLabel string) []domain.Candle {
	if f.Empty() {
		return nil
	}
	n := f.Len()
	timestamps := f.timestamps()
	opens := f.floatColumn("Open")
	highs := f.floatColumn("High")
	lows := f.floatColumn("Low")
	closes := f.floatColumn("Close")
	volumes := f.floatColumn("Volume")
	values := f.floatColumn("Value")
	synthetic := f.boolColumn("Synthetic")

	out := make([]domain.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = domain.Candle{
			Symbol:    symbol,
			Timeframe: timeframeLabel,
			Timestamp: timestamps[i],
			Open:      opens[i],
			High:      highs[i],
			Low:       lows[i],
			Close:     closes[i],
			Volume:    volumes[i],
			Value:     values[i],
			Synthetic: synthetic[i],
		}
	}
	return out
}
