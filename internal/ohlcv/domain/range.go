package domain

import (
	"context"
	"time"
)

// CandleRange records a half-open [Start, End) span proven to be
// gap-free in storage for one (Symbol, Timeframe) pair.
type CandleRange struct {
	ID        uint64    `json:"id" gorm:"primaryKey"`
	Symbol    string    `json:"symbol" gorm:"column:symbol;uniqueIndex:idx_ohlcv_range_unique"`
	Timeframe string    `json:"timeframe" gorm:"column:timeframe;uniqueIndex:idx_ohlcv_range_unique"`
	Start     time.Time `json:"start" gorm:"column:start_timestamp;uniqueIndex:idx_ohlcv_range_unique"`
	End       time.Time `json:"end" gorm:"column:end_timestamp;uniqueIndex:idx_ohlcv_range_unique"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName returns the table name for the CandleRange model.
func (CandleRange) TableName() string {
	return "ohlcv_ranges"
}

// RangeRepository is the storage contract for the coverage ledger the
// Ingest Orchestrator reads to compute missing spans and writes to once a
// segment is proven complete.
type RangeRepository interface {
	FetchRanges(ctx context.Context, symbol, timeframe string) ([]CandleRange, error)
	// RecordRange stores a newly-proven range and merges it with any
	// existing ranges it touches or overlaps.
	RecordRange(ctx context.Context, symbol, timeframe string, start, end time.Time) error
	LatestRange(ctx context.Context, symbol, timeframe string) (*CandleRange, error)
}
