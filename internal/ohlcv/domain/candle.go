// Package domain holds the storage-agnostic OHLCV types shared by every
// layer: Candle and CandleRange rows, and the per-symbol timeframe
// configuration that drives the ingest cascade.
package domain

import (
	"context"
	"time"
)

// Candle is a single OHLCV row for one (Symbol, Timeframe) pair.
type Candle struct {
	ID            uint64    `json:"id" gorm:"primaryKey"`
	Symbol        string    `json:"symbol" gorm:"column:symbol;uniqueIndex:idx_ohlcv_unique"`
	Timeframe     string    `json:"timeframe" gorm:"column:timeframe;uniqueIndex:idx_ohlcv_unique"`
	Timestamp     time.Time `json:"timestamp" gorm:"column:timestamp;uniqueIndex:idx_ohlcv_unique"`
	Open          float64   `json:"open" gorm:"column:open"`
	High          float64   `json:"high" gorm:"column:high"`
	Low           float64   `json:"low" gorm:"column:low"`
	Close         float64   `json:"close" gorm:"column:close"`
	Volume        float64   `json:"volume" gorm:"column:volume"`
	Value         float64   `json:"value" gorm:"column:value"`
	// Synthetic marks a candle produced by gap interpolation (forward-filled
	// from the last known close, zero volume/value) rather than fetched
	// from the exchange.
	Synthetic bool      `json:"synthetic" gorm:"column:synthetic"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName returns the table name for the Candle model.
func (Candle) TableName() string {
	return "ohlcv_candles"
}

// CandleRepository is the storage contract the Harvester and Aggregator
// write through, and the consumer surface reads through.
type CandleRepository interface {
	// Upsert writes candles idempotently: a (symbol, timeframe, timestamp)
	// collision overwrites OHLCV fields and the synthetic flag.
	Upsert(ctx context.Context, candles []Candle) error
	FindByRange(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]Candle, error)
	GetLatest(ctx context.Context, symbol, timeframe string) (*Candle, error)
	CountByRange(ctx context.Context, symbol, timeframe string, start, end time.Time) (int, error)
	DeleteOlderThan(ctx context.Context, symbol, timeframe string, before time.Time) error
}
