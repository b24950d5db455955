// Package postgres implements the Store contract (§4.3) over GORM and
// PostgreSQL: idempotent candle upserts via ON CONFLICT DO UPDATE, and
// the range ledger with server-side merge-on-write.
package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"upbit_ingestor/internal/ohlcv/domain"
)

// CandleRepository implements domain.CandleRepository over PostgreSQL.
type CandleRepository struct {
	db *gorm.DB
}

// NewCandleRepository builds a CandleRepository.
func NewCandleRepository(db *gorm.DB) domain.CandleRepository {
	return &CandleRepository{db: db}
}

// Upsert writes candles idempotently; the conflict key is
// (symbol, timeframe, timestamp) and conflict resolution overwrites
// OHLCV fields and the synthetic flag.
func (r *CandleRepository) Upsert(ctx context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "symbol"}, {Name: "timeframe"}, {Name: "timestamp"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"open", "high", "low", "close", "volume", "value", "synthetic", "updated_at",
			}),
		}).
		CreateInBatches(candles, 1000)

	if result.Error != nil {
		return fmt.Errorf("failed to upsert candles: %w", result.Error)
	}
	return nil
}

// FindByRange returns candles in [start, end) in ascending timestamp order.
func (r *CandleRepository) FindByRange(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Candle, error) {
	var candles []domain.Candle
	result := r.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ? AND timestamp >= ? AND timestamp < ?", symbol, timeframe, start, end).
		Order("timestamp").
		Find(&candles)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to find candles by range: %w", result.Error)
	}
	return candles, nil
}

// GetLatest returns the most recent candle for (symbol, timeframe), or
// nil if none exist.
func (r *CandleRepository) GetLatest(ctx context.Context, symbol, timeframe string) (*domain.Candle, error) {
	var candle domain.Candle
	result := r.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ?", symbol, timeframe).
		Order("timestamp DESC").
		Limit(1).
		Find(&candle)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get latest candle: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &candle, nil
}

// CountByRange is the exact count used for completeness proofs.
func (r *CandleRepository) CountByRange(ctx context.Context, symbol, timeframe string, start, end time.Time) (int, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&domain.Candle{}).
		Where("symbol = ? AND timeframe = ? AND timestamp >= ? AND timestamp < ?", symbol, timeframe, start, end).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count candles by range: %w", result.Error)
	}
	return int(count), nil
}

// DeleteOlderThan removes candles strictly before the given timestamp.
// The core never calls this in the ingest path; it exists for operator-
// driven retention cleanup.
func (r *CandleRepository) DeleteOlderThan(ctx context.Context, symbol, timeframe string, before time.Time) error {
	result := r.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ? AND timestamp < ?", symbol, timeframe, before).
		Delete(&domain.Candle{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete old candles: %w", result.Error)
	}
	return nil
}
