package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"upbit_ingestor/internal/ohlcv/domain"
	"upbit_ingestor/internal/ohlcv/rangeset"
)

// RangeRepository implements domain.RangeRepository over PostgreSQL.
type RangeRepository struct {
	db *gorm.DB
}

// NewRangeRepository builds a RangeRepository.
func NewRangeRepository(db *gorm.DB) domain.RangeRepository {
	return &RangeRepository{db: db}
}

// FetchRanges returns all recorded ranges for (symbol, timeframe),
// ascending by start.
func (r *RangeRepository) FetchRanges(ctx context.Context, symbol, timeframe string) ([]domain.CandleRange, error) {
	var ranges []domain.CandleRange
	result := r.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ?", symbol, timeframe).
		Order("start_timestamp").
		Find(&ranges)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to fetch ranges: %w", result.Error)
	}
	return ranges, nil
}

// RecordRange stores a newly-proven [start, end) range and rewrites the
// (symbol, timeframe) range set as its minimal covering form: overlap
// or touch coalesces. Runs inside a single transaction so the merged
// set is never observed half-written.
func (r *RangeRepository) RecordRange(ctx context.Context, symbol, timeframe string, start, end time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []domain.CandleRange
		if err := tx.Where("symbol = ? AND timeframe = ?", symbol, timeframe).Find(&existing).Error; err != nil {
			return fmt.Errorf("failed to load existing ranges: %w", err)
		}

		spans := make([]rangeset.Range, 0, len(existing)+1)
		for _, e := range existing {
			spans = append(spans, rangeset.Range{Start: e.Start, End: e.End})
		}
		spans = append(spans, rangeset.Range{Start: start, End: end})

		merged := rangeset.Merge(spans)

		if err := tx.Where("symbol = ? AND timeframe = ?", symbol, timeframe).Delete(&domain.CandleRange{}).Error; err != nil {
			return fmt.Errorf("failed to clear ranges before merge: %w", err)
		}

		rows := make([]domain.CandleRange, len(merged))
		for i, m := range merged {
			rows[i] = domain.CandleRange{Symbol: symbol, Timeframe: timeframe, Start: m.Start, End: m.End}
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to write merged ranges: %w", err)
		}
		return nil
	})
}

// LatestRange returns the range with the latest End for (symbol, timeframe).
func (r *RangeRepository) LatestRange(ctx context.Context, symbol, timeframe string) (*domain.CandleRange, error) {
	var rng domain.CandleRange
	result := r.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ?", symbol, timeframe).
		Order("end_timestamp DESC").
		Limit(1).
		Find(&rng)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to fetch latest range: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &rng, nil
}
