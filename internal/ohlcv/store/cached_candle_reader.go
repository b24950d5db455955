// Package store wires the domain repository contracts to a cached read
// path: read_dataframe is the consumer surface's hottest query, so a
// cache miss costs a database round trip per (symbol, timeframe, range)
// triple while a hit costs none.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"upbit_ingestor/pkg/cache"

	"upbit_ingestor/internal/ohlcv/domain"
	"upbit_ingestor/pkg/log"
)

// readTTL bounds how long a read_dataframe result may be served stale;
// an ingest cycle running more often than this would otherwise mask
// freshly harvested candles behind the cache.
const readTTL = 30 * time.Second

// CachedCandleReader wraps a domain.CandleRepository with a read-through
// cache in front of FindByRange, the query the consumer surface issues
// most often.
type CachedCandleReader struct {
	repo  domain.CandleRepository
	cache cache.API
}

// NewCachedCandleReader builds a CachedCandleReader.
func NewCachedCandleReader(repo domain.CandleRepository, c cache.API) *CachedCandleReader {
	return &CachedCandleReader{repo: repo, cache: c}
}

// FindByRange serves from cache when present; otherwise reads through to
// the repository and populates the cache for the next caller.
func (r *CachedCandleReader) FindByRange(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Candle, error) {
	key := cacheKey(symbol, timeframe, start, end)

	if raw, ok := r.cache.Get(ctx, key); ok {
		var candles []domain.Candle
		if err := json.Unmarshal([]byte(raw), &candles); err == nil {
			return candles, nil
		}
		log.IngestWarn("cache_decode_failed", symbol, timeframe, key)
	}

	candles, err := r.repo.FindByRange(ctx, symbol, timeframe, start, end)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(candles); err == nil {
		r.cache.SetWithDuration(ctx, key, string(encoded), readTTL)
	}

	return candles, nil
}

func cacheKey(symbol, timeframe string, start, end time.Time) string {
	return fmt.Sprintf("ohlcv:candles:%s:%s:%d:%d", symbol, timeframe, start.Unix(), end.Unix())
}
