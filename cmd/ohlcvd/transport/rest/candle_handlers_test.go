package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upbit_ingestor/internal/ohlcv/domain"
	"upbit_ingestor/internal/ohlcv/store"
	"upbit_ingestor/internal/ohlcv/timeframe"
	"upbit_ingestor/pkg/apperrors"
	"upbit_ingestor/pkg/cache"
)

type fakeGate struct{ ready bool }

func (g *fakeGate) RequireReady() error {
	if g.ready {
		return nil
	}
	return apperrors.NewServiceUnavailableError("ingestion has not completed its initial cycle")
}

type fakeCandleRepo struct {
	candles []domain.Candle
}

func (f *fakeCandleRepo) Upsert(ctx context.Context, candles []domain.Candle) error { return nil }
func (f *fakeCandleRepo) FindByRange(ctx context.Context, symbol, tf string, start, end time.Time) ([]domain.Candle, error) {
	return f.candles, nil
}
func (f *fakeCandleRepo) GetLatest(ctx context.Context, symbol, tf string) (*domain.Candle, error) {
	return nil, nil
}
func (f *fakeCandleRepo) CountByRange(ctx context.Context, symbol, tf string, start, end time.Time) (int, error) {
	return len(f.candles), nil
}
func (f *fakeCandleRepo) DeleteOlderThan(ctx context.Context, symbol, tf string, before time.Time) error {
	return nil
}

type fakeRangeRepo struct {
	latest *domain.CandleRange
	ranges []domain.CandleRange
}

func (f *fakeRangeRepo) FetchRanges(ctx context.Context, symbol, tf string) ([]domain.CandleRange, error) {
	return f.ranges, nil
}
func (f *fakeRangeRepo) RecordRange(ctx context.Context, symbol, tf string, start, end time.Time) error {
	return nil
}
func (f *fakeRangeRepo) LatestRange(ctx context.Context, symbol, tf string) (*domain.CandleRange, error) {
	return f.latest, nil
}

type noopCache struct{}

func (noopCache) Get(ctx context.Context, key string) (string, bool) { return "", false }
func (noopCache) SetWithDuration(ctx context.Context, key, value string, d time.Duration) {}
func (noopCache) Set(ctx context.Context, key, value string) {}

func newTestHandler(gate *fakeGate, candleRepo *fakeCandleRepo, rangeRepo *fakeRangeRepo) *CandleHandler {
	reader := store.NewCachedCandleReader(candleRepo, noopCache{})
	pairs := []domain.SymbolTimeframeConfig{
		{Symbol: "KRW-BTC", Base: timeframe.MustParse("1m"), Targets: []timeframe.Spec{timeframe.MustParse("1m"), timeframe.MustParse("5m")}},
	}
	return NewCandleHandler(reader, rangeRepo, pairs, gate)
}

func setupRouter(h *CandleHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h.RegisterRoutes(router)
	return router
}

func TestReadDataframe_GateClosedReturns503(t *testing.T) {
	h := newTestHandler(&fakeGate{ready: false}, &fakeCandleRepo{}, &fakeRangeRepo{})
	router := setupRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/candles/KRW-BTC/1m", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadDataframe_InvalidTimeframeReturns400(t *testing.T) {
	h := newTestHandler(&fakeGate{ready: true}, &fakeCandleRepo{}, &fakeRangeRepo{})
	router := setupRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/candles/KRW-BTC/bogus", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadDataframe_OnlyStartWithoutEndReturns400(t *testing.T) {
	h := newTestHandler(&fakeGate{ready: true}, &fakeCandleRepo{}, &fakeRangeRepo{})
	router := setupRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/candles/KRW-BTC/1m?start=2024-01-01T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadDataframe_ExplicitWindowServesCandles(t *testing.T) {
	candleRepo := &fakeCandleRepo{candles: []domain.Candle{{Symbol: "KRW-BTC", Timeframe: "1m"}}}
	h := newTestHandler(&fakeGate{ready: true}, candleRepo, &fakeRangeRepo{})
	router := setupRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/candles/KRW-BTC/1m?start=2024-01-01T00:00:00Z&end=2024-01-01T01:00:00Z", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "KRW-BTC")
}

func TestReadDataframe_NoWindowFallsBackToLatestRange(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	rangeRepo := &fakeRangeRepo{latest: &domain.CandleRange{Symbol: "KRW-BTC", Timeframe: "1m", Start: start, End: end}}
	h := newTestHandler(&fakeGate{ready: true}, &fakeCandleRepo{}, rangeRepo)
	router := setupRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/candles/KRW-BTC/1m", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

// Per spec.md §7, a read of an uncovered range is an empty frame, not a
// 404 — this mirrors the original's dataframe_for_range(start=None,
// end=None), which never raises a not-found error.
func TestReadDataframe_NoWindowNoCoverageReturnsEmptyFrame(t *testing.T) {
	h := newTestHandler(&fakeGate{ready: true}, &fakeCandleRepo{}, &fakeRangeRepo{})
	router := setupRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/candles/KRW-BTC/1m", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"candles":[]`)
}

func TestListAllCoveredRanges_AggregatesAcrossPairs(t *testing.T) {
	rangeRepo := &fakeRangeRepo{ranges: []domain.CandleRange{
		{Symbol: "KRW-BTC", Timeframe: "1m", Start: time.Now(), End: time.Now()},
	}}
	h := newTestHandler(&fakeGate{ready: true}, &fakeCandleRepo{}, rangeRepo)
	router := setupRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ranges", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "KRW-BTC")
}

func TestListAllCoveredRanges_GateClosedReturns503(t *testing.T) {
	h := newTestHandler(&fakeGate{ready: false}, &fakeCandleRepo{}, &fakeRangeRepo{})
	router := setupRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ranges", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
