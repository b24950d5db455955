package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"upbit_ingestor/internal/ohlcv/domain"
	"upbit_ingestor/internal/ohlcv/store"
	"upbit_ingestor/internal/ohlcv/timeframe"
	"upbit_ingestor/pkg/apperrors"
	"upbit_ingestor/pkg/log"
)

// ReadyGate reports whether the ingest-ready gate has opened; handlers
// reject requests with ServiceUnavailableError while it is closed.
type ReadyGate interface {
	RequireReady() error
}

// CandleHandler exposes the two consumer-surface operations spec.md §6
// names: read_dataframe and list_all_covered_ranges.
type CandleHandler struct {
	reader    *store.CachedCandleReader
	ranges    domain.RangeRepository
	pairs     []domain.SymbolTimeframeConfig
	gate      ReadyGate
	validator *validator.Validate
}

// NewCandleHandler builds a CandleHandler.
func NewCandleHandler(reader *store.CachedCandleReader, ranges domain.RangeRepository, pairs []domain.SymbolTimeframeConfig, gate ReadyGate) *CandleHandler {
	return &CandleHandler{reader: reader, ranges: ranges, pairs: pairs, gate: gate, validator: validator.New()}
}

// windowQuery binds and validates the optional start/end query window for
// read_dataframe: both must be present together or both absent.
type windowQuery struct {
	Start string `form:"start" validate:"required_with=End"`
	End   string `form:"end" validate:"required_with=Start"`
}

// RegisterRoutes registers the handler's routes.
func (h *CandleHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	api.GET("/candles/:symbol/:timeframe", h.readDataframe)
	api.GET("/ranges", h.listAllCoveredRanges)
}

// readDataframe implements read_dataframe(symbol, timeframe_label, start?, end?).
// Omitted start/end default to the pair's latest recorded coverage range.
func (h *CandleHandler) readDataframe(c *gin.Context) {
	if err := h.gate.RequireReady(); err != nil {
		respondError(c, err)
		return
	}

	symbol := c.Param("symbol")
	label := c.Param("timeframe")
	if _, err := timeframe.Parse(label); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.NewErrorResponse("invalid timeframe", err))
		return
	}

	start, end, ok, err := h.resolveWindow(c, symbol, label)
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		// No explicit window and no range ever recorded for this pair: per
		// spec.md §7, a read of an uncovered range is an empty frame, not
		// an error.
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"symbol":    symbol,
			"timeframe": label,
			"candles":   []domain.Candle{},
		})
		return
	}

	candles, err := h.reader.FindByRange(c.Request.Context(), symbol, label, start, end)
	if err != nil {
		log.IngestError("read_dataframe_failed", symbol, label, err, nil)
		c.JSON(http.StatusInternalServerError, apperrors.NewErrorResponse("failed to read candles", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"symbol":    symbol,
		"timeframe": label,
		"start":     start,
		"end":       end,
		"candles":   candles,
	})
}

// resolveWindow parses optional start/end RFC3339 query params, defaulting
// to the pair's latest recorded coverage range when absent. The third
// return value is false when no window could be resolved at all (no
// query params and no range ever recorded) — the caller treats that as
// an empty frame rather than an error.
func (h *CandleHandler) resolveWindow(c *gin.Context, symbol, label string) (time.Time, time.Time, bool, error) {
	var q windowQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return time.Time{}, time.Time{}, false, apperrors.NewBadRequestError("invalid query parameters", err)
	}
	if err := h.validator.Struct(q); err != nil {
		return time.Time{}, time.Time{}, false, apperrors.NewBadRequestError("start and end must be supplied together", err)
	}

	if q.Start != "" && q.End != "" {
		start, err := time.Parse(time.RFC3339, q.Start)
		if err != nil {
			return time.Time{}, time.Time{}, false, apperrors.NewBadRequestError("invalid start, use RFC3339", err)
		}
		end, err := time.Parse(time.RFC3339, q.End)
		if err != nil {
			return time.Time{}, time.Time{}, false, apperrors.NewBadRequestError("invalid end, use RFC3339", err)
		}
		return start, end, true, nil
	}

	latest, err := h.ranges.LatestRange(c.Request.Context(), symbol, label)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	if latest == nil {
		return time.Time{}, time.Time{}, false, nil
	}
	return latest.Start, latest.End, true, nil
}

// coveredRange is one entry of list_all_covered_ranges()'s response.
type coveredRange struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

// listAllCoveredRanges implements list_all_covered_ranges(): the union of
// every proven-complete range across every configured (symbol, timeframe)
// pair.
func (h *CandleHandler) listAllCoveredRanges(c *gin.Context) {
	if err := h.gate.RequireReady(); err != nil {
		respondError(c, err)
		return
	}

	out := make([]coveredRange, 0)
	for _, pair := range h.pairs {
		for _, tf := range pair.Targets {
			rows, err := h.ranges.FetchRanges(c.Request.Context(), pair.Symbol, tf.Raw)
			if err != nil {
				c.JSON(http.StatusInternalServerError, apperrors.NewErrorResponse("failed to list ranges", err))
				return
			}
			for _, r := range rows {
				out = append(out, coveredRange{Symbol: r.Symbol, Timeframe: r.Timeframe, Start: r.Start, End: r.End})
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "ranges": out})
}

// respondError maps apperrors.ServiceUnavailableError to 503, an
// apperrors.AppError to its own Code, and everything else to a generic
// 500, matching the teacher's handleError.
func respondError(c *gin.Context, err error) {
	if _, ok := err.(*apperrors.ServiceUnavailableError); ok {
		c.JSON(http.StatusServiceUnavailable, apperrors.NewErrorResponse("ingestion is not ready", err))
		return
	}
	if appErr, ok := err.(*apperrors.AppError); ok {
		c.JSON(appErr.Code, apperrors.NewErrorResponse(appErr.Message, appErr))
		return
	}
	log.Error("HTTP handler error: %v", err)
	c.JSON(http.StatusInternalServerError, apperrors.NewErrorResponse("internal server error", err))
}
