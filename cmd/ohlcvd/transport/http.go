package transport

import (
	"github.com/gin-gonic/gin"

	"upbit_ingestor/cmd/ohlcvd/transport/rest"
)

// HTTPHandler composes the ingest daemon's thin HTTP consumer surface.
type HTTPHandler struct {
	candleHandler *rest.CandleHandler
}

// NewHTTPHandler builds an HTTPHandler.
func NewHTTPHandler(candleHandler *rest.CandleHandler) *HTTPHandler {
	return &HTTPHandler{candleHandler: candleHandler}
}

// RegisterRoutes wires middleware and every handler's routes onto router.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.Use(CORSMiddleware())
	router.Use(RequestLoggerMiddleware())

	router.GET("/api/v1/health", h.healthCheck)

	h.candleHandler.RegisterRoutes(router)
}

func (h *HTTPHandler) healthCheck(c *gin.Context) {
	c.JSON(200, gin.H{"status": "UP"})
}
