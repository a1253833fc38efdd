package market

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ksred/chain-engine/internal/store"
	"github.com/ksred/chain-engine/pkg/response"
)

const defaultQueryLimit = 100

// GinHandlers contains HTTP handlers for market query endpoints. They read
// contract state directly; all writes go through transactions.
type GinHandlers struct {
	db *Database
}

// NewGinHandlers creates market query handlers over the contract state store.
func NewGinHandlers(s *store.Store) *GinHandlers {
	return &GinHandlers{db: NewDatabase(s)}
}

// GetOrderBookHandler handles GET requests for one side of a symbol's book.
// URL parameter: symbol. Query parameters: side (buy|sell), limit.
func (h *GinHandlers) GetOrderBookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		symbol := c.Param("symbol")
		if symbol == "" {
			response.BadRequest(c, "Symbol is required")
			return
		}

		side := c.DefaultQuery("side", "buy")
		if side != "buy" && side != "sell" {
			response.BadRequest(c, "Side must be buy or sell")
			return
		}

		book, err := h.db.OrderBook(symbol, side == "buy", queryLimit(c))
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, book)
	}
}

// GetTradesHandler handles GET requests for a symbol's recent trades.
// URL parameter: symbol. Query parameter: limit.
func (h *GinHandlers) GetTradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		symbol := c.Param("symbol")
		if symbol == "" {
			response.BadRequest(c, "Symbol is required")
			return
		}

		trades, err := h.db.TradesBySymbol(symbol, queryLimit(c))
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, trades)
	}
}

// GetMetricsHandler handles GET requests for a symbol's market metrics.
// URL parameter: symbol
func (h *GinHandlers) GetMetricsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		symbol := c.Param("symbol")
		if symbol == "" {
			response.BadRequest(c, "Symbol is required")
			return
		}

		metric, err := h.db.Metric(symbol)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		if metric == nil {
			response.NotFound(c, "No metrics for symbol")
			return
		}
		response.Success(c, metric)
	}
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", ""))
	if err != nil || limit <= 0 || limit > 1000 {
		return defaultQueryLimit
	}
	return limit
}
