package chain

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ksred/chain-engine/pkg/response"
)

// GinHandlers contains HTTP handlers for chain endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for chain endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// SubmitTransactionRequest is the body of a transaction submission. The
// payload is kept as a raw string so it reaches the contract byte-for-byte
// as signed.
type SubmitTransactionRequest struct {
	TransactionID string `json:"transaction_id"`
	Sender        string `json:"sender" binding:"required"`
	Contract      string `json:"contract" binding:"required"`
	Action        string `json:"action" binding:"required"`
	Payload       string `json:"payload"`
}

// SubmitTransactionHandler handles POST requests to queue a transaction for
// the next block. Resubmitting the same transaction id is rejected by the
// pending pool's unique index, which doubles as the idempotency check.
func (h *GinHandlers) SubmitTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SubmitTransactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if req.TransactionID == "" {
			req.TransactionID = uuid.New().String()
		}
		if req.Payload == "" {
			req.Payload = "{}"
		}

		pending := &PendingTransaction{
			TransactionID: req.TransactionID,
			Sender:        req.Sender,
			Contract:      req.Contract,
			Action:        req.Action,
			Payload:       req.Payload,
		}
		if err := h.service.db.AddPending(pending); err != nil {
			response.Conflict(c, "Transaction already submitted")
			return
		}

		response.Accepted(c, pending)
	}
}

// GetLatestBlockHandler handles GET requests for the chain head.
func (h *GinHandlers) GetLatestBlockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		block, err := h.service.db.LatestBlock()
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		if block == nil {
			response.NotFound(c, "Chain is empty")
			return
		}
		response.Success(c, block)
	}
}

// GetBlockHandler handles GET requests for one block by number.
// URL parameter: block_number
func (h *GinHandlers) GetBlockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		blockNumber, err := strconv.ParseInt(c.Param("block_number"), 10, 64)
		if err != nil {
			response.BadRequest(c, "Invalid block number")
			return
		}

		block, err := h.service.db.GetBlock(blockNumber)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		if block == nil {
			response.NotFound(c, "Block not found")
			return
		}
		response.Success(c, block)
	}
}

// GetTransactionHandler handles GET requests for an executed transaction.
// URL parameter: transaction_id
func (h *GinHandlers) GetTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		transactionID := c.Param("transaction_id")
		if transactionID == "" {
			response.BadRequest(c, "Transaction ID is required")
			return
		}

		record, err := h.service.db.GetTransaction(transactionID)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		if record == nil {
			response.NotFound(c, "Transaction not found")
			return
		}
		response.Success(c, record)
	}
}
