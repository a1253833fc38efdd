package tokens

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ksred/chain-engine/internal/store"
	"github.com/ksred/chain-engine/pkg/response"
)

// GinHandlers contains HTTP handlers for token query endpoints.
type GinHandlers struct {
	store *store.Store
}

// NewGinHandlers creates token query handlers over the contract state store.
func NewGinHandlers(s *store.Store) *GinHandlers {
	return &GinHandlers{store: s}
}

// GetTokenHandler handles GET requests for a token definition.
// URL parameter: symbol
func (h *GinHandlers) GetTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		symbol := c.Param("symbol")
		if symbol == "" {
			response.BadRequest(c, "Symbol is required")
			return
		}

		var token Token
		err := h.store.Session().Where("symbol = ?", symbol).First(&token).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "Token not found")
			return
		}
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, token)
	}
}

// GetBalancesHandler handles GET requests for an account's balances.
// URL parameter: account
func (h *GinHandlers) GetBalancesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		account := c.Param("account")
		if account == "" {
			response.BadRequest(c, "Account is required")
			return
		}

		var balances []Balance
		err := h.store.Session().
			Where("account = ?", account).
			Order("symbol asc").
			Find(&balances).Error
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, balances)
	}
}

// GetPendingUnstakesHandler handles GET requests for an account's pending
// unstakes. URL parameter: account
func (h *GinHandlers) GetPendingUnstakesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		account := c.Param("account")
		if account == "" {
			response.BadRequest(c, "Account is required")
			return
		}

		var pending []PendingUnstake
		err := h.store.Session().
			Where("account = ?", account).
			Order("id asc").
			Find(&pending).Error
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, pending)
	}
}
