package bank

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/fraudwatch/internal/logging"
)

// Handler provides HTTP endpoints for account linking
type Handler struct {
	service *Service
}

// NewHandler creates a new bank handler
func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// RegisterRoutes sets up bank routes
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/link", h.Link)
}

// Link handles POST /bank/link
func (h *Handler) Link(c *gin.Context) {
	account, created, err := h.service.Link(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("bank link failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to link bank account",
		})
		return
	}

	message := "Dummy account already linked"
	if created {
		message = "Dummy bank account linked successfully"
		logging.L(c.Request.Context()).Info("bank account linked", "account_id", account.ID)
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    message,
		"account_id": account.ID,
		"account":    account,
	})
}
