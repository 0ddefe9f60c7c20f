package transactions

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/fraudwatch/internal/bank"
	"github.com/mbd888/fraudwatch/internal/circuitbreaker"
	"github.com/mbd888/fraudwatch/internal/logging"
	"github.com/mbd888/fraudwatch/internal/pagination"
)

// Handler provides HTTP endpoints for transactions
type Handler struct {
	service *Service
}

// NewHandler creates a new transactions handler
func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// RegisterRoutes sets up transaction routes
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/generate", h.Generate)
	r.GET("", h.List)
	r.GET("/:txn_id", h.Get)
}

// Generate handles POST /transactions/generate?count=N
func (h *Handler) Generate(c *gin.Context) {
	count := DefaultGenerateCount
	if raw := c.Query("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_count",
				"message": "count must be an integer",
			})
			return
		}
		count = n
	}

	created, err := h.service.Generate(c.Request.Context(), count)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCount):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_count", "message": err.Error()})
		case errors.Is(err, bank.ErrNoLinkedAccount):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "no_linked_account",
				"message": "No linked account found. Link one using /bank/link first.",
			})
		case errors.Is(err, circuitbreaker.ErrOpen):
			storeUnavailable(c)
		default:
			logging.L(c.Request.Context()).Error("generate transactions failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to generate transactions",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Dummy transactions generated successfully",
		"transactions": created,
	})
}

// List handles GET /transactions?cursor=...&limit=N
func (h *Handler) List(c *gin.Context) {
	limit := pagination.Limit(c.Query("limit"), DefaultListLimit, MaxListLimit)

	page, err := h.service.List(c.Request.Context(), c.Query("cursor"), limit)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cursor", "message": err.Error()})
			return
		}
		if errors.Is(err, circuitbreaker.ErrOpen) {
			storeUnavailable(c)
			return
		}
		logging.L(c.Request.Context()).Error("list transactions failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list transactions",
		})
		return
	}

	c.JSON(http.StatusOK, page)
}

// Get handles GET /transactions/:txn_id
func (h *Handler) Get(c *gin.Context) {
	tx, err := h.service.Get(c.Request.Context(), c.Param("txn_id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Transaction not found"})
			return
		}
		if errors.Is(err, circuitbreaker.ErrOpen) {
			storeUnavailable(c)
			return
		}
		logging.L(c.Request.Context()).Error("get transaction failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load transaction",
		})
		return
	}

	c.JSON(http.StatusOK, tx)
}

func storeUnavailable(c *gin.Context) {
	c.Header("Retry-After", "30")
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"error":   "storage_unavailable",
		"message": "Transaction storage is temporarily unavailable",
	})
}
