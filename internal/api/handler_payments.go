package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"vending-backend/internal/model"
	"vending-backend/internal/payment"
)

type createPaymentRequest struct {
	ProductID int64  `json:"productId" binding:"required"`
	MachineID int64  `json:"machineId" binding:"required"`
	UserID    int64  `json:"userId" binding:"required"`
	Quantity  int    `json:"quantity"`
	Platform  string `json:"platform"`
}

// CreatePayment handles POST /api/payments/create.
func (h *Handler) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	result, err := h.payments.Create(c.Request.Context(), payment.CreateRequest{
		ProductID: req.ProductID,
		MachineID: req.MachineID,
		UserID:    req.UserID,
		Quantity:  req.Quantity,
		Platform:  req.Platform,
	})
	if err != nil {
		c.JSON(paymentErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, result)
}

// PaymentNotification handles POST /api/payments/notification, the gateway
// webhook. The gateway only needs a 200; errors are reported so it retries.
func (h *Handler) PaymentNotification(c *gin.Context) {
	var n payment.Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := h.payments.HandleNotification(c.Request.Context(), n)
	if err != nil {
		c.JSON(paymentErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orderId": n.OrderID, "status": status})
}

// GetPaymentStatus handles GET /api/payments/status/:orderId. It polls the
// gateway and reconciles the ledger before answering.
func (h *Handler) GetPaymentStatus(c *gin.Context) {
	orderID := c.Param("orderId")

	tx, gatewayStatus, err := h.payments.CheckStatus(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(paymentErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx, "gateway": gatewayStatus})
}

// CancelPayment handles POST /api/payments/cancel/:orderId.
func (h *Handler) CancelPayment(c *gin.Context) {
	orderID := c.Param("orderId")

	if err := h.payments.Cancel(c.Request.Context(), orderID); err != nil {
		c.JSON(paymentErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orderId": orderID, "status": model.TxCancelled})
}

// GetTransactions handles GET /api/payments/transactions.
func (h *Handler) GetTransactions(c *gin.Context) {
	db := h.store.DB().WithContext(c.Request.Context())

	if status := c.Query("status"); status != "" {
		db = db.Where("status = ?", status)
	}
	if raw := c.Query("userId"); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
			return
		}
		db = db.Where("user_id = ?", userID)
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var txs []model.Transaction
	if err := db.Order("created_at DESC").Limit(limit).Find(&txs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve transactions"})
		return
	}
	c.JSON(http.StatusOK, txs)
}

// GetTransaction handles GET /api/payments/transaction/:orderId. Unlike the
// status endpoint it reads only the local ledger.
func (h *Handler) GetTransaction(c *gin.Context) {
	tx, err := h.store.TransactionByOrderID(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, tx)
}

// paymentErrorStatus maps reconciler errors onto HTTP status codes.
func paymentErrorStatus(err error) int {
	switch {
	case errors.Is(err, payment.ErrProductNotFound),
		errors.Is(err, payment.ErrMachineNotFound),
		errors.Is(err, payment.ErrUserNotFound),
		errors.Is(err, payment.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, payment.ErrMachineNotOnline),
		errors.Is(err, payment.ErrInsufficientStock),
		errors.Is(err, payment.ErrNotCancellable):
		return http.StatusConflict
	case errors.Is(err, payment.ErrInvalidPrice):
		return http.StatusUnprocessableEntity
	case errors.Is(err, payment.ErrInvalidSignature):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
