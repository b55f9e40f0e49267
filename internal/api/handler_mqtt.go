package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GetBrokerStatus handles GET /api/mqtt/status.
func (h *Handler) GetBrokerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected":  h.bus.Connected(),
		"wsClients":  h.hub.ClientCount(),
		"serverTime": time.Now().UTC(),
	})
}

type publishRequest struct {
	Topic   string `json:"topic" binding:"required"`
	Payload string `json:"payload" binding:"required"`
}

// Publish handles POST /api/mqtt/publish, a raw pass-through for operators.
func (h *Handler) Publish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.bus.Publish(req.Topic, []byte(req.Payload)); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"topic": req.Topic})
}

type dispenseRequest struct {
	MachineCode string `json:"machineCode" binding:"required"`
	ProductID   int64  `json:"productId" binding:"required"`
	Quantity    int    `json:"quantity"`
}

// Dispense handles POST /api/mqtt/dispense, the operator-initiated dispense
// used for hardware testing. The ON command goes out synchronously; the OFF
// leg is queued for the outbox worker.
func (h *Handler) Dispense(c *gin.Context) {
	var req dispenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	if err := h.commander.Dispense(c.Request.Context(), req.MachineCode, req.ProductID, req.Quantity, ""); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"machineCode": req.MachineCode, "productId": req.ProductID})
}

// Resubscribe handles POST /api/mqtt/resubscribe. It re-walks the machine
// directory and subscribes to every telemetry topic.
func (h *Handler) Resubscribe(c *gin.Context) {
	if err := h.ingestor.Resubscribe(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "resubscribed"})
}
