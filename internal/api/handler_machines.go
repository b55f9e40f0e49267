package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"vending-backend/internal/model"
)

type createMachineRequest struct {
	Code      string   `json:"code" binding:"required"`
	Name      string   `json:"name" binding:"required"`
	Location  string   `json:"location"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	MQTTTopic string   `json:"mqttTopic" binding:"required"`
}

// CreateMachine handles POST /api/machines.
func (h *Handler) CreateMachine(c *gin.Context) {
	var req createMachineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	machine := model.Machine{
		Code:      req.Code,
		Name:      req.Name,
		Location:  req.Location,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		MQTTTopic: req.MQTTTopic,
		Status:    model.StatusOffline,
	}
	if err := h.store.DB().WithContext(c.Request.Context()).Create(&machine).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "a machine with that code or mqtt topic already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// New machines feed telemetry on their own topics right away.
	if h.ingestor != nil {
		if err := h.ingestor.Resubscribe(c.Request.Context()); err != nil {
			c.JSON(http.StatusCreated, gin.H{"machine": machine, "warning": "machine created but topic subscription failed"})
			return
		}
	}

	c.JSON(http.StatusCreated, machine)
}

// GetMachines handles GET /api/machines.
func (h *Handler) GetMachines(c *gin.Context) {
	machines, err := h.store.ListMachines(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve machines"})
		return
	}
	c.JSON(http.StatusOK, machines)
}

// GetOnlineMachines handles GET /api/machines/online.
func (h *Handler) GetOnlineMachines(c *gin.Context) {
	var machines []model.Machine
	err := h.store.DB().WithContext(c.Request.Context()).
		Where("status = ?", model.StatusOnline).
		Order("code").
		Find(&machines).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve machines"})
		return
	}
	c.JSON(http.StatusOK, machines)
}

// dashboardResponse aggregates fleet counts per status.
type dashboardResponse struct {
	Total       int64 `json:"total"`
	Online      int64 `json:"online"`
	Offline     int64 `json:"offline"`
	Maintenance int64 `json:"maintenance"`
}

// GetDashboard handles GET /api/machines/dashboard.
func (h *Handler) GetDashboard(c *gin.Context) {
	db := h.store.DB().WithContext(c.Request.Context())

	type aggRow struct {
		Status model.MachineStatus
		Count  int64
	}
	var aggs []aggRow
	err := db.Model(&model.Machine{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&aggs).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to aggregate machines"})
		return
	}

	var resp dashboardResponse
	for _, a := range aggs {
		resp.Total += a.Count
		switch a.Status {
		case model.StatusOnline:
			resp.Online = a.Count
		case model.StatusOffline:
			resp.Offline = a.Count
		case model.StatusMaintenance:
			resp.Maintenance = a.Count
		}
	}
	c.JSON(http.StatusOK, resp)
}

// GetMachine handles GET /api/machines/:id.
func (h *Handler) GetMachine(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid machine ID"})
		return
	}

	var machine model.Machine
	if err := h.store.DB().WithContext(c.Request.Context()).First(&machine, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "machine not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, machine)
}

// GetTemperatureHistory handles GET /api/machines/:id/temperature.
func (h *Handler) GetTemperatureHistory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid machine ID"})
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	var logs []model.TemperatureLog
	err = h.store.DB().WithContext(c.Request.Context()).
		Where("machine_id = ?", id).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve temperature history"})
		return
	}
	c.JSON(http.StatusOK, logs)
}

// machineProductResponse joins a product with its stock on one machine.
type machineProductResponse struct {
	model.Product
	Stock int `json:"stock"`
}

// GetMachineProducts handles GET /api/machines/:id/products.
func (h *Handler) GetMachineProducts(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid machine ID"})
		return
	}

	db := h.store.DB().WithContext(c.Request.Context())

	var rows []model.MachineProduct
	if err := db.Where("machine_id = ?", id).Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve stock"})
		return
	}
	if len(rows) == 0 {
		c.JSON(http.StatusOK, []machineProductResponse{})
		return
	}

	productIDs := make([]int64, len(rows))
	stockByProduct := make(map[int64]int, len(rows))
	for i, row := range rows {
		productIDs[i] = row.ProductID
		stockByProduct[row.ProductID] = row.Stock
	}

	var products []model.Product
	if err := db.Find(&products, productIDs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve products"})
		return
	}

	resp := make([]machineProductResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, machineProductResponse{Product: p, Stock: stockByProduct[p.ID]})
	}
	c.JSON(http.StatusOK, resp)
}
