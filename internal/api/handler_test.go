package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"vending-backend/internal/db"
	"vending-backend/internal/model"
	"vending-backend/internal/store"
)

func setupTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	testDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(testDB))

	handler := NewHandler(Deps{Store: store.NewGormStore(testDB)})

	r := gin.New()
	r.GET("/api/machines", handler.GetMachines)
	r.POST("/api/machines", handler.CreateMachine)
	r.POST("/api/users", handler.CreateUser)
	r.GET("/api/machines/dashboard", handler.GetDashboard)
	r.GET("/api/machines/:id/products", handler.GetMachineProducts)
	r.POST("/api/products", handler.CreateProduct)
	r.PATCH("/api/products/:id", handler.UpdateProduct)
	r.POST("/api/products/:id/machines/:machineId/stock", handler.SetStock)
	r.GET("/api/users/:id", handler.GetUser)
	r.PUT("/api/subscriptions", handler.PutSubscription)
	return r, testDB
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(raw)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	w := httptest.NewRecorder()
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func seedMachine(t *testing.T, testDB *gorm.DB, status model.MachineStatus) {
	require.NoError(t, testDB.Create(&model.Machine{
		ID: 1, Code: "VM-001", Name: "Lobby", Location: "Lobby",
		MQTTTopic: "vending/vm-001", Status: status,
	}).Error)
}

func TestGetMachines(t *testing.T) {
	r, testDB := setupTestRouter(t)
	seedMachine(t, testDB, model.StatusOnline)

	w := doJSON(t, r, http.MethodGet, "/api/machines", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var machines []model.Machine
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &machines))
	require.Len(t, machines, 1)
	assert.Equal(t, "VM-001", machines[0].Code)
}

func TestGetDashboard(t *testing.T) {
	r, testDB := setupTestRouter(t)
	seedMachine(t, testDB, model.StatusOnline)
	require.NoError(t, testDB.Create(&model.Machine{
		ID: 2, Code: "VM-002", Name: "Gym", Location: "Gym",
		MQTTTopic: "vending/vm-002", Status: model.StatusMaintenance,
	}).Error)

	w := doJSON(t, r, http.MethodGet, "/api/machines/dashboard", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":2,"online":1,"offline":0,"maintenance":1}`, w.Body.String())
}

func TestCreateProduct(t *testing.T) {
	r, _ := setupTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/products", gin.H{
		"name":  "Turmeric Tonic",
		"price": 15000,
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	var product model.Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &product))
	assert.Equal(t, int64(15000), product.Price)
}

func TestCreateProduct_RejectsMissingPrice(t *testing.T) {
	r, _ := setupTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/products", gin.H{"name": "Freebie"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateProduct_NotFound(t *testing.T) {
	r, _ := setupTestRouter(t)

	w := doJSON(t, r, http.MethodPatch, "/api/products/99", gin.H{"price": 100})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetStockAndListMachineProducts(t *testing.T) {
	r, testDB := setupTestRouter(t)
	seedMachine(t, testDB, model.StatusOnline)
	require.NoError(t, testDB.Create(&model.Product{
		ID: 1, Name: "Turmeric Tonic", Price: 15000,
	}).Error)

	w := doJSON(t, r, http.MethodPost, "/api/products/1/machines/1/stock", gin.H{"stock": 7})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/machines/1/products", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var rows []machineProductResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, 7, rows[0].Stock)
	assert.Equal(t, "Turmeric Tonic", rows[0].Name)
}

func TestSetStock_UnknownProduct(t *testing.T) {
	r, testDB := setupTestRouter(t)
	seedMachine(t, testDB, model.StatusOnline)

	w := doJSON(t, r, http.MethodPost, "/api/products/42/machines/1/stock", gin.H{"stock": 7})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateMachine_DuplicateCodeConflicts(t *testing.T) {
	r, testDB := setupTestRouter(t)
	seedMachine(t, testDB, model.StatusOnline)

	w := doJSON(t, r, http.MethodPost, "/api/machines", gin.H{
		"code":      "VM-001",
		"name":      "Second Lobby",
		"mqttTopic": "vending/vm-001-b",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already exists")
}

func TestCreateUser_DuplicateEmailConflicts(t *testing.T) {
	r, _ := setupTestRouter(t)

	first := doJSON(t, r, http.MethodPost, "/api/users", gin.H{
		"name":  "Ana",
		"email": "ana@example.com",
	})
	require.Equal(t, http.StatusCreated, first.Code)

	second := doJSON(t, r, http.MethodPost, "/api/users", gin.H{
		"name":  "Ana Again",
		"email": "ana@example.com",
	})
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Contains(t, second.Body.String(), "already exists")
}

func TestGetUser_NotFound(t *testing.T) {
	r, _ := setupTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/api/users/5", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPutSubscription_RejectsEmptyBody(t *testing.T) {
	r, _ := setupTestRouter(t)

	w := doJSON(t, r, http.MethodPut, "/api/subscriptions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
