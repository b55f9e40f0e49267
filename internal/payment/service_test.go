package payment

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"vending-backend/internal/bus"
	"vending-backend/internal/db"
	"vending-backend/internal/dispense"
	"vending-backend/internal/model"
	"vending-backend/internal/store"
)

const testServerKey = "SB-Mid-server-testkey"

// fakeGateway is a scriptable Gateway.
type fakeGateway struct {
	createErr  error
	status     *StatusResponse
	cancelled  []string
	createdReq *SnapRequest
}

func (f *fakeGateway) CreateTransaction(ctx context.Context, req SnapRequest) (*SnapResponse, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createdReq = &req
	return &SnapResponse{Token: "snap-token", RedirectURL: "https://pay.example/redirect"}, nil
}

func (f *fakeGateway) Status(ctx context.Context, orderID string) (*StatusResponse, error) {
	if f.status == nil {
		return nil, errors.New("no scripted status")
	}
	return f.status, nil
}

func (f *fakeGateway) Cancel(ctx context.Context, orderID string) error {
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

// fakeBus swallows publishes so the commander can be exercised without a
// broker.
type fakeBus struct{}

func (fakeBus) Subscribe(topic string, handler bus.MessageHandler) error { return nil }
func (fakeBus) Unsubscribe(topic string) error                           { return nil }
func (fakeBus) Publish(topic string, payload []byte) error               { return nil }
func (fakeBus) Connected() bool                                          { return true }
func (fakeBus) Close()                                                   {}

type fakeAlerter struct {
	dispatched []string
}

func (f *fakeAlerter) Dispatch(machineID int64, kind string) {
	f.dispatched = append(f.dispatched, kind)
}

type paymentEnv struct {
	db      *gorm.DB
	store   store.Store
	gateway *fakeGateway
	alerter *fakeAlerter
	svc     *Service
}

func newPaymentEnv(t *testing.T) *paymentEnv {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	testDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(testDB))

	require.NoError(t, testDB.Create(&model.Machine{
		ID: 1, Code: "VM-001", Name: "Lobby", Location: "Lobby",
		MQTTTopic: "vending/vm-001", Status: model.StatusOnline,
	}).Error)
	require.NoError(t, testDB.Create(&model.Product{
		ID: 1, Name: "Turmeric Tonic", Price: 15000,
	}).Error)
	require.NoError(t, testDB.Create(&model.User{
		ID: 1, Name: "Alex", Email: "alex@example.com",
	}).Error)

	s := store.NewGormStore(testDB)
	_, err = s.SetStock(context.Background(), 1, 1, 5)
	require.NoError(t, err)

	gw := &fakeGateway{}
	alerter := &fakeAlerter{}
	svc := NewService(s, gw, dispense.NewCommander(s, fakeBus{}), testServerKey, "https://shop.example")
	svc.SetAlerter(alerter)

	return &paymentEnv{db: testDB, store: s, gateway: gw, alerter: alerter, svc: svc}
}

func signFor(orderID, statusCode, grossAmount string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + testServerKey))
	return hex.EncodeToString(sum[:])
}

func settlementFor(orderID string, grossAmount int64) Notification {
	gross := fmt.Sprintf("%d.00", grossAmount)
	return Notification{
		OrderID:           orderID,
		StatusCode:        "200",
		GrossAmount:       gross,
		TransactionID:     "gw-tx-1",
		TransactionStatus: "settlement",
		PaymentType:       "qris",
		SignatureKey:      signFor(orderID, "200", gross),
	}
}

func (e *paymentEnv) create(t *testing.T, qty int) *CreateResult {
	result, err := e.svc.Create(context.Background(), CreateRequest{
		ProductID: 1, MachineID: 1, UserID: 1, Quantity: qty,
	})
	require.NoError(t, err)
	return result
}

func (e *paymentEnv) stock(t *testing.T) int {
	stock, err := e.store.StockFor(context.Background(), 1, 1)
	require.NoError(t, err)
	return stock
}

func (e *paymentEnv) dispenseTasks(t *testing.T) []model.DispenseTask {
	var tasks []model.DispenseTask
	require.NoError(t, e.db.Find(&tasks).Error)
	return tasks
}

func TestCreate(t *testing.T) {
	env := newPaymentEnv(t)

	result := env.create(t, 2)

	assert.True(t, strings.HasPrefix(result.OrderID, "ORDER-"))
	assert.Equal(t, "snap-token", result.SnapToken)
	assert.Equal(t, int64(30000), result.GrossAmount)

	var tx model.Transaction
	require.NoError(t, env.db.Where("order_id = ?", result.OrderID).First(&tx).Error)
	assert.Equal(t, model.TxPending, tx.Status)
	assert.Equal(t, 2, tx.Quantity)
	assert.Nil(t, tx.PaidAt)

	// Creating an order must not touch stock.
	assert.Equal(t, 5, env.stock(t))
}

func TestCreate_Validations(t *testing.T) {
	testCases := []struct {
		name        string
		req         CreateRequest
		setup       func(env *paymentEnv)
		expectedErr error
	}{
		{
			name:        "unknown product",
			req:         CreateRequest{ProductID: 99, MachineID: 1, UserID: 1, Quantity: 1},
			expectedErr: ErrProductNotFound,
		},
		{
			name:        "unknown machine",
			req:         CreateRequest{ProductID: 1, MachineID: 99, UserID: 1, Quantity: 1},
			expectedErr: ErrMachineNotFound,
		},
		{
			name:        "unknown user",
			req:         CreateRequest{ProductID: 1, MachineID: 1, UserID: 99, Quantity: 1},
			expectedErr: ErrUserNotFound,
		},
		{
			name: "machine offline",
			req:  CreateRequest{ProductID: 1, MachineID: 1, UserID: 1, Quantity: 1},
			setup: func(env *paymentEnv) {
				env.db.Model(&model.Machine{}).Where("id = ?", 1).
					Update("status", model.StatusOffline)
			},
			expectedErr: ErrMachineNotOnline,
		},
		{
			name:        "insufficient stock",
			req:         CreateRequest{ProductID: 1, MachineID: 1, UserID: 1, Quantity: 6},
			expectedErr: ErrInsufficientStock,
		},
		{
			name: "non-positive price",
			req:  CreateRequest{ProductID: 1, MachineID: 1, UserID: 1, Quantity: 1},
			setup: func(env *paymentEnv) {
				env.db.Model(&model.Product{}).Where("id = ?", 1).Update("price", 0)
			},
			expectedErr: ErrInvalidPrice,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newPaymentEnv(t)
			if tc.setup != nil {
				tc.setup(env)
			}

			_, err := env.svc.Create(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.expectedErr)

			var count int64
			env.db.Model(&model.Transaction{}).Count(&count)
			assert.Zero(t, count, "a rejected create must not write the ledger")
		})
	}
}

func TestCreate_GatewayFailureWritesNothing(t *testing.T) {
	env := newPaymentEnv(t)
	env.gateway.createErr = errors.New("gateway down")

	_, err := env.svc.Create(context.Background(), CreateRequest{
		ProductID: 1, MachineID: 1, UserID: 1, Quantity: 1,
	})
	assert.Error(t, err)

	var count int64
	env.db.Model(&model.Transaction{}).Count(&count)
	assert.Zero(t, count)
}

func TestHandleNotification_RejectsBadSignature(t *testing.T) {
	env := newPaymentEnv(t)
	result := env.create(t, 1)

	n := settlementFor(result.OrderID, result.GrossAmount)
	n.SignatureKey = "forged"

	_, err := env.svc.HandleNotification(context.Background(), n)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	var tx model.Transaction
	require.NoError(t, env.db.Where("order_id = ?", result.OrderID).First(&tx).Error)
	assert.Equal(t, model.TxPending, tx.Status, "a forged webhook must not change state")
	assert.Equal(t, 5, env.stock(t))
}

func TestHandleNotification_UnknownOrder(t *testing.T) {
	env := newPaymentEnv(t)

	n := settlementFor("ORDER-missing", 15000)
	_, err := env.svc.HandleNotification(context.Background(), n)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestHandleNotification_SettlementFulfillsOnce(t *testing.T) {
	env := newPaymentEnv(t)
	result := env.create(t, 2)

	n := settlementFor(result.OrderID, result.GrossAmount)

	status, err := env.svc.HandleNotification(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, model.TxSuccess, status)

	var tx model.Transaction
	require.NoError(t, env.db.Where("order_id = ?", result.OrderID).First(&tx).Error)
	assert.Equal(t, model.TxSuccess, tx.Status)
	assert.NotNil(t, tx.PaidAt)
	assert.Equal(t, "gw-tx-1", tx.GatewayTxID)

	assert.Equal(t, 3, env.stock(t))
	tasks := env.dispenseTasks(t)
	require.Len(t, tasks, 1)
	assert.Equal(t, model.TaskDispense, tasks[0].Kind)
	assert.Equal(t, "VM-001", tasks[0].MachineCode)
	assert.Equal(t, result.OrderID, tasks[0].OrderID)

	// The same settlement delivered again refreshes metadata but fires no
	// second side effect.
	firstPaidAt := *tx.PaidAt
	status, err = env.svc.HandleNotification(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, model.TxSuccess, status)

	require.NoError(t, env.db.Where("order_id = ?", result.OrderID).First(&tx).Error)
	require.NotNil(t, tx.PaidAt)
	assert.Equal(t, firstPaidAt.Unix(), tx.PaidAt.Unix())
	assert.Equal(t, 3, env.stock(t), "duplicate webhook must not double-decrement")
	assert.Len(t, env.dispenseTasks(t), 1, "duplicate webhook must not double-dispense")
}

func TestHandleNotification_InsufficientStockOnEdge(t *testing.T) {
	env := newPaymentEnv(t)
	result := env.create(t, 2)

	// Stock disappears between create and settlement (a concurrent sale).
	_, err := env.store.SetStock(context.Background(), 1, 1, 1)
	require.NoError(t, err)

	status, err := env.svc.HandleNotification(context.Background(), settlementFor(result.OrderID, result.GrossAmount))
	require.NoError(t, err)
	assert.Equal(t, model.TxSuccess, status, "payment stays confirmed even when unfulfillable")

	assert.Equal(t, 1, env.stock(t), "stock must not go negative")
	assert.Empty(t, env.dispenseTasks(t), "no dispense without a decrement")
	assert.Equal(t, []string{"unfulfillable"}, env.alerter.dispatched)
}

func TestHandleNotification_PendingThenExpired(t *testing.T) {
	env := newPaymentEnv(t)
	result := env.create(t, 1)

	n := settlementFor(result.OrderID, result.GrossAmount)
	n.TransactionStatus = "expire"

	status, err := env.svc.HandleNotification(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, model.TxExpired, status)

	var tx model.Transaction
	require.NoError(t, env.db.Where("order_id = ?", result.OrderID).First(&tx).Error)
	assert.Equal(t, model.TxExpired, tx.Status)
	assert.Nil(t, tx.PaidAt)
	assert.Equal(t, 5, env.stock(t))
}

func TestCheckStatus(t *testing.T) {
	env := newPaymentEnv(t)
	result := env.create(t, 1)

	env.gateway.status = &StatusResponse{
		OrderID:           result.OrderID,
		TransactionID:     "gw-tx-2",
		TransactionStatus: "settlement",
		PaymentType:       "gopay",
	}

	tx, gwStatus, err := env.svc.CheckStatus(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "settlement", gwStatus.TransactionStatus)
	assert.Equal(t, model.TxSuccess, tx.Status)
	assert.Equal(t, 4, env.stock(t))
	assert.Len(t, env.dispenseTasks(t), 1)

	// Polling again observes no change and fires nothing.
	tx, _, err = env.svc.CheckStatus(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.TxSuccess, tx.Status)
	assert.Equal(t, 4, env.stock(t))
	assert.Len(t, env.dispenseTasks(t), 1)
}

func TestCancel(t *testing.T) {
	env := newPaymentEnv(t)
	result := env.create(t, 1)

	require.NoError(t, env.svc.Cancel(context.Background(), result.OrderID))
	assert.Equal(t, []string{result.OrderID}, env.gateway.cancelled)

	var tx model.Transaction
	require.NoError(t, env.db.Where("order_id = ?", result.OrderID).First(&tx).Error)
	assert.Equal(t, model.TxCancelled, tx.Status)

	// Only pending orders are cancellable.
	err := env.svc.Cancel(context.Background(), result.OrderID)
	assert.ErrorIs(t, err, ErrNotCancellable)
}

func TestMapGatewayStatus(t *testing.T) {
	testCases := []struct {
		transactionStatus string
		fraudStatus       string
		expected          model.TransactionStatus
	}{
		{"capture", "accept", model.TxSuccess},
		{"capture", "challenge", model.TxFailed},
		{"settlement", "", model.TxSuccess},
		{"pending", "", model.TxPending},
		{"deny", "", model.TxCancelled},
		{"cancel", "", model.TxCancelled},
		{"expire", "", model.TxExpired},
		{"refund", "", model.TxFailed},
		{"", "", model.TxFailed},
	}

	for _, tc := range testCases {
		name := tc.transactionStatus
		if name == "" {
			name = "unknown"
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, mapGatewayStatus(tc.transactionStatus, tc.fraudStatus))
		})
	}
}
