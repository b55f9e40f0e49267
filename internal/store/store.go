package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"vending-backend/internal/model"
)

// Store defines the interface for all database operations used by the
// telemetry, payment and dispense pipelines. Plain CRUD handlers go through
// DB() directly.
type Store interface {
	DB() *gorm.DB

	// Machine directory
	ListMachines(ctx context.Context) ([]model.Machine, error)
	MachineByCode(ctx context.Context, code string) (*model.Machine, error)
	RecordTemperature(ctx context.Context, machineID int64, temperature float64, humidity *float64, at time.Time) error
	SetMachineStatus(ctx context.Context, machineID int64, status model.MachineStatus, at time.Time) error
	TouchMachine(ctx context.Context, machineID int64, at time.Time) error
	AppendTemperatureLog(ctx context.Context, machineID int64, temperature float64, humidity *float64) error

	// Per-machine stock
	StockFor(ctx context.Context, machineID, productID int64) (int, error)
	SetStock(ctx context.Context, machineID, productID int64, stock int) (*model.MachineProduct, error)
	DecrementStock(ctx context.Context, machineID, productID int64, quantity int) (bool, error)

	// Transaction ledger
	CreateTransaction(ctx context.Context, tx *model.Transaction) error
	TransactionByOrderID(ctx context.Context, orderID string) (*model.Transaction, error)
	ApplyGatewayStatus(ctx context.Context, orderID string, upd StatusUpdate) (bool, error)

	// Dispense outbox
	EnqueueDispense(ctx context.Context, task *model.DispenseTask) error
	DueDispenseTasks(ctx context.Context, now time.Time, limit int) ([]model.DispenseTask, error)
	MarkTaskDone(ctx context.Context, taskID int64, at time.Time) error
	MarkTaskFailed(ctx context.Context, taskID int64, taskErr error) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}
