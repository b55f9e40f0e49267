package model

import "time"

// DispenseTaskKind selects what the outbox worker publishes for a task.
type DispenseTaskKind string

const (
	// TaskDispense publishes the ON leg of a pulse and schedules its OFF leg.
	TaskDispense DispenseTaskKind = "dispense"
	// TaskDispenseOff publishes the delayed OFF leg.
	TaskDispenseOff DispenseTaskKind = "dispense_off"
)

// DispenseTask is a durable outbox entry for hardware actuation. Publishing
// through the table instead of an in-memory timer means a process restart or
// a transient broker failure cannot silently drop a pulse leg.
type DispenseTask struct {
	ID          int64            `gorm:"primaryKey;autoIncrement"`
	Kind        DispenseTaskKind `gorm:"size:16;not null"`
	MachineCode string           `gorm:"size:64;not null"`
	ProductID   int64            `gorm:"not null"`
	Quantity    int              `gorm:"not null;default:1"`
	OrderID     string           `gorm:"size:64"`
	DueAt       time.Time        `gorm:"index;not null"`
	Attempts    int              `gorm:"not null;default:0"`
	LastError   string           `gorm:"type:text"`
	DoneAt      *time.Time       `gorm:"index"`
	CreatedAt   time.Time
}
