package model

import "time"

// TemperatureLog is an append-only record of a machine's environment reading.
type TemperatureLog struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MachineID   int64     `gorm:"index;not null" json:"machineId"`
	Temperature float64   `gorm:"not null" json:"temperature"`
	Humidity    *float64  `json:"humidity"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`

	// Associations
	Machine Machine `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
