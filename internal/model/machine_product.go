package model

import "time"

// MachineProduct tracks per-machine stock for one product. Stock never goes
// below zero; decrements happen only on the payment success edge.
type MachineProduct struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MachineID int64     `gorm:"uniqueIndex:idx_machine_product;not null" json:"machineId"`
	ProductID int64     `gorm:"uniqueIndex:idx_machine_product;not null" json:"productId"`
	Stock     int       `gorm:"not null;default:0" json:"stock"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Associations
	Machine Machine `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Product Product `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
