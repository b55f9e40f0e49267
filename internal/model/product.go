package model

import "time"

// Product is a sellable item. Price is in the smallest currency unit.
type Product struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:256;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Benefits    string    `gorm:"type:text" json:"benefits"`
	Price       int64     `gorm:"not null" json:"price"`
	ImageURL    string    `gorm:"size:512" json:"imageUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Associations
	MachineProducts []MachineProduct `gorm:"foreignKey:ProductID" json:"-"`
}
