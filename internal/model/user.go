package model

import "time"

// User is a customer or administrator record. Authentication is handled by an
// external identity service; only the record itself lives here.
type User struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:256;not null" json:"name"`
	Email     string    `gorm:"uniqueIndex;size:256;not null" json:"email"`
	Phone     string    `gorm:"size:32" json:"phone"`
	Role      string    `gorm:"size:16;not null;default:customer" json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
