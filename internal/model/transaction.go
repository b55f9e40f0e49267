package model

import "time"

// TransactionStatus is the lifecycle status of a payment transaction.
// Pending may transition to any other status; the rest are terminal.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxSuccess   TransactionStatus = "success"
	TxFailed    TransactionStatus = "failed"
	TxExpired   TransactionStatus = "expired"
	TxCancelled TransactionStatus = "cancelled"
)

// Transaction is the durable ledger record of one purchase.
type Transaction struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   string `gorm:"uniqueIndex;size:64;not null" json:"orderId"`
	UserID    int64  `gorm:"index;not null" json:"userId"`
	ProductID int64  `gorm:"index;not null" json:"productId"`
	MachineID int64  `gorm:"index;not null" json:"machineId"`
	Quantity  int    `gorm:"not null;default:1" json:"quantity"`

	Status            TransactionStatus `gorm:"size:16;not null;default:pending" json:"status"`
	GatewayTxID       string            `gorm:"size:128" json:"transactionId"`
	TransactionStatus string            `gorm:"size:32" json:"transactionStatus"`
	PaymentType       string            `gorm:"size:64" json:"paymentType"`
	GrossAmount       int64             `gorm:"not null" json:"grossAmount"`
	PaidAt            *time.Time        `json:"paidAt"`
	SnapToken         string            `gorm:"type:text" json:"snapToken,omitempty"`
	SnapURL           string            `gorm:"type:text" json:"snapUrl,omitempty"`
	Platform          string            `gorm:"size:32;not null;default:web" json:"platform"`
	GatewayResponse   string            `gorm:"type:text" json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Associations
	User    User    `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	Product Product `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	Machine Machine `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
}
