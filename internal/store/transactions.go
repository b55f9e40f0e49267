package store

import (
	"context"
	"fmt"
	"time"

	"vending-backend/internal/model"
)

// StatusUpdate carries everything the payment gateway reported for an order.
type StatusUpdate struct {
	Status            model.TransactionStatus
	GatewayTxID       string
	TransactionStatus string
	PaymentType       string
	RawResponse       string
	PaidAt            time.Time
}

// CreateTransaction persists a new pending transaction.
func (s *gormStore) CreateTransaction(ctx context.Context, tx *model.Transaction) error {
	if err := s.db.WithContext(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("failed to create transaction %s: %w", tx.OrderID, err)
	}
	return nil
}

// TransactionByOrderID looks a transaction up by its unique order identifier.
func (s *gormStore) TransactionByOrderID(ctx context.Context, orderID string) (*model.Transaction, error) {
	var tx model.Transaction
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&tx).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

// ApplyGatewayStatus persists a gateway-reported status for an order and
// reports whether this call crossed the success edge.
//
// The edge check is a conditional update (status <> 'success' in the WHERE
// clause), so two concurrent deliveries of the same settlement notification
// race on the database row and exactly one of them observes the edge. The
// gateway metadata snapshot is persisted either way. Non-success statuses
// apply only while the transaction is still pending; success, failed,
// expired and cancelled are terminal.
func (s *gormStore) ApplyGatewayStatus(ctx context.Context, orderID string, upd StatusUpdate) (bool, error) {
	meta := map[string]any{
		"gateway_tx_id":      upd.GatewayTxID,
		"transaction_status": upd.TransactionStatus,
		"payment_type":       upd.PaymentType,
		"gateway_response":   upd.RawResponse,
	}

	if upd.Status == model.TxSuccess {
		fields := map[string]any{"status": model.TxSuccess, "paid_at": upd.PaidAt}
		for k, v := range meta {
			fields[k] = v
		}
		res := s.db.WithContext(ctx).Model(&model.Transaction{}).
			Where("order_id = ? AND status <> ?", orderID, model.TxSuccess).
			Updates(fields)
		if res.Error != nil {
			return false, fmt.Errorf("failed to apply success status for order %s: %w", orderID, res.Error)
		}
		if res.RowsAffected > 0 {
			return true, nil
		}
		// Already successful: refresh the snapshot only, never paid_at.
		if err := s.db.WithContext(ctx).Model(&model.Transaction{}).
			Where("order_id = ?", orderID).
			Updates(meta).Error; err != nil {
			return false, fmt.Errorf("failed to refresh snapshot for order %s: %w", orderID, err)
		}
		return false, nil
	}

	fields := map[string]any{"status": upd.Status}
	for k, v := range meta {
		fields[k] = v
	}
	res := s.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("order_id = ? AND status = ?", orderID, model.TxPending).
		Updates(fields)
	if res.Error != nil {
		return false, fmt.Errorf("failed to apply status %s for order %s: %w", upd.Status, orderID, res.Error)
	}
	if res.RowsAffected == 0 {
		// Terminal transaction: keep the latest gateway snapshot for audit.
		if err := s.db.WithContext(ctx).Model(&model.Transaction{}).
			Where("order_id = ?", orderID).
			Updates(meta).Error; err != nil {
			return false, fmt.Errorf("failed to refresh snapshot for order %s: %w", orderID, err)
		}
	}
	return false, nil
}
