package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vending-backend/internal/model"
)

// StockFor returns the current stock for one (machine, product) slot.
// A slot that was never assigned stock reads as zero.
func (s *gormStore) StockFor(ctx context.Context, machineID, productID int64) (int, error) {
	var mp model.MachineProduct
	err := s.db.WithContext(ctx).
		Where("machine_id = ? AND product_id = ?", machineID, productID).
		First(&mp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read stock for machine %d product %d: %w", machineID, productID, err)
	}
	return mp.Stock, nil
}

// SetStock administratively sets the stock for a slot, creating it on first
// assignment.
func (s *gormStore) SetStock(ctx context.Context, machineID, productID int64, stock int) (*model.MachineProduct, error) {
	mp := model.MachineProduct{
		MachineID: machineID,
		ProductID: productID,
		Stock:     stock,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "machine_id"}, {Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"stock", "updated_at"}),
	}).Create(&mp).Error
	if err != nil {
		return nil, fmt.Errorf("failed to set stock for machine %d product %d: %w", machineID, productID, err)
	}
	return &mp, nil
}

// DecrementStock atomically decrements a slot's stock by quantity, refusing
// to go below zero. Returns false when available stock was insufficient; the
// caller decides whether that is an error. The guard lives in the WHERE
// clause so concurrent success notifications cannot double-decrement.
func (s *gormStore) DecrementStock(ctx context.Context, machineID, productID int64, quantity int) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.MachineProduct{}).
		Where("machine_id = ? AND product_id = ? AND stock >= ?", machineID, productID, quantity).
		Update("stock", gorm.Expr("stock - ?", quantity))
	if res.Error != nil {
		return false, fmt.Errorf("failed to decrement stock for machine %d product %d: %w", machineID, productID, res.Error)
	}
	return res.RowsAffected > 0, nil
}
