package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"vending-backend/internal/model"
)

// EnqueueDispense adds a durable dispense task to the outbox.
func (s *gormStore) EnqueueDispense(ctx context.Context, task *model.DispenseTask) error {
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("failed to enqueue %s task for machine %s: %w", task.Kind, task.MachineCode, err)
	}
	return nil
}

// DueDispenseTasks returns unfinished tasks whose due time has passed,
// oldest first.
func (s *gormStore) DueDispenseTasks(ctx context.Context, now time.Time, limit int) ([]model.DispenseTask, error) {
	var tasks []model.DispenseTask
	err := s.db.WithContext(ctx).
		Where("done_at IS NULL AND due_at <= ?", now).
		Order("due_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch due dispense tasks: %w", err)
	}
	return tasks, nil
}

// MarkTaskDone finishes a task.
func (s *gormStore) MarkTaskDone(ctx context.Context, taskID int64, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&model.DispenseTask{}).
		Where("id = ?", taskID).
		Update("done_at", at).Error
	if err != nil {
		return fmt.Errorf("failed to mark task %d done: %w", taskID, err)
	}
	return nil
}

// MarkTaskFailed records a failed attempt; the task stays due and will be
// retried on the next poll.
func (s *gormStore) MarkTaskFailed(ctx context.Context, taskID int64, taskErr error) error {
	err := s.db.WithContext(ctx).Model(&model.DispenseTask{}).
		Where("id = ?", taskID).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": taskErr.Error(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark task %d failed: %w", taskID, err)
	}
	return nil
}
