package dispense

import (
	"context"
	"fmt"
	"log"
	"time"

	"vending-backend/config"
	"vending-backend/internal/model"
	"vending-backend/internal/store"
)

// Worker drains the dispense outbox: due ON pulses and their delayed OFF
// legs. Failed publishes are retried on the next poll up to max_attempts,
// then retired with their last error kept for audit.
type Worker struct {
	store       store.Store
	commander   *Commander
	interval    time.Duration
	batchSize   int
	maxAttempts int
}

// NewWorker creates an outbox worker.
func NewWorker(s store.Store, c *Commander, cfg *config.OutboxConfig) *Worker {
	return &Worker{
		store:       s,
		commander:   c,
		interval:    cfg.PollInterval,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
	}
}

// Run polls for due tasks until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	log.Println("Starting dispense outbox worker...")

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Dispense outbox worker shutting down.")
			return
		case <-timer.C:
			w.ProcessOnce(ctx)
			timer.Reset(w.interval)
		}
	}
}

// ProcessOnce handles one batch of due tasks.
func (w *Worker) ProcessOnce(ctx context.Context) {
	tasks, err := w.store.DueDispenseTasks(ctx, time.Now(), w.batchSize)
	if err != nil {
		log.Printf("Error fetching due dispense tasks: %v", err)
		return
	}

	for _, task := range tasks {
		if err := w.runTask(ctx, task); err != nil {
			w.recordFailure(ctx, task, err)
			continue
		}
		if err := w.store.MarkTaskDone(ctx, task.ID, time.Now()); err != nil {
			log.Printf("Error marking task %d done: %v", task.ID, err)
		}
	}
}

func (w *Worker) runTask(ctx context.Context, task model.DispenseTask) error {
	switch task.Kind {
	case model.TaskDispense:
		return w.commander.Dispense(ctx, task.MachineCode, task.ProductID, task.Quantity, task.OrderID)
	case model.TaskDispenseOff:
		return w.commander.PublishOff(task.MachineCode, task.ProductID)
	default:
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}
}

func (w *Worker) recordFailure(ctx context.Context, task model.DispenseTask, taskErr error) {
	log.Printf("Dispense task %d (%s %s/%d) failed on attempt %d: %v",
		task.ID, task.Kind, task.MachineCode, task.ProductID, task.Attempts+1, taskErr)

	if err := w.store.MarkTaskFailed(ctx, task.ID, taskErr); err != nil {
		log.Printf("Error marking task %d failed: %v", task.ID, err)
		return
	}

	if task.Attempts+1 >= w.maxAttempts {
		log.Printf("Dispense task %d exhausted %d attempts, retiring. Manual intervention required for order %s.",
			task.ID, w.maxAttempts, task.OrderID)
		if err := w.store.MarkTaskDone(ctx, task.ID, time.Now()); err != nil {
			log.Printf("Error retiring task %d: %v", task.ID, err)
		}
	}
}
