package dispense

import (
	"context"
	"fmt"
	"log"
	"time"

	"vending-backend/internal/bus"
	"vending-backend/internal/model"
	"vending-backend/internal/store"
)

// OffDelay is how long the actuator stays ON before the OFF leg fires.
const OffDelay = 5 * time.Second

const (
	payloadOn  = "ON"
	payloadOff = "OFF"
)

// Topic returns the actuation topic for one product slot on one machine.
func Topic(machineCode string, productID int64) string {
	return fmt.Sprintf("%s/dispense/%d", machineCode, productID)
}

// Commander issues the physical-actuation pulse for a product slot.
type Commander struct {
	store store.Store
	bus   bus.Client
}

// NewCommander creates a dispense commander.
func NewCommander(s store.Store, b bus.Client) *Commander {
	return &Commander{store: s, bus: b}
}

// Dispense publishes ON to the slot's topic and schedules the OFF leg as a
// durable task due OffDelay later. A publish failure on the ON leg is
// returned to the caller and no OFF is scheduled. The OFF leg itself is
// delivered by the Worker with retries, so a crash between the two legs
// cannot leave the relay stuck ON for good.
func (c *Commander) Dispense(ctx context.Context, machineCode string, productID int64, quantity int, orderID string) error {
	topic := Topic(machineCode, productID)

	if err := c.bus.Publish(topic, []byte(payloadOn)); err != nil {
		return fmt.Errorf("failed to publish ON to %s: %w", topic, err)
	}
	log.Printf("Sent ON to %s", topic)

	task := &model.DispenseTask{
		Kind:        model.TaskDispenseOff,
		MachineCode: machineCode,
		ProductID:   productID,
		Quantity:    quantity,
		OrderID:     orderID,
		DueAt:       time.Now().Add(OffDelay),
	}
	if err := c.store.EnqueueDispense(ctx, task); err != nil {
		// The pulse has fired; the caller must not see this failure. The
		// relay stays ON until an operator intervenes.
		log.Printf("Error scheduling OFF for %s: %v", topic, err)
	}
	return nil
}

// PublishOff sends the OFF leg of a pulse.
func (c *Commander) PublishOff(machineCode string, productID int64) error {
	topic := Topic(machineCode, productID)
	if err := c.bus.Publish(topic, []byte(payloadOff)); err != nil {
		return fmt.Errorf("failed to publish OFF to %s: %w", topic, err)
	}
	log.Printf("Sent OFF to %s", topic)
	return nil
}

// Enqueue records a durable dispense request without touching the bus. The
// payment pipeline uses this on the success edge so a broker outage at
// settlement time delays fulfillment instead of dropping it.
func (c *Commander) Enqueue(ctx context.Context, machineCode string, productID int64, quantity int, orderID string) error {
	task := &model.DispenseTask{
		Kind:        model.TaskDispense,
		MachineCode: machineCode,
		ProductID:   productID,
		Quantity:    quantity,
		OrderID:     orderID,
		DueAt:       time.Now(),
	}
	return c.store.EnqueueDispense(ctx, task)
}
