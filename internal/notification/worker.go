package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"vending-backend/internal/model"
)

// Alert kinds dispatched by the pipelines.
const (
	AlertOffline       = "offline"
	AlertMaintenance   = "maintenance"
	AlertUnfulfillable = "unfulfillable"
)

// Alert is one job for the worker pool.
type Alert struct {
	MachineID int64
	Kind      string
}

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of Sender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool manages a pool of workers for sending machine alerts to
// subscribed administrators.
type WorkerPool struct {
	size    int
	jobs    chan Alert
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Alert, size),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Alert worker %d started", id)
	for {
		select {
		case alert := <-wp.jobs:
			wp.sendAlertsForMachine(ctx, alert)
		case <-ctx.Done():
			log.Printf("Alert worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues an alert for the worker pool.
func (wp *WorkerPool) Dispatch(machineID int64, kind string) {
	select {
	case wp.jobs <- Alert{MachineID: machineID, Kind: kind}:
	default:
		log.Printf("Alert queue full, dropping %s alert for machine %d", kind, machineID)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Alert {
	return wp.jobs
}

// sendAlertsForMachine fetches subscriptions scoped to the machine and
// pushes the alert to each.
func (wp *WorkerPool) sendAlertsForMachine(ctx context.Context, alert Alert) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_machine_mapping smm ON smm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("smm.machine_id = ?", alert.MachineID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for machine %d: %v", alert.MachineID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	var machine model.Machine
	machineLabel := fmt.Sprintf("%d", alert.MachineID)
	if err := wp.db.WithContext(ctx).
		Select("name").
		First(&machine, alert.MachineID).Error; err != nil {
		log.Printf("Error fetching machine %d: %v", alert.MachineID, err)
	} else if machine.Name != "" {
		machineLabel = machine.Name
	}

	var message string
	switch alert.Kind {
	case AlertOffline:
		message = fmt.Sprintf("Machine %s went offline", machineLabel)
	case AlertMaintenance:
		message = fmt.Sprintf("Machine %s needs maintenance", machineLabel)
	case AlertUnfulfillable:
		message = fmt.Sprintf("Machine %s has a paid order it cannot fulfill", machineLabel)
	default:
		message = fmt.Sprintf("Machine %s: %s", machineLabel, alert.Kind)
	}

	log.Printf("Sending %d alerts for machine %d (%s)", len(subscriptions), alert.MachineID, alert.Kind)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == 410 {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
