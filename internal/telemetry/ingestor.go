package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"vending-backend/internal/bus"
	"vending-backend/internal/model"
	"vending-backend/internal/store"
	"vending-backend/internal/ws"
)

// Broadcaster is the push-channel surface the ingestor fans updates to.
type Broadcaster interface {
	SendTemperatureUpdate(data ws.TemperatureEvent)
	SendStatusUpdate(machineCode, status string)
	SendHeartbeat(machineCode string)
}

// Alerter receives machine ids whose status left online; nil disables alerts.
type Alerter interface {
	Dispatch(machineID int64, kind string)
}

// temperaturePayload is the wire shape of a temperature message.
type temperaturePayload struct {
	MachineCode string   `json:"machineCode"`
	Temperature float64  `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Timestamp   string   `json:"timestamp"`
}

// statusPayload is the wire shape of a status message.
type statusPayload struct {
	MachineCode string `json:"machineCode"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
}

// heartbeatPayload is the wire shape of a heartbeat message.
type heartbeatPayload struct {
	MachineCode string `json:"machineCode"`
}

// Ingestor turns inbound machine messages into directory state, push-channel
// fan-out and a throttled temperature history.
type Ingestor struct {
	store       store.Store
	bus         bus.Client
	broadcaster Broadcaster
	alerter     Alerter
	logInterval time.Duration

	// Last time a temperature log entry was persisted, per machine id.
	// Process-local: a restart resets the throttle window.
	mu            sync.Mutex
	lastPersisted map[int64]time.Time
}

// New creates an ingestor. alerter may be nil.
func New(s store.Store, b bus.Client, bc Broadcaster, alerter Alerter, logInterval time.Duration) *Ingestor {
	return &Ingestor{
		store:         s,
		bus:           b,
		broadcaster:   bc,
		alerter:       alerter,
		logInterval:   logInterval,
		lastPersisted: make(map[int64]time.Time),
	}
}

// Start enumerates all known machines and subscribes to their topics.
// Machines created later are not picked up until Resubscribe is called;
// this mirrors the hardware provisioning flow, where a new machine is
// registered before its firmware first connects.
func (i *Ingestor) Start(ctx context.Context) error {
	return i.Resubscribe(ctx)
}

// Resubscribe re-reads the machine directory and subscribes to every
// machine's temperature, status and heartbeat topics.
func (i *Ingestor) Resubscribe(ctx context.Context) error {
	machines, err := i.store.ListMachines(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate machines for subscription: %w", err)
	}

	for _, machine := range machines {
		for _, suffix := range []string{"temperature", "status", "heartbeat"} {
			topic := machine.MQTTTopic + "/" + suffix
			if err := i.bus.Subscribe(topic, i.HandleMessage); err != nil {
				log.Printf("Failed to subscribe to %s: %v", topic, err)
				continue
			}
			log.Printf("Subscribed to %s", topic)
		}
	}
	return nil
}

// HandleMessage routes one inbound message by its topic suffix. Parse and
// handler failures are logged and swallowed so a bad payload never tears
// down the subscription loop.
func (i *Ingestor) HandleMessage(topic string, payload []byte) {
	ctx := context.Background()

	var err error
	switch {
	case strings.HasSuffix(topic, "/temperature"):
		err = i.handleTemperature(ctx, payload)
	case strings.HasSuffix(topic, "/status"):
		err = i.handleStatus(ctx, payload)
	case strings.HasSuffix(topic, "/heartbeat"):
		err = i.handleHeartbeat(ctx, payload)
	default:
		log.Printf("Ignoring message on unrecognized topic %s", topic)
		return
	}
	if err != nil {
		log.Printf("Error handling message on %s: %v", topic, err)
	}
}

func (i *Ingestor) handleTemperature(ctx context.Context, payload []byte) error {
	var p temperaturePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("malformed temperature payload: %w", err)
	}

	machine, err := i.store.MachineByCode(ctx, p.MachineCode)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Telemetry for an unknown machine is unrecoverable; drop it.
		log.Printf("Warning: machine with code %q not found, dropping temperature message", p.MachineCode)
		return nil
	}
	if err != nil {
		return err
	}

	now := time.Now()
	if err := i.store.RecordTemperature(ctx, machine.ID, p.Temperature, p.Humidity, now); err != nil {
		return err
	}

	i.broadcaster.SendTemperatureUpdate(ws.TemperatureEvent{
		MachineCode:     p.MachineCode,
		MachineName:     machine.Name,
		MachineLocation: machine.Location,
		Temperature:     p.Temperature,
		Humidity:        p.Humidity,
	})

	if i.shouldPersistLog(machine.ID, now) {
		if err := i.store.AppendTemperatureLog(ctx, machine.ID, p.Temperature, p.Humidity); err != nil {
			return err
		}
		log.Printf("Temperature log saved for %s", machine.Name)
	}
	return nil
}

// shouldPersistLog gates temperature history writes to one per machine per
// interval and advances the watermark when it grants a write.
func (i *Ingestor) shouldPersistLog(machineID int64, now time.Time) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	last, ok := i.lastPersisted[machineID]
	if ok && now.Sub(last) < i.logInterval {
		return false
	}
	i.lastPersisted[machineID] = now
	return true
}

func (i *Ingestor) handleStatus(ctx context.Context, payload []byte) error {
	var p statusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("malformed status payload: %w", err)
	}

	machine, err := i.store.MachineByCode(ctx, p.MachineCode)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("Warning: machine with code %q not found, dropping status message", p.MachineCode)
		return nil
	}
	if err != nil {
		return err
	}

	status, known := model.ParseStatus(p.Status)
	if !known {
		log.Printf("Unknown status %q from machine %s, falling back to maintenance", p.Status, p.MachineCode)
	}

	if err := i.store.SetMachineStatus(ctx, machine.ID, status, time.Now()); err != nil {
		return err
	}

	i.broadcaster.SendStatusUpdate(p.MachineCode, string(status))

	if i.alerter != nil && status != model.StatusOnline && machine.Status == model.StatusOnline {
		i.alerter.Dispatch(machine.ID, string(status))
	}

	log.Printf("Status updated for %s: %s", machine.Name, status)
	return nil
}

func (i *Ingestor) handleHeartbeat(ctx context.Context, payload []byte) error {
	var p heartbeatPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("malformed heartbeat payload: %w", err)
	}

	machine, err := i.store.MachineByCode(ctx, p.MachineCode)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := i.store.TouchMachine(ctx, machine.ID, time.Now()); err != nil {
		return err
	}

	i.broadcaster.SendHeartbeat(p.MachineCode)
	return nil
}
