package store

import (
	"context"
	"fmt"
	"time"

	"vending-backend/internal/model"
)

// ListMachines returns every machine, newest first.
func (s *gormStore) ListMachines(ctx context.Context) ([]model.Machine, error) {
	var machines []model.Machine
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&machines).Error; err != nil {
		return nil, fmt.Errorf("failed to list machines: %w", err)
	}
	return machines, nil
}

// MachineByCode looks a machine up by its unique device code.
func (s *gormStore) MachineByCode(ctx context.Context, code string) (*model.Machine, error) {
	var machine model.Machine
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&machine).Error; err != nil {
		return nil, err
	}
	return &machine, nil
}

// RecordTemperature overwrites a machine's live readings. Any telemetry
// implies the machine is reachable, so status is forced to online and the
// last-online watermark advances.
func (s *gormStore) RecordTemperature(ctx context.Context, machineID int64, temperature float64, humidity *float64, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&model.Machine{}).
		Where("id = ?", machineID).
		Updates(map[string]any{
			"current_temperature": temperature,
			"current_humidity":    humidity,
			"last_online":         at,
			"status":              model.StatusOnline,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record temperature for machine %d: %w", machineID, err)
	}
	return nil
}

// SetMachineStatus updates a machine's status and advances last-online.
func (s *gormStore) SetMachineStatus(ctx context.Context, machineID int64, status model.MachineStatus, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&model.Machine{}).
		Where("id = ?", machineID).
		Updates(map[string]any{
			"status":      status,
			"last_online": at,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to set status for machine %d: %w", machineID, err)
	}
	return nil
}

// TouchMachine refreshes the last-online watermark and forces status online.
// Used by the heartbeat handler; never writes to the temperature log.
func (s *gormStore) TouchMachine(ctx context.Context, machineID int64, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&model.Machine{}).
		Where("id = ?", machineID).
		Updates(map[string]any{
			"last_online": at,
			"status":      model.StatusOnline,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to touch machine %d: %w", machineID, err)
	}
	return nil
}

// AppendTemperatureLog adds one entry to the append-only audit trail.
func (s *gormStore) AppendTemperatureLog(ctx context.Context, machineID int64, temperature float64, humidity *float64) error {
	entry := model.TemperatureLog{
		MachineID:   machineID,
		Temperature: temperature,
		Humidity:    humidity,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to append temperature log for machine %d: %w", machineID, err)
	}
	return nil
}
