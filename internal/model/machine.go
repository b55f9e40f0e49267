package model

import "time"

// MachineStatus is the live status of a vending machine.
type MachineStatus string

const (
	StatusOnline      MachineStatus = "online"
	StatusOffline     MachineStatus = "offline"
	StatusMaintenance MachineStatus = "maintenance"
)

// Machine represents a vending machine and its live state.
type Machine struct {
	ID                 int64         `gorm:"primaryKey" json:"id"`
	Code               string        `gorm:"uniqueIndex;size:64;not null" json:"code"`
	Name               string        `gorm:"size:256;not null" json:"name"`
	Location           string        `gorm:"size:256;not null" json:"location"`
	Latitude           *float64      `json:"latitude,omitempty"`
	Longitude          *float64      `json:"longitude,omitempty"`
	MQTTTopic          string        `gorm:"column:mqtt_topic;uniqueIndex;size:128;not null" json:"mqttTopic"`
	Status             MachineStatus `gorm:"size:16;not null;default:offline" json:"status"`
	CurrentTemperature *float64      `json:"currentTemperature"`
	CurrentHumidity    *float64      `json:"currentHumidity"`
	LastOnline         *time.Time    `json:"lastOnline"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`

	// Associations
	MachineProducts []MachineProduct `gorm:"foreignKey:MachineID" json:"-"`
}

// ParseStatus maps a device-reported status string onto a MachineStatus.
// Unrecognized strings fall back to maintenance; callers log the fallback.
func ParseStatus(s string) (MachineStatus, bool) {
	switch MachineStatus(s) {
	case StatusOnline, StatusOffline, StatusMaintenance:
		return MachineStatus(s), true
	}
	return StatusMaintenance, false
}
