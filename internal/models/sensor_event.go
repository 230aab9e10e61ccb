package models

import "time"

// SensorEvent is a single telemetry reading.
type SensorEvent struct {
	ID          string    `json:"id"`
	EquipmentID string    `json:"equipment_id"`
	Metric      string    `json:"metric"`
	Value       float64   `json:"value"`
	RecordedAt  time.Time `json:"recorded_at"`
}
