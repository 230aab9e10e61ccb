package models

import "time"

// MaintenanceLog is an append-only attestation that work was performed.
type MaintenanceLog struct {
	ID               string    `json:"id"`
	EquipmentID      string    `json:"equipment_id"`
	PerformedAt      time.Time `json:"performed_at"`
	Technician       string    `json:"technician"`
	Notes            string    `json:"notes,omitempty"`
	AddressedFailure bool      `json:"addressed_failure"`
	CreatedAt        time.Time `json:"created_at"`
}
