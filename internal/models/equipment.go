package models

import "time"

// OperationalStatus is the telemetry-derived condition of a piece of equipment.
type OperationalStatus string

const (
	StatusOperational      OperationalStatus = "OPERATIONAL"
	StatusFailed           OperationalStatus = "FAILED"
	StatusUnderMaintenance OperationalStatus = "UNDER_MAINTENANCE"
)

// Valid reports whether s is one of the known statuses.
func (s OperationalStatus) Valid() bool {
	switch s {
	case StatusOperational, StatusFailed, StatusUnderMaintenance:
		return true
	default:
		return false
	}
}

// Equipment is a tracked biomedical asset.
//
// OperationalStatus comes from telemetry; maintenance due-ness comes from the
// schedule (MaintenanceInterval + LastMaintenanceAt). Neither is stored in
// terms of the other.
type Equipment struct {
	ID                  string            `json:"id"`
	Name                string            `json:"name"`
	SerialNumber        string            `json:"serial_number"`
	Category            string            `json:"category"` // selects the telemetry profile
	Location            string            `json:"location,omitempty"`
	Manufacturer        string            `json:"manufacturer,omitempty"`
	MaintenanceInterval time.Duration     `json:"-"`
	LastMaintenanceAt   *time.Time        `json:"last_maintenance_at,omitempty"`
	OperationalStatus   OperationalStatus `json:"operational_status"`
	Active              bool              `json:"active"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// NextMaintenanceAt returns when maintenance falls due, or nil if it never
// happened (in which case it is due immediately).
func (e Equipment) NextMaintenanceAt() *time.Time {
	if e.LastMaintenanceAt == nil {
		return nil
	}
	next := e.LastMaintenanceAt.Add(e.MaintenanceInterval)
	return &next
}
