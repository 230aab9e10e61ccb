package models

import "time"

// AlertKind classifies what raised an alert.
type AlertKind string

const (
	KindMaintenanceOverdue  AlertKind = "MAINTENANCE_OVERDUE"
	KindEquipmentFailure    AlertKind = "EQUIPMENT_FAILURE"
	KindMaintenanceUpcoming AlertKind = "MAINTENANCE_UPCOMING"
)

func (k AlertKind) Valid() bool {
	switch k {
	case KindMaintenanceOverdue, KindEquipmentFailure, KindMaintenanceUpcoming:
		return true
	default:
		return false
	}
}

// Severity is fixed per kind.
func (k AlertKind) Severity() Severity {
	switch k {
	case KindMaintenanceOverdue, KindEquipmentFailure:
		return SeverityCritical
	case KindMaintenanceUpcoming:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// IsMaintenance reports whether the kind is cleared by a maintenance action.
func (k AlertKind) IsMaintenance() bool {
	switch k {
	case KindMaintenanceOverdue, KindMaintenanceUpcoming:
		return true
	case KindEquipmentFailure:
		return false
	default:
		return false
	}
}

// Severity is the alert priority shown to operators.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// AlertState is a lifecycle position. RESOLVED is terminal.
type AlertState string

const (
	AlertOpen         AlertState = "OPEN"
	AlertAcknowledged AlertState = "ACKNOWLEDGED"
	AlertResolved     AlertState = "RESOLVED"
)

func (s AlertState) Valid() bool {
	switch s {
	case AlertOpen, AlertAcknowledged, AlertResolved:
		return true
	default:
		return false
	}
}

// Active reports whether the state participates in deduplication.
func (s AlertState) Active() bool {
	switch s {
	case AlertOpen, AlertAcknowledged:
		return true
	case AlertResolved:
		return false
	default:
		return false
	}
}

// CanTransitionTo is the alert state machine:
//
//	OPEN -> ACKNOWLEDGED -> RESOLVED
//	OPEN -> RESOLVED
func (s AlertState) CanTransitionTo(next AlertState) bool {
	switch s {
	case AlertOpen:
		return next == AlertAcknowledged || next == AlertResolved
	case AlertAcknowledged:
		return next == AlertResolved
	case AlertResolved:
		return false
	default:
		return false
	}
}

// ActiveAlertStates lists states covered by the dedup constraint.
var ActiveAlertStates = []AlertState{AlertOpen, AlertAcknowledged}

// Alert is never deleted. EquipmentID becomes nil when the equipment is.
type Alert struct {
	ID              string     `json:"id"`
	EquipmentID     *string    `json:"equipment_id"`
	Kind            AlertKind  `json:"kind"`
	Severity        Severity   `json:"severity"`
	Message         string     `json:"message"`
	State           AlertState `json:"state"`
	RaisedAt        time.Time  `json:"raised_at"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy  *string    `json:"acknowledged_by,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolutionNotes *string    `json:"resolution_notes,omitempty"`
}

// EquipmentRef returns the equipment id or "" for detached alerts.
func (a Alert) EquipmentRef() string {
	if a.EquipmentID == nil {
		return ""
	}
	return *a.EquipmentID
}

// AlertStats summarizes the alert table for the dashboard.
type AlertStats struct {
	Total        int `json:"total"`
	Open         int `json:"open"`
	Acknowledged int `json:"acknowledged"`
	CriticalOpen int `json:"critical_open"`
}
