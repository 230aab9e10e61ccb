package service

import (
	"context"
	"time"

	"github.com/phyn2-2/medasset-sentinel/internal/logger"
	"github.com/phyn2-2/medasset-sentinel/internal/models"
	"github.com/phyn2-2/medasset-sentinel/internal/repository"
)

// Authorization signs operators in and checks their bearer tokens.
type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	Authenticate(ctx context.Context, accessToken string) (int, error)
	SetOperatorActive(ctx context.Context, username string, active bool) error
}

// Registry manages the equipment inventory.
type Registry interface {
	CreateEquipment(ctx context.Context, p EquipmentParams) (EquipmentView, error)
	GetEquipment(ctx context.Context, id string) (EquipmentView, error)
	ListEquipment(ctx context.Context, q EquipmentQuery) ([]EquipmentView, error)
	UpdateEquipment(ctx context.Context, id string, p EquipmentParams) (EquipmentView, error)
	DeleteEquipment(ctx context.Context, id string) (DeletionReport, error)
}

// Maintenance records work done on equipment.
type Maintenance interface {
	PerformMaintenance(ctx context.Context, p MaintenanceParams) (MaintenanceResult, error)
	StartMaintenance(ctx context.Context, equipmentID string) (models.Equipment, error)
	MaintenanceHistory(ctx context.Context, equipmentID string, limit int) ([]models.MaintenanceLog, error)
	RecentMaintenance(ctx context.Context, limit int) ([]models.MaintenanceLog, error)
}

// Alerts is the alert lifecycle as seen by operators.
type Alerts interface {
	Raise(ctx context.Context, equipmentID string, kind models.AlertKind) (models.Alert, bool, error)
	AcknowledgeAlert(ctx context.Context, alertID, by string) (models.Alert, error)
	ResolveAlert(ctx context.Context, alertID, notes string) (models.Alert, error)
	GetAlert(ctx context.Context, id string) (models.Alert, error)
	ListOpenAlerts(ctx context.Context, limit int) ([]models.Alert, error)
	ListAlerts(ctx context.Context, q AlertQuery) ([]models.Alert, error)
	AlertStats(ctx context.Context) (models.AlertStats, error)
}

// Jobs runs the periodic jobs on demand.
type Jobs interface {
	TriggerSweepNow(ctx context.Context) (RunReport, error)
	TriggerTickNow(ctx context.Context) (RunReport, error)
}

// Telemetry exposes stored sensor history.
type Telemetry interface {
	SensorHistory(ctx context.Context, equipmentID string, q TelemetryQuery) ([]models.SensorEvent, error)
	LatestReading(ctx context.Context, equipmentID string) (models.SensorEvent, error)
}

// Monitoring exposes the read-only dashboard snapshot.
type Monitoring interface {
	Overview(ctx context.Context) (Overview, error)
}

// Deps is everything NewService needs. Zero Now means time.Now in UTC.
type Deps struct {
	Store      repository.Store
	Thresholds Thresholds
	Profiles   map[string]Profile
	Seed       uint64
	Scheduler  SchedulerOptions
	Policy     AlertPolicy
	SigningKey string
	TokenTTL   time.Duration
	Log        *logger.Logger
	Now        func() time.Time
}

// Service aggregates all sub-services. Evaluator, Simulator and Scheduler
// are exposed for lifecycle control and config reloads.
type Service struct {
	Authorization
	Registry
	Maintenance
	Alerts
	Jobs
	Telemetry
	Monitoring

	Evaluator *Evaluator
	Simulator *Simulator
	Scheduler *Scheduler
}

// NewService wires the store into concrete services. All writers share one
// per-equipment lock table.
func NewService(d Deps) *Service {
	now := d.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}

	locks := newKeyedMutex()
	eval := NewEvaluator(d.Thresholds)
	sim := NewSimulator(d.Seed, d.Profiles)
	sim.now = now
	sched := NewScheduler(d.Store, eval, sim, locks, now, d.Scheduler, d.Policy, log.Component("scheduler"))
	window := func() time.Duration { return sched.Policy().UpcomingWindow }

	return &Service{
		Authorization: NewAuthService(d.Store.Repos().Operators, d.SigningKey, d.TokenTTL, now),
		Registry:      NewEquipmentService(d.Store, locks, sim, now, window, log.Component("registry")),
		Maintenance:   NewMaintenanceService(d.Store, locks, now, log.Component("maintenance")),
		Alerts:        NewAlertService(d.Store, locks, now, log.Component("alerts")),
		Jobs:          sched,
		Telemetry:     NewTelemetryService(d.Store),
		Monitoring:    NewMonitoringService(d.Store, now, window),
		Evaluator:     eval,
		Simulator:     sim,
		Scheduler:     sched,
	}
}
