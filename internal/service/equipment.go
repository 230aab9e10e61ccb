package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/phyn2-2/medasset-sentinel/internal/logger"
	"github.com/phyn2-2/medasset-sentinel/internal/models"
	"github.com/phyn2-2/medasset-sentinel/internal/repository"

	"github.com/google/uuid"
)

// EquipmentParams is the registry input for create and update.
type EquipmentParams struct {
	Name                string
	SerialNumber        string
	Category            string
	Location            string
	Manufacturer        string
	MaintenanceInterval time.Duration
	LastMaintenanceAt   *time.Time
	Active              *bool
}

// EquipmentQuery filters the equipment listing.
type EquipmentQuery struct {
	IncludeInactive bool
	Status          models.OperationalStatus
	Category        string
	DueOnly         bool
}

// EquipmentView reports operational status and maintenance due-ness as
// separate fields.
type EquipmentView struct {
	models.Equipment
	MaintenanceIntervalDays float64    `json:"maintenance_interval_days"`
	NextMaintenanceAt       *time.Time `json:"next_maintenance_at"`
	DaysUntilMaintenance    *int       `json:"days_until_maintenance"`
	MaintenanceDue          bool       `json:"maintenance_due"`
	MaintenanceUpcoming     bool       `json:"maintenance_upcoming"`
}

// DeletionReport counts what an equipment deletion removed or detached.
type DeletionReport struct {
	EquipmentID     string `json:"equipment_id"`
	MaintenanceLogs int64  `json:"maintenance_logs_deleted"`
	SensorEvents    int64  `json:"sensor_events_deleted"`
	AlertsDetached  int64  `json:"alerts_detached"`
}

type EquipmentService struct {
	store  repository.Store
	locks  *keyedMutex
	sim    *Simulator
	now    func() time.Time
	window func() time.Duration
	log    *logger.Logger
}

// NewEquipmentService takes window as a func so config reloads of the
// upcoming window show up in views.
func NewEquipmentService(store repository.Store, locks *keyedMutex, sim *Simulator, now func() time.Time, window func() time.Duration, log *logger.Logger) *EquipmentService {
	return &EquipmentService{store: store, locks: locks, sim: sim, now: now, window: window, log: log}
}

func (p *EquipmentParams) normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.SerialNumber = strings.TrimSpace(p.SerialNumber)
	p.Category = normalizeCategory(p.Category)
	p.Location = strings.TrimSpace(p.Location)
	p.Manufacturer = strings.TrimSpace(p.Manufacturer)
}

func (p EquipmentParams) validate(now time.Time) error {
	var errs []string
	if p.Name == "" {
		errs = append(errs, "name is required")
	}
	if p.SerialNumber == "" {
		errs = append(errs, "serial_number is required")
	}
	if p.Category == "" {
		errs = append(errs, "category is required")
	}
	if p.MaintenanceInterval < time.Second {
		errs = append(errs, "maintenance interval must be positive")
	}
	if p.LastMaintenanceAt != nil && p.LastMaintenanceAt.After(now) {
		errs = append(errs, "last maintenance cannot be in the future")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s: %w", strings.Join(errs, "; "), models.ErrValidation)
	}
	return nil
}

func (s *EquipmentService) CreateEquipment(ctx context.Context, p EquipmentParams) (EquipmentView, error) {
	now := s.now()
	p.normalize()
	if err := p.validate(now); err != nil {
		return EquipmentView{}, err
	}

	repo := s.store.Repos().Equipment
	if _, err := repo.GetBySerial(ctx, p.SerialNumber); err == nil {
		return EquipmentView{}, fmt.Errorf("serial number %q already registered: %w", p.SerialNumber, models.ErrConflict)
	} else if !errors.Is(err, models.ErrNotFound) {
		return EquipmentView{}, err
	}

	eq := models.Equipment{
		ID:                  uuid.NewString(),
		Name:                p.Name,
		SerialNumber:        p.SerialNumber,
		Category:            p.Category,
		Location:            p.Location,
		Manufacturer:        p.Manufacturer,
		MaintenanceInterval: p.MaintenanceInterval,
		LastMaintenanceAt:   utcTime(p.LastMaintenanceAt),
		OperationalStatus:   models.StatusOperational,
		Active:              p.Active == nil || *p.Active,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := repo.Create(ctx, eq); err != nil {
		return EquipmentView{}, err
	}
	s.log.Infow("equipment_created", "equipment_id", eq.ID, "serial_number", eq.SerialNumber, "category", eq.Category)
	return s.view(eq, now), nil
}

func (s *EquipmentService) GetEquipment(ctx context.Context, id string) (EquipmentView, error) {
	eq, err := s.store.Repos().Equipment.Get(ctx, id)
	if err != nil {
		return EquipmentView{}, err
	}
	return s.view(eq, s.now()), nil
}

// ListEquipment returns equipment with current status and, separately,
// whether maintenance is due.
func (s *EquipmentService) ListEquipment(ctx context.Context, q EquipmentQuery) ([]EquipmentView, error) {
	f := repository.EquipmentFilter{Category: q.Category}
	if !q.IncludeInactive {
		active := true
		f.Active = &active
	}
	if q.Status != "" {
		if !q.Status.Valid() {
			return nil, fmt.Errorf("unknown status %q: %w", q.Status, models.ErrValidation)
		}
		f.Status = q.Status
	}

	list, err := s.store.Repos().Equipment.List(ctx, f)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]EquipmentView, 0, len(list))
	for _, eq := range list {
		v := s.view(eq, now)
		if q.DueOnly && !v.MaintenanceDue {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// UpdateEquipment rewrites registry fields. Status and maintenance history
// are not editable here.
func (s *EquipmentService) UpdateEquipment(ctx context.Context, id string, p EquipmentParams) (EquipmentView, error) {
	now := s.now()
	p.normalize()
	if err := p.validate(now); err != nil {
		return EquipmentView{}, err
	}

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return EquipmentView{}, err
	}
	defer unlock()

	var eq models.Equipment
	err = s.store.InTx(ctx, func(r *repository.Repository) error {
		var err error
		eq, err = r.Equipment.Get(ctx, id)
		if err != nil {
			return err
		}
		if other, err := r.Equipment.GetBySerial(ctx, p.SerialNumber); err == nil && other.ID != id {
			return fmt.Errorf("serial number %q already registered: %w", p.SerialNumber, models.ErrConflict)
		} else if err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}

		eq.Name = p.Name
		eq.SerialNumber = p.SerialNumber
		eq.Category = p.Category
		eq.Location = p.Location
		eq.Manufacturer = p.Manufacturer
		eq.MaintenanceInterval = p.MaintenanceInterval
		if p.Active != nil {
			eq.Active = *p.Active
		}
		eq.UpdatedAt = now
		return r.Equipment.Update(ctx, eq)
	})
	if err != nil {
		return EquipmentView{}, err
	}
	s.log.Infow("equipment_updated", "equipment_id", id)
	return s.view(eq, now), nil
}

// DeleteEquipment removes the equipment in one transaction: maintenance
// logs and sensor events are deleted, alerts are kept with a null equipment
// reference.
func (s *EquipmentService) DeleteEquipment(ctx context.Context, id string) (DeletionReport, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return DeletionReport{}, err
	}
	defer unlock()

	rep := DeletionReport{EquipmentID: id}
	err = s.store.InTx(ctx, func(r *repository.Repository) error {
		if _, err := r.Equipment.Get(ctx, id); err != nil {
			return err
		}
		var err error
		if rep.MaintenanceLogs, err = r.MaintenanceLogs.DeleteByEquipment(ctx, id); err != nil {
			return err
		}
		if rep.SensorEvents, err = r.SensorEvents.DeleteByEquipment(ctx, id); err != nil {
			return err
		}
		if rep.AlertsDetached, err = r.Alerts.DetachEquipment(ctx, id); err != nil {
			return err
		}
		return r.Equipment.Delete(ctx, id)
	})
	if err != nil {
		return DeletionReport{}, err
	}
	if s.sim != nil {
		s.sim.forget(id)
	}
	s.log.Infow("equipment_deleted",
		"equipment_id", id,
		"maintenance_logs_deleted", rep.MaintenanceLogs,
		"sensor_events_deleted", rep.SensorEvents,
		"alerts_detached", rep.AlertsDetached,
	)
	return rep, nil
}

func (s *EquipmentService) view(eq models.Equipment, now time.Time) EquipmentView {
	v := EquipmentView{
		Equipment:               eq,
		MaintenanceIntervalDays: eq.MaintenanceInterval.Hours() / 24,
		NextMaintenanceAt:       eq.NextMaintenanceAt(),
		MaintenanceDue:          MaintenanceDue(eq, now),
		MaintenanceUpcoming:     MaintenanceUpcoming(eq, now, s.window()),
	}
	if v.NextMaintenanceAt != nil {
		days := int(math.Floor(v.NextMaintenanceAt.Sub(now).Hours() / 24))
		v.DaysUntilMaintenance = &days
	}
	return v
}

func utcTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
