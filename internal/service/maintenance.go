package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/phyn2-2/medasset-sentinel/internal/logger"
	"github.com/phyn2-2/medasset-sentinel/internal/metrics"
	"github.com/phyn2-2/medasset-sentinel/internal/models"
	"github.com/phyn2-2/medasset-sentinel/internal/repository"

	"github.com/google/uuid"
)

const defaultHistoryLimit = 50

type MaintenanceParams struct {
	EquipmentID      string
	Technician       string
	Notes            string
	AddressesFailure bool
}

// MaintenanceResult is what one maintenance action changed.
type MaintenanceResult struct {
	Log            models.MaintenanceLog `json:"log"`
	Equipment      models.Equipment      `json:"equipment"`
	ResolvedAlerts []models.Alert        `json:"resolved_alerts"`
}

type MaintenanceService struct {
	store repository.Store
	locks *keyedMutex
	now   func() time.Time
	log   *logger.Logger
}

func NewMaintenanceService(store repository.Store, locks *keyedMutex, now func() time.Time, log *logger.Logger) *MaintenanceService {
	return &MaintenanceService{store: store, locks: locks, now: now, log: log}
}

// PerformMaintenance records completed work as one transaction: it appends
// the log, restarts the schedule, returns the equipment to service and
// resolves the maintenance alerts (and the failure alert when the work
// addressed it).
func (s *MaintenanceService) PerformMaintenance(ctx context.Context, p MaintenanceParams) (MaintenanceResult, error) {
	technician := strings.TrimSpace(p.Technician)
	if technician == "" {
		return MaintenanceResult{}, fmt.Errorf("perform maintenance: technician is required: %w", models.ErrValidation)
	}

	unlock, err := s.locks.Lock(ctx, p.EquipmentID)
	if err != nil {
		return MaintenanceResult{}, err
	}
	defer unlock()

	now := s.now()
	var res MaintenanceResult
	err = s.store.InTx(ctx, func(r *repository.Repository) error {
		eq, err := r.Equipment.Get(ctx, p.EquipmentID)
		if err != nil {
			return err
		}

		res.Log = models.MaintenanceLog{
			ID:               uuid.NewString(),
			EquipmentID:      eq.ID,
			PerformedAt:      now,
			Technician:       technician,
			Notes:            strings.TrimSpace(p.Notes),
			AddressedFailure: p.AddressesFailure,
			CreatedAt:        now,
		}
		if err := r.MaintenanceLogs.Append(ctx, res.Log); err != nil {
			return err
		}

		status := eq.OperationalStatus
		switch status {
		case models.StatusUnderMaintenance, models.StatusFailed:
			status = models.StatusOperational
		case models.StatusOperational:
		}
		if err := r.Equipment.MarkMaintained(ctx, eq.ID, now, status); err != nil {
			return err
		}
		eq.LastMaintenanceAt = &now
		eq.OperationalStatus = status
		eq.UpdatedAt = now
		res.Equipment = eq

		kinds := []models.AlertKind{models.KindMaintenanceOverdue, models.KindMaintenanceUpcoming}
		if p.AddressesFailure {
			kinds = append(kinds, models.KindEquipmentFailure)
		}
		res.ResolvedAlerts, err = resolveActiveTx(ctx, r, eq.ID, kinds, maintenanceNote(res.Log), now)
		return err
	})
	if err != nil {
		return MaintenanceResult{}, err
	}

	for range res.ResolvedAlerts {
		metrics.AlertTransitionsTotal.WithLabelValues(string(models.AlertResolved)).Inc()
	}
	s.log.Infow("maintenance_performed",
		"equipment_id", res.Equipment.ID,
		"technician", technician,
		"addressed_failure", p.AddressesFailure,
		"alerts_resolved", len(res.ResolvedAlerts),
	)
	return res, nil
}

func maintenanceNote(l models.MaintenanceLog) string {
	note := fmt.Sprintf("resolved by maintenance %s (%s)", l.ID, l.Technician)
	if l.Notes != "" {
		note += ": " + l.Notes
	}
	return note
}

// StartMaintenance marks equipment UNDER_MAINTENANCE. FAILED equipment keeps
// its status; the failure must be cleared by PerformMaintenance.
func (s *MaintenanceService) StartMaintenance(ctx context.Context, equipmentID string) (models.Equipment, error) {
	unlock, err := s.locks.Lock(ctx, equipmentID)
	if err != nil {
		return models.Equipment{}, err
	}
	defer unlock()

	now := s.now()
	var eq models.Equipment
	err = s.store.InTx(ctx, func(r *repository.Repository) error {
		var err error
		eq, err = r.Equipment.Get(ctx, equipmentID)
		if err != nil {
			return err
		}
		switch eq.OperationalStatus {
		case models.StatusFailed:
			return fmt.Errorf("start maintenance on %s: equipment is FAILED: %w", equipmentID, models.ErrConflict)
		case models.StatusUnderMaintenance:
			return nil
		case models.StatusOperational:
		}
		if err := r.Equipment.UpdateStatus(ctx, equipmentID, models.StatusUnderMaintenance, now); err != nil {
			return err
		}
		eq.OperationalStatus = models.StatusUnderMaintenance
		eq.UpdatedAt = now
		return nil
	})
	if err != nil {
		return models.Equipment{}, err
	}
	s.log.Infow("maintenance_started", "equipment_id", equipmentID)
	return eq, nil
}

// MaintenanceHistory lists one equipment's logs, newest first.
func (s *MaintenanceService) MaintenanceHistory(ctx context.Context, equipmentID string, limit int) ([]models.MaintenanceLog, error) {
	if _, err := s.store.Repos().Equipment.Get(ctx, equipmentID); err != nil {
		return nil, err
	}
	return s.store.Repos().MaintenanceLogs.ListByEquipment(ctx, equipmentID, clampLimit(limit, defaultHistoryLimit))
}

// RecentMaintenance lists the latest logs across the fleet.
func (s *MaintenanceService) RecentMaintenance(ctx context.Context, limit int) ([]models.MaintenanceLog, error) {
	return s.store.Repos().MaintenanceLogs.ListRecent(ctx, clampLimit(limit, defaultHistoryLimit))
}
