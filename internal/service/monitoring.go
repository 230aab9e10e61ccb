package service

import (
	"context"
	"time"

	"github.com/phyn2-2/medasset-sentinel/internal/models"
	"github.com/phyn2-2/medasset-sentinel/internal/repository"
)

// EquipmentStats is the fleet part of the overview.
type EquipmentStats struct {
	Total    int                              `json:"total"`
	ByStatus map[models.OperationalStatus]int `json:"by_status"`
	Overdue  int                              `json:"maintenance_overdue"`
	Upcoming int                              `json:"maintenance_upcoming"`
}

// Overview is the read-only dashboard snapshot.
type Overview struct {
	GeneratedAt     time.Time         `json:"generated_at"`
	Equipment       EquipmentStats    `json:"equipment"`
	Alerts          models.AlertStats `json:"alerts"`
	MaintenanceLogs int               `json:"maintenance_logs"`
}

type MonitoringService struct {
	store  repository.Store
	now    func() time.Time
	window func() time.Duration
}

func NewMonitoringService(store repository.Store, now func() time.Time, window func() time.Duration) *MonitoringService {
	return &MonitoringService{store: store, now: now, window: window}
}

// Overview counts active equipment by status and, independently, by
// maintenance due-ness.
func (s *MonitoringService) Overview(ctx context.Context) (Overview, error) {
	repos := s.store.Repos()
	now := s.now()

	byStatus, err := repos.Equipment.CountByStatus(ctx)
	if err != nil {
		return Overview{}, err
	}
	active := true
	list, err := repos.Equipment.List(ctx, repository.EquipmentFilter{Active: &active})
	if err != nil {
		return Overview{}, err
	}
	alerts, err := repos.Alerts.Stats(ctx)
	if err != nil {
		return Overview{}, err
	}
	logs, err := repos.MaintenanceLogs.Count(ctx)
	if err != nil {
		return Overview{}, err
	}

	eqStats := EquipmentStats{Total: len(list), ByStatus: byStatus}
	window := s.window()
	for _, eq := range list {
		switch {
		case MaintenanceDue(eq, now):
			eqStats.Overdue++
		case MaintenanceUpcoming(eq, now, window):
			eqStats.Upcoming++
		}
	}

	return Overview{
		GeneratedAt:     now,
		Equipment:       eqStats,
		Alerts:          alerts,
		MaintenanceLogs: logs,
	}, nil
}
