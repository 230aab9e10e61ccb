package service

import (
	"context"
	"fmt"
	"time"

	"github.com/phyn2-2/medasset-sentinel/internal/models"
	"github.com/phyn2-2/medasset-sentinel/internal/repository"
)

const defaultTelemetryLimit = 500

// TelemetryQuery selects sensor history. From/To are inclusive; zero means open.
type TelemetryQuery struct {
	From   time.Time
	To     time.Time
	Metric string
	Limit  int
}

var errInvalidTimeRange = fmt.Errorf("invalid time range: from must be <= to: %w", models.ErrValidation)

type TelemetryService struct {
	store repository.Store
}

func NewTelemetryService(store repository.Store) *TelemetryService {
	return &TelemetryService{store: store}
}

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// SensorHistory lists readings for one equipment in ascending time order.
func (s *TelemetryService) SensorHistory(ctx context.Context, equipmentID string, q TelemetryQuery) ([]models.SensorEvent, error) {
	from, to := normalizeToUTC(q.From), normalizeToUTC(q.To)
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return nil, errInvalidTimeRange
	}
	if _, err := s.store.Repos().Equipment.Get(ctx, equipmentID); err != nil {
		return nil, err
	}
	return s.store.Repos().SensorEvents.List(ctx, repository.SensorEventFilter{
		EquipmentID: equipmentID,
		Metric:      q.Metric,
		From:        from,
		To:          to,
		Limit:       clampLimit(q.Limit, defaultTelemetryLimit),
	})
}

// LatestReading returns the most recent reading of one equipment.
func (s *TelemetryService) LatestReading(ctx context.Context, equipmentID string) (models.SensorEvent, error) {
	return s.store.Repos().SensorEvents.Latest(ctx, equipmentID)
}
