package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phyn2-2/medasset-sentinel/internal/logger"
	"github.com/phyn2-2/medasset-sentinel/internal/metrics"
	"github.com/phyn2-2/medasset-sentinel/internal/models"
	"github.com/phyn2-2/medasset-sentinel/internal/repository"

	"github.com/google/uuid"
)

const defaultAlertListLimit = 100

// AlertQuery filters alert listings. Empty fields mean "any".
type AlertQuery struct {
	EquipmentID string
	Kind        models.AlertKind
	State       models.AlertState
	Limit       int
}

// AlertService is the only writer of alert rows. It deduplicates raises and
// walks the lifecycle OPEN -> ACKNOWLEDGED -> RESOLVED; nothing here deletes.
type AlertService struct {
	store repository.Store
	locks *keyedMutex
	now   func() time.Time
	log   *logger.Logger
}

func NewAlertService(store repository.Store, locks *keyedMutex, now func() time.Time, log *logger.Logger) *AlertService {
	return &AlertService{store: store, locks: locks, now: now, log: log}
}

// Raise returns the active alert for (equipmentID, kind) if there is one,
// with created == false. Otherwise it opens a new alert.
func (s *AlertService) Raise(ctx context.Context, equipmentID string, kind models.AlertKind) (models.Alert, bool, error) {
	if !kind.Valid() {
		return models.Alert{}, false, fmt.Errorf("raise: unknown kind %q: %w", kind, models.ErrValidation)
	}
	unlock, err := s.locks.Lock(ctx, equipmentID)
	if err != nil {
		return models.Alert{}, false, err
	}
	defer unlock()

	var (
		alert   models.Alert
		created bool
	)
	err = s.store.InTx(ctx, func(r *repository.Repository) error {
		eq, err := r.Equipment.Get(ctx, equipmentID)
		if err != nil {
			return err
		}
		alert, created, err = raiseTx(ctx, r, eq, kind, "", s.now())
		return err
	})
	if err != nil {
		return models.Alert{}, false, err
	}
	s.observeRaise(alert, created)
	return alert, created, nil
}

// raiseTx must run inside a transaction while the equipment lock is held.
func raiseTx(ctx context.Context, r *repository.Repository, eq models.Equipment, kind models.AlertKind, detail string, now time.Time) (models.Alert, bool, error) {
	if existing, err := r.Alerts.FindActive(ctx, eq.ID, kind); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return models.Alert{}, false, err
	}

	eqID := eq.ID
	return r.Alerts.InsertIfAbsent(ctx, models.Alert{
		ID:          uuid.NewString(),
		EquipmentID: &eqID,
		Kind:        kind,
		Severity:    kind.Severity(),
		Message:     alertMessage(eq, kind, detail),
		State:       models.AlertOpen,
		RaisedAt:    now,
	})
}

func alertMessage(eq models.Equipment, kind models.AlertKind, detail string) string {
	name := fmt.Sprintf("%s (%s)", eq.Name, eq.SerialNumber)
	var msg string
	switch kind {
	case models.KindMaintenanceOverdue:
		if next := eq.NextMaintenanceAt(); next != nil {
			msg = fmt.Sprintf("%s: preventive maintenance overdue since %s", name, next.Format(time.DateOnly))
		} else {
			msg = fmt.Sprintf("%s: no preventive maintenance on record", name)
		}
	case models.KindMaintenanceUpcoming:
		msg = fmt.Sprintf("%s: preventive maintenance due %s", name, eq.NextMaintenanceAt().Format(time.DateOnly))
	case models.KindEquipmentFailure:
		msg = fmt.Sprintf("%s: failure detected by telemetry", name)
	default:
		msg = name
	}
	if detail != "" {
		msg += " (" + detail + ")"
	}
	return msg
}

// Acknowledge moves an OPEN alert to ACKNOWLEDGED.
func (s *AlertService) Acknowledge(ctx context.Context, alertID, by string) (models.Alert, error) {
	by = strings.TrimSpace(by)
	if by == "" {
		return models.Alert{}, fmt.Errorf("acknowledge %s: acknowledged_by is required: %w", alertID, models.ErrValidation)
	}
	return s.transition(ctx, alertID, models.AlertAcknowledged, func(a *models.Alert, now time.Time) {
		a.AcknowledgedAt = &now
		a.AcknowledgedBy = &by
	})
}

// Resolve closes an OPEN or ACKNOWLEDGED alert. Resolving twice fails with
// ErrInvalidTransition and keeps the first resolution.
func (s *AlertService) Resolve(ctx context.Context, alertID, notes string) (models.Alert, error) {
	notes = strings.TrimSpace(notes)
	return s.transition(ctx, alertID, models.AlertResolved, func(a *models.Alert, now time.Time) {
		a.ResolvedAt = &now
		if notes != "" {
			a.ResolutionNotes = &notes
		}
	})
}

func (s *AlertService) transition(ctx context.Context, alertID string, to models.AlertState, apply func(*models.Alert, time.Time)) (models.Alert, error) {
	current, err := s.store.Repos().Alerts.Get(ctx, alertID)
	if err != nil {
		return models.Alert{}, err
	}
	// Detached alerts have no equipment to lock; the CAS update still guards them.
	if eqID := current.EquipmentRef(); eqID != "" {
		unlock, err := s.locks.Lock(ctx, eqID)
		if err != nil {
			return models.Alert{}, err
		}
		defer unlock()
	}

	var out models.Alert
	err = s.store.InTx(ctx, func(r *repository.Repository) error {
		var err error
		out, err = transitionTx(ctx, r, alertID, to, s.now(), apply)
		return err
	})
	if err != nil {
		return models.Alert{}, err
	}
	metrics.AlertTransitionsTotal.WithLabelValues(string(to)).Inc()
	s.log.Infow("alert_transition", "alert_id", out.ID, "kind", out.Kind, "to", out.State)
	return out, nil
}

// transitionTx re-reads the alert inside the transaction and applies the
// state machine before writing.
func transitionTx(ctx context.Context, r *repository.Repository, alertID string, to models.AlertState, now time.Time, apply func(*models.Alert, time.Time)) (models.Alert, error) {
	a, err := r.Alerts.Get(ctx, alertID)
	if err != nil {
		return models.Alert{}, err
	}
	from := a.State
	if !from.CanTransitionTo(to) {
		return models.Alert{}, fmt.Errorf("alert %s %s -> %s: %w", alertID, from, to, models.ErrInvalidTransition)
	}
	a.State = to
	apply(&a, now)
	if err := r.Alerts.Transition(ctx, a, from); err != nil {
		return models.Alert{}, err
	}
	return a, nil
}

// resolveActiveTx resolves the active alerts of the given kinds for one
// equipment. Used by maintenance and by the optional failure auto-resolve.
func resolveActiveTx(ctx context.Context, r *repository.Repository, equipmentID string, kinds []models.AlertKind, notes string, now time.Time) ([]models.Alert, error) {
	var resolved []models.Alert
	for _, kind := range kinds {
		a, err := r.Alerts.FindActive(ctx, equipmentID, kind)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out, err := transitionTx(ctx, r, a.ID, models.AlertResolved, now, func(a *models.Alert, now time.Time) {
			a.ResolvedAt = &now
			if notes != "" {
				n := notes
				a.ResolutionNotes = &n
			}
		})
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, out)
	}
	return resolved, nil
}

func (s *AlertService) observeRaise(a models.Alert, created bool) {
	if created {
		metrics.AlertsRaisedTotal.WithLabelValues(string(a.Kind)).Inc()
		s.log.Infow("alert_raised", "alert_id", a.ID, "equipment_id", a.EquipmentRef(), "kind", a.Kind, "severity", a.Severity)
		return
	}
	metrics.AlertsSuppressedTotal.WithLabelValues(string(a.Kind)).Inc()
	s.log.Debugw("alert_suppressed", "alert_id", a.ID, "equipment_id", a.EquipmentRef(), "kind", a.Kind)
}

func (s *AlertService) GetAlert(ctx context.Context, id string) (models.Alert, error) {
	return s.store.Repos().Alerts.Get(ctx, id)
}

// ListOpenAlerts returns OPEN and ACKNOWLEDGED alerts, newest first.
func (s *AlertService) ListOpenAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	return s.store.Repos().Alerts.List(ctx, repository.AlertFilter{
		States: models.ActiveAlertStates,
		Limit:  clampLimit(limit, defaultAlertListLimit),
	})
}

func (s *AlertService) ListAlerts(ctx context.Context, q AlertQuery) ([]models.Alert, error) {
	f := repository.AlertFilter{
		EquipmentID: strings.TrimSpace(q.EquipmentID),
		Limit:       clampLimit(q.Limit, defaultAlertListLimit),
	}
	if q.Kind != "" {
		if !q.Kind.Valid() {
			return nil, fmt.Errorf("unknown alert kind %q: %w", q.Kind, models.ErrValidation)
		}
		f.Kind = q.Kind
	}
	if q.State != "" {
		if !q.State.Valid() {
			return nil, fmt.Errorf("unknown alert state %q: %w", q.State, models.ErrValidation)
		}
		f.States = []models.AlertState{q.State}
	}
	return s.store.Repos().Alerts.List(ctx, f)
}

func (s *AlertService) AlertStats(ctx context.Context) (models.AlertStats, error) {
	return s.store.Repos().Alerts.Stats(ctx)
}

// AcknowledgeAlert and ResolveAlert name the interactive operations.
func (s *AlertService) AcknowledgeAlert(ctx context.Context, alertID, by string) (models.Alert, error) {
	return s.Acknowledge(ctx, alertID, by)
}

func (s *AlertService) ResolveAlert(ctx context.Context, alertID, notes string) (models.Alert, error) {
	return s.Resolve(ctx, alertID, notes)
}

func clampLimit(limit, def int) int {
	const maxLimit = 1000
	switch {
	case limit <= 0:
		return def
	case limit > maxLimit:
		return maxLimit
	default:
		return limit
	}
}
