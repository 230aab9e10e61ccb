package service

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/phyn2-2/medasset-sentinel/internal/models"
)

// Threshold is the safe band for one metric. A nil side is unbounded.
type Threshold struct {
	Min *float64
	Max *float64
}

// Thresholds is keyed by lowercase metric name.
type Thresholds map[string]Threshold

// Evaluation keeps the two results apart: Status comes from telemetry,
// MaintenanceDue from the schedule.
type Evaluation struct {
	Status         models.OperationalStatus
	MaintenanceDue bool
	Breach         *Breach
}

// Breach describes the reading that made the status FAILED.
type Breach struct {
	Metric string
	Value  float64
	Limit  Threshold
}

func (b Breach) String() string {
	bound := func(p *float64) string {
		if p == nil {
			return "-"
		}
		return fmt.Sprintf("%g", *p)
	}
	return fmt.Sprintf("%s=%.2f outside [%s, %s]", b.Metric, b.Value, bound(b.Limit.Min), bound(b.Limit.Max))
}

// Evaluator derives operational status and maintenance due-ness. It has no
// side effects; thresholds can be swapped at runtime.
type Evaluator struct {
	thresholds atomic.Pointer[Thresholds]
}

func NewEvaluator(t Thresholds) *Evaluator {
	e := &Evaluator{}
	e.SetThresholds(t)
	return e
}

// SetThresholds replaces the threshold table atomically.
func (e *Evaluator) SetThresholds(t Thresholds) {
	norm := make(Thresholds, len(t))
	for metric, th := range t {
		norm[normalizeMetric(metric)] = th
	}
	e.thresholds.Store(&norm)
}

func (e *Evaluator) Thresholds() Thresholds {
	return *e.thresholds.Load()
}

// Evaluate combines OperationalStatus and MaintenanceDue into one result
// without letting either influence the other.
func (e *Evaluator) Evaluate(eq models.Equipment, reading models.SensorEvent, now time.Time) (Evaluation, error) {
	status, breach, err := e.OperationalStatus(eq, reading)
	if err != nil {
		return Evaluation{}, err
	}
	return Evaluation{
		Status:         status,
		MaintenanceDue: MaintenanceDue(eq, now),
		Breach:         breach,
	}, nil
}

// OperationalStatus looks only at the reading and the current maintenance mode.
func (e *Evaluator) OperationalStatus(eq models.Equipment, reading models.SensorEvent) (models.OperationalStatus, *Breach, error) {
	if err := validateReading(eq, reading); err != nil {
		return "", nil, err
	}

	metric := normalizeMetric(reading.Metric)
	if th, ok := e.Thresholds()[metric]; ok && breaches(th, reading.Value) {
		return models.StatusFailed, &Breach{Metric: metric, Value: reading.Value, Limit: th}, nil
	}
	if eq.OperationalStatus == models.StatusUnderMaintenance {
		return models.StatusUnderMaintenance, nil, nil
	}
	return models.StatusOperational, nil, nil
}

// MaintenanceDue looks only at the schedule. Equipment that was never
// maintained is due.
func MaintenanceDue(eq models.Equipment, now time.Time) bool {
	if eq.LastMaintenanceAt == nil {
		return true
	}
	return now.Sub(*eq.LastMaintenanceAt) >= eq.MaintenanceInterval
}

// MaintenanceUpcoming reports equipment that is not yet due but will be
// within window.
func MaintenanceUpcoming(eq models.Equipment, now time.Time, window time.Duration) bool {
	if window <= 0 || MaintenanceDue(eq, now) {
		return false
	}
	return eq.LastMaintenanceAt.Add(eq.MaintenanceInterval).Sub(now) <= window
}

func breaches(th Threshold, v float64) bool {
	if th.Min != nil && v < *th.Min {
		return true
	}
	return th.Max != nil && v > *th.Max
}

func validateReading(eq models.Equipment, r models.SensorEvent) error {
	switch {
	case strings.TrimSpace(r.Metric) == "":
		return fmt.Errorf("reading for %s: empty metric: %w", eq.ID, models.ErrEvaluationFailure)
	case math.IsNaN(r.Value) || math.IsInf(r.Value, 0):
		return fmt.Errorf("reading for %s: non-finite value %v: %w", eq.ID, r.Value, models.ErrEvaluationFailure)
	case r.EquipmentID != eq.ID:
		return fmt.Errorf("reading for %s carries equipment %q: %w", eq.ID, r.EquipmentID, models.ErrEvaluationFailure)
	default:
		return nil
	}
}

func normalizeMetric(m string) string {
	return strings.ToLower(strings.TrimSpace(m))
}
