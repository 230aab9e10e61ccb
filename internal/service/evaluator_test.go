package service

import (
	"math"
	"testing"
	"time"

	"github.com/phyn2-2/medasset-sentinel/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalEquipment(status models.OperationalStatus, interval, ago time.Duration) models.Equipment {
	last := testEpoch.Add(-ago)
	return models.Equipment{
		ID:                  "eq-1",
		Category:            "patient_monitor",
		MaintenanceInterval: interval,
		LastMaintenanceAt:   &last,
		OperationalStatus:   status,
		Active:              true,
	}
}

func reading(metric string, v float64) models.SensorEvent {
	return models.SensorEvent{ID: "r1", EquipmentID: "eq-1", Metric: metric, Value: v, RecordedAt: testEpoch}
}

func TestMaintenanceDue(t *testing.T) {
	tests := []struct {
		name string
		eq   models.Equipment
		want bool
	}{
		{name: "30 day interval, 40 days ago", eq: evalEquipment(models.StatusOperational, 30*day, 40*day), want: true},
		{name: "30 day interval, 10 days ago", eq: evalEquipment(models.StatusOperational, 30*day, 10*day), want: false},
		{name: "exactly at interval", eq: evalEquipment(models.StatusOperational, 30*day, 30*day), want: true},
		{name: "never maintained", eq: models.Equipment{MaintenanceInterval: 30 * day}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaintenanceDue(tt.eq, testEpoch))
		})
	}
}

func TestMaintenanceUpcoming(t *testing.T) {
	window := 7 * day
	assert.True(t, MaintenanceUpcoming(evalEquipment(models.StatusOperational, 30*day, 25*day), testEpoch, window))
	assert.False(t, MaintenanceUpcoming(evalEquipment(models.StatusOperational, 30*day, 10*day), testEpoch, window))
	assert.False(t, MaintenanceUpcoming(evalEquipment(models.StatusOperational, 30*day, 40*day), testEpoch, window), "due is not upcoming")
	assert.False(t, MaintenanceUpcoming(evalEquipment(models.StatusOperational, 30*day, 25*day), testEpoch, 0), "zero window disables")
	assert.False(t, MaintenanceUpcoming(models.Equipment{MaintenanceInterval: day}, testEpoch, window))
}

func TestEvaluator_OperationalStatus(t *testing.T) {
	e := NewEvaluator(Thresholds{
		"SpO2_Accuracy": {Min: float(90)},
		"temperature_c": {Min: float(10), Max: float(40)},
	})

	tests := []struct {
		name       string
		eqStatus   models.OperationalStatus
		r          models.SensorEvent
		want       models.OperationalStatus
		wantBreach bool
	}{
		{name: "nominal", eqStatus: models.StatusOperational, r: reading("temperature_c", 25), want: models.StatusOperational},
		{name: "above max", eqStatus: models.StatusOperational, r: reading("temperature_c", 41), want: models.StatusFailed, wantBreach: true},
		{name: "below min", eqStatus: models.StatusOperational, r: reading("temperature_c", 9.5), want: models.StatusFailed, wantBreach: true},
		{name: "open upper bound", eqStatus: models.StatusOperational, r: reading("spo2_accuracy", 1e6), want: models.StatusOperational},
		{name: "metric case folded", eqStatus: models.StatusOperational, r: reading("SPO2_ACCURACY", 80), want: models.StatusFailed, wantBreach: true},
		{name: "unknown metric never fails", eqStatus: models.StatusOperational, r: reading("vibration", -1e9), want: models.StatusOperational},
		{name: "under maintenance kept", eqStatus: models.StatusUnderMaintenance, r: reading("temperature_c", 20), want: models.StatusUnderMaintenance},
		{name: "breach beats maintenance", eqStatus: models.StatusUnderMaintenance, r: reading("temperature_c", 99), want: models.StatusFailed, wantBreach: true},
		{name: "failed recovers by reading", eqStatus: models.StatusFailed, r: reading("temperature_c", 20), want: models.StatusOperational},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eq := evalEquipment(tt.eqStatus, 30*day, day)
			got, breach, err := e.OperationalStatus(eq, tt.r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantBreach, breach != nil)
		})
	}
}

func TestEvaluator_StatusIndependentOfSchedule(t *testing.T) {
	e := NewEvaluator(defaultThresholds())

	// overdue but nominal: status stays OPERATIONAL, due is reported apart
	overdue := evalEquipment(models.StatusOperational, 30*day, 40*day)
	ev, err := e.Evaluate(overdue, reading("health_index", 100), testEpoch)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOperational, ev.Status)
	assert.True(t, ev.MaintenanceDue)

	// freshly maintained but breaching: FAILED and not due
	fresh := evalEquipment(models.StatusOperational, 30*day, time.Hour)
	ev, err = e.Evaluate(fresh, reading("health_index", 10), testEpoch)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, ev.Status)
	assert.False(t, ev.MaintenanceDue)
	require.NotNil(t, ev.Breach)
	assert.Contains(t, ev.Breach.String(), "health_index=10.00 outside [70, 130]")
}

func TestEvaluator_RejectsBadReadings(t *testing.T) {
	e := NewEvaluator(defaultThresholds())
	eq := evalEquipment(models.StatusOperational, 30*day, day)

	bad := []models.SensorEvent{
		reading("", 1),
		reading("health_index", math.NaN()),
		reading("health_index", math.Inf(1)),
		{ID: "r2", EquipmentID: "other", Metric: "health_index", Value: 100},
	}
	for _, r := range bad {
		_, err := e.Evaluate(eq, r, testEpoch)
		assert.ErrorIs(t, err, models.ErrEvaluationFailure)
	}
}

func TestEvaluator_SetThresholdsSwapsTable(t *testing.T) {
	e := NewEvaluator(defaultThresholds())
	eq := evalEquipment(models.StatusOperational, 30*day, day)

	status, _, err := e.OperationalStatus(eq, reading("health_index", 60))
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, status)

	e.SetThresholds(Thresholds{"Health_Index": {Min: float(50)}})
	status, _, err = e.OperationalStatus(eq, reading("health_index", 60))
	require.NoError(t, err)
	assert.Equal(t, models.StatusOperational, status)
	assert.Contains(t, e.Thresholds(), "health_index")
}
