package service

import (
	"context"
	"testing"

	"github.com/phyn2-2/medasset-sentinel/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateEquipment_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	future := testEpoch.Add(day)

	tests := []struct {
		name string
		p    EquipmentParams
	}{
		{name: "missing name", p: EquipmentParams{SerialNumber: "S", Category: "c", MaintenanceInterval: day}},
		{name: "missing serial", p: EquipmentParams{Name: "n", Category: "c", MaintenanceInterval: day}},
		{name: "missing category", p: EquipmentParams{Name: "n", SerialNumber: "S", MaintenanceInterval: day}},
		{name: "zero interval", p: EquipmentParams{Name: "n", SerialNumber: "S", Category: "c"}},
		{name: "future maintenance", p: EquipmentParams{Name: "n", SerialNumber: "S", Category: "c", MaintenanceInterval: day, LastMaintenanceAt: &future}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.CreateEquipment(ctx, tt.p)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestCreateEquipment_DuplicateSerial(t *testing.T) {
	h := newHarness(t)
	h.addEquipment(t, "SN-1", "default", 30*day, day)

	_, err := h.svc.CreateEquipment(context.Background(), EquipmentParams{
		Name: "Other", SerialNumber: " SN-1 ", Category: "default", MaintenanceInterval: day,
	})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestEquipmentView_SeparatesStatusAndDueness(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	due := h.addEquipment(t, "SN-DUE", "Patient_Monitor", 30*day, 40*day)
	ok := h.addEquipment(t, "SN-OK", "patient_monitor", 30*day, 10*day)

	assert.Equal(t, "patient_monitor", due.Category)
	assert.Equal(t, models.StatusOperational, due.OperationalStatus)
	assert.True(t, due.MaintenanceDue)
	assert.Equal(t, 30.0, due.MaintenanceIntervalDays)
	require.NotNil(t, due.DaysUntilMaintenance)
	assert.Equal(t, -10, *due.DaysUntilMaintenance)

	assert.False(t, ok.MaintenanceDue)
	assert.Equal(t, 20, *ok.DaysUntilMaintenance)

	never, err := h.svc.CreateEquipment(ctx, EquipmentParams{
		Name: "New", SerialNumber: "SN-NEW", Category: "default", MaintenanceInterval: 30 * day,
	})
	require.NoError(t, err)
	assert.True(t, never.MaintenanceDue)
	assert.Nil(t, never.NextMaintenanceAt)

	dueOnly, err := h.svc.ListEquipment(ctx, EquipmentQuery{DueOnly: true})
	require.NoError(t, err)
	assert.Len(t, dueOnly, 2)

	byCategory, err := h.svc.ListEquipment(ctx, EquipmentQuery{Category: "patient_monitor"})
	require.NoError(t, err)
	assert.Len(t, byCategory, 2)

	_, err = h.svc.ListEquipment(ctx, EquipmentQuery{Status: "BROKEN"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestUpdateEquipment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.addEquipment(t, "SN-A", "default", 30*day, day)
	h.addEquipment(t, "SN-B", "default", 30*day, day)

	off := false
	got, err := h.svc.UpdateEquipment(ctx, a.ID, EquipmentParams{
		Name: "Renamed", SerialNumber: "SN-A", Category: "infusion_pump",
		Location: "OR-2", MaintenanceInterval: 90 * day, Active: &off,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.False(t, got.Active)
	assert.Equal(t, 90.0, got.MaintenanceIntervalDays)
	require.NotNil(t, got.LastMaintenanceAt, "maintenance history is not editable here")

	list, err := h.svc.ListEquipment(ctx, EquipmentQuery{})
	require.NoError(t, err)
	assert.Len(t, list, 1, "inactive equipment is hidden by default")
	all, err := h.svc.ListEquipment(ctx, EquipmentQuery{IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = h.svc.UpdateEquipment(ctx, a.ID, EquipmentParams{
		Name: "Renamed", SerialNumber: "SN-B", Category: "default", MaintenanceInterval: day,
	})
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = h.svc.UpdateEquipment(ctx, "missing", EquipmentParams{
		Name: "x", SerialNumber: "SN-X", Category: "default", MaintenanceInterval: day,
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeleteEquipment_CascadeVersusPreserve(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Profiles = failingProfiles() })
	ctx := context.Background()
	eq := h.addEquipment(t, "SN-V", "ventilator", 30*day, 40*day)
	other := h.addEquipment(t, "SN-O", "default", 30*day, day)

	_, err := h.svc.TriggerTickNow(ctx)
	require.NoError(t, err)
	_, err = h.svc.TriggerSweepNow(ctx)
	require.NoError(t, err)
	_, err = h.svc.PerformMaintenance(ctx, MaintenanceParams{EquipmentID: eq.ID, Technician: "tech"})
	require.NoError(t, err)
	before := h.alertsFor(t, eq.ID)
	require.Len(t, before, 2, "failure stays open, overdue was resolved")

	rep, err := h.svc.DeleteEquipment(ctx, eq.ID)
	require.NoError(t, err)
	assert.Equal(t, DeletionReport{EquipmentID: eq.ID, MaintenanceLogs: 1, SensorEvents: 1, AlertsDetached: 2}, rep)

	_, err = h.svc.GetEquipment(ctx, eq.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	recent, err := h.svc.RecentMaintenance(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, recent, "logs are cascaded")

	all, err := h.svc.ListAlerts(ctx, AlertQuery{})
	require.NoError(t, err)
	require.Len(t, all, 2, "alerts are preserved")
	for _, a := range all {
		assert.Nil(t, a.EquipmentID)
	}

	// a detached open alert can still be worked
	for _, a := range all {
		if a.State == models.AlertOpen {
			_, err := h.svc.ResolveAlert(ctx, a.ID, "equipment retired")
			require.NoError(t, err)
		}
	}

	// unrelated equipment is untouched
	_, err = h.svc.LatestReading(ctx, other.ID)
	require.NoError(t, err)

	_, err = h.svc.DeleteEquipment(ctx, eq.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
