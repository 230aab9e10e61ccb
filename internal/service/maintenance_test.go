package service

import (
	"context"
	"testing"
	"time"

	"github.com/phyn2-2/medasset-sentinel/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformMaintenance_ResolvesScheduleAlerts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	eq := h.addEquipment(t, "SN-1", "default", 30*day, 40*day)

	_, err := h.svc.TriggerSweepNow(ctx)
	require.NoError(t, err)
	failure, _, err := h.svc.Raise(ctx, eq.ID, models.KindEquipmentFailure)
	require.NoError(t, err)

	res, err := h.svc.PerformMaintenance(ctx, MaintenanceParams{
		EquipmentID: eq.ID,
		Technician:  "  j.doe ",
		Notes:       "calibrated",
	})
	require.NoError(t, err)
	assert.Equal(t, "j.doe", res.Log.Technician)
	assert.True(t, res.Log.PerformedAt.Equal(testEpoch))
	require.Len(t, res.ResolvedAlerts, 1)
	assert.Equal(t, models.KindMaintenanceOverdue, res.ResolvedAlerts[0].Kind)
	require.NotNil(t, res.ResolvedAlerts[0].ResolutionNotes)
	assert.Contains(t, *res.ResolvedAlerts[0].ResolutionNotes, "calibrated")

	stored := h.equipment(t, eq.ID)
	require.NotNil(t, stored.LastMaintenanceAt)
	assert.True(t, stored.LastMaintenanceAt.Equal(testEpoch))

	got, err := h.svc.GetAlert(ctx, failure.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertOpen, got.State, "failure stays open unless addressed")

	// the schedule restarted: the next sweep raises nothing
	rep, err := h.svc.TriggerSweepNow(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.AlertsRaised)
}

func TestPerformMaintenance_AddressesFailure(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Profiles = failingProfiles() })
	ctx := context.Background()
	eq := h.addEquipment(t, "SN-V", "ventilator", 30*day, day)

	_, err := h.svc.TriggerTickNow(ctx)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, h.equipment(t, eq.ID).OperationalStatus)

	res, err := h.svc.PerformMaintenance(ctx, MaintenanceParams{
		EquipmentID:      eq.ID,
		Technician:       "biomed",
		AddressesFailure: true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusOperational, res.Equipment.OperationalStatus)
	require.Len(t, res.ResolvedAlerts, 1)
	assert.Equal(t, models.KindEquipmentFailure, res.ResolvedAlerts[0].Kind)
	assert.True(t, res.Log.AddressedFailure)
	assert.Equal(t, models.StatusOperational, h.equipment(t, eq.ID).OperationalStatus)
}

func TestPerformMaintenance_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	eq := h.addEquipment(t, "SN-1", "default", 30*day, 40*day)

	_, err := h.svc.PerformMaintenance(ctx, MaintenanceParams{EquipmentID: eq.ID, Technician: " "})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = h.svc.PerformMaintenance(ctx, MaintenanceParams{EquipmentID: "missing", Technician: "x"})
	assert.ErrorIs(t, err, models.ErrNotFound)

	logs, err := h.svc.MaintenanceHistory(ctx, eq.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, logs, "failed calls write nothing")
}

func TestStartMaintenance(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Profiles = failingProfiles() })
	ctx := context.Background()
	eq := h.addEquipment(t, "SN-1", "default", 30*day, day)
	vent := h.addEquipment(t, "SN-V", "ventilator", 30*day, day)

	got, err := h.svc.StartMaintenance(ctx, eq.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderMaintenance, got.OperationalStatus)

	again, err := h.svc.StartMaintenance(ctx, eq.ID)
	require.NoError(t, err, "already under maintenance is a no-op")
	assert.Equal(t, models.StatusUnderMaintenance, again.OperationalStatus)

	// a nominal tick keeps the maintenance mode
	_, err = h.svc.TriggerTickNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderMaintenance, h.equipment(t, eq.ID).OperationalStatus)

	_, err = h.svc.StartMaintenance(ctx, vent.ID)
	assert.ErrorIs(t, err, models.ErrConflict, "FAILED equipment needs PerformMaintenance")

	res, err := h.svc.PerformMaintenance(ctx, MaintenanceParams{EquipmentID: eq.ID, Technician: "tech"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusOperational, res.Equipment.OperationalStatus)
}

func TestMaintenanceHistory_NewestFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e1 := h.addEquipment(t, "SN-1", "default", 30*day, 40*day)
	e2 := h.addEquipment(t, "SN-2", "default", 30*day, 40*day)

	for i, tech := range []string{"a", "b", "c"} {
		h.clock.Advance(time.Hour)
		id := e1.ID
		if i == 1 {
			id = e2.ID
		}
		_, err := h.svc.PerformMaintenance(ctx, MaintenanceParams{EquipmentID: id, Technician: tech})
		require.NoError(t, err)
	}

	logs, err := h.svc.MaintenanceHistory(ctx, e1.ID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "c", logs[0].Technician)
	assert.Equal(t, "a", logs[1].Technician)

	recent, err := h.svc.RecentMaintenance(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].Technician)
	assert.Equal(t, "b", recent[1].Technician)

	_, err = h.svc.MaintenanceHistory(ctx, "missing", 0)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
