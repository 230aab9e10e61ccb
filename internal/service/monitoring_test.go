package service

import (
	"context"
	"testing"

	"github.com/phyn2-2/medasset-sentinel/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverview(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		d.Profiles = failingProfiles()
		d.Policy = AlertPolicy{UpcomingWindow: 7 * day}
	})
	ctx := context.Background()
	h.addEquipment(t, "SN-DUE", "default", 30*day, 40*day)
	h.addEquipment(t, "SN-SOON", "default", 30*day, 25*day)
	h.addEquipment(t, "SN-V", "ventilator", 30*day, day)

	_, err := h.svc.TriggerTickNow(ctx)
	require.NoError(t, err)
	_, err = h.svc.TriggerSweepNow(ctx)
	require.NoError(t, err)

	ov, err := h.svc.Overview(ctx)
	require.NoError(t, err)
	assert.True(t, ov.GeneratedAt.Equal(testEpoch))
	assert.Equal(t, 3, ov.Equipment.Total)
	assert.Equal(t, 2, ov.Equipment.ByStatus[models.StatusOperational])
	assert.Equal(t, 1, ov.Equipment.ByStatus[models.StatusFailed])
	assert.Equal(t, 0, ov.Equipment.ByStatus[models.StatusUnderMaintenance])
	assert.Equal(t, 1, ov.Equipment.Overdue)
	assert.Equal(t, 1, ov.Equipment.Upcoming)
	assert.Equal(t, models.AlertStats{Total: 3, Open: 3, CriticalOpen: 2}, ov.Alerts)
	assert.Zero(t, ov.MaintenanceLogs)
}

func TestOverview_Empty(t *testing.T) {
	h := newHarness(t)
	ov, err := h.svc.Overview(context.Background())
	require.NoError(t, err)
	assert.Zero(t, ov.Equipment.Total)
	assert.Len(t, ov.Equipment.ByStatus, 3)
	assert.Equal(t, models.AlertStats{}, ov.Alerts)
}
