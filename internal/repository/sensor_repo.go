package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/phyn2-2/medasset-sentinel/internal/models"
)

type SensorEventSQLite struct {
	db DBTX
}

func NewSensorEventSQLite(db DBTX) *SensorEventSQLite { return &SensorEventSQLite{db: db} }

var _ SensorEventRepo = (*SensorEventSQLite)(nil)

const (
	insertSensorEventSQL = `
		INSERT INTO sensor_events (id, equipment_id, metric, value, recorded_at)
		VALUES (?, ?, ?, ?, ?)`
	selectSensorEventsSQL = `SELECT id, equipment_id, metric, value, recorded_at FROM sensor_events`
	latestSensorEventSQL  = selectSensorEventsSQL + `
		WHERE equipment_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1`
	deleteSensorEventsSQL = `DELETE FROM sensor_events WHERE equipment_id = ?`
)

func (r *SensorEventSQLite) Append(ctx context.Context, e models.SensorEvent) error {
	_, err := r.db.ExecContext(ctx, insertSensorEventSQL,
		e.ID,
		e.EquipmentID,
		strings.ToLower(strings.TrimSpace(e.Metric)),
		e.Value,
		e.RecordedAt.UTC(),
	)
	return wrapErr(fmt.Sprintf("insert sensor event for %q", e.EquipmentID), err)
}

// List returns readings filtered by f, ordered ASC by recorded_at.
func (r *SensorEventSQLite) List(ctx context.Context, f SensorEventFilter) ([]models.SensorEvent, error) {
	var (
		conds []string
		args  []any
	)
	if f.EquipmentID != "" {
		conds = append(conds, "equipment_id = ?")
		args = append(args, f.EquipmentID)
	}
	if m := strings.ToLower(strings.TrimSpace(f.Metric)); m != "" {
		conds = append(conds, "metric = ?")
		args = append(args, m)
	}
	if !f.From.IsZero() {
		conds = append(conds, "recorded_at >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		conds = append(conds, "recorded_at <= ?")
		args = append(args, f.To.UTC())
	}

	q := selectSensorEventsSQL
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY recorded_at ASC, id ASC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapErr("list sensor events", err)
	}
	defer rows.Close()

	out := make([]models.SensorEvent, 0, 64)
	for rows.Next() {
		var ev models.SensorEvent
		if err := rows.Scan(&ev.ID, &ev.EquipmentID, &ev.Metric, &ev.Value, &ev.RecordedAt); err != nil {
			return nil, wrapErr("scan sensor event", err)
		}
		ev.RecordedAt = ev.RecordedAt.UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate sensor events", err)
	}
	return out, nil
}

func (r *SensorEventSQLite) Latest(ctx context.Context, equipmentID string) (models.SensorEvent, error) {
	var ev models.SensorEvent
	err := r.db.QueryRowContext(ctx, latestSensorEventSQL, equipmentID).
		Scan(&ev.ID, &ev.EquipmentID, &ev.Metric, &ev.Value, &ev.RecordedAt)
	if err != nil {
		return models.SensorEvent{}, wrapErr(fmt.Sprintf("latest sensor event for %q", equipmentID), err)
	}
	ev.RecordedAt = ev.RecordedAt.UTC()
	return ev, nil
}

func (r *SensorEventSQLite) DeleteByEquipment(ctx context.Context, equipmentID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, deleteSensorEventsSQL, equipmentID)
	if err != nil {
		return 0, wrapErr(fmt.Sprintf("delete sensor events for %q", equipmentID), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("sensor events rows affected", err)
	}
	return n, nil
}
