package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/phyn2-2/medasset-sentinel/internal/models"
)

type MaintenanceLogSQLite struct {
	db DBTX
}

func NewMaintenanceLogSQLite(db DBTX) *MaintenanceLogSQLite { return &MaintenanceLogSQLite{db: db} }

var _ MaintenanceLogRepo = (*MaintenanceLogSQLite)(nil)

const (
	insertMaintenanceLogSQL = `
		INSERT INTO maintenance_logs (id, equipment_id, performed_at, technician, notes, addressed_failure, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	selectMaintenanceLogsSQL = `
		SELECT id, equipment_id, performed_at, technician, notes, addressed_failure, created_at
		FROM maintenance_logs`
	deleteMaintenanceLogsSQL = `DELETE FROM maintenance_logs WHERE equipment_id = ?`
	countMaintenanceLogsSQL  = `SELECT COUNT(*) FROM maintenance_logs`
)

func (r *MaintenanceLogSQLite) Append(ctx context.Context, l models.MaintenanceLog) error {
	_, err := r.db.ExecContext(ctx, insertMaintenanceLogSQL,
		l.ID,
		l.EquipmentID,
		l.PerformedAt.UTC(),
		l.Technician,
		nullIfEmpty(l.Notes),
		l.AddressedFailure,
		l.CreatedAt.UTC(),
	)
	return wrapErr(fmt.Sprintf("insert maintenance log for %q", l.EquipmentID), err)
}

// ListByEquipment returns the newest entries first. limit <= 0 means no limit.
func (r *MaintenanceLogSQLite) ListByEquipment(ctx context.Context, equipmentID string, limit int) ([]models.MaintenanceLog, error) {
	q := selectMaintenanceLogsSQL + ` WHERE equipment_id = ? ORDER BY performed_at DESC, id DESC`
	args := []any{equipmentID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.query(ctx, fmt.Sprintf("list maintenance logs for %q", equipmentID), q, args...)
}

func (r *MaintenanceLogSQLite) ListRecent(ctx context.Context, limit int) ([]models.MaintenanceLog, error) {
	q := selectMaintenanceLogsSQL + ` ORDER BY performed_at DESC, id DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.query(ctx, "list recent maintenance logs", q, args...)
}

func (r *MaintenanceLogSQLite) DeleteByEquipment(ctx context.Context, equipmentID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, deleteMaintenanceLogsSQL, equipmentID)
	if err != nil {
		return 0, wrapErr(fmt.Sprintf("delete maintenance logs for %q", equipmentID), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("maintenance logs rows affected", err)
	}
	return n, nil
}

func (r *MaintenanceLogSQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, countMaintenanceLogsSQL).Scan(&n); err != nil {
		return 0, wrapErr("count maintenance logs", err)
	}
	return n, nil
}

func (r *MaintenanceLogSQLite) query(ctx context.Context, op, q string, args ...any) ([]models.MaintenanceLog, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	out := make([]models.MaintenanceLog, 0, 16)
	for rows.Next() {
		var (
			l     models.MaintenanceLog
			notes sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.EquipmentID, &l.PerformedAt, &l.Technician, &notes, &l.AddressedFailure, &l.CreatedAt); err != nil {
			return nil, wrapErr(op, err)
		}
		l.Notes = notes.String
		l.PerformedAt = l.PerformedAt.UTC()
		l.CreatedAt = l.CreatedAt.UTC()
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}
	return out, nil
}
