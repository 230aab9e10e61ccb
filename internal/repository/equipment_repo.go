package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/phyn2-2/medasset-sentinel/internal/models"
)

type EquipmentSQLite struct {
	db DBTX
}

func NewEquipmentSQLite(db DBTX) *EquipmentSQLite { return &EquipmentSQLite{db: db} }

var _ EquipmentRepo = (*EquipmentSQLite)(nil)

const equipmentColumns = `id, name, serial_number, category, location, manufacturer,
	maintenance_interval_s, last_maintenance_at, operational_status, active,
	created_at, updated_at`

const (
	insertEquipmentSQL = `
		INSERT INTO equipment (` + equipmentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	selectEquipmentByIDSQL     = `SELECT ` + equipmentColumns + ` FROM equipment WHERE id = ?`
	selectEquipmentBySerialSQL = `SELECT ` + equipmentColumns + ` FROM equipment WHERE serial_number = ?`
	updateEquipmentSQL         = `
		UPDATE equipment
		SET name = ?, serial_number = ?, category = ?, location = ?, manufacturer = ?,
		    maintenance_interval_s = ?, active = ?, updated_at = ?
		WHERE id = ?`
	updateEquipmentStatusSQL = `UPDATE equipment SET operational_status = ?, updated_at = ? WHERE id = ?`
	markMaintainedSQL        = `
		UPDATE equipment
		SET last_maintenance_at = ?, operational_status = ?, updated_at = ?
		WHERE id = ?`
	deleteEquipmentSQL        = `DELETE FROM equipment WHERE id = ?`
	countEquipmentByStatusSQL = `
		SELECT operational_status, COUNT(*) FROM equipment
		WHERE active = 1
		GROUP BY operational_status`
)

// Create inserts e as given; the caller assigns ID and timestamps.
func (r *EquipmentSQLite) Create(ctx context.Context, e models.Equipment) error {
	_, err := r.db.ExecContext(ctx, insertEquipmentSQL,
		e.ID,
		e.Name,
		e.SerialNumber,
		e.Category,
		nullIfEmpty(e.Location),
		nullIfEmpty(e.Manufacturer),
		int64(e.MaintenanceInterval/time.Second),
		utcPtr(e.LastMaintenanceAt),
		string(e.OperationalStatus),
		e.Active,
		e.CreatedAt.UTC(),
		e.UpdatedAt.UTC(),
	)
	return wrapErr(fmt.Sprintf("insert equipment %q", e.SerialNumber), err)
}

func (r *EquipmentSQLite) Get(ctx context.Context, id string) (models.Equipment, error) {
	e, err := scanEquipment(r.db.QueryRowContext(ctx, selectEquipmentByIDSQL, id))
	if err != nil {
		return models.Equipment{}, wrapErr(fmt.Sprintf("select equipment %q", id), err)
	}
	return e, nil
}

func (r *EquipmentSQLite) GetBySerial(ctx context.Context, serial string) (models.Equipment, error) {
	e, err := scanEquipment(r.db.QueryRowContext(ctx, selectEquipmentBySerialSQL, serial))
	if err != nil {
		return models.Equipment{}, wrapErr(fmt.Sprintf("select equipment by serial %q", serial), err)
	}
	return e, nil
}

// List returns equipment matching f ordered by name.
func (r *EquipmentSQLite) List(ctx context.Context, f EquipmentFilter) ([]models.Equipment, error) {
	var (
		conds []string
		args  []any
	)
	if f.Active != nil {
		conds = append(conds, "active = ?")
		args = append(args, *f.Active)
	}
	if f.Status != "" {
		conds = append(conds, "operational_status = ?")
		args = append(args, string(f.Status))
	}
	if c := strings.ToLower(strings.TrimSpace(f.Category)); c != "" {
		conds = append(conds, "category = ?")
		args = append(args, c)
	}

	q := `SELECT ` + equipmentColumns + ` FROM equipment`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY name ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapErr("list equipment", err)
	}
	defer rows.Close()

	out := make([]models.Equipment, 0, 32)
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, wrapErr("scan equipment", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate equipment", err)
	}
	return out, nil
}

// Update writes registry fields only. Status and maintenance timestamps have
// dedicated methods.
func (r *EquipmentSQLite) Update(ctx context.Context, e models.Equipment) error {
	res, err := r.db.ExecContext(ctx, updateEquipmentSQL,
		e.Name,
		e.SerialNumber,
		e.Category,
		nullIfEmpty(e.Location),
		nullIfEmpty(e.Manufacturer),
		int64(e.MaintenanceInterval/time.Second),
		e.Active,
		e.UpdatedAt.UTC(),
		e.ID,
	)
	return affectedOne(fmt.Sprintf("update equipment %q", e.ID), res, err)
}

func (r *EquipmentSQLite) UpdateStatus(ctx context.Context, id string, status models.OperationalStatus, at time.Time) error {
	res, err := r.db.ExecContext(ctx, updateEquipmentStatusSQL, string(status), at.UTC(), id)
	return affectedOne(fmt.Sprintf("update status of equipment %q", id), res, err)
}

func (r *EquipmentSQLite) MarkMaintained(ctx context.Context, id string, at time.Time, status models.OperationalStatus) error {
	res, err := r.db.ExecContext(ctx, markMaintainedSQL, at.UTC(), string(status), at.UTC(), id)
	return affectedOne(fmt.Sprintf("mark equipment %q maintained", id), res, err)
}

// Delete removes the equipment row. Dependent rows must already be handled;
// otherwise the foreign keys reject the delete with ErrConflict.
func (r *EquipmentSQLite) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, deleteEquipmentSQL, id)
	return affectedOne(fmt.Sprintf("delete equipment %q", id), res, err)
}

// CountByStatus counts active equipment per operational status.
func (r *EquipmentSQLite) CountByStatus(ctx context.Context) (map[models.OperationalStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, countEquipmentByStatusSQL)
	if err != nil {
		return nil, wrapErr("count equipment", err)
	}
	defer rows.Close()

	out := map[models.OperationalStatus]int{
		models.StatusOperational:      0,
		models.StatusFailed:           0,
		models.StatusUnderMaintenance: 0,
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, wrapErr("scan equipment count", err)
		}
		out[models.OperationalStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate equipment counts", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEquipment(s rowScanner) (models.Equipment, error) {
	var (
		e            models.Equipment
		location     sql.NullString
		manufacturer sql.NullString
		intervalSec  int64
		last         sql.NullTime
		status       string
	)
	if err := s.Scan(
		&e.ID, &e.Name, &e.SerialNumber, &e.Category, &location, &manufacturer,
		&intervalSec, &last, &status, &e.Active, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return models.Equipment{}, err
	}
	e.Location = location.String
	e.Manufacturer = manufacturer.String
	e.MaintenanceInterval = time.Duration(intervalSec) * time.Second
	if last.Valid {
		t := last.Time.UTC()
		e.LastMaintenanceAt = &t
	}
	e.OperationalStatus = models.OperationalStatus(status)
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}

// affectedOne turns "0 rows affected" into ErrNotFound.
func affectedOne(op string, res sql.Result, err error) error {
	if err != nil {
		return wrapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr(op, err)
	}
	if n == 0 {
		return wrapErr(op, sql.ErrNoRows)
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
