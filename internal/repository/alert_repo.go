package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phyn2-2/medasset-sentinel/internal/models"
)

type AlertSQLite struct {
	db DBTX
}

func NewAlertSQLite(db DBTX) *AlertSQLite { return &AlertSQLite{db: db} }

var _ AlertRepo = (*AlertSQLite)(nil)

const alertColumns = `id, equipment_id, kind, severity, message, state, raised_at,
	acknowledged_at, acknowledged_by, resolved_at, resolution_notes`

const (
	// ON CONFLICT DO NOTHING only covers uniqueness, so CHECK and FK
	// violations still fail loudly (unlike INSERT OR IGNORE).
	insertAlertIfAbsentSQL = `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`
	selectAlertByIDSQL = `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`
	selectActiveAlertSQL = `
		SELECT ` + alertColumns + ` FROM alerts
		WHERE equipment_id = ? AND kind = ? AND state IN ('OPEN', 'ACKNOWLEDGED')`
	transitionAlertSQL = `
		UPDATE alerts
		SET state = ?, acknowledged_at = ?, acknowledged_by = ?, resolved_at = ?, resolution_notes = ?
		WHERE id = ? AND state = ?`
	detachAlertsSQL = `UPDATE alerts SET equipment_id = NULL WHERE equipment_id = ?`
	alertStatsSQL   = `
		SELECT
		    COUNT(*),
		    COALESCE(SUM(CASE WHEN state = 'OPEN' THEN 1 ELSE 0 END), 0),
		    COALESCE(SUM(CASE WHEN state = 'ACKNOWLEDGED' THEN 1 ELSE 0 END), 0),
		    COALESCE(SUM(CASE WHEN state IN ('OPEN', 'ACKNOWLEDGED') AND severity = 'CRITICAL' THEN 1 ELSE 0 END), 0)
		FROM alerts`
)

// InsertIfAbsent relies on the ux_alerts_active partial index. When a
// non-terminal alert already exists for (equipment, kind) it is returned with
// created == false.
func (r *AlertSQLite) InsertIfAbsent(ctx context.Context, a models.Alert) (models.Alert, bool, error) {
	res, err := r.db.ExecContext(ctx, insertAlertIfAbsentSQL,
		a.ID,
		a.EquipmentID,
		string(a.Kind),
		string(a.Severity),
		a.Message,
		string(a.State),
		a.RaisedAt.UTC(),
		utcPtr(a.AcknowledgedAt),
		a.AcknowledgedBy,
		utcPtr(a.ResolvedAt),
		a.ResolutionNotes,
	)
	if err != nil {
		return models.Alert{}, false, wrapErr(fmt.Sprintf("insert %s alert", a.Kind), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Alert{}, false, wrapErr("alert rows affected", err)
	}
	if n == 1 {
		return a, true, nil
	}

	existing, err := r.FindActive(ctx, a.EquipmentRef(), a.Kind)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// the conflicting row left the active set between the two statements
			return models.Alert{}, false, fmt.Errorf("insert %s alert: %w", a.Kind, models.ErrConflict)
		}
		return models.Alert{}, false, err
	}
	return existing, false, nil
}

func (r *AlertSQLite) Get(ctx context.Context, id string) (models.Alert, error) {
	a, err := scanAlert(r.db.QueryRowContext(ctx, selectAlertByIDSQL, id))
	if err != nil {
		return models.Alert{}, wrapErr(fmt.Sprintf("select alert %q", id), err)
	}
	return a, nil
}

func (r *AlertSQLite) FindActive(ctx context.Context, equipmentID string, kind models.AlertKind) (models.Alert, error) {
	a, err := scanAlert(r.db.QueryRowContext(ctx, selectActiveAlertSQL, equipmentID, string(kind)))
	if err != nil {
		return models.Alert{}, wrapErr(fmt.Sprintf("select active %s alert for %q", kind, equipmentID), err)
	}
	return a, nil
}

// List returns alerts matching f, newest first.
func (r *AlertSQLite) List(ctx context.Context, f AlertFilter) ([]models.Alert, error) {
	var (
		conds []string
		args  []any
	)
	if f.EquipmentID != "" {
		conds = append(conds, "equipment_id = ?")
		args = append(args, f.EquipmentID)
	}
	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if len(f.States) > 0 {
		ph := make([]string, len(f.States))
		for i, s := range f.States {
			ph[i] = "?"
			args = append(args, string(s))
		}
		conds = append(conds, "state IN ("+strings.Join(ph, ", ")+")")
	}

	q := `SELECT ` + alertColumns + ` FROM alerts`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY raised_at DESC, id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapErr("list alerts", err)
	}
	defer rows.Close()

	out := make([]models.Alert, 0, 16)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, wrapErr("scan alert", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate alerts", err)
	}
	return out, nil
}

// Transition is a compare-and-set on state. If the stored state is no longer
// from, nothing is written and ErrInvalidTransition is returned.
func (r *AlertSQLite) Transition(ctx context.Context, a models.Alert, from models.AlertState) error {
	op := fmt.Sprintf("transition alert %q %s->%s", a.ID, from, a.State)
	res, err := r.db.ExecContext(ctx, transitionAlertSQL,
		string(a.State),
		utcPtr(a.AcknowledgedAt),
		a.AcknowledgedBy,
		utcPtr(a.ResolvedAt),
		a.ResolutionNotes,
		a.ID,
		string(from),
	)
	if err != nil {
		return wrapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr(op, err)
	}
	if n == 1 {
		return nil
	}
	if _, err := r.Get(ctx, a.ID); err != nil {
		return err
	}
	return fmt.Errorf("%s: %w", op, models.ErrInvalidTransition)
}

// DetachEquipment nulls the equipment reference on every alert of equipmentID.
// Rows and their lifecycle fields are kept.
func (r *AlertSQLite) DetachEquipment(ctx context.Context, equipmentID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, detachAlertsSQL, equipmentID)
	if err != nil {
		return 0, wrapErr(fmt.Sprintf("detach alerts of %q", equipmentID), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("detach alerts rows affected", err)
	}
	return n, nil
}

func (r *AlertSQLite) Stats(ctx context.Context) (models.AlertStats, error) {
	var s models.AlertStats
	err := r.db.QueryRowContext(ctx, alertStatsSQL).Scan(&s.Total, &s.Open, &s.Acknowledged, &s.CriticalOpen)
	if err != nil {
		return models.AlertStats{}, wrapErr("alert stats", err)
	}
	return s, nil
}

func scanAlert(s rowScanner) (models.Alert, error) {
	var (
		a              models.Alert
		equipmentID    sql.NullString
		kind, severity string
		state          string
		ackAt, resAt   sql.NullTime
		ackBy, notes   sql.NullString
	)
	if err := s.Scan(
		&a.ID, &equipmentID, &kind, &severity, &a.Message, &state, &a.RaisedAt,
		&ackAt, &ackBy, &resAt, &notes,
	); err != nil {
		return models.Alert{}, err
	}
	a.Kind = models.AlertKind(kind)
	a.Severity = models.Severity(severity)
	a.State = models.AlertState(state)
	a.RaisedAt = a.RaisedAt.UTC()
	a.EquipmentID = stringPtr(equipmentID)
	a.AcknowledgedBy = stringPtr(ackBy)
	a.ResolutionNotes = stringPtr(notes)
	a.AcknowledgedAt = timePtr(ackAt)
	a.ResolvedAt = timePtr(resAt)
	return a, nil
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
