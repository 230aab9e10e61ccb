package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens/creates a SQLite DB file and ensures tables exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// Conservative pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is not great with many writers
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Fail fast if the DB cannot be reached
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

const sqliteDriverName = "sqlite"

// Foreign keys carry no ON DELETE action: equipment deletion runs explicit
// cascade/detach steps inside one transaction.
const schemaEquipment = `
CREATE TABLE IF NOT EXISTS equipment (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    serial_number TEXT NOT NULL UNIQUE,
    category TEXT NOT NULL,
    location TEXT,
    manufacturer TEXT,
    maintenance_interval_s INTEGER NOT NULL CHECK (maintenance_interval_s > 0),
    last_maintenance_at TIMESTAMP,
    operational_status TEXT NOT NULL
        CHECK (operational_status IN ('OPERATIONAL', 'FAILED', 'UNDER_MAINTENANCE')),
    active BOOLEAN NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const indexEquipmentActive = `
CREATE INDEX IF NOT EXISTS ix_equipment_active ON equipment (active);
`

const schemaMaintenanceLogs = `
CREATE TABLE IF NOT EXISTS maintenance_logs (
    id TEXT PRIMARY KEY,
    equipment_id TEXT NOT NULL REFERENCES equipment (id),
    performed_at TIMESTAMP NOT NULL,
    technician TEXT NOT NULL,
    notes TEXT,
    addressed_failure BOOLEAN NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);
`

const indexMaintenanceLogs = `
CREATE INDEX IF NOT EXISTS ix_maintenance_logs_equipment
    ON maintenance_logs (equipment_id, performed_at);
`

const schemaSensorEvents = `
CREATE TABLE IF NOT EXISTS sensor_events (
    id TEXT PRIMARY KEY,
    equipment_id TEXT NOT NULL REFERENCES equipment (id),
    metric TEXT NOT NULL,
    value REAL NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
`

const indexSensorEvents = `
CREATE INDEX IF NOT EXISTS ix_sensor_events_equipment
    ON sensor_events (equipment_id, recorded_at);
`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    equipment_id TEXT REFERENCES equipment (id),
    kind TEXT NOT NULL
        CHECK (kind IN ('MAINTENANCE_OVERDUE', 'EQUIPMENT_FAILURE', 'MAINTENANCE_UPCOMING')),
    severity TEXT NOT NULL,
    message TEXT NOT NULL,
    state TEXT NOT NULL CHECK (state IN ('OPEN', 'ACKNOWLEDGED', 'RESOLVED')),
    raised_at TIMESTAMP NOT NULL,
    acknowledged_at TIMESTAMP,
    acknowledged_by TEXT,
    resolved_at TIMESTAMP,
    resolution_notes TEXT
);
`

// At most one non-terminal alert per (equipment, kind).
const indexAlertsActive = `
CREATE UNIQUE INDEX IF NOT EXISTS ux_alerts_active
    ON alerts (equipment_id, kind)
    WHERE state IN ('OPEN', 'ACKNOWLEDGED');
`

const indexAlertsState = `
CREATE INDEX IF NOT EXISTS ix_alerts_state ON alerts (state, raised_at);
`

const triggerAlertsNoDelete = `
CREATE TRIGGER IF NOT EXISTS trg_alerts_no_delete
BEFORE DELETE ON alerts
BEGIN
    SELECT RAISE(ABORT, 'alerts are append-only');
END;
`

const triggerAlertsResolvedImmutable = `
CREATE TRIGGER IF NOT EXISTS trg_alerts_resolved_immutable
BEFORE UPDATE ON alerts
WHEN OLD.state = 'RESOLVED' AND (
    NEW.state IS NOT OLD.state
    OR NEW.resolved_at IS NOT OLD.resolved_at
    OR NEW.resolution_notes IS NOT OLD.resolution_notes
)
BEGIN
    SELECT RAISE(ABORT, 'resolved alerts are immutable');
END;
`

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL,
    active BOOLEAN NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL
);
`

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		// In case of panic, rollback to avoid leaving an open transaction
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{
		schemaEquipment,
		indexEquipmentActive,
		schemaMaintenanceLogs,
		indexMaintenanceLogs,
		schemaSensorEvents,
		indexSensorEvents,
		schemaAlerts,
		indexAlertsActive,
		indexAlertsState,
		triggerAlertsNoDelete,
		triggerAlertsResolvedImmutable,
		schemaUsers,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
