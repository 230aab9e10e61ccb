package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/phyn2-2/medasset-sentinel/internal/models"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// EquipmentFilter narrows List; zero values mean "any".
type EquipmentFilter struct {
	Active   *bool
	Status   models.OperationalStatus
	Category string
}

type EquipmentRepo interface {
	Create(ctx context.Context, e models.Equipment) error
	Get(ctx context.Context, id string) (models.Equipment, error)
	GetBySerial(ctx context.Context, serial string) (models.Equipment, error)
	List(ctx context.Context, f EquipmentFilter) ([]models.Equipment, error)
	Update(ctx context.Context, e models.Equipment) error
	UpdateStatus(ctx context.Context, id string, status models.OperationalStatus, at time.Time) error
	MarkMaintained(ctx context.Context, id string, at time.Time, status models.OperationalStatus) error
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[models.OperationalStatus]int, error)
}

type MaintenanceLogRepo interface {
	Append(ctx context.Context, l models.MaintenanceLog) error
	ListByEquipment(ctx context.Context, equipmentID string, limit int) ([]models.MaintenanceLog, error)
	ListRecent(ctx context.Context, limit int) ([]models.MaintenanceLog, error)
	DeleteByEquipment(ctx context.Context, equipmentID string) (int64, error)
	Count(ctx context.Context) (int, error)
}

// SensorEventFilter selects telemetry history; From/To are inclusive.
type SensorEventFilter struct {
	EquipmentID string
	Metric      string
	From        time.Time
	To          time.Time
	Limit       int
}

type SensorEventRepo interface {
	Append(ctx context.Context, e models.SensorEvent) error
	List(ctx context.Context, f SensorEventFilter) ([]models.SensorEvent, error)
	Latest(ctx context.Context, equipmentID string) (models.SensorEvent, error)
	DeleteByEquipment(ctx context.Context, equipmentID string) (int64, error)
}

type AlertFilter struct {
	EquipmentID string
	Kind        models.AlertKind
	States      []models.AlertState
	Limit       int
}

// AlertRepo deliberately has no Delete.
type AlertRepo interface {
	// InsertIfAbsent inserts a when no active alert exists for its
	// (equipment, kind); otherwise it returns the existing one and false.
	InsertIfAbsent(ctx context.Context, a models.Alert) (models.Alert, bool, error)
	Get(ctx context.Context, id string) (models.Alert, error)
	FindActive(ctx context.Context, equipmentID string, kind models.AlertKind) (models.Alert, error)
	List(ctx context.Context, f AlertFilter) ([]models.Alert, error)
	// Transition writes a's lifecycle fields only if the stored state is still from.
	Transition(ctx context.Context, a models.Alert, from models.AlertState) error
	DetachEquipment(ctx context.Context, equipmentID string) (int64, error)
	Stats(ctx context.Context) (models.AlertStats, error)
}

// OperatorRepo persists operator accounts. Lookups of unknown operators are ErrNotFound.
type OperatorRepo interface {
	Create(ctx context.Context, u models.User) (int, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
	GetByID(ctx context.Context, id int) (models.User, error)
	SetActive(ctx context.Context, username string, active bool) error
}

type Repository struct {
	Equipment       EquipmentRepo
	MaintenanceLogs MaintenanceLogRepo
	SensorEvents    SensorEventRepo
	Alerts          AlertRepo
	Operators       OperatorRepo
}

func NewRepository(db DBTX) *Repository {
	return &Repository{
		Equipment:       NewEquipmentSQLite(db),
		MaintenanceLogs: NewMaintenanceLogSQLite(db),
		SensorEvents:    NewSensorEventSQLite(db),
		Alerts:          NewAlertSQLite(db),
		Operators:       NewOperatorSQLite(db),
	}
}

// Store is the record store contract consumed by the engine. Multi-row
// changes go through InTx so they commit or roll back as one unit.
type Store interface {
	Repos() *Repository
	InTx(ctx context.Context, fn func(r *Repository) error) error
}

type SQLStore struct {
	db    *sql.DB
	repos *Repository
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, repos: NewRepository(db)}
}

// Repos returns repositories bound to the pool (outside any transaction).
func (s *SQLStore) Repos() *Repository { return s.repos }

// InTx runs fn inside a transaction. fn must only use the repositories it is
// given; the pool holds a single connection.
func (s *SQLStore) InTx(ctx context.Context, fn func(r *Repository) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin transaction", err)
	}
	defer func() {
		// no-op after a successful commit
		_ = tx.Rollback()
	}()

	if err := fn(NewRepository(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrapErr("commit transaction", err)
	}
	return nil
}
