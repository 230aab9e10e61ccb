package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/phyn2-2/medasset-sentinel/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
)

var alertCols = []string{
	"id", "equipment_id", "kind", "severity", "message", "state", "raised_at",
	"acknowledged_at", "acknowledged_by", "resolved_at", "resolution_notes",
}

func newAlertMock(t *testing.T) (*AlertSQLite, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sqlmock expectations: %v", err)
		}
		_ = db.Close()
	})
	return NewAlertSQLite(db), mock
}

func openAlert(id, equipmentID string, raised time.Time) models.Alert {
	return models.Alert{
		ID:          id,
		EquipmentID: &equipmentID,
		Kind:        models.KindMaintenanceOverdue,
		Severity:    models.SeverityCritical,
		Message:     "maintenance overdue",
		State:       models.AlertOpen,
		RaisedAt:    raised,
	}
}

func TestAlertSQLite_InsertIfAbsent_Created(t *testing.T) {
	repo, mock := newAlertMock(t)
	raised := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	a := openAlert("a1", "eq1", raised)

	mock.ExpectExec(regexp.QuoteMeta(insertAlertIfAbsentSQL)).
		WithArgs("a1", "eq1", "MAINTENANCE_OVERDUE", "CRITICAL", "maintenance overdue", "OPEN",
			raised, nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, created, err := repo.InsertIfAbsent(context.Background(), a)
	if err != nil {
		t.Fatalf("InsertIfAbsent: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true")
	}
	if got.ID != "a1" {
		t.Fatalf("got id %q, want a1", got.ID)
	}
}

func TestAlertSQLite_InsertIfAbsent_ReturnsExisting(t *testing.T) {
	repo, mock := newAlertMock(t)
	earlier := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(insertAlertIfAbsentSQL)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(selectActiveAlertSQL)).
		WithArgs("eq1", "MAINTENANCE_OVERDUE").
		WillReturnRows(sqlmock.NewRows(alertCols).
			AddRow("a0", "eq1", "MAINTENANCE_OVERDUE", "CRITICAL", "maintenance overdue", "ACKNOWLEDGED",
				earlier, earlier, "nurse.kim", nil, nil))

	got, created, err := repo.InsertIfAbsent(context.Background(), openAlert("a1", "eq1", time.Now()))
	if err != nil {
		t.Fatalf("InsertIfAbsent: %v", err)
	}
	if created {
		t.Fatalf("expected created=false for duplicate")
	}
	if got.ID != "a0" || got.State != models.AlertAcknowledged {
		t.Fatalf("expected existing alert a0/ACKNOWLEDGED, got %s/%s", got.ID, got.State)
	}
	if got.AcknowledgedBy == nil || *got.AcknowledgedBy != "nurse.kim" {
		t.Fatalf("acknowledged_by not scanned: %+v", got.AcknowledgedBy)
	}
}

func TestAlertSQLite_Transition_StaleStateIsInvalid(t *testing.T) {
	repo, mock := newAlertMock(t)
	now := time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC)
	notes := "replaced filter"
	a := openAlert("a1", "eq1", now.Add(-time.Hour))
	a.State = models.AlertResolved
	a.ResolvedAt = &now
	a.ResolutionNotes = &notes

	mock.ExpectExec(regexp.QuoteMeta(transitionAlertSQL)).
		WithArgs("RESOLVED", nil, nil, now, notes, "a1", "OPEN").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(selectAlertByIDSQL)).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows(alertCols).
			AddRow("a1", "eq1", "MAINTENANCE_OVERDUE", "CRITICAL", "m", "RESOLVED",
				now, nil, nil, now, "first"))

	err := repo.Transition(context.Background(), a, models.AlertOpen)
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestAlertSQLite_Transition_UnknownIsNotFound(t *testing.T) {
	repo, mock := newAlertMock(t)
	a := openAlert("missing", "eq1", time.Now())
	a.State = models.AlertAcknowledged

	mock.ExpectExec(regexp.QuoteMeta(transitionAlertSQL)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(selectAlertByIDSQL)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(alertCols))

	err := repo.Transition(context.Background(), a, models.AlertOpen)
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAlertSQLite_List_BuildsFilter(t *testing.T) {
	repo, mock := newAlertMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT `+alertColumns+` FROM alerts WHERE equipment_id = ? AND state IN (?, ?) ORDER BY raised_at DESC, id DESC LIMIT ?`)).
		WithArgs("eq1", "OPEN", "ACKNOWLEDGED", 10).
		WillReturnRows(sqlmock.NewRows(alertCols).
			AddRow("a2", nil, "EQUIPMENT_FAILURE", "CRITICAL", "m", "OPEN", time.Now(), nil, nil, nil, nil))

	out, err := repo.List(context.Background(), AlertFilter{
		EquipmentID: "eq1",
		States:      models.ActiveAlertStates,
		Limit:       10,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(out) != 1 || out[0].EquipmentID != nil {
		t.Fatalf("unexpected rows: %+v", out)
	}
}

func TestAlertSQLite_Stats(t *testing.T) {
	repo, mock := newAlertMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(alertStatsSQL)).
		WillReturnRows(sqlmock.NewRows([]string{"total", "open", "ack", "crit"}).AddRow(9, 3, 2, 4))

	s, err := repo.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := models.AlertStats{Total: 9, Open: 3, Acknowledged: 2, CriticalOpen: 4}
	if s != want {
		t.Fatalf("stats: want %+v, got %+v", want, s)
	}
}
