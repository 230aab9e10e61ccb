package handlers

import (
	"context"
	"net/http"
	"sync"

	"github.com/phyn2-2/medasset-sentinel/internal/models"
	"github.com/phyn2-2/medasset-sentinel/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastToken          string
}

func (m *mockAuth) SignUp(ctx context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(ctx context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) Authenticate(ctx context.Context, token string) (int, error) {
	m.lastToken = token
	return m.parseID, m.parseErr
}
func (m *mockAuth) SetOperatorActive(ctx context.Context, username string, active bool) error {
	return nil
}

type mockRegistry struct {
	view    service.EquipmentView
	list    []service.EquipmentView
	report  service.DeletionReport
	err     error
	getErr  error
	lastID  string
	lastP   service.EquipmentParams
	lastQ   service.EquipmentQuery
	created int
}

func (m *mockRegistry) CreateEquipment(ctx context.Context, p service.EquipmentParams) (service.EquipmentView, error) {
	m.created++
	m.lastP = p
	return m.view, m.err
}
func (m *mockRegistry) GetEquipment(ctx context.Context, id string) (service.EquipmentView, error) {
	m.lastID = id
	return m.view, m.getErr
}
func (m *mockRegistry) ListEquipment(ctx context.Context, q service.EquipmentQuery) ([]service.EquipmentView, error) {
	m.lastQ = q
	return m.list, m.err
}
func (m *mockRegistry) UpdateEquipment(ctx context.Context, id string, p service.EquipmentParams) (service.EquipmentView, error) {
	m.lastID = id
	m.lastP = p
	return m.view, m.err
}
func (m *mockRegistry) DeleteEquipment(ctx context.Context, id string) (service.DeletionReport, error) {
	m.lastID = id
	return m.report, m.err
}

type mockMaintenance struct {
	result    service.MaintenanceResult
	equipment models.Equipment
	logs      []models.MaintenanceLog
	err       error
	lastP     service.MaintenanceParams
	lastID    string
	lastLimit int
}

func (m *mockMaintenance) PerformMaintenance(ctx context.Context, p service.MaintenanceParams) (service.MaintenanceResult, error) {
	m.lastP = p
	return m.result, m.err
}
func (m *mockMaintenance) StartMaintenance(ctx context.Context, equipmentID string) (models.Equipment, error) {
	m.lastID = equipmentID
	return m.equipment, m.err
}
func (m *mockMaintenance) MaintenanceHistory(ctx context.Context, equipmentID string, limit int) ([]models.MaintenanceLog, error) {
	m.lastID = equipmentID
	m.lastLimit = limit
	return m.logs, m.err
}
func (m *mockMaintenance) RecentMaintenance(ctx context.Context, limit int) ([]models.MaintenanceLog, error) {
	m.lastLimit = limit
	return m.logs, m.err
}

// mockAlerts is also called from the /ws writer goroutine, so every
// recorded field is guarded by mu.
type mockAlerts struct {
	alert     models.Alert
	list      []models.Alert
	stats     models.AlertStats
	err       error
	lastID    string
	lastBy    string
	lastNotes string
	lastQ     service.AlertQuery
	lastLimit int
	openCalls int

	mu sync.Mutex
}

func (m *mockAlerts) Raise(ctx context.Context, equipmentID string, kind models.AlertKind) (models.Alert, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alert, true, m.err
}
func (m *mockAlerts) AcknowledgeAlert(ctx context.Context, alertID, by string) (models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastID = alertID
	m.lastBy = by
	return m.alert, m.err
}
func (m *mockAlerts) ResolveAlert(ctx context.Context, alertID, notes string) (models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastID = alertID
	m.lastNotes = notes
	return m.alert, m.err
}
func (m *mockAlerts) GetAlert(ctx context.Context, id string) (models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastID = id
	return m.alert, m.err
}
func (m *mockAlerts) ListOpenAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	m.openCalls++
	return m.list, m.err
}
func (m *mockAlerts) ListAlerts(ctx context.Context, q service.AlertQuery) ([]models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQ = q
	return m.list, m.err
}
func (m *mockAlerts) AlertStats(ctx context.Context) (models.AlertStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats, m.err
}

// openListing returns the last ListOpenAlerts limit and the call count.
func (m *mockAlerts) openListing() (limit, calls int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastLimit, m.openCalls
}

type mockJobs struct {
	report     service.RunReport
	err        error
	sweepCalls int
	tickCalls  int
}

func (m *mockJobs) TriggerSweepNow(ctx context.Context) (service.RunReport, error) {
	m.sweepCalls++
	return m.report, m.err
}
func (m *mockJobs) TriggerTickNow(ctx context.Context) (service.RunReport, error) {
	m.tickCalls++
	return m.report, m.err
}

type mockTelemetry struct {
	events []models.SensorEvent
	latest models.SensorEvent
	err    error
	lastID string
	lastQ  service.TelemetryQuery
}

func (m *mockTelemetry) SensorHistory(ctx context.Context, equipmentID string, q service.TelemetryQuery) ([]models.SensorEvent, error) {
	m.lastID = equipmentID
	m.lastQ = q
	return m.events, m.err
}
func (m *mockTelemetry) LatestReading(ctx context.Context, equipmentID string) (models.SensorEvent, error) {
	m.lastID = equipmentID
	return m.latest, m.err
}

type mockMonitoring struct {
	overview service.Overview
	err      error
}

func (m *mockMonitoring) Overview(ctx context.Context) (service.Overview, error) {
	return m.overview, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

// withAuth fills in a mock that accepts any bearer token as user 1.
func withAuth(s *service.Service) *service.Service {
	if s.Authorization == nil {
		s.Authorization = &mockAuth{parseID: 1}
	}
	return s
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
