package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/phyn2-2/medasset-sentinel/internal/models"
	"github.com/phyn2-2/medasset-sentinel/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// --- parseInterval unit tests ---

func TestParseInterval(t *testing.T) {
	h := NewHandler(&service.Service{}, nil)

	cases := []struct {
		name string
		u    string
		want time.Duration
	}{
		{"default_when_missing", "/ws", 2 * time.Second},
		{"interval_string_valid", "/ws?interval=5s", 5 * time.Second},
		{"interval_ms_valid", "/ws?interval_ms=750", 750 * time.Millisecond},
		{"interval_below_min", "/ws?interval=200ms", 500 * time.Millisecond},
		{"interval_ms_below_min", "/ws?interval_ms=150", 500 * time.Millisecond},
		{"interval_too_large", "/ws?interval=5m", time.Minute},
		{"interval_ms_too_large", "/ws?interval_ms=120000", time.Minute},
		{"interval_invalid_string", "/ws?interval=bogus", 2 * time.Second},
		{"interval_negative", "/ws?interval=-1s", 2 * time.Second},
		{"interval_ms_invalid", "/ws?interval_ms=NaN", 2 * time.Second},
		{"both_present_interval_wins", "/ws?interval=3s&interval_ms=750", 3 * time.Second},
		{"both_present_invalid_interval_ms_used", "/ws?interval=bogus&interval_ms=750", 750 * time.Millisecond},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.u, nil)
			c, _ := gin.CreateTestContext(w)
			c.Request = req
			got := h.parseInterval(c)
			if got != tc.want {
				t.Fatalf("got %v, want %v for %s", got, tc.want, tc.u)
			}
		})
	}
}

func TestSetStreamIntervals(t *testing.T) {
	h := NewHandler(&service.Service{}, nil)

	h.SetStreamIntervals(5*time.Second, time.Second)
	if h.streamDefault != 5*time.Second || h.streamMin != time.Second {
		t.Fatalf("got default=%v min=%v", h.streamDefault, h.streamMin)
	}

	// zero keeps the current values
	h.SetStreamIntervals(0, 0)
	if h.streamDefault != 5*time.Second || h.streamMin != time.Second {
		t.Fatalf("zero overrode: default=%v min=%v", h.streamDefault, h.streamMin)
	}

	// default is never below the floor
	h.SetStreamIntervals(100*time.Millisecond, 0)
	if h.streamDefault != time.Second {
		t.Fatalf("default=%v, want raised to %v", h.streamDefault, time.Second)
	}
}

// --- websocket integration tests ---

type wsTestEnvelope struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func dialWS(t *testing.T, s *service.Service, query string) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(s, nil)
	h.SetStreamIntervals(0, 10*time.Millisecond)
	r.GET("/ws", h.wsConnect)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	u.Path = "/ws"
	u.RawQuery = query

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestWebSocket_OverviewStream_InitialAndPeriodic(t *testing.T) {
	eqID := "eq-1"
	mon := &mockMonitoring{overview: service.Overview{
		Equipment: service.EquipmentStats{Total: 3, Overdue: 1},
		Alerts:    models.AlertStats{Total: 2, Open: 1},
	}}
	alerts := &mockAlerts{list: []models.Alert{
		{ID: "a-1", EquipmentID: &eqID, Kind: models.KindMaintenanceOverdue, State: models.AlertOpen},
	}}
	conn := dialWS(t, &service.Service{Monitoring: mon, Alerts: alerts}, "interval_ms=20")

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var env wsTestEnvelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if env.Type != "overview" || len(env.Data) == 0 {
		t.Fatalf("bad envelope: %+v", env)
	}
	var payload wsOverview
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("unmarshal overview: %v", err)
	}
	if payload.Overview.Equipment.Total != 3 || payload.Overview.Equipment.Overdue != 1 {
		t.Fatalf("unexpected overview: %+v", payload.Overview)
	}
	if len(payload.OpenAlerts) != 1 || payload.OpenAlerts[0].ID != "a-1" {
		t.Fatalf("unexpected open alerts: %+v", payload.OpenAlerts)
	}
	if limit, _ := alerts.openListing(); limit != wsOpenAlertsLimit {
		t.Fatalf("ListOpenAlerts limit=%d, want %d", limit, wsOpenAlertsLimit)
	}

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	env = wsTestEnvelope{}
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read second: %v", err)
	}
	if env.Type != "overview" {
		t.Fatalf("expected type=overview, got %+v", env)
	}
	if _, calls := alerts.openListing(); calls < 2 {
		t.Fatalf("ListOpenAlerts calls=%d, want one per frame", calls)
	}
}

func TestWebSocket_ReadFailure_SendsErrorFrame(t *testing.T) {
	mon := &mockMonitoring{err: errors.New("boom")}
	conn := dialWS(t, &service.Service{Monitoring: mon, Alerts: &mockAlerts{}}, "")

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var env wsTestEnvelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Type != "error" || env.Error != errUnavailable {
		t.Fatalf("expected error frame, got %+v", env)
	}
}
