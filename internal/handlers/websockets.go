package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/phyn2-2/medasset-sentinel/internal/models"
	"github.com/phyn2-2/medasset-sentinel/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMsgSize      = 1 << 12 // 4 KB
	defaultInterval = 2 * time.Second
	minInterval     = 500 * time.Millisecond
	maxInterval     = time.Minute

	wsOpenAlertsLimit = 50
)

// wsEnvelope wraps every frame pushed on /ws.
type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// wsOverview is the payload of an "overview" frame.
type wsOverview struct {
	Overview   service.Overview `json:"overview"`
	OpenAlerts []models.Alert   `json:"open_alerts"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origins once the dashboard host is fixed in config
}

// @Summary      Live overview stream
// @Description  Pushes {"type":"overview","data":{"overview":...,"open_alerts":[...]}} every interval.
// @Tags         monitoring
// @Param        interval     query  string  false  "Push interval as a Go duration"  example(5s)
// @Param        interval_ms  query  int     false  "Push interval in milliseconds"
// @Router       /ws [get]
func (h *Handler) wsConnect(c *gin.Context) {
	interval := h.parseInterval(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go h.startReader(conn, done)

	ticker := time.NewTicker(interval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ping.Stop()
	}()

	ctx := c.Request.Context()
	if err := h.sendOverview(ctx, conn); err != nil {
		if h.log != nil {
			h.log.Infow("ws_write_failed_initial", "err", err)
		}
		return
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "err", err)
				}
				return
			}
		case <-ticker.C:
			if err := h.sendOverview(ctx, conn); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "err", err)
				}
				return
			}
		}
	}
}

// parseInterval reads ?interval=2s or ?interval_ms=2000, clamped to
// [streamMin, maxInterval]. Unparseable values fall back to the default.
func (h *Handler) parseInterval(c *gin.Context) time.Duration {
	d := time.Duration(0)
	if s := c.Query("interval"); s != "" {
		if v, err := time.ParseDuration(s); err == nil && v > 0 {
			d = v
		}
	}
	if d == 0 {
		if ms := c.Query("interval_ms"); ms != "" {
			if v, err := strconv.Atoi(ms); err == nil && v > 0 {
				d = time.Duration(v) * time.Millisecond
			}
		}
	}
	switch {
	case d == 0:
		return h.streamDefault
	case d < h.streamMin:
		return h.streamMin
	case d > maxInterval:
		return maxInterval
	}
	return d
}

// startReader drains incoming messages to handle control frames and detect closure.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "err", err)
			}
			return
		}
	}
}

// sendOverview writes one frame. A failed read is reported to the client as
// an error frame; only write failures end the stream.
func (h *Handler) sendOverview(ctx context.Context, conn *websocket.Conn) error {
	msg := wsEnvelope{Type: "overview"}

	ov, err := h.services.Overview(ctx)
	if err == nil {
		var open []models.Alert
		open, err = h.services.ListOpenAlerts(ctx, wsOpenAlertsLimit)
		msg.Data = wsOverview{Overview: ov, OpenAlerts: open}
	}
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_overview_failed", "err", err)
		}
		msg = wsEnvelope{Type: "error", Error: errUnavailable}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
