package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/phyn2-2/medasset-sentinel/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	errFromInvalid = "invalid 'from' time; use RFC3339 or YYYY-MM-DD"
	errToInvalid   = "invalid 'to' time; use RFC3339 or YYYY-MM-DD"

	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"
)

// isDateOnly reports whether the query string represents a date without time component.
func isDateOnly(s string) bool {
	return !strings.ContainsAny(s, "T ")
}

// @Summary      Sensor history
// @Description  Readings in ascending time order. If 'to' is date-only, it is treated as end-of-day inclusive.
// @Tags         telemetry
// @Produce      json
// @Param        id      path      string  true   "Equipment ID"
// @Param        from    query     string  false  "Start of range (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD')"  example(2025-08-01)
// @Param        to      query     string  false  "End of range (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD')"  example(2025-08-31)
// @Param        metric  query     string  false  "Metric name"
// @Param        limit   query     int     false  "Max entries"
// @Success      200     {object}  map[string]interface{}  "count, events"
// @Failure      400     {object}  errorResponse
// @Failure      404     {object}  errorResponse
// @Router       /api/v1/equipment/{id}/telemetry [get]
// @Security     BearerAuth
func (h *Handler) sensorHistory(c *gin.Context) {
	var (
		q   = service.TelemetryQuery{Metric: strings.ToLower(strings.TrimSpace(c.Query("metric")))}
		err error
	)
	if qs := c.Query("from"); qs != "" {
		if q.From, err = parseQueryTime(qs); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: errFromInvalid})
			return
		}
	}
	if qs := c.Query("to"); qs != "" {
		if q.To, err = parseQueryTime(qs); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: errToInvalid})
			return
		}
		if isDateOnly(qs) {
			q.To = q.To.Add(24*time.Hour - time.Nanosecond).UTC()
		}
	}
	var ok bool
	if q.Limit, ok = queryLimit(c); !ok {
		return
	}

	events, err := h.services.SensorHistory(c.Request.Context(), c.Param("id"), q)
	if err != nil {
		h.respondError(c, "telemetry_list_failed", err, "equipment_id", c.Param("id"), "from", q.From, "to", q.To)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

// @Summary      Latest reading
// @Tags         telemetry
// @Produce      json
// @Param        id   path      string  true  "Equipment ID"
// @Success      200  {object}  models.SensorEvent
// @Failure      404  {object}  errorResponse
// @Router       /api/v1/equipment/{id}/telemetry/latest [get]
// @Security     BearerAuth
func (h *Handler) latestReading(c *gin.Context) {
	ev, err := h.services.LatestReading(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "telemetry_latest_failed", err, "equipment_id", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, ev)
}

func parseQueryTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, layoutDateTime, layoutDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf(
		"invalid time format %q, expected one of: "+
			"RFC3339 (e.g. 2025-08-27T15:04:05Z), "+
			"'YYYY-MM-DD HH:MM:SS', "+
			"'YYYY-MM-DD'",
		s,
	)
}
