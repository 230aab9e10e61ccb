package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/phyn2-2/medasset-sentinel/internal/models"
	"github.com/phyn2-2/medasset-sentinel/internal/service"

	"github.com/gin-gonic/gin"
)

// AcknowledgeRequest names who acknowledged. Empty means the signed-in user.
type AcknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledged_by,omitempty" example:"nurse.kim"`
}

// ResolveRequest carries optional resolution notes.
type ResolveRequest struct {
	Notes string `json:"notes,omitempty" example:"battery replaced"`
}

// @Summary      List alerts
// @Tags         alerts
// @Produce      json
// @Param        equipment_id  query     string  false  "Equipment ID"
// @Param        kind          query     string  false  "Alert kind"  Enums(MAINTENANCE_OVERDUE,EQUIPMENT_FAILURE,MAINTENANCE_UPCOMING)
// @Param        state         query     string  false  "Alert state"  Enums(OPEN,ACKNOWLEDGED,RESOLVED)
// @Param        limit         query     int     false  "Max entries"
// @Success      200           {object}  map[string]interface{}  "count, alerts"
// @Failure      400           {object}  errorResponse
// @Router       /api/v1/alerts [get]
// @Security     BearerAuth
func (h *Handler) listAlerts(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	h.writeAlerts(c, service.AlertQuery{
		EquipmentID: c.Query("equipment_id"),
		Kind:        models.AlertKind(strings.ToUpper(strings.TrimSpace(c.Query("kind")))),
		State:       models.AlertState(strings.ToUpper(strings.TrimSpace(c.Query("state")))),
		Limit:       limit,
	})
}

// @Summary      List one equipment's alerts
// @Tags         alerts
// @Produce      json
// @Param        id     path      string  true   "Equipment ID"
// @Param        state  query     string  false  "Alert state"  Enums(OPEN,ACKNOWLEDGED,RESOLVED)
// @Success      200    {object}  map[string]interface{}  "count, alerts"
// @Failure      404    {object}  errorResponse
// @Router       /api/v1/equipment/{id}/alerts [get]
// @Security     BearerAuth
func (h *Handler) equipmentAlerts(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.services.GetEquipment(c.Request.Context(), id); err != nil {
		h.respondError(c, "equipment_alerts_failed", err, "equipment_id", id)
		return
	}
	h.writeAlerts(c, service.AlertQuery{
		EquipmentID: id,
		State:       models.AlertState(strings.ToUpper(strings.TrimSpace(c.Query("state")))),
	})
}

func (h *Handler) writeAlerts(c *gin.Context, q service.AlertQuery) {
	alerts, err := h.services.ListAlerts(c.Request.Context(), q)
	if err != nil {
		h.respondError(c, "alerts_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

// @Summary      List open alerts
// @Description  OPEN and ACKNOWLEDGED alerts, newest first.
// @Tags         alerts
// @Produce      json
// @Param        limit  query     int  false  "Max entries"
// @Success      200    {object}  map[string]interface{}  "count, alerts"
// @Router       /api/v1/alerts/open [get]
// @Security     BearerAuth
func (h *Handler) openAlerts(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	alerts, err := h.services.ListOpenAlerts(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, "alerts_open_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

// @Summary      Alert statistics
// @Tags         alerts
// @Produce      json
// @Success      200  {object}  models.AlertStats
// @Router       /api/v1/alerts/stats [get]
// @Security     BearerAuth
func (h *Handler) alertStats(c *gin.Context) {
	stats, err := h.services.AlertStats(c.Request.Context())
	if err != nil {
		h.respondError(c, "alerts_stats_failed", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// @Summary      Get alert
// @Tags         alerts
// @Produce      json
// @Param        id   path      string  true  "Alert ID"
// @Success      200  {object}  models.Alert
// @Failure      404  {object}  errorResponse
// @Router       /api/v1/alerts/{id} [get]
// @Security     BearerAuth
func (h *Handler) getAlert(c *gin.Context) {
	a, err := h.services.GetAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "alert_get_failed", err, "alert_id", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Summary      Acknowledge alert
// @Tags         alerts
// @Accept       json
// @Produce      json
// @Param        id    path      string              true   "Alert ID"
// @Param        body  body      AcknowledgeRequest  false  "Acknowledger"
// @Success      200   {object}  models.Alert
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /api/v1/alerts/{id}/acknowledge [post]
// @Security     BearerAuth
func (h *Handler) acknowledgeAlert(c *gin.Context) {
	var req AcknowledgeRequest
	if ok := h.bindOptionalJSON(c, &req); !ok {
		return
	}
	by := strings.TrimSpace(req.AcknowledgedBy)
	if by == "" {
		if uid, ok := c.Get(ctxUserID); ok {
			by = fmt.Sprintf("user:%v", uid)
		}
	}
	a, err := h.services.AcknowledgeAlert(c.Request.Context(), c.Param("id"), by)
	if err != nil {
		h.respondError(c, "alert_acknowledge_failed", err, "alert_id", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Summary      Resolve alert
// @Description  RESOLVED is terminal; resolving again returns 409.
// @Tags         alerts
// @Accept       json
// @Produce      json
// @Param        id    path      string          true   "Alert ID"
// @Param        body  body      ResolveRequest  false  "Notes"
// @Success      200   {object}  models.Alert
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /api/v1/alerts/{id}/resolve [post]
// @Security     BearerAuth
func (h *Handler) resolveAlert(c *gin.Context) {
	var req ResolveRequest
	if ok := h.bindOptionalJSON(c, &req); !ok {
		return
	}
	a, err := h.services.ResolveAlert(c.Request.Context(), c.Param("id"), req.Notes)
	if err != nil {
		h.respondError(c, "alert_resolve_failed", err, "alert_id", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, a)
}

// bindOptionalJSON binds the body only when one was sent.
func (h *Handler) bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return h.bindJSONOrBadRequest(c, dst)
}
