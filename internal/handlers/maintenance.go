package handlers

import (
	"net/http"

	"github.com/phyn2-2/medasset-sentinel/internal/service"

	"github.com/gin-gonic/gin"
)

// MaintenanceRequest records completed maintenance.
type MaintenanceRequest struct {
	Technician       string `json:"technician" example:"j.doe"`
	Notes            string `json:"notes,omitempty" example:"replaced battery pack"`
	AddressesFailure bool   `json:"addresses_failure,omitempty"`
}

// @Summary      Perform maintenance
// @Description  Appends a log, restarts the schedule, returns the equipment to service and resolves maintenance alerts (and the failure alert when addresses_failure is set).
// @Tags         maintenance
// @Accept       json
// @Produce      json
// @Param        id    path      string              true  "Equipment ID"
// @Param        body  body      MaintenanceRequest  true  "Maintenance"
// @Success      200   {object}  service.MaintenanceResult
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /api/v1/equipment/{id}/maintenance [post]
// @Security     BearerAuth
func (h *Handler) performMaintenance(c *gin.Context) {
	var req MaintenanceRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	res, err := h.services.PerformMaintenance(c.Request.Context(), service.MaintenanceParams{
		EquipmentID:      c.Param("id"),
		Technician:       req.Technician,
		Notes:            req.Notes,
		AddressesFailure: req.AddressesFailure,
	})
	if err != nil {
		h.respondError(c, "maintenance_perform_failed", err, "equipment_id", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Start maintenance
// @Description  Marks equipment UNDER_MAINTENANCE. FAILED equipment is rejected with 409.
// @Tags         maintenance
// @Produce      json
// @Param        id   path      string  true  "Equipment ID"
// @Success      200  {object}  models.Equipment
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Router       /api/v1/equipment/{id}/maintenance/start [post]
// @Security     BearerAuth
func (h *Handler) startMaintenance(c *gin.Context) {
	eq, err := h.services.StartMaintenance(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "maintenance_start_failed", err, "equipment_id", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, eq)
}

// @Summary      Maintenance history
// @Tags         maintenance
// @Produce      json
// @Param        id     path      string  true   "Equipment ID"
// @Param        limit  query     int     false  "Max entries"
// @Success      200    {object}  map[string]interface{}  "count, logs"
// @Failure      404    {object}  errorResponse
// @Router       /api/v1/equipment/{id}/maintenance [get]
// @Security     BearerAuth
func (h *Handler) maintenanceHistory(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	logs, err := h.services.MaintenanceHistory(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.respondError(c, "maintenance_history_failed", err, "equipment_id", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(logs),
		"logs":  logs,
	})
}

// @Summary      Recent maintenance
// @Tags         maintenance
// @Produce      json
// @Param        limit  query     int  false  "Max entries"
// @Success      200    {object}  map[string]interface{}  "count, logs"
// @Router       /api/v1/maintenance/recent [get]
// @Security     BearerAuth
func (h *Handler) recentMaintenance(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	logs, err := h.services.RecentMaintenance(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, "maintenance_recent_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(logs),
		"logs":  logs,
	})
}
