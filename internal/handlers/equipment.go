package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/phyn2-2/medasset-sentinel/internal/models"
	"github.com/phyn2-2/medasset-sentinel/internal/service"

	"github.com/gin-gonic/gin"
)

// EquipmentRequest is the create/update payload.
type EquipmentRequest struct {
	Name                    string     `json:"name" example:"Bedside monitor 12"`
	SerialNumber            string     `json:"serial_number" example:"PM-2024-0012"`
	Category                string     `json:"category" example:"patient_monitor"`
	Location                string     `json:"location,omitempty" example:"ICU-3"`
	Manufacturer            string     `json:"manufacturer,omitempty" example:"Philips"`
	MaintenanceIntervalDays float64    `json:"maintenance_interval_days" example:"30"`
	LastMaintenanceAt       *time.Time `json:"last_maintenance_at,omitempty"`
	Active                  *bool      `json:"active,omitempty"`
}

func (r EquipmentRequest) params() service.EquipmentParams {
	return service.EquipmentParams{
		Name:                r.Name,
		SerialNumber:        r.SerialNumber,
		Category:            r.Category,
		Location:            r.Location,
		Manufacturer:        r.Manufacturer,
		MaintenanceInterval: time.Duration(r.MaintenanceIntervalDays * float64(24*time.Hour)),
		LastMaintenanceAt:   r.LastMaintenanceAt,
		Active:              r.Active,
	}
}

// @Summary      Register equipment
// @Tags         equipment
// @Accept       json
// @Produce      json
// @Param        body  body      EquipmentRequest  true  "Equipment"
// @Success      201   {object}  service.EquipmentView
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /api/v1/equipment [post]
// @Security     BearerAuth
func (h *Handler) createEquipment(c *gin.Context) {
	var req EquipmentRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	v, err := h.services.CreateEquipment(c.Request.Context(), req.params())
	if err != nil {
		h.respondError(c, "equipment_create_failed", err, "serial_number", req.SerialNumber)
		return
	}
	c.JSON(http.StatusCreated, v)
}

// @Summary      List equipment
// @Description  Operational status and maintenance due-ness are separate fields.
// @Tags         equipment
// @Produce      json
// @Param        status            query     string  false  "Operational status"  Enums(OPERATIONAL,FAILED,UNDER_MAINTENANCE)
// @Param        category          query     string  false  "Category"
// @Param        due               query     bool    false  "Only equipment with maintenance due"
// @Param        include_inactive  query     bool    false  "Include soft-disabled equipment"
// @Success      200               {object}  map[string]interface{}  "count, equipment"
// @Failure      400               {object}  errorResponse
// @Router       /api/v1/equipment [get]
// @Security     BearerAuth
func (h *Handler) listEquipment(c *gin.Context) {
	q := service.EquipmentQuery{
		Status:   models.OperationalStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		Category: strings.ToLower(strings.TrimSpace(c.Query("category"))),
	}
	var ok bool
	if q.DueOnly, ok = queryBool(c, "due"); !ok {
		return
	}
	if q.IncludeInactive, ok = queryBool(c, "include_inactive"); !ok {
		return
	}

	list, err := h.services.ListEquipment(c.Request.Context(), q)
	if err != nil {
		h.respondError(c, "equipment_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":     len(list),
		"equipment": list,
	})
}

// @Summary      Get equipment
// @Tags         equipment
// @Produce      json
// @Param        id   path      string  true  "Equipment ID"
// @Success      200  {object}  service.EquipmentView
// @Failure      404  {object}  errorResponse
// @Router       /api/v1/equipment/{id} [get]
// @Security     BearerAuth
func (h *Handler) getEquipment(c *gin.Context) {
	v, err := h.services.GetEquipment(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "equipment_get_failed", err, "equipment_id", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, v)
}

// @Summary      Update equipment
// @Description  Rewrites registry fields; status and maintenance history are not editable.
// @Tags         equipment
// @Accept       json
// @Produce      json
// @Param        id    path      string            true  "Equipment ID"
// @Param        body  body      EquipmentRequest  true  "Equipment"
// @Success      200   {object}  service.EquipmentView
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /api/v1/equipment/{id} [put]
// @Security     BearerAuth
func (h *Handler) updateEquipment(c *gin.Context) {
	var req EquipmentRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	v, err := h.services.UpdateEquipment(c.Request.Context(), c.Param("id"), req.params())
	if err != nil {
		h.respondError(c, "equipment_update_failed", err, "equipment_id", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, v)
}

// @Summary      Delete equipment
// @Description  Deletes maintenance logs and sensor events; alerts are kept with a null equipment reference.
// @Tags         equipment
// @Produce      json
// @Param        id   path      string  true  "Equipment ID"
// @Success      200  {object}  service.DeletionReport
// @Failure      404  {object}  errorResponse
// @Router       /api/v1/equipment/{id} [delete]
// @Security     BearerAuth
func (h *Handler) deleteEquipment(c *gin.Context) {
	rep, err := h.services.DeleteEquipment(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "equipment_delete_failed", err, "equipment_id", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, rep)
}

// queryBool reads an optional boolean query parameter.
func queryBool(c *gin.Context, key string) (bool, bool) {
	s := c.Query(key)
	if s == "" {
		return false, true
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid '" + key + "'; use true or false"})
		return false, false
	}
	return b, true
}
