package handlers

import (
	"errors"
	"net/http"

	"github.com/phyn2-2/medasset-sentinel/internal/service"

	"github.com/gin-gonic/gin"
)

// @Summary      Run the maintenance sweep now
// @Description  Blocks until the sweep finishes and returns its report.
// @Tags         jobs
// @Produce      json
// @Success      200  {object}  service.RunReport
// @Failure      503  {object}  errorResponse
// @Router       /api/v1/jobs/sweep [post]
// @Security     BearerAuth
func (h *Handler) triggerSweep(c *gin.Context) {
	rep, err := h.services.TriggerSweepNow(c.Request.Context())
	h.writeReport(c, "job_sweep_failed", rep, err)
}

// @Summary      Run a telemetry tick now
// @Description  Blocks until the tick finishes and returns its report.
// @Tags         jobs
// @Produce      json
// @Success      200  {object}  service.RunReport
// @Failure      503  {object}  errorResponse
// @Router       /api/v1/jobs/tick [post]
// @Security     BearerAuth
func (h *Handler) triggerTick(c *gin.Context) {
	rep, err := h.services.TriggerTickNow(c.Request.Context())
	h.writeReport(c, "job_tick_failed", rep, err)
}

func (h *Handler) writeReport(c *gin.Context, logKey string, rep service.RunReport, err error) {
	switch {
	case errors.Is(err, service.ErrSchedulerStopped):
		h.logAndJSONError(c, http.StatusServiceUnavailable, "scheduler is shutting down", logKey, err)
	case err != nil:
		h.respondError(c, logKey, err)
	default:
		c.JSON(http.StatusOK, rep)
	}
}

// @Summary      Fleet overview
// @Tags         monitoring
// @Produce      json
// @Success      200  {object}  service.Overview
// @Failure      503  {object}  errorResponse
// @Router       /api/v1/overview [get]
// @Security     BearerAuth
func (h *Handler) getOverview(c *gin.Context) {
	ov, err := h.services.Overview(c.Request.Context())
	if err != nil {
		h.respondError(c, "overview_failed", err)
		return
	}
	c.JSON(http.StatusOK, ov)
}
