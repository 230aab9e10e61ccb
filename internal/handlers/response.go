package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/phyn2-2/medasset-sentinel/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	statusOK           = "ok"
	errInvalidBodyPref = "invalid body: "
	errInternal        = "internal error"
	errUnavailable     = "store unavailable, retry later"
)

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error string `json:"error" example:"not found"`
}

// statusFor maps engine errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		if httpCode >= http.StatusInternalServerError {
			h.log.Errorw(logKey, fields...)
		} else {
			h.log.Infow(logKey, fields...)
		}
	}
	c.JSON(httpCode, errorResponse{Error: userMsg})
}

// respondError picks the status from err. Client errors echo the message;
// server errors hide it.
func (h *Handler) respondError(c *gin.Context, logKey string, err error, kv ...interface{}) {
	code := statusFor(err)
	msg := err.Error()
	switch code {
	case http.StatusInternalServerError:
		msg = errInternal
	case http.StatusServiceUnavailable:
		msg = errUnavailable
	}
	h.logAndJSONError(c, code, msg, logKey, err, kv...)
}

// bindJSONOrBadRequest tries to bind the request body into dst and writes a 400 JSON on failure.
// Returns false if the request was already handled.
func (h *Handler) bindJSONOrBadRequest(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.logAndJSONError(c, http.StatusBadRequest, errInvalidBodyPref+err.Error(), "bad_request_body", err, "path", c.FullPath())
		return false
	}
	return true
}

// queryLimit reads ?limit=N. Missing means 0 (service default).
func queryLimit(c *gin.Context) (int, bool) {
	s := c.Query("limit")
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid 'limit'; use a non-negative integer"})
		return 0, false
	}
	return n, true
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}
