package handlers

import (
	"time"

	"github.com/phyn2-2/medasset-sentinel/internal/logger"
	"github.com/phyn2-2/medasset-sentinel/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger

	streamDefault time.Duration
	streamMin     time.Duration
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{
		services:      services,
		log:           log,
		streamDefault: defaultInterval,
		streamMin:     minInterval,
	}
}

// SetStreamIntervals overrides the /ws push cadence. Non-positive values keep
// the current setting; def is raised to floor when lower.
func (h *Handler) SetStreamIntervals(def, floor time.Duration) {
	if floor > 0 {
		h.streamMin = floor
	}
	if def > 0 {
		h.streamDefault = def
	}
	if h.streamDefault < h.streamMin {
		h.streamDefault = h.streamMin
	}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.metricsMiddleware)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", h.health)

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// live overview + open alerts on the same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		h.registerEquipmentRoutes(api)
		h.registerAlertRoutes(api)
		h.registerJobRoutes(api)
		api.GET("/overview", h.getOverview)
		api.GET("/maintenance/recent", h.recentMaintenance)
	}
}

func (h *Handler) registerEquipmentRoutes(api *gin.RouterGroup) {
	equipment := api.Group("/equipment")
	{
		equipment.POST("", h.createEquipment)
		equipment.GET("", h.listEquipment)
		equipment.GET("/:id", h.getEquipment)
		equipment.PUT("/:id", h.updateEquipment)
		equipment.DELETE("/:id", h.deleteEquipment)

		// Body example: {"technician":"j.doe","notes":"replaced battery","addresses_failure":true}
		equipment.POST("/:id/maintenance", h.performMaintenance)
		equipment.GET("/:id/maintenance", h.maintenanceHistory)
		equipment.POST("/:id/maintenance/start", h.startMaintenance)

		equipment.GET("/:id/telemetry", h.sensorHistory)
		equipment.GET("/:id/telemetry/latest", h.latestReading)
		equipment.GET("/:id/alerts", h.equipmentAlerts)
	}
}

func (h *Handler) registerAlertRoutes(api *gin.RouterGroup) {
	alerts := api.Group("/alerts")
	{
		alerts.GET("", h.listAlerts)
		alerts.GET("/open", h.openAlerts)
		alerts.GET("/stats", h.alertStats)
		alerts.GET("/:id", h.getAlert)
		alerts.POST("/:id/acknowledge", h.acknowledgeAlert)
		alerts.POST("/:id/resolve", h.resolveAlert)
	}
}

func (h *Handler) registerJobRoutes(api *gin.RouterGroup) {
	jobs := api.Group("/jobs")
	{
		jobs.POST("/sweep", h.triggerSweep)
		jobs.POST("/tick", h.triggerTick)
	}
}
