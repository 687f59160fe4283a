package handlers

import (
	"net/http"

	"growzzy/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// CronHandler scheduler tick invoked by the external cron trigger.
type CronHandler struct {
	service *services.AutomationService
	logger  *logrus.Logger
}

func NewCronHandler(service *services.AutomationService, logger *logrus.Logger) *CronHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &CronHandler{service: service, logger: logger}
}

// Tick 执行一个调度批次
func (h *CronHandler) Tick(c *gin.Context) {
	summary, err := h.service.Tick(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "Scheduler tick failed", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// RegisterCronRoutes mounts the tick on GET and POST; r must already carry CronAuth.
func RegisterCronRoutes(r *gin.RouterGroup, handler *CronHandler) {
	cron := r.Group("/cron")
	{
		cron.POST("/automations", handler.Tick)
		cron.GET("/automations", handler.Tick)
	}
}
