package handlers

import (
	"net/http"
	"strconv"

	"growzzy/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AutomationHandler 自动化规则的增删查、手动执行与调度状态
type AutomationHandler struct {
	service *services.AutomationService
	feed    *services.ExecutionFeed
	logger  *logrus.Logger
}

func NewAutomationHandler(service *services.AutomationService, feed *services.ExecutionFeed, logger *logrus.Logger) *AutomationHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &AutomationHandler{service: service, feed: feed, logger: logger}
}

// RunRequest manual-run body.
type RunRequest struct {
	AutomationID string `json:"automationId" binding:"required"`
}

// ActiveRequest PATCH body.
type ActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// List 获取规则列表
func (h *AutomationHandler) List(c *gin.Context) {
	owner, ok := ownerOrAbort(c)
	if !ok {
		return
	}
	list, err := h.service.List(c.Request.Context(), owner)
	if err != nil {
		writeError(c, h.logger, "Failed to list automations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"automations": list})
}

// Create 创建规则
func (h *AutomationHandler) Create(c *gin.Context) {
	owner, ok := ownerOrAbort(c)
	if !ok {
		return
	}
	var req services.AutomationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	a, err := h.service.Create(c.Request.Context(), owner, &req)
	if err != nil {
		writeError(c, h.logger, "Failed to create automation", err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *AutomationHandler) Get(c *gin.Context) {
	owner, ok := ownerOrAbort(c)
	if !ok {
		return
	}
	a, err := h.service.Get(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "Failed to get automation", err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// SetActive 启用/停用
func (h *AutomationHandler) SetActive(c *gin.Context) {
	owner, ok := ownerOrAbort(c)
	if !ok {
		return
	}
	var req ActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	a, err := h.service.SetActive(c.Request.Context(), owner, c.Param("id"), *req.Active)
	if err != nil {
		writeError(c, h.logger, "Failed to update automation", err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// Delete 删除规则
func (h *AutomationHandler) Delete(c *gin.Context) {
	owner, ok := ownerOrAbort(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), owner, c.Param("id")); err != nil {
		writeError(c, h.logger, "Failed to delete automation", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

// RunByID POST /automations/:id/run
func (h *AutomationHandler) RunByID(c *gin.Context) {
	h.run(c, c.Param("id"))
}

// Run POST /automations/run {automationId}
func (h *AutomationHandler) Run(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	h.run(c, req.AutomationID)
}

func (h *AutomationHandler) run(c *gin.Context, id string) {
	owner, ok := ownerOrAbort(c)
	if !ok {
		return
	}
	out, err := h.service.RunNow(c.Request.Context(), owner, id)
	if err != nil {
		writeError(c, h.logger, "Failed to run automation", err)
		return
	}
	// a failed action is still a recorded execution
	c.JSON(http.StatusOK, out)
}

// Executions 执行记录
func (h *AutomationHandler) Executions(c *gin.Context) {
	owner, ok := ownerOrAbort(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := h.service.Executions(c.Request.Context(), owner, c.Param("id"), limit)
	if err != nil {
		writeError(c, h.logger, "Failed to list executions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": list})
}

// Status 调度状态
func (h *AutomationHandler) Status(c *gin.Context) {
	owner, ok := ownerOrAbort(c)
	if !ok {
		return
	}
	st, err := h.service.Status(c.Request.Context(), owner)
	if err != nil {
		writeError(c, h.logger, "Failed to get scheduler status", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Feed upgrades to a websocket receiving the owner's finished executions.
func (h *AutomationHandler) Feed(c *gin.Context) {
	owner, ok := ownerOrAbort(c)
	if !ok {
		return
	}
	if h.feed == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Feed unavailable", Message: "execution feed is disabled"})
		return
	}
	if err := h.feed.Serve(c.Writer, c.Request, owner); err != nil {
		h.logger.WithError(err).Debug("feed upgrade failed")
	}
}

// RegisterAutomationRoutes 注册路由
func RegisterAutomationRoutes(r *gin.RouterGroup, handler *AutomationHandler) {
	auto := r.Group("/automations")
	{
		auto.GET("", handler.List)
		auto.POST("", handler.Create)
		auto.POST("/run", handler.Run)
		auto.GET("/scheduler/status", handler.Status)
		auto.GET("/feed", handler.Feed)
		auto.GET("/:id", handler.Get)
		auto.PATCH("/:id", handler.SetActive)
		auto.DELETE("/:id", handler.Delete)
		auto.POST("/:id/run", handler.RunByID)
		auto.GET("/:id/executions", handler.Executions)
	}
}
