package handlers

import (
	"net/http"

	"growzzy/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// InsightHandler 优化建议
type InsightHandler struct {
	engine *services.OptimizationEngine
	logger *logrus.Logger
}

func NewInsightHandler(engine *services.OptimizationEngine, logger *logrus.Logger) *InsightHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &InsightHandler{engine: engine, logger: logger}
}

// List open insights; ?dismissed=true includes dismissed ones.
func (h *InsightHandler) List(c *gin.Context) {
	owner, ok := ownerOrAbort(c)
	if !ok {
		return
	}
	list, err := h.engine.ListInsights(c.Request.Context(), owner, c.Query("dismissed") == "true")
	if err != nil {
		writeError(c, h.logger, "Failed to list insights", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"insights": list})
}

// Generate runs one optimization pass over the owner's active campaigns.
func (h *InsightHandler) Generate(c *gin.Context) {
	owner, ok := ownerOrAbort(c)
	if !ok {
		return
	}
	reports, err := h.engine.Run(c.Request.Context(), owner)
	if err != nil {
		writeError(c, h.logger, "Failed to generate insights", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": reports})
}

// Dismiss 忽略建议
func (h *InsightHandler) Dismiss(c *gin.Context) {
	owner, ok := ownerOrAbort(c)
	if !ok {
		return
	}
	if err := h.engine.DismissInsight(c.Request.Context(), owner, c.Param("id")); err != nil {
		writeError(c, h.logger, "Failed to dismiss insight", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "dismissed"})
}

func RegisterInsightRoutes(r *gin.RouterGroup, handler *InsightHandler) {
	g := r.Group("/insights")
	{
		g.GET("", handler.List)
		g.POST("/generate", handler.Generate)
		g.POST("/:id/dismiss", handler.Dismiss)
	}
}
