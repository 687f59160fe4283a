package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"growzzy/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Version reported by /health; set at build time by cmd.
var Version = "dev"

var startTime = time.Now()

// HealthHandler 健康检查
type HealthHandler struct {
	db         *gorm.DB
	connectors *services.ConnectorRegistry
	feed       *services.ExecutionFeed
}

func NewHealthHandler(db *gorm.DB, connectors *services.ConnectorRegistry, feed *services.ExecutionFeed) *HealthHandler {
	return &HealthHandler{db: db, connectors: connectors, feed: feed}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]ServiceInfo `json:"services"`
	System    SystemInfo             `json:"system"`
}

// ServiceInfo 服务信息
type ServiceInfo struct {
	Status  string      `json:"status"`
	Latency string      `json:"latency,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// SystemInfo 系统信息
type SystemInfo struct {
	Uptime    string `json:"uptime"`
	GoVersion string `json:"go_version"`
}

// Health 健康检查端点；数据库不可用时返回 503
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().UTC(),
		Services:  map[string]ServiceInfo{},
		System: SystemInfo{
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			GoVersion: runtime.Version(),
		},
	}

	db := h.checkDatabase(ctx)
	resp.Services["database"] = db
	if db.Status != "healthy" {
		resp.Status = "unhealthy"
	}

	if h.connectors != nil {
		stats := h.connectors.BreakerStats()
		info := ServiceInfo{Status: "healthy", Details: stats}
		for _, s := range stats {
			if m, ok := s.(map[string]interface{}); ok && m["state"] != services.BreakerClosed.String() {
				info.Status = "degraded"
			}
		}
		resp.Services["platforms"] = info
		if info.Status == "degraded" && resp.Status == "healthy" {
			resp.Status = "degraded"
		}
	}
	if h.feed != nil {
		resp.Services["feed"] = ServiceInfo{Status: "healthy", Details: gin.H{"clients": h.feed.ClientCount()}}
	}

	status := http.StatusOK
	if resp.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// Ready 就绪检查，只看数据库
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	db := h.checkDatabase(ctx)
	ready := db.Status == "healthy"
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"ready":     ready,
		"timestamp": time.Now().UTC(),
		"services":  gin.H{"database": db.Status},
	})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) ServiceInfo {
	start := time.Now()
	if h.db == nil {
		return ServiceInfo{Status: "unhealthy", Error: "database connection not initialized"}
	}
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		return ServiceInfo{Status: "unhealthy", Error: err.Error()}
	}
	return ServiceInfo{Status: "healthy", Latency: time.Since(start).String()}
}

func RegisterHealthRoutes(r *gin.Engine, handler *HealthHandler) {
	r.GET("/health", handler.Health)
	r.GET("/ready", handler.Ready)
}
