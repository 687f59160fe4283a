package handlers

import (
	"net/http"

	"growzzy/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AssistantHandler executes actions the user confirmed in the assistant UI.
type AssistantHandler struct {
	service *services.AutomationService
	logger  *logrus.Logger
}

func NewAssistantHandler(service *services.AutomationService, logger *logrus.Logger) *AssistantHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &AssistantHandler{service: service, logger: logger}
}

// ConfirmedActionRequest {actionKind, params}
type ConfirmedActionRequest struct {
	ActionKind string                 `json:"actionKind" binding:"required"`
	Params     map[string]interface{} `json:"params"`
}

// ConfirmedActionResponse action result plus the error code on failure.
type ConfirmedActionResponse struct {
	*services.ActionResult
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// Execute 执行已确认动作
func (h *AssistantHandler) Execute(c *gin.Context) {
	owner, ok := ownerOrAbort(c)
	if !ok {
		return
	}
	var req ConfirmedActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	res, err := h.service.ExecuteConfirmed(c.Request.Context(), owner, req.ActionKind, req.Params)
	if err != nil {
		code := services.ErrorCode(err)
		status := httpStatus(code)
		if status == http.StatusInternalServerError {
			h.logger.WithError(err).WithField("action", req.ActionKind).Error("confirmed action failed")
		}
		c.JSON(status, ConfirmedActionResponse{ActionResult: res, Error: err.Error(), Code: code})
		return
	}
	c.JSON(http.StatusOK, ConfirmedActionResponse{ActionResult: res})
}

func RegisterAssistantRoutes(r *gin.RouterGroup, handler *AssistantHandler) {
	r.POST("/assistant/actions", handler.Execute)
}
