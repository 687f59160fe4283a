package handlers

import (
	"net/http"

	"growzzy/internal/middleware"
	"growzzy/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// SuccessResponse 成功响应结构
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// httpStatus maps a services error code to the HTTP status.
func httpStatus(code string) int {
	switch code {
	case services.CodeValidation:
		return http.StatusBadRequest
	case services.CodeNotFound:
		return http.StatusNotFound
	case services.CodeExternalService:
		return http.StatusBadGateway
	case services.CodeClaimConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err with the shared envelope. Internal details are logged, not returned.
func writeError(c *gin.Context, logger *logrus.Logger, summary string, err error) {
	code := services.ErrorCode(err)
	status := httpStatus(code)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.WithError(err).WithField("path", c.FullPath()).Error(summary)
		}
		msg = "internal error"
	}
	c.JSON(status, ErrorResponse{Error: summary, Message: msg, Code: code})
}

func badRequest(c *gin.Context, summary string, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: summary, Message: err.Error(), Code: services.CodeValidation})
}

// ownerOrAbort reads the authenticated owner id.
func ownerOrAbort(c *gin.Context) (string, bool) {
	owner := middleware.OwnerID(c)
	if owner == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized", Message: "missing owner"})
		return "", false
	}
	return owner, true
}
