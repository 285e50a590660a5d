package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"portfolio/backend/internal/domain"
)

// 通用错误消息
const (
	MsgValidationFailed = "Validation failed"
	MsgInvalidRequest   = "Invalid request body"
	MsgSubmitFailed     = "Failed to submit contact form"
	MsgUnexpected       = "An unexpected error occurred. Please try again later."
	MsgRouteNotFound    = "Route not found"
)

// writeSubmitError 将提交错误映射为 HTTP 响应
//
// ValidationError（含存储层约束失败）返回 400 与字段详情，其余一律 500。
func (h *ContactHandler) writeSubmitError(c *gin.Context, err error) {
	if ve, ok := domain.AsValidationError(err); ok {
		ValidationFailed(c, ve.Violations)
		return
	}

	h.log.Error("contact submission failed", zap.Error(err))
	detail := ""
	if h.exposeErrors {
		detail = err.Error()
	}
	InternalError(c, MsgSubmitFailed, detail)
}
