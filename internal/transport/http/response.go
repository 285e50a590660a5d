package httptransport

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"portfolio/backend/internal/domain"
)

// TimestampLayout 响应中时间戳的格式（UTC，毫秒精度）
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Response 统一响应结构
type Response struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Error     string      `json:"error,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Details   interface{} `json:"details,omitempty"`
	Detail    string      `json:"detail,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// SubmissionData 提交成功时返回的数据
type SubmissionData struct {
	ID          string    `json:"id"`
	SubmittedAt time.Time `json:"submittedAt"`
	EmailSent   bool      `json:"emailSent"`
}

func timestamp() string {
	return time.Now().UTC().Format(TimestampLayout)
}

// Success 成功响应
func Success(c *gin.Context, status int, msg string, data interface{}) {
	c.JSON(status, Response{
		Success: true,
		Message: msg,
		Data:    data,
	})
}

// ValidationFailed 字段校验失败（400），列出全部错误字段
func ValidationFailed(c *gin.Context, violations []domain.Violation) {
	c.JSON(http.StatusBadRequest, Response{
		Success:   false,
		Error:     MsgValidationFailed,
		Details:   violations,
		Timestamp: timestamp(),
	})
}

// BadRequest 请求参数错误（400）
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{
		Success:   false,
		Error:     msg,
		Timestamp: timestamp(),
	})
}

// InternalError 服务器内部错误（500），detail 仅在非生产环境返回
func InternalError(c *gin.Context, errMsg string, detail string) {
	c.JSON(http.StatusInternalServerError, Response{
		Success:   false,
		Error:     errMsg,
		Message:   MsgUnexpected,
		Detail:    detail,
		Timestamp: timestamp(),
	})
}
