package httptransport

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"portfolio/backend/internal/domain"
	"portfolio/backend/internal/middleware"
	"portfolio/backend/internal/service"
)

// Submitter 处理联系表单提交
type Submitter interface {
	Submit(ctx context.Context, input domain.SubmissionInput, from domain.Provenance) (*service.Outcome, error)
}

// ContactHandler 联系表单相关路由
type ContactHandler struct {
	contacts     Submitter
	log          *zap.Logger
	exposeErrors bool
}

// NewContactHandler 创建联系表单处理器，exposeErrors 控制 500 响应是否附带错误详情
func NewContactHandler(contacts Submitter, log *zap.Logger, exposeErrors bool) *ContactHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ContactHandler{contacts: contacts, log: log, exposeErrors: exposeErrors}
}

// Register 注册 /api/contact 下的路由
func (h *ContactHandler) Register(group *gin.RouterGroup) {
	group.POST("", h.submit)
	group.GET("/health", h.health)
	group.GET("/test", h.test)
}

// submit 处理 POST /api/contact
func (h *ContactHandler) submit(c *gin.Context) {
	input, err := bindSubmission(c)
	// 空请求体按空表单处理，由校验器报告缺失字段
	if err != nil && !errors.Is(err, io.EOF) {
		if middleware.AbortIfTooLarge(c, err) {
			return
		}
		h.log.Info("invalid contact payload", zap.Error(err))
		BadRequest(c, MsgInvalidRequest)
		return
	}

	outcome, err := h.contacts.Submit(c.Request.Context(), input, domain.Provenance{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.writeSubmitError(c, err)
		return
	}

	status := http.StatusCreated
	if !outcome.Persisted {
		status = http.StatusOK
	}
	Success(c, status, outcome.Message, SubmissionData{
		ID:          outcome.ID,
		SubmittedAt: outcome.SubmittedAt,
		EmailSent:   outcome.EmailSent,
	})
}

// bindSubmission 解析 JSON 或表单请求体
func bindSubmission(c *gin.Context) (domain.SubmissionInput, error) {
	if c.ContentType() == binding.MIMEJSON {
		var payload contactPayload
		err := c.ShouldBindJSON(&payload)
		return payload.input(), err
	}

	var input domain.SubmissionInput
	err := c.ShouldBind(&input)
	return input, err
}

// health 处理 GET /api/contact/health
func (h *ContactHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Contact routes are working",
		"timestamp": timestamp(),
		"routes": gin.H{
			"POST /":      "Submit contact form",
			"GET /health": "Health check",
		},
	})
}

// test 处理 GET /api/contact/test
func (h *ContactHandler) test(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Contact routes test successful",
		"timestamp": timestamp(),
	})
}
