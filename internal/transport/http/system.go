package httptransport

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"portfolio/backend/internal/monitoring"
)

// Version 接口版本
const Version = "1.0.0"

// availableRoutes 404 响应中列出的路由
var availableRoutes = []string{"/", "/api/health", "/api/test", "/api/contact"}

// SystemHandler 首页、诊断与健康检查路由
type SystemHandler struct {
	status      *monitoring.HealthChecker
	environment string
	port        int
}

// NewSystemHandler 创建系统处理器
func NewSystemHandler(status *monitoring.HealthChecker, environment string, port int) *SystemHandler {
	return &SystemHandler{status: status, environment: environment, port: port}
}

// index 处理 GET /
func (h *SystemHandler) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Portfolio Backend API",
		"version":   Version,
		"timestamp": timestamp(),
		"endpoints": gin.H{
			"health":  "/api/health",
			"test":    "/api/test",
			"contact": "/api/contact",
		},
	})
}

// corsTest 处理 GET /api/test，回显请求头用于排查跨域配置
func (h *SystemHandler) corsTest(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "CORS test successful",
		"timestamp": timestamp(),
		"headers":   c.Request.Header,
		"origin":    c.GetHeader("Origin"),
	})
}

// health 处理 GET /api/health
//
// 数据库断开时仍返回 200，database 字段为 disconnected。
func (h *SystemHandler) health(c *gin.Context) {
	report := h.status.CheckHealth(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"status":          "OK",
		"message":         "Portfolio Backend API is running",
		"timestamp":       timestamp(),
		"environment":     h.environment,
		"port":            h.port,
		"database":        report.Database,
		"emailConfigured": report.Email,
		"uptime":          report.Uptime,
		"memory":          report.Memory,
		"health":          report.Status,
		"checks":          report.Checks,
		"version":         Version,
	})
}

// notFound 未匹配路由的 JSON 响应
func (h *SystemHandler) notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success":         false,
		"error":           MsgRouteNotFound,
		"message":         fmt.Sprintf("Cannot %s %s", c.Request.Method, c.Request.URL.RequestURI()),
		"availableRoutes": availableRoutes,
	})
}
