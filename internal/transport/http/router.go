package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"portfolio/backend/internal/config"
	"portfolio/backend/internal/health"
	"portfolio/backend/internal/middleware"
	"portfolio/backend/internal/monitoring"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config   *config.Config
	Contacts Submitter
	Status   *monitoring.HealthChecker
	Probes   *health.HealthChecker
	Metrics  *monitoring.Metrics
	Limiter  middleware.Limiter // 为空时不限流
	Logger   *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cfg := deps.Config

	router := gin.New()
	router.HandleMethodNotAllowed = false

	var onPanic func()
	if deps.Metrics != nil {
		onPanic = deps.Metrics.RecordPanic
	}
	router.Use(middleware.RecoveryHandler(log, !cfg.Server.IsProduction(), onPanic))
	router.Use(middleware.RequestLogger(log))
	if deps.Metrics != nil {
		router.Use(middleware.NewMonitoringMiddleware(deps.Metrics).HTTPMetrics())
	}
	router.Use(gincors.New(corsConfig(cfg.CORS)))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(cfg.Server.MaxBodyBytes))

	if deps.Limiter != nil {
		var onBlock func(string)
		if deps.Metrics != nil {
			onBlock = deps.Metrics.RecordRateLimitBlock
		}
		router.Use(middleware.RateLimitByIP(deps.Limiter, log, onBlock))
	}

	system := NewSystemHandler(deps.Status, cfg.Server.Environment, cfg.Server.Port)
	contacts := NewContactHandler(deps.Contacts, log, !cfg.Server.IsProduction())

	router.GET("/", system.index)

	api := router.Group("/api")
	{
		api.GET("/health", system.health)
		api.GET("/test", system.corsTest)
		contacts.Register(api.Group("/contact"))
	}

	// 探针与指标
	if deps.Probes != nil {
		router.GET("/health/live", gin.WrapH(deps.Probes.LiveHandler()))
		router.GET("/health/ready", gin.WrapH(deps.Probes.ReadyHandler()))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	router.NoRoute(system.notFound)

	return router
}

// corsConfig 构造 CORS 配置
//
// 未配置来源列表时允许任意来源；允许所有来源时关闭凭证支持。
func corsConfig(cfg config.CORSConfig) gincors.Config {
	corsCfg := gincors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders: []string{
			"Content-Length",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	origins := cfg.AllowedOrigins
	for _, origin := range origins {
		if origin == "*" {
			origins = nil
			break
		}
	}
	if len(origins) == 0 {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
		return corsCfg
	}
	corsCfg.AllowOrigins = origins
	return corsCfg
}
