package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"portfolio/backend/internal/config"
	"portfolio/backend/internal/health"
	"portfolio/backend/internal/logger"
	"portfolio/backend/internal/middleware"
	"portfolio/backend/internal/monitoring"
	"portfolio/backend/internal/notify"
	"portfolio/backend/internal/report"
	"portfolio/backend/internal/service"
	"portfolio/backend/internal/storage"
	"portfolio/backend/internal/storage/memory"
	"portfolio/backend/internal/storage/postgres"
	"portfolio/backend/internal/storage/redis"
	sqlstore "portfolio/backend/internal/storage/sql"
	httptransport "portfolio/backend/internal/transport/http"
)

// main 启动联系表单 HTTP 服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logger.NewLogger(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting portfolio backend",
		zap.String("version", httptransport.Version),
		zap.String("environment", cfg.Server.Environment),
		zap.String("log_level", cfg.Log.Level),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 数据库不可达时继续以降级模式运行
	store := openStore(ctx, cfg.Database, log)
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close store", zap.Error(err))
		}
	}()

	metrics := monitoring.NewMetrics()

	loc, err := time.LoadLocation(cfg.Report.Timezone)
	if err != nil {
		log.Warn("invalid report timezone, using UTC", zap.String("timezone", cfg.Report.Timezone), zap.Error(err))
		loc = time.UTC
	}
	reports := report.NewBuilder(store, loc)

	notifier, err := newNotifier(cfg, loc, log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize notifier: %v", err))
	}
	checkMail(ctx, notifier, log)

	probes := health.NewHealthChecker(store, log)
	limiter, closeLimiter := newLimiter(ctx, cfg, probes, log)
	defer closeLimiter()

	contacts := service.NewContactService(store, reports, notifier, metrics, log)

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:   cfg,
		Contacts: contacts,
		Status:   monitoring.NewHealthChecker(store, notifier.Configured, log, httptransport.Version, cfg.Server.Environment),
		Probes:   probes,
		Metrics:  metrics,
		Limiter:  limiter,
		Logger:   log,
	})

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute, // 包含报表生成与两次邮件发送
		IdleTimeout:       120 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server",
			zap.String("address", httpAddr),
			zap.String("frontend_url", cfg.FrontendURL),
			zap.Bool("email_configured", notifier.Configured()),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		log.Info("server stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// openStore 按配置打开存储，连接失败时返回离线存储
func openStore(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) storage.Store {
	var (
		store storage.Store
		err   error
	)

	switch cfg.Type {
	case "", "memory":
		log.Info("using memory storage (development mode)")
		return memory.NewStore()
	case "postgres", "mysql":
		store, err = sqlstore.NewStore(ctx, cfg)
	case "pgx":
		store, err = openPgxStore(ctx, cfg)
	default:
		err = fmt.Errorf("unsupported database type %q", cfg.Type)
	}

	if err != nil {
		log.Error("database connection failed, continuing without database", zap.String("type", cfg.Type), zap.Error(err))
		return storage.NewOffline(err)
	}

	log.Info("database storage initialized", zap.String("type", cfg.Type))
	return store
}

func openPgxStore(ctx context.Context, cfg config.DatabaseConfig) (storage.Store, error) {
	pool, err := postgres.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store := postgres.NewStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// newNotifier 按配置创建邮件渠道与通知器
func newNotifier(cfg *config.Config, loc *time.Location, log *zap.Logger) (*notify.Notifier, error) {
	var transport notify.Transport
	switch cfg.Mail.Provider {
	case "sendgrid":
		transport = notify.NewSendGridTransport(cfg.Mail.SendGridAPIKey, cfg.Mail.SendGridHost)
	default:
		transport = notify.NewSMTPTransport(notify.SMTPConfig{
			Host:               cfg.Mail.Host,
			Port:               cfg.Mail.Port,
			Username:           cfg.Mail.Username,
			Password:           cfg.Mail.Password,
			Secure:             cfg.Mail.Secure,
			InsecureSkipVerify: cfg.Mail.InsecureSkipVerify,
			DisableStartTLS:    cfg.Mail.DisableStartTLS,
			Timeout:            30 * time.Second,
		})
	}

	renderer, err := notify.NewTemplateRenderer(notify.RendererOptions{
		FrontendURL: cfg.FrontendURL,
		OwnerName:   cfg.Mail.FromName,
		Location:    loc,
	})
	if err != nil {
		return nil, err
	}

	return notify.New(transport, renderer, notify.Options{
		FromAddress:  cfg.Mail.FromAddress,
		AdminAddress: cfg.Mail.AdminAddress,
		OwnerName:    cfg.Mail.FromName,
	}, log.Named("notify")), nil
}

// checkMail 启动时探测邮件配置，只记录结果
func checkMail(ctx context.Context, notifier *notify.Notifier, log *zap.Logger) {
	checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	switch err := notifier.Check(checkCtx); {
	case errors.Is(err, notify.ErrNotConfigured):
		log.Warn("email not configured, notifications disabled", zap.String("transport", notifier.Transport()))
	case err != nil:
		log.Error("email configuration check failed", zap.String("transport", notifier.Transport()), zap.Error(err))
	default:
		log.Info("email configuration verified", zap.String("transport", notifier.Transport()))
	}
}

// newLimiter 创建限流器：配置了 Redis 时多实例共享计数，否则使用进程内令牌桶
func newLimiter(ctx context.Context, cfg *config.Config, probes *health.HealthChecker, log *zap.Logger) (middleware.Limiter, func()) {
	if !cfg.RateLimit.Enabled {
		return nil, func() {}
	}

	if cfg.Redis.Address != "" {
		client, err := redis.New(ctx, cfg.Redis, log)
		if err == nil {
			probes.AddReadinessCheck("redis", health.PingCheck(client))
			log.Info("using redis rate limiter", zap.String("address", cfg.Redis.Address))
			return middleware.NewWindowLimiter(client, cfg.RateLimit.Max, cfg.RateLimit.Window), func() { _ = client.Close() }
		}
		log.Warn("redis unavailable, falling back to in-memory rate limiter", zap.Error(err))
	}

	return middleware.NewLocalLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window), func() {}
}
