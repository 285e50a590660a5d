package monitoring

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// HealthStatus 健康状态
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// 数据库连接状态
const (
	DatabaseConnected    = "connected"
	DatabaseDisconnected = "disconnected"
)

// Pinger 可探测存活的依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck 单项检查结果
type HealthCheck struct {
	Name     string       `json:"name"`
	Status   HealthStatus `json:"status"`
	Message  string       `json:"message,omitempty"`
	Duration string       `json:"duration"`
}

// MemoryStats 进程内存占用（字节）
type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"totalAlloc"`
	Sys        uint64 `json:"sys"`
	HeapInuse  uint64 `json:"heapInuse"`
	NumGC      uint32 `json:"numGC"`
}

// HealthReport 健康报告
type HealthReport struct {
	Status      HealthStatus  `json:"status"`
	Timestamp   time.Time     `json:"timestamp"`
	Uptime      float64       `json:"uptime"`
	Database    string        `json:"database"`
	Email       bool          `json:"emailConfigured"`
	Memory      MemoryStats   `json:"memory"`
	Goroutines  int           `json:"goroutines"`
	Checks      []HealthCheck `json:"checks"`
	Version     string        `json:"version"`
	Environment string        `json:"environment"`
}

// HealthChecker 汇总运行状态，供 /api/health 使用
type HealthChecker struct {
	store          Pinger
	mailConfigured func() bool
	logger         *zap.Logger
	startTime      time.Time
	version        string
	env            string
	pingTimeout    time.Duration
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(store Pinger, mailConfigured func() bool, logger *zap.Logger, version, env string) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mailConfigured == nil {
		mailConfigured = func() bool { return false }
	}
	return &HealthChecker{
		store:          store,
		mailConfigured: mailConfigured,
		logger:         logger,
		startTime:      time.Now(),
		version:        version,
		env:            env,
		pingTimeout:    2 * time.Second,
	}
}

// CheckHealth 执行健康检查
//
// 数据库不可达只会让整体状态降级：服务在没有数据库时仍然接收提交。
func (hc *HealthChecker) CheckHealth(ctx context.Context) *HealthReport {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	report := &HealthReport{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(hc.startTime).Seconds(),
		Database:  DatabaseConnected,
		Email:     hc.mailConfigured(),
		Memory: MemoryStats{
			Alloc:      m.Alloc,
			TotalAlloc: m.TotalAlloc,
			Sys:        m.Sys,
			HeapInuse:  m.HeapInuse,
			NumGC:      m.NumGC,
		},
		Goroutines:  runtime.NumGoroutine(),
		Version:     hc.version,
		Environment: hc.env,
	}

	database := hc.checkDatabase(ctx)
	if database.Status != HealthStatusHealthy {
		report.Database = DatabaseDisconnected
	}
	report.Checks = append(report.Checks, database, hc.checkMail(report.Email), checkGoroutines(report.Goroutines))

	for _, check := range report.Checks {
		if check.Status != HealthStatusHealthy {
			report.Status = HealthStatusDegraded
		}
	}

	if report.Status != HealthStatusHealthy {
		hc.logger.Debug("Health check degraded", zap.String("database", report.Database), zap.Bool("email", report.Email))
	}
	return report
}

// checkDatabase 检查数据库连接
func (hc *HealthChecker) checkDatabase(ctx context.Context) HealthCheck {
	start := time.Now()
	check := HealthCheck{Name: "database", Status: HealthStatusHealthy, Message: "Database connection is healthy"}

	if hc.store == nil {
		check.Status = HealthStatusDegraded
		check.Message = "Database not configured"
	} else {
		ctx, cancel := context.WithTimeout(ctx, hc.pingTimeout)
		defer cancel()
		if err := hc.store.Ping(ctx); err != nil {
			check.Status = HealthStatusDegraded
			check.Message = fmt.Sprintf("Database connection failed: %v", err)
		}
	}

	check.Duration = time.Since(start).String()
	return check
}

func (hc *HealthChecker) checkMail(configured bool) HealthCheck {
	if !configured {
		return HealthCheck{Name: "email", Status: HealthStatusDegraded, Message: "Email not configured", Duration: "0s"}
	}
	return HealthCheck{Name: "email", Status: HealthStatusHealthy, Message: "Email transport configured", Duration: "0s"}
}

// checkGoroutines 检查 Goroutine 数量
func checkGoroutines(n int) HealthCheck {
	check := HealthCheck{Name: "goroutines", Status: HealthStatusHealthy, Message: fmt.Sprintf("Goroutines: %d", n), Duration: "0s"}
	if n > 1000 {
		check.Status = HealthStatusDegraded
		check.Message = fmt.Sprintf("High goroutine count: %d", n)
	}
	return check
}

// GetUptime 获取系统运行时间
func (hc *HealthChecker) GetUptime() time.Duration {
	return time.Since(hc.startTime)
}
