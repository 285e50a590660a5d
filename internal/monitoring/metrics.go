package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 提交结果标签
const (
	OutcomeCreated  = "created"  // 已持久化
	OutcomeDegraded = "degraded" // 数据库不可用，仅发送通知
	OutcomeInvalid  = "invalid"  // 校验失败
	OutcomeFailed   = "failed"   // 服务器错误
)

// Metrics 监控指标
type Metrics struct {
	registry *prometheus.Registry
	started  time.Time

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 业务指标
	SubmissionsTotal    *prometheus.CounterVec
	NotificationsTotal  *prometheus.CounterVec
	ReportBuildsTotal   *prometheus.CounterVec
	ReportBuildDuration prometheus.Histogram

	// 系统指标
	SystemUptime prometheus.GaugeFunc

	// 错误指标
	PanicsTotal prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec
}

// NewMetrics 创建监控指标，所有指标注册在独立的注册表上
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		started:  time.Now(),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portfolio_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		SubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_contact_submissions_total",
				Help: "Contact form submissions by outcome",
			},
			[]string{"outcome"},
		),

		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_notifications_total",
				Help: "Notification attempts by transport and result",
			},
			[]string{"transport", "result"},
		),

		ReportBuildsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_report_builds_total",
				Help: "Spreadsheet report builds by result",
			},
			[]string{"result"},
		),

		ReportBuildDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "portfolio_report_build_duration_seconds",
				Help:    "Spreadsheet report build duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "portfolio_panics_total",
				Help: "Total number of recovered panics",
			},
		),

		RateLimitBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_rate_limit_blocks_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"limiter"},
		),
	}

	m.SystemUptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "portfolio_system_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.started).Seconds() },
	)

	return m
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if endpoint == "" {
		endpoint = "unmatched"
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordSubmission 记录一次提交结果
func (m *Metrics) RecordSubmission(outcome string) {
	m.SubmissionsTotal.WithLabelValues(outcome).Inc()
}

// RecordNotification 记录通知结果
func (m *Metrics) RecordNotification(transport string, delivered bool) {
	result := "failed"
	if delivered {
		result = "delivered"
	}
	m.NotificationsTotal.WithLabelValues(transport, result).Inc()
}

// RecordReportBuild 记录报表生成
func (m *Metrics) RecordReportBuild(err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.ReportBuildsTotal.WithLabelValues(result).Inc()
	m.ReportBuildDuration.Observe(duration.Seconds())
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(limiter string) {
	m.RateLimitBlocks.WithLabelValues(limiter).Inc()
}

// Uptime 返回进程运行时间
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.started)
}

// Registry 返回指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
