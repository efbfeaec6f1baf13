package middleware

import (
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// PrometheusMetrics Prometheus 指标收集器
type PrometheusMetrics struct {
	logger *logrus.Logger

	// HTTP 请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 日志采集指标
	linesParsedTotal *prometheus.CounterVec
	parseErrorsTotal prometheus.Counter
	bytesServedTotal *prometheus.CounterVec

	// 会话指标
	sessionsOpenedTotal    *prometheus.CounterVec
	sessionsFinalizedTotal *prometheus.CounterVec
	activeSessions         prometheus.Gauge

	// 视图指标
	viewBuildDuration prometheus.Histogram
	viewCacheHits     prometheus.Counter
	viewCacheMisses   prometheus.Counter
	exportsTotal      *prometheus.CounterVec

	// 实时推送指标
	wsClients               prometheus.Gauge
	snapshotsPublishedTotal prometheus.Counter
	snapshotsDroppedTotal   prometheus.Counter

	// 系统指标
	memoryUsage     prometheus.Gauge
	goroutinesCount prometheus.Gauge
	gcCount         prometheus.Gauge

	// 数据库指标
	dbConnectionsOpen  prometheus.Gauge
	dbConnectionsIdle  prometheus.Gauge
	dbConnectionsInUse prometheus.Gauge
}

// NewPrometheusMetrics 创建 Prometheus 指标收集器
func NewPrometheusMetrics(logger *logrus.Logger, namespace string) *PrometheusMetrics {
	if namespace == "" {
		namespace = "lancache_dash"
	}

	pm := &PrometheusMetrics{
		logger: logger,

		// HTTP 请求指标
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latencies in seconds",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"method", "path"},
		),

		// 日志采集指标
		linesParsedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "log_lines_parsed_total",
				Help:      "Total number of access log lines parsed",
			},
			[]string{"service"},
		),
		parseErrorsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "log_parse_errors_total",
				Help:      "Total number of access log lines that failed to parse",
			},
		),
		bytesServedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_served_total",
				Help:      "Total bytes served as seen in access logs",
			},
			[]string{"service", "cache_status"}, // cache_status: hit/miss
		),

		// 会话指标
		sessionsOpenedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_opened_total",
				Help:      "Total number of download sessions opened",
			},
			[]string{"service"},
		),
		sessionsFinalizedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_finalized_total",
				Help:      "Total number of download sessions finalized",
			},
			[]string{"service"},
		),
		activeSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Number of currently active download sessions",
			},
		),

		// 视图指标
		viewBuildDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "view_build_duration_seconds",
				Help:      "Download view build duration in seconds",
				Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),
		viewCacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "view_cache_hits_total",
				Help:      "Total number of memoized view cache hits",
			},
		),
		viewCacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "view_cache_misses_total",
				Help:      "Total number of memoized view cache misses",
			},
		),
		exportsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exports_total",
				Help:      "Total number of export requests",
			},
			[]string{"format"}, // csv/json
		),

		// 实时推送指标
		wsClients: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_clients",
				Help:      "Number of connected WebSocket clients",
			},
		),
		snapshotsPublishedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "speed_snapshots_published_total",
				Help:      "Total number of speed snapshots published",
			},
		),
		snapshotsDroppedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "speed_snapshots_dropped_total",
				Help:      "Total number of stale speed snapshots dropped",
			},
		),

		// 系统指标
		memoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "memory_usage_bytes",
				Help:      "Current memory usage in bytes",
			},
		),
		goroutinesCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "goroutines_count",
				Help:      "Current number of goroutines",
			},
		),
		gcCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "gc_count",
				Help:      "Number of completed GC cycles",
			},
		),

		// 数据库指标
		dbConnectionsOpen: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections_open",
				Help:      "Number of open database connections",
			},
		),
		dbConnectionsIdle: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections_idle",
				Help:      "Number of idle database connections",
			},
		),
		dbConnectionsInUse: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections_in_use",
				Help:      "Number of database connections in use",
			},
		),
	}

	logger.Info("Prometheus metrics initialized")
	return pm
}

// HTTPMiddleware HTTP 请求监控中间件
func (pm *PrometheusMetrics) HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// 处理请求
		c.Next()

		// 记录指标
		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		pm.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		pm.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

// Handler 返回 Prometheus HTTP Handler
func (pm *PrometheusMetrics) Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordLineParsed 记录解析成功的日志行
func (pm *PrometheusMetrics) RecordLineParsed(service string, hitBytes, missBytes uint64) {
	pm.linesParsedTotal.WithLabelValues(service).Inc()
	if hitBytes > 0 {
		pm.bytesServedTotal.WithLabelValues(service, "hit").Add(float64(hitBytes))
	}
	if missBytes > 0 {
		pm.bytesServedTotal.WithLabelValues(service, "miss").Add(float64(missBytes))
	}
}

// RecordParseError 记录解析失败的日志行
func (pm *PrometheusMetrics) RecordParseError() {
	pm.parseErrorsTotal.Inc()
}

// RecordSessionOpened 记录会话开启
func (pm *PrometheusMetrics) RecordSessionOpened(service string) {
	pm.sessionsOpenedTotal.WithLabelValues(service).Inc()
	pm.activeSessions.Inc()
}

// RecordSessionFinalized 记录会话结束
func (pm *PrometheusMetrics) RecordSessionFinalized(service string) {
	pm.sessionsFinalizedTotal.WithLabelValues(service).Inc()
	pm.activeSessions.Dec()
}

// RecordViewBuild 记录视图构建
func (pm *PrometheusMetrics) RecordViewBuild(duration time.Duration, cached bool) {
	pm.viewBuildDuration.Observe(duration.Seconds())
	if cached {
		pm.viewCacheHits.Inc()
	} else {
		pm.viewCacheMisses.Inc()
	}
}

// RecordExport 记录导出请求
func (pm *PrometheusMetrics) RecordExport(format string) {
	pm.exportsTotal.WithLabelValues(format).Inc()
}

// UpdateWSClients 更新 WebSocket 客户端数量
func (pm *PrometheusMetrics) UpdateWSClients(count int) {
	pm.wsClients.Set(float64(count))
}

// RecordSnapshotPublished 记录快照发布
func (pm *PrometheusMetrics) RecordSnapshotPublished() {
	pm.snapshotsPublishedTotal.Inc()
}

// RecordSnapshotDropped 记录被丢弃的过期快照
func (pm *PrometheusMetrics) RecordSnapshotDropped() {
	pm.snapshotsDroppedTotal.Inc()
}

// UpdateRuntimeStats 更新运行时统计
func (pm *PrometheusMetrics) UpdateRuntimeStats() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	pm.memoryUsage.Set(float64(m.Alloc))
	pm.goroutinesCount.Set(float64(runtime.NumGoroutine()))
	pm.gcCount.Set(float64(m.NumGC))
}

// UpdateDBStats 更新数据库连接统计
func (pm *PrometheusMetrics) UpdateDBStats(open, idle, inUse int) {
	pm.dbConnectionsOpen.Set(float64(open))
	pm.dbConnectionsIdle.Set(float64(idle))
	pm.dbConnectionsInUse.Set(float64(inUse))
}
