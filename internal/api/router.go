package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lancache-dash/lancache-dash-go/internal/api/handlers"
	"github.com/lancache-dash/lancache-dash-go/internal/config"
	"github.com/lancache-dash/lancache-dash-go/internal/middleware"
	"github.com/lancache-dash/lancache-dash-go/internal/realtime"
	"github.com/lancache-dash/lancache-dash-go/internal/service"
)

// Deps 路由依赖集合
type Deps struct {
	Downloads service.DownloadService
	Speeds    service.SpeedService
	Settings  service.SettingsService
	Hub       *realtime.Hub
	Metrics   *middleware.PrometheusMetrics
	Monitor   *middleware.StatsMonitor
}

func SetupRouter(cfg *config.Config, logger *logrus.Logger, deps Deps) *gin.Engine {
	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	// Prometheus 监控中间件
	if deps.Metrics != nil {
		r.Use(deps.Metrics.HTTPMiddleware())
	}

	// 初始化处理器
	var exportMetrics handlers.ExportMetrics
	if deps.Metrics != nil {
		exportMetrics = deps.Metrics
	}
	downloadHandler := handlers.NewDownloadHandler(deps.Downloads, logger, exportMetrics)
	speedHandler := handlers.NewSpeedHandler(deps.Speeds, logger)
	settingsHandler := handlers.NewSettingsHandler(deps.Settings, logger)

	// WebSocket 推送 (速度快照 / 数据集变更 / 设置变更)
	if deps.Hub != nil {
		r.GET("/ws", deps.Hub.HandleWebSocket)
	}

	// 性能监控端点 (仅在非生产环境)
	if cfg.Server.Mode != "release" {
		middleware.RegisterPprof(r)
		logger.Info("pprof endpoints registered at /debug/pprof/*")
	}

	// 运行时统计端点
	if deps.Monitor != nil {
		r.GET("/metrics/runtime", deps.Monitor.StatsEndpoint())
		r.POST("/debug/gc", middleware.ForceGC())
	}

	// Prometheus 指标端点
	if deps.Metrics != nil {
		r.GET("/metrics", deps.Metrics.Handler())
	}

	// API v1
	v1 := r.Group("/api")
	{
		// 健康检查
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"version": "1.0.0",
			})
		})

		// 前端启动时拉取的运行配置
		v1.GET("/config", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"dataSources":         cfg.Cache.DataSources,
				"sessionGapSeconds":   cfg.Cache.SessionGapSeconds,
				"speedWindowSeconds":  cfg.Speed.WindowSeconds,
				"broadcastIntervalMs": cfg.Speed.BroadcastIntervalMs,
			})
		})

		// 下载视图
		v1.GET("/downloads", downloadHandler.GetDownloads)
		v1.GET("/downloads/export", downloadHandler.ExportDownloads) // 导出不分页
		v1.GET("/downloads/active", speedHandler.GetActive)

		// 实时速度
		v1.GET("/speed/current", speedHandler.GetCurrent)
		v1.GET("/speed/history", speedHandler.GetHistory)

		// 展示设置
		v1.GET("/settings", settingsHandler.GetSettings)
		v1.PUT("/settings", settingsHandler.UpdateSettings)
		v1.PATCH("/settings/:key", settingsHandler.UpdateSettingKey)
	}

	return r
}

// LoggerMiddleware 日志中间件
func LoggerMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		method := c.Request.Method
		path := c.Request.URL.Path

		logger.WithFields(logrus.Fields{
			"status":  statusCode,
			"method":  method,
			"path":    path,
			"latency": latency.Milliseconds(),
		}).Info("HTTP Request")
	}
}

// CORSMiddleware CORS 中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
