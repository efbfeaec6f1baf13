package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lancache-dash/lancache-dash-go/internal/api"
	"github.com/lancache-dash/lancache-dash-go/internal/config"
	"github.com/lancache-dash/lancache-dash-go/internal/domain"
	"github.com/lancache-dash/lancache-dash-go/internal/logtail"
	"github.com/lancache-dash/lancache-dash-go/internal/middleware"
	"github.com/lancache-dash/lancache-dash-go/internal/queue"
	"github.com/lancache-dash/lancache-dash-go/internal/realtime"
	"github.com/lancache-dash/lancache-dash-go/internal/repository"
	"github.com/lancache-dash/lancache-dash-go/internal/service"
	"github.com/lancache-dash/lancache-dash-go/internal/speed"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// 数据集变更通知的最小间隔, 下载高峰期把每秒几十次落库合并成两次广播
const datasetRefreshInterval = 500 * time.Millisecond

func main() {
	// 1. 打印版本信息
	fmt.Printf("Lancache Dashboard - Go Version\n")
	fmt.Printf("Version: %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n\n", GitCommit)

	// 2. 加载配置
	configPath := "./configs/config.yaml"
	if len(os.Args) > 1 && os.Args[1] == "--config" && len(os.Args) > 2 {
		configPath = os.Args[2]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 3. 初始化日志
	logger := config.InitLogger(&cfg.Log)
	logger.Infof("Starting Lancache Dashboard %s", Version)
	logger.Infof("Config loaded from: %s", configPath)

	// 4. 初始化数据库
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Fatalf("Failed to create data dir: %v", err)
	}
	db, err := repository.InitDB(&cfg.Database, cfg.DataDir, logger)
	if err != nil {
		logger.Fatalf("Failed to init database: %v", err)
	}
	logger.Info("Database connected successfully")

	// 5. 初始化 Repositories
	downloadRepo := repository.NewDownloadRepository(db, logger)
	settingsRepo := repository.NewSettingsRepository(db, logger)
	depotRepo := repository.NewDepotMappingRepository(db, logger)

	if count, err := depotRepo.Count(context.Background()); err == nil {
		logger.WithField("count", count).Info("Depot mappings loaded")
	}

	// 6. 启动 WebSocket Hub
	hub := realtime.NewHub(logger)
	hub.Start()
	logger.Info("WebSocket hub started")

	// 7. 初始化 Prometheus 指标
	promMetrics := middleware.NewPrometheusMetrics(logger, "lancache_dash")

	// 8. 初始化 Services
	settingsService := service.NewSettingsService(settingsRepo, logger, func(s domain.Settings) {
		hub.BroadcastSettings(s)
	})
	downloadService := service.NewDownloadService(downloadRepo, settingsService, logger, promMetrics)
	speedService := service.NewSpeedService(downloadService, downloadRepo, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 9. 数据集变更节流器: 落库风暴合并成节拍化的版本广播
	refresher := realtime.NewRefresher(datasetRefreshInterval, func() {
		downloadService.NotifyChange()
		hub.BroadcastDatasetChanged(downloadService.Revision())
	}, logger)
	go refresher.Run(ctx)

	// 10. 启动速度追踪器 (滑动窗口快照)
	tracker := speed.NewTracker(
		time.Duration(cfg.Speed.WindowSeconds)*time.Second,
		time.Duration(cfg.Speed.BroadcastIntervalMs)*time.Millisecond,
		time.Duration(cfg.Speed.PollIntervalMs)*time.Millisecond,
		depotRepo,
		logger,
	)
	go tracker.Run(ctx, func(snapshot *domain.SpeedSnapshot) {
		if speedService.Publish(snapshot) {
			hub.BroadcastSnapshot(snapshot)
			promMetrics.RecordSnapshotPublished()
		} else {
			promMetrics.RecordSnapshotDropped()
		}
	})
	logger.WithFields(logrus.Fields{
		"window_seconds":        cfg.Speed.WindowSeconds,
		"broadcast_interval_ms": cfg.Speed.BroadcastIntervalMs,
	}).Info("Speed tracker started")

	// 11. 按数据源启动日志采集 (Collector + Tailer)
	gap := time.Duration(cfg.Cache.SessionGapSeconds) * time.Second
	var tailers []*logtail.Tailer
	for i, dir := range cfg.Cache.LogDirs {
		dataSource := ""
		if i < len(cfg.Cache.DataSources) {
			dataSource = cfg.Cache.DataSources[i]
		}

		collector := logtail.NewCollector(gap, downloadRepo, depotRepo, tracker, promMetrics, dataSource, logger, refresher.Trigger)
		go collector.Run(ctx)

		tailer, err := logtail.NewTailer(dir, "access.log", collector.HandleLine, logger)
		if err != nil {
			logger.Fatalf("Failed to create log tailer for %s: %v", dir, err)
		}
		if err := tailer.Start(ctx); err != nil {
			logger.Fatalf("Failed to start log tailer for %s: %v", dir, err)
		}
		tailers = append(tailers, tailer)

		logger.WithFields(logrus.Fields{
			"dir":         dir,
			"data_source": dataSource,
			"gap_seconds": cfg.Cache.SessionGapSeconds,
		}).Info("Log tailer started")
	}
	if len(tailers) == 0 {
		logger.Warn("No log directories configured, running in view-only mode")
	}

	// 12. 可选: 外部日志处理器的变更信号队列
	var signalConsumer *queue.Consumer
	if cfg.RabbitMQ.Enabled {
		mqConfig := &queue.RabbitMQConfig{
			Host:     cfg.RabbitMQ.Host,
			Port:     cfg.RabbitMQ.Port,
			User:     cfg.RabbitMQ.User,
			Password: cfg.RabbitMQ.Password,
			VHost:    cfg.RabbitMQ.VHost,
		}
		mq, err := queue.NewRabbitMQ(mqConfig, cfg.RabbitMQ.Queue, logger)
		if err != nil {
			logger.Fatalf("Failed to init RabbitMQ: %v", err)
		}
		defer mq.Close()
		mq.StartConnectionWatcher()

		signalConsumer = queue.NewConsumer(mq, createSignalHandler(refresher, logger), logger)
		if err := signalConsumer.Start(); err != nil {
			logger.Fatalf("Failed to start change signal consumer: %v", err)
		}
		defer signalConsumer.Stop()
	} else {
		logger.Info("RabbitMQ change signals disabled")
	}

	// 13. 启动运行时监控
	sqlDB, _ := db.DB()
	monitor := middleware.NewStatsMonitor(logger, 30*time.Second, promMetrics, sqlDB, hub.ClientCount)
	monitor.Start()
	defer monitor.Stop()
	logger.Info("Runtime stats monitor started")

	// 14. 设置 HTTP Server
	router := api.SetupRouter(cfg, logger, api.Deps{
		Downloads: downloadService,
		Speeds:    speedService,
		Settings:  settingsService,
		Hub:       hub,
		Metrics:   promMetrics,
		Monitor:   monitor,
	})
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second, // 导出大结果集需要富余
		IdleTimeout:  120 * time.Second,
	}

	// 15. 启动 HTTP Server
	go func() {
		logger.Infof("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	// 16. 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down gracefully...")

	// 17. 优雅关闭 (30秒超时)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// 停止采集与后台协程
	cancel()
	for _, tailer := range tailers {
		if err := tailer.Stop(); err != nil {
			logger.WithError(err).Warn("Failed to stop log tailer")
		}
	}

	// 停止 HTTP Server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP server shutdown error: %v", err)
	}

	// 关闭数据库连接
	sqlDB.Close()

	logger.Info("Server stopped")
}

// createSignalHandler 创建变更信号处理器。
// 信号本身不携带数据, 只提示 "记录集变了", 统一走节流器触发重载和广播。
func createSignalHandler(refresher *realtime.Refresher, logger *logrus.Logger) queue.SignalHandler {
	return func(signal *queue.ChangeSignal) error {
		logger.WithFields(logrus.Fields{
			"kind":   signal.Kind,
			"source": signal.Source,
		}).Debug("External change signal received")

		refresher.Trigger()
		return nil
	}
}
