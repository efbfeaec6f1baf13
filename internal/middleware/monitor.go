package middleware

import (
	"database/sql"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RuntimeStats 运行时统计
type RuntimeStats struct {
	Alloc      uint64 `json:"alloc"`      // 当前分配的内存 (字节)
	TotalAlloc uint64 `json:"totalAlloc"` // 累计分配的内存
	Sys        uint64 `json:"sys"`        // 从系统获取的内存
	NumGC      uint32 `json:"numGc"`      // GC 次数
	Goroutines int    `json:"goroutines"` // Goroutine 数量
	AllocMB    uint64 `json:"allocMb"`    // 当前分配 (MB)
	SysMB      uint64 `json:"sysMb"`      // 系统内存 (MB)
	WSClients  int    `json:"wsClients"`  // WebSocket 客户端数量
}

// StatsMonitor 运行时监控器, 周期性采集内存/连接池统计并喂给 Prometheus
type StatsMonitor struct {
	logger    *logrus.Logger
	prom      *PrometheusMetrics
	sqlDB     *sql.DB
	wsClients func() int

	stats    RuntimeStats
	mutex    sync.RWMutex
	stopChan chan struct{}
	interval time.Duration
}

// NewStatsMonitor 创建运行时监控器; prom、sqlDB、wsClients 均可为 nil
func NewStatsMonitor(logger *logrus.Logger, interval time.Duration, prom *PrometheusMetrics, sqlDB *sql.DB, wsClients func() int) *StatsMonitor {
	return &StatsMonitor{
		logger:    logger,
		prom:      prom,
		sqlDB:     sqlDB,
		wsClients: wsClients,
		stopChan:  make(chan struct{}),
		interval:  interval,
	}
}

// Start 启动监控
func (m *StatsMonitor) Start() {
	go m.monitor()
}

// Stop 停止监控
func (m *StatsMonitor) Stop() {
	close(m.stopChan)
}

// monitor 监控循环
func (m *StatsMonitor) monitor() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.updateStats()
			m.logStats()
		}
	}
}

// updateStats 更新统计信息
func (m *StatsMonitor) updateStats() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m.mutex.Lock()
	m.stats.Alloc = ms.Alloc
	m.stats.TotalAlloc = ms.TotalAlloc
	m.stats.Sys = ms.Sys
	m.stats.NumGC = ms.NumGC
	m.stats.Goroutines = runtime.NumGoroutine()
	m.stats.AllocMB = ms.Alloc / 1024 / 1024
	m.stats.SysMB = ms.Sys / 1024 / 1024
	if m.wsClients != nil {
		m.stats.WSClients = m.wsClients()
	}
	m.mutex.Unlock()

	if m.prom != nil {
		m.prom.UpdateRuntimeStats()
		if m.wsClients != nil {
			m.prom.UpdateWSClients(m.wsClients())
		}
		if m.sqlDB != nil {
			dbStats := m.sqlDB.Stats()
			m.prom.UpdateDBStats(dbStats.OpenConnections, dbStats.Idle, dbStats.InUse)
		}
	}
}

// logStats 记录统计信息
func (m *StatsMonitor) logStats() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	m.logger.WithFields(logrus.Fields{
		"alloc_mb":   m.stats.AllocMB,
		"sys_mb":     m.stats.SysMB,
		"num_gc":     m.stats.NumGC,
		"goroutines": m.stats.Goroutines,
		"ws_clients": m.stats.WSClients,
	}).Debug("Runtime stats")

	// 警告: 内存使用超过 512MB (面板服务本身应当很轻)
	if m.stats.AllocMB > 512 {
		m.logger.WithFields(logrus.Fields{
			"alloc_mb": m.stats.AllocMB,
			"sys_mb":   m.stats.SysMB,
		}).Warn("High memory usage detected")
	}
}

// GetStats 获取当前统计信息
func (m *StatsMonitor) GetStats() RuntimeStats {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.stats
}

// StatsEndpoint 创建运行时统计端点
func (m *StatsMonitor) StatsEndpoint() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := m.GetStats()
		c.JSON(200, gin.H{
			"runtime": stats,
		})
	}
}
