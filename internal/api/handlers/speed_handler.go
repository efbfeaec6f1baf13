package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lancache-dash/lancache-dash-go/internal/service"
)

// SpeedHandler 实时速度处理器
type SpeedHandler struct {
	speeds service.SpeedService
	logger *logrus.Logger
}

// NewSpeedHandler 创建实时速度处理器实例
func NewSpeedHandler(speeds service.SpeedService, logger *logrus.Logger) *SpeedHandler {
	return &SpeedHandler{
		speeds: speeds,
		logger: logger,
	}
}

// GetCurrent 获取当前速度快照（轮询接口, WebSocket 的低配替代）
// GET /api/speed/current
func (h *SpeedHandler) GetCurrent(c *gin.Context) {
	snapshot := h.speeds.Current()
	c.JSON(http.StatusOK, gin.H{
		"snapshot": snapshot, // 尚未收到任何快照时为 null
	})
}

// GetActive 获取 "正在下载" 视图
// GET /api/downloads/active
func (h *SpeedHandler) GetActive(c *gin.Context) {
	view, err := h.speeds.ActiveView(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to build active view")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to build active view",
		})
		return
	}

	c.JSON(http.StatusOK, view)
}

// GetHistory 获取历史窗口流量汇总
// GET /api/speed/history?window_minutes=1440
func (h *SpeedHandler) GetHistory(c *gin.Context) {
	windowStr := c.DefaultQuery("window_minutes", "1440")
	windowMinutes, err := strconv.Atoi(windowStr)
	if err != nil || windowMinutes <= 0 {
		windowMinutes = 1440
	}

	// 历史汇总上限一个月, 防止整表扫描被滥用
	if windowMinutes > 31*24*60 {
		windowMinutes = 31 * 24 * 60
	}

	history, err := h.speeds.History(c.Request.Context(), windowMinutes)
	if err != nil {
		h.logger.WithError(err).Error("Failed to summarize speed history")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to summarize speed history",
		})
		return
	}

	c.JSON(http.StatusOK, history)
}
